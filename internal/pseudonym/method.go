// Package pseudonym generates consistent replacement tokens for detected
// entities. A Method instance is scoped to one request: the same (type, text)
// pair always maps to the same pseudonym for the lifetime of the instance.
package pseudonym

import (
	"fmt"
	"sync"

	"github.com/raaihank/deidentifier/internal/domain"
)

// Method turns an entity into its pseudonym.
type Method interface {
	Generate(entity domain.Entity) string
	ID() domain.MethodID
}

func format(entityType string, suffix any) string {
	return fmt.Sprintf("<%s_%v>", entityType, suffix)
}

type cacheKey struct {
	entityType string
	text       string
}

// mapping memoizes pseudonyms per (type, text). Lookup, generation and
// insertion happen under one lock so concurrent callers never both generate.
type mapping struct {
	mu      sync.Mutex
	entries map[cacheKey]string
}

func newMapping() *mapping {
	return &mapping{entries: make(map[cacheKey]string)}
}

func (m *mapping) getOrCreate(entity domain.Entity, create func() string) string {
	key := cacheKey{entityType: entity.Type, text: entity.Text}

	m.mu.Lock()
	defer m.mu.Unlock()

	if pseudonym, ok := m.entries[key]; ok {
		return pseudonym
	}
	pseudonym := create()
	m.entries[key] = pseudonym
	return pseudonym
}

func (m *mapping) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
