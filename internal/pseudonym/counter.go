package pseudonym

import (
	"sync"

	"github.com/raaihank/deidentifier/internal/domain"
)

// DefaultStartNumber is the first value handed out per entity type.
const DefaultStartNumber = 1

// Counter numbers entities sequentially, with an independent counter per type.
type Counter struct {
	mu       sync.Mutex
	start    int
	counters map[string]int
	entries  map[cacheKey]string
}

func NewCounter(startNumber int) (*Counter, error) {
	if startNumber < 0 {
		return nil, domain.NewConfigurationError("start_number must be a non-negative integer", nil)
	}
	return &Counter{
		start:    startNumber,
		counters: make(map[string]int),
		entries:  make(map[cacheKey]string),
	}, nil
}

func (c *Counter) ID() domain.MethodID { return domain.MethodCounter }

// Generate consumes the next number of the entity type on first sight of the
// pair. The check, increment and write share one critical section.
func (c *Counter) Generate(entity domain.Entity) string {
	key := cacheKey{entityType: entity.Type, text: entity.Text}

	c.mu.Lock()
	defer c.mu.Unlock()

	if pseudonym, ok := c.entries[key]; ok {
		return pseudonym
	}

	current, seen := c.counters[entity.Type]
	if !seen {
		current = c.start
	}
	pseudonym := format(entity.Type, current)
	c.entries[key] = pseudonym
	c.counters[entity.Type] = current + 1
	return pseudonym
}
