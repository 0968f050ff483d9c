// Package domain holds the records shared by every de-identification
// component: detected entities, structured payloads, results and errors.
package domain

import "fmt"

// Entity is a detected PII span. Path is only set for structured-data fields
// and uses dot notation.
type Entity struct {
	Type  string  `json:"type"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float64 `json:"score"`
	Text  string  `json:"text,omitempty"`
	Path  string  `json:"path,omitempty"`
}

// NewEntity builds an Entity and checks its span and score bounds.
func NewEntity(entityType string, start, end int, score float64, text string) (Entity, error) {
	e := Entity{Type: entityType, Start: start, End: end, Score: score, Text: text}
	if err := e.Validate(); err != nil {
		return Entity{}, err
	}
	return e, nil
}

// Validate reports whether the entity respects 0 <= start <= end and 0 <= score <= 1.
func (e Entity) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("entity type is required")
	}
	if e.Start < 0 || e.End < e.Start {
		return fmt.Errorf("invalid entity span [%d, %d)", e.Start, e.End)
	}
	if e.Score < 0 || e.Score > 1 {
		return fmt.Errorf("entity score %v out of range [0, 1]", e.Score)
	}
	return nil
}

// Len returns the span length in bytes.
func (e Entity) Len() int { return e.End - e.Start }

// Overlaps reports whether two spans share at least one position.
func (e Entity) Overlaps(other Entity) bool {
	return e.Start < other.End && other.Start < e.End
}

// DetectedField maps a structured-data field to the entity type found in it.
type DetectedField struct {
	FieldName  string `json:"field_name"`
	EntityType string `json:"entity_type"`
}
