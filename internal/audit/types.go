package audit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Run is one audited de-identification call. It holds counts only.
type Run struct {
	ID           int64     `db:"id" json:"id"`
	RequestID    string    `db:"request_id" json:"request_id"`
	Operation    string    `db:"operation" json:"operation"`
	Scope        string    `db:"scope" json:"scope"`
	EntityCounts Counts    `db:"entity_counts" json:"entity_counts"`
	DurationMS   float64   `db:"duration_ms" json:"duration_ms"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Counts is stored as a jsonb object of entity type to occurrences.
type Counts map[string]int

func (c Counts) Value() (driver.Value, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]int(c))
}

func (c *Counts) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = Counts{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Counts", src)
	}
	out := Counts{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to decode entity counts: %w", err)
	}
	*c = out
	return nil
}

// TypeTotal aggregates one entity type across runs.
type TypeTotal struct {
	EntityType string `db:"entity_type" json:"entity_type"`
	Total      int64  `db:"total" json:"total"`
}
