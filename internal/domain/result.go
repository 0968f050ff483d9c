package domain

// Stats counts occurrences per entity type. It is never nil on a result.
type Stats map[string]int

// CountEntities aggregates entity occurrences by type.
func CountEntities(entities []Entity) Stats {
	stats := make(Stats, len(entities))
	for _, e := range entities {
		stats[e.Type]++
	}
	return stats
}

// CountFields aggregates detected fields by entity type.
func CountFields(fields []DetectedField) Stats {
	stats := make(Stats, len(fields))
	for _, f := range fields {
		stats[f.EntityType]++
	}
	return stats
}

// Total returns the sum of all counts.
func (s Stats) Total() int {
	total := 0
	for _, n := range s {
		total += n
	}
	return total
}

// AnalysisResult is the outcome of a detection-only call.
type AnalysisResult struct {
	Entities []Entity `json:"entities"`
	Language string   `json:"language"`
	MinScore float64  `json:"min_score"`
	Stats    Stats    `json:"entity_stats"`
}

// TextResult is the outcome of anonymizing or pseudonymizing free text.
type TextResult struct {
	Text     string   `json:"text"`
	Entities []Entity `json:"detected_entities"`
	Stats    Stats    `json:"stats"`
}

// NewTextResult builds a result and derives its statistics.
func NewTextResult(text string, entities []Entity) *TextResult {
	if entities == nil {
		entities = []Entity{}
	}
	return &TextResult{Text: text, Entities: entities, Stats: CountEntities(entities)}
}

// StructuredResult is the outcome of anonymizing or pseudonymizing structured data.
type StructuredResult struct {
	Data   StructuredData  `json:"data"`
	Fields []DetectedField `json:"detected_fields"`
	Stats  Stats           `json:"stats"`
}

// NewStructuredResult builds a result and derives its statistics.
func NewStructuredResult(data StructuredData, fields []DetectedField) *StructuredResult {
	if fields == nil {
		fields = []DetectedField{}
	}
	return &StructuredResult{Data: data, Fields: fields, Stats: CountFields(fields)}
}

// FieldMapping returns the field name to entity type view. Later entries win
// on duplicate names.
func (r *StructuredResult) FieldMapping() map[string]string {
	mapping := make(map[string]string, len(r.Fields))
	for _, f := range r.Fields {
		mapping[f.FieldName] = f.EntityType
	}
	return mapping
}
