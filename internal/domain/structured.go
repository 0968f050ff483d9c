package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// DataKind identifies the shape of a structured payload.
type DataKind string

const (
	DataKindJSON    DataKind = "json"
	DataKindTabular DataKind = "tabular"
)

// StructuredData is either a nested JSON document or a tabular frame.
type StructuredData interface {
	Kind() DataKind
	IsEmpty() bool
	Clone() StructuredData
}

// JSONDocument is a decoded JSON object.
type JSONDocument map[string]any

func (d JSONDocument) Kind() DataKind { return DataKindJSON }

func (d JSONDocument) IsEmpty() bool { return len(d) == 0 }

func (d JSONDocument) Clone() StructuredData {
	return JSONDocument(deepCopy(map[string]any(d)).(map[string]any))
}

// Frame is a table of records sharing the same flat columns.
type Frame struct {
	Columns []string
	Records []map[string]any
}

func (f *Frame) Kind() DataKind { return DataKindTabular }

func (f *Frame) IsEmpty() bool { return f == nil || len(f.Records) == 0 }

func (f *Frame) Clone() StructuredData {
	out := &Frame{
		Columns: append([]string(nil), f.Columns...),
		Records: make([]map[string]any, len(f.Records)),
	}
	for i, rec := range f.Records {
		out.Records[i] = deepCopy(rec).(map[string]any)
	}
	return out
}

// Column returns the values of a column in record order.
func (f *Frame) Column(name string) []any {
	values := make([]any, 0, len(f.Records))
	for _, rec := range f.Records {
		values = append(values, rec[name])
	}
	return values
}

// MarshalJSON encodes the frame in records orientation.
func (f *Frame) MarshalJSON() ([]byte, error) {
	if f.Records == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(f.Records)
}

// NewFrame builds a frame from records; columns are the sorted union of keys.
// Nested values are rejected since frames are flat.
func NewFrame(records []map[string]any) (*Frame, error) {
	seen := make(map[string]struct{})
	for i, rec := range records {
		for k, v := range rec {
			switch v.(type) {
			case map[string]any, []any:
				return nil, NewUnsupportedDataTypeError(fmt.Sprintf("row %d column %q holds a nested value", i, k))
			}
			seen[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return &Frame{Columns: columns, Records: records}, nil
}

// ParseStructuredData turns a decoded JSON value into a structured payload.
// Objects become documents and arrays of objects become frames.
func ParseStructuredData(v any) (StructuredData, error) {
	switch val := v.(type) {
	case map[string]any:
		return JSONDocument(val), nil
	case JSONDocument:
		return val, nil
	case []map[string]any:
		return NewFrame(val)
	case []any:
		records := make([]map[string]any, 0, len(val))
		for i, item := range val {
			rec, ok := item.(map[string]any)
			if !ok {
				return nil, NewUnsupportedDataTypeError(fmt.Sprintf("row %d is %T, expected an object", i, item))
			}
			records = append(records, rec)
		}
		return NewFrame(records)
	case nil:
		return nil, NewInvalidInputError("data cannot be empty")
	default:
		return nil, NewUnsupportedDataTypeError(fmt.Sprintf("unsupported data type: %T", v))
	}
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return val
	}
}
