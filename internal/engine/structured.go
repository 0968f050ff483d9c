package engine

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/raaihank/deidentifier/internal/domain"
	"github.com/raaihank/deidentifier/internal/logger"
)

// StructuredEngine maps the fields of JSON documents and tabular frames to
// entity types and rewrites mapped fields as a whole.
type StructuredEngine struct {
	analyzer Analyzer
	logger   *logger.Logger
}

func NewStructuredEngine(analyzer Analyzer, log *logger.Logger) *StructuredEngine {
	if log == nil {
		log = logger.Nop()
	}
	return &StructuredEngine{analyzer: analyzer, logger: log.WithComponent("structured_engine")}
}

// Analyze returns the detected fields of data, sorted by field name. The
// allowlist in opts is applied to the mapping after analysis.
func (e *StructuredEngine) Analyze(ctx context.Context, data domain.StructuredData, opts domain.AnalysisOptions) ([]domain.DetectedField, error) {
	filter := opts.EntityTypes
	opts.EntityTypes = nil

	var (
		mapping map[string]string
		err     error
	)
	switch d := data.(type) {
	case domain.JSONDocument:
		mapping, err = e.analyzeDocument(ctx, d, opts)
	case *domain.Frame:
		mapping, err = e.analyzeFrame(ctx, d, opts)
	default:
		return nil, domain.NewUnsupportedDataTypeError(fmt.Sprintf("unsupported data type: %T", data))
	}
	if err != nil {
		return nil, err
	}

	allow := domain.AnalysisOptions{EntityTypes: filter}
	fields := make([]domain.DetectedField, 0, len(mapping))
	for name, entityType := range mapping {
		if allow.Allows(entityType) {
			fields = append(fields, domain.DetectedField{FieldName: name, EntityType: entityType})
		}
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].FieldName < fields[j].FieldName })

	e.logger.Debug("Structured analysis completed",
		zap.String("kind", string(data.Kind())),
		zap.Int("fields_mapped", len(fields)))
	return fields, nil
}

type fieldScore struct {
	entityType string
	score      float64
}

// analyzeDocument keeps, per dot path, the highest scoring entity type seen
// in any string leaf. Array elements share their parent's path.
func (e *StructuredEngine) analyzeDocument(ctx context.Context, doc domain.JSONDocument, opts domain.AnalysisOptions) (map[string]string, error) {
	best := make(map[string]fieldScore)

	var walk func(path string, v any) error
	walk = func(path string, v any) error {
		switch val := v.(type) {
		case map[string]any:
			for k, child := range val {
				if err := walk(joinPath(path, k), child); err != nil {
					return err
				}
			}
		case domain.JSONDocument:
			return walk(path, map[string]any(val))
		case []any:
			for _, child := range val {
				if err := walk(path, child); err != nil {
					return err
				}
			}
		case string:
			top, ok, err := e.topEntity(ctx, val, opts)
			if err != nil || !ok {
				return err
			}
			if cur, seen := best[path]; !seen || top.Score > cur.score {
				best[path] = fieldScore{entityType: top.Type, score: top.Score}
			}
		}
		return nil
	}
	if err := walk("", map[string]any(doc)); err != nil {
		return nil, err
	}

	mapping := make(map[string]string, len(best))
	for path, fs := range best {
		mapping[path] = fs.entityType
	}
	return mapping, nil
}

// analyzeFrame assigns each column the entity type found most often across
// its string cells; ties go to the type seen first.
func (e *StructuredEngine) analyzeFrame(ctx context.Context, frame *domain.Frame, opts domain.AnalysisOptions) (map[string]string, error) {
	mapping := make(map[string]string)
	for _, column := range frame.Columns {
		counts := make(map[string]int)
		var order []string
		for _, v := range frame.Column(column) {
			s, ok := v.(string)
			if !ok {
				continue
			}
			top, found, err := e.topEntity(ctx, s, opts)
			if err != nil {
				return nil, err
			}
			if !found {
				continue
			}
			if counts[top.Type] == 0 {
				order = append(order, top.Type)
			}
			counts[top.Type]++
		}

		winner := ""
		for _, t := range order {
			if winner == "" || counts[t] > counts[winner] {
				winner = t
			}
		}
		if winner != "" {
			mapping[column] = winner
		}
	}
	return mapping, nil
}

func (e *StructuredEngine) topEntity(ctx context.Context, text string, opts domain.AnalysisOptions) (domain.Entity, bool, error) {
	if text == "" {
		return domain.Entity{}, false, nil
	}
	entities, err := e.analyzer.Analyze(ctx, text, opts)
	if err != nil {
		return domain.Entity{}, false, err
	}
	if len(entities) == 0 {
		return domain.Entity{}, false, nil
	}
	top := entities[0]
	for _, ent := range entities[1:] {
		if ent.Score > top.Score {
			top = ent
		}
	}
	return top, true, nil
}

// Rewrite replaces the value of every mapped field of data in place, visiting
// fields in key order. Callers pass a copy when the original must survive.
func (e *StructuredEngine) Rewrite(ctx context.Context, data domain.StructuredData, fields []domain.DetectedField, op Operator) (domain.StructuredData, error) {
	mapping := make(map[string]string, len(fields))
	for _, f := range fields {
		mapping[f.FieldName] = f.EntityType
	}

	switch d := data.(type) {
	case domain.JSONDocument:
		rewritten, err := rewriteValue(ctx, "", map[string]any(d), mapping, op)
		if err != nil {
			return nil, err
		}
		return domain.JSONDocument(rewritten.(map[string]any)), nil

	case *domain.Frame:
		for _, rec := range d.Records {
			for _, column := range d.Columns {
				entityType, mapped := mapping[column]
				if !mapped {
					continue
				}
				s, ok := rec[column].(string)
				if !ok || s == "" {
					continue
				}
				out, err := op.Operate(ctx, fieldEntity(entityType, column, s))
				if err != nil {
					return nil, err
				}
				rec[column] = out
			}
		}
		return d, nil

	default:
		return nil, domain.NewUnsupportedDataTypeError(fmt.Sprintf("unsupported data type: %T", data))
	}
}

func rewriteValue(ctx context.Context, path string, v any, mapping map[string]string, op Operator) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		// sorted so stateful operators see fields in a stable order
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out, err := rewriteValue(ctx, joinPath(path, k), val[k], mapping, op)
			if err != nil {
				return nil, err
			}
			val[k] = out
		}
		return val, nil
	case []any:
		for i, child := range val {
			out, err := rewriteValue(ctx, path, child, mapping, op)
			if err != nil {
				return nil, err
			}
			val[i] = out
		}
		return val, nil
	case string:
		entityType, ok := mapping[path]
		if !ok || val == "" {
			return val, nil
		}
		return op.Operate(ctx, fieldEntity(entityType, path, val))
	default:
		return val, nil
	}
}

func fieldEntity(entityType, path, value string) domain.Entity {
	return domain.Entity{Type: entityType, Start: 0, End: len(value), Score: 1, Text: value, Path: path}
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
