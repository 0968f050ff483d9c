package engine

import (
	"context"
	"sort"
	"strings"

	"github.com/raaihank/deidentifier/internal/domain"
)

// ResolveOverlaps returns the entities to rewrite, ordered by start. An entity
// overlapping an already kept one replaces it only with a strictly higher
// score; otherwise it is dropped.
func ResolveOverlaps(entities []domain.Entity) []domain.Entity {
	sorted := append([]domain.Entity(nil), entities...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End > sorted[j].End
	})

	kept := make([]domain.Entity, 0, len(sorted))
	for _, e := range sorted {
		conflict := -1
		for i := range kept {
			if kept[i].Overlaps(e) {
				conflict = i
				break
			}
		}
		switch {
		case conflict < 0:
			kept = append(kept, e)
		case e.Score > kept[conflict].Score:
			// drop every kept span the winner overlaps
			filtered := kept[:0]
			for _, k := range kept {
				if !k.Overlaps(e) {
					filtered = append(filtered, k)
				}
			}
			kept = append(filtered, e)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}

// RewriteText applies op to every non-overlapping entity span of text.
func RewriteText(ctx context.Context, text string, entities []domain.Entity, op Operator) (string, error) {
	spans := ResolveOverlaps(entities)

	var b strings.Builder
	b.Grow(len(text))
	cursor := 0
	for _, e := range spans {
		if e.Start < cursor || e.End > len(text) {
			continue
		}
		if e.Text == "" {
			e.Text = text[e.Start:e.End]
		}
		replacement, err := op.Operate(ctx, e)
		if err != nil {
			return "", err
		}
		b.WriteString(text[cursor:e.Start])
		b.WriteString(replacement)
		cursor = e.End
	}
	b.WriteString(text[cursor:])
	return b.String(), nil
}
