package validator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/deidentifier/internal/domain"
)

type fakeSource struct {
	types []string
	err   error
	calls int
}

func (f *fakeSource) SupportedEntities(context.Context, string) ([]string, error) {
	f.calls++
	return f.types, f.err
}

func TestValidate(t *testing.T) {
	source := &fakeSource{types: []string{"EMAIL_ADDRESS", "PERSON", "LOCATION"}}
	v := New(source, nil)
	ctx := context.Background()

	tests := []struct {
		name        string
		in          []string
		want        []string
		unsupported []string
	}{
		{name: "normalizes case", in: []string{"email_address", "PERSON"}, want: []string{"EMAIL_ADDRESS", "PERSON"}},
		{name: "deduplicates", in: []string{"person", " Person ", "PERSON"}, want: []string{"PERSON"}},
		{name: "nil is all", in: nil, want: []string{}},
		{name: "empty is all", in: []string{}, want: []string{}},
		{name: "unsupported", in: []string{"NOT_A_TYPE"}, unsupported: []string{"NOT_A_TYPE"}},
		{name: "lists every unsupported", in: []string{"zip", "PERSON", "age"}, unsupported: []string{"AGE", "ZIP"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Validate(ctx, "en", tt.in)
			if tt.unsupported != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrEntityTypeValidation)
				var de *domain.Error
				require.True(t, errors.As(err, &de))
				assert.Equal(t, tt.unsupported, de.EntityTypes)
				for _, u := range tt.unsupported {
					assert.Contains(t, err.Error(), u)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, 1, source.calls, "supported set is loaded once per language")
}

func TestValidateSourceFailure(t *testing.T) {
	source := &fakeSource{err: errors.New("engine offline")}
	v := New(source, nil)

	_, err := v.Validate(context.Background(), "en", []string{"PERSON"})
	assert.ErrorIs(t, err, domain.ErrAnalysis)

	source.err = nil
	source.types = []string{"PERSON"}
	got, err := v.Validate(context.Background(), "en", []string{"person"})
	require.NoError(t, err)
	assert.Equal(t, []string{"PERSON"}, got)
	assert.Equal(t, 2, source.calls, "failures are not cached")
}

func TestSupportedEntities(t *testing.T) {
	v := New(&fakeSource{types: []string{"person", "EMAIL_ADDRESS"}}, nil)
	got, err := v.SupportedEntities(context.Background(), "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"EMAIL_ADDRESS", "PERSON"}, got)
}
