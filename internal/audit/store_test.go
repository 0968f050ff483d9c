package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/deidentifier/internal/domain"
	"github.com/raaihank/deidentifier/internal/service"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStoreWithDB(sqlx.NewDb(db, "postgres"), nil), mock
}

func TestStore_Record(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO deidentification_runs").
		WithArgs("req-1", "pseudonymize", "text", sqlmock.AnyArg(), 12.5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(7, created))

	run := &Run{
		RequestID:    "req-1",
		Operation:    "pseudonymize",
		Scope:        "text",
		EntityCounts: Counts{"PERSON": 1},
		DurationMS:   12.5,
	}
	require.NoError(t, store.Record(context.Background(), run))
	assert.Equal(t, int64(7), run.ID)
	assert.Equal(t, created, run.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ObserveSwallowsErrors(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("INSERT INTO deidentification_runs").WillReturnError(errors.New("connection reset"))

	assert.NotPanics(t, func() {
		store.Observe(context.Background(), service.Event{
			RequestID:    "req-2",
			Operation:    service.OperationAnonymize,
			Scope:        domain.ScopeStructured,
			EntityCounts: domain.Stats{"EMAIL_ADDRESS": 3},
			Duration:     time.Millisecond,
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Recent(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "request_id", "operation", "scope", "entity_counts", "duration_ms", "created_at"}).
		AddRow(2, "req-2", "anonymize", "text", []byte(`{"PERSON":2}`), 3.0, created).
		AddRow(1, "req-1", "analyze", "text", []byte(`{}`), 1.0, created.Add(-time.Minute))
	mock.ExpectQuery("SELECT (.+) FROM deidentification_runs").WithArgs(50).WillReturnRows(rows)

	runs, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, Counts{"PERSON": 2}, runs[0].EntityCounts)
	assert.Equal(t, Counts{}, runs[1].EntityCounts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_TotalsSince(t *testing.T) {
	store, mock := newMockStore(t)
	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("jsonb_each_text").WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"entity_type", "total"}).AddRow("PERSON", 10).AddRow("LOCATION", 4))

	totals, err := store.TotalsSince(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, []TypeTotal{{EntityType: "PERSON", Total: 10}, {EntityType: "LOCATION", Total: 4}}, totals)
}

func TestStore_Migrate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS deidentification_runs").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCounts(t *testing.T) {
	var c Counts
	require.NoError(t, c.Scan(`{"IBAN_CODE":1}`))
	assert.Equal(t, Counts{"IBAN_CODE": 1}, c)

	require.NoError(t, c.Scan(nil))
	assert.Equal(t, Counts{}, c)

	assert.Error(t, c.Scan(42))

	v, err := Counts(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), v)
}

func TestMaskDatabaseURL(t *testing.T) {
	assert.Equal(t, "postgres://app:xxxxx@db:5432/audit", maskDatabaseURL("postgres://app:hunter2@db:5432/audit"))
	assert.Equal(t, "postgres://db/audit", maskDatabaseURL("postgres://db/audit"))
}
