package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/achesucatas/pkg/model"
)

// fakeRow implements Row over a fixed set of scan targets, letting tests
// drive PrimaryRowCount/Exists without a real database.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch v := d.(type) {
		case *int:
			*v = r.values[i].(int)
		case *bool:
			*v = r.values[i].(bool)
		}
	}
	return nil
}

// fakeQuerier is a minimal in-memory stand-in for *pgxpool.Pool, tracking
// every Exec call so tests can assert on upsert/insert behavior without a
// live Postgres instance.
type fakeQuerier struct {
	rowCount  int
	exists    map[string]bool
	execCalls []execCall
}

type execCall struct {
	sql  string
	args []any
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{exists: map[string]bool{}}
}

func (f *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	f.execCalls = append(f.execCalls, execCall{sql: sql, args: args})
	return 1, nil
}

func (f *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) Row {
	if len(args) > 0 {
		if id, ok := args[0].(string); ok {
			return fakeRow{values: []any{f.exists[id]}}
		}
	}
	return fakeRow{values: []any{f.rowCount}}
}

func sampleRecord(id string) model.AuctionRecord {
	return model.AuctionRecord{
		IDInterno:        id,
		SourceExternalID: "EXT-1",
		SourceName:       model.SourcePNCP,
		Municipio:        "Fortaleza",
		UF:               "CE",
		Tags:             []string{"VEICULO"},
	}
}

func TestUpsertValidSucceedsUnderCapacity(t *testing.T) {
	q := newFakeQuerier()
	q.rowCount = 5
	repo := NewPostgresRepository(q, 10)

	err := repo.UpsertValid(context.Background(), sampleRecord("ID_AAA"))
	require.NoError(t, err)
	require.Len(t, q.execCalls, 1)
}

// Safety brake (spec §4.8): writes fail closed once the primary table has
// reached MaxPrimaryRows.
func TestUpsertValidFailsClosedAtCapacity(t *testing.T) {
	q := newFakeQuerier()
	q.rowCount = 10
	repo := NewPostgresRepository(q, 10)

	err := repo.UpsertValid(context.Background(), sampleRecord("ID_AAA"))
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Empty(t, q.execCalls)
}

func TestNewPostgresRepositoryDefaultsMaxRows(t *testing.T) {
	q := newFakeQuerier()
	repo := NewPostgresRepository(q, 0)
	assert.Equal(t, 10000, repo.maxPrimaryRows)
}

func TestExistsReflectsFakeStore(t *testing.T) {
	q := newFakeQuerier()
	q.exists["ID_KNOWN"] = true
	repo := NewPostgresRepository(q, 10)

	known, err := repo.Exists(context.Background(), "ID_KNOWN")
	require.NoError(t, err)
	assert.True(t, known)

	unknown, err := repo.Exists(context.Background(), "ID_MISSING")
	require.NoError(t, err)
	assert.False(t, unknown)
}

func TestInsertQuarantineMarshalsErrorsAndRecords(t *testing.T) {
	q := newFakeQuerier()
	repo := NewPostgresRepository(q, 10)

	rej := model.RejectionRecord{
		RunID:     "RUN-1",
		IDInterno: "ID_BBB",
		Status:    model.StatusNotSellable,
		Errors: []model.ValidationError{
			{Code: model.ErrMissingRequiredField, Field: "data_leilao", Message: "missing"},
		},
	}
	err := repo.InsertQuarantine(context.Background(), rej)
	require.NoError(t, err)
	require.Len(t, q.execCalls, 1)
	assert.Equal(t, "RUN-1", q.execCalls[0].args[0])
	assert.Equal(t, "ID_BBB", q.execCalls[0].args[1])
}
