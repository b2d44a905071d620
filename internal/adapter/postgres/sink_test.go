package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/francis-2008-happy/project1-energy-analysis/internal/domain"
)

type fakeResults struct {
	failAt int // 1-based Exec call that fails; 0 never fails
	calls  int
	closed bool
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	r.calls++
	if r.failAt != 0 && r.calls == r.failAt {
		return pgconn.CommandTag{}, errors.New("unique violation")
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not implemented") }
func (r *fakeResults) QueryRow() pgx.Row        { return nil }
func (r *fakeResults) Close() error {
	r.closed = true
	return nil
}

type fakeDB struct {
	execSQL []string
	batches []*pgx.Batch
	results []*fakeResults
	failAt  int
}

func (d *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	d.execSQL = append(d.execSQL, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (d *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	d.batches = append(d.batches, b)
	r := &fakeResults{failAt: d.failAt}
	d.results = append(d.results, r)
	return r
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rows(n int) []domain.CleanedRecord {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.CleanedRecord, n)
	for i := range out {
		out[i] = domain.CleanedRecord{
			City:           "Seattle",
			Date:           start.AddDate(0, 0, i),
			TempMaxF:       50.1,
			TempMinF:       40.2,
			EnergyUsageMWh: 1000.25,
		}
	}
	return out
}

func TestNewSink_TableNames(t *testing.T) {
	db := &fakeDB{}

	s, err := NewSink(db, "merged_observations", discardLogger())
	require.NoError(t, err)
	assert.Equal(t, `"merged_observations"`, s.table)

	s, err = NewSink(db, "energy.merged_observations", discardLogger())
	require.NoError(t, err)
	assert.Equal(t, `"energy"."merged_observations"`, s.table)

	for _, bad := range []string{"", "a..b", "a.b.c", "."} {
		_, err := NewSink(db, bad, discardLogger())
		assert.Error(t, err, bad)
	}
}

func TestEnsureTable(t *testing.T) {
	db := &fakeDB{}
	s, err := NewSink(db, "merged_observations", discardLogger())
	require.NoError(t, err)

	require.NoError(t, s.EnsureTable(context.Background()))
	require.Len(t, db.execSQL, 1)
	assert.Contains(t, db.execSQL[0], `CREATE TABLE IF NOT EXISTS "merged_observations"`)
	assert.Contains(t, db.execSQL[0], "PRIMARY KEY (city, date)")
}

func TestWriteCleaned_Batches(t *testing.T) {
	db := &fakeDB{}
	s, err := NewSink(db, "merged_observations", discardLogger())
	require.NoError(t, err)
	s.batchSize = 2

	n, err := s.WriteCleaned(context.Background(), rows(5))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	require.Len(t, db.batches, 3)
	assert.Equal(t, 2, db.batches[0].Len())
	assert.Equal(t, 2, db.batches[1].Len())
	assert.Equal(t, 1, db.batches[2].Len())

	q := db.batches[0].QueuedQueries[0]
	assert.Contains(t, q.SQL, `INSERT INTO "merged_observations"`)
	assert.Contains(t, q.SQL, "ON CONFLICT (city, date) DO UPDATE")
	assert.Equal(t, []any{"Seattle", time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), 50.1, 40.2, 1000.25}, q.Arguments)

	for _, r := range db.results {
		assert.True(t, r.closed)
	}
}

func TestWriteCleaned_Empty(t *testing.T) {
	db := &fakeDB{}
	s, err := NewSink(db, "t", discardLogger())
	require.NoError(t, err)

	n, err := s.WriteCleaned(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, db.batches)
}

func TestWriteCleaned_ExecError(t *testing.T) {
	db := &fakeDB{failAt: 2}
	s, err := NewSink(db, "t", discardLogger())
	require.NoError(t, err)

	n, err := s.WriteCleaned(context.Background(), rows(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unique violation")
	assert.Equal(t, 1, n)
	assert.True(t, db.results[0].closed)
}

func TestWriteCleaned_OnlyUpsertsAcrossWindows(t *testing.T) {
	db := &fakeDB{}
	s, err := NewSink(db, "merged_observations", discardLogger())
	require.NoError(t, err)

	// Two runs whose windows only partly overlap.
	_, err = s.WriteCleaned(context.Background(), rows(3))
	require.NoError(t, err)
	_, err = s.WriteCleaned(context.Background(), rows(5)[2:])
	require.NoError(t, err)

	assert.Empty(t, db.execSQL, "earlier days are never deleted")
	for _, b := range db.batches {
		for _, q := range b.QueuedQueries {
			assert.Contains(t, q.SQL, "ON CONFLICT (city, date) DO UPDATE")
			assert.NotContains(t, q.SQL, "DELETE")
		}
	}
}
