//go:build integration

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/tender-radar/internal/types"
)

func getTestDB(t *testing.T) *Postgres {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}
	require.NoError(t, Migrate(dsn, nil))

	db, err := Connect(context.Background(), dsn)
	if err != nil {
		t.Skipf("database unreachable: %v", err)
	}

	ctx := context.Background()
	_, _ = db.pool.Exec(ctx, "DELETE FROM tenders WHERE id LIKE 'itest-%'")
	_, _ = db.pool.Exec(ctx, "DELETE FROM run_logs WHERE source LIKE 'itest-%'")
	return db
}

func TestIntegration_TenderLifecycle(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()
	id := "itest-" + uuid.NewString()
	seen := time.Now().UTC().Truncate(time.Microsecond)

	tender := &types.Tender{
		ID: id, NaturalKey: "nk", Source: types.SourceAPIA, Title: "Evaluation services",
		SourceTags: []string{"cpv:79419000"}, RawPayload: []byte(`{"id": 1}`),
		FirstSeenAt: seen, LastSeenAt: seen,
	}
	created, err := db.UpsertTender(ctx, tender)
	require.NoError(t, err)
	assert.True(t, created)

	applied, err := db.SetVerdict(ctx, id, types.Verdict{IsRelevant: true, Confidence: 88, Method: types.MethodPrimary, Reasoning: "fits"})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = db.SetVerdict(ctx, id, types.ErrorVerdict("timeout"))
	require.NoError(t, err)
	assert.False(t, applied, "error must not overwrite primary")

	tender.Title = "Evaluation services (amended)"
	tender.SourceTags = []string{"kw:evaluation"}
	tender.LastSeenAt = seen.Add(time.Hour)
	created, err = db.UpsertTender(ctx, tender)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := db.GetTender(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Evaluation services (amended)", got.Title)
	assert.Equal(t, []string{"cpv:79419000", "kw:evaluation"}, got.SourceTags)
	require.NotNil(t, got.Classification)
	assert.Equal(t, types.MethodPrimary, got.Classification.Method)
	assert.Equal(t, 88.0, got.Classification.Confidence)
	assert.True(t, got.FirstSeenAt.Equal(seen))

	relevant, err := db.QueryTenders(ctx, Query{Relevant: Bool(true), MinConfidence: 80, Search: "amended"})
	require.NoError(t, err)
	require.Len(t, relevant, 1)
	assert.Equal(t, id, relevant[0].ID)
}

func TestIntegration_NotFound(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	_, err := db.GetTender(ctx, "itest-missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.SetVerdict(ctx, "itest-missing", types.ErrorVerdict("x"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIntegration_RunLogsAndExemplars(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.AppendRunLog(ctx, types.RunLog{Source: "itest-src", StartedAt: time.Now().UTC(), Found: 3, Success: true}))
	logs, err := db.ListRunLogs(ctx, "itest-src", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 3, logs[0].Found)

	e := types.PositiveExemplar{ID: uuid.New(), Title: "Impact assessment", Confidence: 0.9, Source: types.ExemplarManual}
	require.NoError(t, db.AddExemplar(ctx, e))
	require.NoError(t, db.AddExemplar(ctx, e))
	list, err := db.ListExemplars(ctx)
	require.NoError(t, err)
	count := 0
	for _, x := range list {
		if x.ID == e.ID {
			count++
		}
	}
	assert.Equal(t, 1, count)
	_, _ = db.pool.Exec(ctx, "DELETE FROM positive_exemplars WHERE id = $1", e.ID)
}
