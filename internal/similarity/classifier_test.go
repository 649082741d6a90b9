package similarity

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/tender-radar/internal/types"
)

type memRepo struct {
	mu   sync.Mutex
	list []types.PositiveExemplar
	err  error
}

func (r *memRepo) ListExemplars(context.Context) ([]types.PositiveExemplar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.PositiveExemplar(nil), r.list...), r.err
}

func (r *memRepo) AddExemplar(_ context.Context, e types.PositiveExemplar) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.list = append(r.list, e)
	return nil
}

type stubQuerier struct {
	tenders []*types.Tender
}

func (q stubQuerier) RelevantTenders(_ context.Context, min float64) ([]*types.Tender, error) {
	var out []*types.Tender
	for _, t := range q.tenders {
		if t.Classification != nil && t.Classification.Confidence >= min {
			out = append(out, t)
		}
	}
	return out, nil
}

func seeded(t *testing.T) *Classifier {
	t.Helper()
	ctx := context.Background()
	c := New(&memRepo{}, Options{})
	for _, e := range [][2]string{
		{"Economic impact study", "Assessment of regional economic effects of a new port"},
		{"Feasibility study for urban tramway", "Transport demand and cost-benefit analysis"},
		{"Market analysis of renewable energy", "Survey of solar and wind investment"},
	} {
		_, err := c.AddExemplar(ctx, e[0], e[1], 1, types.ExemplarManual)
		require.NoError(t, err)
	}
	require.NoError(t, c.Rebuild(ctx))
	return c
}

func TestClassify_ExemplarScoresOne(t *testing.T) {
	c := seeded(t)
	v := c.Classify(context.Background(), "Economic impact study", "Assessment of regional economic effects of a new port")

	assert.True(t, v.IsRelevant)
	assert.InDelta(t, 100, v.Confidence, 1e-6)
	assert.Equal(t, types.MethodFallback, v.Method)
	assert.Contains(t, v.Reasoning, "Economic impact study")
}

func TestClassify_ShortExemplarScoresOne(t *testing.T) {
	for _, text := range []string{"Y", "de la", "A b"} {
		t.Run(text, func(t *testing.T) {
			ctx := context.Background()
			c := New(&memRepo{}, Options{})
			_, err := c.AddExemplar(ctx, text, "", 1, types.ExemplarManual)
			require.NoError(t, err)
			require.NoError(t, c.Rebuild(ctx))

			v := c.Classify(ctx, text, "")
			assert.True(t, v.IsRelevant)
			assert.InDelta(t, 100, v.Confidence, 1e-6)
		})
	}
}

func TestClassify_UnrelatedText(t *testing.T) {
	c := seeded(t)
	v := c.Classify(context.Background(), "Supply of office chairs", "")

	assert.False(t, v.IsRelevant)
	assert.Less(t, v.Confidence, DefaultThreshold*100)
	assert.Equal(t, types.MethodFallback, v.Method)
}

func TestClassify_NoSharedVocabulary(t *testing.T) {
	c := seeded(t)
	v := c.Classify(context.Background(), "zzz qqq", "")
	assert.False(t, v.IsRelevant)
	assert.Zero(t, v.Confidence)
	assert.Equal(t, types.MethodFallback, v.Method)
}

func TestClassify_EmptyCorpus(t *testing.T) {
	c := New(&memRepo{}, Options{})
	v := c.Classify(context.Background(), "Economic study", "")

	assert.True(t, v.IsError())
	assert.False(t, v.IsRelevant)
	assert.Zero(t, v.Confidence)
}

func TestRebuild_EmptyCorpus(t *testing.T) {
	c := New(nil, Options{})
	assert.ErrorIs(t, c.Rebuild(context.Background()), ErrNotReady)
}

func TestClassify_ImplicitRebuild(t *testing.T) {
	repo := &memRepo{list: []types.PositiveExemplar{{Title: "Economic study", Confidence: 1}}}
	c := New(repo, Options{})

	v := c.Classify(context.Background(), "Economic study", "")
	assert.True(t, v.IsRelevant)
	assert.Equal(t, types.MethodFallback, v.Method)
}

func TestAddExemplar_NoRetrainUntilRebuild(t *testing.T) {
	ctx := context.Background()
	c := seeded(t)

	before := c.Classify(ctx, "Hydrological survey of river basin", "")
	_, err := c.AddExemplar(ctx, "Hydrological survey of river basin", "", 1, types.ExemplarManual)
	require.NoError(t, err)

	stale := c.Classify(ctx, "Hydrological survey of river basin", "")
	assert.Equal(t, before.Confidence, stale.Confidence)

	require.NoError(t, c.Rebuild(ctx))
	fresh := c.Classify(ctx, "Hydrological survey of river basin", "")
	assert.InDelta(t, 100, fresh.Confidence, 1e-6)
}

func TestAddExemplar_Validation(t *testing.T) {
	c := New(nil, Options{})
	_, err := c.AddExemplar(context.Background(), "  ", "", 1, types.ExemplarManual)
	assert.Error(t, err)

	e, err := c.AddExemplar(context.Background(), "Title", "", 7, types.ExemplarManual)
	require.NoError(t, err)
	assert.Equal(t, 1.0, e.Confidence)
}

func TestAddExemplar_PersistError(t *testing.T) {
	repo := &memRepo{}
	c := New(repo, Options{})
	repo.err = errors.New("disk full")
	_, err := c.AddExemplar(context.Background(), "Title", "", 1, types.ExemplarManual)
	assert.Error(t, err)
	assert.Zero(t, c.Len())
}

func TestThreshold(t *testing.T) {
	repo := &memRepo{list: []types.PositiveExemplar{{Title: "economic study of port logistics"}}}
	strict := New(repo, Options{Threshold: 0.99})
	lenient := New(repo, Options{Threshold: 0.01})

	strictV := strict.Classify(context.Background(), "economic study", "")
	lenientV := lenient.Classify(context.Background(), "economic study", "")

	assert.InDelta(t, strictV.Confidence, lenientV.Confidence, 1e-9)
	assert.False(t, strictV.IsRelevant)
	assert.True(t, lenientV.IsRelevant)
}

func TestPromote(t *testing.T) {
	ctx := context.Background()
	repo := &memRepo{list: []types.PositiveExemplar{{Title: "Economic impact study"}}}
	c := New(repo, Options{})

	q := stubQuerier{tenders: []*types.Tender{
		{Title: "Economic impact study", Classification: &types.Verdict{IsRelevant: true, Confidence: 95, Method: types.MethodPrimary}},
		{Title: "Port feasibility study", Description: "Cost benefit", Classification: &types.Verdict{IsRelevant: true, Confidence: 85, Method: types.MethodPrimary}},
		{Title: "Fallback only", Classification: &types.Verdict{IsRelevant: true, Confidence: 90, Method: types.MethodFallback}},
		{Title: "Low confidence", Classification: &types.Verdict{IsRelevant: true, Confidence: 50, Method: types.MethodPrimary}},
		{Title: "Irrelevant", Classification: &types.Verdict{IsRelevant: false, Confidence: 99, Method: types.MethodPrimary}},
	}}

	added, err := c.Promote(ctx, q, 80)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	require.Len(t, repo.list, 2)
	assert.Equal(t, types.ExemplarPromoted, repo.list[1].Source)
	assert.InDelta(t, 0.85, repo.list[1].Confidence, 1e-9)

	again, err := c.Promote(ctx, q, 80)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestConcurrentClassifyDuringRebuild(t *testing.T) {
	ctx := context.Background()
	c := seeded(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				v := c.Classify(ctx, "Economic impact study", "")
				assert.Equal(t, types.MethodFallback, v.Method)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		_, _ = c.AddExemplar(ctx, "Extra exemplar", string(rune('a'+i)), 1, types.ExemplarManual)
		require.NoError(t, c.Rebuild(ctx))
	}
	wg.Wait()
}

func TestFileRepository(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "exemplars.json")
	repo := NewFileRepository(path)

	list, err := repo.ListExemplars(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	c := New(repo, Options{})
	_, err = c.AddExemplar(ctx, "Economic study", "Regional", 0.9, types.ExemplarManual)
	require.NoError(t, err)

	reopened := New(NewFileRepository(path), Options{})
	all, err := reopened.Exemplars(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Economic study", all[0].Title)
	assert.Equal(t, types.ExemplarManual, all[0].Source)
}
