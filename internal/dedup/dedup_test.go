package dedup

import (
	"crypto/rand"
	"encoding/hex"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/tender-radar/internal/types"
)

func TestAssignID_Deterministic(t *testing.T) {
	a := AssignID("https://portal.example/notice/1")
	b := AssignID("https://portal.example/notice/1")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
	_, err := hex.DecodeString(a)
	assert.NoError(t, err)
	assert.NotEqual(t, a, AssignID("https://portal.example/notice/2"))
}

func TestAssignID_NoCollisions(t *testing.T) {
	const n = 10000
	keys := make(map[string]struct{}, n)
	ids := make(map[string]string, n)
	buf := make([]byte, 16)
	for len(keys) < n {
		_, err := rand.Read(buf)
		require.NoError(t, err)
		key := hex.EncodeToString(buf)
		if _, dup := keys[key]; dup {
			continue
		}
		keys[key] = struct{}{}

		id := AssignID(key)
		if prev, clash := ids[id]; clash {
			t.Fatalf("keys %q and %q share id %s", prev, key, id)
		}
		ids[id] = key
	}
	assert.Len(t, ids, n)
}

func TestIngest_Idempotent(t *testing.T) {
	batch := []types.Candidate{
		{NaturalKey: "k1", Title: "Economic study", Source: types.SourceAPIA},
		{NaturalKey: "k2", Title: "Road works", Source: types.SourceAPIA},
	}

	d := New(nil)
	first := d.Ingest(slices.Values(batch))
	require.Len(t, first, 2)
	ids := make([]string, 0, 2)
	for id := range first {
		ids = append(ids, id)
	}

	second := d.Ingest(slices.Values(batch))
	assert.Len(t, second, 2)
	for _, id := range ids {
		assert.Contains(t, second, id)
	}
}

func TestIngest_ABA(t *testing.T) {
	a1 := types.Candidate{NaturalKey: "A", Title: "Market study", SourceTags: []string{"cpv:79300000"}}
	b := types.Candidate{NaturalKey: "B", Title: "Bridge repair"}
	a2 := types.Candidate{NaturalKey: "A", Title: "Market study (corrigendum)", Description: "late detail", SourceTags: []string{"kw:study"}}

	d := New(nil)
	out := d.Ingest(slices.Values([]types.Candidate{a1, b, a2}))
	require.Len(t, out, 2)

	tender := out[AssignID("A")]
	require.NotNil(t, tender)
	assert.Equal(t, "Market study", tender.Title)
	assert.Equal(t, "late detail", tender.Description)
	assert.Equal(t, []string{"cpv:79300000", "kw:study"}, tender.SourceTags)

	ordered := d.Tenders()
	require.Len(t, ordered, 2)
	assert.Equal(t, "A", ordered[0].NaturalKey)
	assert.Equal(t, "B", ordered[1].NaturalKey)
}

func TestAdd_EmptyKeysNeverCollide(t *testing.T) {
	d := New(nil)
	t1, new1 := d.Add(types.Candidate{Source: types.SourceAPIA})
	t2, new2 := d.Add(types.Candidate{Source: types.SourceAPIA})

	assert.True(t, new1)
	assert.True(t, new2)
	assert.NotEqual(t, t1.ID, t2.ID)
	assert.True(t, strings.HasPrefix(t1.NaturalKey, "api_a#1:"))
	assert.True(t, strings.HasPrefix(t2.NaturalKey, "api_a#2:"))
	assert.Equal(t, 2, d.Len())
}

func TestAdd_EmptyKeyFallsBackToURLThenTitle(t *testing.T) {
	d := New(nil)
	byURL, _ := d.Add(types.Candidate{URL: "https://portal.example/n/9", Title: "Survey"})
	byTitle, _ := d.Add(types.Candidate{Title: "Road maintenance"})

	assert.Equal(t, "https://portal.example/n/9", byURL.NaturalKey)
	assert.Equal(t, AssignID("https://portal.example/n/9"), byURL.ID)
	assert.Equal(t, "Road maintenance", byTitle.NaturalKey)
}

func TestAdd_EmptyKeysDistinctAcrossBatches(t *testing.T) {
	first := New(nil)
	second := New(nil)
	a, _ := first.Add(types.Candidate{Source: types.SourceAPIA, Raw: []byte(`{"buyer":"Ghent"}`)})
	b, _ := second.Add(types.Candidate{Source: types.SourceAPIA, Raw: []byte(`{"buyer":"Liege"}`)})
	again, _ := New(nil).Add(types.Candidate{Source: types.SourceAPIA, Raw: []byte(`{"buyer":"Ghent"}`)})

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.ID, again.ID)
}

func TestAdd_ReportsNew(t *testing.T) {
	d := New(nil)
	_, created := d.Add(types.Candidate{NaturalKey: "x"})
	assert.True(t, created)
	_, created = d.Add(types.Candidate{NaturalKey: "x"})
	assert.False(t, created)
}
