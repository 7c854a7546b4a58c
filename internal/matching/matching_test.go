package matching

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/voxgate/internal/domain"
	"github.com/skypro1111/voxgate/internal/store"
)

var probe = domain.Embedding{Vector: []float32{1, 0}, Model: "ecapa-tdnn", ModelVersion: "1"}

// at returns a unit vector whose cosine with probe is sim
func at(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func entry(id string, ordinal uint64, sims ...float64) store.Entry {
	e := store.Entry{IdentityID: id, Ordinal: ordinal}
	for i, s := range sims {
		e.Samples = append(e.Samples, store.Sample{
			IdentityID: id,
			Index:      i,
			Embedding:  domain.Embedding{Vector: at(s)},
		})
	}
	return e
}

func scenarioGallery() []store.Entry {
	return []store.Entry{
		entry("A", 0, 0.50),
		entry("B", 1, 0.82),
		entry("C", 2, 0.61),
	}
}

func ids(r *Result) []string {
	out := make([]string, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		out = append(out, c.IdentityID)
	}
	return out
}

func TestRecognizeAccepts(t *testing.T) {
	r, err := Recognize(probe, scenarioGallery(), 0.75, 0)
	require.NoError(t, err)

	assert.True(t, r.Accepted)
	require.NotNil(t, r.Selected)
	assert.Equal(t, "B", *r.Selected)
	assert.InDelta(t, 0.82, r.Confidence, 1e-6)
	assert.Equal(t, 0.75, r.Threshold)
	assert.Equal(t, []string{"B", "C", "A"}, ids(r))
	assert.Equal(t, "ecapa-tdnn", r.Probe.Model)
}

func TestRecognizeRejectsBelowThreshold(t *testing.T) {
	r, err := Recognize(probe, scenarioGallery(), 0.90, 0)
	require.NoError(t, err)

	assert.False(t, r.Accepted)
	assert.Nil(t, r.Selected)
	assert.InDelta(t, 0.82, r.Confidence, 1e-6)
	assert.Equal(t, []string{"B", "C", "A"}, ids(r))
}

func TestRecognizeBestSamplePerIdentity(t *testing.T) {
	gallery := []store.Entry{
		entry("A", 0, 0.2, 0.9, 0.4),
		entry("B", 1, 0.7),
	}

	r, err := Recognize(probe, gallery, 0.5, 0)
	require.NoError(t, err)
	require.Len(t, r.Candidates, 2)
	assert.Equal(t, "A", r.Candidates[0].IdentityID)
	assert.Equal(t, 1, r.Candidates[0].SampleIndex)
	assert.InDelta(t, 0.9, r.Candidates[0].Similarity, 1e-6)
}

func TestRecognizeTieBreaksByInsertionOrder(t *testing.T) {
	// Gallery order differs from insertion order on purpose.
	gallery := []store.Entry{
		entry("late", 7, 0.8),
		entry("early", 3, 0.8),
	}

	r, err := Recognize(probe, gallery, 0.5, 0)
	require.NoError(t, err)
	assert.Equal(t, "early", *r.Selected)
	assert.Equal(t, []string{"early", "late"}, ids(r))
}

func TestRecognizeDeterministic(t *testing.T) {
	first, err := Recognize(probe, scenarioGallery(), 0.75, 0)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := Recognize(probe, scenarioGallery(), 0.75, 0)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRecognizeSelfSimilarity(t *testing.T) {
	v, err := domain.Normalize([]float32{0.3, -1.2, 0.5, 2})
	require.NoError(t, err)
	self := domain.Embedding{Vector: v}

	gallery := []store.Entry{{
		IdentityID: "alice",
		Samples:    []store.Sample{{IdentityID: "alice", Embedding: self}},
	}}

	r, err := Recognize(self, gallery, 0.99, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r.Confidence, 1e-6)
	assert.True(t, r.Accepted)
}

func TestRecognizeTopKKeepsDecision(t *testing.T) {
	r, err := Recognize(probe, scenarioGallery(), 0.75, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, ids(r))
	assert.True(t, r.Accepted)

	r, err = Recognize(probe, scenarioGallery(), 0.75, 10)
	require.NoError(t, err)
	assert.Len(t, r.Candidates, 3)
}

func TestRecognizeErrors(t *testing.T) {
	_, err := Recognize(probe, nil, 0.75, 0)
	assert.ErrorIs(t, err, domain.ErrEmptyGallery)

	_, err = Recognize(probe, []store.Entry{{IdentityID: "empty"}}, 0.75, 0)
	assert.ErrorIs(t, err, domain.ErrEmptyGallery)

	bad := []store.Entry{{
		IdentityID: "alice",
		Samples:    []store.Sample{{Embedding: domain.Embedding{Vector: []float32{1, 0, 0}}}},
	}}
	_, err = Recognize(probe, bad, 0.75, 0)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = Recognize(domain.Embedding{}, scenarioGallery(), 0.75, 0)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestCosine(t *testing.T) {
	sim, err := Cosine([]float32{1, 0}, []float32{0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)

	sim, err = Cosine([]float32{1, 1}, []float32{-1, -1})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, sim, 1e-12)
}

func TestResultClone(t *testing.T) {
	r, err := Recognize(probe, scenarioGallery(), 0.75, 0)
	require.NoError(t, err)

	c := r.Clone()
	c.Candidates[0].IdentityID = "changed"
	*c.Selected = "changed"

	assert.Equal(t, "B", r.Candidates[0].IdentityID)
	assert.Equal(t, "B", *r.Selected)
}
