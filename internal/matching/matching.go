package matching

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/skypro1111/voxgate/internal/domain"
	"github.com/skypro1111/voxgate/internal/store"
)

// Candidate is one ranked gallery identity
type Candidate struct {
	IdentityID  string  `json:"identity_id"`
	Similarity  float64 `json:"similarity"`
	SampleIndex int     `json:"sample_index"`
	ordinal     uint64
}

// Probe describes the embedding that was matched
type Probe struct {
	Model        string  `json:"model"`
	ModelVersion string  `json:"model_version"`
	Quality      float64 `json:"quality"`
	Duration     float64 `json:"duration_seconds"`
}

// Result is the outcome of a recognition. A rejected match is a normal
// result, not an error.
type Result struct {
	Probe      Probe       `json:"probe"`
	Candidates []Candidate `json:"candidates"`
	Selected   *string     `json:"selected_identity"`
	Confidence float64     `json:"decision_confidence"`
	Threshold  float64     `json:"threshold_used"`
	Accepted   bool        `json:"accepted"`
}

// Clone returns a deep copy
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Candidates = append([]Candidate(nil), r.Candidates...)
	if r.Selected != nil {
		id := *r.Selected
		out.Selected = &id
	}
	return &out
}

// Recognize ranks the gallery by cosine similarity to the probe and accepts
// the best identity when its similarity reaches the threshold. Each
// identity scores with its best sample. Equal similarities keep gallery
// insertion order. topK limits the reported candidates (0 keeps all) and
// never changes the decision.
func Recognize(probe domain.Embedding, gallery []store.Entry, threshold float64, topK int) (*Result, error) {
	if probe.Dimension() == 0 {
		return nil, fmt.Errorf("%w: probe is empty", domain.ErrDimensionMismatch)
	}

	candidates := make([]Candidate, 0, len(gallery))
	for _, entry := range gallery {
		if len(entry.Samples) == 0 {
			continue
		}

		best := Candidate{IdentityID: entry.IdentityID, Similarity: math.Inf(-1), ordinal: entry.Ordinal}
		for _, s := range entry.Samples {
			sim, err := Cosine(probe.Vector, s.Embedding.Vector)
			if err != nil {
				return nil, fmt.Errorf("identity %s sample %d: %w", entry.IdentityID, s.Index, err)
			}
			if sim > best.Similarity {
				best.Similarity = sim
				best.SampleIndex = s.Index
			}
		}
		candidates = append(candidates, best)
	}

	if len(candidates) == 0 {
		return nil, domain.ErrEmptyGallery
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].ordinal < candidates[j].ordinal
	})

	top := candidates[0]
	result := &Result{
		Probe: Probe{
			Model:        probe.Model,
			ModelVersion: probe.ModelVersion,
		},
		Confidence: top.Similarity,
		Threshold:  threshold,
		Accepted:   top.Similarity >= threshold,
	}
	if result.Accepted {
		id := top.IdentityID
		result.Selected = &id
	}

	if topK > 0 && topK < len(candidates) {
		candidates = candidates[:topK]
	}
	result.Candidates = candidates

	return result, nil
}

// Cosine returns the cosine similarity of two vectors. A zero vector has
// similarity 0 with everything.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", domain.ErrDimensionMismatch, len(a), len(b))
	}

	x := make([]float64, len(a))
	y := make([]float64, len(b))
	for i := range a {
		x[i] = float64(a[i])
		y[i] = float64(b[i])
	}

	na, nb := floats.Norm(x, 2), floats.Norm(y, 2)
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return floats.Dot(x, y) / (na * nb), nil
}
