package domain

import (
	"fmt"
	"math"
	"strings"
)

// Embedding is a unit-length feature vector tagged with the model that produced it.
type Embedding struct {
	Vector       []float32 `json:"vector" msgpack:"vector"`
	Model        string    `json:"model" msgpack:"model"`
	ModelVersion string    `json:"model_version" msgpack:"model_version"`
}

// Dimension returns the vector length.
func (e Embedding) Dimension() int { return len(e.Vector) }

// Norm returns the L2 norm of the vector.
func (e Embedding) Norm() float64 {
	var sum float64
	for _, v := range e.Vector {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Clone returns a deep copy.
func (e Embedding) Clone() Embedding {
	c := e
	c.Vector = append([]float32(nil), e.Vector...)
	return c
}

// Normalize returns a copy of vec scaled to unit length. It fails on
// zero or non-finite vectors since those cannot be compared by cosine.
func Normalize(vec []float32) ([]float32, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("cannot normalize empty vector")
	}
	var sum float64
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("non-finite value at index %d", i)
		}
		sum += f * f
	}
	if sum == 0 {
		return nil, fmt.Errorf("cannot normalize zero vector")
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out, nil
}

// ValidateIdentityID rejects ids that would break store key layouts.
func ValidateIdentityID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentity)
	}
	if len(id) > 128 {
		return fmt.Errorf("%w: longer than 128 bytes", ErrInvalidIdentity)
	}
	if strings.ContainsAny(id, "#/\x00") {
		return fmt.Errorf("%w: %q contains a reserved character", ErrInvalidIdentity, id)
	}
	return nil
}
