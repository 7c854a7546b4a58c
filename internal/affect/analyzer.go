package affect

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/skypro1111/voxgate/internal/domain"
)

// NeutralLabel is excluded from the intensity average
const NeutralLabel = "neutral"

// SecondaryMinimum is the smallest probability reported as a secondary label
const SecondaryMinimum = 0.1

const sumTolerance = 1e-4

// DefaultLabels is the label order of the affect classifier
var DefaultLabels = []string{"neutral", "happy", "sad", "angry", "fear", "disgust", "surprise"}

// Level is a presentation tier
type Level string

// Confidence tiers
const (
	ConfidenceVeryHigh Level = "very_high"
	ConfidenceHigh     Level = "high"
	ConfidenceMedium   Level = "medium"
	ConfidenceLow      Level = "low"
	ConfidenceVeryLow  Level = "very_low"
)

// Intensity tiers
const (
	IntensityStrong   Level = "strong"
	IntensityModerate Level = "moderate"
	IntensityMild     Level = "mild"
	IntensitySubtle   Level = "subtle"
)

// Complexity tiers
const (
	ComplexityComplex Level = "complex"
	ComplexityMixed   Level = "mixed"
	ComplexityClear   Level = "clear"
	ComplexityPure    Level = "pure"
)

// LabelProbability pairs a label with its probability
type LabelProbability struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Result is the affect reading of one distribution
type Result struct {
	Distribution    []LabelProbability `json:"distribution"`
	Dominant        string             `json:"dominant"`
	Confidence      float64            `json:"confidence"`
	Intensity       float64            `json:"intensity"`
	Complexity      float64            `json:"complexity"`
	ConfidenceLevel Level              `json:"confidence_level"`
	IntensityLevel  Level              `json:"intensity_level"`
	ComplexityLevel Level              `json:"complexity_level"`
	Secondary       []LabelProbability `json:"secondary"`
}

// Clone returns a deep copy
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Distribution = append([]LabelProbability(nil), r.Distribution...)
	out.Secondary = append([]LabelProbability(nil), r.Secondary...)
	return &out
}

// Probability returns the probability of a label, or 0 when it is unknown
func (r *Result) Probability(label string) float64 {
	for _, lp := range r.Distribution {
		if lp.Label == label {
			return lp.Probability
		}
	}
	return 0
}

// Analyzer derives affect statistics over a fixed label order
type Analyzer struct {
	labels []string
}

// NewAnalyzer creates an analyzer. At least two distinct labels are needed
// so that complexity is defined.
func NewAnalyzer(labels []string) (*Analyzer, error) {
	if len(labels) < 2 {
		return nil, fmt.Errorf("affect: need at least 2 labels, got %d", len(labels))
	}
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		if l == "" {
			return nil, errors.New("affect: empty label")
		}
		if seen[l] {
			return nil, fmt.Errorf("affect: duplicate label %q", l)
		}
		seen[l] = true
	}
	return &Analyzer{labels: append([]string(nil), labels...)}, nil
}

// Labels returns the label order
func (a *Analyzer) Labels() []string {
	return append([]string(nil), a.labels...)
}

// Analyze validates the distribution and derives dominant label, intensity,
// normalized entropy and their tiers
func (a *Analyzer) Analyze(dist []float64) (*Result, error) {
	if err := a.validate(dist); err != nil {
		return nil, err
	}

	result := &Result{Distribution: make([]LabelProbability, len(dist))}

	dominant := 0
	for i, p := range dist {
		result.Distribution[i] = LabelProbability{Label: a.labels[i], Probability: p}
		// Strict comparison keeps the earliest label on ties.
		if p > dist[dominant] {
			dominant = i
		}
	}
	result.Dominant = a.labels[dominant]
	result.Confidence = dist[dominant]

	result.Intensity = a.intensity(dist)
	result.Complexity = complexity(dist)

	result.ConfidenceLevel = ConfidenceLevelOf(result.Confidence)
	result.IntensityLevel = IntensityLevelOf(result.Intensity)
	result.ComplexityLevel = ComplexityLevelOf(result.Complexity)

	for i, p := range dist {
		if i != dominant && p >= SecondaryMinimum {
			result.Secondary = append(result.Secondary, LabelProbability{Label: a.labels[i], Probability: p})
		}
	}
	sort.SliceStable(result.Secondary, func(i, j int) bool {
		return result.Secondary[i].Probability > result.Secondary[j].Probability
	})

	return result, nil
}

func (a *Analyzer) validate(dist []float64) error {
	if len(dist) != len(a.labels) {
		return fmt.Errorf("%w: %d probabilities for %d labels", domain.ErrInvalidDistribution, len(dist), len(a.labels))
	}
	var sum float64
	for i, p := range dist {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return fmt.Errorf("%w: %s has probability %v", domain.ErrInvalidDistribution, a.labels[i], p)
		}
		sum += p
	}
	if math.Abs(sum-1) > sumTolerance {
		return fmt.Errorf("%w: probabilities sum to %f", domain.ErrInvalidDistribution, sum)
	}
	return nil
}

// intensity is the mean probability of the non-neutral labels
func (a *Analyzer) intensity(dist []float64) float64 {
	var sum float64
	n := 0
	for i, p := range dist {
		if a.labels[i] == NeutralLabel {
			continue
		}
		sum += p
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// complexity is the Shannon entropy normalized by log2 of the label count
func complexity(dist []float64) float64 {
	var h float64
	for _, p := range dist {
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	c := h / math.Log2(float64(len(dist)))
	return math.Max(0, math.Min(1, c))
}

// ConfidenceLevelOf maps a confidence to its tier
func ConfidenceLevelOf(c float64) Level {
	switch {
	case c >= 0.8:
		return ConfidenceVeryHigh
	case c >= 0.6:
		return ConfidenceHigh
	case c >= 0.4:
		return ConfidenceMedium
	case c >= 0.2:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}

// IntensityLevelOf maps an intensity to its tier
func IntensityLevelOf(i float64) Level {
	switch {
	case i >= 0.7:
		return IntensityStrong
	case i >= 0.5:
		return IntensityModerate
	case i >= 0.3:
		return IntensityMild
	default:
		return IntensitySubtle
	}
}

// ComplexityLevelOf maps a complexity to its tier
func ComplexityLevelOf(c float64) Level {
	switch {
	case c >= 0.7:
		return ComplexityComplex
	case c >= 0.5:
		return ComplexityMixed
	case c >= 0.3:
		return ComplexityClear
	default:
		return ComplexityPure
	}
}
