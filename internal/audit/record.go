package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/skypro1111/voxgate/internal/affect"
	"github.com/skypro1111/voxgate/internal/matching"
)

// Kind identifies the decision a record describes
type Kind string

const (
	KindRecognition  Kind = "recognition"
	KindVerification Kind = "verification"
	KindAffect       Kind = "affect"
	KindEnrollment   Kind = "enrollment"
)

// ParseKind validates a kind name. The empty string is accepted as "any".
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case "", KindRecognition, KindVerification, KindAffect, KindEnrollment:
		return k, nil
	default:
		return "", fmt.Errorf("unknown audit kind %q", s)
	}
}

// Enrollment is the outcome of a registered sample
type Enrollment struct {
	SampleIndex int  `json:"sample_index"`
	Registered  int  `json:"registered_count"`
	IsComplete  bool `json:"is_complete"`
}

// Record is an immutable snapshot of one decision
type Record struct {
	ID           string           `json:"id"`
	Kind         Kind             `json:"kind"`
	SubjectID    string           `json:"subject_id,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
	Latency      time.Duration    `json:"latency"`
	InputQuality float64          `json:"input_quality"`
	ArchiveKey   string           `json:"archive_key,omitempty"`
	Match        *matching.Result `json:"match,omitempty"`
	Affect       *affect.Result   `json:"affect,omitempty"`
	Enrollment   *Enrollment      `json:"enrollment,omitempty"`
}

// Clone returns a deep copy
func (r Record) Clone() Record {
	r.Match = r.Match.Clone()
	r.Affect = r.Affect.Clone()
	if r.Enrollment != nil {
		e := *r.Enrollment
		r.Enrollment = &e
	}
	return r
}

// Filter selects records for List. Zero values match everything.
type Filter struct {
	Kind      Kind
	SubjectID string
	Limit     int
}

func (f Filter) matches(r Record) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.SubjectID != "" && r.SubjectID != f.SubjectID {
		return false
	}
	return true
}

// Sink persists records. Records are only ever inserted.
type Sink interface {
	Append(ctx context.Context, r Record) error
	// List returns matching records, newest first.
	List(ctx context.Context, f Filter) ([]Record, error)
	Close() error
}
