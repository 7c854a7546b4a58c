package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by the pipeline components. Typed errors below
// match them through errors.Is so callers never need to type-switch.
var (
	// Input errors.

	// ErrAudioDecode indicates the payload could not be decoded into PCM.
	ErrAudioDecode = errors.New("audio decode failed")

	// ErrDurationOutOfRange indicates the decoded audio is too short or too long.
	ErrDurationOutOfRange = errors.New("audio duration out of range")

	// Quality errors.

	// ErrQualityTooLow indicates the composite quality score is below the minimum.
	ErrQualityTooLow = errors.New("audio quality too low")

	// Capability errors.

	// ErrModelNotInitialized indicates a capability was used before a successful initialization.
	ErrModelNotInitialized = errors.New("model not initialized")

	// ErrModelInit indicates every configured source failed to load.
	ErrModelInit = errors.New("model initialization failed")

	// Enrollment and matching preconditions.

	ErrEnrollmentCapExceeded = errors.New("enrollment sample cap exceeded")
	ErrEmptyGallery          = errors.New("gallery is empty")
	ErrDimensionMismatch     = errors.New("embedding dimension mismatch")
	ErrInvalidDistribution   = errors.New("invalid probability distribution")

	ErrIdentityNotFound = errors.New("identity not found")
	ErrSampleNotFound   = errors.New("sample not found")
	ErrInvalidIdentity  = errors.New("invalid identity id")
)

// AudioDecodeError wraps the decoder failure reason.
type AudioDecodeError struct {
	Reason string
	Err    error
}

func (e *AudioDecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrAudioDecode, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrAudioDecode, e.Reason)
}

func (e *AudioDecodeError) Is(target error) bool { return target == ErrAudioDecode }

func (e *AudioDecodeError) Unwrap() error { return e.Err }

// DurationOutOfRangeError reports the measured duration and the accepted bounds in seconds.
type DurationOutOfRangeError struct {
	Duration float64
	Min      float64
	Max      float64
}

func (e *DurationOutOfRangeError) Error() string {
	return fmt.Sprintf("%s: %.2fs not within [%.2fs, %.2fs]", ErrDurationOutOfRange, e.Duration, e.Min, e.Max)
}

func (e *DurationOutOfRangeError) Is(target error) bool { return target == ErrDurationOutOfRange }

// QualityTooLowError carries the computed score so the caller can re-prompt.
type QualityTooLowError struct {
	Score     float64
	Threshold float64
}

func (e *QualityTooLowError) Error() string {
	return fmt.Sprintf("%s: score %.3f below threshold %.3f", ErrQualityTooLow, e.Score, e.Threshold)
}

func (e *QualityTooLowError) Is(target error) bool { return target == ErrQualityTooLow }

// ModelInitError lists the failure of every source that was attempted.
type ModelInitError struct {
	Capability string
	Attempts   []SourceFailure
}

// SourceFailure is a single failed load attempt.
type SourceFailure struct {
	Source string
	Err    error
}

func (e *ModelInitError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("%s: %s: no sources configured", ErrModelInit, e.Capability)
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Source, a.Err))
	}
	return fmt.Sprintf("%s: %s: %s", ErrModelInit, e.Capability, strings.Join(parts, "; "))
}

func (e *ModelInitError) Is(target error) bool { return target == ErrModelInit }

// EnrollmentCapExceededError reports the identity that is already full.
type EnrollmentCapExceededError struct {
	IdentityID string
	Cap        int
}

func (e *EnrollmentCapExceededError) Error() string {
	return fmt.Sprintf("%s: identity %q already has %d samples", ErrEnrollmentCapExceeded, e.IdentityID, e.Cap)
}

func (e *EnrollmentCapExceededError) Is(target error) bool { return target == ErrEnrollmentCapExceeded }

// IsInputError reports whether err belongs to the caller-input class.
func IsInputError(err error) bool {
	return errors.Is(err, ErrAudioDecode) || errors.Is(err, ErrDurationOutOfRange)
}

// IsCapabilityError reports whether err means the model capability is unavailable.
func IsCapabilityError(err error) bool {
	return errors.Is(err, ErrModelNotInitialized) || errors.Is(err, ErrModelInit)
}
