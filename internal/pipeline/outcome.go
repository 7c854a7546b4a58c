package pipeline

import (
	"context"
	"errors"

	"github.com/skypro1111/voxgate/internal/domain"
)

// Outcome labels used in metrics and logs
const (
	OutcomeOK               = "ok"
	OutcomeRejected         = "rejected"
	OutcomeInputError       = "input_error"
	OutcomeQualityTooLow    = "quality_too_low"
	OutcomeModelUnavailable = "model_unavailable"
	OutcomeCapExceeded      = "cap_exceeded"
	OutcomeEmptyGallery     = "empty_gallery"
	OutcomeNotFound         = "not_found"
	OutcomeCanceled         = "canceled"
	OutcomeError            = "error"
)

// Outcome classifies an operation error
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case domain.IsInputError(err), errors.Is(err, domain.ErrInvalidIdentity):
		return OutcomeInputError
	case errors.Is(err, domain.ErrQualityTooLow):
		return OutcomeQualityTooLow
	case domain.IsCapabilityError(err):
		return OutcomeModelUnavailable
	case errors.Is(err, domain.ErrEnrollmentCapExceeded):
		return OutcomeCapExceeded
	case errors.Is(err, domain.ErrEmptyGallery):
		return OutcomeEmptyGallery
	case errors.Is(err, domain.ErrIdentityNotFound), errors.Is(err, domain.ErrSampleNotFound):
		return OutcomeNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}
