package handlers

import "github.com/samrith-ratana/e-commerce/internal/services"

// Stable error codes. Clients branch on these, not on messages.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeUnavailable      = "service_unavailable"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

func codeFor(k services.Kind) string {
	switch k {
	case services.KindValidation:
		return ErrCodeBadRequest
	case services.KindUnauthorized:
		return ErrCodeUnauthorized
	case services.KindForbidden:
		return ErrCodeForbidden
	case services.KindNotFound:
		return ErrCodeNotFound
	case services.KindConflict:
		return ErrCodeConflict
	case services.KindUnavailable:
		return ErrCodeUnavailable
	default:
		return ErrCodeInternal
	}
}
