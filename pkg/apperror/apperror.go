package apperror

import (
	"errors"
	"net/http"

	"github.com/helpq/helpq/internal/domain"
)

// AppError is the HTTP-facing error envelope.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *AppError) Error() string {
	return e.Message
}

func New(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

// Map converts an error into its transport envelope. Domain errors map by
// kind; a cooldown violation gets 429 so clients can back off. Anything
// unrecognized becomes an opaque 500.
func Map(err error) *AppError {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return &AppError{
			Code:    domainErr.Code,
			Message: domainErr.Message,
			Status:  statusForKind(domainErr),
		}
	}
	return &AppError{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred", Status: http.StatusInternalServerError}
}

func statusForKind(err *domain.DomainError) int {
	if errors.Is(err, domain.ErrCooldownActive) {
		return http.StatusTooManyRequests
	}
	switch err.Kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindStateConflict, domain.KindPolicy:
		return http.StatusConflict
	case domain.KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
