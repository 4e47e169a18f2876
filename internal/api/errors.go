package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	apperrors "github.com/mohallaa/mohallaa/internal/errors"
	"github.com/mohallaa/mohallaa/pkg/remote"
)

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"posts/p1 not found"`
	Details map[string]any `json:"details,omitempty"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body:   apiErrorBody{Code: code, Message: message, Details: details},
	}
}

// installErrorEnvelope routes huma's own errors through the envelope.
func installErrorEnvelope() {
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, errorDetails(errs))
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		return newAPIError(status, "", msg, errorDetails(errs))
	}
}

func errorDetails(errs []error) map[string]any {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			msgs = append(msgs, e.Error())
		}
	}
	return map[string]any{"errors": msgs}
}

// handleError maps backend errors onto HTTP statuses. Remote codes pass
// through unchanged so clients can rebuild a remote.Error.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newAPIError(http.StatusGatewayTimeout, "timeout", "request timed out", nil)
	}

	var re *remote.Error
	if errors.As(err, &re) {
		switch re.Code {
		case remote.CodeNotFound:
			return newAPIError(http.StatusNotFound, re.Code, re.Message, nil)
		case remote.CodeConflict:
			return newAPIError(http.StatusConflict, re.Code, re.Message, nil)
		case remote.CodeInvalid:
			return newAPIError(http.StatusBadRequest, re.Code, re.Message, nil)
		case remote.CodeUnavailable:
			return newAPIError(http.StatusServiceUnavailable, re.Code, re.Message, nil)
		}
	}

	var ae *apperrors.Error
	if errors.As(err, &ae) {
		switch ae.Category {
		case apperrors.CategoryAuth:
			return newAPIError(http.StatusUnauthorized, ae.Code, ae.Message, nil)
		case apperrors.CategoryValidation:
			return newAPIError(http.StatusBadRequest, ae.Code, ae.Message, nil)
		}
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return remote.CodeInvalid
	case http.StatusNotFound:
		return remote.CodeNotFound
	case http.StatusConflict:
		return remote.CodeConflict
	case http.StatusUnauthorized:
		return apperrors.CodeAuthRequired
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}
