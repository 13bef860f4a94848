package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/veciapp/fiado/internal/account/domain"
	"github.com/veciapp/fiado/internal/creditgate"
	invoicedomain "github.com/veciapp/fiado/internal/invoice/domain"
	paymentdomain "github.com/veciapp/fiado/internal/payment/domain"
	relationshipdomain "github.com/veciapp/fiado/internal/relationship/domain"
	"github.com/veciapp/fiado/pkg/money"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
	ErrInternal       = errors.New("internal_error")

	errInvoiceNotPaid = errors.New("invoice_not_paid")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: strings.ReplaceAll(code, "_", " "),
				},
			},
		}
	}

	switch {
	case errors.Is(err, invoicedomain.ErrCreditNotAuthorized):
		return http.StatusForbidden, errorPayload{
			Type:    "credit_not_authorized",
			Message: "credit not authorized",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, relationshipdomain.ErrInvalidStore),
		errors.Is(err, relationshipdomain.ErrInvalidClient),
		errors.Is(err, relationshipdomain.ErrInvalidEmail),
		errors.Is(err, relationshipdomain.ErrInvalidCreditLimit),
		errors.Is(err, relationshipdomain.ErrInvalidStatus),
		errors.Is(err, invoicedomain.ErrInvalidStore),
		errors.Is(err, invoicedomain.ErrInvalidClient),
		errors.Is(err, invoicedomain.ErrInvalidInvoice),
		errors.Is(err, invoicedomain.ErrInvalidAmount),
		errors.Is(err, invoicedomain.ErrInvalidDueDate),
		errors.Is(err, invoicedomain.ErrInvalidStatus),
		errors.Is(err, paymentdomain.ErrInvalidStore),
		errors.Is(err, paymentdomain.ErrInvalidClient),
		errors.Is(err, paymentdomain.ErrInvalidInvoice),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidMethod),
		errors.Is(err, paymentdomain.ErrInvalidKind),
		errors.Is(err, accountdomain.ErrInvalidStore),
		errors.Is(err, accountdomain.ErrInvalidClient),
		errors.Is(err, creditgate.ErrInvalidStore),
		errors.Is(err, creditgate.ErrInvalidClient),
		errors.Is(err, creditgate.ErrInvalidAmount):
		return true
	default:
		return false
	}
}

// Conflicts are lifecycle violations: the request was well-formed but the
// current ledger state forbids it.
func isConflictError(err error) bool {
	switch {
	case errors.Is(err, relationshipdomain.ErrDuplicateInvitation),
		errors.Is(err, relationshipdomain.ErrInvalidTransition),
		errors.Is(err, relationshipdomain.ErrNotAccepted),
		errors.Is(err, invoicedomain.ErrNotAccepted),
		errors.Is(err, invoicedomain.ErrAlreadyPaid),
		errors.Is(err, paymentdomain.ErrNotAccepted),
		errors.Is(err, paymentdomain.ErrAlreadyPaid),
		errors.Is(err, paymentdomain.ErrInsufficientAdvanceBalance),
		errors.Is(err, paymentdomain.ErrOverpaymentRejected),
		errors.Is(err, errInvoiceNotPaid):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, relationshipdomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrNotFound),
		errors.Is(err, accountdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func classifyErrorForLog(err error) (string, string) {
	switch {
	case err == nil:
		return "", ""
	case asValidationErrors(err) != nil, isValidationError(err):
		return "validation_error", "invalid_request"
	case isConflictError(err):
		return "conflict", err.Error()
	case isNotFoundError(err):
		return "not_found", "not_found"
	case errors.Is(err, invoicedomain.ErrCreditNotAuthorized):
		return "forbidden", "credit_not_authorized"
	default:
		return "internal_error", "internal_error"
	}
}
