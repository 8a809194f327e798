package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

const msgInternalServerError = "Internal server error"

// ErrorResponse is the JSON body written for every failed request
type ErrorResponse struct {
	StatusCode int            `json:"statusCode"`
	Message    string         `json:"message"`
	Error      string         `json:"error"`
	TextCode   string         `json:"textCode,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// HTTPErrorHandler is a fiber ErrorHandler using the package default logger
func HTTPErrorHandler(c *fiber.Ctx, err error) error {
	return NewHTTPErrorHandler(defLogger{})(c, err)
}

// NewHTTPErrorHandler renders errors as ErrorResponse. Messages of internal
// failures are never written to the client.
func NewHTTPErrorHandler(logger Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = defLogger{}
	}

	return func(c *fiber.Ctx, err error) error {
		res := ToErrorResponse(err)

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			logger.Info(
				"http error handler",
				"path", c.Path(),
				"status", res.StatusCode,
				"error", richErr.Message,
				"category", richErr.Category,
				"details", print.MaybePrettyJSON(richErr.Metadata),
			)
		} else {
			logger.Info("http error handler", "path", c.Path(), "status", res.StatusCode, "error", err)
		}

		return c.Status(res.StatusCode).JSON(res)
	}
}

// ToErrorResponse maps err to its response body
func ToErrorResponse(err error) ErrorResponse {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		status := richErr.Code
		if status < 400 || status > 599 {
			status = statusForCategory(richErr)
		}

		res := ErrorResponse{
			StatusCode: status,
			Message:    richErr.Message,
			Error:      http.StatusText(status),
			TextCode:   richErr.TextCode,
		}

		if status == http.StatusInternalServerError {
			res.Message = msgInternalServerError
			res.TextCode = ""
		}

		if fields, ok := richErr.Metadata["fields"].(map[string]any); ok && len(fields) > 0 {
			res.Fields = fields
		}
		return res
	}

	if ferr, ok := err.(*fiber.Error); ok {
		return ErrorResponse{
			StatusCode: ferr.Code,
			Message:    ferr.Message,
			Error:      http.StatusText(ferr.Code),
		}
	}

	return ErrorResponse{
		StatusCode: http.StatusInternalServerError,
		Message:    msgInternalServerError,
		Error:      http.StatusText(http.StatusInternalServerError),
	}
}

func statusForCategory(richErr *goerrors.Error) int {
	switch richErr.Category {
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryOperation:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
