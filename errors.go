package auth

import (
	"context"
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidToken       = "INVALID_TOKEN"
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeForbidden          = "FORBIDDEN"
	TextCodeUserExists         = "USER_EXISTS"
	TextCodeResetRequest       = "PASSWORD_RESET_REQUEST_FAILED"
	TextCodeInvalidID          = "INVALID_ID"
	TextCodeNotification       = "NOTIFICATION_FAILED"
	TextCodeTimeout            = "OPERATION_TIMEOUT"
	TextCodeValidation         = "VALIDATION_ERROR"
)

// ErrInvalidToken covers bad signatures, wrong scope and expiry alike
var ErrInvalidToken = goerrors.New("Invalid token", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeInvalidToken)

// ErrInvalidCredentials covers unknown users and wrong passwords alike
var ErrInvalidCredentials = goerrors.New("Invalid credentials", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeInvalidCredentials)

// ErrForbidden is returned when an authenticated identity lacks the role or
// ownership a route requires
var ErrForbidden = goerrors.New("Forbidden resource", goerrors.CategoryAuthz).
	WithCode(goerrors.CodeForbidden).
	WithTextCode(TextCodeForbidden)

// ErrUserExists is returned by registration for a taken email
var ErrUserExists = goerrors.New("User with this email already exists", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode(TextCodeUserExists)

// ErrPasswordResetRequest is the single answer for any failed reset request
var ErrPasswordResetRequest = goerrors.New("Unable to process password reset request", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode(TextCodeResetRequest)

// ErrInvalidID is returned when a path id is not a valid identifier
var ErrInvalidID = goerrors.New("Invalid ID", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode(TextCodeInvalidID)

// ErrNotificationFailed is returned when the notifier could not deliver a
// message after the flow already changed state
var ErrNotificationFailed = goerrors.New("Unable to deliver notification", goerrors.CategoryInternal).
	WithCode(http.StatusBadGateway).
	WithTextCode(TextCodeNotification)

// ErrOperationTimeout is returned when a collaborator call is cancelled or
// exceeds the flow deadline
var ErrOperationTimeout = goerrors.New("Operation timed out", goerrors.CategoryOperation).
	WithCode(http.StatusServiceUnavailable).
	WithTextCode(TextCodeTimeout)

// ErrUserNotFound is the UserStore answer for absent records. It never
// reaches the HTTP boundary as-is.
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithCode(goerrors.CodeBadRequest)

// IsUserNotFound reports whether err is the store's not-found answer
func IsUserNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrUserNotFound) || goerrors.IsNotFound(err)
}

// internalError wraps a collaborator failure. Context cancellation maps to
// ErrOperationTimeout so callers are never left waiting.
func internalError(err error, msg string) error {
	if isContextError(err) {
		return ErrOperationTimeout
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithCode(goerrors.CodeInternal)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// validationError converts a payload validation failure into a bad request
func validationError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeValidation).
		WithMetadata(map[string]any{
			"fields": ValidationErrorsToMap(err),
		})
}
