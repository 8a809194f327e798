package auth

import (
	"errors"
	"regexp"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// MinPasswordLength is the shortest password accepted on registration and
// reset
const MinPasswordLength = 8

var jwtPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*$`)

// LoginRequest payload
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// RegisterRequest is the registration payload
type RegisterRequest struct {
	Name     string `json:"name" form:"name"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
	Role     string `json:"role,omitempty" form:"role"`
	Picture  string `json:"picture,omitempty" form:"picture"`
}

// Validate will validate the payload
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.By(StrongPassword)),
		validation.Field(&r.Role, validation.In(string(RoleUser), string(RoleAdmin))),
		validation.Field(&r.Picture, is.URL),
	)
}

// Input converts the payload for the flow service
func (r RegisterRequest) Input() RegisterInput {
	return RegisterInput{
		Name:     r.Name,
		Email:    r.Email,
		Password: r.Password,
		Role:     Role(r.Role),
		Picture:  r.Picture,
	}
}

// ForgetRequest starts a password reset
type ForgetRequest struct {
	Email       string `json:"email" form:"email"`
	CallbackURL string `json:"callbackUrl" form:"callbackUrl"`
}

func (r ForgetRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.CallbackURL, validation.Required, is.RequestURL),
	)
}

// ResetRequest finalizes a password reset
type ResetRequest struct {
	Password string `json:"password" form:"password"`
	Token    string `json:"token" form:"token"`
}

func (r ResetRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.By(StrongPassword)),
		validation.Field(&r.Token, validation.Required, validation.Match(jwtPattern)),
	)
}

// TokenRequest carries a single token, used by verify-reset-token and
// validate
type TokenRequest struct {
	Token string `json:"token" form:"token"`
}

func (r TokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required, validation.Match(jwtPattern)),
	)
}

// ResendVerificationRequest asks for a new mail-confirmation token
type ResendVerificationRequest struct {
	Email string `json:"email" form:"email"`
}

func (r ResendVerificationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// StrongPassword requires MinPasswordLength characters with at least one
// lowercase, uppercase, digit and symbol.
func StrongPassword(value any) error {
	value, isNil := validation.Indirect(value)
	s, _ := value.(string)
	if isNil || s == "" {
		return nil
	}

	if len([]rune(s)) < MinPasswordLength {
		return errors.New("must be at least 8 characters long")
	}

	var lower, upper, digit, symbol bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	if !lower || !upper || !digit || !symbol {
		return errors.New("must contain lowercase, uppercase, digit and symbol characters")
	}
	return nil
}

// ValidationErrorsToMap flattens ozzo field errors into field => message
func ValidationErrorsToMap(err error) map[string]any {
	out := map[string]any{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}
	if err != nil {
		out["error"] = err.Error()
	}
	return out
}
