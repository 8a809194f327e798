// Package config loads the server configuration from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-scoped-auth"
)

// MinSigningKeyLength is the shortest HS256 secret accepted
const MinSigningKeyLength = 32

// Config is read once at start-up. The signing key is never reloaded.
type Config struct {
	HTTPAddr        string        `env:"AUTH_HTTP_ADDR"          envDefault:":8572"`
	SigningKey      string        `env:"AUTH_SIGNING_KEY,required" mask:"filled32"`
	DatabaseDSN     string        `env:"AUTH_DATABASE_DSN"       envDefault:"file:auth.db?cache=shared"`
	LoginTTL        time.Duration `env:"AUTH_LOGIN_TTL"          envDefault:"168h"`
	ResetTTL        time.Duration `env:"AUTH_RESET_TTL"          envDefault:"31m"`
	VerifyTTL       time.Duration `env:"AUTH_VERIFY_TTL"         envDefault:"168h"`
	BcryptCost      int           `env:"AUTH_BCRYPT_COST"        envDefault:"14"`
	TokenLookup     string        `env:"AUTH_TOKEN_LOOKUP"       envDefault:"header:Authorization"`
	AuthScheme      string        `env:"AUTH_SCHEME"             envDefault:"Bearer"`
	ContextKey      string        `env:"AUTH_CONTEXT_KEY"        envDefault:"user"`
	RateLimitMax    int           `env:"AUTH_RATE_LIMIT_MAX"     envDefault:"10"`
	RateLimitWindow time.Duration `env:"AUTH_RATE_LIMIT_WINDOW"  envDefault:"60s"`
	MailFrom        string        `env:"AUTH_MAIL_FROM"          envDefault:"no-reply@example.com"`
	VerifyURL       string        `env:"AUTH_VERIFY_URL"`
	AppName         string        `env:"AUTH_APP_NAME"           envDefault:"Scoped Auth"`
	RequestTimeout  time.Duration `env:"AUTH_REQUEST_TIMEOUT"    envDefault:"10s"`
	HashedIDs       bool          `env:"AUTH_HASHED_IDS"         envDefault:"false"`
	Debug           bool          `env:"AUTH_DEBUG"              envDefault:"false"`
}

var _ auth.Config = Config{}

// Load parses the process environment and validates the result
func Load() (Config, error) {
	return load(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment
func LoadFrom(vars map[string]string) (Config, error) {
	return load(env.Options{Environment: vars})
}

func load(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryValidation, "parse env")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration").
			WithMetadata(map[string]any{
				"fields": auth.ValidationErrorsToMap(err),
			})
	}

	return cfg, nil
}

// Validate will run validation rules
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.HTTPAddr, validation.Required),
		validation.Field(&c.SigningKey, validation.Required, validation.Length(MinSigningKeyLength, 0)),
		validation.Field(&c.DatabaseDSN, validation.Required),
		validation.Field(&c.LoginTTL, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.ResetTTL, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.VerifyTTL, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.BcryptCost, validation.Required, validation.Min(bcrypt.MinCost), validation.Max(bcrypt.MaxCost)),
		validation.Field(&c.TokenLookup, validation.Required),
		validation.Field(&c.ContextKey, validation.Required),
		validation.Field(&c.RateLimitMax, validation.Required, validation.Min(1)),
		validation.Field(&c.RateLimitWindow, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.MailFrom, validation.Required, is.Email),
		validation.Field(&c.VerifyURL, is.RequestURL),
		validation.Field(&c.RequestTimeout, validation.Required, validation.Min(time.Second)),
	)
}

func (c Config) GetSigningKey() string {
	return c.SigningKey
}

func (c Config) GetLoginTTL() time.Duration {
	return c.LoginTTL
}

func (c Config) GetResetTTL() time.Duration {
	return c.ResetTTL
}

func (c Config) GetVerifyTTL() time.Duration {
	return c.VerifyTTL
}

func (c Config) GetRequestTimeout() time.Duration {
	return c.RequestTimeout
}

func (c Config) GetBcryptCost() int {
	return c.BcryptCost
}

func (c Config) GetContextKey() string {
	return c.ContextKey
}

func (c Config) GetTokenLookup() string {
	return c.TokenLookup
}

func (c Config) GetAuthScheme() string {
	return c.AuthScheme
}

func (c Config) GetVerifyURL() string {
	return c.VerifyURL
}

