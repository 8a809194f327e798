package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	goerrors "github.com/goliatone/go-errors"
)

const (
	// TemplateForget is the notifier template carrying the reset link
	TemplateForget = "forget"
	// TemplateMailConfirmation is the notifier template carrying the
	// verification token
	TemplateMailConfirmation = "mail-confirmation"
)

// Keys of the data handed to the Notifier
const (
	MailDataName        = "name"
	MailDataCallbackURL = "callbackUrl"
	MailDataVerifyURL   = "verifyUrl"
	MailDataToken       = "token"
	MailDataExpiresAt   = "expires_at"
	MailDataExpiresIn   = "expires_in"
)

// DefaultFlowTimeout bounds every flow, collaborator calls included
const DefaultFlowTimeout = 10 * time.Second

const (
	msgResetRequested    = "We sent you an email with a link to reset your password"
	msgPasswordChanged   = "Password changed successfully"
	msgVerificationAgain = "If the account needs verification, a confirmation email was sent"
)

// Config holds the options the flows and the gate read at start-up
type Config interface {
	GetSigningKey() string
	GetLoginTTL() time.Duration
	GetResetTTL() time.Duration
	GetVerifyTTL() time.Duration
	GetRequestTimeout() time.Duration
	GetBcryptCost() int
	GetContextKey() string
	GetTokenLookup() string
	GetAuthScheme() string
	GetVerifyURL() string
}

type missingComparer interface {
	CompareMissing(password string) bool
}

// TokenFlowService runs the login, password reset and email verification
// flows. It keeps no state between calls; everything a confirm step needs
// travels inside the token.
type TokenFlowService struct {
	users     UserStore
	codec     *TokenCodec
	passwords PasswordVerifier
	notifier  Notifier
	activity  ActivitySink
	logger    Logger
	loginTTL  time.Duration
	resetTTL  time.Duration
	verifyTTL time.Duration
	timeout   time.Duration
	verifyURL string
}

// NewTokenFlowService returns a service with the default TTLs
func NewTokenFlowService(users UserStore, codec *TokenCodec) *TokenFlowService {
	if users == nil {
		panic("AUTH: token flow service requires a UserStore")
	}
	if codec == nil {
		panic("AUTH: token flow service requires a TokenCodec")
	}

	return &TokenFlowService{
		users:     users,
		codec:     codec,
		notifier:  NotifierFunc(func(context.Context, string, string, map[string]any) error { return nil }),
		activity:  noopActivitySink{},
		logger:    defLogger{},
		loginTTL:  DefaultLoginTTL,
		resetTTL:  DefaultResetTTL,
		verifyTTL: DefaultVerifyTTL,
		timeout:   DefaultFlowTimeout,
	}
}

// WithConfig applies TTLs, timeout and bcrypt cost from cfg
func (s *TokenFlowService) WithConfig(cfg Config) *TokenFlowService {
	if cfg == nil {
		return s
	}
	if d := cfg.GetLoginTTL(); d > 0 {
		s.loginTTL = d
	}
	if d := cfg.GetResetTTL(); d > 0 {
		s.resetTTL = d
	}
	if d := cfg.GetVerifyTTL(); d > 0 {
		s.verifyTTL = d
	}
	if d := cfg.GetRequestTimeout(); d > 0 {
		s.timeout = d
	}
	if c := cfg.GetBcryptCost(); c > 0 {
		s.passwords = NewBcryptVerifier(c)
	}
	if u := cfg.GetVerifyURL(); u != "" {
		s.verifyURL = u
	}
	return s
}

// WithVerifyURL sets the absolute page verification links point to. The
// mail-confirmation token is appended as the token query parameter.
func (s *TokenFlowService) WithVerifyURL(u string) *TokenFlowService {
	s.verifyURL = u
	return s
}

// WithNotifier sets the collaborator that delivers reset and verification
// messages
func (s *TokenFlowService) WithNotifier(n Notifier) *TokenFlowService {
	if n != nil {
		s.notifier = n
	}
	return s
}

// WithPasswordVerifier overrides the password hashing scheme
func (s *TokenFlowService) WithPasswordVerifier(v PasswordVerifier) *TokenFlowService {
	if v != nil {
		s.passwords = v
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *TokenFlowService) WithActivitySink(sink ActivitySink) *TokenFlowService {
	s.activity = normalizeActivitySink(sink)
	return s
}

func (s *TokenFlowService) WithLogger(logger Logger) *TokenFlowService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithLoggerProvider resolves a scoped logger from the provider
func (s *TokenFlowService) WithLoggerProvider(provider LoggerProvider) *TokenFlowService {
	s.logger = ResolveLogger("auth.flows", provider, s.logger)
	return s
}

// WithTimeout overrides the per-call deadline
func (s *TokenFlowService) WithTimeout(d time.Duration) *TokenFlowService {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Codec exposes the codec the flows sign with
func (s *TokenFlowService) Codec() *TokenCodec {
	return s.codec
}

// Login checks the credentials and returns a login scoped token. Unknown
// emails and wrong passwords produce the same ErrInvalidCredentials.
func (s *TokenFlowService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	return withDeadline(ctx, s.timeout, func(ctx context.Context) (*AuthResult, error) {
		user, err := s.users.FindByEmail(ctx, email)
		if err != nil {
			if IsUserNotFound(err) {
				s.compareMissing(password)
				s.emit(ctx, ActivityEventLoginFailure, nil, email, nil)
				return nil, ErrInvalidCredentials
			}
			s.logger.Error("login user lookup failed", "error", err)
			return nil, internalError(err, "failed to retrieve user during login")
		}

		if !s.verifier().Compare(password, user.PasswordHash) {
			s.emit(ctx, ActivityEventLoginFailure, user, email, nil)
			return nil, ErrInvalidCredentials
		}

		token, err := s.codec.Issue(user.Email, ScopeLogin, s.loginTTL)
		if err != nil {
			return nil, internalError(err, "failed to issue login token")
		}

		s.emit(ctx, ActivityEventLoginSuccess, user, email, nil)

		return &AuthResult{
			User:        user.ToPublic(),
			AccessToken: token.Token,
		}, nil
	})
}

// RequestPasswordReset mails a forget scoped token embedded in callbackURL.
// Every failure, unknown email included, yields ErrPasswordResetRequest.
func (s *TokenFlowService) RequestPasswordReset(ctx context.Context, email, callbackURL string) (*Ack, error) {
	return withDeadline(ctx, s.timeout, func(ctx context.Context) (*Ack, error) {
		user, err := s.users.FindByEmail(ctx, email)
		if err != nil {
			if isContextError(err) {
				return nil, ErrOperationTimeout
			}
			if !IsUserNotFound(err) {
				s.logger.Error("password reset lookup failed", "error", err)
			}
			return nil, ErrPasswordResetRequest
		}

		token, err := s.codec.Issue(user.Email, ScopeForget, s.resetTTL)
		if err != nil {
			s.logger.Error("password reset token issue failed", "error", err)
			return nil, ErrPasswordResetRequest
		}

		link, err := CallbackURL(callbackURL, token.Token)
		if err != nil {
			return nil, ErrPasswordResetRequest
		}

		if err := s.notifier.Send(ctx, TemplateForget, user.Email, map[string]any{
			MailDataName:        user.Name,
			MailDataCallbackURL: link,
			MailDataExpiresAt:   token.ExpiresAt.UTC(),
			MailDataExpiresIn:   ExpiresIn(s.resetTTL),
		}); err != nil {
			if isContextError(err) {
				return nil, ErrOperationTimeout
			}
			s.logger.Error("password reset notification failed", "error", err)
			return nil, ErrPasswordResetRequest
		}

		s.emit(ctx, ActivityEventPasswordResetRequest, user, email, map[string]any{
			"expires_at": token.ExpiresAt,
		})

		return &Ack{Message: msgResetRequested}, nil
	})
}

// IsResetTokenValid tells whether a reset link is still usable
func (s *TokenFlowService) IsResetTokenValid(token string) bool {
	return s.codec.IsValid(token, ScopeForget)
}

// ConfirmPasswordReset stores a fresh hash of password for the subject of
// a forget scoped token
func (s *TokenFlowService) ConfirmPasswordReset(ctx context.Context, password, token string) (*ResetResult, error) {
	return withDeadline(ctx, s.timeout, func(ctx context.Context) (*ResetResult, error) {
		claims, err := s.codec.Verify(token, ScopeForget)
		if err != nil {
			return nil, ErrInvalidToken
		}

		user, err := s.users.FindByEmail(ctx, claims.Subject())
		if err != nil {
			if IsUserNotFound(err) {
				return nil, ErrInvalidToken
			}
			return nil, internalError(err, "failed to retrieve user for password reset")
		}

		hash, err := s.verifier().Hash(password)
		if err != nil {
			if errors.Is(err, ErrNoEmptyString) {
				return nil, validationError(err)
			}
			return nil, internalError(err, "failed to hash password")
		}

		if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
			if IsUserNotFound(err) {
				return nil, ErrInvalidToken
			}
			s.logger.Error("password reset update failed", "user_id", user.ID, "error", err)
			return nil, internalError(err, "failed to update user password")
		}

		s.emit(ctx, ActivityEventPasswordResetSuccess, user, user.Email, nil)

		return &ResetResult{
			Message: msgPasswordChanged,
			User:    user.ToPublic(),
		}, nil
	})
}

// ConfirmEmailVerification flips the verified flag for the subject of a
// mail-confirmation token. A token is redeemed once: an already verified
// account rejects it.
func (s *TokenFlowService) ConfirmEmailVerification(ctx context.Context, token string) (*Ack, error) {
	return withDeadline(ctx, s.timeout, func(ctx context.Context) (*Ack, error) {
		claims, err := s.codec.Verify(token, ScopeMailConfirmation)
		if err != nil {
			return nil, ErrInvalidToken
		}

		user, err := s.users.FindByEmail(ctx, claims.Subject())
		if err != nil {
			if IsUserNotFound(err) {
				return nil, ErrInvalidToken
			}
			return nil, internalError(err, "failed to retrieve user for email verification")
		}

		if user.EmailVerified {
			return nil, ErrInvalidToken
		}

		if err := s.users.SetVerified(ctx, user.ID); err != nil {
			if IsUserNotFound(err) {
				return nil, ErrInvalidToken
			}
			s.logger.Error("email verification update failed", "user_id", user.ID, "error", err)
			return nil, internalError(err, "failed to mark email as verified")
		}

		s.emit(ctx, ActivityEventEmailVerified, user, user.Email, nil)

		return &Ack{OK: true}, nil
	})
}

// CurrentIdentity resolves the identity behind a login scoped token
func (s *TokenFlowService) CurrentIdentity(ctx context.Context, token string) (Identity, error) {
	return withDeadline(ctx, s.timeout, func(ctx context.Context) (Identity, error) {
		claims, err := s.codec.Verify(token, ScopeLogin)
		if err != nil {
			return Identity{}, ErrInvalidToken
		}

		user, err := s.users.FindByEmail(ctx, claims.Subject())
		if err != nil {
			if IsUserNotFound(err) {
				return Identity{}, ErrInvalidToken
			}
			return Identity{}, internalError(err, "failed to resolve identity")
		}

		return IdentityFromUser(user), nil
	})
}

// CallbackURL appends token to the caller supplied callback as ?token=
func CallbackURL(callback, token string) (string, error) {
	u, err := url.Parse(callback)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", goerrors.New("callback url must be absolute", goerrors.CategoryBadInput)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExpiresIn renders a token lifetime for message copy, e.g. "31 minutes"
func ExpiresIn(ttl time.Duration) string {
	start := time.Unix(0, 0)
	return strings.TrimSpace(humanize.RelTime(start, start.Add(ttl), "", ""))
}

func (s *TokenFlowService) verifier() PasswordVerifier {
	if s.passwords == nil {
		return DefaultBcryptVerifier()
	}
	return s.passwords
}

func (s *TokenFlowService) compareMissing(password string) {
	if mc, ok := s.verifier().(missingComparer); ok {
		mc.CompareMissing(password)
	}
}

func (s *TokenFlowService) emit(ctx context.Context, eventType ActivityEventType, user *User, subject string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Subject:    subject,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if user != nil {
		event.UserID = user.ID
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := normalizeActivitySink(s.activity).Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error", "event", string(eventType), "error", err)
	}
}

// withDeadline refuses to start on a done context and bounds fn by timeout
func withDeadline[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ErrOperationTimeout
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return fn(ctx)
}
