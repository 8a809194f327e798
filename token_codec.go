package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Scope is the issuer/audience pair that partitions tokens into
// mutually non-redeemable kinds.
type Scope struct {
	Issuer   string
	Audience string
}

func (s Scope) String() string {
	return s.Issuer + "/" + s.Audience
}

// AudienceUsers is the audience shared by every flow token
const AudienceUsers = "users"

var (
	// ScopeLogin is carried by access tokens
	ScopeLogin = Scope{Issuer: "login", Audience: AudienceUsers}
	// ScopeForget is carried by password reset tokens
	ScopeForget = Scope{Issuer: "forget", Audience: AudienceUsers}
	// ScopeMailConfirmation is carried by email verification tokens
	ScopeMailConfirmation = Scope{Issuer: "mail-confirmation", Audience: AudienceUsers}
)

const (
	DefaultLoginTTL  = 7 * 24 * time.Hour
	DefaultResetTTL  = 31 * time.Minute
	DefaultVerifyTTL = 7 * 24 * time.Hour
)

// ScopedClaims holds the single identity attribute plus registered claims
type ScopedClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Subject returns the token subject
func (c *ScopedClaims) Subject() string {
	if c.Email != "" {
		return c.Email
	}
	return c.RegisteredClaims.Subject
}

// Expires returns the expiration time
func (c *ScopedClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// ScopedToken is a signed token along with the scope and expiry it was
// minted for
type ScopedToken struct {
	Token     string
	Scope     Scope
	ExpiresAt time.Time
}

// TokenCodec issues and verifies scoped tokens
type TokenCodec struct {
	signingKey []byte
	clock      Clock
	logger     Logger
}

// NewTokenCodec creates a codec signing with HS256. The key is read-only
// for the lifetime of the codec.
func NewTokenCodec(signingKey []byte) *TokenCodec {
	key := make([]byte, len(signingKey))
	copy(key, signingKey)
	return &TokenCodec{
		signingKey: key,
		clock:      SystemClock{},
		logger:     defLogger{},
	}
}

// WithClock overrides the time source
func (tc *TokenCodec) WithClock(clock Clock) *TokenCodec {
	if clock != nil {
		tc.clock = clock
	}
	return tc
}

// WithLogger overrides the logger
func (tc *TokenCodec) WithLogger(logger Logger) *TokenCodec {
	if logger != nil {
		tc.logger = logger
	}
	return tc
}

// Issue signs a token for subject under the given scope
func (tc *TokenCodec) Issue(subject string, scope Scope, ttl time.Duration) (ScopedToken, error) {
	if subject == "" {
		return ScopedToken{}, goerrors.New("token subject is required", goerrors.CategoryBadInput)
	}
	if scope.Issuer == "" || scope.Audience == "" {
		return ScopedToken{}, goerrors.New("token scope requires issuer and audience", goerrors.CategoryBadInput)
	}
	if ttl <= 0 {
		return ScopedToken{}, goerrors.New("token TTL must be positive", goerrors.CategoryBadInput)
	}

	now := tc.clock.Now()
	claims := &ScopedClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    scope.Issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{scope.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: subject,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tc.signingKey)
	if err != nil {
		return ScopedToken{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return ScopedToken{
		Token:     signed,
		Scope:     scope,
		ExpiresAt: claims.Expires(),
	}, nil
}

// Verify checks signature, scope and expiry. Every failure is reported as
// ErrInvalidToken.
func (tc *TokenCodec) Verify(raw string, scope Scope) (*ScopedClaims, error) {
	if raw == "" || scope.Issuer == "" || scope.Audience == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(raw, &ScopedClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tc.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(scope.Issuer),
		jwt.WithAudience(scope.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tc.clock.Now),
	)
	if err != nil {
		tc.logger.Debug("token verification failed", "scope", scope.String(), "error", err)
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*ScopedClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	// aud must be exactly the expected value, not merely contain it
	if len(claims.Audience) != 1 || claims.Audience[0] != scope.Audience {
		return nil, ErrInvalidToken
	}

	if claims.Subject() == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// IsValid is an advisory check that hides the claims
func (tc *TokenCodec) IsValid(raw string, scope Scope) bool {
	_, err := tc.Verify(raw, scope)
	return err == nil
}
