// Package guard builds the router middleware chain that protects a route:
// identity first, then role membership, then optional resource ownership.
// Each stage short-circuits with its own error before the route handler
// runs.
package guard

import (
	"context"

	"github.com/goliatone/go-router"
	"github.com/google/uuid"

	auth "github.com/goliatone/go-scoped-auth"
)

const (
	DefaultContextKey  = "user"
	DefaultTokenLookup = "header:" + router.HeaderAuthorization
	DefaultAuthScheme  = "Bearer"
	DefaultOwnerParam  = "id"
)

// IdentityResolver turns a raw login token into an identity.
// auth.TokenFlowService implements it.
type IdentityResolver interface {
	CurrentIdentity(ctx context.Context, token string) (auth.Identity, error)
}

// ValidationListener runs after the identity was resolved and before the
// role stage
type ValidationListener func(c router.Context, identity auth.Identity) error

// ErrorHandler renders or forwards a rejection. The default returns err so
// the server error handler writes the response.
type ErrorHandler func(c router.Context, err error) error

type Config struct {
	Resolver            IdentityResolver
	ContextKey          string
	TokenLookup         string
	AuthScheme          string
	Filter              func(router.Context) bool
	ErrorHandler        ErrorHandler
	ValidationListeners []ValidationListener
	Logger              auth.Logger
}

// Policy declares what a route requires. Roles is a membership set; an
// empty set lets any authenticated identity through. With Ownership set the
// OwnerParam path value must be the identity's id unless the identity holds
// one of the Elevated roles.
type Policy struct {
	Roles      auth.RoleSet
	Ownership  bool
	OwnerParam string
	Elevated   auth.RoleSet
}

// Gate assembles guard chains sharing one configuration
type Gate struct {
	cfg        Config
	extractors []Extractor
}

func New(config ...Config) *Gate {
	cfg := GetDefaultConfig(config...)
	return &Gate{
		cfg:        cfg,
		extractors: GetExtractors(cfg.TokenLookup, cfg.AuthScheme),
	}
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Resolver == nil {
		panic("AUTH: guard configuration: Resolver is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = DefaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = DefaultAuthScheme
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(_ router.Context, err error) error {
			return err
		}
	}

	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}

	return cfg
}

// Protect returns the ordered chain for policy
func (g *Gate) Protect(policy Policy) []router.MiddlewareFunc {
	handlers := []router.MiddlewareFunc{
		g.Identify(),
		g.RequireRoles(policy.Roles),
	}

	if policy.Ownership {
		param := policy.OwnerParam
		if param == "" {
			param = DefaultOwnerParam
		}
		handlers = append(handlers,
			g.ValidateID(param),
			g.RequireOwnership(param, policy.Elevated),
		)
	}

	return handlers
}

// Identify resolves the request identity from a login scoped token and
// stores it in the route store and in the request context
func (g *Gate) Identify() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if g.cfg.Filter != nil && g.cfg.Filter(c) {
				return next(c)
			}

			raw, err := ExtractToken(c, g.extractors)
			if err != nil {
				return g.cfg.ErrorHandler(c, auth.ErrInvalidToken)
			}

			identity, err := g.cfg.Resolver.CurrentIdentity(c.Context(), raw)
			if err != nil {
				g.cfg.Logger.Debug("identity stage rejected request", "path", c.Path(), "error", err)
				return g.cfg.ErrorHandler(c, err)
			}

			for _, listener := range g.cfg.ValidationListeners {
				if listener == nil {
					continue
				}
				if err := listener(c, identity); err != nil {
					return g.cfg.ErrorHandler(c, err)
				}
			}

			c.Set(g.cfg.ContextKey, identity)
			c.SetContext(auth.WithIdentity(c.Context(), identity))

			return next(c)
		}
	}
}

// RequireRoles rejects identities whose role is not in roles
func (g *Gate) RequireRoles(roles auth.RoleSet) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if roles.Empty() {
				return next(c)
			}

			identity, ok := GetIdentity(c)
			if !ok {
				return g.cfg.ErrorHandler(c, auth.ErrInvalidToken)
			}

			if !roles.Has(identity.Role) {
				g.cfg.Logger.Info("role stage rejected request",
					"path", c.Path(),
					"role", string(identity.Role),
					"required", roles.Slice(),
				)
				return g.cfg.ErrorHandler(c, forbidden(map[string]any{
					"required_roles": roles.Slice(),
				}))
			}

			return next(c)
		}
	}
}

// ValidateID rejects a param that is not a well formed uuid and stores the
// normalized id in the request context
func (g *Gate) ValidateID(param string) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			id, err := uuid.Parse(c.Param(param, ""))
			if err != nil {
				return g.cfg.ErrorHandler(c, auth.ErrInvalidID)
			}

			c.SetContext(auth.WithResourceID(c.Context(), id.String()))
			return next(c)
		}
	}
}

// RequireOwnership rejects identities that do not own the param resource
// unless they hold one of the elevated roles
func (g *Gate) RequireOwnership(param string, elevated auth.RoleSet) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			identity, ok := GetIdentity(c)
			if !ok {
				return g.cfg.ErrorHandler(c, auth.ErrInvalidToken)
			}

			if elevated.Has(identity.Role) {
				return next(c)
			}

			target, ok := auth.ResourceIDFromContext(c.Context())
			if !ok {
				id, err := uuid.Parse(c.Param(param, ""))
				if err != nil {
					return g.cfg.ErrorHandler(c, auth.ErrInvalidID)
				}
				target = id.String()
			}

			owner, err := uuid.Parse(identity.ID)
			if err != nil || owner.String() != target {
				g.cfg.Logger.Info("ownership stage rejected request", "path", c.Path(), "identity", identity.ID)
				return g.cfg.ErrorHandler(c, forbidden(map[string]any{
					"resource_id": target,
				}))
			}

			return next(c)
		}
	}
}

// GetIdentity returns the identity stored by Identify
func GetIdentity(c router.Context) (auth.Identity, bool) {
	return auth.IdentityFromContext(c.Context())
}

func forbidden(meta map[string]any) error {
	clone := auth.ErrForbidden.Clone()
	if clone == nil {
		return auth.ErrForbidden
	}
	return clone.WithMetadata(meta)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
