// Package server assembles the HTTP application: repository, token flows,
// gate, controllers and the router on top of fiber.
package server

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-scoped-auth"
	"github.com/goliatone/go-scoped-auth/activitymap"
	"github.com/goliatone/go-scoped-auth/config"
	"github.com/goliatone/go-scoped-auth/mailer"
	"github.com/goliatone/go-scoped-auth/middleware/guard"
	"github.com/goliatone/go-scoped-auth/repository"
	"github.com/goliatone/go-scoped-auth/users"
)

// ErrRateLimited is answered once a client exhausts the /auth budget
var ErrRateLimited = goerrors.New("Too many requests", goerrors.CategoryRateLimit).
	WithCode(http.StatusTooManyRequests).
	WithTextCode("RATE_LIMITED")

// Deps are the collaborators the server is built from. Config and DB are
// required.
type Deps struct {
	Config   config.Config
	DB       *bun.DB
	Notifier auth.Notifier
	Clock    auth.Clock
	Loggers  auth.LoggerProvider
	Activity auth.ActivitySink
}

type Server struct {
	App   *fiber.App
	HTTP  router.Server[*fiber.App]
	Flows *auth.TokenFlowService
	Codec *auth.TokenCodec
	Users *repository.UserRepository
	Gate  *guard.Gate

	db     *bun.DB
	logger auth.Logger
}

// New wires the application and creates the users table
func New(ctx context.Context, deps Deps) (*Server, error) {
	if deps.DB == nil {
		return nil, goerrors.New("server requires a database", goerrors.CategoryBadInput)
	}
	cfg := deps.Config

	logger := auth.ResolveLogger("server", deps.Loggers, nil)

	store := repository.NewUserRepository(deps.DB).
		WithHashedIDs(cfg.HashedIDs)
	if err := store.CreateTable(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create users table")
	}

	notifier := deps.Notifier
	if notifier == nil {
		transport := mailer.NewLogTransport(auth.ResolveLogger("mailer", deps.Loggers, nil))
		tn, err := mailer.NewTemplateNotifier(cfg.MailFrom, transport)
		if err != nil {
			return nil, err
		}
		tn.WithLogger(auth.ResolveLogger("mailer", deps.Loggers, nil)).
			WithGlobalData(map[string]any{
				"app_name": cfg.AppName,
			})
		notifier = tn
	}

	activity := deps.Activity
	if activity == nil {
		activity = activitymap.NewLogSink(
			auth.ResolveLogger("activity", deps.Loggers, nil),
			activitymap.WithRedactedSubject(),
		)
	}

	codec := auth.NewTokenCodec([]byte(cfg.GetSigningKey())).
		WithClock(deps.Clock).
		WithLogger(auth.ResolveLogger("auth.codec", deps.Loggers, nil))

	flows := auth.NewTokenFlowService(store, codec).
		WithConfig(cfg).
		WithNotifier(notifier).
		WithActivitySink(activity).
		WithLoggerProvider(deps.Loggers)

	gate := guard.New(guard.Config{
		Resolver:    flows,
		ContextKey:  cfg.GetContextKey(),
		TokenLookup: cfg.GetTokenLookup(),
		AuthScheme:  cfg.GetAuthScheme(),
		Logger:      auth.ResolveLogger("auth.guard", deps.Loggers, nil),
	})

	httpServer := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		app := fiber.New(fiber.Config{
			AppName:               cfg.AppName,
			ErrorHandler:          auth.NewHTTPErrorHandler(auth.ResolveLogger("http", deps.Loggers, nil)),
			DisableStartupMessage: true,
			ReadTimeout:           cfg.RequestTimeout,
			WriteTimeout:          cfg.RequestTimeout,
		})
		app.Use(recover.New())
		return app
	})
	app := httpServer.WrappedRouter()
	routes := httpServer.Router()

	s := &Server{
		App:    app,
		HTTP:   httpServer,
		Flows:  flows,
		Codec:  codec,
		Users:  store,
		Gate:   gate,
		db:     deps.DB,
		logger: logger,
	}

	routes.Get("/health", s.health).SetName("health")

	// the limiter is fiber middleware and must be mounted before the routes
	// it covers
	app.Use("/auth", limiter.New(limiter.Config{
		Max:        cfg.RateLimitMax,
		Expiration: cfg.RateLimitWindow,
		LimitReached: func(c *fiber.Ctx) error {
			return ErrRateLimited
		},
	}))

	controller := auth.NewAuthController(flows,
		auth.WithControllerDebug(cfg.Debug),
		auth.WithControllerLogger(auth.ResolveLogger("auth.ctrl", deps.Loggers, nil)),
	)
	auth.RegisterAuthRoutes(routes.Group("/auth"), controller, gate.Protect(guard.Policy{})...)

	usersController := users.NewController(store, auth.NewBcryptVerifier(cfg.GetBcryptCost())).
		WithLogger(auth.ResolveLogger("users", deps.Loggers, nil))
	users.RegisterRoutes(routes.Group("/users"), usersController, gate)

	return s, nil
}

// Listen blocks serving on addr
func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	return s.HTTP.Serve(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.HTTP.Shutdown(ctx)
}

func (s *Server) health(c router.Context) error {
	if err := s.db.PingContext(c.Context()); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "database unavailable").
			WithCode(http.StatusServiceUnavailable)
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
}
