package auth

import (
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// AuthControllerRoutes holds the paths mounted by RegisterAuthRoutes,
// relative to the router they are registered on
type AuthControllerRoutes struct {
	Login              string
	Register           string
	Forget             string
	Reset              string
	VerifyResetToken   string
	Validate           string
	ResendVerification string
	Me                 string
}

// AuthController exposes the token flows over JSON
type AuthController struct {
	Debug  bool
	Logger Logger
	Flows  *TokenFlowService
	Routes *AuthControllerRoutes

	requestReset *RequestPasswordResetHandler
	confirmReset *ConfirmPasswordResetHandler
}

type AuthControllerOption func(*AuthController) *AuthController

// WithControllerLogger sets the controller logger
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		if logger != nil {
			ac.Logger = logger
		}
		return ac
	}
}

// WithControllerDebug dumps decoded payloads, passwords excluded
func WithControllerDebug(debug bool) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Debug = debug
		return ac
	}
}

// WithControllerRoutes overrides the default paths
func WithControllerRoutes(routes *AuthControllerRoutes) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		if routes != nil {
			ac.Routes = routes
		}
		return ac
	}
}

func NewAuthController(flows *TokenFlowService, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Flows:  flows,
		Routes: &AuthControllerRoutes{
			Login:              "/login",
			Register:           "/register",
			Forget:             "/forget",
			Reset:              "/reset",
			VerifyResetToken:   "/verify-reset-token",
			Validate:           "/validate",
			ResendVerification: "/verify/resend",
			Me:                 "/me",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Flows == nil {
		panic("Missing TokenFlowService in auth controller...")
	}

	c.requestReset = NewRequestPasswordResetHandler(c.Flows)
	c.confirmReset = NewConfirmPasswordResetHandler(c.Flows)

	return c
}

// RegisterAuthRoutes mounts the flow endpoints on app. The middleware in
// protect runs before the me endpoint and must resolve the identity.
func RegisterAuthRoutes[T any](app router.Router[T], controller *AuthController, protect ...router.MiddlewareFunc) {
	app.Post(controller.Routes.Login, controller.Login).SetName("auth.login")
	app.Post(controller.Routes.Register, controller.Register).SetName("auth.register")
	app.Post(controller.Routes.Forget, controller.Forget).SetName("auth.forget")
	app.Post(controller.Routes.Reset, controller.Reset).SetName("auth.reset")
	app.Post(controller.Routes.VerifyResetToken, controller.VerifyResetToken).SetName("auth.verify-reset-token")
	app.Post(controller.Routes.Validate, controller.Validate).SetName("auth.validate")
	app.Post(controller.Routes.ResendVerification, controller.ResendVerification).SetName("auth.verify.resend")
	app.Post(controller.Routes.Me, controller.Me, protect...).SetName("auth.me")
}

func (a *AuthController) Login(c router.Context) error {
	payload := new(LoginRequest)
	if err := a.bind(c, payload); err != nil {
		return err
	}

	if a.Debug {
		a.dump("login", map[string]any{"email": payload.Email})
	}

	res, err := a.Flows.Login(c.Context(), payload.Email, payload.Password)
	if err != nil {
		a.Logger.Info("login rejected", "email", payload.Email, "error", err)
		return err
	}

	return c.JSON(http.StatusOK, res)
}

func (a *AuthController) Register(c router.Context) error {
	payload := new(RegisterRequest)
	if err := a.bind(c, payload); err != nil {
		return err
	}

	if a.Debug {
		a.dump("register", map[string]any{
			"name":  payload.Name,
			"email": payload.Email,
			"role":  payload.Role,
		})
	}

	res, err := a.Flows.Register(c.Context(), payload.Input())
	if err != nil {
		a.Logger.Error("register user error", "email", payload.Email, "error", err)
		return err
	}

	return c.JSON(http.StatusCreated, res)
}

func (a *AuthController) Forget(c router.Context) error {
	payload := new(ForgetRequest)
	if err := a.bind(c, payload); err != nil {
		return err
	}

	var res *Ack
	err := a.requestReset.Execute(c.Context(), RequestPasswordResetMessage{
		Email:       payload.Email,
		CallbackURL: payload.CallbackURL,
		OnResponse: func(resp *Ack) {
			res = resp
		},
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, res)
}

func (a *AuthController) Reset(c router.Context) error {
	payload := new(ResetRequest)
	if err := a.bind(c, payload); err != nil {
		return err
	}

	var res *ResetResult
	err := a.confirmReset.Execute(c.Context(), ConfirmPasswordResetMessage{
		Password: payload.Password,
		Token:    payload.Token,
		OnResponse: func(resp *ResetResult) {
			res = resp
		},
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, res)
}

func (a *AuthController) VerifyResetToken(c router.Context) error {
	payload := new(TokenRequest)
	if err := a.bind(c, payload); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"isValid": a.Flows.IsResetTokenValid(payload.Token),
	})
}

func (a *AuthController) Validate(c router.Context) error {
	payload := new(TokenRequest)
	if err := a.bind(c, payload); err != nil {
		return err
	}

	res, err := a.Flows.ConfirmEmailVerification(c.Context(), payload.Token)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, res)
}

func (a *AuthController) ResendVerification(c router.Context) error {
	payload := new(ResendVerificationRequest)
	if err := a.bind(c, payload); err != nil {
		return err
	}

	res, err := a.Flows.RequestEmailVerification(c.Context(), payload.Email)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, res)
}

// Me answers with the identity resolved by the protect chain
func (a *AuthController) Me(c router.Context) error {
	identity, ok := IdentityFromContext(c.Context())
	if !ok {
		return ErrInvalidToken
	}

	return c.JSON(http.StatusOK, map[string]any{
		"me":   "ok",
		"data": identity,
	})
}

type validatable interface {
	Validate() error
}

func (a *AuthController) bind(c router.Context, payload validatable) error {
	if err := c.Bind(payload); err != nil {
		a.Logger.Debug("parse payload error", "path", c.Path(), "error", err)
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "Unable to parse request body").
			WithCode(goerrors.CodeBadRequest).
			WithTextCode(TextCodeValidation)
	}

	if err := payload.Validate(); err != nil {
		return validationError(err)
	}
	return nil
}

func (a *AuthController) dump(label string, v any) {
	fmt.Printf("======= AUTH %s ======\n", label)
	fmt.Println(print.MaybePrettyJSON(v))
	fmt.Println("=========================")
}
