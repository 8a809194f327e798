// Package users exposes the account resource behind the authorization gate.
package users

import (
	"context"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"

	auth "github.com/goliatone/go-scoped-auth"
	"github.com/goliatone/go-scoped-auth/middleware/guard"
	"github.com/goliatone/go-scoped-auth/repository"
)

// Store is the persistence the resource needs
type Store interface {
	Create(ctx context.Context, user *auth.User) (*auth.User, error)
	Exists(ctx context.Context, emailOrID string) (bool, error)
	List(ctx context.Context) ([]*auth.User, error)
	FindByID(ctx context.Context, id string) (*auth.User, error)
	Update(ctx context.Context, id string, update repository.UserUpdate) (*auth.User, error)
	Delete(ctx context.Context, id string) error
}

// View is the user shape returned by the resource
type View struct {
	auth.PublicUser
	Role          auth.Role `json:"role"`
	EmailVerified bool      `json:"emailVerified"`
}

func toView(u *auth.User) View {
	return View{
		PublicUser:    u.ToPublic(),
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
	}
}

// UpdateRequest is the partial update payload
type UpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	Password *string `json:"password,omitempty"`
	Picture  *string `json:"picture,omitempty"`
	Role     *string `json:"role,omitempty"`
}

func (r UpdateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&r.Password, validation.NilOrNotEmpty, validation.By(auth.StrongPassword)),
		validation.Field(&r.Picture, is.URL),
		validation.Field(&r.Role, validation.NilOrNotEmpty, validation.In(string(auth.RoleUser), string(auth.RoleAdmin))),
	)
}

// ReplaceRequest is the full update payload. Email is immutable and role
// stays unchanged when omitted.
type ReplaceRequest struct {
	Name     string  `json:"name"`
	Password string  `json:"password"`
	Picture  string  `json:"picture"`
	Role     *string `json:"role,omitempty"`
}

func (r ReplaceRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Password, validation.Required, validation.By(auth.StrongPassword)),
		validation.Field(&r.Picture, is.URL),
		validation.Field(&r.Role, validation.NilOrNotEmpty, validation.In(string(auth.RoleUser), string(auth.RoleAdmin))),
	)
}

// Controller serves /users
type Controller struct {
	store     Store
	passwords auth.PasswordVerifier
	logger    auth.Logger
}

func NewController(store Store, passwords auth.PasswordVerifier) *Controller {
	if passwords == nil {
		passwords = auth.DefaultBcryptVerifier()
	}
	return &Controller{
		store:     store,
		passwords: passwords,
		logger:    auth.ResolveLogger("users", nil, nil),
	}
}

func (uc *Controller) WithLogger(logger auth.Logger) *Controller {
	if logger != nil {
		uc.logger = logger
	}
	return uc
}

var (
	adminOnly = guard.Policy{
		Roles: auth.Roles(auth.RoleAdmin),
	}
	adminTarget = guard.Policy{
		Roles:     auth.Roles(auth.RoleAdmin),
		Ownership: true,
		Elevated:  auth.Roles(auth.RoleAdmin),
	}
	ownerOrAdmin = guard.Policy{
		Roles:     auth.Roles(auth.RoleUser, auth.RoleAdmin),
		Ownership: true,
		Elevated:  auth.Roles(auth.RoleAdmin),
	}
)

// RegisterRoutes mounts the resource on app with each route guarded by gate
func RegisterRoutes[T any](app router.Router[T], uc *Controller, gate *guard.Gate) {
	app.Get("/", uc.List, gate.Protect(adminOnly)...).SetName("users.list")
	app.Post("/", uc.Create, gate.Protect(adminOnly)...).SetName("users.create")
	app.Get("/:id", uc.Get, gate.Protect(ownerOrAdmin)...).SetName("users.get")
	app.Put("/:id", uc.Replace, gate.Protect(ownerOrAdmin)...).SetName("users.replace")
	app.Patch("/:id", uc.Patch, gate.Protect(ownerOrAdmin)...).SetName("users.patch")
	app.Delete("/:id", uc.Delete, gate.Protect(adminTarget)...).SetName("users.delete")
}

func (uc *Controller) List(c router.Context) error {
	users, err := uc.store.List(c.Context())
	if err != nil {
		return internal(err, "failed to list users")
	}

	out := make([]View, len(users))
	for i, u := range users {
		out[i] = toView(u)
	}
	return c.JSON(http.StatusOK, out)
}

// Create adds an unverified account on behalf of an admin
func (uc *Controller) Create(c router.Context) error {
	payload := new(auth.RegisterRequest)
	if err := bind(c, payload); err != nil {
		return err
	}

	in := payload.Input()
	exists, err := uc.store.Exists(c.Context(), in.Email)
	if err != nil {
		return internal(err, "failed to check user")
	}
	if exists {
		return auth.ErrUserExists
	}

	hash, err := uc.passwords.Hash(in.Password)
	if err != nil {
		return internal(err, "failed to hash password")
	}

	user, err := uc.store.Create(c.Context(), &auth.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		Picture:      in.Picture,
	})
	if err != nil {
		if goerrors.Is(err, auth.ErrUserExists) {
			return auth.ErrUserExists
		}
		return internal(err, "failed to create user")
	}

	uc.logger.Info("user created", "user_id", user.ID)
	return c.JSON(http.StatusCreated, toView(user))
}

func (uc *Controller) Get(c router.Context) error {
	user, err := uc.store.FindByID(c.Context(), targetID(c))
	if err != nil {
		return notFoundOr(err, "failed to retrieve user")
	}
	return c.JSON(http.StatusOK, toView(user))
}

// Replace overwrites name, password and picture
func (uc *Controller) Replace(c router.Context) error {
	payload := new(ReplaceRequest)
	if err := bind(c, payload); err != nil {
		return err
	}

	update := repository.UserUpdate{
		Name:    &payload.Name,
		Picture: &payload.Picture,
	}
	return uc.apply(c, update, &payload.Password, payload.Role)
}

func (uc *Controller) Patch(c router.Context) error {
	payload := new(UpdateRequest)
	if err := bind(c, payload); err != nil {
		return err
	}

	update := repository.UserUpdate{
		Name:    payload.Name,
		Picture: payload.Picture,
	}
	return uc.apply(c, update, payload.Password, payload.Role)
}

// apply hashes password when set, checks that only admins change roles and
// stores the result
func (uc *Controller) apply(c router.Context, update repository.UserUpdate, password, role *string) error {
	if role != nil {
		identity, _ := guard.GetIdentity(c)
		if identity.Role != auth.RoleAdmin {
			return auth.ErrForbidden
		}
		r := auth.Role(*role)
		update.Role = &r
	}

	if password != nil {
		hash, err := uc.passwords.Hash(*password)
		if err != nil {
			return internal(err, "failed to hash password")
		}
		update.PasswordHash = &hash
	}

	user, err := uc.store.Update(c.Context(), targetID(c), update)
	if err != nil {
		return notFoundOr(err, "failed to update user")
	}

	uc.logger.Info("user updated", "user_id", user.ID)
	return c.JSON(http.StatusOK, toView(user))
}

func (uc *Controller) Delete(c router.Context) error {
	id := targetID(c)
	if err := uc.store.Delete(c.Context(), id); err != nil {
		return notFoundOr(err, "failed to delete user")
	}

	uc.logger.Info("user deleted", "user_id", id)
	return c.NoContent(http.StatusNoContent)
}

type validatable interface {
	Validate() error
}

func bind(c router.Context, payload validatable) error {
	if err := c.Bind(payload); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "Unable to parse request body").
			WithCode(goerrors.CodeBadRequest).
			WithTextCode(auth.TextCodeValidation)
	}

	if err := payload.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()).
			WithCode(goerrors.CodeBadRequest).
			WithTextCode(auth.TextCodeValidation).
			WithMetadata(map[string]any{"fields": auth.ValidationErrorsToMap(err)})
	}
	return nil
}

func targetID(c router.Context) string {
	if id, ok := auth.ResourceIDFromContext(c.Context()); ok {
		return id
	}
	return c.Param("id", "")
}

func notFoundOr(err error, msg string) error {
	if auth.IsUserNotFound(err) {
		return goerrors.New("User not found", goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound).
			WithTextCode("USER_NOT_FOUND")
	}
	return internal(err, msg)
}

func internal(err error, msg string) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithCode(goerrors.CodeInternal)
}
