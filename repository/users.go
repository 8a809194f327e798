package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	bunrepo "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-scoped-auth"
)

// UserModel is the Bun model for user accounts.
type UserModel struct {
	bun.BaseModel `bun:"table:users"`

	ID            uuid.UUID  `bun:"id,pk,type:uuid"`
	Name          string     `bun:"name,notnull"`
	Email         string     `bun:"email,notnull,unique"`
	PasswordHash  string     `bun:"password_hash,notnull"`
	Role          string     `bun:"role,notnull,default:'user'"`
	Picture       string     `bun:"picture"`
	EmailVerified bool       `bun:"email_verified,notnull,default:false"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero"`
}

// UserUpdate holds the optional fields of a partial update. Nil fields are
// left untouched.
type UserUpdate struct {
	Name         *string
	PasswordHash *string
	Picture      *string
	Role         *auth.Role
}

// UserRepository implements auth.UserStore on top of a generic Bun
// repository keyed by id with email as the natural identifier.
type UserRepository struct {
	db        *bun.DB
	base      bunrepo.Repository[*UserModel]
	hashedIDs bool
}

var _ auth.UserStore = (*UserRepository)(nil)

// NewUserRepository creates a new repository.
func NewUserRepository(db *bun.DB) *UserRepository {
	return &UserRepository{
		db:   db,
		base: bunrepo.NewRepository(db, UserModelHandlers()),
	}
}

// UserModelHandlers describes UserModel to the generic repository
func UserModelHandlers() bunrepo.ModelHandlers[*UserModel] {
	return bunrepo.ModelHandlers[*UserModel]{
		NewRecord: func() *UserModel {
			return &UserModel{}
		},
		GetID: func(m *UserModel) uuid.UUID {
			if m == nil {
				return uuid.Nil
			}
			return m.ID
		},
		SetID: func(m *UserModel, id uuid.UUID) {
			m.ID = id
		},
		GetIdentifier: func() string {
			return "email"
		},
	}
}

// Repository exposes the underlying generic repository
func (r *UserRepository) Repository() bunrepo.Repository[*UserModel] {
	return r.base
}

// WithHashedIDs derives new user ids from the email instead of drawing
// random ones
func (r *UserRepository) WithHashedIDs(enabled bool) *UserRepository {
	r.hashedIDs = enabled
	return r
}

// CreateTable creates the users table if missing
func (r *UserRepository) CreateTable(ctx context.Context) error {
	_, err := r.db.NewCreateTable().
		Model((*UserModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// RunInTx runs f inside a transaction unless ctx is already done
func (r *UserRepository) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return r.db.RunInTx(ctx, opts, f)
	}
}

// FindByEmail implements auth.UserStore.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, auth.ErrUserNotFound
	}

	model, err := r.base.Get(ctx, bunrepo.SelectBy("email", "=", email))
	if err != nil {
		return nil, mapError(err)
	}
	return toUser(model), nil
}

// FindByID implements auth.UserStore.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*auth.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, auth.ErrUserNotFound
	}

	model, err := r.base.GetByID(ctx, uid.String())
	if err != nil {
		return nil, mapError(err)
	}
	return toUser(model), nil
}

// FindByIdentifier resolves a user by id or email, whichever the value
// looks like
func (r *UserRepository) FindByIdentifier(ctx context.Context, identifier string) (*auth.User, error) {
	identifier = normalizeEmail(identifier)
	if identifier == "" {
		return nil, auth.ErrUserNotFound
	}

	model, err := r.base.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, mapError(err)
	}
	return toUser(model), nil
}

// Exists implements auth.UserStore. The identifier is matched against the
// email and, when it parses as a uuid, the id.
func (r *UserRepository) Exists(ctx context.Context, emailOrID string) (bool, error) {
	q := r.db.NewSelect().Model((*UserModel)(nil))
	if uid, err := uuid.Parse(emailOrID); err == nil {
		q = q.Where("id = ? OR email = ?", uid, normalizeEmail(emailOrID))
	} else {
		q = q.Where("email = ?", normalizeEmail(emailOrID))
	}
	return q.Exists(ctx)
}

// Create implements auth.UserStore.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) (*auth.User, error) {
	if user == nil {
		return nil, goerrors.New("user is required", goerrors.CategoryBadInput)
	}

	model := fromUser(user)
	if model.ID == uuid.Nil {
		model.ID = r.newID(model.Email)
	}
	now := time.Now().UTC()
	model.CreatedAt = &now
	model.UpdatedAt = &now

	err := r.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*UserModel)(nil)).
			Where("email = ?", model.Email).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return auth.ErrUserExists
		}

		model, err = r.base.CreateTx(ctx, tx, model)
		return err
	})
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) || isUniqueViolation(err) {
			return nil, auth.ErrUserExists
		}
		return nil, err
	}

	return toUser(model), nil
}

// UpdatePasswordHash implements auth.UserStore.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	_, err := r.updateColumns(ctx, id, map[string]any{"password_hash": hash})
	return err
}

// SetVerified implements auth.UserStore.
func (r *UserRepository) SetVerified(ctx context.Context, id string) error {
	_, err := r.updateColumns(ctx, id, map[string]any{"email_verified": true})
	return err
}

// List returns every user ordered by creation time
func (r *UserRepository) List(ctx context.Context) ([]*auth.User, error) {
	models, _, err := r.base.List(ctx,
		bunrepo.Paginate(0, 0),
		bunrepo.OrderBy("created_at ASC", "email ASC"),
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	users := make([]*auth.User, len(models))
	for i, m := range models {
		users[i] = toUser(m)
	}
	return users, nil
}

// Update applies a partial update and returns the stored record
func (r *UserRepository) Update(ctx context.Context, id string, update UserUpdate) (*auth.User, error) {
	columns := map[string]any{}
	if update.Name != nil {
		columns["name"] = *update.Name
	}
	if update.PasswordHash != nil {
		columns["password_hash"] = *update.PasswordHash
	}
	if update.Picture != nil {
		columns["picture"] = *update.Picture
	}
	if update.Role != nil {
		columns["role"] = string(*update.Role)
	}

	if len(columns) == 0 {
		return r.FindByID(ctx, id)
	}

	model, err := r.updateColumns(ctx, id, columns)
	if err != nil {
		return nil, err
	}
	return toUser(model), nil
}

// Delete removes a user
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return auth.ErrUserNotFound
	}

	return r.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		model, err := r.base.GetByIDTx(ctx, tx, uid.String())
		if err != nil {
			return mapError(err)
		}
		return r.base.DeleteTx(ctx, tx, model)
	})
}

// updateColumns sets the given columns plus updated_at and returns the
// stored row
func (r *UserRepository) updateColumns(ctx context.Context, id string, columns map[string]any) (*UserModel, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, auth.ErrUserNotFound
	}

	set := bunrepo.UpdateRawProcessor(func(q *bun.UpdateQuery) *bun.UpdateQuery {
		q = q.Set("updated_at = ?", time.Now().UTC())
		for col, val := range columns {
			q = q.Set("? = ?", bun.Ident(col), val)
		}
		return q
	})

	model, err := r.base.Update(ctx, &UserModel{ID: uid}, set)
	if err != nil {
		return nil, mapError(err)
	}
	return model, nil
}

func (r *UserRepository) newID(email string) uuid.UUID {
	if r.hashedIDs {
		if id, err := hashid.NewUUID(email); err == nil {
			return id
		}
	}
	return uuid.New()
}

func mapError(err error) error {
	if bunrepo.IsRecordNotFound(err) {
		return auth.ErrUserNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func toUser(m *UserModel) *auth.User {
	return &auth.User{
		ID:            m.ID.String(),
		Name:          m.Name,
		Email:         m.Email,
		PasswordHash:  m.PasswordHash,
		Role:          auth.Role(m.Role),
		Picture:       m.Picture,
		EmailVerified: m.EmailVerified,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func fromUser(u *auth.User) *UserModel {
	var id uuid.UUID
	if u.ID != "" {
		if parsed, err := uuid.Parse(u.ID); err == nil {
			id = parsed
		}
	}

	role := u.Role
	if role == "" {
		role = auth.RoleUser
	}

	return &UserModel{
		ID:            id,
		Name:          u.Name,
		Email:         normalizeEmail(u.Email),
		PasswordHash:  u.PasswordHash,
		Role:          string(role),
		Picture:       u.Picture,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}
