package auth

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

// RegisterInput is the data needed to create an account
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     Role
	Picture  string
}

// Register creates an account, mails a mail-confirmation token and returns
// a login token for the new user
func (s *TokenFlowService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	return withDeadline(ctx, s.timeout, func(ctx context.Context) (*AuthResult, error) {
		role := in.Role
		if role == "" {
			role = RoleUser
		}
		if !role.IsValid() {
			return nil, goerrors.New("role must be one of user, admin", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest).
				WithTextCode(TextCodeValidation)
		}

		exists, err := s.users.Exists(ctx, in.Email)
		if err != nil {
			return nil, internalError(err, "failed to check existing user")
		}
		if exists {
			return nil, ErrUserExists
		}

		hash, err := s.verifier().Hash(in.Password)
		if err != nil {
			if errors.Is(err, ErrNoEmptyString) {
				return nil, validationError(err)
			}
			return nil, internalError(err, "failed to hash password")
		}

		user, err := s.users.Create(ctx, &User{
			Name:         in.Name,
			Email:        in.Email,
			PasswordHash: hash,
			Role:         role,
			Picture:      in.Picture,
		})
		if err != nil {
			if errors.Is(err, ErrUserExists) {
				return nil, ErrUserExists
			}
			return nil, internalError(err, "failed to create user")
		}

		s.emit(ctx, ActivityEventRegistered, user, user.Email, map[string]any{
			"role": string(user.Role),
		})

		if err := s.sendVerification(ctx, user); err != nil {
			return nil, err
		}

		token, err := s.codec.Issue(user.Email, ScopeLogin, s.loginTTL)
		if err != nil {
			return nil, internalError(err, "failed to issue login token")
		}

		return &AuthResult{
			User:        user.ToPublic(),
			AccessToken: token.Token,
		}, nil
	})
}

// RequestEmailVerification mails a fresh mail-confirmation token. The
// answer is the same whether or not the account exists or is verified.
func (s *TokenFlowService) RequestEmailVerification(ctx context.Context, email string) (*Ack, error) {
	return withDeadline(ctx, s.timeout, func(ctx context.Context) (*Ack, error) {
		ack := &Ack{Message: msgVerificationAgain}

		user, err := s.users.FindByEmail(ctx, email)
		if err != nil {
			if IsUserNotFound(err) {
				return ack, nil
			}
			return nil, internalError(err, "failed to retrieve user for verification")
		}

		if user.EmailVerified {
			return ack, nil
		}

		if err := s.sendVerification(ctx, user); err != nil {
			return nil, err
		}
		return ack, nil
	})
}

func (s *TokenFlowService) sendVerification(ctx context.Context, user *User) error {
	token, err := s.codec.Issue(user.Email, ScopeMailConfirmation, s.verifyTTL)
	if err != nil {
		return internalError(err, "failed to issue verification token")
	}

	data := map[string]any{
		MailDataName:      user.Name,
		MailDataToken:     token.Token,
		MailDataExpiresAt: token.ExpiresAt.UTC(),
		MailDataExpiresIn: ExpiresIn(s.verifyTTL),
	}
	if s.verifyURL != "" {
		link, err := CallbackURL(s.verifyURL, token.Token)
		if err != nil {
			s.logger.Warn("verification link skipped", "verify_url", s.verifyURL, "error", err)
		} else {
			data[MailDataVerifyURL] = link
		}
	}

	if err := s.notifier.Send(ctx, TemplateMailConfirmation, user.Email, data); err != nil {
		if isContextError(err) {
			return ErrOperationTimeout
		}
		s.logger.Error("verification notification failed", "user_id", user.ID, "error", err)
		return ErrNotificationFailed
	}

	s.emit(ctx, ActivityEventVerificationRequested, user, user.Email, map[string]any{
		"expires_at": token.ExpiresAt,
	})
	return nil
}
