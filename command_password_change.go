package account

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type ChangePasswordMessage struct {
	UserID          string `json:"user_id"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
	OnResponse      func(*ChangePasswordResponse)
}

func (e ChangePasswordMessage) Type() string { return "account.password_change" }

type ChangePasswordResponse struct {
	Message   string `json:"message"`
	EmailSent bool   `json:"email_sent"`
}

// ChangePasswordHandler replaces the stored hash and sends a best-effort
// "password changed" notice. The change succeeds even when the notice cannot
// be delivered.
type ChangePasswordHandler struct {
	repo   RepositoryManager
	mailer Mailer
	hasher PasswordAuthenticator
	logger Logger
}

// NewChangePasswordHandler creates a handler with sane defaults.
func NewChangePasswordHandler(repo RepositoryManager) *ChangePasswordHandler {
	return &ChangePasswordHandler{
		repo:   repo,
		hasher: NewBcryptHasher(DefaultBcryptCost),
		logger: defLogger{},
	}
}

// WithMailer sets the notification gateway used for the change notice
func (h *ChangePasswordHandler) WithMailer(mailer Mailer) *ChangePasswordHandler {
	h.mailer = mailer
	return h
}

// WithHasher overrides the password hasher
func (h *ChangePasswordHandler) WithHasher(hasher PasswordAuthenticator) *ChangePasswordHandler {
	if hasher != nil {
		h.hasher = hasher
	}
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ChangePasswordHandler) WithLogger(logger Logger) *ChangePasswordHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, event ChangePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangePasswordHandler) execute(ctx context.Context, event ChangePasswordMessage) error {
	user := &User{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.NewPassword != event.ConfirmPassword {
		return NewPasswordMismatchError()
	}

	var err error

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = h.repo.Users().GetByID(ctx, event.UserID)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return goerrors.New("user not found", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound).
					WithMetadata(map[string]any{"user_id": event.UserID})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password change")
		}

		passwordHash, err := h.hasher.HashPassword(event.NewPassword)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
		}

		if err := h.repo.Users().ChangePasswordTx(ctx, tx, user.ID, passwordHash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password in database")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to change password")
	}

	resp := &ChangePasswordResponse{Message: "Password changed successfully"}
	resp.EmailSent = h.sendChangeNotice(ctx, user)

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *ChangePasswordHandler) sendChangeNotice(ctx context.Context, user *User) bool {
	if h.mailer == nil {
		return false
	}

	err := h.mailer.Send(ctx, TemplatePasswordChanged, map[string]any{
		"first_name": user.FirstName,
		"username":   user.Username,
	}, user.Email)

	if err != nil {
		// the hash is already persisted, the notice is best-effort
		h.logger.Error("password change notice failed", "error", err, "recipient", user.Email)
		return false
	}

	return true
}
