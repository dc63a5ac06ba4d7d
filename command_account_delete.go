package account

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type DeleteAccountMessage struct {
	UserID     string `json:"user_id"`
	Password   string `json:"password"`
	OnResponse func(*DeleteAccountResponse)
}

func (e DeleteAccountMessage) Type() string { return "account.delete" }

type DeleteAccountResponse struct {
	Message string `json:"message"`
}

// DeleteAccountHandler permanently removes an account after re-verifying the
// current password. The stored profile image is removed along with the record.
type DeleteAccountHandler struct {
	repo   RepositoryManager
	assets AssetStore
	hasher PasswordAuthenticator
	logger Logger
}

// NewDeleteAccountHandler creates a handler with sane defaults.
func NewDeleteAccountHandler(repo RepositoryManager) *DeleteAccountHandler {
	return &DeleteAccountHandler{
		repo:   repo,
		hasher: NewBcryptHasher(DefaultBcryptCost),
		logger: defLogger{},
	}
}

// WithAssets sets the store holding profile images
func (h *DeleteAccountHandler) WithAssets(assets AssetStore) *DeleteAccountHandler {
	h.assets = assets
	return h
}

// WithHasher overrides the password hasher
func (h *DeleteAccountHandler) WithHasher(hasher PasswordAuthenticator) *DeleteAccountHandler {
	if hasher != nil {
		h.hasher = hasher
	}
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *DeleteAccountHandler) WithLogger(logger Logger) *DeleteAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *DeleteAccountHandler) Execute(ctx context.Context, event DeleteAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account deletion",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *DeleteAccountHandler) execute(ctx context.Context, event DeleteAccountMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByID(ctx, event.UserID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return goerrors.New("user not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound).
				WithMetadata(map[string]any{"user_id": event.UserID})
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for deletion")
	}

	// the record stays untouched until the caller proves they hold the
	// current password
	if err := h.hasher.ComparePasswordAndHash(event.Password, user.PasswordHash); err != nil {
		return goerrors.New("incorrect password", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode("PASSWORD_INCORRECT")
	}

	h.removeProfileImage(ctx, user)

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return h.repo.Users().HardDeleteTx(ctx, tx, user)
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete account")
	}

	if event.OnResponse != nil {
		event.OnResponse(&DeleteAccountResponse{
			Message: "Your account has been deleted",
		})
	}

	return nil
}

func (h *DeleteAccountHandler) removeProfileImage(ctx context.Context, user *User) {
	if h.assets == nil || user.ProfileImage == "" {
		return
	}

	if err := h.assets.Remove(ctx, user.ProfileImage); err != nil {
		h.logger.Error("failed to remove profile image", "error", err, "path", user.ProfileImage)
	}
}
