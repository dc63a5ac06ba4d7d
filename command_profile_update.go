package account

import (
	"context"
	"io"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// ImageUpload carries a new profile image
type ImageUpload struct {
	Filename string
	Content  io.Reader
}

// ProfilePatch holds the mutable profile fields. Nil pointers leave the
// current value untouched.
type ProfilePatch struct {
	FirstName *string    `json:"first_name,omitempty"`
	LastName  *string    `json:"last_name,omitempty"`
	Username  *string    `json:"username,omitempty"`
	Email     *string    `json:"email,omitempty"`
	Phone     *string    `json:"phone,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Gender    *string    `json:"gender,omitempty"`
}

type UpdateProfileMessage struct {
	UserID     string `json:"user_id"`
	Patch      ProfilePatch
	Image      *ImageUpload
	OnResponse func(*UpdateProfileResponse)
}

func (e UpdateProfileMessage) Type() string { return "account.profile_update" }

type UpdateProfileResponse struct {
	User *User `json:"user"`
}

// UpdateProfileHandler mutates profile fields and swaps the attached image.
// The previous image is released only after the new state is durably saved;
// a failed write never costs the user their current image.
type UpdateProfileHandler struct {
	repo   RepositoryManager
	assets AssetStore
	logger Logger
}

// NewUpdateProfileHandler creates a handler with sane defaults.
func NewUpdateProfileHandler(repo RepositoryManager, assets AssetStore) *UpdateProfileHandler {
	return &UpdateProfileHandler{
		repo:   repo,
		assets: assets,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *UpdateProfileHandler) WithLogger(logger Logger) *UpdateProfileHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *UpdateProfileHandler) Execute(ctx context.Context, event UpdateProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile update",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdateProfileHandler) execute(ctx context.Context, event UpdateProfileMessage) error {
	user := &User{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	// assets are optional wiring, an upload needs a store to land in
	if event.Image != nil && h.assets == nil {
		return goerrors.New("no asset store configured for image uploads", goerrors.CategoryInternal).
			WithTextCode("ASSET_STORE_MISSING")
	}

	var err error
	var previousImage string
	var newImage string

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = h.repo.Users().GetByID(ctx, event.UserID)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return goerrors.New("user not found", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound).
					WithMetadata(map[string]any{"user_id": event.UserID})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for profile update")
		}

		previousImage = user.ProfileImage

		if err := h.applyPatch(ctx, tx, user, event.Patch); err != nil {
			return err
		}

		if event.Image != nil {
			newImage, err = h.assets.Save(ctx, ImagePathPrefix, event.Image.Filename, event.Image.Content)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store profile image")
			}
			user.ProfileImage = newImage
		}

		if user, err = h.repo.Users().UpdateTx(ctx, tx, user, repository.UpdateByID(user.ID.String())); err != nil {
			if IsDuplicateConstraintError(err) {
				return NewDuplicateEmailError(user.Email)
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist profile update")
		}

		return nil
	})

	if err != nil {
		// the write did not stick: drop the just-stored image so it does not
		// orphan, and leave the previous one alone
		if newImage != "" {
			if rmErr := h.assets.Remove(ctx, newImage); rmErr != nil {
				h.logger.Warn("failed to clean up unsaved profile image", "error", rmErr, "path", newImage)
			}
		}

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "profile update transaction failed")
	}

	// only after the save is durable do we release the replaced asset
	if newImage != "" && previousImage != "" && previousImage != newImage {
		if rmErr := h.assets.Remove(ctx, previousImage); rmErr != nil {
			h.logger.Warn("failed to remove replaced profile image", "error", rmErr, "path", previousImage)
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(&UpdateProfileResponse{User: user})
	}

	return nil
}

func (h *UpdateProfileHandler) applyPatch(ctx context.Context, tx bun.IDB, user *User, patch ProfilePatch) error {
	if patch.Email != nil {
		email := NormalizeEmail(*patch.Email)
		if email != user.Email {
			taken, err := h.repo.Users().EmailTaken(ctx, tx, email, user.ID)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email uniqueness")
			}
			if taken {
				return NewDuplicateEmailError(email)
			}
		}
		user.Email = email
	}

	if patch.Phone != nil && *patch.Phone != "" {
		if err := validatePhone(*patch.Phone); err != nil {
			return err
		}
		user.Phone = *patch.Phone
	}

	if patch.Gender != nil {
		switch *patch.Gender {
		case GenderMale, GenderFemale, "":
			user.Gender = *patch.Gender
		default:
			return goerrors.New("invalid gender value", goerrors.CategoryValidation).
				WithMetadata(map[string]any{
					"fields": map[string]string{"gender": "invalid gender value"},
				})
		}
	}

	if patch.FirstName != nil {
		user.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		user.LastName = *patch.LastName
	}
	if patch.Username != nil && *patch.Username != "" {
		user.Username = *patch.Username
	}
	if patch.BirthDate != nil {
		user.BirthDate = patch.BirthDate
	}

	return nil
}

func validatePhone(phone string) error {
	parsed, err := phonenumbers.Parse(phone, "US")
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return goerrors.New("invalid phone number", goerrors.CategoryValidation).
			WithMetadata(map[string]any{
				"fields": map[string]string{"phone": "invalid phone number"},
			})
	}
	return nil
}
