package account_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-account"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func profileDeps(t *testing.T) (*MockRepositoryManager, *MockUsers, *MockAssets) {
	t.Helper()

	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	assets := &MockAssets{}
	repo.On("Users").Return(users)
	repo.On("RunInTx", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	return repo, users, assets
}

func TestUpdateProfileHandlerUpdatesFields(t *testing.T) {
	repo, users, assets := profileDeps(t)

	user := &account.User{
		ID:        uuid.New(),
		Email:     "alice@example.com",
		Username:  "alice",
		FirstName: "Alice",
		IsActive:  true,
	}

	users.On("GetByID", mock.Anything, user.ID.String()).Return(user, nil).Once()
	users.On("UpdateTx", mock.Anything, mock.Anything, mock.MatchedBy(func(u *account.User) bool {
		return u.FirstName == "Alicia" && u.Gender == account.GenderFemale && u.BirthDate != nil
	})).Return(user, nil).Once()

	birthDate := time.Date(1990, 4, 12, 0, 0, 0, 0, time.UTC)

	handler := account.NewUpdateProfileHandler(repo, assets).WithLogger(testLogger{})

	err := handler.Execute(context.Background(), account.UpdateProfileMessage{
		UserID: user.ID.String(),
		Patch: account.ProfilePatch{
			FirstName: strPtr("Alicia"),
			Gender:    strPtr(account.GenderFemale),
			BirthDate: &birthDate,
		},
	})

	require.NoError(t, err)
	users.AssertExpectations(t)
}

func TestUpdateProfileHandlerEmailUniqueness(t *testing.T) {
	repo, users, assets := profileDeps(t)

	user := &account.User{ID: uuid.New(), Email: "alice@example.com"}

	users.On("GetByID", mock.Anything, user.ID.String()).Return(user, nil).Once()
	users.On("EmailTaken", mock.Anything, mock.Anything, "taken@example.com", user.ID).
		Return(true, nil).Once()

	handler := account.NewUpdateProfileHandler(repo, assets).WithLogger(testLogger{})

	err := handler.Execute(context.Background(), account.UpdateProfileMessage{
		UserID: user.ID.String(),
		Patch: account.ProfilePatch{
			Email: strPtr("Taken@Example.com"),
		},
	})

	require.Error(t, err)
	assert.True(t, account.IsValidationError(err))

	users.AssertNotCalled(t, "UpdateTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateProfileHandlerInvalidPhone(t *testing.T) {
	repo, users, assets := profileDeps(t)

	user := &account.User{ID: uuid.New(), Email: "alice@example.com"}
	users.On("GetByID", mock.Anything, user.ID.String()).Return(user, nil).Once()

	handler := account.NewUpdateProfileHandler(repo, assets).WithLogger(testLogger{})

	err := handler.Execute(context.Background(), account.UpdateProfileMessage{
		UserID: user.ID.String(),
		Patch: account.ProfilePatch{
			Phone: strPtr("not-a-phone"),
		},
	})

	require.Error(t, err)
	assert.True(t, account.IsValidationError(err))
}

func TestUpdateProfileHandlerReplacesImage(t *testing.T) {
	repo, users, assets := profileDeps(t)

	user := &account.User{
		ID:           uuid.New(),
		Email:        "alice@example.com",
		ProfileImage: "users/user_img/old.png",
	}

	users.On("GetByID", mock.Anything, user.ID.String()).Return(user, nil).Once()

	assets.On("Save", mock.Anything, account.ImagePathPrefix, "new.png", mock.Anything).
		Return("users/user_img/new.png", nil).Once()

	users.On("UpdateTx", mock.Anything, mock.Anything, mock.MatchedBy(func(u *account.User) bool {
		return u.ProfileImage == "users/user_img/new.png"
	})).Return(user, nil).Once()

	// the old asset goes away only after the record is saved
	assets.On("Remove", mock.Anything, "users/user_img/old.png").Return(nil).Once()

	handler := account.NewUpdateProfileHandler(repo, assets).WithLogger(testLogger{})

	err := handler.Execute(context.Background(), account.UpdateProfileMessage{
		UserID: user.ID.String(),
		Image: &account.ImageUpload{
			Filename: "new.png",
			Content:  strings.NewReader("png-bytes"),
		},
	})

	require.NoError(t, err)
	assets.AssertExpectations(t)
}

func TestUpdateProfileHandlerPersistFailureKeepsOldImage(t *testing.T) {
	repo, users, assets := profileDeps(t)

	user := &account.User{
		ID:           uuid.New(),
		Email:        "alice@example.com",
		ProfileImage: "users/user_img/old.png",
	}

	users.On("GetByID", mock.Anything, user.ID.String()).Return(user, nil).Once()

	assets.On("Save", mock.Anything, account.ImagePathPrefix, "new.png", mock.Anything).
		Return("users/user_img/new.png", nil).Once()

	users.On("UpdateTx", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("disk full")).Once()

	// the orphaned new asset is cleaned up, the old one survives
	assets.On("Remove", mock.Anything, "users/user_img/new.png").Return(nil).Once()

	handler := account.NewUpdateProfileHandler(repo, assets).WithLogger(testLogger{})

	err := handler.Execute(context.Background(), account.UpdateProfileMessage{
		UserID: user.ID.String(),
		Image: &account.ImageUpload{
			Filename: "new.png",
			Content:  strings.NewReader("png-bytes"),
		},
	})

	require.Error(t, err)
	assets.AssertExpectations(t)
	assets.AssertNotCalled(t, "Remove", mock.Anything, "users/user_img/old.png")
}

func TestUpdateProfileHandlerRejectsUploadWithoutAssetStore(t *testing.T) {
	repo, users, _ := profileDeps(t)

	user := &account.User{ID: uuid.New(), Email: "alice@example.com"}

	handler := account.NewUpdateProfileHandler(repo, nil).WithLogger(testLogger{})

	err := handler.Execute(context.Background(), account.UpdateProfileMessage{
		UserID: user.ID.String(),
		Image: &account.ImageUpload{
			Filename: "new.png",
			Content:  strings.NewReader("png-bytes"),
		},
	})

	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, "ASSET_STORE_MISSING", richErr.TextCode)

	// nothing touched the store
	users.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	users.AssertNotCalled(t, "UpdateTx", mock.Anything, mock.Anything, mock.Anything)

	// a plain field update still works without an asset store
	users.On("GetByID", mock.Anything, user.ID.String()).Return(user, nil).Once()
	users.On("UpdateTx", mock.Anything, mock.Anything, mock.Anything).Return(user, nil).Once()

	err = handler.Execute(context.Background(), account.UpdateProfileMessage{
		UserID: user.ID.String(),
		Patch: account.ProfilePatch{
			FirstName: strPtr("Alicia"),
		},
	})

	require.NoError(t, err)
	users.AssertExpectations(t)
}

func TestUpdateProfileHandlerRemoveFailureIsNonFatal(t *testing.T) {
	repo, users, assets := profileDeps(t)

	user := &account.User{
		ID:           uuid.New(),
		Email:        "alice@example.com",
		ProfileImage: "users/user_img/old.png",
	}

	users.On("GetByID", mock.Anything, user.ID.String()).Return(user, nil).Once()
	assets.On("Save", mock.Anything, account.ImagePathPrefix, "new.png", mock.Anything).
		Return("users/user_img/new.png", nil).Once()
	users.On("UpdateTx", mock.Anything, mock.Anything, mock.Anything).Return(user, nil).Once()
	assets.On("Remove", mock.Anything, "users/user_img/old.png").
		Return(errors.New("object already gone")).Once()

	handler := account.NewUpdateProfileHandler(repo, assets).WithLogger(testLogger{})

	err := handler.Execute(context.Background(), account.UpdateProfileMessage{
		UserID: user.ID.String(),
		Image: &account.ImageUpload{
			Filename: "new.png",
			Content:  strings.NewReader("png-bytes"),
		},
	})

	require.NoError(t, err)
}
