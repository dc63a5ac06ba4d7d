package account_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-account"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func registerDeps(t *testing.T) (*MockRepositoryManager, *MockUsers) {
	t.Helper()

	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	repo.On("Users").Return(users)

	return repo, users
}

func TestRegisterUserHandlerCreatesPendingAccount(t *testing.T) {
	repo, users := registerDeps(t)

	repo.On("RunInTx", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	users.On("EmailTaken", mock.Anything, mock.Anything, "alice@example.com", uuid.Nil).
		Return(false, nil).Once()
	users.On("CreateTx", mock.Anything, mock.Anything, mock.MatchedBy(func(u *account.User) bool {
		return u.Email == "alice@example.com" &&
			!u.IsActive &&
			u.PasswordHash != "" &&
			u.PasswordHash != "password12345"
	})).Return(&account.User{
		ID:       uuid.New(),
		Email:    "alice@example.com",
		Username: "alice",
	}, nil).Once()

	var res *account.RegisterUserResponse

	handler := account.NewRegisterUserHandler(repo, account.NewActivationTokens(tokenSecret, 0)).
		WithLogger(testLogger{})

	err := handler.Execute(context.Background(), account.RegisterUserMessage{
		FirstName:       "Alice",
		Email:           "Alice@Example.COM",
		Username:        "alice",
		Password:        "password12345",
		ConfirmPassword: "password12345",
		OnResponse: func(r *account.RegisterUserResponse) {
			res = r
		},
	})

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "Check Your Mail for Confirmation", res.Message)
	assert.False(t, res.EmailSent) // no mailer configured

	repo.AssertExpectations(t)
	users.AssertExpectations(t)
}

func TestRegisterUserHandlerPasswordMismatch(t *testing.T) {
	repo, users := registerDeps(t)

	handler := account.NewRegisterUserHandler(repo, account.NewActivationTokens(tokenSecret, 0)).
		WithLogger(testLogger{})

	err := handler.Execute(context.Background(), account.RegisterUserMessage{
		Email:           "alice@example.com",
		Password:        "password12345",
		ConfirmPassword: "different12345",
	})

	require.Error(t, err)
	assert.True(t, account.IsValidationError(err))

	// nothing touched the store
	users.AssertNotCalled(t, "CreateTx", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "RunInTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegisterUserHandlerDuplicateEmailCaseInsensitive(t *testing.T) {
	repo, users := registerDeps(t)

	repo.On("RunInTx", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	users.On("EmailTaken", mock.Anything, mock.Anything, "alice@example.com", uuid.Nil).
		Return(true, nil).Once()

	handler := account.NewRegisterUserHandler(repo, account.NewActivationTokens(tokenSecret, 0)).
		WithLogger(testLogger{})

	err := handler.Execute(context.Background(), account.RegisterUserMessage{
		Email:           "ALICE@example.com",
		Password:        "password12345",
		ConfirmPassword: "password12345",
	})

	require.Error(t, err)
	assert.True(t, account.IsValidationError(err))

	users.AssertNotCalled(t, "CreateTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegisterUserHandlerTranslatesConstraintRace(t *testing.T) {
	repo, users := registerDeps(t)

	repo.On("RunInTx", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	users.On("EmailTaken", mock.Anything, mock.Anything, "alice@example.com", uuid.Nil).
		Return(false, nil).Once()
	users.On("CreateTx", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New(`UNIQUE constraint failed: users.email`)).Once()

	handler := account.NewRegisterUserHandler(repo, account.NewActivationTokens(tokenSecret, 0)).
		WithLogger(testLogger{})

	err := handler.Execute(context.Background(), account.RegisterUserMessage{
		Email:           "alice@example.com",
		Password:        "password12345",
		ConfirmPassword: "password12345",
	})

	require.Error(t, err)
	assert.True(t, account.IsValidationError(err))
}

func TestRegisterUserHandlerEmailFailureStillSucceeds(t *testing.T) {
	repo, users := registerDeps(t)
	mailer := &MockMailer{}

	userID := uuid.New()

	repo.On("RunInTx", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	users.On("EmailTaken", mock.Anything, mock.Anything, "alice@example.com", uuid.Nil).
		Return(false, nil).Once()
	users.On("CreateTx", mock.Anything, mock.Anything, mock.Anything).
		Return(&account.User{ID: userID, Email: "alice@example.com"}, nil).Once()

	mailer.On("Send", mock.Anything, account.TemplateConfirmAccount, mock.Anything, "alice@example.com").
		Return(errors.New("smtp: connection refused")).Once()

	var res *account.RegisterUserResponse

	handler := account.NewRegisterUserHandler(repo, account.NewActivationTokens(tokenSecret, 0)).
		WithMailer(mailer).
		WithLogger(testLogger{})

	err := handler.Execute(context.Background(), account.RegisterUserMessage{
		Email:           "alice@example.com",
		Password:        "password12345",
		ConfirmPassword: "password12345",
		OnResponse: func(r *account.RegisterUserResponse) {
			res = r
		},
	})

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.EmailSent)

	mailer.AssertExpectations(t)
}

func TestRegisterUserHandlerActivationLinkShape(t *testing.T) {
	repo, users := registerDeps(t)
	mailer := &MockMailer{}

	userID := uuid.New()

	repo.On("RunInTx", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	users.On("EmailTaken", mock.Anything, mock.Anything, mock.Anything, uuid.Nil).
		Return(false, nil).Once()
	users.On("CreateTx", mock.Anything, mock.Anything, mock.Anything).
		Return(&account.User{ID: userID, Email: "alice@example.com", FirstName: "Alice"}, nil).Once()

	var link string
	mailer.On("Send", mock.Anything, account.TemplateConfirmAccount, mock.Anything, "alice@example.com").
		Return(nil).
		Run(func(args mock.Arguments) {
			data := args.Get(2).(map[string]any)
			link, _ = data["confirm_link"].(string)
		}).Once()

	handler := account.NewRegisterUserHandler(repo, account.NewActivationTokens(tokenSecret, 0)).
		WithMailer(mailer).
		WithActivationLink(func(uid, token string) string {
			return "https://example.com/account/active/" + uid + "/" + token
		}).
		WithLogger(testLogger{})

	err := handler.Execute(context.Background(), account.RegisterUserMessage{
		FirstName:       "Alice",
		Email:           "alice@example.com",
		Password:        "password12345",
		ConfirmPassword: "password12345",
	})

	require.NoError(t, err)
	require.NotEmpty(t, link)

	require.True(t, strings.HasPrefix(link, "https://example.com/account/active/"))

	rest := strings.TrimPrefix(link, "https://example.com/account/active/")
	parts := strings.SplitN(rest, "/", 2)
	require.Len(t, parts, 2)

	decoded, err := account.DecodeUserID(parts[0])
	require.NoError(t, err)
	assert.Equal(t, userID, decoded)
}
