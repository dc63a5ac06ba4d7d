package account

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	UseHashid       bool
	OnResponse      func(*RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "account.register" }

type RegisterUserResponse struct {
	User      *User  `json:"user,omitempty"`
	Message   string `json:"message"`
	EmailSent bool   `json:"email_sent"`
}

// RegisterUserHandler creates a pending account and dispatches the
// activation email. The account is created even when the email cannot be
// delivered; delivery is best-effort, not transactional with the insert.
type RegisterUserHandler struct {
	repo   RepositoryManager
	tokens ActivationTokenIssuer
	mailer Mailer
	hasher PasswordAuthenticator
	link   func(encodedUserID, token string) string
	logger Logger
}

// NewRegisterUserHandler creates a handler with sane defaults.
func NewRegisterUserHandler(repo RepositoryManager, tokens ActivationTokenIssuer) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:   repo,
		tokens: tokens,
		hasher: NewBcryptHasher(DefaultBcryptCost),
		logger: defLogger{},
		link: func(encodedUserID, token string) string {
			return "/account/active/" + encodedUserID + "/" + token
		},
	}
}

// WithMailer sets the notification gateway used for the activation email
func (h *RegisterUserHandler) WithMailer(mailer Mailer) *RegisterUserHandler {
	h.mailer = mailer
	return h
}

// WithHasher overrides the password hasher
func (h *RegisterUserHandler) WithHasher(hasher PasswordAuthenticator) *RegisterUserHandler {
	if hasher != nil {
		h.hasher = hasher
	}
	return h
}

// WithActivationLink sets the builder for the absolute activation URL
func (h *RegisterUserHandler) WithActivationLink(link func(encodedUserID, token string) string) *RegisterUserHandler {
	if link != nil {
		h.link = link
	}
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	user := &User{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Password != event.ConfirmPassword {
		return NewPasswordMismatchError()
	}

	email := NormalizeEmail(event.Email)

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		taken, err := h.repo.Users().EmailTaken(ctx, tx, email, uuid.Nil)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email uniqueness")
		}
		if taken {
			return NewDuplicateEmailError(email)
		}

		hash, err := h.hasher.HashPassword(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
		}

		user.PasswordHash = hash
		user.Email = email
		user.Phone = event.Phone
		user.FirstName = event.FirstName
		user.LastName = event.LastName
		user.Username = event.Username
		user.IsActive = false
		if event.UseHashid {
			if id, err := hashid.NewUUID(email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			// the unique index is the authority when two registrations race
			if IsDuplicateConstraintError(err) {
				return NewDuplicateEmailError(email)
			}
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	resp := &RegisterUserResponse{
		User:    user,
		Message: "Check Your Mail for Confirmation",
	}

	resp.EmailSent = h.sendActivationEmail(ctx, user)

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *RegisterUserHandler) sendActivationEmail(ctx context.Context, user *User) bool {
	if h.mailer == nil {
		return false
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		h.logger.Error("failed to issue activation token", "error", err, "user_id", user.ID.String())
		return false
	}

	link := h.link(EncodeUserID(user.ID), token)

	err = h.mailer.Send(ctx, TemplateConfirmAccount, map[string]any{
		"confirm_link": link,
		"first_name":   user.FirstName,
	}, user.Email)

	if err != nil {
		// delivery failure does not undo the registration
		h.logger.Error("activation email failed", "error", err, "recipient", user.Email)
		return false
	}

	return true
}
