package account

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type ActivateAccountMessage struct {
	// UID is the URL-safe encoded user id from the activation link
	UID        string `json:"uid"`
	Token      string `json:"token"`
	OnResponse func(*ActivateAccountResponse)
}

func (e ActivateAccountMessage) Type() string { return "account.activate" }

type ActivateAccountResponse struct {
	User    *User  `json:"user,omitempty"`
	Message string `json:"message"`
}

// ActivateAccountHandler consumes an activation link. A malformed uid, an
// unknown user, a bad signature, and an expired window all surface the same
// error so the caller cannot tell which branch failed.
type ActivateAccountHandler struct {
	repo   RepositoryManager
	tokens ActivationTokenIssuer
	logger Logger
}

// NewActivateAccountHandler creates a handler with sane defaults.
func NewActivateAccountHandler(repo RepositoryManager, tokens ActivationTokenIssuer) *ActivateAccountHandler {
	return &ActivateAccountHandler{
		repo:   repo,
		tokens: tokens,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *ActivateAccountHandler) WithLogger(logger Logger) *ActivateAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ActivateAccountHandler) Execute(ctx context.Context, event ActivateAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account activation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ActivateAccountHandler) execute(ctx context.Context, event ActivateAccountMessage) error {
	user := &User{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	userID, err := DecodeUserID(event.UID)
	if err != nil {
		return NewActivationError()
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = h.repo.Users().GetByID(ctx, userID.String())
		if err != nil {
			if goerrors.IsNotFound(err) {
				return NewActivationError()
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for activation")
		}

		if err := h.tokens.Check(user, event.Token); err != nil {
			return err
		}

		if err := h.repo.Users().MarkActiveTx(ctx, tx, user.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist account activation")
		}

		user.Activate()
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to activate account")
	}

	if event.OnResponse != nil {
		event.OnResponse(&ActivateAccountResponse{
			User:    user,
			Message: "Account activated successfully! You can now log in.",
		})
	}

	return nil
}
