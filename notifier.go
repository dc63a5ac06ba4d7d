package account

import (
	"bytes"
	"context"
	"io/fs"
	"net/http"

	"github.com/gofiber/template/django/v3"
	goerrors "github.com/goliatone/go-errors"
)

// Template identifiers for the transactional emails this package sends
const (
	TemplateConfirmAccount  = "confirm_account_email"
	TemplatePasswordChanged = "password_changed_email"
)

var defaultSubjects = map[string]string{
	TemplateConfirmAccount:  "Confirm Your Email",
	TemplatePasswordChanged: "Your Password Was Changed",
}

// Notifier renders named templates and dispatches them through a Transport.
// Delivery is best-effort: callers log a failed Send and move on, the state
// mutation that triggered the notice is never rolled back.
type Notifier struct {
	engine    *django.Engine
	transport Transport
	from      string
	subjects  map[string]string
}

var _ Mailer = (*Notifier)(nil)

type NotifierOption func(*Notifier)

// WithSubject overrides the subject line used for a template
func WithSubject(templateID, subject string) NotifierOption {
	return func(n *Notifier) {
		n.subjects[templateID] = subject
	}
}

// WithTemplatesFS replaces the embedded template set
func WithTemplatesFS(fsys fs.FS) NotifierOption {
	return func(n *Notifier) {
		n.engine = django.NewFileSystem(http.FS(fsys), ".html")
	}
}

// NewNotifier creates a notifier that renders the embedded templates
func NewNotifier(transport Transport, from string, opts ...NotifierOption) (*Notifier, error) {
	templates, err := fs.Sub(templatesFS, "data/templates")
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to scope embedded templates")
	}

	n := &Notifier{
		engine:    django.NewFileSystem(http.FS(templates), ".html"),
		transport: transport,
		from:      from,
		subjects:  map[string]string{},
	}

	for id, subject := range defaultSubjects {
		n.subjects[id] = subject
	}

	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}

	if err := n.engine.Load(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to load mail templates")
	}

	return n, nil
}

// Send renders templateID with data and makes a single delivery attempt
func (n *Notifier) Send(ctx context.Context, templateID string, data map[string]any, recipient string) error {
	var body bytes.Buffer
	if err := n.engine.Render(&body, templateID, data); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render mail template").
			WithMetadata(map[string]any{"template": templateID})
	}

	subject := n.subjects[templateID]
	if subject == "" {
		subject = templateID
	}

	if err := n.transport.Send(ctx, subject, body.String(), n.from, recipient); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "mail transport failed").
			WithMetadata(map[string]any{
				"template":  templateID,
				"recipient": recipient,
			})
	}

	return nil
}
