package account_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/goliatone/go-account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNotifierRendersConfirmationEmail(t *testing.T) {
	transport := &MockTransport{}

	var body string
	transport.On("Send", mock.Anything, "Confirm Your Email", mock.Anything, "no-reply@example.com", "alice@example.com").
		Return(nil).
		Run(func(args mock.Arguments) {
			body = args.String(2)
		}).Once()

	notifier, err := account.NewNotifier(transport, "no-reply@example.com")
	require.NoError(t, err)

	err = notifier.Send(context.Background(), account.TemplateConfirmAccount, map[string]any{
		"confirm_link": "https://example.com/account/active/abc/123",
		"first_name":   "Alice",
	}, "alice@example.com")

	require.NoError(t, err)
	assert.Contains(t, body, "https://example.com/account/active/abc/123")
	assert.Contains(t, body, "Alice")

	transport.AssertExpectations(t)
}

func TestNotifierRendersPasswordChangedEmail(t *testing.T) {
	transport := &MockTransport{}

	transport.On("Send", mock.Anything, "Your Password Was Changed", mock.Anything, "no-reply@example.com", "alice@example.com").
		Return(nil).Once()

	notifier, err := account.NewNotifier(transport, "no-reply@example.com")
	require.NoError(t, err)

	err = notifier.Send(context.Background(), account.TemplatePasswordChanged, map[string]any{
		"first_name": "Alice",
	}, "alice@example.com")

	require.NoError(t, err)
	transport.AssertExpectations(t)
}

func TestNotifierSubjectOverride(t *testing.T) {
	transport := &MockTransport{}

	transport.On("Send", mock.Anything, "Welcome Aboard", mock.Anything, "no-reply@example.com", "alice@example.com").
		Return(nil).Once()

	notifier, err := account.NewNotifier(transport, "no-reply@example.com",
		account.WithSubject(account.TemplateConfirmAccount, "Welcome Aboard"))
	require.NoError(t, err)

	err = notifier.Send(context.Background(), account.TemplateConfirmAccount, map[string]any{
		"confirm_link": "https://example.com/a/b",
	}, "alice@example.com")

	require.NoError(t, err)
	transport.AssertExpectations(t)
}

func TestNotifierUnknownTemplate(t *testing.T) {
	transport := &MockTransport{}

	notifier, err := account.NewNotifier(transport, "no-reply@example.com")
	require.NoError(t, err)

	err = notifier.Send(context.Background(), "no_such_template", nil, "alice@example.com")
	require.Error(t, err)

	transport.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWriterTransport(t *testing.T) {
	var buf bytes.Buffer
	transport := &account.WriterTransport{Out: &buf}

	err := transport.Send(context.Background(), "Subject Line", "<p>hello</p>", "from@example.com", "to@example.com")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "SENDING EMAIL NOTIFICATION")
	assert.Contains(t, out, "from: from@example.com")
	assert.Contains(t, out, "to: to@example.com")
	assert.Contains(t, out, "Subject Line")
	assert.Contains(t, out, "<p>hello</p>")
}
