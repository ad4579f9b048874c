package email

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/devhub-api/internal/logging"
)

type sentMail struct {
	to, subject, body string
}

type recordingSender struct {
	sent []sentMail
	err  error
}

func (r *recordingSender) Send(_ context.Context, to, subject, body string) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func testContext() context.Context {
	return logging.WithLogger(context.Background(), logging.NewDiscardLogger())
}

func newTestService(t *testing.T, sender Sender) *Service {
	t.Helper()
	s, err := NewService(sender, "http://localhost:3000/")
	require.NoError(t, err)
	return s
}

func TestSendVerificationEmail(t *testing.T) {
	sender := &recordingSender{}
	s := newTestService(t, sender)

	err := s.SendVerificationEmail(testContext(), "ann@x.com", "Ann", "tok_123", 24*time.Hour)
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	mail := sender.sent[0]
	assert.Equal(t, "ann@x.com", mail.to)
	assert.Equal(t, "Verify Your DevHub Email", mail.subject)
	assert.Contains(t, mail.body, "http://localhost:3000/verify-email?token=tok_123")
	assert.Contains(t, mail.body, "Hi Ann,")
	assert.Contains(t, mail.body, "24 hours")
}

func TestSendPasswordResetEmail(t *testing.T) {
	sender := &recordingSender{}
	s := newTestService(t, sender)

	require.NoError(t, s.SendPasswordResetEmail(testContext(), "ann@x.com", "Ann", "abc", 30*time.Minute))

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].body, "http://localhost:3000/reset-password?token=abc")
	assert.Contains(t, sender.sent[0].body, "30 minutes")
}

func TestEmailChangeMessages(t *testing.T) {
	sender := &recordingSender{}
	s := newTestService(t, sender)
	ctx := testContext()

	require.NoError(t, s.SendEmailChangeConfirmation(ctx, "new@x.com", "Ann", "xyz", 24*time.Hour))
	require.NoError(t, s.SendEmailChangeNotice(ctx, "ann@x.com", "Ann", "new@x.com"))
	require.NoError(t, s.SendPasswordChangedEmail(ctx, "ann@x.com", "Ann"))

	require.Len(t, sender.sent, 3)
	assert.Equal(t, "new@x.com", sender.sent[0].to)
	assert.Contains(t, sender.sent[0].body, "/confirm-new-email?token=xyz")
	assert.Equal(t, "ann@x.com", sender.sent[1].to)
	assert.Contains(t, sender.sent[1].body, "new@x.com")
	assert.Equal(t, "Your password has been changed", sender.sent[2].subject)
}

func TestTemplateEscapesName(t *testing.T) {
	sender := &recordingSender{}
	s := newTestService(t, sender)

	require.NoError(t, s.SendPasswordChangedEmail(testContext(), "ann@x.com", "<script>x</script>"))
	assert.NotContains(t, sender.sent[0].body, "<script>")
}

func TestSendFailureIsReturned(t *testing.T) {
	s := newTestService(t, &recordingSender{err: errors.New("smtp down")})

	err := s.SendPasswordChangedEmail(testContext(), "ann@x.com", "Ann")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "1 hour", humanDuration(time.Hour))
	assert.Equal(t, "24 hours", humanDuration(24*time.Hour))
	assert.Equal(t, "90 minutes", humanDuration(90*time.Minute))
	assert.Equal(t, "45s", humanDuration(45*time.Second))
}
