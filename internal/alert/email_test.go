package alert

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewEmailNotifierFromEnvDisabledWithoutCredentials(t *testing.T) {
	n := NewEmailNotifierFromEnv(discardLogger())
	assert.False(t, n.enabled)
}

func TestNewEmailNotifierFromEnvFallsBackToGmailVars(t *testing.T) {
	t.Setenv("EMAIL_ADDRESS", "")
	t.Setenv("EMAIL_APP_PASSWORD", "")
	t.Setenv("GMAIL_USER", "bot@gmail.com")
	t.Setenv("GMAIL_APP_PASSWORD", "app-pass")
	t.Setenv("ALERT_EMAIL_TO", "")

	n := NewEmailNotifierFromEnv(discardLogger())
	assert.True(t, n.enabled)
	assert.Equal(t, "bot@gmail.com", n.gmailUser)
	assert.Equal(t, "app-pass", n.gmailPassword)
	assert.Equal(t, "bot@gmail.com", n.emailTo, "ALERT_EMAIL_TO unset must default to the sender")
}

func TestNewEmailNotifierFromEnvPrefersEmailVarsOverGmailVars(t *testing.T) {
	t.Setenv("EMAIL_ADDRESS", "ops@kraklabs.com")
	t.Setenv("EMAIL_APP_PASSWORD", "ops-pass")
	t.Setenv("GMAIL_USER", "fallback@gmail.com")
	t.Setenv("GMAIL_APP_PASSWORD", "fallback-pass")
	t.Setenv("ALERT_EMAIL_TO", "oncall@kraklabs.com")

	n := NewEmailNotifierFromEnv(discardLogger())
	assert.Equal(t, "ops@kraklabs.com", n.gmailUser)
	assert.Equal(t, "oncall@kraklabs.com", n.emailTo)
}

func TestSendAlertSkipsWhenDisabled(t *testing.T) {
	n := &EmailNotifier{enabled: false, log: discardLogger()}
	sent := n.SendAlert(SeverityCritical, "title", "msg", nil, "RUN-1")
	assert.False(t, sent)
}

func TestSendAlertSkipsInfoSeverity(t *testing.T) {
	n := &EmailNotifier{enabled: true, gmailUser: "a@b.com", emailTo: "a@b.com", log: discardLogger()}
	sent := n.SendAlert(SeverityInfo, "title", "msg", nil, "RUN-1")
	assert.False(t, sent, "info alerts must be dropped, matching the severity filter")
}

func TestBuildBodyIncludesRunIDAndDados(t *testing.T) {
	body, err := buildBody(SeverityCritical, "Run failed", "safety brake tripped", map[string]any{"rows": 10000}, "RUN-42")
	require.NoError(t, err)
	assert.Contains(t, body.text, "RUN-42")
	assert.Contains(t, body.text, "safety brake tripped")
	assert.Contains(t, body.text, "\"rows\": 10000")
	assert.Contains(t, body.html, "Run failed")
	assert.Contains(t, body.html, "RUN-42")
}

func TestBuildBodyOmitsDadosSectionWhenEmpty(t *testing.T) {
	body, err := buildBody(SeverityWarning, "title", "msg", nil, "")
	require.NoError(t, err)
	assert.NotContains(t, body.text, "dados:")
	assert.NotContains(t, body.text, "run_id:")
}

func TestBuildMIMEProducesMultipartAlternativeMessage(t *testing.T) {
	body := emailBody{text: "plain body", html: "<p>html body</p>"}
	msg, err := buildMIME("from@kraklabs.com", "to@kraklabs.com", "Subject line", body)
	require.NoError(t, err)

	s := string(msg)
	assert.True(t, strings.Contains(s, "From: Ache Sucatas <from@kraklabs.com>"))
	assert.True(t, strings.Contains(s, "To: to@kraklabs.com"))
	assert.True(t, strings.Contains(s, "multipart/alternative"))
	assert.True(t, strings.Contains(s, "plain body"))
	assert.True(t, strings.Contains(s, "<p>html body</p>"))
}
