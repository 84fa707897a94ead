// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package alert sends critical/warning pipeline notifications by email.
// No SMTP or mail-templating library exists anywhere in the dependency
// set this pipeline otherwise draws from, so this is a deliberate
// standard-library exception (net/smtp, mime/multipart) — see DESIGN.md.
package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"os"
	"strings"
	"time"
)

// Severity mirrors the Python notifier's severidade values.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// EmailNotifier sends alert@_address a formatted message over Gmail's
// SMTP-over-SSL endpoint. It only ever sends for warning/critical
// severities, matching the source notifier's filter.
type EmailNotifier struct {
	gmailUser     string
	gmailPassword string
	emailTo       string
	enabled       bool
	log           *slog.Logger
}

// NewEmailNotifierFromEnv mirrors the Python constructor's fallback
// chain: EMAIL_ADDRESS/GMAIL_USER, EMAIL_APP_PASSWORD/GMAIL_APP_PASSWORD,
// ALERT_EMAIL_TO defaulting to the sender.
func NewEmailNotifierFromEnv(log *slog.Logger) *EmailNotifier {
	user := firstNonEmpty(os.Getenv("EMAIL_ADDRESS"), os.Getenv("GMAIL_USER"))
	password := firstNonEmpty(os.Getenv("EMAIL_APP_PASSWORD"), os.Getenv("GMAIL_APP_PASSWORD"))
	to := firstNonEmpty(os.Getenv("ALERT_EMAIL_TO"), user)

	n := &EmailNotifier{
		gmailUser:     user,
		gmailPassword: password,
		emailTo:       to,
		enabled:       user != "" && password != "",
		log:           log,
	}
	if !n.enabled {
		log.Info("email_notifier.disabled", "reason", "EMAIL_ADDRESS/EMAIL_APP_PASSWORD not configured")
	}
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// SendAlert sends a critical/warning notification; info alerts are
// dropped silently, matching the source's severity filter.
func (n *EmailNotifier) SendAlert(severity Severity, titulo, mensagem string, dados map[string]any, runID string) bool {
	if !n.enabled {
		n.log.Debug("email_notifier.skip", "reason", "disabled")
		return false
	}
	if severity != SeverityCritical && severity != SeverityWarning {
		n.log.Debug("email_notifier.skip", "reason", "severity not alertable", "severity", severity)
		return false
	}

	emoji := "🟡"
	if severity == SeverityCritical {
		emoji = "🔴"
	}
	subject := fmt.Sprintf("%s [Ache Sucatas] %s", emoji, titulo)

	body, err := buildBody(severity, titulo, mensagem, dados, runID)
	if err != nil {
		n.log.Error("email_notifier.build_body.error", "err", err)
		return false
	}

	msg, err := buildMIME(n.gmailUser, n.emailTo, subject, body)
	if err != nil {
		n.log.Error("email_notifier.build_mime.error", "err", err)
		return false
	}

	auth := smtp.PlainAuth("", n.gmailUser, n.gmailPassword, "smtp.gmail.com")
	if err := smtp.SendMail("smtp.gmail.com:465", auth, n.gmailUser, []string{n.emailTo}, msg); err != nil {
		n.log.Error("email_notifier.send.error", "err", err)
		return false
	}

	n.log.Info("email_notifier.sent", "titulo", titulo)
	return true
}

type emailBody struct {
	text string
	html string
}

func buildBody(severity Severity, titulo, mensagem string, dados map[string]any, runID string) (emailBody, error) {
	var dadosJSON string
	if len(dados) > 0 {
		encoded, err := json.MarshalIndent(dados, "", "  ")
		if err != nil {
			return emailBody{}, fmt.Errorf("marshal dados: %w", err)
		}
		dadosJSON = string(encoded)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "[%s] %s\n\n%s\n", strings.ToUpper(string(severity)), titulo, mensagem)
	if runID != "" {
		fmt.Fprintf(&text, "\nrun_id: %s\n", runID)
	}
	if dadosJSON != "" {
		fmt.Fprintf(&text, "\ndados:\n%s\n", dadosJSON)
	}
	fmt.Fprintf(&text, "\n-- %s\n", time.Now().Format(time.RFC3339))

	var html strings.Builder
	fmt.Fprintf(&html, "<h2>%s</h2><p>%s</p>", titulo, mensagem)
	if runID != "" {
		fmt.Fprintf(&html, "<p><b>run_id:</b> %s</p>", runID)
	}
	if dadosJSON != "" {
		fmt.Fprintf(&html, "<pre>%s</pre>", dadosJSON)
	}

	return emailBody{text: text.String(), html: html.String()}, nil
}

// buildMIME assembles a multipart/alternative message the way
// mime/multipart's writer is meant to be used: a text/plain part as
// fallback, followed by text/html.
func buildMIME(from, to, subject string, body emailBody) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: Ache Sucatas <%s>\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", writer.Boundary())

	textPart, err := writer.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}})
	if err != nil {
		return nil, err
	}
	if _, err := textPart.Write([]byte(body.text)); err != nil {
		return nil, err
	}

	htmlPart, err := writer.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=utf-8"}})
	if err != nil {
		return nil, err
	}
	if _, err := htmlPart.Write([]byte(body.html)); err != nil {
		return nil, err
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
