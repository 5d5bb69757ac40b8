// Package notify sends email notifications for access request decisions.
package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"

	"github.com/rs/zerolog"

	"github.com/apiforge-io/apiforge-apps/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var decisionTemplates = template.Must(template.ParseFS(templateFS, "templates/*.txt"))

// Notifier delivers access request decision notifications.
type Notifier interface {
	AccessRequestDecided(ctx context.Context, app model.Application, request model.AccessRequest) error
}

type decisionData struct {
	ApplicationName string
	RequestedBy     string
	DecidedBy       string
	DecisionNote    string
	Scopes          string
	Environments    string
}

// renderDecision builds the full message body, including the Subject header
// line, for one decided request.
func renderDecision(app model.Application, request model.AccessRequest) ([]byte, error) {
	var name string
	switch request.State {
	case model.AccessRequestStateApproved:
		name = "request_approved.txt"
	case model.AccessRequestStateRejected:
		name = "request_rejected.txt"
	default:
		return nil, fmt.Errorf("no notification template for state %q", request.State)
	}

	environments := strings.Join(request.Environments, ", ")
	if environments == "" {
		environments = "all"
	}

	var buf bytes.Buffer
	err := decisionTemplates.ExecuteTemplate(&buf, name, decisionData{
		ApplicationName: app.Name,
		RequestedBy:     request.RequestedBy,
		DecidedBy:       request.DecidedBy,
		DecisionNote:    request.DecisionNote,
		Scopes:          strings.Join(request.Scopes, ", "),
		Environments:    environments,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// SMTPConfig configures the SMTP mailer. Username and Password are optional;
// when empty the mailer connects without authentication.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

// SMTPMailer sends decision notifications over SMTP.
type SMTPMailer struct {
	cfg    SMTPConfig
	logger zerolog.Logger

	// send is swapped out in tests.
	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer creates a mailer that delivers via the configured SMTP host.
func NewSMTPMailer(cfg SMTPConfig, logger zerolog.Logger) *SMTPMailer {
	return &SMTPMailer{
		cfg:    cfg,
		logger: logger.With().Str("component", "notify").Logger(),
		send:   smtp.SendMail,
	}
}

// AccessRequestDecided emails the requester about an approve or reject
// decision. Requests without a requester email are skipped silently.
func (m *SMTPMailer) AccessRequestDecided(ctx context.Context, app model.Application, request model.AccessRequest) error {
	recipient := strings.TrimSpace(request.RequesterEmail)
	if recipient == "" {
		m.logger.Debug().
			Str("request_id", request.ID).
			Msg("request has no requester email, skipping notification")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := renderDecision(app, request)
	if err != nil {
		return err
	}

	msg := make([]byte, 0, len(body)+128)
	msg = append(msg, []byte("From: "+m.cfg.From+"\r\nTo: "+recipient+"\r\n")...)
	msg = append(msg, bytes.ReplaceAll(body, []byte("\n"), []byte("\r\n"))...)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	if err := m.send(addr, auth, m.cfg.From, []string{recipient}, msg); err != nil {
		return fmt.Errorf("sending decision mail to %q: %w", recipient, err)
	}

	m.logger.Info().
		Str("request_id", request.ID).
		Str("state", request.State).
		Str("recipient", recipient).
		Msg("decision notification sent")
	return nil
}

// LogMailer logs notifications instead of sending them. Used when no SMTP
// host is configured and in dev mode.
type LogMailer struct {
	logger zerolog.Logger
}

// NewLogMailer creates a log-only notifier.
func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With().Str("component", "notify").Logger()}
}

// AccessRequestDecided logs the decision instead of emailing it.
func (m *LogMailer) AccessRequestDecided(_ context.Context, app model.Application, request model.AccessRequest) error {
	m.logger.Info().
		Str("request_id", request.ID).
		Str("application", app.Name).
		Str("state", request.State).
		Str("recipient", request.RequesterEmail).
		Msg("decision notification (smtp disabled)")
	return nil
}
