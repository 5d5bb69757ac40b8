// Package audit provides structured audit logging for registry mutations.
package audit

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

var (
	bearerTokenPattern = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9\-._~+/]+=*`)
	keyValuePattern    = regexp.MustCompile(`(?i)\b(token|secret|password|authorization)\s*[:=]\s*([^\s,;]+)`)
)

// Logger emits structured audit entries for credential and scope changes.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates an audit logger.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// ScopeGranted records one committed scope addition on a gateway client.
func (l *Logger) ScopeGranted(applicationID, environment, clientID, scope string) {
	if l == nil {
		return
	}
	l.logger.Info().
		Str("event", "apps.scope.granted").
		Str("application_id", applicationID).
		Str("environment", environment).
		Str("client_id", clientID).
		Str("scope", scope).
		Msg("scope granted")
}

// ScopeRevoked records one committed scope removal from a gateway client.
func (l *Logger) ScopeRevoked(applicationID, environment, clientID, scope string) {
	if l == nil {
		return
	}
	l.logger.Info().
		Str("event", "apps.scope.revoked").
		Str("application_id", applicationID).
		Str("environment", environment).
		Str("client_id", clientID).
		Str("scope", scope).
		Msg("scope revoked")
}

// CredentialIssued records creation of one gateway client.
func (l *Logger) CredentialIssued(applicationID, environment, clientID, actor string) {
	if l == nil {
		return
	}
	l.logger.Info().
		Str("event", "apps.credential.issued").
		Str("application_id", applicationID).
		Str("environment", environment).
		Str("client_id", clientID).
		Str("actor", actor).
		Msg("credential issued")
}

// CredentialRevoked records removal of one gateway client.
func (l *Logger) CredentialRevoked(applicationID, environment, clientID, actor string) {
	if l == nil {
		return
	}
	l.logger.Info().
		Str("event", "apps.credential.revoked").
		Str("application_id", applicationID).
		Str("environment", environment).
		Str("client_id", clientID).
		Str("actor", actor).
		Msg("credential revoked")
}

// AccessRequestDecided records one access request state transition.
func (l *Logger) AccessRequestDecided(requestID, applicationID, state, actor, note string) {
	if l == nil {
		return
	}
	entry := l.logger.Info().
		Str("event", "apps.access_request.decided").
		Str("request_id", requestID).
		Str("application_id", applicationID).
		Str("state", state).
		Str("actor", actor)
	if redacted := RedactSensitiveText(note); redacted != "" {
		entry = entry.Str("note", redacted)
	}
	entry.Msg("access request decided")
}

// RedactSensitiveText removes obvious secrets from free-text detail before
// it reaches the audit trail.
func RedactSensitiveText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	redacted := bearerTokenPattern.ReplaceAllString(trimmed, "Bearer [REDACTED]")
	redacted = keyValuePattern.ReplaceAllStringFunc(redacted, func(match string) string {
		parts := strings.SplitN(match, ":", 2)
		if len(parts) == 2 {
			return fmt.Sprintf("%s: [REDACTED]", strings.TrimSpace(parts[0]))
		}
		parts = strings.SplitN(match, "=", 2)
		if len(parts) == 2 {
			return fmt.Sprintf("%s=[REDACTED]", strings.TrimSpace(parts[0]))
		}
		return "[REDACTED]"
	})
	return redacted
}
