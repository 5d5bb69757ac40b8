package notify

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiforge-io/apiforge-apps/internal/model"
)

func testRequest(state string) model.AccessRequest {
	return model.AccessRequest{
		ID:             "req-1",
		ApplicationID:  "app-1",
		RequestedBy:    "alice",
		RequesterEmail: "alice@example.com",
		Scopes:         []string{"pets:read", "pets:write"},
		Environments:   []string{"test"},
		State:          state,
		DecidedBy:      "bob",
		DecisionNote:   "looks fine",
	}
}

func TestSMTPMailer_SendsApprovalMail(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	mailer := NewSMTPMailer(SMTPConfig{
		Host: "mail.example.com",
		Port: 587,
		From: "apps@example.com",
	}, zerolog.Nop())
	mailer.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		assert.Nil(t, auth)
		return nil
	}

	err := mailer.AccessRequestDecided(context.Background(),
		model.Application{ID: "app-1", Name: "orders-portal"},
		testRequest(model.AccessRequestStateApproved))
	require.NoError(t, err)

	assert.Equal(t, "mail.example.com:587", gotAddr)
	assert.Equal(t, "apps@example.com", gotFrom)
	assert.Equal(t, []string{"alice@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: Access request approved for orders-portal")
	assert.Contains(t, string(gotMsg), "pets:read, pets:write")
	assert.Contains(t, string(gotMsg), "Reviewer note: looks fine")
}

func TestSMTPMailer_RejectionUsesRejectedTemplate(t *testing.T) {
	var gotMsg []byte
	mailer := NewSMTPMailer(SMTPConfig{Host: "mail.example.com", Port: 25, From: "apps@example.com"}, zerolog.Nop())
	mailer.send = func(_ string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
		gotMsg = msg
		return nil
	}

	err := mailer.AccessRequestDecided(context.Background(),
		model.Application{Name: "orders-portal"},
		testRequest(model.AccessRequestStateRejected))
	require.NoError(t, err)
	assert.Contains(t, string(gotMsg), "has been rejected")
}

func TestSMTPMailer_UsesPlainAuthWhenConfigured(t *testing.T) {
	mailer := NewSMTPMailer(SMTPConfig{
		Host:     "mail.example.com",
		Port:     587,
		From:     "apps@example.com",
		Username: "mailer",
		Password: "s3cret",
	}, zerolog.Nop())
	mailer.send = func(_ string, auth smtp.Auth, _ string, _ []string, _ []byte) error {
		assert.NotNil(t, auth)
		return nil
	}

	err := mailer.AccessRequestDecided(context.Background(),
		model.Application{Name: "orders-portal"},
		testRequest(model.AccessRequestStateApproved))
	require.NoError(t, err)
}

func TestSMTPMailer_SkipsRequestWithoutEmail(t *testing.T) {
	mailer := NewSMTPMailer(SMTPConfig{Host: "mail.example.com", Port: 587}, zerolog.Nop())
	mailer.send = func(_ string, _ smtp.Auth, _ string, _ []string, _ []byte) error {
		t.Fatal("send must not be called")
		return nil
	}

	request := testRequest(model.AccessRequestStateApproved)
	request.RequesterEmail = ""

	err := mailer.AccessRequestDecided(context.Background(), model.Application{}, request)
	require.NoError(t, err)
}

func TestSMTPMailer_WrapsSendError(t *testing.T) {
	sendErr := errors.New("connection refused")
	mailer := NewSMTPMailer(SMTPConfig{Host: "mail.example.com", Port: 587}, zerolog.Nop())
	mailer.send = func(_ string, _ smtp.Auth, _ string, _ []string, _ []byte) error {
		return sendErr
	}

	err := mailer.AccessRequestDecided(context.Background(),
		model.Application{Name: "orders-portal"},
		testRequest(model.AccessRequestStateApproved))
	assert.ErrorIs(t, err, sendErr)
}

func TestSMTPMailer_NoTemplateForPendingState(t *testing.T) {
	mailer := NewSMTPMailer(SMTPConfig{Host: "mail.example.com", Port: 587}, zerolog.Nop())
	mailer.send = func(_ string, _ smtp.Auth, _ string, _ []string, _ []byte) error {
		return nil
	}

	err := mailer.AccessRequestDecided(context.Background(),
		model.Application{Name: "orders-portal"},
		testRequest(model.AccessRequestStatePending))
	assert.Error(t, err)
}

func TestLogMailer_NeverFails(t *testing.T) {
	mailer := NewLogMailer(zerolog.Nop())
	err := mailer.AccessRequestDecided(context.Background(),
		model.Application{Name: "orders-portal"},
		testRequest(model.AccessRequestStateApproved))
	require.NoError(t, err)
}
