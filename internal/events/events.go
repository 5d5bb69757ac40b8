// Package events defines the lifecycle events published by the registry and
// the relay that drains the transactional outbox to NATS.
package events

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Source identifies this service in published events.
const Source = "apiforge-apps"

// Event types published by the registry.
const (
	TypeApplicationLifecycle  = "apiforge.apps.applications.lifecycle"
	TypeCredentialLifecycle   = "apiforge.apps.credentials.lifecycle"
	TypeAccessRequestDecision = "apiforge.apps.access_requests.decision"
	TypeScopesFix             = "apiforge.apps.scopes.fix"
)

// Event is one outbox row. Events are written in the same transaction as
// the store mutation they describe and published asynchronously.
type Event struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	Type      string          `json:"type"`
	Subject   string          `json:"subject"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	SentAt    *time.Time      `json:"sentAt,omitempty"`
}

var readEventRandom = rand.Read

// New builds an event with a fresh ID and the payload marshaled as JSON.
func New(eventType, subject string, payload any) (Event, error) {
	id, err := newEventID()
	if err != nil {
		return Event{}, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshaling %s payload: %w", eventType, err)
	}

	return Event{
		ID:      id,
		Source:  Source,
		Type:    eventType,
		Subject: subject,
		Data:    data,
	}, nil
}

func newEventID() (string, error) {
	var id [16]byte
	if _, err := readEventRandom(id[:]); err != nil {
		return "", fmt.Errorf("generating event id: %w", err)
	}
	return "evt-" + hex.EncodeToString(id[:]), nil
}
