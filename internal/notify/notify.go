// Package notify delivers lifecycle notifications to messaging channels.
// Delivery is fire-and-forget from the caller's point of view: callers log
// and count failures but never undo the state change that triggered them.
package notify

import (
	"context"
	"encoding/json"
	"time"
)

type EventType string

const (
	TypeDonationCreated        EventType = "donation.created"
	TypeDonationStatusChanged  EventType = "donation.status_changed"
	TypeVerificationCodeIssued EventType = "verification.code_issued"
)

// Event is the JSON envelope published to every sink.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	DonationID string    `json:"donation_id,omitempty"`
	DraftID    string    `json:"draft_id,omitempty"`
	ProjectID  string    `json:"project_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Amount     int64     `json:"amount,omitempty"`
	Method     string    `json:"method,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Recipient  string    `json:"recipient,omitempty"`
}

// Key groups events of the same donation or draft on one partition.
func (e Event) Key() string {
	if e.DonationID != "" {
		return e.DonationID
	}
	return e.DraftID
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Sink is one delivery channel.
type Sink interface {
	Notify(ctx context.Context, event Event) error
}
