// Package queue moves reconciliation work through per-organization queues so
// one tenant's backlog or failures cannot starve another's.
package queue

import (
	"crypto/rand"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Task kinds.
const (
	KindPaypalTransaction = "paypal.transaction"
	KindAttendeeUpdated   = "eventbrite.attendee_updated"
	KindCheckIn           = "eventbrite.checked_in"
	KindEventUpdated      = "eventbrite.event_updated"
	KindWebhook           = "eventbrite.webhook"
)

// Task is one unit of reconciliation work. Payload is kind-specific.
type Task struct {
	ID         string          `json:"id"`
	OrgSlug    string          `json:"org_slug"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// AttendeePayload locates one attendee of one event.
type AttendeePayload struct {
	AttendeeID string `json:"attendee_id"`
	EventID    string `json:"event_id"`
}

// EventPayload locates one event.
type EventPayload struct {
	EventID string `json:"event_id"`
}

// WebhookPayload carries a webhook notification whose object has not been
// resolved yet: notification payloads go stale, so the object is fetched by
// the worker at processing time.
type WebhookPayload struct {
	Action string `json:"action"`
	APIURL string `json:"api_url"`
}

// NewTaskID returns a sortable unique task id.
func NewTaskID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}

// NewTask builds a task with a marshalled payload.
func NewTask(now time.Time, orgSlug, kind string, payload any) (*Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Task{
		ID:         NewTaskID(now),
		OrgSlug:    orgSlug,
		Kind:       kind,
		Payload:    raw,
		EnqueuedAt: now,
	}, nil
}
