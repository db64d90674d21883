package models

import "time"

type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusSending JobStatus = "sending"
	JobStatusSent    JobStatus = "sent"
	JobStatusFailed  JobStatus = "failed"
)

// NotificationJob is the unit of work on the queue: one recipient, one
// message. Attempts only ever grows; a job that reached "sent" is never
// dispatched again even if the queue redelivers it.
type NotificationJob struct {
	ID         string    `json:"id"`
	Recipient  string    `json:"recipient"`
	Message    string    `json:"message"`
	Status     JobStatus `json:"status"`
	Attempts   int       `json:"attempt_count"`
	Provider   string    `json:"provider,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Subscription ties a recipient to the location they want outbreak
// notifications for. Locations match case-insensitively at fan-out time.
type Subscription struct {
	Recipient string    `json:"recipient"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"created_at"`
}
