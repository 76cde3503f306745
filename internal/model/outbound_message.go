// internal/model/outbound_message.go
package model

import "time"

// OutboundMessage is the send-history record for one (enrollment,
// step) pair. A unique index on that pair is the at-most-once
// backstop behind the claim-before-send gate.
type OutboundMessage struct {
	ID              int       `db:"id" json:"id"`
	EnrollmentID    int       `db:"enrollment_id" json:"enrollment_id"`
	CampaignID      int       `db:"campaign_id" json:"campaign_id"`
	CustomerID      int       `db:"customer_id" json:"customer_id"`
	StepIndex       int       `db:"step_index" json:"step_index"`
	Channel         Channel   `db:"channel" json:"channel"`
	Status          string    `db:"status" json:"status"` // sent, failed
	RenderedBody    string    `db:"rendered_body" json:"rendered_body"`
	RenderedSubject string    `db:"rendered_subject" json:"rendered_subject,omitempty"`
	LastError       string    `db:"last_error" json:"last_error,omitempty"`
	RetryCount      int       `db:"retry_count" json:"retry_count"`
	SentAt          time.Time `db:"sent_at" json:"sent_at"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

const (
	MessageSent   = "sent"
	MessageFailed = "failed"
)
