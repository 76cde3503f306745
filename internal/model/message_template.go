// internal/model/message_template.go
package model

import "time"

// MessageTemplate is a reusable message body keyed by channel and
// optional campaign type. At most one default per (channel, type) —
// the repository enforces it when a new default is saved.
type MessageTemplate struct {
	ID           int          `db:"id" json:"id"`
	Name         string       `db:"name" json:"name"`
	Channel      Channel      `db:"channel" json:"channel"`
	CampaignType CampaignType `db:"campaign_type" json:"campaign_type,omitempty"`
	Subject      string       `db:"subject" json:"subject,omitempty"`
	Body         string       `db:"body" json:"body"`
	IsDefault    bool         `db:"is_default" json:"is_default"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    *time.Time   `db:"updated_at" json:"updated_at,omitempty"`
}
