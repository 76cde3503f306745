// internal/model/enrollment.go
package model

import "time"

// Enrollment tracks one customer's progress through one campaign's
// drip sequence. LastStepSent is -1 until the first step goes out.
type Enrollment struct {
	ID           int        `db:"id" json:"id"`
	CampaignID   int        `db:"campaign_id" json:"campaign_id"`
	CustomerID   int        `db:"customer_id" json:"customer_id"`
	EnrolledAt   time.Time  `db:"enrolled_at" json:"enrolled_at"`
	LastStepSent int        `db:"last_step_sent" json:"last_step_sent"`
	LastSentAt   *time.Time `db:"last_sent_at" json:"last_sent_at,omitempty"`
	Converted    bool       `db:"converted" json:"converted"`
	OptedOut     bool       `db:"opted_out" json:"opted_out"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the enrollment is excluded from further
// scheduling: opted out, converted under stop-on-conversion, or all
// steps sent. Terminal enrollments are kept for reporting.
func (e *Enrollment) Terminal(cfg CampaignConfig) bool {
	if e.OptedOut {
		return true
	}
	if e.Converted && cfg.StopOnConversion {
		return true
	}
	return e.LastStepSent >= len(cfg.Steps)-1
}
