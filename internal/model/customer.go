// internal/model/customer.go
package model

import "time"

// Customer carries the portal's customer record plus the order and
// appointment aggregates the segment evaluator filters on.
type Customer struct {
	ID              int        `db:"id" json:"id"`
	FirstName       string     `db:"first_name" json:"first_name"`
	LastName        string     `db:"last_name" json:"last_name"`
	Phone           string     `db:"phone" json:"phone"`
	Email           string     `db:"email" json:"email"`
	City            string     `db:"city" json:"city"`
	PreferredBrand  string     `db:"preferred_brand" json:"preferred_brand"`
	BirthDate       *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	MarketingOptOut bool       `db:"marketing_opt_out" json:"marketing_opt_out"`
	SMSOptOut       bool       `db:"sms_opt_out" json:"sms_opt_out"`
	EmailOptOut     bool       `db:"email_opt_out" json:"email_opt_out"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`

	// Derived aggregates, joined in by the repository.
	TotalSpent  float64    `db:"total_spent" json:"total_spent"`
	OrderCount  int        `db:"order_count" json:"order_count"`
	LastOrderAt *time.Time `db:"last_order_at" json:"last_order_at,omitempty"`
	LastExamAt  *time.Time `db:"last_exam_at" json:"last_exam_at,omitempty"`
}

// OptedOutOf reports the channel-specific opt-out, falling back to the
// blanket marketing opt-out.
func (c *Customer) OptedOutOf(ch Channel) bool {
	if c.MarketingOptOut {
		return true
	}
	switch ch {
	case ChannelSMS:
		return c.SMSOptOut
	case ChannelEmail:
		return c.EmailOptOut
	}
	return false
}

// Reachable reports whether the customer has a contact method for the
// channel.
func (c *Customer) Reachable(ch Channel) bool {
	switch ch {
	case ChannelSMS:
		return c.Phone != ""
	case ChannelEmail:
		return c.Email != ""
	}
	return false
}
