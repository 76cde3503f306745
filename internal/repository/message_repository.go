package repository

import (
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/optiportal/campaign-engine/internal/model"
)

type MessageRepositoryInterface interface {
	Record(msg *model.OutboundMessage) error
	LastContactTimes() (map[int]map[int]time.Time, error)
	StatsByCampaign(campaignID int) (map[string]int, error)
}

// MessageRepository persists send history. One row per (enrollment,
// step); a failed row is upgraded in place when the retry succeeds,
// and the unique index keeps a second 'sent' from ever appearing.
type MessageRepository struct {
	DB *sqlx.DB
}

func (r *MessageRepository) Record(msg *model.OutboundMessage) error {
	now := time.Now()
	msg.CreatedAt = now
	if msg.SentAt.IsZero() {
		msg.SentAt = now
	}
	query := `
        INSERT INTO outbound_messages
        (enrollment_id, campaign_id, customer_id, step_index, channel, status, rendered_body, rendered_subject, last_error, retry_count, sent_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11)
        ON CONFLICT (enrollment_id, step_index) DO UPDATE
        SET status=EXCLUDED.status,
            rendered_body=EXCLUDED.rendered_body,
            rendered_subject=EXCLUDED.rendered_subject,
            last_error=EXCLUDED.last_error,
            retry_count=outbound_messages.retry_count+1,
            sent_at=EXCLUDED.sent_at
        RETURNING id
    `
	return r.DB.QueryRow(query,
		msg.EnrollmentID, msg.CampaignID, msg.CustomerID, msg.StepIndex,
		msg.Channel, msg.Status, msg.RenderedBody, msg.RenderedSubject,
		msg.LastError, msg.SentAt, msg.CreatedAt,
	).Scan(&msg.ID)
}

// LastContactTimes returns, per customer and campaign, the most
// recent successful send. Feeds the cross-campaign cooldown floor and
// the recently-contacted exclusion.
func (r *MessageRepository) LastContactTimes() (map[int]map[int]time.Time, error) {
	rows, err := r.DB.Query(`
        SELECT customer_id, campaign_id, MAX(sent_at)
        FROM outbound_messages
        WHERE status = 'sent'
        GROUP BY customer_id, campaign_id
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int]map[int]time.Time{}
	for rows.Next() {
		var cust, camp int
		var t time.Time
		if err := rows.Scan(&cust, &camp, &t); err != nil {
			return nil, err
		}
		if out[cust] == nil {
			out[cust] = map[int]time.Time{}
		}
		out[cust][camp] = t
	}
	return out, rows.Err()
}

func (r *MessageRepository) StatsByCampaign(campaignID int) (map[string]int, error) {
	rows, err := r.DB.Query(`SELECT status, COUNT(*) FROM outbound_messages WHERE campaign_id=$1 GROUP BY status`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{"total": 0, "sent": 0, "failed": 0}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
		stats["total"] += count
	}
	return stats, rows.Err()
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)
