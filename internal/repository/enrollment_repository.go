package repository

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	appErrors "github.com/optiportal/campaign-engine/internal/errors"
	"github.com/optiportal/campaign-engine/internal/model"
)

type EnrollmentRepositoryInterface interface {
	Get(campaignID, customerID int) (*model.Enrollment, error)
	Create(e *model.Enrollment) error
	ListByCampaign(campaignID int) ([]model.Enrollment, error)
	ClaimStep(enrollmentID, fromStep, toStep int, sentAt time.Time) error
	ReleaseStep(enrollmentID, fromStep, toStep int, prevSentAt *time.Time) error
	MarkConverted(customerID int) (int64, error)
	MarkOptedOut(customerID int) (int64, error)
}

type EnrollmentRepository struct {
	DB *sqlx.DB
}

const enrollmentColumns = `id, campaign_id, customer_id, enrolled_at, last_step_sent, last_sent_at, converted, opted_out, created_at, updated_at`

func (r *EnrollmentRepository) Get(campaignID, customerID int) (*model.Enrollment, error) {
	var e model.Enrollment
	err := r.DB.Get(&e, `SELECT `+enrollmentColumns+` FROM enrollments WHERE campaign_id=$1 AND customer_id=$2`, campaignID, customerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// Create is idempotent on (campaign, customer): a concurrent insert of
// the same pair leaves the existing row untouched and hydrates e from
// it.
func (r *EnrollmentRepository) Create(e *model.Enrollment) error {
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now
	query := `
        INSERT INTO enrollments (campaign_id, customer_id, enrolled_at, last_step_sent, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (campaign_id, customer_id) DO NOTHING
        RETURNING id
    `
	err := r.DB.QueryRow(query, e.CampaignID, e.CustomerID, e.EnrolledAt, e.LastStepSent, e.CreatedAt, e.UpdatedAt).Scan(&e.ID)
	if err == sql.ErrNoRows {
		existing, err := r.Get(e.CampaignID, e.CustomerID)
		if err != nil {
			return err
		}
		if existing != nil {
			*e = *existing
		}
		return nil
	}
	return err
}

func (r *EnrollmentRepository) ListByCampaign(campaignID int) ([]model.Enrollment, error) {
	enrollments := []model.Enrollment{}
	err := r.DB.Select(&enrollments, `SELECT `+enrollmentColumns+` FROM enrollments WHERE campaign_id=$1 ORDER BY id`, campaignID)
	if err != nil {
		return nil, err
	}
	return enrollments, nil
}

// ClaimStep advances last_step_sent from fromStep to toStep only if it
// is still fromStep. Zero rows affected means another process got
// there first; the caller skips the send.
func (r *EnrollmentRepository) ClaimStep(enrollmentID, fromStep, toStep int, sentAt time.Time) error {
	query := `
        UPDATE enrollments
        SET last_step_sent=$1, last_sent_at=$2, updated_at=NOW()
        WHERE id=$3 AND last_step_sent=$4
    `
	res, err := r.DB.Exec(query, toStep, sentAt, enrollmentID, fromStep)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.ErrStepAlreadyClaimed
	}
	return nil
}

// ReleaseStep rolls a claim back after a transport failure so the next
// run retries the step.
func (r *EnrollmentRepository) ReleaseStep(enrollmentID, fromStep, toStep int, prevSentAt *time.Time) error {
	query := `
        UPDATE enrollments
        SET last_step_sent=$1, last_sent_at=$2, updated_at=NOW()
        WHERE id=$3 AND last_step_sent=$4
    `
	_, err := r.DB.Exec(query, fromStep, prevSentAt, enrollmentID, toStep)
	return err
}

// MarkConverted flags every non-terminal enrollment of the customer.
// Returns the number of enrollments touched.
func (r *EnrollmentRepository) MarkConverted(customerID int) (int64, error) {
	res, err := r.DB.Exec(`UPDATE enrollments SET converted=TRUE, updated_at=NOW() WHERE customer_id=$1 AND NOT converted`, customerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkOptedOut flags every enrollment of the customer as opted out.
func (r *EnrollmentRepository) MarkOptedOut(customerID int) (int64, error) {
	res, err := r.DB.Exec(`UPDATE enrollments SET opted_out=TRUE, updated_at=NOW() WHERE customer_id=$1 AND NOT opted_out`, customerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ EnrollmentRepositoryInterface = (*EnrollmentRepository)(nil)
