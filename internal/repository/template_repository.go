package repository

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/optiportal/campaign-engine/internal/model"
)

type TemplateRepositoryInterface interface {
	Create(t *model.MessageTemplate) error
	Update(t *model.MessageTemplate) error
	Delete(id int) error
	GetByID(id int) (*model.MessageTemplate, error)
	List(channel, campaignType string) ([]model.MessageTemplate, error)
	DefaultFor(channel model.Channel, campaignType model.CampaignType) (*model.MessageTemplate, error)
}

type TemplateRepository struct {
	DB *sqlx.DB
}

const templateColumns = `id, name, channel, campaign_type, subject, body, is_default, created_at, updated_at`

// Create inserts the template. Saving a new default clears the
// previous default for the same (channel, campaign_type) in the same
// transaction, keeping at most one.
func (r *TemplateRepository) Create(t *model.MessageTemplate) error {
	tx, err := r.DB.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if t.IsDefault {
		if err := clearDefault(tx, t.Channel, t.CampaignType, 0); err != nil {
			return err
		}
	}
	query := `
        INSERT INTO message_templates (name, channel, campaign_type, subject, body, is_default, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW())
        RETURNING id, created_at
    `
	if err := tx.QueryRow(query, t.Name, t.Channel, t.CampaignType, t.Subject, t.Body, t.IsDefault).Scan(&t.ID, &t.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *TemplateRepository) Update(t *model.MessageTemplate) error {
	tx, err := r.DB.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if t.IsDefault {
		if err := clearDefault(tx, t.Channel, t.CampaignType, t.ID); err != nil {
			return err
		}
	}
	query := `
        UPDATE message_templates
        SET name=$1, channel=$2, campaign_type=$3, subject=$4, body=$5, is_default=$6, updated_at=NOW()
        WHERE id=$7
    `
	res, err := tx.Exec(query, t.Name, t.Channel, t.CampaignType, t.Subject, t.Body, t.IsDefault, t.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("template %d not found", t.ID)
	}
	return tx.Commit()
}

func clearDefault(tx *sqlx.Tx, channel model.Channel, campaignType model.CampaignType, keepID int) error {
	_, err := tx.Exec(
		`UPDATE message_templates SET is_default=FALSE WHERE channel=$1 AND campaign_type=$2 AND id<>$3`,
		channel, campaignType, keepID,
	)
	return err
}

func (r *TemplateRepository) Delete(id int) error {
	_, err := r.DB.Exec(`DELETE FROM message_templates WHERE id=$1`, id)
	return err
}

func (r *TemplateRepository) GetByID(id int) (*model.MessageTemplate, error) {
	var t model.MessageTemplate
	err := r.DB.Get(&t, `SELECT `+templateColumns+` FROM message_templates WHERE id=$1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *TemplateRepository) List(channel, campaignType string) ([]model.MessageTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM message_templates WHERE 1=1`
	args := []interface{}{}
	argPos := 1
	if channel != "" {
		query += fmt.Sprintf(" AND channel=$%d", argPos)
		args = append(args, channel)
		argPos++
	}
	if campaignType != "" {
		query += fmt.Sprintf(" AND campaign_type=$%d", argPos)
		args = append(args, campaignType)
	}
	query += " ORDER BY id"

	templates := []model.MessageTemplate{}
	if err := r.DB.Select(&templates, query, args...); err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *TemplateRepository) DefaultFor(channel model.Channel, campaignType model.CampaignType) (*model.MessageTemplate, error) {
	var t model.MessageTemplate
	err := r.DB.Get(&t,
		`SELECT `+templateColumns+` FROM message_templates WHERE channel=$1 AND campaign_type=$2 AND is_default LIMIT 1`,
		channel, campaignType,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
