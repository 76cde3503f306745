package repository

import (
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/optiportal/campaign-engine/internal/model"
)

// CustomerRepositoryInterface defines what the engine needs from the
// customer store
type CustomerRepositoryInterface interface {
	GetByID(id int) (*model.Customer, error)
	ListPopulation() ([]model.Customer, error)
}

// CustomerRepository is the concrete implementation
type CustomerRepository struct {
	DB *sqlx.DB
}

// populationQuery joins the order and appointment aggregates the
// segment evaluator filters on.
const populationQuery = `
    SELECT c.id, c.first_name, c.last_name, c.phone, c.email, c.city,
           c.preferred_brand, c.birth_date, c.marketing_opt_out,
           c.sms_opt_out, c.email_opt_out, c.created_at,
           COALESCE(o.total_spent, 0)  AS total_spent,
           COALESCE(o.order_count, 0)  AS order_count,
           o.last_order_at,
           a.last_exam_at
    FROM customers c
    LEFT JOIN (
        SELECT customer_id,
               SUM(total) AS total_spent,
               COUNT(*)   AS order_count,
               MAX(placed_at) AS last_order_at
        FROM orders
        GROUP BY customer_id
    ) o ON o.customer_id = c.id
    LEFT JOIN (
        SELECT customer_id, MAX(occurred_at) AS last_exam_at
        FROM appointments
        WHERE kind = 'exam' AND status = 'completed'
        GROUP BY customer_id
    ) a ON a.customer_id = c.id
`

// GetByID fetches one customer with aggregates
func (r *CustomerRepository) GetByID(id int) (*model.Customer, error) {
	var c model.Customer
	err := r.DB.Get(&c, populationQuery+` WHERE c.id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, err
	}
	return &c, nil
}

// ListPopulation fetches every customer with aggregates, the input to
// segment evaluation
func (r *CustomerRepository) ListPopulation() ([]model.Customer, error) {
	customers := []model.Customer{}
	if err := r.DB.Select(&customers, populationQuery+` ORDER BY c.id`); err != nil {
		return nil, err
	}
	return customers, nil
}

var _ CustomerRepositoryInterface = (*CustomerRepository)(nil)
