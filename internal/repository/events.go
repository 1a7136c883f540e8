package repository

import (
	"context"
	"database/sql"

	"boothpay/internal/database"
	"boothpay/internal/models"
)

// EventRepository is the inventory ledger: it reads an event's booth quota and
// sold count and only ever moves the count through guarded updates.
type EventRepository struct {
	db *database.DB
}

func NewEventRepository(db *database.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	query := `
		INSERT INTO events (title, published, booth_price, booth_quota, booth_sold)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	return r.db.Conn(ctx).QueryRowContext(ctx, query,
		event.Title,
		event.Published,
		event.BoothPrice,
		event.BoothQuota,
		event.BoothSold,
	).Scan(&event.ID)
}

func (r *EventRepository) GetByID(ctx context.Context, id int64) (*models.Event, error) {
	event := &models.Event{}
	query := `
		SELECT id, title, published, booth_price, booth_quota, booth_sold
		FROM events
		WHERE id = $1`

	err := r.db.Conn(ctx).QueryRowContext(ctx, query, id).Scan(
		&event.ID,
		&event.Title,
		&event.Published,
		&event.BoothPrice,
		&event.BoothQuota,
		&event.BoothSold,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}

	return event, err
}

// IncrementSold adds one sold booth when quota allows it. It returns false
// when the guard refused the increment.
func (r *EventRepository) IncrementSold(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE events
		SET booth_sold = booth_sold + 1, updated_at = NOW()
		WHERE id = $1
		  AND (booth_quota IS NULL OR booth_sold < booth_quota)`

	res, err := r.db.Conn(ctx).ExecContext(ctx, query, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
