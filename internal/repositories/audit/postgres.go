// Package audit stores the booking status history in PostgreSQL.
package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/AnshRaj112/driveshare-backend/internal/models"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Record inserts one transition. The id is generated by the database.
func (r *PostgresRepository) Record(ctx context.Context, e models.BookingEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO booking_events (booking_id, from_status, to_status, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.BookingID, string(e.From), string(e.To), e.ActorID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert booking event: %w", err)
	}
	return nil
}

// ListByBooking returns the history oldest first.
func (r *PostgresRepository) ListByBooking(ctx context.Context, bookingID string) ([]models.BookingEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, booking_id, from_status, to_status, actor_id, created_at
		FROM booking_events
		WHERE booking_id = $1
		ORDER BY created_at ASC
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("query booking events: %w", err)
	}
	defer rows.Close()

	var out []models.BookingEvent
	for rows.Next() {
		var (
			e        models.BookingEvent
			from, to string
		)
		if err := rows.Scan(&e.ID, &e.BookingID, &from, &to, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan booking event: %w", err)
		}
		e.From = models.BookingStatus(from)
		e.To = models.BookingStatus(to)
		out = append(out, e)
	}
	return out, rows.Err()
}
