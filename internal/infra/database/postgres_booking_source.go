package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cabapp/salary-ledger/internal/domain/booking"

	"github.com/google/uuid"
)

// PostgresBookingSource reads ride summaries from the booking subsystem's
// bookings table.
type PostgresBookingSource struct {
	db *sql.DB
}

func NewPostgresBookingSource(db *sql.DB) *PostgresBookingSource {
	return &PostgresBookingSource{db: db}
}

func (s *PostgresBookingSource) ListByDriver(ctx context.Context, driverID uuid.UUID) ([]booking.Booking, error) {
	query := `SELECT id, fare, status FROM bookings WHERE driver_id = $1 ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, driverID)
	if err != nil {
		return nil, fmt.Errorf("error listing bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]booking.Booking, 0)
	for rows.Next() {
		var b booking.Booking
		if err := rows.Scan(&b.ID, &b.Fare, &b.Status); err != nil {
			return nil, fmt.Errorf("error scanning booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}
	return bookings, nil
}
