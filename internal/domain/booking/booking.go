package booking

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StatusCompleted marks a booking whose fare counts towards earnings.
const StatusCompleted = "completed"

// Booking is the ride summary the salary report needs from the booking subsystem.
type Booking struct {
	ID     string
	Fare   decimal.Decimal
	Status string
}

// Source lists the bookings served by a driver.
type Source interface {
	ListByDriver(ctx context.Context, driverID uuid.UUID) ([]Booking, error)
}

// Earnings returns the number of completed bookings and the sum of their fares.
func Earnings(bookings []Booking) (int, decimal.Decimal) {
	completed := 0
	total := decimal.Zero
	for _, b := range bookings {
		if b.Status != StatusCompleted {
			continue
		}
		completed++
		total = total.Add(b.Fare)
	}
	return completed, total
}
