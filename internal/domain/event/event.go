package event

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type names a ledger event.
type Type string

const (
	SalarySet       Type = "salary.set"
	SalaryAdjusted  Type = "salary.adjusted"
	AdvanceGiven    Type = "advance.given"
	CycleRolledOver Type = "cycle.rolled_over"
)

// Event is published after a ledger change has been persisted.
type Event struct {
	Type             Type
	DriverID         uuid.UUID
	DriverName       string
	DriverTelegramID int64
	CycleNumber      int
	Amount           decimal.Decimal
	BaseSalary       decimal.Decimal
	Remaining        decimal.Decimal
	ActorID          int64
	Note             string
	At               time.Time
}

// Publisher notifies observers of ledger events. It is injected into the
// components that need it.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to several publishers and returns the first error.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
