package logger

import (
	"context"

	"github.com/cabapp/salary-ledger/internal/domain/event"

	"github.com/sirupsen/logrus"
)

// EventPublisher writes ledger events to the log. It is the publisher used
// when no bot is configured.
type EventPublisher struct {
	entry *logrus.Entry
}

func NewEventPublisher(entry *logrus.Entry) *EventPublisher {
	return &EventPublisher{entry: entry}
}

func (p *EventPublisher) Publish(_ context.Context, e event.Event) error {
	p.entry.WithFields(logrus.Fields{
		"event":        e.Type,
		"driver_id":    e.DriverID,
		"cycle_number": e.CycleNumber,
		"amount":       e.Amount.String(),
		"base_salary":  e.BaseSalary.String(),
		"remaining":    e.Remaining.String(),
		"actor_id":     e.ActorID,
	}).Info("Ledger event")
	return nil
}
