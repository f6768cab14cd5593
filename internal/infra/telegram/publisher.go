package telegram

import (
	"context"
	"errors"
	"slices"

	"github.com/cabapp/salary-ledger/internal/domain/event"

	"github.com/sirupsen/logrus"
)

// Publisher delivers ledger events as chat messages to every admin and,
// when linked, to the affected driver.
type Publisher struct {
	client   Client
	adminIDs []int64
	logger   *logrus.Entry
}

func NewPublisher(client Client, adminIDs []int64, logger *logrus.Entry) *Publisher {
	return &Publisher{client: client, adminIDs: adminIDs, logger: logger}
}

func (p *Publisher) Publish(_ context.Context, e event.Event) error {
	text := FormatEvent(e)
	recipients := append([]int64(nil), p.adminIDs...)
	if e.DriverTelegramID != 0 && !slices.Contains(recipients, e.DriverTelegramID) {
		recipients = append(recipients, e.DriverTelegramID)
	}

	var errs []error
	for _, chatID := range recipients {
		if err := p.client.SendMessage(chatID, text, nil); err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"event":   e.Type,
				"chat_id": chatID,
			}).Warn("Failed to deliver ledger event")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
