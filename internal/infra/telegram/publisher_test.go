package telegram

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cabapp/salary-ledger/internal/domain/event"

	"github.com/shopspring/decimal"
	"gopkg.in/telebot.v3"
)

var errChatNotFound = errors.New("chat not found")

type sentMessage struct {
	chatID int64
	text   string
}

type fakeClient struct {
	sent   []sentMessage
	failOn int64
}

func (f *fakeClient) SendMessage(chatID int64, text string, _ *telebot.SendOptions) error {
	if chatID == f.failOn {
		return fmt.Errorf("send to chat %d: %w", chatID, errChatNotFound)
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func TestPublisher_SendsToAdminsAndDriver(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisher(client, []int64{100, 200}, discardLogger())

	err := p.Publish(context.Background(), event.Event{
		Type:             event.AdvanceGiven,
		DriverName:       "Ravi",
		DriverTelegramID: 555,
		Amount:           decimal.NewFromInt(50),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.sent) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(client.sent))
	}
	if client.sent[2].chatID != 555 {
		t.Errorf("expected driver to be notified last, got %d", client.sent[2].chatID)
	}
}

func TestPublisher_SkipsUnlinkedDriverAndDuplicates(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisher(client, []int64{100}, discardLogger())

	_ = p.Publish(context.Background(), event.Event{Type: event.SalarySet})
	_ = p.Publish(context.Background(), event.Event{Type: event.SalarySet, DriverTelegramID: 100})
	if len(client.sent) != 2 {
		t.Fatalf("expected one message per event, got %d", len(client.sent))
	}
}

func TestPublisher_ReportsDeliveryFailures(t *testing.T) {
	client := &fakeClient{failOn: 100}
	p := NewPublisher(client, []int64{100, 200}, discardLogger())

	err := p.Publish(context.Background(), event.Event{Type: event.SalarySet})
	if !errors.Is(err, errChatNotFound) {
		t.Fatalf("expected delivery error, got %v", err)
	}
	if len(client.sent) != 1 || client.sent[0].chatID != 200 {
		t.Errorf("expected remaining admin to be notified, got %+v", client.sent)
	}
}
