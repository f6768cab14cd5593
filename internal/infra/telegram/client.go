// internal/infra/telegram/client.go
package telegram

import (
	"fmt"

	"gopkg.in/telebot.v3"
)

// Client sends ledger messages to a Telegram chat.
type Client interface {
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
}

// TelebotAdapter implements Client on top of gopkg.in/telebot.v3.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// SendMessage delivers text to an admin's or driver's private chat.
func (tba *TelebotAdapter) SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error {
	if options == nil {
		options = &telebot.SendOptions{}
	}
	if _, err := tba.bot.Send(&telebot.User{ID: recipientChatID}, text, options); err != nil {
		return fmt.Errorf("send to chat %d: %w", recipientChatID, err)
	}
	return nil
}
