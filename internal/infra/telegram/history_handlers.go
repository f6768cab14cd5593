// internal/infra/telegram/history_handlers.go
package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/cabapp/salary-ledger/internal/app"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// maxMessageLen stays below Telegram's 4096 character limit.
const maxMessageLen = 4000

func registerHistoryCallback(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, salaryService *app.SalaryService, baseLogger *logrus.Entry) {
	b.Handle(&telebot.Btn{Unique: historyUnique}, func(c telebot.Context) error {
		data := c.Callback().Data
		logCtx := baseLogger.WithFields(logrus.Fields{
			"handler":   "history_callback",
			"sender_id": c.Sender().ID,
		})

		driverID, err := uuid.Parse(data)
		if err != nil {
			c.Bot().OnError(fmt.Errorf("invalid driver ID %q in history callback: %w", data, err), c)
			return c.Respond(&telebot.CallbackResponse{Text: "Unknown driver."})
		}

		if !adminService.IsAdmin(c.Sender().ID) {
			own, err := adminService.FindDriverByTelegramID(ctx, c.Sender().ID)
			if err != nil || own != driverID {
				logCtx.Warn("Unauthorized history request")
				return c.Respond(&telebot.CallbackResponse{Text: msgUnauthorized})
			}
		}

		history, err := salaryService.GetHistory(ctx, driverID)
		if err != nil {
			return c.Respond(&telebot.CallbackResponse{Text: errorReply(logCtx.WithField("driver_id", driverID), err)})
		}
		for _, chunk := range chunkLines(FormatHistory(history), maxMessageLen) {
			if err := c.Send(chunk); err != nil {
				c.Bot().OnError(fmt.Errorf("error sending history for driver %s: %w", driverID, err), c)
				return c.Respond(&telebot.CallbackResponse{Text: "Could not send the history."})
			}
		}
		return c.Respond()
	})
}

// chunkLines splits text on line boundaries into pieces of at most limit bytes.
// A single line longer than limit is cut.
func chunkLines(text string, limit int) []string {
	var chunks []string
	var cur strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			if cur.Len() > 0 {
				chunks = append(chunks, cur.String())
				cur.Reset()
			}
			chunks = append(chunks, line[:limit])
			line = line[limit:]
		}
		if cur.Len()+len(line) > limit {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
