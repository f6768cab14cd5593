// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cabapp/salary-ledger/internal/app"
	"github.com/cabapp/salary-ledger/internal/domain/driver"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	adminService *app.AdminService,
	baseLogger *logrus.Entry, // For contextual logging
) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")

		if adminService.IsAdmin(senderID) {
			logCtx.Info("User identified as Admin")
			return c.Send(fmt.Sprintf("Hello, %s! The salary ledger is ready. Use /help for the list of commands.", c.Sender().FirstName))
		}

		driverID, err := adminService.FindDriverByTelegramID(ctx, senderID)
		if err == nil {
			logCtx.WithField("driver_id", driverID).Info("User identified as Driver")
			return c.Send(fmt.Sprintf("Hello, %s! I will tell you about salary changes and advances. Use /salary_status to see your current cycle.", c.Sender().FirstName))
		} else if !errors.Is(err, driver.ErrNotFound) {
			logCtx.WithError(err).Error("Error checking driver status for /start command")
			return c.Send("Could not check your status. Please try again later.")
		}

		logCtx.Info("User is unknown")
		return c.Send("Hello! This is the driver salary ledger. If you are a driver, ask an admin to register you.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/help").WithField("sender_id", senderID)
		logCtx.Info("Processing /help command")

		if adminService.IsAdmin(senderID) {
			logCtx.Info("User identified as Admin, sending admin help.")
			return c.Send(adminHelp(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
		}

		driverID, err := adminService.FindDriverByTelegramID(ctx, senderID)
		if err == nil {
			logCtx.WithField("driver_id", driverID).Info("User identified as Driver, sending driver help.")
			return c.Send("`/salary_status` - Show your current salary cycle, past cycles and recent transactions.\n\n`/help` - Show this message.",
				&telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
		} else if !errors.Is(err, driver.ErrNotFound) {
			logCtx.WithError(err).Error("Error checking driver status for /help command")
			return c.Send("Could not check your status. Please try again later.")
		}

		logCtx.Info("User is unknown, sending restricted help.")
		return c.Send("No commands are available to you. If you are a driver, ask an admin to register you.")
	})
}

func adminHelp() string {
	var helpText strings.Builder
	helpText.WriteString("Admin commands:\n\n")
	helpText.WriteString("`<driver>` is a driver ID or the driver's Telegram ID.\n\n")
	helpText.WriteString("`/add_driver <TelegramID|0> <Name> [YYYY-MM-DD]`\n - Register a driver. The first cycle starts on the given date or today.\n\n")
	helpText.WriteString("`/list_drivers`\n - Show all registered drivers.\n\n")
	helpText.WriteString("`/set_salary <driver> <amount> [note]`\n - Set the base salary of the current cycle.\n\n")
	helpText.WriteString("`/adjust_salary <driver> <increase|decrease> <amount> [note]`\n - Change the base salary. It never drops below zero.\n\n")
	helpText.WriteString("`/advance <driver> <amount> [note] [YYYY-MM-DD]`\n - Record a cash advance against the current cycle.\n\n")
	helpText.WriteString("`/salary_status <driver>`\n - Show the current cycle, past cycles and recent transactions.\n\n")
	helpText.WriteString("`/driver_report <driver>`\n - Show salary figures together with booking earnings.\n\n")
	helpText.WriteString("`/help`\n - Show this message.")
	return helpText.String()
}
