package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cabapp/salary-ledger/internal/app"
	"github.com/cabapp/salary-ledger/internal/domain/driver"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const (
	msgUnauthorized = "Error: you are not allowed to run this command."
	historyUnique   = "salary_history"
)

var errUsage = errors.New("invalid command format")

// RegisterAdminHandlers registers the ledger commands. Every command except a
// driver's own /salary_status requires a configured admin.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, salaryService *app.SalaryService, baseLogger *logrus.Entry) {
	b.Handle("/add_driver", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/add_driver",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if !adminService.IsAdmin(c.Sender().ID) {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(msgUnauthorized)
		}

		in, err := parseAddDriverArgs(c.Args())
		if err != nil {
			handlerLogger.WithField("args_count", len(c.Args())).Warn("Invalid command format")
			return c.Send("Invalid command format. Use: /add_driver <TelegramID|0> <Name> [YYYY-MM-DD]")
		}
		handlerLogger = handlerLogger.WithFields(logrus.Fields{
			"driver_telegram_id": in.TelegramID,
			"name":               in.Name,
		})

		newDriver, err := adminService.RegisterDriver(ctx, c.Sender().ID, in)
		if err != nil {
			if errors.Is(err, app.ErrDriverAlreadyExists) {
				handlerLogger.WithError(err).Warn("Driver already exists")
				return c.Send(fmt.Sprintf("Error: a driver with Telegram ID %d already exists.", in.TelegramID))
			}
			return c.Send(errorReply(handlerLogger, err))
		}

		handlerLogger.WithField("driver_id", newDriver.ID).Info("Driver registered successfully")
		return c.Send(fmt.Sprintf("Driver %s registered.\nID: %s\nFirst cycle starts %s.",
			newDriver.Name, newDriver.ID, newDriver.CurrentCycle.StartDate.Format(dateLayout)))
	})

	b.Handle("/list_drivers", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/list_drivers",
			"sender_id": c.Sender().ID,
		})

		profiles, err := adminService.ListDrivers(ctx, c.Sender().ID)
		if err != nil {
			return c.Send(errorReply(handlerLogger, err))
		}
		if len(profiles) == 0 {
			return c.Send("No drivers registered yet.")
		}

		handlerLogger.WithField("drivers_count", len(profiles)).Info("Successfully retrieved driver list")
		var response strings.Builder
		response.WriteString("--- Drivers ---\n")
		for _, p := range profiles {
			response.WriteString(fmt.Sprintf("%s, Telegram ID: %d, ID: %s\n", p.Name, p.TelegramID, p.ID))
		}
		return c.Send(response.String())
	})

	b.Handle("/set_salary", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/set_salary",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if err := adminService.Authorize(c.Sender().ID); err != nil {
			return c.Send(errorReply(handlerLogger, err))
		}
		ref, amount, note, err := parseAmountArgs(c.Args())
		if err != nil {
			return c.Send(usageReply(err, "/set_salary <driver> <amount> [note]"))
		}
		driverID, err := resolveDriver(ctx, adminService, ref)
		if err != nil {
			return c.Send(errorReply(handlerLogger, err))
		}
		handlerLogger = handlerLogger.WithField("driver_id", driverID)

		st, err := salaryService.SetSalary(ctx, driverID, app.SetSalaryInput{Amount: amount, Note: note, ActorID: c.Sender().ID})
		if err != nil {
			return c.Send(errorReply(handlerLogger, err))
		}
		handlerLogger.WithField("cycle_number", st.CurrentCycle.Number).Info("Salary set")
		return c.Send(FormatCycleStatus(st))
	})

	b.Handle("/adjust_salary", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/adjust_salary",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if err := adminService.Authorize(c.Sender().ID); err != nil {
			return c.Send(errorReply(handlerLogger, err))
		}
		ref, in, err := parseAdjustArgs(c.Args())
		if err != nil {
			return c.Send(usageReply(err, "/adjust_salary <driver> <increase|decrease> <amount> [note]"))
		}
		driverID, err := resolveDriver(ctx, adminService, ref)
		if err != nil {
			return c.Send(errorReply(handlerLogger, err))
		}
		handlerLogger = handlerLogger.WithField("driver_id", driverID)

		in.ActorID = c.Sender().ID
		st, err := salaryService.AdjustSalary(ctx, driverID, in)
		if err != nil {
			return c.Send(errorReply(handlerLogger, err))
		}
		handlerLogger.WithField("change_type", in.ChangeType).Info("Salary adjusted")
		return c.Send(FormatCycleStatus(st))
	})

	b.Handle("/advance", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/advance",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if err := adminService.Authorize(c.Sender().ID); err != nil {
			return c.Send(errorReply(handlerLogger, err))
		}
		args, date := splitDate(c.Args())
		ref, amount, note, err := parseAmountArgs(args)
		if err != nil {
			return c.Send(usageReply(err, "/advance <driver> <amount> [note] [YYYY-MM-DD]"))
		}
		driverID, err := resolveDriver(ctx, adminService, ref)
		if err != nil {
			return c.Send(errorReply(handlerLogger, err))
		}
		handlerLogger = handlerLogger.WithField("driver_id", driverID)

		st, err := salaryService.GiveAdvance(ctx, driverID, app.GiveAdvanceInput{
			Amount:     amount,
			Note:       note,
			Date:       date,
			ApprovedBy: c.Sender().ID,
		})
		if err != nil {
			return c.Send(errorReply(handlerLogger, err))
		}
		handlerLogger.WithField("amount", amount.String()).Info("Advance given")
		return c.Send(FormatCycleStatus(st))
	})

	b.Handle("/salary_status", func(c telebot.Context) error {
		senderID := c.Sender().ID
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/salary_status",
			"sender_id": senderID,
		})
		handlerLogger.Info("Command received")

		var driverID uuid.UUID
		var err error
		switch args := c.Args(); {
		case adminService.IsAdmin(senderID):
			if len(args) != 1 {
				return c.Send("Invalid command format. Use: /salary_status <driver>")
			}
			driverID, err = resolveDriver(ctx, adminService, args[0])
		case len(args) == 0:
			// drivers may look at their own ledger
			driverID, err = adminService.FindDriverByTelegramID(ctx, senderID)
		default:
			err = app.ErrAdminNotAuthorized
		}
		if err != nil {
			return c.Send(errorReply(handlerLogger, err))
		}

		st, err := salaryService.GetSalaryStatus(ctx, driverID)
		if err != nil {
			return c.Send(errorReply(handlerLogger, err))
		}
		markup := &telebot.ReplyMarkup{}
		markup.Inline(markup.Row(markup.Data("Full history", historyUnique, driverID.String())))
		return c.Send(FormatSalaryStatus(st), &telebot.SendOptions{ReplyMarkup: markup})
	})

	b.Handle("/driver_report", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/driver_report",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if err := adminService.Authorize(c.Sender().ID); err != nil {
			return c.Send(errorReply(handlerLogger, err))
		}
		args := c.Args()
		if len(args) != 1 {
			return c.Send("Invalid command format. Use: /driver_report <driver>")
		}
		driverID, err := resolveDriver(ctx, adminService, args[0])
		if err != nil {
			return c.Send(errorReply(handlerLogger, err))
		}

		report, err := salaryService.GetDriverReport(ctx, driverID)
		if err != nil {
			return c.Send(errorReply(handlerLogger.WithField("driver_id", driverID), err))
		}
		return c.Send(FormatDriverReport(report))
	})

	registerHistoryCallback(ctx, b, adminService, salaryService, baseLogger)
}

// resolveDriver accepts either a driver ID or the driver's Telegram ID.
func resolveDriver(ctx context.Context, adminService *app.AdminService, ref string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}
	telegramID, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return uuid.Nil, driver.ErrNotFound
	}
	return adminService.FindDriverByTelegramID(ctx, telegramID)
}

func parseAddDriverArgs(args []string) (app.RegisterDriverInput, error) {
	args, date := splitDate(args)
	if len(args) < 2 {
		return app.RegisterDriverInput{}, errUsage
	}
	telegramID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return app.RegisterDriverInput{}, fmt.Errorf("%w: Telegram ID must be a number", errUsage)
	}
	return app.RegisterDriverInput{
		Name:             strings.Join(args[1:], " "),
		TelegramID:       telegramID,
		RegistrationDate: date,
	}, nil
}

// parseAmountArgs reads "<driver> <amount> [note...]".
func parseAmountArgs(args []string) (string, decimal.Decimal, string, error) {
	if len(args) < 2 {
		return "", decimal.Zero, "", errUsage
	}
	amount, err := parseAmount(args[1])
	if err != nil {
		return "", decimal.Zero, "", fmt.Errorf("%w: %w", errUsage, err)
	}
	return args[0], amount, strings.Join(args[2:], " "), nil
}

// parseAdjustArgs reads "<driver> <increase|decrease> <amount> [note...]".
func parseAdjustArgs(args []string) (string, app.AdjustSalaryInput, error) {
	if len(args) < 3 {
		return "", app.AdjustSalaryInput{}, errUsage
	}
	amount, err := parseAmount(args[2])
	if err != nil {
		return "", app.AdjustSalaryInput{}, fmt.Errorf("%w: %w", errUsage, err)
	}
	return args[0], app.AdjustSalaryInput{
		Amount:     amount,
		ChangeType: app.ChangeType(strings.ToLower(args[1])),
		Note:       strings.Join(args[3:], " "),
	}, nil
}

func usageReply(err error, usage string) string {
	msg := "Invalid command format. Use: " + usage
	if detail := strings.TrimPrefix(err.Error(), errUsage.Error()); detail != "" {
		msg = strings.TrimPrefix(detail, ": ") + "\n" + msg
	}
	return msg
}

// errorReply logs err at the level its kind deserves and returns the chat reply.
func errorReply(log *logrus.Entry, err error) string {
	log = log.WithError(err)
	var verr *app.ValidationError
	switch {
	case errors.Is(err, app.ErrAdminNotAuthorized):
		log.Warn("Unauthorized access attempt")
		return msgUnauthorized
	case errors.Is(err, driver.ErrNotFound):
		log.Warn("Driver not found")
		return "Error: driver not found."
	case errors.As(err, &verr):
		log.Warn("Invalid input")
		return "Error: " + verr.Error()
	case errors.Is(err, app.ErrLockNotObtained):
		log.Warn("Driver ledger busy")
		return "The driver's ledger is busy. Please try again."
	case errors.Is(err, app.ErrPersistence):
		log.Error("Ledger write failed")
		return "Error: the change could not be saved and nothing was recorded. Please try again."
	default:
		log.Error("Command failed")
		return "An error occurred while processing the command."
	}
}
