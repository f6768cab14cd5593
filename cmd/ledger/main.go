package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/cabapp/salary-ledger/internal/app"
	"github.com/cabapp/salary-ledger/internal/domain/driver"
	"github.com/cabapp/salary-ledger/internal/domain/event"
	"github.com/cabapp/salary-ledger/internal/infra/config"
	idb "github.com/cabapp/salary-ledger/internal/infra/database"
	"github.com/cabapp/salary-ledger/internal/infra/lock"
	"github.com/cabapp/salary-ledger/internal/infra/logger"
	"github.com/cabapp/salary-ledger/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.WithError(err).Fatal("Could not load application configuration")
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
		"admins":      len(cfg.AdminTelegramIDs),
	}).Info("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()
	if err := idb.EnsureSchema(ctx, db); err != nil {
		mainLogger.WithError(err).Fatal("Could not apply ledger schema")
	}
	mainLogger.Info("Database connection established successfully")

	// Initialize Repositories
	driverRepo := idb.NewPostgresDriverRepository(db)
	bookingSource := idb.NewPostgresBookingSource(db)

	var locker app.Locker
	if cfg.RedisAddress != "" {
		rdb, err := lock.NewRedisClient(ctx, cfg.RedisAddress)
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not connect to Redis")
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL, logger.Component("redis_lock"))
		mainLogger.WithField("redis_address", cfg.RedisAddress).Info("Using Redis driver locks")
	} else {
		locker = lock.NewKeyedMutex()
		mainLogger.Info("Using in-process driver locks")
	}

	publishers := event.Multi{logger.NewEventPublisher(logger.Component("events"))}

	var bot *telebot.Bot
	if cfg.TelegramToken != "" {
		pref := telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) { // Global error handler
				entry := logger.Component("telebot").WithError(err)
				if c != nil && c.Sender() != nil && c.Chat() != nil {
					entry = entry.WithFields(logrus.Fields{"message": c.Text(), "sender_id": c.Sender().ID, "chat_id": c.Chat().ID})
				}
				entry.Error("Bot handler error")
			},
		}
		bot, err = telebot.NewBot(pref)
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not create Telegram bot")
		}
		publishers = append(publishers, telegram.NewPublisher(telegram.NewTelebotAdapter(bot), cfg.AdminTelegramIDs, logger.Component("telegram_publisher")))
	}

	adminService := app.NewAdminService(driverRepo, cfg.AdminTelegramIDs)
	salaryService := app.NewSalaryService(driverRepo, bookingSource, locker, publishers, logrus.NewEntry(logger.Log), app.SalaryOptions{
		WriteRetries: cfg.WriteRetries,
		HistoryLimit: cfg.HistoryLimit,
	})

	if bot == nil {
		mainLogger.Warn("TELEGRAM_TOKEN is not set, running a one-off ledger catch-up")
		if err := catchUp(ctx, driverRepo, salaryService, mainLogger); err != nil {
			mainLogger.WithError(err).Fatal("Ledger catch-up failed")
		}
		return
	}

	// Register Handlers
	handlerLogger := logger.Component("telegram")
	telegram.RegisterBotCommands(ctx, bot, adminService, handlerLogger)
	telegram.RegisterAdminHandlers(ctx, bot, adminService, salaryService, handlerLogger)
	mainLogger.Info("Command handlers registered")

	// Start bot in a goroutine so it doesn't block graceful shutdown handling
	go bot.Start()
	mainLogger.Info("Salary ledger bot started")

	<-ctx.Done()
	mainLogger.Info("Shutting down application...")
	bot.Stop()
	mainLogger.Info("Application shut down gracefully")
}

// catchUp brings every driver's ledger up to date so pending rollovers are
// archived without waiting for the next command.
func catchUp(ctx context.Context, drivers driver.Repository, salaryService *app.SalaryService, log *logrus.Entry) error {
	profiles, err := drivers.ListProfiles(ctx)
	if err != nil {
		return err
	}
	failed := 0
	for _, p := range profiles {
		if ctx.Err() != nil {
			break
		}
		st, err := salaryService.GetSalaryStatus(ctx, p.ID)
		if err != nil {
			failed++
			log.WithError(err).WithField("driver_id", p.ID).Error("Catch-up failed")
			continue
		}
		log.WithFields(logrus.Fields{"driver_id": p.ID, "cycle_number": st.CurrentCycle.Number}).Debug("Driver ledger up to date")
	}
	log.WithFields(logrus.Fields{"drivers": len(profiles), "failed": failed}).Info("Ledger catch-up finished")
	if failed > 0 {
		return fmt.Errorf("%d of %d drivers could not be caught up", failed, len(profiles))
	}
	return ctx.Err()
}
