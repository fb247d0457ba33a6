package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oncall_reminder_engine/internal/app"
	"oncall_reminder_engine/internal/domain/mail"
	"oncall_reminder_engine/internal/domain/reminder"
	"oncall_reminder_engine/internal/infra/config"
	idb "oncall_reminder_engine/internal/infra/database"
	"oncall_reminder_engine/internal/infra/httpapi"
	"oncall_reminder_engine/internal/infra/lock"
	"oncall_reminder_engine/internal/infra/logger"
	"oncall_reminder_engine/internal/infra/mailer"
	"oncall_reminder_engine/internal/infra/ratelimit"
	"oncall_reminder_engine/internal/infra/scheduler"
	"oncall_reminder_engine/internal/infra/telegram"

	"github.com/gin-gonic/gin"
	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()
	mainLogger.Info("Database connection established")

	if cfg.MigrateOnStart {
		if err := idb.Migrate(ctx, db); err != nil {
			mainLogger.WithError(err).Fatal("Could not apply database schema")
		}
		mainLogger.Info("Database schema applied")
	}

	// Initialize Repositories
	periodRepo := idb.NewPostgresPeriodRepository(db)
	slotRepo := idb.NewPostgresSlotRepository(db)
	doctorRepo := idb.NewPostgresDoctorRepository(db)
	ledgerRepo := idb.NewPostgresLedgerRepository(db)

	// Run lock: Redis when configured, otherwise the ledger alone guards sends.
	var locker app.Locker = app.NoopLocker{}
	if cfg.RedisURL != "" {
		redisClient, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			mainLogger.WithError(err).Warn("Redis unavailable, running without run lock")
		} else {
			defer redisClient.Close()
			locker = lock.NewRedisLocker(redisClient, logger.Component("lock"))
			mainLogger.Info("Redis run lock enabled")
		}
	}

	// Email transport
	var transport mail.Transport
	if cfg.MailAPIKey != "" {
		transport = mailer.NewHTTPTransport(cfg.MailAPIURL, cfg.MailAPIKey, cfg.MailFrom, 15*time.Second, logger.Component("mailer"))
	} else {
		mainLogger.Warn("MAIL_API_KEY is not set, emails are only logged")
		transport = mailer.NewLogTransport(logger.Component("mailer"))
	}

	// Optional Telegram admin bot
	var bot *telebot.Bot
	var reporter app.RunReporter
	if cfg.TelegramToken != "" {
		botLogger := logger.Component("telegram")
		bot, err = telebot.NewBot(telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) { // Global error handler
				entry := botLogger.WithError(err)
				if c != nil && c.Sender() != nil {
					entry = entry.WithField("sender_id", c.Sender().ID)
				}
				entry.Error("Telegram handler error")
			},
		})
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not create Telegram bot")
		}
		reporter = telegram.NewRunReporter(telegram.NewTelebotAdapter(bot), cfg.AdminTelegramID, botLogger)
	}

	// Services
	policy := reminder.Policy{
		DeadlineTolerance: cfg.DeadlineTolerance,
		FiringWindow:      cfg.FiringWindow,
		WeeklyWeekday:     cfg.WeeklyWeekday,
		WeeklyHour:        cfg.WeeklyHour,
	}
	settingsService := app.NewSettingsService(periodRepo, logger.Component("settings"))
	lifecycleService := app.NewLifecycleService(periodRepo, slotRepo, settingsService, locker, cfg.Location(), cfg.OpenLeadDays, logger.Component("lifecycle"))
	dispatcher := app.NewDispatcher(
		transport,
		ledgerRepo,
		ratelimit.NewPacer(cfg.SendGap, cfg.BackoffStep),
		cfg.MaxSendAttempts,
		logger.Component("dispatcher"),
	)
	reminderService := app.NewReminderService(app.ReminderServiceDeps{
		Periods:     periodRepo,
		Recipients:  app.NewRecipientResolver(doctorRepo, logger.Component("recipients")),
		Assignments: doctorRepo,
		Ledger:      ledgerRepo,
		Dispatcher:  dispatcher,
		Composer:    app.NewComposer(cfg.AppBaseURL),
		Locker:      locker,
		Reporter:    reporter,
		Policy:      policy,
	}, logger.Component("reminders"))
	statusService := app.NewStatusService(periodRepo, slotRepo, doctorRepo, doctorRepo, policy, logger.Component("status"))

	if bot != nil {
		adminService := app.NewAdminService(statusService, reminderService, lifecycleService, cfg.AdminTelegramID)
		telegram.RegisterAdminHandlers(ctx, bot, adminService, logger.Component("telegram"))
		go bot.Start()
		mainLogger.Info("Telegram admin bot started")
	}

	var jobScheduler *scheduler.JobScheduler
	if cfg.EnableInProcessCron {
		jobScheduler = scheduler.NewJobScheduler(
			lifecycleService,
			reminderService,
			logger.Component("scheduler"),
			cfg.Location(),
			cfg.CronSpecLifecycle,
			cfg.CronSpecTick,
			cfg.TickTimeout,
		)
		if err := jobScheduler.Start(); err != nil {
			mainLogger.WithError(err).Fatal("Could not start job scheduler")
		}
	}

	// HTTP trigger endpoints
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := httpapi.NewHandler(lifecycleService, reminderService, reminderService, settingsService, statusService, db, cfg.TickTimeout, logger.Component("http"))
	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(handler, httpapi.AuthConfig{
			Secret:               cfg.CronSecret,
			TrustedInvokerHeader: cfg.TrustedInvokerHeader,
		}, logger.Component("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		mainLogger.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		mainLogger.WithField("signal", sig.String()).Info("Shutting down application...")
	case err := <-serverErr:
		mainLogger.WithError(err).Error("HTTP server failed, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Error("HTTP server shutdown failed")
	}
	if jobScheduler != nil {
		jobScheduler.Stop()
	}
	if bot != nil {
		bot.Stop()
	}
	cancel()
	mainLogger.Info("Application shut down gracefully")
}
