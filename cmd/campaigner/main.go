package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/groundworkhq/campaigner/internal/drafts"
	"github.com/groundworkhq/campaigner/internal/export"
	"github.com/groundworkhq/campaigner/internal/flow"
	"github.com/groundworkhq/campaigner/internal/genai"
	"github.com/groundworkhq/campaigner/internal/messaging"
	"github.com/groundworkhq/campaigner/internal/scheduler"
	"github.com/groundworkhq/campaigner/internal/store"
	"github.com/groundworkhq/campaigner/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for campaigner state data
	DefaultStateDir = "/var/lib/campaigner"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "campaigner.db"
	// DefaultReminderCron fires the wave-due reminder at 08:00 every day
	DefaultReminderCron = "0 8 * * *"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping campaigner")
	if err := run(flags); err != nil {
		slog.Error("campaigner failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("campaigner exited successfully")
}

// Config holds environment configuration
type Config struct {
	TelegramToken string
	DatabaseURL   string
	StateDir      string
	ExportDir     string
	OpenAIKey     string
	OpenAIModel   string
	ReminderCron  string
	DraftWorkers  int
	DraftRate     float64
}

// Flags holds command line flag values
type Flags struct {
	telegramToken *string
	stateDir      *string
	dbDSN         *string
	exportDir     *string
	openaiKey     *string
	openaiModel   *string
	reminderCron  *string
	draftWorkers  *int
	draftRate     *float64
}

// initializeLogger sets up structured logging. Debug level is opt-in via
// CAMPAIGNER_DEBUG.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("CAMPAIGNER_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("CAMPAIGNER_STATE_DIR"),
		ExportDir:     os.Getenv("CAMPAIGNER_EXPORT_DIR"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   os.Getenv("OPENAI_MODEL"),
		ReminderCron:  os.Getenv("REMINDER_SCHEDULE"),
		DraftWorkers:  util.ParseIntEnv("DRAFT_WORKERS", 4),
		DraftRate:     util.ParseFloatEnv("DRAFT_RATE_PER_SECOND", 2),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CAMPAIGNER_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.ExportDir == "" {
		config.ExportDir = filepath.Join(config.StateDir, "exports")
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.ReminderCron == "" {
		config.ReminderCron = DefaultReminderCron
	}

	slog.Debug("environment variables loaded",
		"TELEGRAM_BOT_TOKEN_SET", config.TelegramToken != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"CAMPAIGNER_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"REMINDER_SCHEDULE", config.ReminderCron)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		telegramToken: flag.String("telegram-token", config.TelegramToken, "Telegram bot token"),
		stateDir:      flag.String("state-dir", config.StateDir, "Directory for state data"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "Database DSN (PostgreSQL URL or SQLite file path)"),
		exportDir:     flag.String("export-dir", config.ExportDir, "Directory for CSV exports and draft batches"),
		openaiKey:     flag.String("openai-key", config.OpenAIKey, "OpenAI API key"),
		openaiModel:   flag.String("openai-model", config.OpenAIModel, "OpenAI model override"),
		reminderCron:  flag.String("reminder-cron", config.ReminderCron, "Cron expression for wave-due reminders"),
		draftWorkers:  flag.Int("draft-workers", config.DraftWorkers, "Concurrent workers for draft generation"),
		draftRate:     flag.Float64("draft-rate", config.DraftRate, "LLM calls per second for draft generation"),
	}
	flag.Parse()
	return flags
}

func ensureDirectoriesExist(flags Flags) error {
	for _, dir := range []string{*flags.stateDir, *flags.exportDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// run wires the modules together and drives the update-consumption loop
// until the process is signalled.
func run(flags Flags) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := openStore(*flags.dbDSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	llm, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey), genai.WithModel(*flags.openaiModel))
	if err != nil {
		return fmt.Errorf("create genai client: %w", err)
	}

	svc, err := messaging.NewTelegramService(messaging.WithToken(*flags.telegramToken))
	if err != nil {
		return fmt.Errorf("create telegram service: %w", err)
	}

	sink, err := export.NewCSVSink(*flags.exportDir)
	if err != nil {
		return fmt.Errorf("create export sink: %w", err)
	}

	// The draft generator opens its own store handle so detached jobs never
	// share a connection with the conversation that scheduled them.
	draftStore, err := openStore(*flags.dbDSN)
	if err != nil {
		return fmt.Errorf("open drafts store: %w", err)
	}
	defer draftStore.Close()
	generator := drafts.NewGenerator(draftStore, llm, sink,
		drafts.WithWorkers(*flags.draftWorkers), drafts.WithRate(*flags.draftRate))

	deps := &flow.Deps{
		States: flow.NewStateManager(st),
		Store:  st,
		LLM:    llm,
		Msg:    svc,
		Sheets: sink,
		Drafts: generator,
	}
	dispatcher := flow.NewDispatcher(deps)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(*flags.reminderCron, func() {
		remindDueWaves(context.Background(), st, svc)
	}); err != nil {
		return fmt.Errorf("schedule wave reminders: %w", err)
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start telegram service: %w", err)
	}
	go func() {
		<-ctx.Done()
		slog.Info("Shutdown signal received")
		svc.Stop()
	}()

	for in := range svc.Updates() {
		inbound := in
		go dispatcher.Dispatch(context.Background(), inbound)
	}

	generator.Wait()
	return nil
}

// openStore picks the backend from the DSN shape.
func openStore(dsn string) (store.Store, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// remindDueWaves notifies each campaign sub-channel about waves scheduled
// for today.
func remindDueWaves(ctx context.Context, st store.Store, svc messaging.Service) {
	waves, err := st.ListWavesDueOn(time.Now())
	if err != nil {
		slog.Error("remindDueWaves failed to list waves", "error", err)
		return
	}
	for _, w := range waves {
		campaign, err := st.GetCampaign(w.CampaignID)
		if err != nil {
			slog.Error("remindDueWaves failed to load campaign", "campaignID", w.CampaignID, "error", err)
			continue
		}
		org, err := st.GetOrganization(campaign.OrgID)
		if err != nil {
			slog.Error("remindDueWaves failed to load organization", "orgID", campaign.OrgID, "error", err)
			continue
		}
		text := fmt.Sprintf("Сегодня день отправки волны \"%s\" кампании \"%s\".", w.Subject, campaign.Name)
		if err := svc.SendMessage(ctx, org.ChannelID, campaign.SubChannelID, text); err != nil {
			slog.Error("remindDueWaves failed to send reminder", "channelID", org.ChannelID, "error", err)
		}
	}
}
