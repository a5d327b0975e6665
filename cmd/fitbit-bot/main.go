// Command fitbit-bot runs the health assistant dialogue engine behind an
// HTTP API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/gutzcha/fitbit-bot/internal/api"
	"github.com/gutzcha/fitbit-bot/internal/config"
	"github.com/gutzcha/fitbit-bot/internal/flow"
	"github.com/gutzcha/fitbit-bot/internal/genai"
	"github.com/gutzcha/fitbit-bot/internal/store"
	"github.com/gutzcha/fitbit-bot/internal/util"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("main: no .env file loaded", "error", err)
	}

	settings, err := config.LoadSettings()
	if err != nil {
		slog.Error("main: failed to load settings", "error", err)
		os.Exit(1)
	}

	addr := flag.String("addr", settings.Addr, "HTTP listen address")
	dsn := flag.String("dsn", settings.DatabaseDSN, "database DSN (postgres:// for PostgreSQL, file path for SQLite, empty for in-memory)")
	configPath := flag.String("config", settings.ConfigPath, "path to YAML node configuration")
	logLevel := flag.String("log-level", settings.LogLevel, "log level (debug, info, warn, error)")
	flag.Parse()

	initializeLogger(*logLevel)

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			slog.Error("main: failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		slog.Info("main: loaded configuration", "path", *configPath)
	}
	// Emergency kill switch for the suggestion stage, independent of config.
	cfg.Suggestor.Enabled = util.ParseBoolEnv("FITBITBOT_SUGGESTIONS", cfg.Suggestor.Enabled)
	cfg.Router.MaxStoredMessages = util.ParseIntEnv("FITBITBOT_MAX_STORED_MESSAGES", cfg.Router.MaxStoredMessages)

	st, err := openStore(*dsn)
	if err != nil {
		slog.Error("main: failed to open store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("main: store close failed", "error", err)
		}
	}()

	clientOpts := []genai.Option{}
	if settings.OpenAIAPIKey != "" {
		clientOpts = append(clientOpts, genai.WithAPIKey(settings.OpenAIAPIKey))
	}
	client, err := genai.NewClient(clientOpts...)
	if err != nil {
		slog.Error("main: failed to create GenAI client", "error", err)
		os.Exit(1)
	}

	// A disabled suggestor is left unwired; the router skips the stage
	// entirely when the node is nil.
	var suggestor *flow.Suggestor
	if cfg.Suggestor.Enabled {
		suggestor = flow.NewSuggestor(client, cfg.Suggestor)
	}

	stateManager := flow.NewStoreBasedStateManager(st)
	router := flow.NewTurnRouter(flow.RouterDeps{
		StateManager: stateManager,
		Profiles:     st,
		Intent:       flow.NewIntentClassifier(client, cfg.Intent),
		Static:       flow.NewStaticResponder(),
		Availability: flow.NewDataAvailabilityNode(client, cfg.DataAvailability),
		Clarifier:    flow.NewClarifier(client, cfg.Clarification),
		Planner:      flow.NewPlanner(client, cfg.Planner),
		Executor:     flow.NewExecutor(client, cfg.Execution, flow.NewMetricsTool(client, st, cfg.Execution.LLM), flow.NewKnowledgeTool(st)),
		Suggestor:    suggestor,
	}, cfg.Router)

	server := api.NewServer(router, stateManager, *addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("main: starting fitbit-bot", "addr", *addr)
	if err := server.Run(ctx); err != nil {
		slog.Error("main: server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("main: fitbit-bot exited")
}

// openStore picks the storage backend from the DSN: a postgres:// URL means
// PostgreSQL, any other non-empty value is a SQLite path, empty means
// in-memory (state is lost on restart).
func openStore(dsn string) (store.Store, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		slog.Info("main: using PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(dsn))
	case dsn != "":
		slog.Info("main: using SQLite store", "dsn", dsn)
		return store.NewSQLiteStore(store.WithDSN(dsn))
	default:
		slog.Warn("main: no DSN configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
}

func initializeLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if util.ParseBoolEnv("FITBITBOT_LOG_JSON", false) {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
