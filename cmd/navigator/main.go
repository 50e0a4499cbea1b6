// ABOUTME: Entry point for the navigator treatment-navigation service
// ABOUTME: Wires config, store, guardrails, specialists, job tracker, and the HTTP gateway

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/carenav/navigator/internal/classify"
	"github.com/carenav/navigator/internal/config"
	"github.com/carenav/navigator/internal/directory"
	"github.com/carenav/navigator/internal/extract"
	"github.com/carenav/navigator/internal/gateway"
	"github.com/carenav/navigator/internal/guardrail"
	"github.com/carenav/navigator/internal/jobs"
	"github.com/carenav/navigator/internal/session"
	"github.com/carenav/navigator/internal/specialist"
	"github.com/carenav/navigator/internal/store"
	"github.com/carenav/navigator/internal/triage"
)

// Version is set at build time.
var version = "dev"

const banner = `
                        _             _
 _ __   __ ___   _(_) __ _  __ _| |_ ___  _ __
| '_ \ / _' \ \ / / |/ _' |/ _' | __/ _ \| '__|
| | | | (_| |\ V /| | (_| | (_| | || (_) | |
|_| |_|\__,_| \_/ |_|\__, |\__,_|\__\___/|_|
                     |___/
`

// getConfigPath returns the path to the navigator config file.
// Priority: NAVIGATOR_CONFIG env var > ./navigator.yaml
func getConfigPath() string {
	if envPath := os.Getenv("NAVIGATOR_CONFIG"); envPath != "" {
		return envPath
	}
	return "navigator.yaml"
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "navigator: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// A missing .env is fine; the config file expands whatever is set.
	_ = godotenv.Load()

	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:       %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:   %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Classifier: %s\n", classifierLabel(cfg.Classifier))
	fmt.Println()

	logger.Info("starting navigator",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"classifier_enabled", cfg.Classifier.Enabled,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	classifier, err := buildClassifier(ctx, cfg.Classifier, logger)
	if err != nil {
		return fmt.Errorf("creating classifier: %w", err)
	}

	timeout := cfg.Classifier.Timeout
	if timeout <= 0 {
		timeout = guardrail.DefaultClassifyTimeout
	}
	input := guardrail.NewInputPipeline(classifier, timeout, logger)
	output := guardrail.NewOutputValidator(classifier, timeout, cfg.Guardrails.MaxRegenerations, logger)

	sources := buildSources(cfg.Directory)
	tracker := jobs.NewTracker(st, sources, jobs.NewBroadcaster(logger), logger)

	registry, err := buildRegistry(ctx, cfg, st, tracker, logger)
	if err != nil {
		return fmt.Errorf("creating specialists: %w", err)
	}

	sessions := session.NewManager(session.Config{
		Store:          st,
		Input:          input,
		Output:         output,
		Triage:         triage.NewCoordinator(logger),
		Registry:       registry,
		Logger:         logger,
		Inactivity:     cfg.Session.InactivityTimeout,
		MaxTurnsPerDay: cfg.Session.MaxTurnsPerDay,
	})

	gw := gateway.New(cfg, sessions, tracker, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return gw.Shutdown(shutdownCtx)
}

// buildClassifier picks the model-backed classifier when enabled, falling
// back to the lexicon-only classifier for development.
func buildClassifier(ctx context.Context, cfg config.ClassifierConfig, logger *slog.Logger) (classify.Classifier, error) {
	if !cfg.Enabled {
		logger.Warn("model classifier disabled, using lexicon only")
		return classify.NewLexiconClassifier(), nil
	}
	return classify.NewGeminiClassifier(ctx, cfg.APIKey, cfg.Model)
}

// buildRegistry wires every specialist into the dispatch registry.
func buildRegistry(ctx context.Context, cfg *config.Config, st store.Store, tracker *jobs.Tracker, logger *slog.Logger) (*specialist.Registry, error) {
	registry := specialist.NewRegistry(st, logger)

	var extractor extract.Extractor
	if cfg.Classifier.Enabled {
		ge, err := extract.NewGeminiExtractor(ctx, cfg.Classifier.APIKey, cfg.Classifier.Model)
		if err != nil {
			return nil, fmt.Errorf("creating extractor: %w", err)
		}
		extractor = ge
	}

	handlers := map[specialist.Kind]specialist.Handler{
		specialist.KindFacilitySearch: specialist.NewFacilitySearch(tracker, logger),
		specialist.KindInsurance:      specialist.NewInsuranceVerifier(logger),
		specialist.KindScheduling:     specialist.NewScheduler(st, logger),
		specialist.KindIntakeForm:     specialist.NewIntakeFormHelper(extractor, logger),
		specialist.KindReminder:       specialist.NewReminderKeeper(st, logger),
		specialist.KindCommunication:  specialist.NewCommunicator(st, logger),
	}
	for kind, h := range handlers {
		if err := registry.Register(kind, h); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// buildSources converts configured directory endpoints into lookup sources.
func buildSources(cfg config.DirectoryConfig) []directory.Source {
	timeout := cfg.LookupTimeout
	if timeout <= 0 {
		timeout = directory.DefaultLookupTimeout
	}
	sources := make([]directory.Source, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		sources = append(sources, directory.NewHTTPSource(src.Name, src.URL, timeout))
	}
	return sources
}

func classifierLabel(cfg config.ClassifierConfig) string {
	if !cfg.Enabled {
		return "lexicon (development)"
	}
	if cfg.Model != "" {
		return cfg.Model
	}
	return "gemini (default model)"
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
