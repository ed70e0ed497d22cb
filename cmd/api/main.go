package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"credpulse/agents"
	"credpulse/api"
	"credpulse/audit"
	"credpulse/auth"
	"credpulse/buyer"
	"credpulse/config"
	"credpulse/db"
	"credpulse/invoice"
	"credpulse/merchant"
	"credpulse/orchestrator"
	"credpulse/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("load config")
	}

	logger := newLogger(cfg)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("bootstrap database pool")
	}
	defer pool.Close()

	invoices := invoice.NewRepository(pool)
	buyers := buyer.NewRepository(pool)
	merchants := merchant.NewRepository(pool)
	verifier := invoice.NewRegistryVerifier(pool)
	tradeDocs := invoice.NewTradeDocuments(pool)

	agentSet := []agents.Agent{
		agents.NewSupplyChainAgent(buyers, verifier),
		agents.NewCreditScoringAgent(merchants),
		agents.NewFactoringAgent(tradeDocs),
	}

	sessions := session.NewStore()
	runner := agents.NewRunner(cfg.AgentTimeout)
	orch := orchestrator.New(sessions, runner, agentSet, logger).
		WithOverallTimeout(cfg.AnalyzeTimeout).
		WithRecorder(audit.NewRecorder(pool)).
		WithInvoiceFlagger(invoices)

	authSvc := auth.NewService(auth.NewRepository(pool), cfg.JWTSecret)

	server := api.NewServer(cfg.Addr, orch, sessions, invoices, authSvc, cfg.SyncWait, logger)

	errs := make(chan error, 1)
	go func() { errs <- server.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errs:
		if err != nil {
			logger.Fatal().Err(err).Msg("api server failed")
		}
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown")
		}
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = zerolog.Logger{}
	if cfg.LogPretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		out = zerolog.New(os.Stdout)
	}
	return out.Level(level).With().Timestamp().Str("service", "credpulse").Logger()
}
