package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/config"
	"github.com/mcdev12/quizlive/go/internal/dbconfig"
	"github.com/mcdev12/quizlive/go/internal/questionset"
	"github.com/mcdev12/quizlive/go/internal/quiz/archive"
	"github.com/mcdev12/quizlive/go/internal/quiz/eventbus"
	"github.com/mcdev12/quizlive/go/internal/quiz/events"
	"github.com/mcdev12/quizlive/go/internal/quiz/gateway"
	"github.com/mcdev12/quizlive/go/internal/quiz/orchestrator"
	"github.com/mcdev12/quizlive/go/internal/quiz/session"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(cfg.Level())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.ConnectionConfig.MaxMessageSize = cfg.MaxMessageBytes
	gatewayService := gateway.NewService(gatewayConfig)

	broadcasters := []events.Broadcaster{gatewayService.Hub()}
	checks := map[string]gateway.HealthCheck{}

	// Optional JetStream mirror of every broadcast
	var mirror *eventbus.Mirror
	var publisher *eventbus.JetStreamPublisher
	if cfg.MirrorEnabled() {
		jsConfig := eventbus.DefaultJetStreamConfig()
		jsConfig.URL = cfg.NATSURL
		jsConfig.StreamName = cfg.NATSStream
		jsConfig.SubjectPrefix = cfg.NATSSubjectPrefix

		publisher, err = eventbus.NewJetStreamPublisher(ctx, jsConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create JetStream publisher")
		}
		mirror = eventbus.NewMirror(publisher, 1024, 5*time.Second)
		mirror.Start()
		broadcasters = append(broadcasters, mirror)
		checks["nats"] = publisher.Health
	}

	// Optional Postgres archive of final standings
	var archiver *archive.Archiver
	var db *sql.DB
	if cfg.ArchiveEnabled {
		dbCfg, err := dbconfig.NewConfigFromEnv()
		if err != nil {
			log.Fatal().Err(err).Msg("invalid database configuration")
		}
		db, err = sql.Open("postgres", dbCfg.DSN())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		if err := db.PingContext(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}
		repo := archive.NewRepository(db)
		archiver = archive.NewArchiver(repo, 256, 10*time.Second)
		archiver.Start()
		checks["archive"] = repo.Health
	}

	clock := clockwork.NewRealClock()
	opts := session.Options{
		Clock:           clock,
		Broadcaster:     events.Fanout(broadcasters...),
		DefaultDuration: cfg.DefaultQuestionDuration(),
		TimerGrace:      cfg.TimerGrace(),
	}
	if archiver != nil {
		opts.OnEnded = archiver.Enqueue
	}

	registry := session.NewRegistry(opts, nil)
	library := questionset.NewLibrary(cfg.QuestionSetsDir)
	orch := orchestrator.NewOrchestrator(registry, gatewayService.Hub(), library)
	gatewayService.Attach(orch, orch, library, checks)

	reaper := orchestrator.NewReaper(orch, clock, cfg.IdleSessionTTL, cfg.ReapInterval)
	reaper.Start()

	go gatewayService.Start(ctx)

	server := gateway.NewServer(cfg.Port, gatewayService.Routes(), cfg.AllowedOrigins)

	log.Info().
		Str("port", cfg.Port).
		Bool("mirror", mirror != nil).
		Bool("archive", archiver != nil).
		Str("question_sets_dir", cfg.QuestionSetsDir).
		Msg("starting quiz gateway")

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	reaper.Stop()
	cancel()

	if mirror != nil {
		mirror.Stop()
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close JetStream publisher")
		}
	}
	if archiver != nil {
		archiver.Stop()
		db.Close()
	}

	log.Info().Msg("quiz gateway shutdown complete")
}
