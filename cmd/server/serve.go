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

	h "github.com/gorilla/handlers"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stanstork/claimflow/internal/claims"
	"github.com/stanstork/claimflow/internal/config"
	"github.com/stanstork/claimflow/internal/handlers"
	"github.com/stanstork/claimflow/internal/kafka"
	"github.com/stanstork/claimflow/internal/middleware"
	"github.com/stanstork/claimflow/internal/migration"
	"github.com/stanstork/claimflow/internal/notification"
	"github.com/stanstork/claimflow/internal/repository"
	"github.com/stanstork/claimflow/internal/routes"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Consume claims and serve the resolution API",
	RunE:  runServe,
}

type application struct {
	config   *config.Config
	db       *sql.DB
	store    *repository.Gateway
	producer *kafka.Producer
	consumer *kafka.Consumer
	logger   zerolog.Logger
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)

	db, err := openDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migration.RunMigrations(db, logger); err != nil {
		return err
	}

	app := &application{
		config: cfg,
		db:     db,
		store:  repository.NewGateway(db),
		logger: logger,
	}
	if err := app.wire(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.run(ctx)
	logger.Info().Msg("Application terminated.")
	return nil
}

// wire builds the long-lived transport clients and the services on top of them.
func (app *application) wire() error {
	brokers := kafka.ParseBrokers(app.config.Kafka.Brokers)

	mailer, err := notification.NewSMTPMailer(app.config.Email)
	if err != nil {
		return err
	}

	app.producer = kafka.NewProducer(kafka.ProducerConfig{
		Brokers: brokers,
		Topic:   app.config.Kafka.StatusTopic,
		Timeout: app.config.PublishTimeout,
	}, app.logger)

	dispatcher := notification.NewDispatcher(app.store, mailer, notification.DispatcherConfig{
		From:          app.config.Email.From,
		PublicBaseURL: app.config.PublicBaseURL,
	}, app.logger)

	orchestrator := claims.NewOrchestrator(app.store, app.producer, dispatcher, claims.Timeouts{
		StoreCall: app.config.StoreCallTimeout,
		Dispatch:  app.config.NotifyTimeout,
	}, app.logger)

	app.consumer = kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: brokers,
		GroupID: app.config.Kafka.GroupID,
		Topic:   app.config.Kafka.Topic,
	}, orchestrator, app.logger)
	return nil
}

func (app *application) router() http.Handler {
	workflow := claims.NewWorkflow(app.store, app.producer, app.logger)
	router := routes.NewRouter(
		handlers.NewResolutionHandler(workflow, app.logger),
		handlers.NewClaimHandler(app.store, app.logger),
	)

	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	return h.CORS(
		h.AllowedOrigins([]string{app.config.CORSOrigin}),
		h.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		h.AllowedHeaders([]string{"Content-Type"}),
	)(loggedRouter)
}

// run serves HTTP and consumes claims until ctx is cancelled or either loop
// fails, then shuts everything down.
func (app *application) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	server := &http.Server{
		Addr:              ":" + app.config.ServerPort,
		Handler:           app.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		app.logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- app.consumer.Run(ctx)
	}()

	consumerStopped := false
	select {
	case <-ctx.Done():
		app.logger.Info().Msg("Shutdown signal received. Shutting down...")
	case err := <-serverErrCh:
		app.logger.Error().Err(err).Msg("Server error occurred")
	case err := <-consumerDone:
		consumerStopped = true
		logConsumerStop(app.logger, err)
	}
	cancel()

	// Stop consuming first so no new claim starts while transports close.
	if !consumerStopped {
		<-consumerDone
	}
	if err := app.consumer.Close(); err != nil {
		app.logger.Error().Err(err).Msg("Kafka reader close error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		app.logger.Info().Msg("HTTP server shutdown complete.")
	}

	if err := app.producer.Close(); err != nil {
		app.logger.Error().Err(err).Msg("Kafka writer close error")
	}
}

// logConsumerStop reports a consume loop that returned before shutdown. A nil
// error means the reader ran out of records.
func logConsumerStop(logger zerolog.Logger, err error) {
	if err != nil {
		logger.Error().Err(err).Msg("Claim ingestor stopped unexpectedly")
		return
	}
	logger.Info().Msg("Claim ingestor reached the end of its stream")
}
