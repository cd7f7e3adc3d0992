package kafka

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stanstork/claimflow/internal/models"
)

// ClaimHandler processes one validated claim-creation envelope.
type ClaimHandler interface {
	HandleClaimCreated(ctx context.Context, env models.ClaimEnvelope) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topic   string
}

// Consumer reads the claims topic as part of a consumer group. Records are
// handled one at a time per partition and committed after handling,
// whatever the outcome.
type Consumer struct {
	reader  messageReader
	handler ClaimHandler
	logger  zerolog.Logger
}

func NewConsumer(cfg ConsumerConfig, handler ClaimHandler, logger zerolog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
		Logger:         NewLogger(logger, zerolog.DebugLevel),
		ErrorLogger:    NewLogger(logger, zerolog.ErrorLevel),
	})
	return newConsumer(r, handler, logger)
}

func newConsumer(r messageReader, handler ClaimHandler, logger zerolog.Logger) *Consumer {
	return &Consumer{
		reader:  r,
		handler: handler,
		logger:  logger.With().Str("component", "claim-ingestor").Logger(),
	}
}

// Run blocks until ctx is cancelled or the reader is closed. A record already
// fetched is processed to completion even if ctx is cancelled meanwhile.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info().Msg("Claim ingestor started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.Info().Msg("Claim ingestor stopped")
				return nil
			}
			return errors.Wrap(err, "fetch claim record")
		}

		work := context.WithoutCancel(ctx)
		c.process(work, msg)

		if err := c.reader.CommitMessages(work, msg); err != nil {
			c.logger.Error().Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("Failed to commit offset")
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	log := c.logger.With().
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Msg("Claim handler panicked")
		}
	}()

	if headerValue(msg.Headers, headerMessageType) == models.MessageTypeStatusUpdate {
		log.Debug().Msg("Skipping own status update")
		return
	}

	env, err := DecodeEnvelope(msg.Value)
	if err != nil {
		log.Warn().Err(err).Msg("Dropping malformed record")
		return
	}
	if env.MessageType != models.MessageTypeClaimCreated {
		log.Debug().Str("message_type", env.MessageType).Msg("Skipping non claim-creation record")
		return
	}
	if err := ValidateEnvelope(env); err != nil {
		log.Warn().Err(err).Str("claim_id", env.ClaimID).Msg("Dropping invalid claim envelope")
		return
	}

	if err := c.handler.HandleClaimCreated(ctx, env); err != nil {
		log.Error().Err(err).
			Str("claim_id", env.ClaimID).
			Str("claim_number", env.ClaimNumber).
			Msg("Claim intake failed")
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
