package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stanstork/claimflow/internal/models"
)

const (
	headerMessageType = "messageType"
	headerVersion     = "version"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StatusMessage is the STATUS_UPDATE payload consumed by the citizen portal.
type StatusMessage struct {
	MessageID        string                 `json:"messageId"`
	MessageType      string                 `json:"messageType"`
	Timestamp        string                 `json:"timestamp"`
	Version          string                 `json:"version"`
	ClaimID          string                 `json:"claimId"`
	ClaimNumber      string                 `json:"claimNumber"`
	CorrelationID    string                 `json:"correlationId"`
	Status           StatusChange           `json:"status"`
	Resolution       *models.ResolutionInfo `json:"resolution,omitempty"`
	ServiceReference *string                `json:"serviceReference"`
}

type StatusChange struct {
	Previous   models.ClaimStatus `json:"previous"`
	New        models.ClaimStatus `json:"new"`
	Reason     string             `json:"reason"`
	AssignedTo *models.Assignee   `json:"assignedTo,omitempty"`
}

// Producer publishes status updates keyed by portal claim id, so every event
// for one claim lands on the same partition in emission order.
type Producer struct {
	writer  messageWriter
	timeout time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

type ProducerConfig struct {
	Brokers []string
	Topic   string
	Timeout time.Duration
}

func NewProducer(cfg ProducerConfig, logger zerolog.Logger) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Logger:       NewLogger(logger, zerolog.DebugLevel),
		ErrorLogger:  NewLogger(logger, zerolog.ErrorLevel),
	}
	return newProducer(w, cfg.Timeout, logger)
}

func newProducer(w messageWriter, timeout time.Duration, logger zerolog.Logger) *Producer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Producer{
		writer:  w,
		timeout: timeout,
		now:     time.Now,
		logger:  logger.With().Str("component", "status-publisher").Logger(),
	}
}

// Publish writes one status update. The write is synchronous so consecutive
// updates for a claim keep their order; callers treat failures as non-fatal.
func (p *Producer) Publish(ctx context.Context, u models.StatusUpdate) error {
	if u.ClaimID == "" {
		return errors.New("status update without claim id")
	}
	correlationID := u.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	msg := StatusMessage{
		MessageID:     uuid.NewString(),
		MessageType:   models.MessageTypeStatusUpdate,
		Timestamp:     p.now().UTC().Format(time.RFC3339Nano),
		Version:       models.MessageVersion,
		ClaimID:       u.ClaimID,
		ClaimNumber:   u.ClaimNumber,
		CorrelationID: correlationID,
		Status: StatusChange{
			Previous:   u.Previous,
			New:        u.New,
			Reason:     u.Reason,
			AssignedTo: u.AssignedTo,
		},
		Resolution:       u.Resolution,
		ServiceReference: u.ServiceReference,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal status update")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(u.ClaimID),
		Value: body,
		Headers: []kafka.Header{
			{Key: headerMessageType, Value: []byte(models.MessageTypeStatusUpdate)},
			{Key: headerVersion, Value: []byte(models.MessageVersion)},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "publish status update for claim %s", u.ClaimID)
	}

	p.logger.Info().
		Str("claim_id", u.ClaimID).
		Str("previous", string(u.Previous)).
		Str("new", string(u.New)).
		Str("message_id", msg.MessageID).
		Msg("Status update published")
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
