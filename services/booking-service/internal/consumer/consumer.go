package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/kafkax"
	otelx "github.com/mariuslungu97/calendar-booking-backend-sub000/libs/otel"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox deduplicates deliveries by event id.
type Inbox interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// Reader is the subset of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader   Reader
	logger   *slog.Logger
	inbox    Inbox
	handler  Handler
	attempts int
	backoff  time.Duration
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
	// Attempts per message before it is logged and skipped. Default 3.
	Attempts int
	Backoff  time.Duration
}

func New(logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newConsumer(reader, logger, inbox, cfg, handler)
}

func newConsumer(reader Reader, logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &Consumer{
		reader:   reader,
		logger:   logger,
		inbox:    inbox,
		handler:  handler,
		attempts: cfg.Attempts,
		backoff:  cfg.Backoff,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}

		c.process(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otelx.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	ok, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType)
	if err != nil {
		c.logger.Error("inbox record failed", "err", err, "event_id", meta.EventID)
		otelx.RecordError(span, err)
		return
	}
	if !ok {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return
	}

	for attempt := 1; ; attempt++ {
		err = c.handler(ctxSpan, msg)
		if err == nil {
			return
		}
		if attempt >= c.attempts || !sleep(ctx, c.backoff*time.Duration(attempt)) {
			break
		}
		c.logger.Warn("handler failed, retrying", "err", err, "event_id", meta.EventID, "attempt", attempt)
	}

	c.logger.Error("handler error, message skipped", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
	otelx.RecordError(span, err)
	if forgetErr := c.inbox.Forget(ctxSpan, meta.EventID); forgetErr != nil {
		c.logger.Warn("inbox forget failed", "err", forgetErr, "event_id", meta.EventID)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
