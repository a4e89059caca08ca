package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/relay/internal/config"
)

// Message is a creation request consumed from the intake topic.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
	Offset  int64
	Time    time.Time
}

// Outbound is a lifecycle event written to the events topic.
type Outbound struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Handler processes an inbound message.
type Handler func(context.Context, Message) error

// Client is the pluggable messaging abstraction. Publish writes lifecycle
// events to the events topic; Consume reads creation requests from Topic().
type Client interface {
	Publish(ctx context.Context, msg Outbound) error
	Consume(ctx context.Context, handler Handler) error
	Topic() string
}

// Noop returns a client that drops publishes and blocks in Consume until ctx ends.
func Noop(topic string) Client {
	return noopClient{topic: topic}
}

// Module wires the messaging client.
var Module = fx.Provide(NewClient)

type noopClient struct {
	topic string
}

func (n noopClient) Publish(context.Context, Outbound) error { return nil }

func (n noopClient) Consume(ctx context.Context, _ Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (n noopClient) Topic() string { return n.topic }

// NewClient builds a messaging client based on configuration.
func NewClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Client, error) {
	if !cfg.Messaging.Enabled || cfg.Messaging.Driver == "noop" {
		logger.Info("messaging disabled; using noop client")
		return Noop(cfg.Messaging.Kafka.IntakeTopic), nil
	}

	switch cfg.Messaging.Driver {
	case "kafka":
		return newKafkaClient(lc, cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported messaging driver: %s", cfg.Messaging.Driver)
	}
}

// maxRetryDelay caps the backoff between attempts on a failing intake message.
const maxRetryDelay = 30 * time.Second

// intakeReader is the part of *kafka.Reader the consumer uses.
type intakeReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// kafkaClient writes to the events topic and reads the intake topic.
type kafkaClient struct {
	writer      *kafka.Writer
	reader      intakeReader
	topic       string
	retryDelay  time.Duration
	maxAttempts int
	logger      *zap.Logger
}

func newKafkaClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) *kafkaClient {
	kc := cfg.Messaging.Kafka

	writer := &kafka.Writer{
		Addr:         kafka.TCP(kc.Brokers...),
		Topic:        kc.EventsTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Logger:       kafkaLogger{logger: logger},
		ErrorLogger:  kafkaLogger{logger: logger, errors: true},
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        kc.Brokers,
		GroupID:        cfg.Messaging.ConsumerGroup,
		Topic:          kc.IntakeTopic,
		MinBytes:       kc.MinBytes,
		MaxBytes:       kc.MaxBytes,
		CommitInterval: kc.CommitInterval,
		Dialer: &kafka.Dialer{
			Timeout:  kc.ConnectTimeout,
			ClientID: kc.ClientID,
		},
	})

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("closing kafka client")
			return errors.Join(writer.Close(), reader.Close())
		},
	})

	return &kafkaClient{
		writer:      writer,
		reader:      reader,
		topic:       kc.IntakeTopic,
		retryDelay:  cfg.Messaging.Workers.PollInterval,
		maxAttempts: cfg.Messaging.Workers.MaxAttempts,
		logger:      logger,
	}
}

// Publish relies on the writer's topic; kafka-go rejects messages that set one too.
// Events are hashed by key so one order's events stay on one partition.
func (k *kafkaClient) Publish(ctx context.Context, out Outbound) error {
	msg := kafka.Message{Key: out.Key, Value: out.Value, Time: time.Now().UTC()}
	for name, value := range out.Headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: name, Value: []byte(value)})
	}
	return k.writer.WriteMessages(ctx, msg)
}

// Consume hands each intake message to handler. A failing message is retried
// until it succeeds or ctx ends; nothing after it is fetched or committed
// before it is.
func (k *kafkaClient) Consume(ctx context.Context, handler Handler) error {
	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			k.logger.Error("kafka fetch failed", zap.Error(err))
			if err := sleep(ctx, k.retryDelay); err != nil {
				return err
			}
			continue
		}

		if err := k.handle(ctx, handler, inbound(msg)); err != nil {
			return err
		}

		if err := k.reader.CommitMessages(ctx, msg); err != nil {
			k.logger.Warn("commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// handle runs handler until it succeeds. Failures past maxAttempts are
// logged at error level; the only error returned is ctx's.
func (k *kafkaClient) handle(ctx context.Context, handler Handler, msg Message) error {
	delay := k.retryDelay
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg)
		if err == nil {
			return nil
		}
		fields := []zap.Field{zap.Int64("offset", msg.Offset), zap.Int("attempt", attempt), zap.Error(err)}
		if attempt >= k.maxAttempts {
			k.logger.Error("intake message keeps failing; partition is blocked", fields...)
		} else {
			k.logger.Warn("intake handler failed", fields...)
		}

		if err := sleep(ctx, delay); err != nil {
			return err
		}
		if delay *= 2; delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

func (k *kafkaClient) Topic() string { return k.topic }

func inbound(msg kafka.Message) Message {
	out := Message{
		Topic:  msg.Topic,
		Key:    append([]byte(nil), msg.Key...),
		Value:  append([]byte(nil), msg.Value...),
		Offset: msg.Offset,
		Time:   msg.Time,
	}
	if len(msg.Headers) > 0 {
		out.Headers = make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			out.Headers[h.Key] = string(h.Value)
		}
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type kafkaLogger struct {
	logger *zap.Logger
	errors bool
}

func (k kafkaLogger) Printf(msg string, args ...interface{}) {
	if k.errors {
		k.logger.Sugar().Warnf(msg, args...)
		return
	}
	k.logger.Sugar().Debugf(msg, args...)
}
