package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/observability"
)

const retryCount = 3

// KafkaConfig configures the signal topic writer.
type KafkaConfig struct {
	Brokers      string // comma separated
	Topic        string
	WriteTimeout time.Duration // per attempt, default 2s
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes signals as JSON keyed by asset address, so all
// events of one asset land on one partition.
type KafkaPublisher struct {
	mq      messageWriter
	topic   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewKafkaPublisher creates a publisher backed by a kafka.Writer.
func NewKafkaPublisher(cfg KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if cfg.Brokers == "" || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka publisher: brokers and topic are required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    1,
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
		MaxAttempts:  5,
		WriteTimeout: cfg.WriteTimeout,
	}
	return newKafkaPublisher(w, cfg.Topic, cfg.WriteTimeout, logger), nil
}

func newKafkaPublisher(mq messageWriter, topic string, timeout time.Duration, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{mq: mq, topic: topic, timeout: timeout, logger: logger.Named("kafka")}
}

// Dispatch implements Dispatcher.
func (p *KafkaPublisher) Dispatch(ctx context.Context, v domain.SignalView) error {
	value, err := json.Marshal(NewSignalEvent(v))
	if err != nil {
		return fmt.Errorf("marshal signal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(v.Signal.AssetAddress),
		Value: value,
	}

	for attempt := 0; attempt < retryCount; attempt++ {
		wctx, cancel := context.WithTimeout(ctx, p.timeout)
		err = p.mq.WriteMessages(wctx, msg)
		cancel()
		if err == nil || ctx.Err() != nil {
			break
		}
		p.logger.Debug("kafka write failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	observability.RecordNotification("kafka", err)
	if err != nil {
		return fmt.Errorf("publish signal %s to %s: %w", v.Signal.AssetAddress, p.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.mq.Close()
}
