// Package events publishes authentication lifecycle events to Kafka.
// Publishing is fire and forget: the engine never blocks a login on the
// broker, and delivery failures surface through the error hook so the
// broker circuit breaker can account for them.
package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Settings configures the Kafka producer.
type Settings struct {
	Brokers     []string
	TopicPrefix string
	ServiceName string
	Environment string
}

// Producer wraps a sarama AsyncProducer with error draining and topic
// naming.
type Producer struct {
	producer sarama.AsyncProducer
	logger   *zap.Logger
	cfg      Settings
	onError  func(error)
	done     chan struct{}
}

// NewProducer dials the brokers and starts the error drain goroutine.
// onError is invoked for every delivery failure; pass nil to only log.
func NewProducer(cfg Settings, logger *zap.Logger, onError func(error)) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_5_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Flush.Frequency = 100 * time.Millisecond
	saramaConfig.Producer.Flush.Messages = 100
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = false
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Metadata.Retry.Max = 3
	saramaConfig.Metadata.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	p := NewProducerFrom(producer, cfg, logger, onError)
	logger.Info("kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
	)
	return p, nil
}

// NewProducerFrom wraps an already constructed AsyncProducer. Used when
// the caller owns producer construction, and by tests.
func NewProducerFrom(producer sarama.AsyncProducer, cfg Settings, logger *zap.Logger, onError func(error)) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Producer{
		producer: producer,
		logger:   logger,
		cfg:      cfg,
		onError:  onError,
		done:     make(chan struct{}),
	}
	go p.drainErrors()
	return p
}

func (p *Producer) drainErrors() {
	for {
		select {
		case err, ok := <-p.producer.Errors():
			if !ok {
				return
			}
			if err == nil {
				continue
			}
			p.logger.Error("kafka delivery failed",
				zap.Error(err.Err),
				zap.String("topic", err.Msg.Topic),
			)
			if p.onError != nil {
				p.onError(err.Err)
			}
		case <-p.done:
			return
		}
	}
}

// Close flushes pending messages and stops the error drain.
func (p *Producer) Close() error {
	close(p.done)
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

// TopicName prepends the configured prefix to an event type.
func (p *Producer) TopicName(eventType string) string {
	if p.cfg.TopicPrefix == "" {
		return eventType
	}
	prefix := p.cfg.TopicPrefix + "."
	if strings.HasPrefix(eventType, prefix) {
		return eventType
	}
	return prefix + eventType
}
