package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/arklim/auth-service/internal/infra/config"
)

// Producer wraps a Sarama AsyncProducer and drains its error channel.
type Producer struct {
	producer sarama.AsyncProducer
	logger   *zap.Logger
	cfg      config.KafkaSettings
	done     chan struct{}
}

// NewProducer dials the brokers and starts the error drain goroutine.
func NewProducer(cfg config.KafkaSettings, logger *zap.Logger) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_5_0_0
	saramaConfig.ClientID = "auth-service"

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

	p := newProducer(producer, cfg, logger)

	logger.Info("kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
	)

	return p, nil
}

func newProducer(producer sarama.AsyncProducer, cfg config.KafkaSettings, logger *zap.Logger) *Producer {
	p := &Producer{
		producer: producer,
		logger:   logger,
		cfg:      cfg,
		done:     make(chan struct{}),
	}
	go p.handleErrors()
	return p
}

func (p *Producer) handleErrors() {
	for {
		select {
		case perr, ok := <-p.producer.Errors():
			if !ok {
				return
			}
			if perr == nil {
				continue
			}
			fields := []zap.Field{zap.Error(perr.Err)}
			if perr.Msg != nil {
				fields = append(fields, zap.String("topic", perr.Msg.Topic))
			}
			p.logger.Error("kafka delivery failed", fields...)
		case <-p.done:
			return
		}
	}
}

// Input exposes the producer input channel.
func (p *Producer) Input() chan<- *sarama.ProducerMessage {
	return p.producer.Input()
}

// Close flushes buffered messages and stops the producer.
func (p *Producer) Close() error {
	p.logger.Info("closing kafka producer")
	close(p.done)

	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

// TopicName prepends the configured prefix unless eventType already carries it.
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
