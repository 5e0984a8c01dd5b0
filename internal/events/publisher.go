// Package events publishes sync progress to Kafka.
//
// Every engine notification becomes one JSON message on the configured topic.
// Item messages are keyed by external id so that all events of one entry land
// on the same partition; run-level messages are keyed by event type.
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/IBM/sarama"

	"github.com/steveyegge/feedsync/internal/engine"
)

// Event types.
const (
	TypeItemUpdate    = "item_update"
	TypeSyncComplete  = "sync_complete"
	TypeBatchProgress = "batch_progress"
	TypeRollback      = "rollback"
)

// Event is the message envelope.
type Event struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Config holds Kafka producer configuration.
type Config struct {
	Brokers  []string `mapstructure:"brokers" yaml:"brokers" toml:"brokers"`
	Topic    string   `mapstructure:"topic" yaml:"topic" toml:"topic"`
	ClientID string   `mapstructure:"client_id" yaml:"client_id" toml:"client_id"`
}

// Publisher sends events with a synchronous producer.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *log.Logger
	now      func() time.Time
}

// NewPublisher connects a producer to the configured brokers.
func NewPublisher(cfg Config, logger *log.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_6_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = true
	if cfg.ClientID != "" {
		saramaConfig.ClientID = cfg.ClientID
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return NewPublisherWithProducer(producer, cfg.Topic, logger), nil
}

// NewPublisherWithProducer wraps an existing producer.
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.New(os.Stderr, "[events] ", log.LstdFlags)
	}
	return &Publisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
		now:      time.Now,
	}
}

// Publish sends one event.
func (p *Publisher) Publish(eventType, key string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	value, err := json.Marshal(Event{
		Type:      eventType,
		Timestamp: p.now(),
		Data:      payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}

	p.logger.Printf("Published %s (key=%s partition=%d offset=%d)", eventType, key, partition, offset)
	return nil
}

// Close shuts down the producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}

// OnItemProcessed implements engine.Observer.
func (p *Publisher) OnItemProcessed(outcome engine.ItemOutcome) {
	p.publishLogged(TypeItemUpdate, outcome.ExternalID, outcome)
}

// OnSyncComplete implements engine.Observer.
func (p *Publisher) OnSyncComplete(report *engine.SyncReport) {
	p.publishLogged(TypeSyncComplete, TypeSyncComplete, report)
}

// OnBatchComplete implements engine.Observer.
func (p *Publisher) OnBatchComplete(report *engine.BatchReport) {
	p.publishLogged(TypeBatchProgress, TypeBatchProgress, report)
}

// OnRollback implements engine.Observer.
func (p *Publisher) OnRollback(report *engine.RollbackReport) {
	p.publishLogged(TypeRollback, TypeRollback, report)
}

// publishLogged publishes and logs failures; observers never fail a run.
func (p *Publisher) publishLogged(eventType, key string, data interface{}) {
	if err := p.Publish(eventType, key, data); err != nil {
		p.logger.Printf("Warning: %v", err)
	}
}

var _ engine.Observer = (*Publisher)(nil)
