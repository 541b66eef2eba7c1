package events

import (
	"context"
	"delivery-estimate-service/internal/domain"
	"delivery-estimate-service/internal/platform/obs"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
)

const EstimateCreated = "delivery_estimate.created"

// EstimateEvent is the message body published for each stored estimate.
type EstimateEvent struct {
	Type             string      `json:"event_type"`
	EstimateID       string      `json:"estimate_id"`
	OrderID          int64       `json:"order_id"`
	EstimatedMinutes int         `json:"estimated_minutes"`
	ConfidenceScore  float64     `json:"confidence_score"`
	Zone             domain.Zone `json:"zone"`
	DistanceMiles    float64     `json:"distance_miles"`
	Fallback         bool        `json:"fallback"`
	CreatedAt        time.Time   `json:"created_at"`
}

func NewEstimateEvent(rec domain.EstimateRecord) EstimateEvent {
	return EstimateEvent{
		Type:             EstimateCreated,
		EstimateID:       rec.ID,
		OrderID:          rec.OrderID,
		EstimatedMinutes: rec.Estimate.EstimatedMinutes,
		ConfidenceScore:  rec.Estimate.ConfidenceScore,
		Zone:             rec.Estimate.Zone,
		DistanceMiles:    rec.Estimate.DistanceMiles,
		Fallback:         rec.Estimate.Factors.Fallback,
		CreatedAt:        rec.Estimate.CreatedAt,
	}
}

// KafkaPublisher writes estimate events keyed by order id, so all events for
// one order land on the same partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 100 * time.Millisecond
	cfg.Producer.Return.Successes = true
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 10 * time.Second
	cfg.Net.WriteTimeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka publisher: create producer: %w", err)
	}

	obs.Logger(context.Background()).Info().Strs("brokers", brokers).Str("topic", topic).Msg("kafka producer connected")
	return NewKafkaPublisherWithProducer(producer, topic), nil
}

func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishEstimate(ctx context.Context, rec domain.EstimateRecord) (err error) {
	defer obs.Time(ctx, "kafka.PublishEstimate")(&err)

	if p.producer == nil {
		return errors.New("kafka publisher: producer is not initialized")
	}

	body, err := json.Marshal(NewEstimateEvent(rec))
	if err != nil {
		return fmt.Errorf("kafka publisher: encode event: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(rec.OrderID, 10)),
		Value: sarama.ByteEncoder(body),
	})
	if err != nil {
		return fmt.Errorf("kafka publisher: send to %s: %w", p.topic, err)
	}

	obs.Logger(ctx).Debug().
		Int64("order_id", rec.OrderID).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("estimate event published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
