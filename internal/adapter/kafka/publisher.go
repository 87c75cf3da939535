package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/flood-risk-service/internal/domain"
	"github.com/couchcryptid/flood-risk-service/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces alert passes and SOS alerts to Kafka.
// It implements domain.AlertPublisher.
type Publisher struct {
	writer     messageWriter
	alertTopic string
	sosTopic   string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewPublisher creates a Kafka producer. Topics are set per message so one
// writer serves both the alert and SOS topics.
func NewPublisher(brokers []string, alertTopic, sosTopic string, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{
		writer:     w,
		alertTopic: alertTopic,
		sosTopic:   sosTopic,
		logger:     logger,
		metrics:    metrics,
	}
}

// PublishAlerts writes one message per alert in a single WriteMessages call.
// Messages are keyed by subject so a pass stays ordered within a partition.
func (p *Publisher) PublishAlerts(ctx context.Context, subjectID string, alerts []domain.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	publishedAt := domain.Now()
	msgs := make([]kafkago.Message, len(alerts))
	for i := range alerts {
		msg, err := alertMessage(p.alertTopic, subjectID, alerts[i], publishedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return p.write(ctx, p.alertTopic, msgs)
}

// PublishSOS writes an SOS alert to the SOS topic.
func (p *Publisher) PublishSOS(ctx context.Context, alert domain.SOSAlert) error {
	msg, err := sosMessage(p.sosTopic, alert)
	if err != nil {
		return err
	}
	return p.write(ctx, p.sosTopic, []kafkago.Message{msg})
}

func (p *Publisher) write(ctx context.Context, topic string, msgs []kafkago.Message) error {
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.metrics.AlertsPublished.WithLabelValues(topic, "error").Add(float64(len(msgs)))
		return domain.NewError(domain.CodeUpstreamUnavailable, "failed to publish to "+topic, err)
	}
	p.metrics.AlertsPublished.WithLabelValues(topic, "success").Add(float64(len(msgs)))
	p.logger.Debug("published messages", "topic", topic, "count", len(msgs))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// alertMessage marshals an Alert into a Kafka message.
func alertMessage(topic, subjectID string, alert domain.Alert, publishedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(alert)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert: %w", err)
	}
	return kafkago.Message{
		Topic: topic,
		Key:   []byte(subjectID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "subject_id", Value: []byte(subjectID)},
			{Key: "alert_kind", Value: []byte(alert.Kind)},
			{Key: "priority", Value: []byte(strconv.Itoa(alert.Priority))},
			{Key: "published_at", Value: []byte(publishedAt.Format(time.RFC3339))},
		},
	}, nil
}

// sosMessage marshals an SOSAlert into a Kafka message.
func sosMessage(topic string, alert domain.SOSAlert) (kafkago.Message, error) {
	data, err := json.Marshal(alert)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize sos alert: %w", err)
	}
	return kafkago.Message{
		Topic: topic,
		Key:   []byte(alert.SubjectID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "subject_id", Value: []byte(alert.SubjectID)},
			{Key: "alert_kind", Value: []byte(domain.AlertSOS)},
			{Key: "risk_level", Value: []byte(alert.RiskLevel)},
			{Key: "created_at", Value: []byte(alert.CreatedAt.Format(time.RFC3339))},
		},
	}, nil
}
