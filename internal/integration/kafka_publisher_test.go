//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/flood-risk-service/internal/adapter/kafka"
	"github.com/couchcryptid/flood-risk-service/internal/domain"
	"github.com/couchcryptid/flood-risk-service/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const (
	testAlertTopic = "test-flood-alerts"
	testSOSTopic   = "test-sos-alerts"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("floodrisk-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func newConsumer(t *testing.T, broker, topic string) *kafkago.Reader {
	t.Helper()
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func readMessage(ctx context.Context, t *testing.T, r *kafkago.Reader) (kafkago.Message, map[string]string) {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := r.ReadMessage(readCtx)
	require.NoError(t, err)
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return msg, headers
}

func TestPublisherRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testAlertTopic)
	createTopic(t, broker, testSOSTopic)

	metrics := observability.NewMetricsForTesting()
	pub := kafka.NewPublisher([]string{broker}, testAlertTopic, testSOSTopic, discardLogger(), metrics)
	t.Cleanup(func() { _ = pub.Close() })

	snapshots := []domain.MemberSnapshot{{
		Member: domain.FamilyMember{MemberID: "amma", DisplayName: "Amma"},
		Location: &domain.LocationRecord{
			MemberID: "amma", Latitude: 6.9, Longitude: 79.8, BatteryLevel: 7,
			GPSStatus: domain.GPSLost, RecordedAt: time.Now().UTC(),
		},
		Risk: domain.RiskAssessment{Level: domain.RiskSevere, Score: 91},
	}}
	alerts := domain.SynthesizeAlerts(snapshots)
	require.Len(t, alerts, 2)
	require.NoError(t, pub.PublishAlerts(ctx, "subj", alerts))

	lat, lon := 6.9, 79.8
	sos, err := domain.NewSOSAlert(domain.SOSRequest{
		SubjectID: "subj", Latitude: &lat, Longitude: &lon, RiskLevel: domain.RiskSevere, RiskScore: 91,
	})
	require.NoError(t, err)
	require.NoError(t, pub.PublishSOS(ctx, sos))

	alertReader := newConsumer(t, broker, testAlertTopic)
	for i, want := range alerts {
		msg, headers := readMessage(ctx, t, alertReader)
		assert.Equal(t, "subj", string(msg.Key))
		assert.Equal(t, string(want.Kind), headers["alert_kind"], "message %d", i)
		assert.Equal(t, strconv.Itoa(want.Priority), headers["priority"])
		_, err := time.Parse(time.RFC3339, headers["published_at"])
		assert.NoError(t, err, "published_at should be valid RFC3339")

		var got domain.Alert
		require.NoError(t, json.Unmarshal(msg.Value, &got))
		assert.Equal(t, want, got)
	}

	msg, headers := readMessage(ctx, t, newConsumer(t, broker, testSOSTopic))
	assert.Equal(t, "sos", headers["alert_kind"])
	assert.Equal(t, string(domain.RiskSevere), headers["risk_level"])
	var got domain.SOSAlert
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, sos.ID, got.ID)
	assert.Equal(t, sos.MapsLink, got.MapsLink)
}
