package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/couchcryptid/flood-risk-service/internal/domain"
)

// Outbox is a domain.AlertPublisher that keeps published alerts in memory and
// logs them. It stands in for the broker when Kafka is disabled.
type Outbox struct {
	logger *slog.Logger

	mu     sync.Mutex
	passes map[string][]domain.Alert
	sos    []domain.SOSAlert
}

func NewOutbox(logger *slog.Logger) *Outbox {
	return &Outbox{logger: logger, passes: make(map[string][]domain.Alert)}
}

// PublishAlerts replaces the subject's last published pass.
func (o *Outbox) PublishAlerts(_ context.Context, subjectID string, alerts []domain.Alert) error {
	o.mu.Lock()
	o.passes[subjectID] = append([]domain.Alert(nil), alerts...)
	o.mu.Unlock()

	o.logger.Info("alerts dispatched", "subject_id", subjectID, "count", len(alerts))
	return nil
}

func (o *Outbox) PublishSOS(_ context.Context, alert domain.SOSAlert) error {
	o.mu.Lock()
	o.sos = append(o.sos, alert)
	o.mu.Unlock()

	o.logger.Warn("sos dispatched", "subject_id", alert.SubjectID, "sos_id", alert.ID, "maps_link", alert.MapsLink)
	return nil
}

// LastPass returns the most recent alert pass published for the subject.
func (o *Outbox) LastPass(subjectID string) []domain.Alert {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.Alert(nil), o.passes[subjectID]...)
}

// SOSAlerts returns every SOS alert published so far, oldest first.
func (o *Outbox) SOSAlerts() []domain.SOSAlert {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.SOSAlert(nil), o.sos...)
}
