package memory

import (
	"context"
	"sync"

	"github.com/couchcryptid/flood-risk-service/internal/domain"
)

// SafetyLog keeps SOS alerts and check-ins per subject in arrival order.
type SafetyLog struct {
	mu       sync.RWMutex
	sos      map[string][]domain.SOSAlert
	checkIns map[string][]domain.SafetyCheckIn
}

func NewSafetyLog() *SafetyLog {
	return &SafetyLog{
		sos:      make(map[string][]domain.SOSAlert),
		checkIns: make(map[string][]domain.SafetyCheckIn),
	}
}

func (l *SafetyLog) RecordSOS(_ context.Context, alert domain.SOSAlert) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sos[alert.SubjectID] = append(l.sos[alert.SubjectID], alert)
	return nil
}

func (l *SafetyLog) RecentSOS(_ context.Context, subjectID string, limit int) ([]domain.SOSAlert, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return newestFirst(l.sos[subjectID], limit), nil
}

func (l *SafetyLog) RecordCheckIn(_ context.Context, c domain.SafetyCheckIn) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkIns[c.SubjectID] = append(l.checkIns[c.SubjectID], c)
	return nil
}

func (l *SafetyLog) RecentCheckIns(_ context.Context, subjectID string, limit int) ([]domain.SafetyCheckIn, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return newestFirst(l.checkIns[subjectID], limit), nil
}

func newestFirst[T any](log []T, limit int) []T {
	out := make([]T, 0, max(min(limit, len(log)), 0))
	for i := len(log) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, log[i])
	}
	return out
}
