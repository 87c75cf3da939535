package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/flood-risk-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// RiskAPI is the monitor surface served over HTTP. Satisfied by
// *monitor.Service.
type RiskAPI interface {
	GetRiskAt(ctx context.Context, lat, lon float64) (domain.RiskReport, error)
	GetFamilyRisk(ctx context.Context, subjectID string) ([]domain.MemberSnapshot, error)
	GetAlerts(ctx context.Context, subjectID string) ([]domain.Alert, error)
	DispatchAlerts(ctx context.Context, subjectID string) ([]domain.Alert, error)
	TriggerSOS(ctx context.Context, req domain.SOSRequest) (domain.SOSAlert, error)
	RecentSOS(ctx context.Context, subjectID string, limit int) ([]domain.SOSAlert, error)
	MarkSafe(ctx context.Context, req domain.CheckInRequest) (domain.SafetyCheckIn, error)
	RecentCheckIns(ctx context.Context, subjectID string, limit int) ([]domain.SafetyCheckIn, error)

	RecordLocation(ctx context.Context, update domain.LocationUpdate) (domain.LocationRecord, error)
	LatestLocation(ctx context.Context, memberID string) (domain.LocationRecord, error)
	LocationHistory(ctx context.Context, memberID string, limit int) ([]domain.LocationRecord, error)

	ListMembers(ctx context.Context, subjectID string) ([]domain.FamilyMember, error)
	AddMember(ctx context.Context, subjectID string, member domain.FamilyMember) (domain.FamilyMember, error)
	UpdateMember(ctx context.Context, subjectID, memberID string, patch domain.MemberPatch) (domain.FamilyMember, error)
	RemoveMember(ctx context.Context, subjectID, memberID string) error

	GetTrackingPreferences(ctx context.Context, subjectID string) (domain.TrackingPreference, error)
	SetTrackingPreferences(ctx context.Context, subjectID string, patch domain.PreferencePatch) (domain.TrackingPreference, error)
}

// Server exposes the risk API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	api        RiskAPI
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the /v1 API and the /healthz,
// /readyz, and /metrics routes.
func NewServer(addr string, api RiskAPI, ready ReadinessChecker, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		api:    api,
		logger: logger,
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", handleReady(ready))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/risk", s.handleRiskAt)

		r.Route("/family/{subjectID}", func(r chi.Router) {
			r.Get("/risk", s.handleFamilyRisk)
			r.Get("/members", s.handleListMembers)
			r.Post("/members", s.handleAddMember)
			r.Patch("/members/{memberID}", s.handleUpdateMember)
			r.Delete("/members/{memberID}", s.handleRemoveMember)
		})

		r.Get("/alerts/{subjectID}", s.handleAlerts)
		r.Post("/alerts/{subjectID}/dispatch", s.handleDispatchAlerts)

		r.Post("/locations", s.handleRecordLocation)
		r.Get("/locations/{memberID}/latest", s.handleLatestLocation)
		r.Get("/locations/{memberID}/history", s.handleLocationHistory)

		r.Get("/preferences/{subjectID}", s.handleGetPreferences)
		r.Patch("/preferences/{subjectID}", s.handleSetPreferences)

		r.Post("/sos", s.handleSOS)
		r.Get("/sos/{subjectID}", s.handleRecentSOS)

		r.Post("/checkins", s.handleMarkSafe)
		r.Get("/checkins/{subjectID}", s.handleRecentCheckIns)
	})

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
