package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/flood-risk-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/flood-risk-service/internal/adapter/kafka"
	"github.com/couchcryptid/flood-risk-service/internal/adapter/memory"
	"github.com/couchcryptid/flood-risk-service/internal/adapter/openmeteo"
	"github.com/couchcryptid/flood-risk-service/internal/adapter/postgres"
	"github.com/couchcryptid/flood-risk-service/internal/config"
	"github.com/couchcryptid/flood-risk-service/internal/domain"
	"github.com/couchcryptid/flood-risk-service/internal/monitor"
	"github.com/couchcryptid/flood-risk-service/internal/observability"
	"github.com/couchcryptid/flood-risk-service/internal/telemetry"
	"github.com/couchcryptid/flood-risk-service/internal/tracking"
	"github.com/jonboulle/clockwork"
)

// stores bundles the persistence ports chosen at startup.
type stores struct {
	locations   domain.LocationStore
	preferences domain.PreferenceStore
	members     domain.FamilyDirectory
	safety      domain.SafetyLog
	ready       httpadapter.ReadinessChecker
	close       func()
}

// alwaysReady is the readiness check for in-memory stores.
type alwaysReady struct{}

func (alwaysReady) CheckReadiness(context.Context) error { return nil }

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open stores", "error", err)
		os.Exit(1)
	}
	defer st.close()

	weather := openmeteo.NewClient(cfg.OpenMeteoBaseURL, cfg.TelemetryTimeout, metrics, logger)
	cache := telemetry.NewCache(cfg.TelemetryCacheTTL, cfg.TelemetryCacheSize, clockwork.NewRealClock())
	source := telemetry.NewSource(weather, cache, telemetry.Options{
		Timeout:     cfg.TelemetryTimeout,
		WaterLevelM: cfg.TelemetryWaterLevelM,
	}, logger, metrics)

	// Alert publishing is feature-flagged via KAFKA_ENABLED.
	var publisher domain.AlertPublisher
	var kafkaPublisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		kafkaPublisher = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaAlertTopic, cfg.KafkaSOSTopic, logger, metrics)
		publisher = kafkaPublisher
		logger.Info("kafka alert publishing enabled", "brokers", cfg.KafkaBrokers,
			"alert_topic", cfg.KafkaAlertTopic, "sos_topic", cfg.KafkaSOSTopic)
	} else {
		publisher = memory.NewOutbox(logger)
		logger.Info("kafka alert publishing disabled, alerts are logged only")
	}

	prefs := monitor.NewPreferences(st.preferences, logger, metrics)
	svc := monitor.NewService(monitor.Deps{
		Fuser:       monitor.NewFuser(st.locations, source, cfg.FusionConcurrency, logger, metrics),
		Telemetry:   source,
		Members:     st.members,
		Locations:   st.locations,
		Preferences: prefs,
		Publisher:   publisher,
		Safety:      st.safety,
		Logger:      logger,
		Metrics:     metrics,
	})

	var sched *tracking.Scheduler
	if cfg.DeviceBound() {
		sched = startTracking(ctx, cfg, svc, prefs, logger, metrics)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, st.ready, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if sched != nil {
		sched.Stop()
	}
	prefs.Wait()
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// openStores selects PostgreSQL when DATABASE_URL is set, in-memory stores otherwise.
func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (stores, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("no DATABASE_URL, using in-memory stores")
		return stores{
			locations:   memory.NewLocationStore(),
			preferences: memory.NewPreferenceStore(),
			members:     memory.NewFamilyDirectory(),
			safety:      memory.NewSafetyLog(),
			ready:       alwaysReady{},
			close:       func() {},
		}, nil
	}

	pool, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return stores{}, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return stores{}, err
	}
	logger.Info("postgres stores ready")
	return stores{
		locations:   postgres.NewLocationStore(pool),
		preferences: postgres.NewPreferenceStore(pool),
		members:     postgres.NewFamilyDirectory(pool),
		safety:      postgres.NewSafetyLog(pool),
		ready:       postgres.NewReadiness(pool),
		close:       pool.Close,
	}, nil
}

// startTracking binds this process's device to DEVICE_SUBJECT_ID and applies
// the subject's stored preferences.
func startTracking(ctx context.Context, cfg *config.Config, svc *monitor.Service, prefs *monitor.Preferences, logger *slog.Logger, metrics *observability.Metrics) *tracking.Scheduler {
	subjectID := cfg.DeviceSubjectID
	reporter := tracking.NewLocationReporter(subjectID, tracking.FileLocator{Path: cfg.DeviceFixFile}, svc, logger)
	sched := tracking.NewScheduler(reporter, tracking.Options{
		NormalInterval: cfg.TrackingNormalInterval,
		HighInterval:   cfg.TrackingHighInterval,
		OnPermissionDenied: func(ctx context.Context) {
			prefs.DisableTracking(ctx, subjectID)
		},
	}, logger.With("subject_id", subjectID), metrics)
	prefs.Bind(subjectID, sched)

	pref, err := prefs.Get(ctx, subjectID)
	if err != nil {
		logger.Error("load tracking preferences", "subject_id", subjectID, "error", err)
		return sched
	}
	if err := sched.Apply(ctx, pref); err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			prefs.DisableTracking(ctx, subjectID)
		}
		logger.Warn("device tracking not started", "subject_id", subjectID, "error", err)
		return sched
	}
	logger.Info("device tracking started", "subject_id", subjectID, "mode", sched.Mode().String())
	return sched
}
