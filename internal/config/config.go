package config

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080" validate:"required"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" validate:"gt=0"`

	// Telemetry.
	OpenMeteoBaseURL     string        `envconfig:"OPEN_METEO_BASE_URL" default:"https://api.open-meteo.com/v1/forecast" validate:"required,url"`
	TelemetryTimeout     time.Duration `envconfig:"TELEMETRY_TIMEOUT" default:"3s" validate:"gt=0,lte=3s"`
	TelemetryCacheTTL    time.Duration `envconfig:"TELEMETRY_CACHE_TTL" default:"5m" validate:"gt=0"`
	TelemetryCacheSize   int           `envconfig:"TELEMETRY_CACHE_SIZE" default:"1000" validate:"min=1"`
	TelemetryWaterLevelM float64       `envconfig:"TELEMETRY_WATER_LEVEL_M" default:"1.5" validate:"gte=0"`

	FusionConcurrency int `envconfig:"FUSION_CONCURRENCY" default:"4" validate:"min=1,max=64"`

	// Tracking.
	TrackingNormalInterval time.Duration `envconfig:"TRACKING_NORMAL_INTERVAL" default:"15m" validate:"gt=0"`
	TrackingHighInterval   time.Duration `envconfig:"TRACKING_HIGH_INTERVAL" default:"1m" validate:"gt=0"`

	// DatabaseURL selects PostgreSQL stores; empty uses in-memory stores.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Kafka alert publishing.
	KafkaEnabled    bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	KafkaBrokers    []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaAlertTopic string   `envconfig:"KAFKA_ALERT_TOPIC" default:"flood-alerts"`
	KafkaSOSTopic   string   `envconfig:"KAFKA_SOS_TOPIC" default:"sos-alerts"`

	// Device binding. When DeviceSubjectID is set this process tracks that
	// subject's device.
	DeviceSubjectID string `envconfig:"DEVICE_SUBJECT_ID"`
	DeviceFixFile   string `envconfig:"DEVICE_FIX_FILE"`
}

// ErrorKind classifies configuration failures.
type ErrorKind string

const (
	ErrParsing    ErrorKind = "parsing"
	ErrValidation ErrorKind = "validation"
)

// Error is returned by Load when the environment cannot produce a valid Config.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Load reads configuration from a local .env file (if present) and the
// environment, applying defaults where unset.
func Load() (*Config, error) {
	// Missing .env is fine; real environment variables take precedence.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &Error{Kind: ErrParsing, Message: "failed to process environment", Err: err}
	}

	if err := newValidator().Struct(cfg); err != nil {
		return nil, &Error{Kind: ErrValidation, Message: "configuration validation failed", Err: err}
	}

	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, &Error{Kind: ErrValidation, Message: "KAFKA_ENABLED is true but KAFKA_BROKERS is empty"}
	}
	if cfg.KafkaEnabled && (cfg.KafkaAlertTopic == "" || cfg.KafkaSOSTopic == "") {
		return nil, &Error{Kind: ErrValidation, Message: "KAFKA_ALERT_TOPIC and KAFKA_SOS_TOPIC are required when KAFKA_ENABLED is true"}
	}
	if cfg.TrackingHighInterval >= cfg.TrackingNormalInterval {
		return nil, &Error{Kind: ErrValidation, Message: "TRACKING_HIGH_INTERVAL must be shorter than TRACKING_NORMAL_INTERVAL"}
	}
	if cfg.DeviceFixFile != "" && cfg.DeviceSubjectID == "" {
		return nil, &Error{Kind: ErrValidation, Message: "DEVICE_FIX_FILE is set but DEVICE_SUBJECT_ID is not"}
	}
	if cfg.DeviceSubjectID != "" && cfg.DeviceFixFile == "" {
		return nil, &Error{Kind: ErrValidation, Message: "DEVICE_SUBJECT_ID is set but DEVICE_FIX_FILE is not"}
	}

	return &cfg, nil
}

// DeviceBound reports whether this process owns a device tracking scheduler.
func (c *Config) DeviceBound() bool {
	return c.DeviceSubjectID != ""
}

// newValidator reports fields by their environment key.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if key := f.Tag.Get("envconfig"); key != "" {
			return key
		}
		return f.Name
	})
	return v
}
