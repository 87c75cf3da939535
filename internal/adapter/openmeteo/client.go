package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/flood-risk-service/internal/domain"
	"github.com/couchcryptid/flood-risk-service/internal/observability"
	"github.com/sony/gobreaker/v2"
)

// DefaultBaseURL is the public Open-Meteo forecast endpoint.
const DefaultBaseURL = "https://api.open-meteo.com/v1/forecast"

const currentFields = "temperature_2m,relative_humidity_2m,rain,wind_speed_10m"

// Client implements domain.WeatherProvider using the Open-Meteo current
// conditions API. Calls go through a circuit breaker so a failing upstream
// is skipped quickly instead of waiting out each timeout.
type Client struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker[domain.Forecast]
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an Open-Meteo client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		breaker:    newBreaker(logger),
		metrics:    metrics,
		logger:     logger,
	}
}

func newBreaker(logger *slog.Logger) *gobreaker.CircuitBreaker[domain.Forecast] {
	return gobreaker.NewCircuitBreaker[domain.Forecast](gobreaker.Settings{
		Name:        "open-meteo",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// A caller abandoning the request says nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// Forecast fetches current conditions for a coordinate.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) (domain.Forecast, error) {
	start := time.Now()
	f, err := c.breaker.Execute(func() (domain.Forecast, error) {
		return c.doRequest(ctx, lat, lon)
	})
	c.metrics.UpstreamDuration.Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.UpstreamRequests.WithLabelValues("circuit_open").Inc()
		return domain.Forecast{}, domain.NewError(domain.CodeUpstreamUnavailable, "weather provider circuit open", err)
	case err != nil:
		c.metrics.UpstreamRequests.WithLabelValues("error").Inc()
		return domain.Forecast{}, domain.NewError(domain.CodeUpstreamUnavailable, "weather provider request failed", err)
	}
	c.metrics.UpstreamRequests.WithLabelValues("success").Inc()
	return f, nil
}

func (c *Client) doRequest(ctx context.Context, lat, lon float64) (domain.Forecast, error) {
	params := url.Values{
		"latitude":  {strconv.FormatFloat(lat, 'f', -1, 64)},
		"longitude": {strconv.FormatFloat(lon, 'f', -1, 64)},
		"current":   {currentFields},
		"timezone":  {"auto"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return domain.Forecast{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Forecast{}, fmt.Errorf("forecast request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.Forecast{}, fmt.Errorf("open-meteo API error: status %d: %s", resp.StatusCode, body)
	}

	var meteoResp response
	if err := json.NewDecoder(resp.Body).Decode(&meteoResp); err != nil {
		return domain.Forecast{}, fmt.Errorf("decode response: %w", err)
	}
	if meteoResp.Current == nil {
		return domain.Forecast{}, errors.New("response missing current conditions")
	}

	cur := meteoResp.Current
	return domain.Forecast{
		Temperature:  cur.Temperature,
		Humidity:     cur.Humidity,
		RainMM:       cur.Rain,
		WindSpeedKMH: cur.WindSpeed,
		ElevationM:   meteoResp.Elevation,
		ObservedAt:   parseObservedAt(cur.Time, meteoResp.UTCOffsetSeconds),
	}, nil
}

// parseObservedAt reads the local ISO8601 minute timestamp Open-Meteo returns
// with timezone=auto. An unparseable value yields the zero time.
func parseObservedAt(value string, offsetSeconds int) time.Time {
	loc := time.FixedZone("", offsetSeconds)
	t, err := time.ParseInLocation("2006-01-02T15:04", value, loc)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// Open-Meteo API response types.

type response struct {
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	Elevation        *float64 `json:"elevation"`
	UTCOffsetSeconds int      `json:"utc_offset_seconds"`
	Current          *current `json:"current"`
}

type current struct {
	Time        string  `json:"time"`
	Temperature float64 `json:"temperature_2m"`
	Humidity    float64 `json:"relative_humidity_2m"`
	Rain        float64 `json:"rain"`
	WindSpeed   float64 `json:"wind_speed_10m"`
}
