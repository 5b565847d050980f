// Package client is the dashboard-side API client. It mirrors the server's
// degradation rule: when the API is unreachable, rate limited or returns
// garbage, the client generates the same synthetic substitutes locally so
// the dashboard always has something to draw. Production mode disables the
// mirror and surfaces errors instead.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/epitrack/epitrack/internal/domain"
	httpContracts "github.com/epitrack/epitrack/internal/http"
	"github.com/epitrack/epitrack/internal/predict"
)

// Config controls the client's transport behavior.
type Config struct {
	BaseURL string

	// Production surfaces transport failures as errors instead of
	// substituting synthetic data.
	Production bool

	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// DefaultConfig returns a client configuration for a local server.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "http://127.0.0.1:8090",
		RequestsPerSecond: 10,
		Burst:             5,
		Timeout:           10 * time.Second,
	}
}

// Client talks to the prediction API with rate limiting and a circuit
// breaker in front of every call.
type Client struct {
	httpClient *http.Client
	baseURL    string
	production bool
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	policy     domain.QualityPolicy

	// newRand is swapped for a fixed seed in tests.
	newRand func() *rand.Rand
}

// New creates a client with the shared quality policy.
func New(cfg Config, policy domain.QualityPolicy) *Client {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "epitrack-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		production: cfg.Production,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker:    breaker,
		policy:     policy,
		newRand:    domain.NewRand,
	}
}

// SetRandSource overrides the generator seed source (tests only).
func (c *Client) SetRandSource(newRand func() *rand.Rand) {
	c.newRand = newRand
}

// Countries fetches the country listing. There is no synthetic mirror for
// listings; failures propagate.
func (c *Client) Countries(ctx context.Context) (httpContracts.CountriesResponse, error) {
	var resp httpContracts.CountriesResponse
	err := c.getJSON(ctx, "/api/countries", nil, &resp)
	return resp, err
}

// Historical fetches a country's observed series, substituting a locally
// generated one when the API cannot serve and the client is not in
// production mode.
func (c *Client) Historical(ctx context.Context, country string, from, to *domain.Date) (httpContracts.HistoricalResponse, error) {
	country = domain.CanonicalCountry(country)

	query := url.Values{}
	if from != nil {
		query.Set("start_date", from.String())
	}
	if to != nil {
		query.Set("end_date", to.String())
	}

	want := 1
	if from != nil && to != nil {
		want = from.DaysUntil(*to) + 1
	}

	var resp httpContracts.HistoricalResponse
	err := c.getJSON(ctx, "/api/historical/"+url.PathEscape(country), query, &resp)
	if err == nil && c.policy.AcceptHistory(resp.Data, want) {
		return resp, nil
	}

	if c.production {
		if err == nil {
			err = fmt.Errorf("historical response for %s failed quality gate", country)
		}
		return httpContracts.HistoricalResponse{}, err
	}

	log.Warn().Err(err).Str("country", country).Msg("substituting generated history")
	end := domain.Yesterday()
	if to != nil {
		end = *to
	}
	points := domain.GenerateHistory(c.newRand(), country, c.policy.HistoryWindow(want), end)
	return httpContracts.HistoricalResponse{
		Country:     country,
		Data:        points,
		Count:       len(points),
		IsSimulated: true,
	}, nil
}

// Forecast fetches a prediction, substituting a locally generated forecast
// on failure outside production mode. The enhanced kind routes to the
// enhanced endpoint.
func (c *Client) Forecast(ctx context.Context, country string, days int, kind domain.ModelKind) (httpContracts.PredictResponse, error) {
	country = domain.CanonicalCountry(country)
	days = predict.ClampHorizon(days, kind)

	path := "/api/predict/" + url.PathEscape(country)
	query := url.Values{"days": {fmt.Sprint(days)}}
	if kind == domain.KindEnhanced {
		path = "/api/predict/enhanced/" + url.PathEscape(country)
	} else {
		query.Set("model_type", string(kind))
	}

	var resp httpContracts.PredictResponse
	err := c.getJSON(ctx, path, query, &resp)
	if err == nil && c.policy.AcceptForecast(resp.Predictions, days) {
		return resp, nil
	}

	if c.production {
		if err == nil {
			err = fmt.Errorf("forecast response for %s failed quality gate", country)
		}
		return httpContracts.PredictResponse{}, err
	}

	log.Warn().Err(err).Str("country", country).Msg("substituting generated forecast")
	rng := c.newRand()
	history := domain.GenerateHistory(rng, country, c.policy.HistoryWindow(1), domain.Yesterday())
	last := history[len(history)-1]
	return httpContracts.PredictResponse{
		Country:     country,
		Predictions: domain.GenerateForecast(rng, last, days, kind),
		ModelUsed:   "synthetic",
		IsSimulated: true,
	}, nil
}

// Compare posts a comparison request. Failures propagate in production
// mode; otherwise every requested country gets a generated entry.
func (c *Client) Compare(ctx context.Context, req httpContracts.CompareRequest) (httpContracts.CompareResponse, error) {
	var resp httpContracts.CompareResponse
	err := c.postJSON(ctx, "/api/compare", req, &resp)
	if err == nil {
		return resp, nil
	}
	if c.production {
		return httpContracts.CompareResponse{}, err
	}

	// Mirror the server's request handling: requests the server would have
	// rejected with a 400 keep the original error instead of a substitute.
	metric := domain.DefaultSeriesMetric
	if req.Metric != "" {
		parsed, perr := domain.ParseSeriesMetric(req.Metric)
		if perr != nil {
			return httpContracts.CompareResponse{}, err
		}
		metric = parsed
	}
	want := 1
	end := domain.Yesterday()
	if req.StartDate != "" && req.EndDate != "" {
		from, ferr := domain.ParseDate(req.StartDate)
		until, terr := domain.ParseDate(req.EndDate)
		if ferr != nil || terr != nil || until.Time.Before(from.Time) {
			return httpContracts.CompareResponse{}, err
		}
		want = from.DaysUntil(until) + 1
		end = until
	}

	log.Warn().Err(err).Msg("substituting generated comparison")
	rng := c.newRand()
	comparison := make([]httpContracts.CompareEntry, 0, len(req.Countries))
	countries := make([]string, 0, len(req.Countries))
	for _, raw := range req.Countries {
		country := domain.CanonicalCountry(raw)
		countries = append(countries, country)
		points := domain.GenerateHistory(rng, country, c.policy.HistoryWindow(want), end)
		comparison = append(comparison, syntheticCompareEntry(country, points, metric))
	}
	return httpContracts.CompareResponse{
		Comparison: comparison,
		Metric:     string(metric),
		Countries:  countries,
		DateRange: httpContracts.CompareDateRange{
			Start: req.StartDate,
			End:   req.EndDate,
		},
	}, nil
}

func syntheticCompareEntry(country string, points []domain.TimeSeriesPoint, metric domain.SeriesMetric) httpContracts.CompareEntry {
	data := make([]httpContracts.MetricPoint, len(points))
	stats := httpContracts.SeriesStatistics{
		Min: metric.Value(points[0]),
		Max: metric.Value(points[0]),
	}
	for i, p := range points {
		v := metric.Value(p)
		data[i] = httpContracts.MetricPoint{Date: p.Date, Value: v}
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
		stats.Total += v
	}
	stats.Mean = stats.Total / float64(len(points))

	return httpContracts.CompareEntry{
		Country:     country,
		Data:        data,
		Count:       len(data),
		Metric:      string(metric),
		Statistics:  stats,
		IsSimulated: true,
	}
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.do(ctx, func() (*http.Request, error) {
		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, func() (*http.Request, error) {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, out)
}

// do runs one request through the limiter and the breaker and decodes the
// JSON body into out.
func (c *Client) do(ctx context.Context, build func() (*http.Request, error), out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := build()
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return nil, nil
	})
	return err
}
