package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/DoyleJ11/weatherboard/pkg/types"
)

const DefaultBaseURL = "https://api.weatherapi.com/v1"

var validate = validator.New()

// WeatherAPIClient implements Lookup against WeatherAPI.com's current.json.
type WeatherAPIClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	backoff BackoffConfig
	circuit *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

type Option func(*WeatherAPIClient)

func WithBaseURL(u string) Option {
	return func(c *WeatherAPIClient) { c.baseURL = strings.TrimSuffix(u, "/") }
}

func WithBackoff(b BackoffConfig) Option {
	return func(c *WeatherAPIClient) { c.backoff = b }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *WeatherAPIClient) { c.logger = l }
}

func NewWeatherAPIClient(client *http.Client, apiKey string, opts ...Option) *WeatherAPIClient {
	c := &WeatherAPIClient{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		client:  client,
		circuit: newBreaker("weatherapi"),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("weatherapi")
	return c
}

func (c *WeatherAPIClient) Current(ctx context.Context, location string) (types.Report, error) {
	if c.apiKey == "" {
		return types.Report{}, fmt.Errorf("%w: weatherapi api key is not configured", ErrLookup)
	}
	location = strings.TrimSpace(location)
	if location == "" {
		return types.Report{}, fmt.Errorf("%w: empty location", ErrLookup)
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("key", c.apiKey)
		values.Set("q", location)
		values.Set("aqi", "no")

		u := fmt.Sprintf("%s/current.json?%s", c.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequest(ctx, c.client, c.backoff, c.circuit, buildRequest)
	if err != nil {
		return types.Report{}, fmt.Errorf("%w: %s: %w", ErrLookup, location, err)
	}
	defer resp.Body.Close()

	var report types.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return types.Report{}, fmt.Errorf("%w: %w: %w", ErrLookup, ErrMalformed, err)
	}
	if err := validate.Struct(report); err != nil {
		return types.Report{}, fmt.Errorf("%w: %w: %w", ErrLookup, ErrMalformed, err)
	}

	c.logger.Debug("lookup ok",
		zap.String("query", location),
		zap.String("resolved", report.Location.Name),
		zap.Float64("temp_c", report.Current.TempC),
	)
	return report, nil
}
