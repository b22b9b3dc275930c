package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const townsville = `{
	"location": {"name": "Townsville", "region": "Queensland", "country": "Australia", "lat": -19.25, "lon": 146.8, "tz_id": "Australia/Brisbane", "localtime_epoch": 1700000000, "localtime": "2023-11-15 8:13"},
	"current": {"last_updated_epoch": 1699999200, "temp_c": 21, "temp_f": 69.8, "condition": {"text": "Sunny", "icon": "//cdn.weatherapi.com/weather/64x64/day/113.png", "code": 1000}}
}`

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *WeatherAPIClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithBaseURL(srv.URL)}, opts...)
	return NewWeatherAPIClient(srv.Client(), "test-key", opts...)
}

func TestCurrent_DecodesReport(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/current.json", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "10,20", r.URL.Query().Get("q"))
		assert.Equal(t, "no", r.URL.Query().Get("aqi"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(townsville))
	})

	report, err := c.Current(context.Background(), "10,20")
	require.NoError(t, err)
	assert.Equal(t, "Townsville", report.Location.Name)
	assert.Equal(t, 21.0, report.Current.TempC)
	assert.Equal(t, "Sunny", report.Current.Condition.Text)
}

func TestCurrent_Failures(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		malformed bool
	}{
		{name: "unknown location", status: http.StatusBadRequest, body: `{"error":{"code":1006,"message":"No matching location found."}}`},
		{name: "server error", status: http.StatusBadGateway, body: `oops`},
		{name: "not json", status: http.StatusOK, body: `<html>`, malformed: true},
		{name: "missing location", status: http.StatusOK, body: `{"current":{"temp_c":3}}`, malformed: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := c.Current(context.Background(), "Atlantis")
			require.ErrorIs(t, err, ErrLookup)
			assert.Equal(t, tc.malformed, errors.Is(err, ErrMalformed))
		})
	}
}

func TestCurrent_RequiresKeyAndLocation(t *testing.T) {
	c := NewWeatherAPIClient(http.DefaultClient, "")
	_, err := c.Current(context.Background(), "10,20")
	require.ErrorIs(t, err, ErrLookup)

	c = NewWeatherAPIClient(http.DefaultClient, "k")
	_, err = c.Current(context.Background(), "   ")
	require.ErrorIs(t, err, ErrLookup)
}

func TestCurrent_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(townsville))
	}, WithBackoff(BackoffConfig{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}))

	report, err := c.Current(context.Background(), "Townsville")
	require.NoError(t, err)
	assert.Equal(t, "Townsville", report.Location.Name)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCurrent_NoRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Current(context.Background(), "Townsville")
	require.ErrorIs(t, err, ErrLookup)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCurrent_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	for i := 0; i < 5; i++ {
		_, err := c.Current(context.Background(), "Townsville")
		require.Error(t, err)
	}

	_, err := c.Current(context.Background(), "Townsville")
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(5), calls.Load())
}

func TestCurrent_ClientErrorsDoNotTripBreaker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	for i := 0; i < 8; i++ {
		_, err := c.Current(context.Background(), "Atlantis")
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrCircuitOpen)
	}
}

func TestCurrent_HonoursCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Current(ctx, "Townsville")
	require.ErrorIs(t, err, ErrLookup)
}
