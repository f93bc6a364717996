package waktusolat

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
	"go.uber.org/zap"
)

const juneBody = `{
	"zone": "SGR01",
	"year": 2025,
	"month": "JUN",
	"month_number": 6,
	"prayers": [
		{"day": 1, "hijri": "1446-12-05", "fajr": 1748727900, "syuruk": 1748732340, "dhuhr": 1748754660, "asr": 1748766720, "maghrib": 1748777340, "isha": 1748781840},
		{"day": 2, "hijri": "1446-12-06", "fajr": 1748814300, "syuruk": 1748818740, "dhuhr": 1748841060, "asr": 1748853120, "maghrib": 1748863740, "isha": 1748868240}
	]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(ClientConfig{BaseURL: server.URL + "/", Timeout: 2 * time.Second}, zap.NewNop()), server
}

func TestClient_FetchMonth(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/solat/SGR01", r.URL.Path)
		assert.Equal(t, "2025", r.URL.Query().Get("year"))
		assert.Equal(t, "6", r.URL.Query().Get("month"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(juneBody))
	})

	schedule, err := client.FetchMonth(context.Background(), "SGR01", 2025, time.June)
	require.NoError(t, err)

	assert.Equal(t, "SGR01", schedule.Zone)
	assert.Equal(t, 2025, schedule.Year)
	assert.Equal(t, time.June, schedule.Month)
	require.Len(t, schedule.Rows, 2)

	row, ok := schedule.Row(2)
	require.True(t, ok)
	assert.Equal(t, "1446-12-06", row.Hijri)
	assert.Equal(t, int64(1748814300), row.Fajr)
	assert.Len(t, row.Timestamps(), 6)

	_, ok = schedule.Row(3)
	assert.False(t, ok)
}

func TestClient_FetchMonth_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   error
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom", kind: ErrNetwork},
		{name: "not found", status: http.StatusNotFound, body: "", kind: ErrNetwork},
		{name: "malformed json", status: http.StatusOK, body: "{not json", kind: ErrUpstreamFormat},
		{name: "missing prayers", status: http.StatusOK, body: `{"zone":"SGR01","year":2025}`, kind: ErrUpstreamFormat},
		{name: "empty prayers", status: http.StatusOK, body: `{"prayers":[]}`, kind: ErrUpstreamFormat},
		{name: "invalid day", status: http.StatusOK, body: `{"prayers":[{"day":31,"fajr":1}]}`, kind: ErrUpstreamFormat},
		{name: "duplicate day", status: http.StatusOK, body: `{"prayers":[{"day":1,"fajr":1},{"day":1,"fajr":2}]}`, kind: ErrUpstreamFormat},
		{name: "wrong month", status: http.StatusOK, body: `{"month":"JUL","prayers":[{"day":1,"fajr":1}]}`, kind: ErrUpstreamFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.FetchMonth(context.Background(), "SGR01", 2025, time.June)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)

			var fetchErr *FetchError
			require.True(t, errors.As(err, &fetchErr))
			assert.Equal(t, "SGR01", fetchErr.Zone)
			assert.Equal(t, 2025, fetchErr.Year)
			assert.Equal(t, time.June, fetchErr.Month)
			assert.Equal(t, tt.status, fetchErr.StatusCode)
		})
	}
}

func TestClient_FetchMonth_Timeout(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, Timeout: 50 * time.Millisecond}, zap.NewNop())

	_, err := client.FetchMonth(context.Background(), "SGR01", 2025, time.June)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_FetchMonth_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	client := NewClient(ClientConfig{BaseURL: baseURL}, zap.NewNop())
	_, err := client.FetchMonth(context.Background(), "SGR01", 2025, time.June)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.Contains(t, err.Error(), "zone=SGR01 year=2025 month=6")
}

func TestClient_FetchZones(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/zones", r.URL.Path)
		_, _ = w.Write([]byte(`[{"jakimCode":"SGR01","negeri":"Selangor","daerah":"Gombak, Petaling"}]`))
	})

	zones, err := client.FetchZones(context.Background())
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.Equal(t, ZoneInfo{Code: "SGR01", Negeri: "Selangor", Daerah: "Gombak, Petaling"}, zones[0])
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(ClientConfig{}, zap.NewNop())
	assert.Equal(t, DefaultBaseURL, client.BaseURL())
	assert.Equal(t, DefaultTimeout, client.httpClient.Timeout)
}
