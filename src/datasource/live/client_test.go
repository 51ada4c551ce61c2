package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"FlightScheduleOptimizer/src/processor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResponse = `{
  "pagination": {"limit": 2, "offset": 0, "count": 2, "total": 2},
  "data": [
    {
      "flight_status": "active",
      "departure": {"airport": "Indira Gandhi International", "iata": "DEL",
                    "scheduled": "2025-08-10T06:00:00+00:00", "actual": "2025-08-10T06:20:00+00:00"},
      "arrival": {"iata": "BOM", "scheduled": "2025-08-10T08:10:00+00:00"},
      "airline": {"name": "Air India", "iata": "AI"},
      "flight": {"number": "101", "iata": "AI101"}
    },
    {
      "flight_status": null,
      "departure": {"iata": "DEL", "scheduled": null, "actual": null},
      "arrival": {"iata": null},
      "airline": {"name": null},
      "flight": {"number": "202", "iata": null}
    }
  ]
}`

func TestFetchDepartures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/flights", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("access_key"))
		assert.Equal(t, "DEL", r.URL.Query().Get("dep_iata"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := NewClient("secret", srv.URL+"/", 5*time.Second)
	records, err := c.FetchDepartures(context.Background(), "DEL", 50)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, processor.LiveRecord{
		FlightIATA: "AI101", FlightNumber: "101", Airline: "Air India",
		From: "DEL", To: "BOM", Status: "active",
		Scheduled: "2025-08-10T06:00:00+00:00", Actual: "2025-08-10T06:20:00+00:00",
	}, records[0])
	assert.Equal(t, processor.LiveRecord{FlightNumber: "202", From: "DEL"}, records[1])
}

func TestFetchDepartures_EmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	defer srv.Close()

	records, err := NewClient("secret", srv.URL, time.Second).FetchDepartures(context.Background(), "BOM", 50)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetchDepartures_NoAPIKey(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer srv.Close()

	_, err := NewClient("  ", srv.URL, time.Second).FetchDepartures(context.Background(), "DEL", 50)
	assert.ErrorIs(t, err, ErrNoAPIKey)
	assert.False(t, called)
}

func TestFetchDepartures_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"code": "invalid_access_key"}}`))
	}))
	defer srv.Close()

	_, err := NewClient("secret", srv.URL, time.Second).FetchDepartures(context.Background(), "DEL", 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestFetchDepartures_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewClient("secret", srv.URL, time.Second).FetchDepartures(context.Background(), "DEL", 50)
	assert.ErrorContains(t, err, "decode response")
}

func TestFetchDepartures_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	defer srv.Close()

	_, err := NewClient("secret", srv.URL, 20*time.Millisecond).FetchDepartures(context.Background(), "DEL", 50)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
}
