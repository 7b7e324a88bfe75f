package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api/", time.Second, time.Second), srv
}

func TestFetchVehiclesUsesUnfilteredEndpoint(t *testing.T) {
	var gotPath string
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.String()
		_, _ = w.Write([]byte(`{"success":true,"data":[{"vehicle":"1501","routenumber":10,"bus_lat":"47.5"}]}`))
	})

	recs, err := c.FetchVehicles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/api/buses", gotPath)
	require.Len(t, recs, 1)
	assert.Equal(t, "1501", recs[0].String("vehicle"))
	assert.Equal(t, "10", recs[0].String("routenumber"))
}

func TestFetchBusesFiltered(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"success":true,"data":[]}`))
	})

	_, err := c.FetchBuses(context.Background(), BusQuery{Routes: []string{" 1", "", "2 "}, BusNumber: " 42 "})
	require.NoError(t, err)
	assert.Equal(t, "/api/buses/filtered", gotPath)
	assert.Equal(t, []string{"1,2"}, gotQuery["routes"])
	assert.Equal(t, []string{"42"}, gotQuery["busNumber"])
}

func TestFetchStopsLimit(t *testing.T) {
	var gotURL string
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		_, _ = w.Write([]byte(`{"success":true,"data":[]}`))
	})

	_, err := c.FetchStops(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, "/api/stops?limit=1000", gotURL)

	_, err = c.FetchStops(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "/api/stops", gotURL)
}

func TestUnsuccessfulEnvelope(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"Failed to fetch routes","data":[]}`))
	})

	_, err := c.FetchRoutes(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsuccessful)
	assert.Contains(t, err.Error(), "Failed to fetch routes")

	var ue *UnsuccessfulError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "Failed to fetch routes", ue.Message)
}

func TestNon2xxIsAnError(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"success":true,"data":[]}`))
	})

	_, err := c.FetchRoutes(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
}

func TestTimeoutIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()
	c := New(srv.URL, 20*time.Millisecond, 20*time.Millisecond)

	_, err := c.FetchVehicles(context.Background())
	assert.Error(t, err)

	_, err = c.CheckHealth(context.Background())
	assert.Error(t, err)
}

func TestCheckHealth(t *testing.T) {
	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{"ok", `{"success":true,"status":"OK"}`, true},
		{"degraded", `{"success":true,"status":"DEGRADED"}`, false},
		{"failed", `{"success":false,"status":"OK"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/health", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			})

			h, err := c.CheckHealth(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.ok, h.OK())
		})
	}
}
