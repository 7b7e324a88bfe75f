package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorPollObserve(t *testing.T) {
	c := NewCollector(30*time.Second, time.Minute)

	c.PollObserve("vehicles", 10*time.Millisecond, nil)
	c.PollObserve("vehicles", 10*time.Millisecond, errors.New("x"))
	c.PollSkippedInc("vehicles")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.PollRuns.WithLabelValues("vehicles", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.PollRuns.WithLabelValues("vehicles", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.PollSkipped.WithLabelValues("vehicles")))
	assert.Equal(t, 30.0, testutil.ToFloat64(c.PollInterval))
}

func TestCollectorConnectivityIsOneHot(t *testing.T) {
	c := NewCollector(time.Second, time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Connectivity.WithLabelValues("connecting")))

	c.SetConnectivity("offline")
	assert.Equal(t, 0.0, testutil.ToFloat64(c.Connectivity.WithLabelValues("connecting")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Connectivity.WithLabelValues("offline")))
}

func TestCollectorFeedAndReference(t *testing.T) {
	c := NewCollector(time.Second, time.Second)

	c.FeedNormalized(map[string]int{"direct": 3, "unrecognized": 1}, 1, 2, 1)
	c.ReferenceLoaded("routes", "static", 12)
	c.Displayed(4, 9)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.RecordsByShape.WithLabelValues("direct")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.RecordsDropped.WithLabelValues("invalid_position")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Vehicles))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ReferenceLoads.WithLabelValues("routes", "static")))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.ReferenceSize.WithLabelValues("routes")))
	assert.Equal(t, 9.0, testutil.ToFloat64(c.DisplayedStops))
}

func TestCollectorHandler(t *testing.T) {
	c := NewCollector(time.Second, time.Second)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "tracker_poll_interval_seconds")
}
