package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Connectivity states exported as a one-hot gauge.
var connectivityStates = []string{"connecting", "connected", "error", "offline"}

type Collector struct {
	reg *prometheus.Registry

	PollRuns     *prometheus.CounterVec   // task, result=ok|error
	PollSkipped  *prometheus.CounterVec   // task
	PollDuration *prometheus.HistogramVec // task

	Vehicles       prometheus.Gauge
	RecordsByShape *prometheus.CounterVec // shape
	RecordsDropped *prometheus.CounterVec // reason=unrecognized|invalid_position

	ReferenceLoads *prometheus.CounterVec // dataset, source=api|static|none
	ReferenceSize  *prometheus.GaugeVec   // dataset

	Connectivity *prometheus.GaugeVec // status

	DisplayedVehicles prometheus.Gauge
	DisplayedStops    prometheus.Gauge

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	PollInterval   prometheus.Gauge // seconds
	HealthInterval prometheus.Gauge // seconds
}

func NewCollector(pollInterval, healthInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		PollRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_poll_runs_total",
			Help: "Completed poll runs by task and result.",
		}, []string{"task", "result"}),
		PollSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_poll_skipped_total",
			Help: "Ticks skipped because the previous run was still in flight.",
		}, []string{"task"}),
		PollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracker_poll_duration_seconds",
			Help:    "Duration of poll runs.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"task"}),
		Vehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_vehicles",
			Help: "Vehicles in the canonical set after the last successful poll.",
		}),
		RecordsByShape: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_feed_records_total",
			Help: "Raw feed records by detected upstream shape.",
		}, []string{"shape"}),
		RecordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_feed_records_dropped_total",
			Help: "Raw feed records dropped during normalization.",
		}, []string{"reason"}),
		ReferenceLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_reference_loads_total",
			Help: "Reference data loads by dataset and the source that served them.",
		}, []string{"dataset", "source"}),
		ReferenceSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tracker_reference_entries",
			Help: "Entries in each loaded reference dataset.",
		}, []string{"dataset"}),
		Connectivity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tracker_connectivity",
			Help: "1 for the current backend connectivity status, 0 otherwise.",
		}, []string{"status"}),
		DisplayedVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_displayed_vehicles",
			Help: "Vehicles passing the current filters.",
		}),
		DisplayedStops: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_displayed_stops",
			Help: "Stops passing the current filters.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		PollInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_poll_interval_seconds",
			Help: "Vehicle poll interval in seconds.",
		}),
		HealthInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_health_interval_seconds",
			Help: "Health check interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.PollRuns, c.PollSkipped, c.PollDuration,
		c.Vehicles, c.RecordsByShape, c.RecordsDropped,
		c.ReferenceLoads, c.ReferenceSize, c.Connectivity,
		c.DisplayedVehicles, c.DisplayedStops,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.PollInterval, c.HealthInterval,
	)

	c.PollInterval.Set(pollInterval.Seconds())
	c.HealthInterval.Set(healthInterval.Seconds())
	c.SetConnectivity("connecting")

	return c
}

func (c *Collector) PollObserve(task string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.PollRuns.WithLabelValues(task, result).Inc()
	c.PollDuration.WithLabelValues(task).Observe(d.Seconds())
}

func (c *Collector) PollSkippedInc(task string) { c.PollSkipped.WithLabelValues(task).Inc() }

func (c *Collector) FeedNormalized(byShape map[string]int, unrecognized, invalid, kept int) {
	for shape, n := range byShape {
		c.RecordsByShape.WithLabelValues(shape).Add(float64(n))
	}
	c.RecordsDropped.WithLabelValues("unrecognized").Add(float64(unrecognized))
	c.RecordsDropped.WithLabelValues("invalid_position").Add(float64(invalid))
	c.Vehicles.Set(float64(kept))
}

func (c *Collector) ReferenceLoaded(dataset, source string, size int) {
	c.ReferenceLoads.WithLabelValues(dataset, source).Inc()
	c.ReferenceSize.WithLabelValues(dataset).Set(float64(size))
}

func (c *Collector) SetConnectivity(status string) {
	for _, s := range connectivityStates {
		v := 0.0
		if s == status {
			v = 1
		}
		c.Connectivity.WithLabelValues(s).Set(v)
	}
}

func (c *Collector) Displayed(vehicles, stops int) {
	c.DisplayedVehicles.Set(float64(vehicles))
	c.DisplayedStops.Set(float64(stops))
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
	logger.Info("metrics listening", slog.String("addr", addr))
	return srv
}
