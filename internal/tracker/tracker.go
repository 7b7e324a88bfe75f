// Package tracker owns the canonical vehicle, stop and route sets, the
// user's filter selection and the load status. Loaders publish into it by
// atomic replace; every publish or filter change recomputes the displayed
// view and pushes it to subscribers.
package tracker

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"bus-tracker/internal/apiclient"
	"bus-tracker/internal/feed"
	"bus-tracker/internal/filter"
	"bus-tracker/internal/logging"
	"bus-tracker/internal/poller"
	"bus-tracker/internal/refdata"
	"bus-tracker/internal/transit"
)

type VehicleSource interface {
	FetchVehicles(ctx context.Context) ([]transit.Record, error)
}

type HealthChecker interface {
	CheckHealth(ctx context.Context) (apiclient.Health, error)
}

type ReferenceLoader interface {
	LoadRoutes(ctx context.Context) (transit.Routes, refdata.Source, error)
	LoadStops(ctx context.Context, limit int) ([]transit.Stop, refdata.Source, error)
	LoadRouteServiceMap(ctx context.Context) (transit.RouteServiceMap, error)
}

type Publisher interface {
	PublishVehicles(vehicles []transit.Vehicle) error
}

// Metrics receives tracker events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	poller.Metrics
	FeedNormalized(byShape map[string]int, unrecognized, invalid, kept int)
	ReferenceLoaded(dataset, source string, size int)
	SetConnectivity(status string)
	Displayed(vehicles, stops int)
}

type Options struct {
	Vehicles  VehicleSource
	Health    HealthChecker   // optional
	Reference ReferenceLoader // optional
	Publisher Publisher       // optional
	Metrics   Metrics         // optional
	Logger    *slog.Logger

	PollInterval   time.Duration
	HealthInterval time.Duration
	StopsLimit     int

	// Now defaults to time.Now.
	Now func() time.Time
}

type Tracker struct {
	opts    Options
	logger  *slog.Logger
	metrics Metrics

	vehiclePoller *poller.Poller
	healthPoller  *poller.Poller

	mu           sync.Mutex
	vehicles     []transit.Vehicle
	stops        []transit.Stop
	routes       transit.Routes
	services     transit.RouteServiceMap
	filters      filter.State
	status       statusLog
	connectivity Connectivity
	loading      Loading
	lastUpdated  time.Time
	view         View

	subMu  sync.Mutex
	subs   map[chan View]struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options) *Tracker {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := opts.Metrics
	if m == nil {
		m = nopMetrics{}
	}
	t := &Tracker{
		opts:         opts,
		logger:       opts.Logger.With(slog.String("component", "tracker")),
		metrics:      m,
		routes:       transit.Routes{},
		services:     transit.RouteServiceMap{},
		connectivity: Connecting,
		subs:         make(map[chan View]struct{}),
	}
	t.vehiclePoller = poller.New("vehicles", opts.PollInterval, t.pollVehicles, m, opts.Logger)
	if opts.Health != nil {
		t.healthPoller = poller.New("health", opts.HealthInterval, t.checkHealth, m, opts.Logger)
	}
	t.mu.Lock()
	t.recomputeLocked()
	t.mu.Unlock()
	return t
}

// Start runs the one-shot reference loads in parallel and starts the vehicle
// and health pollers. Neither poller waits for the reference data.
func (t *Tracker) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	if ref := t.opts.Reference; ref != nil {
		t.goTask(func() { t.loadRoutes(ctx, ref) })
		t.goTask(func() { t.loadStops(ctx, ref) })
		t.goTask(func() { t.loadServices(ctx, ref) })
	}
	t.vehiclePoller.Start(ctx)
	if t.healthPoller != nil {
		t.healthPoller.Start(ctx)
	}
	t.logger.Info("tracker started",
		slog.Duration("poll_interval", t.opts.PollInterval),
		slog.Duration("health_interval", t.opts.HealthInterval))
}

// Stop cancels both timers and any load still running, then waits.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	t.vehiclePoller.Stop()
	if t.healthPoller != nil {
		t.healthPoller.Stop()
	}
	t.wg.Wait()
	t.logger.Info("tracker stopped")
}

func (t *Tracker) goTask(fn func()) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fn()
	}()
}

func (t *Tracker) loadRoutes(ctx context.Context, ref ReferenceLoader) {
	t.update(func() { t.loading.Routes = true })
	routes, src, err := ref.LoadRoutes(ctx)
	t.metrics.ReferenceLoaded("routes", string(src), len(routes))
	t.update(func() {
		t.loading.Routes = false
		if err != nil {
			t.status.set(keyRoutes, "Routes loading failed")
		}
		if routes == nil {
			routes = transit.Routes{}
		}
		t.routes = routes
	})
	if err != nil {
		logging.LogError(t.logger, "routes load failed", err)
	}
}

func (t *Tracker) loadStops(ctx context.Context, ref ReferenceLoader) {
	t.update(func() { t.loading.Stops = true })
	stops, src, err := ref.LoadStops(ctx, t.opts.StopsLimit)
	t.metrics.ReferenceLoaded("stops", string(src), len(stops))
	t.update(func() {
		t.loading.Stops = false
		if err != nil {
			t.status.set(keyStops, "Stops loading failed")
		}
		t.stops = stops
	})
	if err != nil {
		logging.LogError(t.logger, "stops load failed", err)
	}
}

func (t *Tracker) loadServices(ctx context.Context, ref ReferenceLoader) {
	t.update(func() { t.loading.Services = true })
	services, err := ref.LoadRouteServiceMap(ctx)
	src := refdata.SourceStatic
	if err != nil {
		src = refdata.SourceNone
	}
	t.metrics.ReferenceLoaded("services", string(src), len(services))
	t.update(func() {
		t.loading.Services = false
		if err != nil {
			t.status.set(keyServices, "Services loading failed")
			return
		}
		t.services = services
	})
	if err != nil {
		logging.LogError(t.logger, "service map load failed", err)
	}
}

// pollVehicles replaces the canonical vehicle set on success. On failure the
// previous set stays in place and the error is recorded in the status.
func (t *Tracker) pollVehicles(ctx context.Context) error {
	t.update(func() { t.loading.Vehicles = true })
	recs, err := t.opts.Vehicles.FetchVehicles(ctx)
	if err != nil {
		if ctx.Err() != nil {
			t.update(func() { t.loading.Vehicles = false })
			return err
		}
		t.update(func() {
			t.loading.Vehicles = false
			t.status.set(keyVehicles, feedErrorMessage(err))
			t.setConnectivityLocked(Errored)
		})
		return err
	}

	vehicles, stats := feed.Normalize(recs)
	byShape := make(map[string]int, len(stats.ByShape))
	for s, n := range stats.ByShape {
		byShape[s.String()] = n
	}
	t.metrics.FeedNormalized(byShape, stats.Unrecognized, stats.InvalidPosition, stats.Kept)
	if stats.Kept < stats.Total {
		logging.FromContext(ctx).Debug("feed records dropped",
			slog.Int("total", stats.Total),
			slog.Int("unrecognized", stats.Unrecognized),
			slog.Int("invalid_position", stats.InvalidPosition))
	}

	t.update(func() {
		t.loading.Vehicles = false
		t.vehicles = vehicles
		t.lastUpdated = t.opts.Now()
		t.status.clear(keyVehicles)
		t.setConnectivityLocked(Connected)
	})

	if t.opts.Publisher != nil {
		if err := t.opts.Publisher.PublishVehicles(vehicles); err != nil {
			logging.LogError(t.logger, "vehicle publish failed", err)
		}
	}
	return nil
}

func (t *Tracker) checkHealth(ctx context.Context) error {
	h, err := t.opts.Health.CheckHealth(ctx)
	if err != nil && ctx.Err() != nil {
		return err
	}
	t.update(func() {
		switch {
		case err != nil:
			t.setConnectivityLocked(Offline)
		case h.OK():
			t.setConnectivityLocked(Connected)
		default:
			t.setConnectivityLocked(Errored)
		}
	})
	return err
}

func (t *Tracker) setConnectivityLocked(c Connectivity) {
	t.connectivity = c
	t.metrics.SetConnectivity(string(c))
}

// ToggleRoute adds the route to the active filters, or removes it if it is
// already there. Blank input is ignored.
func (t *Tracker) ToggleRoute(route string) View {
	route = strings.TrimSpace(route)
	if route == "" {
		return t.View()
	}
	return t.update(func() {
		routes := make([]string, 0, len(t.filters.Routes)+1)
		removed := false
		for _, r := range t.filters.Routes {
			if r == route {
				removed = true
				continue
			}
			routes = append(routes, r)
		}
		if !removed {
			routes = append(routes, route)
		}
		t.filters.Routes = routes
	})
}

func (t *Tracker) SetVehicleQuery(q string) View {
	return t.update(func() { t.filters.Query = q })
}

// ClearAll drops every route filter and the vehicle query.
func (t *Tracker) ClearAll() View {
	return t.update(func() { t.filters = filter.State{} })
}

func (t *Tracker) DismissErrors() View {
	return t.update(func() { t.status.reset() })
}

func (t *Tracker) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.view
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{Vehicles: t.vehicles, Stops: t.stops, Routes: t.routes, Services: t.services}
}

// Subscribe returns a channel that always holds the most recent view. A slow
// reader misses intermediate views, never the latest one. Call the returned
// func to unsubscribe.
func (t *Tracker) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 1)
	t.subMu.Lock()
	ch <- t.View()
	t.subs[ch] = struct{}{}
	t.subMu.Unlock()
	return ch, func() {
		t.subMu.Lock()
		delete(t.subs, ch)
		t.subMu.Unlock()
	}
}

// update applies fn under the lock, recomputes the view and notifies
// subscribers.
func (t *Tracker) update(fn func()) View {
	t.mu.Lock()
	fn()
	t.recomputeLocked()
	v := t.view
	t.mu.Unlock()
	t.notify(v)
	return v
}

func (t *Tracker) recomputeLocked() {
	vs := filter.Vehicles(t.vehicles, t.filters.Routes, t.filters.Query)
	stops := filter.Stops(t.stops, t.filters.Routes, t.services)
	if stops == nil {
		stops = []transit.Stop{}
	}
	v := View{
		Vehicles:      enrich(vs, t.routes),
		Stops:         stops,
		Filters:       filter.State{Routes: append([]string{}, t.filters.Routes...), Query: t.filters.Query},
		Status:        t.status.String(),
		Connectivity:  t.connectivity,
		Loading:       t.loading,
		NoResults:     t.filters.Active() && len(vs) == 0,
		TotalVehicles: len(t.vehicles),
		TotalStops:    len(t.stops),
	}
	if !t.lastUpdated.IsZero() {
		lu := t.lastUpdated
		v.LastUpdated = &lu
	}
	t.view = v
	t.metrics.Displayed(len(v.Vehicles), len(v.Stops))
}

func (t *Tracker) notify(v View) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for ch := range t.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

type nopMetrics struct{}

func (nopMetrics) PollObserve(string, time.Duration, error)     {}
func (nopMetrics) PollSkippedInc(string)                        {}
func (nopMetrics) FeedNormalized(map[string]int, int, int, int) {}
func (nopMetrics) ReferenceLoaded(string, string, int)          {}
func (nopMetrics) SetConnectivity(string)                       {}
func (nopMetrics) Displayed(int, int)                           {}
