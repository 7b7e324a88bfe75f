// Package refdata loads the route and stop reference sets and the
// route-to-stops service map. Each load tries the backend API first and
// falls back to a static delimited-text resource.
package refdata

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/pkg/errors"

	"bus-tracker/internal/logging"
	"bus-tracker/internal/static"
	"bus-tracker/internal/transit"
)

// Source names where a reference set came from.
type Source string

const (
	SourceAPI    Source = "api"
	SourceStatic Source = "static"
	SourceNone   Source = "none"
)

// ErrEmpty is returned when a source answered but produced no usable rows.
var ErrEmpty = errors.New("empty result set")

type API interface {
	FetchRoutes(ctx context.Context) ([]transit.Record, error)
	FetchStops(ctx context.Context, limit int) ([]transit.Record, error)
}

type Resources interface {
	Fetch(ctx context.Context, name string) (string, error)
}

type Loader struct {
	api       API
	resources Resources
	logger    *slog.Logger
}

func NewLoader(api API, resources Resources, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Loader{api: api, resources: resources, logger: logger.With(slog.String("component", "refdata"))}
}

// LoadRoutes returns routes keyed by short name. The error is non-nil only
// when both the API and the static resource failed.
func (l *Loader) LoadRoutes(ctx context.Context) (transit.Routes, Source, error) {
	var apiErr error
	if l.api != nil {
		recs, err := l.api.FetchRoutes(ctx)
		if err == nil {
			if routes := routesFromRecords(recs); len(routes) > 0 {
				logging.LogOperation(l.logger, "routes_loaded", slog.String("source", string(SourceAPI)), slog.Int("count", len(routes)))
				return routes, SourceAPI, nil
			}
			err = ErrEmpty
		}
		apiErr = err
		logging.LogError(l.logger, "routes API failed, trying static fallback", err)
	}

	text, err := l.resources.Fetch(ctx, static.RoutesFile)
	if err != nil {
		return transit.Routes{}, SourceNone, combine("load routes", apiErr, err)
	}
	routes := routesFromRecords(ParseDelimited(text))
	if len(routes) == 0 {
		return transit.Routes{}, SourceNone, combine("load routes", apiErr, errors.Wrap(ErrEmpty, static.RoutesFile))
	}
	logging.LogOperation(l.logger, "routes_loaded", slog.String("source", string(SourceStatic)), slog.Int("count", len(routes)))
	return routes, SourceStatic, nil
}

// LoadStops returns stops with valid coordinates. limit is passed to the API
// only.
func (l *Loader) LoadStops(ctx context.Context, limit int) ([]transit.Stop, Source, error) {
	var apiErr error
	if l.api != nil {
		recs, err := l.api.FetchStops(ctx, limit)
		if err == nil {
			if stops := stopsFromRecords(recs); len(stops) > 0 {
				logging.LogOperation(l.logger, "stops_loaded", slog.String("source", string(SourceAPI)), slog.Int("count", len(stops)))
				return stops, SourceAPI, nil
			}
			err = ErrEmpty
		}
		apiErr = err
		logging.LogError(l.logger, "stops API failed, trying static fallback", err)
	}

	text, err := l.resources.Fetch(ctx, static.StopsFile)
	if err != nil {
		return []transit.Stop{}, SourceNone, combine("load stops", apiErr, err)
	}
	stops := stopsFromRecords(ParseDelimited(text))
	if len(stops) == 0 {
		return []transit.Stop{}, SourceNone, combine("load stops", apiErr, errors.Wrap(ErrEmpty, static.StopsFile))
	}
	logging.LogOperation(l.logger, "stops_loaded", slog.String("source", string(SourceStatic)), slog.Int("count", len(stops)))
	return stops, SourceStatic, nil
}

// LoadRouteServiceMap reads services.txt. Malformed lines are skipped; only
// a failure to retrieve the resource is an error.
func (l *Loader) LoadRouteServiceMap(ctx context.Context) (transit.RouteServiceMap, error) {
	text, err := l.resources.Fetch(ctx, static.ServicesFile)
	if err != nil {
		return transit.RouteServiceMap{}, errors.Wrap(err, "load route services")
	}
	services := ParseServices(text)
	logging.LogOperation(l.logger, "route_services_loaded", slog.Int("routes", len(services)))
	return services, nil
}

func routesFromRecords(recs []transit.Record) transit.Routes {
	routes := make(transit.Routes, len(recs))
	for _, r := range recs {
		short := r.First("route_short_name")
		if short == "" {
			continue
		}
		routes[short] = transit.Route{
			ID:        r.First("route_id"),
			ShortName: short,
			LongName:  r.First("route_long_name"),
			Color:     r.First("route_color"),
			TextColor: r.First("route_text_color"),
		}
	}
	return routes
}

func stopsFromRecords(recs []transit.Record) []transit.Stop {
	stops := make([]transit.Stop, 0, len(recs))
	for _, r := range recs {
		lat, okLat := r.Float("stop_lat")
		lng, okLng := r.Float("stop_lon")
		pos := transit.Position{Lat: lat, Lng: lng}
		if !okLat || !okLng || !pos.Finite() || math.Abs(lat) > 90 || math.Abs(lng) > 180 {
			continue
		}
		stops = append(stops, transit.Stop{
			ID:                   r.First("stop_id"),
			Code:                 r.First("stop_code"),
			Name:                 r.First("stop_name"),
			Position:             pos,
			WheelchairAccessible: strings.TrimSpace(r.String("wheelchair_boarding")) == "1",
		})
	}
	return stops
}

func combine(op string, apiErr, staticErr error) error {
	if apiErr == nil {
		return errors.Wrap(staticErr, op)
	}
	return errors.Wrapf(staticErr, "%s (api: %v)", op, apiErr)
}
