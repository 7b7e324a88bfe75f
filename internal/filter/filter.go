// Package filter computes which vehicles and stops are displayed for a
// given Filter State. All functions are pure: they never mutate their
// inputs and hold no state between calls.
package filter

import (
	"math"
	"strconv"
	"strings"

	"bus-tracker/internal/transit"
)

// State is the user's current filter selection.
type State struct {
	Routes []string `json:"routes"`
	Query  string   `json:"query"`
}

// Active reports whether any filter constrains the vehicle set.
func (s State) Active() bool {
	return len(s.Routes) > 0 || strings.TrimSpace(s.Query) != ""
}

// Vehicles returns the vehicles matching the route filters and the
// vehicle-number query. With no filters the input slice is returned as is.
//
// A vehicle passes the route filter when its route number equals any filter
// after trimming, or when both parse as the same finite number ("01" and
// "1"). It passes the query when its number contains the trimmed query,
// case-insensitively.
func Vehicles(all []transit.Vehicle, routes []string, query string) []transit.Vehicle {
	q := strings.ToLower(strings.TrimSpace(query))
	if len(routes) == 0 && q == "" {
		return all
	}
	out := make([]transit.Vehicle, 0, len(all))
	for _, v := range all {
		if len(routes) > 0 && !matchesAnyRoute(v.RouteNumber, routes) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(v.Number), q) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Stops returns the stops served by any of the active routes according to
// services. A stop matches by id or public code. With no route filters the
// input slice is returned as is; routes missing from services contribute
// nothing.
func Stops(all []transit.Stop, routes []string, services transit.RouteServiceMap) []transit.Stop {
	if len(routes) == 0 {
		return all
	}
	served := make(map[string]struct{})
	for _, r := range routes {
		for _, id := range services[strings.TrimSpace(r)] {
			if id = strings.TrimSpace(id); id != "" {
				served[id] = struct{}{}
			}
		}
	}
	out := make([]transit.Stop, 0, len(served))
	if len(served) == 0 {
		return out
	}
	for _, s := range all {
		if _, ok := served[strings.TrimSpace(s.ID)]; ok {
			out = append(out, s)
			continue
		}
		if _, ok := served[strings.TrimSpace(s.Code)]; ok {
			out = append(out, s)
		}
	}
	return out
}

// RouteMatches reports whether a vehicle's route number satisfies one
// route filter.
func RouteMatches(routeNumber, filter string) bool {
	a := strings.TrimSpace(routeNumber)
	b := strings.TrimSpace(filter)
	if a == b {
		return true
	}
	x, okA := number(a)
	y, okB := number(b)
	return okA && okB && x == y
}

func matchesAnyRoute(routeNumber string, routes []string) bool {
	for _, f := range routes {
		if RouteMatches(routeNumber, f) {
			return true
		}
	}
	return false
}

func number(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
