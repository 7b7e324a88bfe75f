package tracker

import (
	"time"

	"bus-tracker/internal/filter"
	"bus-tracker/internal/transit"
)

// DisplayVehicle is a filtered vehicle enriched for rendering.
type DisplayVehicle struct {
	transit.Vehicle
	Route     *transit.Route   `json:"route,omitempty"`
	Indicator transit.Position `json:"indicator"`
	Moving    bool             `json:"moving"`
}

type Loading struct {
	Routes   bool `json:"routes"`
	Stops    bool `json:"stops"`
	Services bool `json:"services"`
	Vehicles bool `json:"vehicles"`
}

// View is everything the map needs to render one frame.
type View struct {
	Vehicles      []DisplayVehicle `json:"vehicles"`
	Stops         []transit.Stop   `json:"stops"`
	Filters       filter.State     `json:"filters"`
	Status        string           `json:"status"`
	Connectivity  Connectivity     `json:"connectivity"`
	Loading       Loading          `json:"loading"`
	LastUpdated   *time.Time       `json:"lastUpdated,omitempty"`
	NoResults     bool             `json:"noResults"`
	TotalVehicles int              `json:"totalVehicles"`
	TotalStops    int              `json:"totalStops"`
}

// Snapshot is the canonical model as last published by the loaders.
type Snapshot struct {
	Vehicles []transit.Vehicle       `json:"vehicles"`
	Stops    []transit.Stop          `json:"stops"`
	Routes   transit.Routes          `json:"routes"`
	Services transit.RouteServiceMap `json:"services"`
}

func enrich(vs []transit.Vehicle, routes transit.Routes) []DisplayVehicle {
	out := make([]DisplayVehicle, 0, len(vs))
	for _, v := range vs {
		dv := DisplayVehicle{
			Vehicle:   v,
			Indicator: transit.HeadingIndicator(v.Position, v.Heading),
			Moving:    v.Moving(),
		}
		if r, ok := routes[v.RouteNumber]; ok {
			dv.Route = &r
		}
		out = append(out, dv)
	}
	return out
}
