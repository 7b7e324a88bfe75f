// Package feed turns raw live-vehicle records into canonical vehicles.
//
// Upstream records come in several shapes. Each shape has its own decoder;
// decoders are tried in a fixed priority order and the first whose marker
// field is present wins. Records matching none become an Unrecognized
// placeholder, which never survives position validation.
package feed

import (
	"fmt"
	"math"

	"bus-tracker/internal/transit"
)

// Shape identifies which upstream format a record was decoded as.
type Shape int

const (
	ShapeUnrecognized Shape = iota
	ShapeDirect             // upstream feed as published, keyed by "vehicle"
	ShapeBackend            // pre-transformed backend output, keyed by "veh" or "lat"
	ShapeDatabase           // persisted rows, keyed by "bus_id"
)

func (s Shape) String() string {
	switch s {
	case ShapeDirect:
		return "direct"
	case ShapeBackend:
		return "backend"
	case ShapeDatabase:
		return "database"
	default:
		return "unrecognized"
	}
}

// Raw is one decoded upstream record before validation.
type Raw interface {
	Shape() Shape
	Vehicle(index int) Candidate
}

// Candidate is a mapped record whose position has not been validated yet.
type Candidate struct {
	Vehicle  transit.Vehicle
	Lat, Lng float64
	// LatOK/LngOK are false when the coordinate was missing or unparseable.
	LatOK, LngOK bool
	// FixValid is set when the upstream carried an explicit fix flag.
	FixValid *bool
}

type decoder struct {
	shape Shape
	match func(transit.Record) bool
	build func(transit.Record) Raw
}

// decoders is ordered by priority.
var decoders = []decoder{
	{ShapeDirect, func(r transit.Record) bool { return r.Has("vehicle") }, func(r transit.Record) Raw { return Direct{r} }},
	{ShapeBackend, func(r transit.Record) bool { return r.Has("veh") || r.Has("lat") }, func(r transit.Record) Raw { return Backend{r} }},
	{ShapeDatabase, func(r transit.Record) bool { return r.Has("bus_id") }, func(r transit.Record) Raw { return Database{r} }},
}

// Decode picks the variant for rec.
func Decode(rec transit.Record) Raw {
	for _, d := range decoders {
		if d.match(rec) {
			return d.build(rec)
		}
	}
	return Unrecognized{}
}

// Direct is the upstream feed format.
type Direct struct{ rec transit.Record }

func (Direct) Shape() Shape { return ShapeDirect }

func (d Direct) Vehicle(index int) Candidate {
	r := d.rec
	id := orDefault(r.First("vehicle"), placeholderID(index))
	c := Candidate{Vehicle: transit.Vehicle{
		ID:                id,
		Number:            id,
		RouteNumber:       orDefault(r.First("routenumber", "route"), transit.Unknown),
		Heading:           transit.NormalizeHeading(r.First("heading")),
		Speed:             speed(r, "speed"),
		Timestamp:         r.First("timestamp"),
		CurrentLocation:   r.First("current_location"),
		ScheduleDeviation: r.First("deviation"),
		Service:           r.First("service"),
	}}
	c.Lat, c.LatOK = r.FirstFloat("bus_lat", "lat")
	c.Lng, c.LngOK = r.FirstFloat("bus_lon", "lng")
	c.FixValid = fixFlag(r)
	return c
}

// Backend is the pre-transformed format with abbreviated field names.
type Backend struct{ rec transit.Record }

func (Backend) Shape() Shape { return ShapeBackend }

func (b Backend) Vehicle(index int) Candidate {
	r := b.rec
	id := orDefault(r.First("veh", "vehicle"), placeholderID(index))
	c := Candidate{Vehicle: transit.Vehicle{
		ID:                id,
		Number:            id,
		RouteNumber:       orDefault(r.First("route", "routenumber"), transit.Unknown),
		Heading:           transit.NormalizeHeading(r.First("hdg", "heading")),
		Speed:             speed(r, "spd", "speed"),
		Timestamp:         r.First("timestamp"),
		CurrentLocation:   r.First("current_location"),
		ScheduleDeviation: r.First("deviation"),
		Service:           r.First("service"),
	}}
	c.Lat, c.LatOK = r.FirstFloat("lat", "bus_lat")
	c.Lng, c.LngOK = r.FirstFloat("lng", "bus_lon")
	c.FixValid = fixFlag(r)
	return c
}

// Database is the persisted row format.
type Database struct{ rec transit.Record }

func (Database) Shape() Shape { return ShapeDatabase }

func (d Database) Vehicle(index int) Candidate {
	r := d.rec
	id := orDefault(r.First("bus_id"), placeholderID(index))
	c := Candidate{Vehicle: transit.Vehicle{
		ID:                id,
		Number:            id,
		RouteNumber:       orDefault(r.First("route_number"), transit.Unknown),
		Heading:           transit.NormalizeHeading(r.First("heading")),
		Speed:             speed(r, "speed"),
		Timestamp:         r.First("timestamp"),
		CurrentLocation:   r.First("current_location"),
		ScheduleDeviation: r.First("deviation"),
	}}
	c.Lat, c.LatOK = r.Float("latitude")
	c.Lng, c.LngOK = r.Float("longitude")
	c.FixValid = fixFlag(r)
	return c
}

// Unrecognized stands in for a record of unknown shape. Its candidate sits
// at the sentinel position and is always dropped.
type Unrecognized struct{}

func (Unrecognized) Shape() Shape { return ShapeUnrecognized }

func (Unrecognized) Vehicle(index int) Candidate {
	return Candidate{
		Vehicle: transit.Vehicle{
			ID:          placeholderID(index),
			Number:      placeholderID(index),
			RouteNumber: transit.Unknown,
			Heading:     transit.Unknown,
		},
		LatOK: true,
		LngOK: true,
	}
}

func placeholderID(index int) string { return fmt.Sprintf("bus_%d", index) }

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// speed parses the first present key; missing, unparseable and negative
// values give 0.
func speed(r transit.Record, keys ...string) float64 {
	v, ok := r.FirstFloat(keys...)
	if !ok || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func fixFlag(r transit.Record) *bool {
	for _, k := range []string{"fix_valid", "gps_valid"} {
		if v, ok := r.Bool(k); ok {
			return &v
		}
	}
	return nil
}
