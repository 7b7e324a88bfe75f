package transit

import (
	"math"
	"strconv"
	"strings"
)

// Unknown is used for heading and route fields the upstream did not supply.
const Unknown = "Unknown"

type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Finite reports whether both coordinates are real numbers.
func (p Position) Finite() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lng) && !math.IsInf(p.Lat, 0) && !math.IsInf(p.Lng, 0)
}

// IsSentinel reports the (0,0) "no fix" position.
func (p Position) IsSentinel() bool { return p.Lat == 0 && p.Lng == 0 }

type Vehicle struct {
	ID          string   `json:"id"`
	Number      string   `json:"number"`
	RouteNumber string   `json:"routeNumber"`
	Position    Position `json:"position"`
	Heading     string   `json:"heading"`
	Speed       float64  `json:"speed"`

	Timestamp         string `json:"timestamp,omitempty"`
	CurrentLocation   string `json:"currentLocation,omitempty"`
	ScheduleDeviation string `json:"scheduleDeviation,omitempty"`
	Service           string `json:"service,omitempty"`
}

// Moving is false for a vehicle reporting zero speed.
func (v Vehicle) Moving() bool { return v.Speed != 0 }

type Stop struct {
	ID                   string   `json:"id"`
	Code                 string   `json:"code"`
	Name                 string   `json:"name"`
	Position             Position `json:"position"`
	WheelchairAccessible bool     `json:"wheelchairAccessible"`
}

type Route struct {
	ID        string `json:"id"`
	ShortName string `json:"shortName"`
	LongName  string `json:"longName"`
	Color     string `json:"color"`
	TextColor string `json:"textColor"`
}

// Routes is keyed by route short name.
type Routes map[string]Route

// RouteServiceMap maps a route id to the ordered stop ids it serves. A missing
// key and an empty list both mean "no stops".
type RouteServiceMap map[string][]string

// Record is one raw upstream object, as decoded from JSON or read from a
// delimited row. Values are strings, float64, bool or nil.
type Record map[string]any

// Has reports key presence, including explicit nulls.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// String renders the value at key as a string; missing and null give "".
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// First returns the first non-empty string among keys.
func (r Record) First(keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(r.String(k)); s != "" {
			return s
		}
	}
	return ""
}

// Float parses the value at key. ok is false for missing, null and
// unparseable values.
func (r Record) Float(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// FirstFloat parses the first key that holds a non-empty value.
func (r Record) FirstFloat(keys ...string) (float64, bool) {
	for _, k := range keys {
		if r.First(k) == "" {
			continue
		}
		return r.Float(k)
	}
	return 0, false
}

// Bool parses booleans given as JSON bools, numbers or "1"/"true" strings.
// ok is false when the key is absent or the value is not boolean-like.
func (r Record) Bool(key string) (value, ok bool) {
	switch v := r[key].(type) {
	case bool:
		return v, true
	case float64:
		return v != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "yes":
			return true, true
		case "0", "f", "false", "no":
			return false, true
		}
	}
	return false, false
}
