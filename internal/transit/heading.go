package transit

import (
	"math"
	"strings"
)

// IndicatorLength is the length, in degrees, of the heading indicator drawn
// from a vehicle's position.
const IndicatorLength = 0.002

var compass = []string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

var headingAngles = func() map[string]float64 {
	m := make(map[string]float64, len(compass))
	for i, c := range compass {
		m[c] = float64(i) * 22.5
	}
	return m
}()

// NormalizeHeading maps an upstream heading to one of the 16 compass labels,
// or Unknown. Numeric values are taken as degrees and snapped to the nearest
// label.
func NormalizeHeading(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return Unknown
	}
	if _, ok := headingAngles[s]; ok {
		return s
	}
	deg, ok := Record{"h": s}.Float("h")
	if !ok || math.IsNaN(deg) || math.IsInf(deg, 0) {
		return Unknown
	}
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	idx := int(math.Round(deg/22.5)) % len(compass)
	return compass[idx]
}

// HeadingAngle returns the compass angle in degrees for a label. Unknown
// labels give 0.
func HeadingAngle(label string) float64 {
	return headingAngles[label]
}

// HeadingIndicator returns the end point of the short line drawn from p in
// the direction of heading.
func HeadingIndicator(p Position, heading string) Position {
	rad := HeadingAngle(heading) * math.Pi / 180
	return Position{
		Lat: p.Lat + IndicatorLength*math.Cos(rad),
		Lng: p.Lng + IndicatorLength*math.Sin(rad),
	}
}
