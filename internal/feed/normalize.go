package feed

import "bus-tracker/internal/transit"

// Stats counts what happened to one batch of raw records.
type Stats struct {
	Total           int
	Kept            int
	Unrecognized    int
	InvalidPosition int
	ByShape         map[Shape]int
}

// Normalize decodes every record and keeps only vehicles with a usable
// position. A bad record never aborts the batch.
//
// A position is usable when both coordinates parse to finite numbers. If the
// record carries an explicit fix flag, that flag decides; otherwise (0,0) is
// taken to mean "no fix" and dropped. A genuine fix at (0,0) without a flag
// is indistinguishable from a missing one.
func Normalize(records []transit.Record) ([]transit.Vehicle, Stats) {
	stats := Stats{Total: len(records), ByShape: make(map[Shape]int, len(decoders)+1)}
	out := make([]transit.Vehicle, 0, len(records))
	for i, rec := range records {
		raw := Decode(rec)
		stats.ByShape[raw.Shape()]++
		if raw.Shape() == ShapeUnrecognized {
			stats.Unrecognized++
		}
		c := raw.Vehicle(i)
		if !usable(c) {
			if raw.Shape() != ShapeUnrecognized {
				stats.InvalidPosition++
			}
			continue
		}
		c.Vehicle.Position = transit.Position{Lat: c.Lat, Lng: c.Lng}
		out = append(out, c.Vehicle)
	}
	stats.Kept = len(out)
	return out, stats
}

func usable(c Candidate) bool {
	if !c.LatOK || !c.LngOK {
		return false
	}
	p := transit.Position{Lat: c.Lat, Lng: c.Lng}
	if !p.Finite() {
		return false
	}
	if c.FixValid != nil {
		return *c.FixValid
	}
	return !p.IsSentinel()
}
