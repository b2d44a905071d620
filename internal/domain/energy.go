package domain

import (
	"sort"
	"time"
)

// EnergyEntry is one raw period value from the energy API. Value is nil when
// the API reported null and NaN when it reported something non-numeric.
type EnergyEntry struct {
	Period time.Time
	Value  *float64
}

// EnergyObservations attaches entries to a city, one row per date. When a
// period repeats, the first entry wins. Output is ordered by date.
func EnergyObservations(city string, entries []EnergyEntry) []EnergyObservation {
	seen := make(map[time.Time]struct{}, len(entries))
	out := make([]EnergyObservation, 0, len(entries))
	for _, e := range entries {
		day := Day(e.Period)
		if _, dup := seen[day]; dup {
			continue
		}
		seen[day] = struct{}{}
		out = append(out, EnergyObservation{City: city, Date: day, EnergyUsageMWh: e.Value})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
