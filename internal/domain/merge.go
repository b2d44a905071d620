package domain

import (
	"sort"
	"time"
)

type recordKey struct {
	city string
	day  time.Time
}

// Merge outer-joins weather and energy rows on (city, date). A key present in
// only one source keeps nil for the other source's fields. The result is
// ordered by city, then date. Each source is expected to hold at most one row
// per key; if it holds more, the first non-nil value per field is kept.
func Merge(weather []WeatherObservation, energy []EnergyObservation) []MergedRecord {
	index := make(map[recordKey]*MergedRecord, len(weather)+len(energy))
	row := func(city string, date time.Time) *MergedRecord {
		k := recordKey{city: city, day: Day(date)}
		r, ok := index[k]
		if !ok {
			r = &MergedRecord{City: city, Date: k.day}
			index[k] = r
		}
		return r
	}

	for _, w := range weather {
		r := row(w.City, w.Date)
		r.TempMaxF = firstNonNil(r.TempMaxF, w.TempMaxF)
		r.TempMinF = firstNonNil(r.TempMinF, w.TempMinF)
	}
	for _, e := range energy {
		r := row(e.City, e.Date)
		r.EnergyUsageMWh = firstNonNil(r.EnergyUsageMWh, e.EnergyUsageMWh)
	}

	out := make([]MergedRecord, 0, len(index))
	for _, r := range index {
		out = append(out, *r)
	}
	sortMerged(out)
	return out
}

func sortMerged(rows []MergedRecord) {
	sort.SliceStable(rows, func(i, j int) bool {
		return lessCityDate(rows[i].City, rows[i].Date, rows[j].City, rows[j].Date)
	})
}

func firstNonNil(current, candidate *float64) *float64 {
	if current != nil {
		return current
	}
	if candidate == nil {
		return nil
	}
	v := *candidate
	return &v
}
