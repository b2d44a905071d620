package domain

import (
	"fmt"
	"math"
	"strings"
)

// FillScope controls where forward-fill looks for the preceding value.
type FillScope string

const (
	// FillByCity restarts the fill at each city, so one city's last value
	// never leaks into the next city's leading gap.
	FillByCity FillScope = "city"
	// FillTable fills down the whole (city, date)-ordered table.
	FillTable FillScope = "table"
)

// ParseFillScope accepts "city" or "table" (case-insensitive).
func ParseFillScope(s string) (FillScope, error) {
	switch FillScope(strings.ToLower(strings.TrimSpace(s))) {
	case FillByCity:
		return FillByCity, nil
	case FillTable:
		return FillTable, nil
	default:
		return "", fmt.Errorf("unknown fill scope %q (want %q or %q)", s, FillByCity, FillTable)
	}
}

// CleanResult is the cleaned table plus the number of merged rows it lost.
type CleanResult struct {
	Rows    []CleanedRecord
	Dropped int
}

// Clean turns merged rows into the cleaned table:
//
//  1. forward-fill temp_max, temp_min and energy_usage_mwh independently,
//     in (city, date) order, within scope
//  2. coerce non-numeric values (NaN, ±Inf) to missing
//  3. drop rows still missing any of the three
//  4. round temperatures to 1 decimal and energy to 2
//
// Rows before the first value of a column have nothing to fill from and are
// dropped. The input slice is not modified.
func Clean(rows []MergedRecord, scope FillScope) CleanResult {
	work := make([]MergedRecord, len(rows))
	copy(work, rows)
	sortMerged(work)

	var prevMax, prevMin, prevEnergy *float64
	for i := range work {
		r := &work[i]
		if scope != FillTable && i > 0 && work[i-1].City != r.City {
			prevMax, prevMin, prevEnergy = nil, nil, nil
		}
		r.TempMaxF, prevMax = fill(r.TempMaxF, prevMax)
		r.TempMinF, prevMin = fill(r.TempMinF, prevMin)
		r.EnergyUsageMWh, prevEnergy = fill(r.EnergyUsageMWh, prevEnergy)
	}

	out := make([]CleanedRecord, 0, len(work))
	for _, r := range work {
		tmax, tmin, energy := coerce(r.TempMaxF), coerce(r.TempMinF), coerce(r.EnergyUsageMWh)
		if tmax == nil || tmin == nil || energy == nil {
			continue
		}
		out = append(out, CleanedRecord{
			City:           r.City,
			Date:           r.Date,
			TempMaxF:       round(*tmax, 1),
			TempMinF:       round(*tmin, 1),
			EnergyUsageMWh: round(*energy, 2),
		})
	}

	return CleanResult{Rows: out, Dropped: len(work) - len(out)}
}

// fill returns the value to keep for this cell and the value later cells
// should fill from.
func fill(v, prev *float64) (*float64, *float64) {
	if v != nil {
		return v, v
	}
	return prev, prev
}

func coerce(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
