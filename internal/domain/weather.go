package domain

import (
	"sort"
	"time"
)

// NOAA GHCND datatypes requested by the weather client.
const (
	DataTypeTempMax = "TMAX"
	DataTypeTempMin = "TMIN"
)

// WeatherEntry is one raw (date, datatype) value from the weather API.
type WeatherEntry struct {
	Date     time.Time
	DataType string
	Value    float64 // tenths of °C for TMAX/TMIN
}

// TenthsCelsiusToFahrenheit converts a GHCND temperature to Fahrenheit.
func TenthsCelsiusToFahrenheit(tenths float64) float64 {
	return tenths/10*9/5 + 32
}

// PivotWeather folds raw entries into one WeatherObservation per date.
// Repeated (date, datatype) entries are averaged; unknown datatypes are
// ignored. A date reporting only one of TMAX/TMIN keeps the other nil.
// Output is ordered by date.
func PivotWeather(city string, entries []WeatherEntry) []WeatherObservation {
	type acc struct {
		maxSum, minSum float64
		maxN, minN     int
	}

	byDay := make(map[time.Time]*acc)
	for _, e := range entries {
		if e.DataType != DataTypeTempMax && e.DataType != DataTypeTempMin {
			continue
		}
		day := Day(e.Date)
		a, ok := byDay[day]
		if !ok {
			a = &acc{}
			byDay[day] = a
		}
		if e.DataType == DataTypeTempMax {
			a.maxSum += e.Value
			a.maxN++
		} else {
			a.minSum += e.Value
			a.minN++
		}
	}

	out := make([]WeatherObservation, 0, len(byDay))
	for day, a := range byDay {
		obs := WeatherObservation{City: city, Date: day}
		if a.maxN > 0 {
			obs.TempMaxF = Float(TenthsCelsiusToFahrenheit(a.maxSum / float64(a.maxN)))
		}
		if a.minN > 0 {
			obs.TempMinF = Float(TenthsCelsiusToFahrenheit(a.minSum / float64(a.minN)))
		}
		out = append(out, obs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
