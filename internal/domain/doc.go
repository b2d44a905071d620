// Package domain models daily weather and electricity-demand observations
// for a fixed set of cities and the rules that turn them into one cleaned,
// time-aligned table.
//
// # Data Sources
//
// Weather comes from the NOAA Climate Data Online (CDO) v2 API, dataset GHCND.
// Each station reports one entry per date and datatype:
//
//	{"date": "2024-01-01T00:00:00", "datatype": "TMAX", "value": 56}
//
// TMAX and TMIN values are tenths of a degree Celsius (56 = 5.6 °C). They are
// pivoted into one row per (city, date) and converted to Fahrenheit with
// F = value/10 * 9/5 + 32. See [PivotWeather].
//
// Energy comes from the EIA v2 electricity/rto/daily-region-data route, one
// entry per period and respondent (balancing authority), value in MWh:
//
//	{"period": "2024-01-01", "respondent": "NYIS", "value": "412345"}
//
// EIA serializes value as a number, a numeric string, or null.
//
// # Missing and Invalid Values
//
// Nullable measurements are *float64. A nil pointer means the source did not
// report the value. A pointer to NaN means the source reported something that
// is not a number: it counts as present while gaps are forward-filled and is
// coerced to missing afterwards, so it can never survive cleaning. See [Clean].
//
// # Dates
//
// Dates are calendar days carried as time.Time at midnight UTC and rendered
// as YYYY-MM-DD ([DateLayout]).
package domain
