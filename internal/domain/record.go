package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO 8601 calendar-date format used by both APIs and every artifact.
const DateLayout = "2006-01-02"

// Column names of the cleaned table, in artifact order.
const (
	ColCity    = "city"
	ColDate    = "date"
	ColTempMax = "temp_max"
	ColTempMin = "temp_min"
	ColEnergy  = "energy_usage_mwh"
)

// Columns lists the cleaned-table header in order.
var Columns = []string{ColCity, ColDate, ColTempMax, ColTempMin, ColEnergy}

// CityConfig identifies one city and the upstream IDs used to fetch its data.
type CityConfig struct {
	Name             string
	WeatherStationID string
	EnergyRegionCode string
}

// WeatherObservation is one pivoted (city, date) row of daily temperatures in Fahrenheit.
type WeatherObservation struct {
	City     string
	Date     time.Time
	TempMaxF *float64
	TempMinF *float64
}

// EnergyObservation is one (city, date) row of daily energy usage in MWh.
type EnergyObservation struct {
	City           string
	Date           time.Time
	EnergyUsageMWh *float64
}

// MergedRecord is the outer join of weather and energy on (city, date).
// Any measurement may be nil when one source lacks the key.
type MergedRecord struct {
	City           string
	Date           time.Time
	TempMaxF       *float64
	TempMinF       *float64
	EnergyUsageMWh *float64
}

// CleanedRecord is a MergedRecord with every measurement present and rounded.
type CleanedRecord struct {
	City           string    `json:"city"`
	Date           time.Time `json:"date"`
	TempMaxF       float64   `json:"temp_max"`
	TempMinF       float64   `json:"temp_min"`
	EnergyUsageMWh float64   `json:"energy_usage_mwh"`
}

// Merged widens a cleaned row back into the nullable shape.
func (r CleanedRecord) Merged() MergedRecord {
	return MergedRecord{
		City:           r.City,
		Date:           r.Date,
		TempMaxF:       Float(r.TempMaxF),
		TempMinF:       Float(r.TempMinF),
		EnergyUsageMWh: Float(r.EnergyUsageMWh),
	}
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Day truncates t to its calendar day at midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses the leading YYYY-MM-DD of s, so both "2024-01-02" and
// NOAA's "2024-01-02T00:00:00" are accepted.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) < len(DateLayout) {
		return time.Time{}, fmt.Errorf("parse date %q: too short", s)
	}
	d, err := time.Parse(DateLayout, s[:len(DateLayout)])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return d, nil
}

// FormatDate renders a calendar day as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// lessCityDate orders by city, then date.
func lessCityDate(cityA string, dateA time.Time, cityB string, dateB time.Time) bool {
	if cityA != cityB {
		return cityA < cityB
	}
	return dateA.Before(dateB)
}
