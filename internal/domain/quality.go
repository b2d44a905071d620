package domain

import (
	"math"
	"strconv"
	"time"
)

// OutlierKind names the rule an outlier broke.
type OutlierKind string

const (
	OutlierTemperature OutlierKind = "Temperature"
	OutlierEnergy      OutlierKind = "Energy"
)

// Thresholds configures the outlier and freshness checks.
type Thresholds struct {
	TempMaxF     float64 // temp_max above this is an outlier
	TempMinF     float64 // temp_min below this is an outlier
	EnergyMinMWh float64 // energy_usage_mwh below this is an outlier
	MaxAgeDays   int     // data older than this many days is stale
}

// DefaultThresholds returns 130°F / -50°F / 0 MWh / 2 days.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TempMaxF:     130,
		TempMinF:     -50,
		EnergyMinMWh: 0,
		MaxAgeDays:   2,
	}
}

// MissingStat counts the missing cells of one column.
type MissingStat struct {
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Outlier is one advisory finding; the row stays in the table.
type Outlier struct {
	City  string      `json:"city"`
	Date  string      `json:"date"`
	Kind  OutlierKind `json:"kind"`
	Value string      `json:"value"`
}

// Freshness reports how recent the newest row is.
type Freshness struct {
	IsFresh    bool   `json:"is_fresh"`
	LatestDate string `json:"latest_date"`
	DaysOld    int    `json:"days_old"`
}

// QualityReport is rebuilt from the cleaned table on every run.
type QualityReport struct {
	RunID         string                 `json:"run_id,omitempty"`
	GeneratedAt   time.Time              `json:"generated_at"`
	TotalRows     int                    `json:"total_rows"`
	MissingValues map[string]MissingStat `json:"missing_values"`
	Outliers      []Outlier              `json:"outliers"`
	Freshness     Freshness              `json:"freshness"`
}

// CheckMissingValues reports, for every column with at least one missing
// cell, the count and its share of all rows as a percentage rounded to two
// decimals. Columns without gaps are omitted.
func CheckMissingValues(rows []MergedRecord) map[string]MissingStat {
	report := make(map[string]MissingStat)
	if len(rows) == 0 {
		return report
	}

	counts := make(map[string]int, len(Columns))
	for _, r := range rows {
		if r.City == "" {
			counts[ColCity]++
		}
		if r.Date.IsZero() {
			counts[ColDate]++
		}
		if missing(r.TempMaxF) {
			counts[ColTempMax]++
		}
		if missing(r.TempMinF) {
			counts[ColTempMin]++
		}
		if missing(r.EnergyUsageMWh) {
			counts[ColEnergy]++
		}
	}

	total := float64(len(rows))
	for col, n := range counts {
		report[col] = MissingStat{Count: n, Percent: round(100*float64(n)/total, 2)}
	}
	return report
}

func missing(v *float64) bool {
	return v == nil || math.IsNaN(*v)
}

// CheckOutliers scans rows in order. A row can yield a Temperature outlier
// (reported as "temp_max/temp_min"), an Energy outlier, both, or neither.
func CheckOutliers(rows []CleanedRecord, th Thresholds) []Outlier {
	outliers := make([]Outlier, 0)
	for _, r := range rows {
		if r.TempMaxF > th.TempMaxF || r.TempMinF < th.TempMinF {
			outliers = append(outliers, Outlier{
				City:  r.City,
				Date:  FormatDate(r.Date),
				Kind:  OutlierTemperature,
				Value: formatNumber(r.TempMaxF) + "/" + formatNumber(r.TempMinF),
			})
		}
		if r.EnergyUsageMWh < th.EnergyMinMWh {
			outliers = append(outliers, Outlier{
				City:  r.City,
				Date:  FormatDate(r.Date),
				Kind:  OutlierEnergy,
				Value: formatNumber(r.EnergyUsageMWh),
			})
		}
	}
	return outliers
}

// CheckFreshness compares the newest date in rows with now's UTC calendar day.
// An empty table is reported stale with no latest date.
func CheckFreshness(rows []CleanedRecord, now time.Time, maxAgeDays int) Freshness {
	if len(rows) == 0 {
		return Freshness{}
	}

	latest := rows[0].Date
	for _, r := range rows[1:] {
		if r.Date.After(latest) {
			latest = r.Date
		}
	}
	latest = Day(latest)
	daysOld := int(Day(now).Sub(latest).Hours() / 24)

	return Freshness{
		IsFresh:    daysOld <= maxAgeDays,
		LatestDate: FormatDate(latest),
		DaysOld:    daysOld,
	}
}

// BuildQualityReport runs the three checks over the cleaned table.
func BuildQualityReport(rows []CleanedRecord, th Thresholds, now time.Time) QualityReport {
	merged := make([]MergedRecord, len(rows))
	for i, r := range rows {
		merged[i] = r.Merged()
	}
	return QualityReport{
		GeneratedAt:   now.UTC(),
		TotalRows:     len(rows),
		MissingValues: CheckMissingValues(merged),
		Outliers:      CheckOutliers(rows, th),
		Freshness:     CheckFreshness(rows, now, th.MaxAgeDays),
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
