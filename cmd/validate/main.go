// Command validate checks the artifacts of a pipeline run for internal
// consistency: the cleaned CSV table and the data quality report written next
// to it. It verifies the table layout, typed values, ordering, and that the
// report agrees with a fresh recomputation over the table.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -processed data/processed/merged_data.csv \
//	  -report data/processed/data_quality_report.json
package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/francis-2008-happy/project1-energy-analysis/internal/adapter/csvstore"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/adapter/report"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	defaults := domain.DefaultThresholds()

	processed := flag.String("processed", "data/processed/"+csvstore.CleanedFile, "path to the cleaned CSV table")
	reportFile := flag.String("report", "data/processed/"+report.JSONFile, "path to the JSON quality report")
	tempMax := flag.Float64("temp-max", defaults.TempMaxF, "temp_max outlier threshold (°F)")
	tempMin := flag.Float64("temp-min", defaults.TempMinF, "temp_min outlier threshold (°F)")
	energyMin := flag.Float64("energy-min", defaults.EnergyMinMWh, "energy_usage_mwh outlier threshold (MWh)")
	maxAge := flag.Int("max-age-days", defaults.MaxAgeDays, "freshness window in days")
	flag.Parse()

	th := domain.Thresholds{TempMaxF: *tempMax, TempMinF: *tempMin, EnergyMinMWh: *energyMin, MaxAgeDays: *maxAge}
	if code := run(os.Stdout, *processed, *reportFile, th); code != 0 {
		os.Exit(code)
	}
}

func run(out io.Writer, processedPath, reportPath string, th domain.Thresholds) int {
	fmt.Fprintln(out, "=== Energy Pipeline Artifact Validation ===")
	fmt.Fprintln(out)

	raw, err := loadCSV(processedPath)
	if err != nil {
		fmt.Fprintf(out, "FATAL: load cleaned CSV: %v\n", err)
		return 1
	}

	qr, err := loadReport(reportPath)
	if err != nil {
		fmt.Fprintf(out, "FATAL: load quality report: %v\n", err)
		return 1
	}

	structure := validateStructure(raw)
	phases := []*phase{structure}

	// Typed checks only make sense once the layout is sound.
	var rows []domain.CleanedRecord
	if structure.passed() {
		rows, err = csvstore.ReadCleaned(processedPath)
		if err != nil {
			structure.errorf("parse: %v", err)
		}
	}
	phases = append(phases, validateTable(rows), validateReport(qr, rows, th))

	fmt.Fprintln(out)
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Records: %d CSV rows, %d report rows, %d report outliers\n",
		len(raw)-1, qr.TotalRows, len(qr.Outliers))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func loadCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, errors.New("missing header")
	}
	return all, nil
}

func loadReport(path string) (domain.QualityReport, error) {
	var qr domain.QualityReport
	data, err := os.ReadFile(path)
	if err != nil {
		return qr, err
	}
	if err := json.Unmarshal(data, &qr); err != nil {
		return qr, err
	}
	return qr, nil
}

// ── Phase 1: Structure ──
// Validates the header and that every cell is present.

func validateStructure(all [][]string) *phase {
	p := &phase{name: "Phase 1: Structure (CSV layout)"}

	header := all[0]
	if strings.Join(header, ",") != strings.Join(domain.Columns, ",") {
		p.errorf("header: expected %q, got %q", domain.Columns, header)
	}

	for i, row := range all[1:] {
		line := i + 2
		if len(row) != len(domain.Columns) {
			p.errorf("line %d: expected %d fields, got %d", line, len(domain.Columns), len(row))
			continue
		}
		for j, cell := range row {
			if strings.TrimSpace(cell) == "" {
				p.errorf("line %d: column %q is empty", line, domain.Columns[j])
			}
		}
	}
	return p
}

// ── Phase 2: Table ──
// Validates rounding, ordering, and key uniqueness of the parsed table.

func validateTable(rows []domain.CleanedRecord) *phase {
	p := &phase{name: "Phase 2: Table (typed rows)"}

	seen := make(map[string]int, len(rows))
	for i, r := range rows {
		key := r.City + "|" + domain.FormatDate(r.Date)
		if first, ok := seen[key]; ok {
			p.errorf("row %d: duplicate key %s (first at row %d)", i+1, key, first)
		} else {
			seen[key] = i + 1
		}

		if !roundedTo(r.TempMaxF, 1) {
			p.errorf("row %d (%s): temp_max %g has more than 1 decimal", i+1, key, r.TempMaxF)
		}
		if !roundedTo(r.TempMinF, 1) {
			p.errorf("row %d (%s): temp_min %g has more than 1 decimal", i+1, key, r.TempMinF)
		}
		if !roundedTo(r.EnergyUsageMWh, 2) {
			p.errorf("row %d (%s): energy_usage_mwh %g has more than 2 decimals", i+1, key, r.EnergyUsageMWh)
		}

		if i > 0 {
			prev := rows[i-1]
			if prev.City > r.City || (prev.City == r.City && !prev.Date.Before(r.Date)) {
				p.errorf("row %d (%s): out of (city, date) order", i+1, key)
			}
		}
	}
	return p
}

// ── Phase 3: Report ──
// Validates the report against a recomputation over the table.

func validateReport(qr domain.QualityReport, rows []domain.CleanedRecord, th domain.Thresholds) *phase {
	p := &phase{name: "Phase 3: Report (consistency)"}

	if qr.TotalRows != len(rows) {
		p.errorf("total_rows: expected %d, got %d", len(rows), qr.TotalRows)
	}
	if qr.GeneratedAt.IsZero() {
		p.errorf("generated_at is missing")
	}
	if len(qr.MissingValues) != 0 {
		p.errorf("missing_values: cleaned table should have none, got %v", qr.MissingValues)
	}

	expected := domain.CheckOutliers(rows, th)
	if diff := cmp.Diff(expected, qr.Outliers); diff != "" {
		p.errorf("outliers mismatch (-recomputed +report):\n%s", diff)
	}

	if !qr.GeneratedAt.IsZero() {
		fresh := domain.CheckFreshness(rows, qr.GeneratedAt, th.MaxAgeDays)
		if fresh != qr.Freshness {
			p.errorf("freshness: expected %+v, got %+v", fresh, qr.Freshness)
		}
	}
	return p
}

// ── Helpers ──

func roundedTo(v float64, places int) bool {
	scale := math.Pow(10, float64(places))
	return math.Abs(v*scale-math.Round(v*scale)) < 1e-6
}
