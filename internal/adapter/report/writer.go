// Package report renders a domain.QualityReport for people and machines.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/francis-2008-happy/project1-energy-analysis/internal/adapter/csvstore"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/domain"
)

// Report file names.
const (
	TextFile = "data_quality_report.txt"
	JSONFile = "data_quality_report.json"
)

// listedOutliers is how many outliers the text summary spells out.
const listedOutliers = 5

var rule = strings.Repeat("=", 30)

// Writer persists reports into a directory and echoes the summary to a console.
type Writer struct {
	dir     string
	console io.Writer
}

// NewWriter creates a Writer. A nil console disables the echo.
func NewWriter(dir string, console io.Writer) *Writer {
	if console == nil {
		console = io.Discard
	}
	return &Writer{dir: dir, console: console}
}

// TextPath is where Write puts the text report.
func (w *Writer) TextPath() string { return filepath.Join(w.dir, TextFile) }

// JSONPath is where Write puts the JSON report.
func (w *Writer) JSONPath() string { return filepath.Join(w.dir, JSONFile) }

// Write replaces both report files and prints the summary.
func (w *Writer) Write(r domain.QualityReport) error {
	var text bytes.Buffer
	RenderText(&text, r)

	if err := csvstore.WriteAtomic(w.TextPath(), func(out io.Writer) error {
		_, err := out.Write(text.Bytes())
		return err
	}); err != nil {
		return err
	}

	data, err := MarshalJSON(r)
	if err != nil {
		return err
	}
	if err := csvstore.WriteAtomic(w.JSONPath(), func(out io.Writer) error {
		_, err := out.Write(data)
		return err
	}); err != nil {
		return err
	}

	_, _ = w.console.Write(text.Bytes())
	return nil
}

// MarshalJSON encodes the full report, every outlier included.
func MarshalJSON(r domain.QualityReport) ([]byte, error) {
	if r.MissingValues == nil {
		r.MissingValues = map[string]domain.MissingStat{}
	}
	if r.Outliers == nil {
		r.Outliers = []domain.Outlier{}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal quality report: %w", err)
	}
	return append(data, '\n'), nil
}

// RenderText writes the human-readable summary: all missing-value and
// freshness details, and only the first few outliers.
func RenderText(w io.Writer, r domain.QualityReport) {
	fmt.Fprintln(w, "DATA QUALITY REPORT")
	fmt.Fprintln(w, rule)
	if r.RunID != "" {
		fmt.Fprintf(w, "Run: %s\n", r.RunID)
	}
	fmt.Fprintf(w, "Rows: %d\n\n", r.TotalRows)

	if len(r.MissingValues) == 0 {
		fmt.Fprintln(w, "No missing values.")
	} else {
		fmt.Fprintln(w, "Missing Values:")
		for _, col := range domain.Columns {
			if s, ok := r.MissingValues[col]; ok {
				fmt.Fprintf(w, " - %s: %d missing (%g%%)\n", col, s.Count, s.Percent)
			}
		}
	}

	if len(r.Outliers) == 0 {
		fmt.Fprintln(w, "\nNo outliers found.")
	} else {
		fmt.Fprintf(w, "\nOutliers Found: %d\n", len(r.Outliers))
		for i, o := range r.Outliers {
			if i == listedOutliers {
				fmt.Fprintf(w, " ... %d more in %s\n", len(r.Outliers)-listedOutliers, JSONFile)
				break
			}
			fmt.Fprintf(w, " - %s outlier in %s on %s: %s\n", o.Kind, o.City, o.Date, o.Value)
		}
	}

	f := r.Freshness
	switch {
	case f.LatestDate == "":
		fmt.Fprintln(w, "\nData might be stale. No dated rows.")
	case f.IsFresh:
		fmt.Fprintf(w, "\nData is fresh. Latest date: %s\n", f.LatestDate)
	default:
		fmt.Fprintf(w, "\nData might be stale. Latest date: %s (%d days old)\n", f.LatestDate, f.DaysOld)
	}
	fmt.Fprintln(w, rule)
}
