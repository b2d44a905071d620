// Package csvstore persists the raw and cleaned tables as CSV files.
package csvstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/francis-2008-happy/project1-energy-analysis/internal/domain"
)

// Artifact file names.
const (
	WeatherRawFile = "weather_raw.csv"
	EnergyRawFile  = "energy_raw.csv"
	CleanedFile    = "merged_data.csv"
)

var (
	weatherHeader = []string{domain.ColCity, domain.ColDate, domain.ColTempMax, domain.ColTempMin}
	energyHeader  = []string{domain.ColCity, domain.ColDate, domain.ColEnergy}
)

// Store writes artifacts under a raw and a processed directory. Every file is
// replaced wholesale on each write.
type Store struct {
	rawDir       string
	processedDir string
}

// New creates a Store. Directories are created on first write.
func New(rawDir, processedDir string) *Store {
	return &Store{rawDir: rawDir, processedDir: processedDir}
}

// CleanedPath is where WriteCleaned puts the cleaned table.
func (s *Store) CleanedPath() string {
	return filepath.Join(s.processedDir, CleanedFile)
}

// WriteWeatherRaw snapshots the pivoted weather rows. Missing temperatures
// are written as empty cells.
func (s *Store) WriteWeatherRaw(rows []domain.WeatherObservation) error {
	return writeCSV(filepath.Join(s.rawDir, WeatherRawFile), weatherHeader, len(rows), func(i int) []string {
		r := rows[i]
		return []string{r.City, domain.FormatDate(r.Date), formatNullable(r.TempMaxF), formatNullable(r.TempMinF)}
	})
}

// WriteEnergyRaw snapshots the energy rows. Missing usage is written as an
// empty cell.
func (s *Store) WriteEnergyRaw(rows []domain.EnergyObservation) error {
	return writeCSV(filepath.Join(s.rawDir, EnergyRawFile), energyHeader, len(rows), func(i int) []string {
		r := rows[i]
		return []string{r.City, domain.FormatDate(r.Date), formatNullable(r.EnergyUsageMWh)}
	})
}

// WriteCleaned writes the cleaned table with temperatures at one decimal and
// energy at two.
func (s *Store) WriteCleaned(rows []domain.CleanedRecord) error {
	return writeCSV(s.CleanedPath(), domain.Columns, len(rows), func(i int) []string {
		r := rows[i]
		return []string{
			r.City,
			domain.FormatDate(r.Date),
			strconv.FormatFloat(r.TempMaxF, 'f', 1, 64),
			strconv.FormatFloat(r.TempMinF, 'f', 1, 64),
			strconv.FormatFloat(r.EnergyUsageMWh, 'f', 2, 64),
		}
	})
}

func writeCSV(path string, header []string, n int, row func(i int) []string) error {
	return WriteAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := cw.Write(row(i)); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// WriteAtomic writes path through a temporary file in the same directory and
// renames it into place, so readers never observe a partial file.
func WriteAtomic(path string, write func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func formatNullable(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// ReadCleaned loads a cleaned table written by WriteCleaned. The header must
// match exactly and every cell must be present and parseable.
func ReadCleaned(path string) ([]domain.CleanedRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCleaned(f)
}

// ParseCleaned is ReadCleaned over an arbitrary reader.
func ParseCleaned(r io.Reader) ([]domain.CleanedRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(domain.Columns)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("cleaned table is empty: missing header")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if strings.Join(header, ",") != strings.Join(domain.Columns, ",") {
		return nil, fmt.Errorf("unexpected header %q", header)
	}

	var rows []domain.CleanedRecord
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row, err := parseCleanedRow(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
}

func parseCleanedRow(rec []string) (domain.CleanedRecord, error) {
	for i, v := range rec {
		if strings.TrimSpace(v) == "" {
			return domain.CleanedRecord{}, fmt.Errorf("%s is empty", domain.Columns[i])
		}
	}

	date, err := domain.ParseDate(rec[1])
	if err != nil {
		return domain.CleanedRecord{}, err
	}
	values := make([]float64, 3)
	for i := range values {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+2]), 64)
		if err != nil {
			return domain.CleanedRecord{}, fmt.Errorf("%s: %w", domain.Columns[i+2], err)
		}
		values[i] = v
	}

	return domain.CleanedRecord{
		City:           rec[0],
		Date:           date,
		TempMaxF:       values[0],
		TempMinF:       values[1],
		EnergyUsageMWh: values[2],
	}, nil
}
