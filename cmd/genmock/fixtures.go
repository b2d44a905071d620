package main

import (
	"encoding/json"
	"math"
	"math/rand/v2"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/francis-2008-happy/project1-energy-analysis/internal/domain"
)

const (
	noaaPath = "/cdo-web/api/v2/data"
	eiaPath  = "/v2/electricity/rto/daily-region-data/data/"
)

// noaaResult and eiaRow mirror the upstream JSON shapes the clients decode.
type noaaResult struct {
	Date     string  `json:"date"`
	DataType string  `json:"datatype"`
	Station  string  `json:"station"`
	Value    float64 `json:"value"`
}

type eiaRow struct {
	Period     string   `json:"period"`
	Respondent string   `json:"respondent"`
	Type       string   `json:"type"`
	Value      *float64 `json:"value"`
	Units      string   `json:"value-units"`
}

// fixtures holds generated upstream data keyed by station ID and region code.
type fixtures struct {
	weather map[string][]noaaResult
	energy  map[string][]eiaRow
}

// generate builds one value per city and day in [start, end]. The data is
// seeded, so repeated runs produce identical output. It deliberately carries
// gaps the cleaner has to deal with:
//
//   - every 7th day a station reports TMAX only
//   - every 11th day a region reports null
//   - the last city has no energy value on the first day, so that row drops
//   - the first city reports one negative energy value (an outlier)
func generate(cities []domain.CityConfig, start, end time.Time) *fixtures {
	rng := rand.New(rand.NewPCG(2024, 1))
	fx := &fixtures{
		weather: make(map[string][]noaaResult, len(cities)),
		energy:  make(map[string][]eiaRow, len(cities)),
	}

	total := int(end.Sub(start).Hours()/24) + 1
	for ci, city := range cities {
		for d := 0; d < total; d++ {
			day := start.AddDate(0, 0, d)
			noaaDate := day.Format(domain.DateLayout) + "T00:00:00"

			tmax := float64(-20 + 40*ci + rng.IntN(80))
			fx.weather[city.WeatherStationID] = append(fx.weather[city.WeatherStationID],
				noaaResult{Date: noaaDate, DataType: domain.DataTypeTempMax, Station: city.WeatherStationID, Value: tmax})
			if d%7 != 3 {
				tmin := tmax - float64(50+rng.IntN(60))
				fx.weather[city.WeatherStationID] = append(fx.weather[city.WeatherStationID],
					noaaResult{Date: noaaDate, DataType: domain.DataTypeTempMin, Station: city.WeatherStationID, Value: tmin})
			}

			var value *float64
			switch {
			case ci == len(cities)-1 && d == 0, d%11 == 5:
			case ci == 0 && d == total/2:
				value = domain.Float(-5)
			default:
				value = domain.Float(math.Round(150000 + 40000*float64(ci) + rng.Float64()*20000))
			}
			fx.energy[city.EnergyRegionCode] = append(fx.energy[city.EnergyRegionCode], eiaRow{
				Period:     day.Format(domain.DateLayout),
				Respondent: city.EnergyRegionCode,
				Type:       "D",
				Value:      value,
				Units:      "megawatthours",
			})
		}
	}
	return fx
}

// handler serves the fixtures with the paging and date filtering of the real
// APIs.
func (f *fixtures) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+noaaPath, f.serveNOAA)
	mux.HandleFunc("GET "+eiaPath, f.serveEIA)
	return mux
}

func (f *fixtures) serveNOAA(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end, ok := window(q.Get("startdate"), q.Get("enddate"))
	if !ok {
		http.Error(w, "invalid date range", http.StatusBadRequest)
		return
	}

	var matched []noaaResult
	for _, res := range f.weather[q.Get("stationid")] {
		if inWindow(res.Date, start, end) {
			matched = append(matched, res)
		}
	}

	// CDO answers an empty object when nothing matches.
	if len(matched) == 0 {
		writeJSONResponse(w, struct{}{})
		return
	}

	offset := atoiDefault(q.Get("offset"), 1)
	limit := atoiDefault(q.Get("limit"), 25)
	page := paginate(matched, offset-1, limit)
	writeJSONResponse(w, map[string]any{
		"metadata": map[string]any{
			"resultset": map[string]int{"offset": offset, "count": len(matched), "limit": limit},
		},
		"results": page,
	})
}

func (f *fixtures) serveEIA(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end, ok := window(q.Get("start"), q.Get("end"))
	if !ok {
		http.Error(w, "invalid date range", http.StatusBadRequest)
		return
	}

	matched := make([]eiaRow, 0)
	for _, row := range f.energy[q.Get("facets[respondent][]")] {
		if inWindow(row.Period, start, end) {
			matched = append(matched, row)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Period < matched[j].Period })

	page := paginate(matched, atoiDefault(q.Get("offset"), 0), atoiDefault(q.Get("length"), 5000))
	// EIA reports total as a string.
	writeJSONResponse(w, map[string]any{
		"response": map[string]any{
			"total": strconv.Itoa(len(matched)),
			"data":  page,
		},
	})
}

func window(startStr, endStr string) (time.Time, time.Time, bool) {
	start, err := domain.ParseDate(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	end, err := domain.ParseDate(endStr)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return start, end, !end.Before(start)
}

func inWindow(date string, start, end time.Time) bool {
	d, err := domain.ParseDate(date)
	return err == nil && !d.Before(start) && !d.After(end)
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	return items[offset:min(offset+limit, len(items))]
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSONResponse(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
