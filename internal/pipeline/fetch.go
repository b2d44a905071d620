package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/francis-2008-happy/project1-energy-analysis/internal/domain"
)

const (
	sourceWeather = "noaa"
	sourceEnergy  = "eia"
)

// fetched holds every city's rows, concatenated in city configuration order.
type fetched struct {
	weather       []domain.WeatherObservation
	energy        []domain.EnergyObservation
	failedWeather []string
	failedEnergy  []string
}

type cityResult struct {
	weather    []domain.WeatherObservation
	energy     []domain.EnergyObservation
	weatherErr error
	energyErr  error
}

// fetchAll runs one weather and one energy task per city on a worker pool of
// opts.Concurrency goroutines. Each task writes only its own slot of results.
func (r *Runner) fetchAll(ctx context.Context, log *slog.Logger, start, end time.Time) fetched {
	results := make([]cityResult, len(r.cities))

	tasks := make(chan func(), len(r.cities)*2)
	for i, city := range r.cities {
		slot := &results[i]
		tasks <- func() {
			slot.weather, slot.weatherErr = r.fetchWeather(ctx, city, start, end)
		}
		tasks <- func() {
			slot.energy, slot.energyErr = r.fetchEnergy(ctx, city, start, end)
		}
	}
	close(tasks)

	workers := min(r.opts.Concurrency, cap(tasks))
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for fn := range tasks {
				fn()
			}
		}()
	}
	wg.Wait()

	var out fetched
	for i, city := range r.cities {
		res := results[i]
		if res.weatherErr != nil {
			out.failedWeather = append(out.failedWeather, city.Name)
			r.metrics.CityFetchFailures.WithLabelValues(sourceWeather).Inc()
			log.Error("weather fetch failed, city yields no rows",
				"city", city.Name, "station_id", city.WeatherStationID, "error", res.weatherErr)
		}
		if res.energyErr != nil {
			out.failedEnergy = append(out.failedEnergy, city.Name)
			r.metrics.CityFetchFailures.WithLabelValues(sourceEnergy).Inc()
			log.Error("energy fetch failed, city yields no rows",
				"city", city.Name, "region", city.EnergyRegionCode, "error", res.energyErr)
		}
		out.weather = append(out.weather, res.weather...)
		out.energy = append(out.energy, res.energy...)
	}

	r.metrics.RowsFetched.WithLabelValues(sourceWeather).Add(float64(len(out.weather)))
	r.metrics.RowsFetched.WithLabelValues(sourceEnergy).Add(float64(len(out.energy)))
	log.Info("fetch complete",
		"weather_rows", len(out.weather), "energy_rows", len(out.energy),
		"failed_weather", len(out.failedWeather), "failed_energy", len(out.failedEnergy))
	return out
}

func (r *Runner) fetchWeather(ctx context.Context, city domain.CityConfig, start, end time.Time) ([]domain.WeatherObservation, error) {
	entries, err := r.weather.Fetch(ctx, city.WeatherStationID, start, end)
	if err != nil {
		return nil, err
	}
	return domain.PivotWeather(city.Name, entries), nil
}

func (r *Runner) fetchEnergy(ctx context.Context, city domain.CityConfig, start, end time.Time) ([]domain.EnergyObservation, error) {
	entries, err := r.energy.Fetch(ctx, city.EnergyRegionCode, start, end)
	if err != nil {
		return nil, err
	}
	return domain.EnergyObservations(city.Name, entries), nil
}
