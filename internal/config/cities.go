package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/francis-2008-happy/project1-energy-analysis/internal/domain"
)

var validate = validator.New()

// cityFile mirrors config/config.yaml.
type cityFile struct {
	Cities []cityEntry `yaml:"cities" validate:"required,min=1,unique=Name,dive"`
}

type cityEntry struct {
	Name          string `yaml:"name" validate:"required"`
	NOAAStationID string `yaml:"noaa_station_id" validate:"required"`
	EIARegionCode string `yaml:"eia_region_code" validate:"required"`
}

// LoadCities reads the ordered city list from a YAML file.
func LoadCities(path string) ([]domain.CityConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open city config: %w", err)
	}
	defer f.Close()

	cities, err := ParseCities(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cities, nil
}

// ParseCities decodes and validates a YAML city list.
func ParseCities(r io.Reader) ([]domain.CityConfig, error) {
	var file cityFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("city config is empty")
		}
		return nil, fmt.Errorf("decode city config: %w", err)
	}
	if err := validate.Struct(file); err != nil {
		return nil, fmt.Errorf("validate city config: %w", err)
	}

	cities := make([]domain.CityConfig, len(file.Cities))
	for i, c := range file.Cities {
		cities[i] = domain.CityConfig{
			Name:             c.Name,
			WeatherStationID: c.NOAAStationID,
			EnergyRegionCode: c.EIARegionCode,
		}
	}
	return cities, nil
}
