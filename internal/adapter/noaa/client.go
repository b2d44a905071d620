// Package noaa fetches daily GHCND temperatures from the NOAA Climate Data
// Online v2 API.
package noaa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/francis-2008-happy/project1-energy-analysis/internal/adapter/fetch"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/domain"
)

// Config selects the dataset and paging of CDO requests.
type Config struct {
	Token     string
	BaseURL   string
	DatasetID string
	// Units is passed through as the "units" parameter when set. Left empty,
	// GHCND reports temperatures in tenths of °C, the only scale
	// domain.TenthsCelsiusToFahrenheit handles; "metric" returns whole °C.
	Units     string
	PageLimit int
}

// Client is the weather client for one NOAA token.
type Client struct {
	cfg     Config
	fetcher *fetch.Fetcher
}

// NewClient creates a NOAA client that sends its requests through fetcher.
func NewClient(cfg Config, fetcher *fetch.Fetcher) *Client {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 1000
	}
	return &Client{cfg: cfg, fetcher: fetcher}
}

// Fetch returns every TMAX/TMIN entry reported by stationID between start and
// end inclusive, following CDO paging until the result set is exhausted.
func (c *Client) Fetch(ctx context.Context, stationID string, start, end time.Time) ([]domain.WeatherEntry, error) {
	var entries []domain.WeatherEntry
	offset := 1
	for {
		page, err := c.fetchPage(ctx, stationID, start, end, offset)
		if err != nil {
			return nil, err
		}
		for _, r := range page.Results {
			date, err := domain.ParseDate(r.Date)
			if err != nil {
				return nil, fmt.Errorf("noaa station %s: %w", stationID, err)
			}
			entries = append(entries, domain.WeatherEntry{Date: date, DataType: r.DataType, Value: r.Value})
		}

		rs := page.Metadata.ResultSet
		if len(page.Results) == 0 || offset+len(page.Results)-1 >= rs.Count {
			return entries, nil
		}
		offset += len(page.Results)
	}
}

func (c *Client) fetchPage(ctx context.Context, stationID string, start, end time.Time, offset int) (response, error) {
	params := url.Values{
		"datasetid":  {c.cfg.DatasetID},
		"stationid":  {stationID},
		"startdate":  {domain.FormatDate(start)},
		"enddate":    {domain.FormatDate(end)},
		"datatypeid": {domain.DataTypeTempMax, domain.DataTypeTempMin},
		"limit":      {strconv.Itoa(c.cfg.PageLimit)},
		"offset":     {strconv.Itoa(offset)},
	}
	if c.cfg.Units != "" {
		params.Set("units", c.cfg.Units)
	}
	fullURL := c.cfg.BaseURL + "?" + params.Encode()

	body, err := c.fetcher.Get(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("token", c.cfg.Token)
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, "station_id", stationID, "offset", offset)
	if err != nil {
		return response{}, fmt.Errorf("noaa station %s: %w", stationID, err)
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return response{}, fmt.Errorf("decode noaa response: %w", err)
	}
	return resp, nil
}

// CDO v2 response types. A station with no data answers with an empty object.

type response struct {
	Metadata struct {
		ResultSet resultSet `json:"resultset"`
	} `json:"metadata"`
	Results []result `json:"results"`
}

type resultSet struct {
	Offset int `json:"offset"`
	Count  int `json:"count"`
	Limit  int `json:"limit"`
}

type result struct {
	Date     string  `json:"date"`
	DataType string  `json:"datatype"`
	Station  string  `json:"station"`
	Value    float64 `json:"value"`
}
