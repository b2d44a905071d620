// Package eia fetches daily electricity demand per balancing authority from
// the EIA v2 API.
package eia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/francis-2008-happy/project1-energy-analysis/internal/adapter/fetch"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/domain"
)

// Config selects the EIA route and paging.
type Config struct {
	APIKey     string
	BaseURL    string
	DataType   string // type facet, "D" for demand
	PageLength int
}

// Client is the energy client for one EIA API key.
type Client struct {
	cfg     Config
	fetcher *fetch.Fetcher
}

// NewClient creates an EIA client that sends its requests through fetcher.
func NewClient(cfg Config, fetcher *fetch.Fetcher) *Client {
	if cfg.PageLength <= 0 {
		cfg.PageLength = 5000
	}
	return &Client{cfg: cfg, fetcher: fetcher}
}

// Fetch returns the daily values reported for regionCode between start and
// end inclusive. Null values come back nil and non-numeric values NaN.
func (c *Client) Fetch(ctx context.Context, regionCode string, start, end time.Time) ([]domain.EnergyEntry, error) {
	var entries []domain.EnergyEntry
	offset := 0
	for {
		page, err := c.fetchPage(ctx, regionCode, start, end, offset)
		if err != nil {
			return nil, err
		}
		for _, row := range page.Response.Data {
			period, err := domain.ParseDate(row.Period)
			if err != nil {
				return nil, fmt.Errorf("eia region %s: %w", regionCode, err)
			}
			entries = append(entries, domain.EnergyEntry{Period: period, Value: row.Value.ptr()})
		}

		offset += len(page.Response.Data)
		total := int(page.Response.Total.value)
		if len(page.Response.Data) == 0 || offset >= total {
			return entries, nil
		}
	}
}

func (c *Client) fetchPage(ctx context.Context, regionCode string, start, end time.Time, offset int) (payload, error) {
	params := url.Values{
		"api_key":              {c.cfg.APIKey},
		"frequency":            {"daily"},
		"start":                {domain.FormatDate(start)},
		"end":                  {domain.FormatDate(end)},
		"data[]":               {"value"},
		"facets[respondent][]": {regionCode},
		"sort[0][column]":      {"period"},
		"sort[0][direction]":   {"asc"},
		"offset":               {strconv.Itoa(offset)},
		"length":               {strconv.Itoa(c.cfg.PageLength)},
	}
	if c.cfg.DataType != "" {
		params.Set("facets[type][]", c.cfg.DataType)
	}
	fullURL := c.cfg.BaseURL + "?" + params.Encode()

	body, err := c.fetcher.Get(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, "region", regionCode, "offset", offset)
	if err != nil {
		return payload{}, fmt.Errorf("eia region %s: %w", regionCode, err)
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return payload{}, fmt.Errorf("decode eia response: %w", err)
	}
	return p, nil
}

// EIA v2 response types.

type payload struct {
	Response struct {
		Total number `json:"total"`
		Data  []row  `json:"data"`
	} `json:"response"`
}

type row struct {
	Period     string `json:"period"`
	Respondent string `json:"respondent"`
	Type       string `json:"type"`
	Value      number `json:"value"`
	Units      string `json:"value-units"`
}

// number accepts a JSON number, a numeric string or null. Anything else
// decodes to NaN so the cleaner treats it as missing. A null or absent
// field leaves ok false.
type number struct {
	value float64
	ok    bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = number{}
		return nil
	}

	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*n = number{value: f, ok: true}
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			*n = number{}
			return nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			*n = number{value: f, ok: true}
			return nil
		}
	}

	*n = number{value: math.NaN(), ok: true}
	return nil
}

func (n number) ptr() *float64 {
	if !n.ok {
		return nil
	}
	return domain.Float(n.value)
}
