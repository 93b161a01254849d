// Package weather talks to the OpenWeatherMap HTTP API.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

// ErrLocationNotFound is returned when geocoding yields no match.
var ErrLocationNotFound = errors.New("location not found")

// Units selects the provider's measurement system.
type Units string

const (
	Imperial Units = "imperial"
	Metric   Units = "metric"
)

// Place is a geocoded location.
type Place struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	State   string  `json:"state,omitempty"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Label renders "Name, Country".
func (p Place) Label() string {
	return p.Name + ", " + p.Country
}

// Conditions is a current observation.
type Conditions struct {
	Temperature   float64
	FeelsLike     float64
	Humidity      int
	Pressure      int
	Description   string
	WindSpeed     float64
	WindDirection int
}

// Sample is one forecast step.
type Sample struct {
	Time        time.Time
	Temperature float64
	Description string
	Humidity    int
	WindSpeed   float64
}

// Report bundles what a lookup fetched. Forecast is the full provider list.
type Report struct {
	Place    Place
	Current  Conditions
	Forecast []Sample
}

type Options struct {
	APIKey     string
	BaseURL    string
	CacheSize  int
	HTTPClient *http.Client
}

// Client is an OpenWeatherMap client with an LRU geocode cache.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	places  *lru.Cache[string, Place]
}

func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openweathermap.org"
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 128
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	places, err := lru.New[string, Place](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("geocode cache: %w", err)
	}
	return &Client{
		apiKey:  opts.APIKey,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    opts.HTTPClient,
		places:  places,
	}, nil
}

// HasKey reports whether real lookups are possible.
func (c *Client) HasKey() bool {
	return c.apiKey != "" && c.apiKey != "your_weather_api_key_here"
}

// WithKey returns a client sharing the cache but using apiKey.
func (c *Client) WithKey(apiKey string) *Client {
	cp := *c
	cp.apiKey = apiKey
	return &cp
}

// Lookup geocodes location and fetches current conditions and forecast.
func (c *Client) Lookup(ctx context.Context, location string, units Units) (*Report, error) {
	place, err := c.Geocode(ctx, location)
	if err != nil {
		return nil, err
	}

	report := &Report{Place: place}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cur, err := c.current(gctx, place, units)
		if err != nil {
			return err
		}
		report.Current = cur
		return nil
	})
	g.Go(func() error {
		fc, err := c.forecast(gctx, place, units)
		if err != nil {
			return err
		}
		report.Forecast = fc
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to get weather data: %w", err)
	}
	return report, nil
}

func (c *Client) Geocode(ctx context.Context, location string) (Place, error) {
	key := strings.ToLower(strings.TrimSpace(location))
	if p, ok := c.places.Get(key); ok {
		return p, nil
	}

	var places []Place
	q := url.Values{"q": {location}, "limit": {"1"}}
	if err := c.get(ctx, "/geo/1.0/direct", q, &places); err != nil {
		return Place{}, fmt.Errorf("failed to get location coordinates: %w", err)
	}
	if len(places) == 0 {
		return Place{}, fmt.Errorf("%w: %s", ErrLocationNotFound, location)
	}
	c.places.Add(key, places[0])
	return places[0], nil
}

type owmMain struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	Humidity  int     `json:"humidity"`
	Pressure  int     `json:"pressure"`
}

type owmWeather struct {
	Description string `json:"description"`
}

type owmWind struct {
	Speed float64 `json:"speed"`
	Deg   int     `json:"deg"`
}

func firstDescription(ws []owmWeather) string {
	if len(ws) == 0 {
		return ""
	}
	return ws[0].Description
}

func (c *Client) current(ctx context.Context, p Place, units Units) (Conditions, error) {
	var body struct {
		Main    owmMain      `json:"main"`
		Weather []owmWeather `json:"weather"`
		Wind    owmWind      `json:"wind"`
	}
	if err := c.get(ctx, "/data/2.5/weather", c.coords(p, units), &body); err != nil {
		return Conditions{}, err
	}
	return Conditions{
		Temperature:   body.Main.Temp,
		FeelsLike:     body.Main.FeelsLike,
		Humidity:      body.Main.Humidity,
		Pressure:      body.Main.Pressure,
		Description:   firstDescription(body.Weather),
		WindSpeed:     body.Wind.Speed,
		WindDirection: body.Wind.Deg,
	}, nil
}

func (c *Client) forecast(ctx context.Context, p Place, units Units) ([]Sample, error) {
	var body struct {
		List []struct {
			Dt      int64        `json:"dt"`
			Main    owmMain      `json:"main"`
			Weather []owmWeather `json:"weather"`
			Wind    owmWind      `json:"wind"`
		} `json:"list"`
	}
	if err := c.get(ctx, "/data/2.5/forecast", c.coords(p, units), &body); err != nil {
		return nil, err
	}
	samples := make([]Sample, len(body.List))
	for i, item := range body.List {
		samples[i] = Sample{
			Time:        time.Unix(item.Dt, 0).UTC(),
			Temperature: item.Main.Temp,
			Description: firstDescription(item.Weather),
			Humidity:    item.Main.Humidity,
			WindSpeed:   item.Wind.Speed,
		}
	}
	return samples, nil
}

func (c *Client) coords(p Place, units Units) url.Values {
	return url.Values{
		"lat":   {fmt.Sprint(p.Lat)},
		"lon":   {fmt.Sprint(p.Lon)},
		"units": {string(units)},
	}
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	q.Set("appid", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// NearestToNoon returns the sample closest to 12:00 UTC on day, or false
// when no sample falls on that calendar day.
func NearestToNoon(samples []Sample, day time.Time) (Sample, bool) {
	y, m, d := day.Date()
	noon := time.Date(y, m, d, 12, 0, 0, 0, time.UTC)

	var best Sample
	found := false
	for _, s := range samples {
		sy, sm, sd := s.Time.UTC().Date()
		if sy != y || sm != m || sd != d {
			continue
		}
		if !found || absDuration(s.Time.Sub(noon)) < absDuration(best.Time.Sub(noon)) {
			best = s
			found = true
		}
	}
	return best, found
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
