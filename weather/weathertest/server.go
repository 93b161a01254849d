// Package weathertest serves canned OpenWeatherMap responses.
package weathertest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync/atomic"
	"time"
)

// Fixture describes what the fake provider returns.
type Fixture struct {
	Name        string
	Country     string
	Temperature float64
	FeelsLike   float64
	Humidity    int
	WindSpeed   float64
	Description string
	// Forecast maps sample times to temperatures; description is reused.
	Forecast map[time.Time]float64
	// NotFound makes geocoding return an empty list.
	NotFound bool
}

// Server is a running fake provider.
type Server struct {
	*httptest.Server
	GeocodeCalls atomic.Int32
	LastUnits    atomic.Value
	LastKey      atomic.Value
}

func NewServer(f Fixture) *Server {
	s := &Server{}
	mux := http.NewServeMux()

	mux.HandleFunc("/geo/1.0/direct", func(w http.ResponseWriter, r *http.Request) {
		s.GeocodeCalls.Add(1)
		s.LastKey.Store(r.URL.Query().Get("appid"))
		if f.NotFound {
			writeJSON(w, []any{})
			return
		}
		writeJSON(w, []map[string]any{{"name": f.Name, "country": f.Country, "lat": 39.74, "lon": -104.99}})
	})

	mux.HandleFunc("/data/2.5/weather", func(w http.ResponseWriter, r *http.Request) {
		s.LastUnits.Store(r.URL.Query().Get("units"))
		writeJSON(w, map[string]any{
			"main":    map[string]any{"temp": f.Temperature, "feels_like": f.FeelsLike, "humidity": f.Humidity, "pressure": 1015},
			"weather": []map[string]any{{"description": f.Description}},
			"wind":    map[string]any{"speed": f.WindSpeed, "deg": 270},
		})
	})

	mux.HandleFunc("/data/2.5/forecast", func(w http.ResponseWriter, r *http.Request) {
		var list []map[string]any
		for _, t := range sortedTimes(f.Forecast) {
			list = append(list, map[string]any{
				"dt":      t.Unix(),
				"main":    map[string]any{"temp": f.Forecast[t], "humidity": f.Humidity},
				"weather": []map[string]any{{"description": f.Description}},
				"wind":    map[string]any{"speed": f.WindSpeed},
			})
		}
		writeJSON(w, map[string]any{"list": list})
	})

	s.Server = httptest.NewServer(mux)
	return s
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func sortedTimes(m map[time.Time]float64) []time.Time {
	out := make([]time.Time, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
