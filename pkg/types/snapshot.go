package types

import (
	"maps"
	"sort"
)

// Location mirrors the "location" block of a WeatherAPI current.json response.
type Location struct {
	Name           string  `json:"name" validate:"required"`
	Region         string  `json:"region"`
	Country        string  `json:"country"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	TzID           string  `json:"tz_id"`
	LocaltimeEpoch int64   `json:"localtime_epoch"`
	Localtime      string  `json:"localtime"`
}

type Condition struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
	Code int    `json:"code"`
}

// Current holds the current-conditions readings for a location.
type Current struct {
	LastUpdatedEpoch int64     `json:"last_updated_epoch"`
	LastUpdated      string    `json:"last_updated"`
	TempC            float64   `json:"temp_c"`
	TempF            float64   `json:"temp_f"`
	IsDay            int       `json:"is_day"`
	Condition        Condition `json:"condition"`
	WindMph          float64   `json:"wind_mph"`
	WindKph          float64   `json:"wind_kph"`
	WindDegree       int       `json:"wind_degree"`
	WindDir          string    `json:"wind_dir"`
	PressureMb       float64   `json:"pressure_mb"`
	PressureIn       float64   `json:"pressure_in"`
	PrecipMm         float64   `json:"precip_mm"`
	PrecipIn         float64   `json:"precip_in"`
	Humidity         int       `json:"humidity"`
	Cloud            int       `json:"cloud"`
	FeelslikeC       float64   `json:"feelslike_c"`
	FeelslikeF       float64   `json:"feelslike_f"`
	VisKm            float64   `json:"vis_km"`
	VisMiles         float64   `json:"vis_miles"`
	UV               float64   `json:"uv"`
	GustMph          float64   `json:"gust_mph"`
	GustKph          float64   `json:"gust_kph"`
}

// Report is a single weather lookup result.
type Report struct {
	Location Location `json:"location"`
	Current  Current  `json:"current"`
}

// Entry is one participant on the board.
type Entry struct {
	Name     string   `json:"name"`
	Location Location `json:"location"`
	Current  Current  `json:"current"`
}

// Leaderboard maps a connection id to its entry.
type Leaderboard map[string]Entry

// Clone returns an independent copy. Entries hold only values, so a shallow
// map copy is enough.
func (lb Leaderboard) Clone() Leaderboard {
	if lb == nil {
		return Leaderboard{}
	}
	return maps.Clone(lb)
}

type RankedEntry struct {
	ID string
	Entry
}

// Ranked orders entries by temperature, hottest first. Ties fall back to the
// connection id so the order is stable between renders.
func (lb Leaderboard) Ranked() []RankedEntry {
	out := make([]RankedEntry, 0, len(lb))
	for id, e := range lb {
		out = append(out, RankedEntry{ID: id, Entry: e})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Current.TempC != out[j].Current.TempC {
			return out[i].Current.TempC > out[j].Current.TempC
		}
		return out[i].ID < out[j].ID
	})
	return out
}
