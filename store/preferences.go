package store

import (
	"context"
	"fmt"
)

// Preferences are the per-owner settings kept in user_preferences.
type Preferences struct {
	FarmLocation    string
	TemperatureUnit string
	WeatherAPIKey   string
}

// LoadPreferences reads the owner's row from user_preferences. A missing
// row yields (nil, nil); store failures are returned to the caller.
func LoadPreferences(ctx context.Context, t Tabular, ownerID string) (*Preferences, error) {
	q := SelectQuery{Table: "user_preferences", Limit: 1}
	if ownerID != "" {
		q = q.Eq("user_id", ownerID)
	}
	rows, err := t.Select(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	return &Preferences{
		FarmLocation:    stringField(row, "farm_location"),
		TemperatureUnit: stringField(row, "temperature_unit"),
		WeatherAPIKey:   stringField(row, "weather_api_key"),
	}, nil
}

func stringField(row Row, key string) string {
	if s, ok := row[key].(string); ok {
		return s
	}
	return ""
}
