// Package weather defines the normalized station record and the mapping from
// the station's raw JSON payloads.
package weather

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// DateLayout is the layout of Record.Date.
	DateLayout = time.DateOnly
	// TimeLayout is the layout of Record.Time.
	TimeLayout = time.TimeOnly
)

// Payload is a decoded JSON object as returned by the station.
type Payload map[string]any

// Record is one normalized reading. Nil fields were absent upstream.
type Record struct {
	ID string `json:"id,omitempty"`

	Date string `json:"date"`
	Time string `json:"time"`

	WindSpeed      *int `json:"wind_speed"`
	WindDirection  *int `json:"wind_direction"`
	WindMin1Max    *int `json:"wind_min1_max"`
	WindMin1Avg    *int `json:"wind_min1_avg"`
	WindMin1Dir    *int `json:"wind_min1_dir"`
	WindForeverMax *int `json:"wind_forever_max"`

	Temperature1 *float64 `json:"temperature1"`
	Temperature2 *float64 `json:"temperature2"`
	Humidity     *float64 `json:"humidity"`
	Pressure     *float64 `json:"pressure"`
	AvgPressure  *float64 `json:"avg_pressure"`
	Rain         *float64 `json:"rain"`

	Billenes *int `json:"billenes"`
	End      *int `json:"end"`
}

// Timestamp combines Date and Time in the given location.
func (r *Record) Timestamp(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, r.Date+" "+r.Time, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing record timestamp %q %q: %w", r.Date, r.Time, err)
	}
	return t, nil
}

// Marshal serializes the record for the local queue. The ID is not part of
// the stored blob; the queue keeps it in its own column.
func Marshal(r *Record) ([]byte, error) {
	c := *r
	c.ID = ""
	b, err := json.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return b, nil
}

// Unmarshal is the inverse of Marshal. A blob without a parseable date and
// time (including `null` and `{}`) is rejected.
func Unmarshal(b []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return Record{}, fmt.Errorf("decoding record: %w", err)
	}
	if _, err := r.Timestamp(time.UTC); err != nil {
		return Record{}, fmt.Errorf("decoding record: %w", err)
	}
	return r, nil
}
