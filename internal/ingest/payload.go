package ingest

import (
	"fmt"
	"strconv"
	"strings"
)

const positionPrefix = "pos,"

// Position is a GPS fix reported by a checkpoint device instead of a tag
// read. Position payloads carry telemetry only and never produce a check-in.
type Position struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Alt   float64 `json:"alt"`
	AgeMS int64   `json:"age_ms"`
}

// IsPosition reports whether the payload is a GPS fix rather than a tag UID.
func IsPosition(payload string) bool {
	return strings.HasPrefix(payload, positionPrefix)
}

// ParsePosition parses "pos,<lat>,<lon>,<alt>,<age_ms>".
func ParsePosition(payload string) (*Position, error) {
	parts := strings.Split(payload, ",")
	if len(parts) != 5 || parts[0] != "pos" {
		return nil, fmt.Errorf("position payload %q: %w", payload, ErrMalformedPayload)
	}

	lat, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return nil, fmt.Errorf("position latitude %q: %w", parts[1], ErrMalformedPayload)
	}
	lon, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return nil, fmt.Errorf("position longitude %q: %w", parts[2], ErrMalformedPayload)
	}
	alt, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		return nil, fmt.Errorf("position altitude %q: %w", parts[3], ErrMalformedPayload)
	}
	ageMS, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil || ageMS < 0 {
		return nil, fmt.Errorf("position age %q: %w", parts[4], ErrMalformedPayload)
	}

	return &Position{Lat: lat, Lon: lon, Alt: alt, AgeMS: ageMS}, nil
}
