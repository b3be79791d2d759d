// Package geocode resolves delivery addresses to coordinates. Resolution is
// best-effort: failures are logged and reported as not found.
package geocode

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"googlemaps.github.io/maps"
)

type Geocoder interface {
	Resolve(ctx context.Context, address string) (lat, lng float64, ok bool)
}

// Nop never resolves an address.
type Nop struct{}

func (Nop) Resolve(context.Context, string) (float64, float64, bool) { return 0, 0, false }

type mapsAPI interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// Google resolves addresses with the Google Maps Geocoding API and takes the
// first result.
type Google struct {
	api     mapsAPI
	timeout time.Duration
	log     *slog.Logger
}

func NewGoogle(apiKey string, timeout time.Duration, logger *slog.Logger) (*Google, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("geocode: google maps api key is required")
	}
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("geocode: create maps client: %w", err)
	}
	return newGoogle(c, timeout, logger), nil
}

func newGoogle(api mapsAPI, timeout time.Duration, logger *slog.Logger) *Google {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Google{api: api, timeout: timeout, log: logger.With("component", "geocode")}
}

func (g *Google) Resolve(ctx context.Context, address string) (float64, float64, bool) {
	address = strings.TrimSpace(address)
	if address == "" {
		return 0, 0, false
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	results, err := g.api.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		g.log.Error("geocoding failed", "address", address, "error", err)
		return 0, 0, false
	}
	if len(results) == 0 {
		g.log.Warn("address not found", "address", address)
		return 0, 0, false
	}

	loc := results[0].Geometry.Location
	return loc.Lat, loc.Lng, true
}
