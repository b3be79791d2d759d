package geocode

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"googlemaps.github.io/maps"
)

type stubMaps struct {
	results []maps.GeocodingResult
	err     error
	calls   int
}

func (s *stubMaps) Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error) {
	s.calls++
	return s.results, s.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGoogleResolve(t *testing.T) {
	t.Parallel()

	hit := maps.GeocodingResult{}
	hit.Geometry.Location = maps.LatLng{Lat: 41.6488, Lng: -0.8891}

	tests := []struct {
		name    string
		address string
		stub    *stubMaps
		wantOK  bool
		wantLat float64
		calls   int
	}{
		{name: "first result", address: "Plaza del Pilar, Zaragoza", stub: &stubMaps{results: []maps.GeocodingResult{hit}}, wantOK: true, wantLat: 41.6488, calls: 1},
		{name: "no results", address: "nowhere", stub: &stubMaps{}, calls: 1},
		{name: "api error", address: "Calle 1", stub: &stubMaps{err: errors.New("OVER_QUERY_LIMIT")}, calls: 1},
		{name: "blank address skips the api", address: "   ", stub: &stubMaps{}, calls: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := newGoogle(tt.stub, time.Second, quietLogger())

			lat, _, ok := g.Resolve(context.Background(), tt.address)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.wantLat, lat, 1e-9)
			assert.Equal(t, tt.calls, tt.stub.calls)
		})
	}
}

func TestNewGoogleRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewGoogle("", time.Second, quietLogger())
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	t.Parallel()

	_, _, ok := Nop{}.Resolve(context.Background(), "Calle 1")
	assert.False(t, ok)
}
