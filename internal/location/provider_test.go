package location

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitsync/internal/geo"
)

type fakeProvider struct {
	pt    *geo.Point
	err   error
	calls int
}

func (f *fakeProvider) CurrentLocation(ctx context.Context, forceRefresh bool) (*geo.Point, error) {
	f.calls++
	return f.pt, f.err
}

var fallback = geo.Point{Lat: 49.8951, Lon: -97.1384}

func testChain(providers ...Provider) *Chain {
	return &Chain{
		Providers: providers,
		Fallback:  fallback,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestResolve_FirstProviderWins(t *testing.T) {
	first := &fakeProvider{pt: &geo.Point{Lat: 49.88, Lon: -97.15}}
	second := &fakeProvider{pt: &geo.Point{Lat: 1, Lon: 1}}

	got := testChain(first, second).Resolve(context.Background(), false)

	assert.InDelta(t, 49.88, got.Lat, 1e-9)
	assert.Equal(t, 0, second.calls, "later providers are not consulted")
}

func TestResolve_SkipsFailingProvider(t *testing.T) {
	broken := &fakeProvider{err: errors.New("no fix")}
	working := &fakeProvider{pt: &geo.Point{Lat: 49.88, Lon: -97.15}}

	got := testChain(broken, working).Resolve(context.Background(), false)

	require.Equal(t, 1, broken.calls)
	assert.InDelta(t, 49.88, got.Lat, 1e-9)
}

func TestResolve_FallsBackWhenAllFail(t *testing.T) {
	got := testChain(&fakeProvider{err: errors.New("no fix")}).Resolve(context.Background(), false)
	assert.Equal(t, fallback, got)
}

func TestResolve_EmptyChainUsesFallback(t *testing.T) {
	got := testChain().Resolve(context.Background(), true)
	assert.Equal(t, fallback, got)
}

func TestStatic_ReturnsCopy(t *testing.T) {
	s := Static{Point: geo.Point{Lat: 49.9, Lon: -97.1}}

	pt, err := s.CurrentLocation(context.Background(), false)
	require.NoError(t, err)
	pt.Lat = 0

	again, err := s.CurrentLocation(context.Background(), false)
	require.NoError(t, err)
	assert.InDelta(t, 49.9, again.Lat, 1e-9)
}
