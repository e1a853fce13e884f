// Package location resolves the caller's current position, falling back to a
// configured default so stop loading always has a point to work from.
package location

import (
	"context"
	"log/slog"
	"time"

	"transitsync/internal/geo"
)

// Provider yields the current position. forceRefresh asks the provider to
// bypass any internal caching it keeps.
type Provider interface {
	CurrentLocation(ctx context.Context, forceRefresh bool) (*geo.Point, error)
}

// Static always reports a fixed point.
type Static struct {
	Point geo.Point
}

func (s Static) CurrentLocation(ctx context.Context, forceRefresh bool) (*geo.Point, error) {
	p := s.Point
	return &p, nil
}

const defaultResolveTimeout = 15 * time.Second

// Chain tries each provider in order under a shared timeout and falls back to
// a fixed point when none answers. Resolve never fails: the worst case is the
// fallback.
type Chain struct {
	Providers []Provider
	Fallback  geo.Point
	Timeout   time.Duration
	Logger    *slog.Logger
}

// Resolve returns the first position any provider reports, or the fallback.
func (c *Chain) Resolve(ctx context.Context, forceRefresh bool) geo.Point {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultResolveTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for _, p := range c.Providers {
		pt, err := p.CurrentLocation(ctx, forceRefresh)
		if err != nil {
			if c.Logger != nil {
				c.Logger.Warn("location provider failed", "error", err)
			}
			continue
		}
		if pt != nil {
			return *pt
		}
	}
	if c.Logger != nil {
		c.Logger.Info("no location provider answered, using fallback",
			"lat", c.Fallback.Lat, "lon", c.Fallback.Lon)
	}
	return c.Fallback
}
