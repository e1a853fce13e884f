package syncstore

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"transitsync/internal/transit"
)

// enrich attaches variants to every stop in the batch that has none,
// publishing each stop as it completes, then validates the persistent cache
// against a bulk fetch. Individual failures publish the stop unenriched; they
// never fail the batch.
func (s *Store) enrich(ctx context.Context, stops []transit.Stop, publish func(transit.Stop)) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxEnrichInFlight)

	for i := range stops {
		stop := stops[i]
		if len(stop.Variants) > 0 {
			continue
		}
		g.Go(func() error {
			variants, err := s.variantsForStop(gctx, stop.Number)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				s.logger.Warn("variant enrichment failed", "stop", stop.Number, "error", err)
				publish(stop)
				return nil
			}
			stop.Variants = variants
			publish(stop)
			return nil
		})
	}
	g.Wait()

	if ctx.Err() != nil {
		return
	}
	s.validateCache(ctx, stops)
}

// variantsForStop consults the persistent cache before the API, writing fresh
// results through on a miss. Service markers are filtered before anything is
// cached or returned.
func (s *Store) variantsForStop(ctx context.Context, number int) ([]transit.Variant, error) {
	cached, err := s.cache.Variants(ctx, number)
	if err != nil {
		s.logger.Warn("variant cache read failed", "stop", number, "error", err)
	} else if len(cached) > 0 {
		return cached, nil
	}

	variants, err := s.api.VariantsForStop(ctx, number)
	if err != nil {
		return nil, err
	}
	variants = filterServiceVariants(variants)
	if len(variants) > 0 {
		if err := s.cache.PutVariants(ctx, number, variants); err != nil {
			s.logger.Warn("variant cache write failed", "stop", number, "error", err)
		}
	}
	return variants, nil
}

// filterServiceVariants drops service, work and information markers, which
// are not boardable routes.
func filterServiceVariants(variants []transit.Variant) []transit.Variant {
	var kept []transit.Variant
	for _, v := range variants {
		key := v.RouteKey()
		if strings.HasPrefix(key, "S") || strings.HasPrefix(key, "W") || strings.HasPrefix(key, "I") {
			continue
		}
		kept = append(kept, v)
	}
	return kept
}

// validateCache compares each stop's cached variants against a fresh bulk
// fetch over the batch. The first cached route key missing from the bulk set
// means the cache can no longer be trusted, so the whole thing is dropped at
// once and scanning stops. Failures here are logged, never surfaced.
func (s *Store) validateCache(ctx context.Context, stops []transit.Stop) {
	if len(stops) == 0 {
		return
	}
	numbers := make([]int, len(stops))
	for i, st := range stops {
		numbers[i] = st.Number
	}

	fresh, err := s.api.BulkVariants(ctx, numbers)
	if err != nil {
		s.logger.Warn("variant cache validation fetch failed", "error", err)
		return
	}
	current := make(map[string]bool, len(fresh))
	for _, v := range fresh {
		current[v.RouteKey()] = true
	}

	for _, st := range stops {
		cached, err := s.cache.Variants(ctx, st.Number)
		if err != nil {
			s.logger.Warn("variant cache read failed", "stop", st.Number, "error", err)
			continue
		}
		for _, v := range cached {
			if current[v.RouteKey()] {
				continue
			}
			s.logger.Info("stale variant cache detected, clearing",
				"stop", st.Number, "route", v.RouteKey())
			if err := s.cache.ClearAll(ctx); err != nil {
				s.logger.Warn("variant cache clear failed", "error", err)
			}
			return
		}
	}
}
