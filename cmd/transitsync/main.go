package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transitsync/internal/alerts"
	"transitsync/internal/config"
	"transitsync/internal/geo"
	"transitsync/internal/location"
	"transitsync/internal/ratelimit"
	"transitsync/internal/schedule"
	"transitsync/internal/storage"
	"transitsync/internal/syncstore"
	"transitsync/internal/transit"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	configPath := flag.String("config", "config.yml", "Path to the YAML config file")
	lat := flag.Float64("lat", 0, "Latitude to load stops around (overrides the fallback)")
	lon := flag.Float64("lon", 0, "Longitude to load stops around")
	search := flag.String("search", "", "Search for stops matching this text instead of loading nearby")
	stopNumber := flag.Int("schedule", 0, "Print the cleaned schedule for this stop number and exit")
	clockTimes := flag.Bool("clock", false, "Show scheduled clock times instead of minutes remaining")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("loading config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	db, err := storage.Open(cfg.Cache.Path, logger)
	if err != nil {
		logger.Error("opening variant cache", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	limiter := ratelimit.New(cfg.Rate.QuotaPerMinute, cfg.Rate.MinInterval())
	client := transit.NewClient(cfg.API.BaseURL, cfg.API.Key, limiter, logger)

	if *stopNumber != 0 {
		if err := printSchedule(ctx, client, *stopNumber, *clockTimes); err != nil {
			logger.Error("loading schedule", "stop", *stopNumber, "error", err)
			os.Exit(1)
		}
		return
	}

	if cfg.Alerts.FeedURL != "" {
		alertStore := alerts.NewStore()
		fetcher := alerts.NewFetcher(cfg.Alerts.FeedURL, cfg.Alerts.Interval(), alertStore, logger)
		go fetcher.Run(ctx)
	}

	store := syncstore.New(client, db, logger)
	defer store.Close()

	snapshots, unsubscribe := store.Subscribe()
	defer unsubscribe()

	if *search != "" {
		store.SearchForStops(*search, cfg.API.ShortNames())
		waitAndPrint(ctx, snapshots, printSearchResults)
		return
	}

	chain := &location.Chain{
		Fallback: geo.Point{Lat: cfg.Fallback.Lat, Lon: cfg.Fallback.Lon},
		Logger:   logger,
	}
	pt := chain.Resolve(ctx, false)
	if *lat != 0 || *lon != 0 {
		pt = geo.Point{Lat: *lat, Lon: *lon}
	}

	store.LoadStops(pt, false)
	waitAndPrint(ctx, snapshots, printNearbyStops)
}

// waitAndPrint consumes snapshots until the store goes idle with data or an
// error, then renders the final state.
func waitAndPrint(ctx context.Context, snapshots <-chan syncstore.Snapshot, render func(syncstore.Snapshot)) {
	idle := time.NewTimer(30 * time.Second)
	defer idle.Stop()

	var last syncstore.Snapshot
	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				render(last)
				return
			}
			last = snap
			if !snap.Loading && !snap.Searching {
				// Give in-flight enrichment a moment to land.
				idle.Reset(2 * time.Second)
			}
		case <-idle.C:
			render(last)
			return
		case <-ctx.Done():
			return
		}
	}
}

func printNearbyStops(snap syncstore.Snapshot) {
	if snap.Err != nil && len(snap.Stops) == 0 {
		fmt.Fprintln(os.Stderr, "error:", snap.Err)
		return
	}
	printStops(snap.Stops)
}

func printSearchResults(snap syncstore.Snapshot) {
	if snap.SearchErr != nil && len(snap.SearchResults) == 0 {
		fmt.Fprintln(os.Stderr, "error:", snap.SearchErr)
		return
	}
	printStops(snap.SearchResults)
}

func printStops(stops []transit.Stop) {
	for _, st := range stops {
		fmt.Printf("#%d  %s\n", st.Number, st.Name)
		for _, v := range st.Variants {
			fmt.Printf("    %-10s %s\n", v.Key, v.Name)
		}
	}
}

func printSchedule(ctx context.Context, client *transit.Client, number int, clockTimes bool) error {
	sched, err := client.StopSchedule(ctx, number)
	if err != nil {
		return err
	}
	arrivals := schedule.CleanAndRank(sched, clockTimes, time.Now())
	if len(arrivals) == 0 {
		fmt.Println("no upcoming buses")
		return nil
	}
	for _, a := range arrivals {
		fmt.Printf("%-4s %-30s %s\n", a.RouteKey, a.RouteName, a.Time)
	}
	return nil
}
