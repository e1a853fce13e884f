package alerts

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

const defaultPollInterval = 60 * time.Second

// Fetcher polls a GTFS-realtime alerts feed and publishes the parsed set to
// the store.
type Fetcher struct {
	feedURL  string
	interval time.Duration
	store    *Store
	client   *http.Client
	logger   *slog.Logger
}

func NewFetcher(feedURL string, interval time.Duration, store *Store, logger *slog.Logger) *Fetcher {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Fetcher{
		feedURL:  feedURL,
		interval: interval,
		store:    store,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}
}

// Run fetches once immediately, then polls until ctx is cancelled.
func (f *Fetcher) Run(ctx context.Context) {
	f.fetch(ctx)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.fetch(ctx)
		case <-ctx.Done():
			f.logger.Info("alert polling stopped")
			return
		}
	}
}

func (f *Fetcher) fetch(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.feedURL, nil)
	if err != nil {
		f.logger.Error("building alerts request", "error", err)
		return
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("alerts fetch failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn("alerts feed returned non-200", "status", resp.StatusCode)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		f.logger.Warn("reading alerts body", "error", err)
		return
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		f.logger.Error("parsing alerts protobuf", "error", err)
		return
	}

	parsed := decodeFeed(feed)
	f.store.Replace(parsed)
	f.logger.Info("service alerts updated", "count", len(parsed))
}

func decodeFeed(feed *gtfs.FeedMessage) []Alert {
	var alerts []Alert
	for _, entity := range feed.GetEntity() {
		a := entity.GetAlert()
		if a == nil {
			continue
		}

		alert := Alert{
			ID:          entity.GetId(),
			Header:      translated(a.GetHeaderText()),
			Description: translated(a.GetDescriptionText()),
			Effect:      a.GetEffect().String(),
			Cause:       a.GetCause().String(),
		}

		routeSeen := make(map[string]bool)
		stopSeen := make(map[int]bool)
		for _, ie := range a.GetInformedEntity() {
			if key := ie.GetRouteId(); key != "" && !routeSeen[key] {
				alert.RouteKeys = append(alert.RouteKeys, key)
				routeSeen[key] = true
			}
			if sid := ie.GetStopId(); sid != "" {
				// Stop IDs in the feed are stop numbers; skip anything else.
				n, err := strconv.Atoi(sid)
				if err != nil || stopSeen[n] {
					continue
				}
				alert.StopNumbers = append(alert.StopNumbers, n)
				stopSeen[n] = true
			}
		}

		alerts = append(alerts, alert)
	}
	return alerts
}

func translated(ts *gtfs.TranslatedString) string {
	if ts == nil {
		return ""
	}
	for _, t := range ts.GetTranslation() {
		if text := t.GetText(); text != "" {
			return text
		}
	}
	return ""
}
