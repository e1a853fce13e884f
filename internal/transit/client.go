package transit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"transitsync/internal/geo"
	"transitsync/internal/ratelimit"
)

const (
	// NearbyRadiusMeters is the search radius for nearby-stop queries.
	NearbyRadiusMeters = 500

	maxNearbyStops = 25
	maxSearchStops = 15

	bulkVariantWindow   = 24 * time.Hour
	scheduleLookBehind  = 5 * time.Minute
	scheduleLookAhead   = 12 * time.Hour
)

// Client is an HTTP client for the transit service REST API. Every request is
// gated by the shared rate limiter before it is issued.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewClient creates a transit API client.
func NewClient(baseURL, apiKey string, limiter *ratelimit.Limiter, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
	}
}

// NearbyStops fetches the stops around pt, newest service window only, sorted
// by distance and capped at 25. Malformed elements are skipped, not fatal.
func (c *Client) NearbyStops(ctx context.Context, pt geo.Point, shortNames bool) ([]Stop, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(pt.Lat, 'f', 6, 64))
	params.Set("lon", strconv.FormatFloat(pt.Lon, 'f', 6, 64))
	params.Set("distance", strconv.Itoa(NearbyRadiusMeters))
	params.Set("usage", usage(shortNames))

	body, err := c.doGet(ctx, "stops.json", params)
	if err != nil {
		return nil, err
	}

	now := c.now()
	stops, err := decodeStops(body, now, shortNames)
	if err != nil {
		return nil, err
	}

	effective := stops[:0]
	for _, s := range stops {
		if s.EffectiveAt(now) {
			effective = append(effective, s)
		}
	}
	sort.SliceStable(effective, func(i, j int) bool {
		return effective[i].Distance < effective[j].Distance
	})
	if len(effective) > maxNearbyStops {
		effective = effective[:maxNearbyStops]
	}
	return effective, nil
}

// SearchStops fetches stops matching query, capped at 15. Unlike NearbyStops,
// results are neither distance-sorted nor filtered by service window.
func (c *Client) SearchStops(ctx context.Context, query string, shortNames bool) ([]Stop, error) {
	params := url.Values{}
	params.Set("usage", usage(shortNames))

	body, err := c.doGet(ctx, fmt.Sprintf("stops:%s.json", url.PathEscape(query)), params)
	if err != nil {
		return nil, err
	}

	stops, err := decodeStops(body, c.now(), shortNames)
	if err != nil {
		return nil, err
	}
	if len(stops) > maxSearchStops {
		stops = stops[:maxSearchStops]
	}
	return stops, nil
}

// Stop fetches a single stop by number.
func (c *Client) Stop(ctx context.Context, number int) (*Stop, error) {
	params := url.Values{}
	params.Set("usage", usage(false))

	body, err := c.doGet(ctx, fmt.Sprintf("stops/%d.json", number), params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Stop json.RawMessage `json:"stop"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(payload.Stop) == 0 {
		return nil, &ParseError{Detail: `missing "stop" field`}
	}
	stop, ok := decodeStop(payload.Stop, c.now(), false)
	if !ok {
		return nil, &ParseError{Detail: fmt.Sprintf("malformed stop %d", number)}
	}
	return &stop, nil
}

// VariantsForStop fetches the variants serving a stop via the routes endpoint,
// which carries per-route badge colors that the variants endpoint omits. Each
// route's variants are flattened and stamped with the parent route's colors
// and effective window.
func (c *Client) VariantsForStop(ctx context.Context, number int) ([]Variant, error) {
	params := url.Values{}
	params.Set("stop", strconv.Itoa(number))
	params.Set("usage", usage(false))

	body, err := c.doGet(ctx, "routes.json", params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Routes []rawRoute `json:"routes"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if payload.Routes == nil {
		return nil, &ParseError{Detail: `missing "routes" field`}
	}

	now := c.now()
	var variants []Variant
	for _, route := range payload.Routes {
		for _, v := range route.Variants {
			variants = append(variants, Variant{
				Key:             v.Key,
				Name:            v.Name,
				EffectiveFrom:   parseTimeOr(route.EffectiveFrom, now),
				EffectiveTo:     parseTimeOr(route.EffectiveTo, now),
				BackgroundColor: route.BackgroundColor,
				BorderColor:     route.BorderColor,
				TextColor:       route.TextColor,
			})
		}
	}
	return variants, nil
}

// BulkVariants fetches every variant serving the given stops over the next 24
// hours in one call. Used for cache validation, not display.
func (c *Client) BulkVariants(ctx context.Context, numbers []int) ([]Variant, error) {
	now := c.now()
	ids := make([]string, len(numbers))
	for i, n := range numbers {
		ids[i] = strconv.Itoa(n)
	}

	params := url.Values{}
	params.Set("stops", strings.Join(ids, ","))
	params.Set("start", FormatTime(now))
	params.Set("end", FormatTime(now.Add(bulkVariantWindow)))
	params.Set("usage", usage(false))

	body, err := c.doGet(ctx, "variants.json", params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Variants []struct {
			Key  string `json:"key"`
			Name string `json:"name"`
		} `json:"variants"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &BatchError{Detail: err.Error()}
	}
	if payload.Variants == nil {
		return nil, &BatchError{Detail: `missing "variants" field`}
	}

	variants := make([]Variant, len(payload.Variants))
	for i, v := range payload.Variants {
		variants[i] = Variant{Key: v.Key, Name: v.Name}
	}
	return variants, nil
}

// StopSchedule fetches the raw schedule for a stop, from five minutes ago to
// twelve hours ahead.
func (c *Client) StopSchedule(ctx context.Context, number int) (*StopSchedule, error) {
	now := c.now()
	params := url.Values{}
	params.Set("start", FormatTime(now.Add(-scheduleLookBehind)))
	params.Set("end", FormatTime(now.Add(scheduleLookAhead)))
	params.Set("usage", usage(false))

	body, err := c.doGet(ctx, fmt.Sprintf("stops/%d/schedule.json", number), params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		StopSchedule *StopSchedule `json:"stop-schedule"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if payload.StopSchedule == nil {
		return nil, &ParseError{Detail: `missing "stop-schedule" field`}
	}
	return payload.StopSchedule, nil
}

// decodeStops parses a "stops" array element by element, skipping malformed
// entries so a single bad stop never fails the whole batch.
func decodeStops(body []byte, now time.Time, shortNames bool) ([]Stop, error) {
	var payload struct {
		Stops []json.RawMessage `json:"stops"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if payload.Stops == nil {
		return nil, &ParseError{Detail: `missing "stops" field`}
	}

	stops := make([]Stop, 0, len(payload.Stops))
	for _, raw := range payload.Stops {
		stop, ok := decodeStop(raw, now, shortNames)
		if !ok {
			continue
		}
		stops = append(stops, stop)
	}
	return stops, nil
}

func (c *Client) doGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api-key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s?%s", c.baseURL, path, params.Encode()), nil)
	if err != nil {
		return nil, ErrInvalidURL
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &NetworkError{Cause: fmt.Errorf("%w: HTTP %d from %s", ErrServiceDown, resp.StatusCode, path)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &NetworkError{Cause: fmt.Errorf("HTTP %d from %s", resp.StatusCode, path)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Cause: err}
	}
	if len(body) == 0 {
		return nil, ErrInvalidData
	}
	return body, nil
}

func usage(shortNames bool) string {
	if shortNames {
		return "short"
	}
	return "long"
}
