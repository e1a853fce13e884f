package transit

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"transitsync/internal/geo"
)

// timeLayout is the service's local-time timestamp format.
const timeLayout = "2006-01-02T15:04:05"

// ParseTime parses a service timestamp. ok is false when the value is absent
// or malformed.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(timeLayout, s, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatTime renders t in the service's timestamp format for query parameters.
func FormatTime(t time.Time) string {
	return t.Format(timeLayout)
}

func parseTimeOr(s string, fallback time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return fallback
}

// Variant is one pattern or branch of a route serving a stop.
type Variant struct {
	Key             string
	Name            string
	EffectiveFrom   time.Time
	EffectiveTo     time.Time
	BackgroundColor string
	BorderColor     string
	TextColor       string
}

// RouteKey returns the leading route identifier of the variant key, the part
// before the first "-".
func (v Variant) RouteKey() string {
	if i := strings.Index(v.Key, "-"); i >= 0 {
		return v.Key[:i]
	}
	return v.Key
}

// Stop is a physical boarding location with a stable external number.
type Stop struct {
	Number        int
	Name          string
	Direction     string
	Side          string
	Street        string
	CrossStreet   string
	Point         geo.Point
	Distance      float64 // meters from the query point; +Inf when unknown
	EffectiveFrom time.Time
	EffectiveTo   time.Time
	Variants      []Variant
}

// EffectiveAt reports whether the stop's service window contains t.
func (s *Stop) EffectiveAt(t time.Time) bool {
	return !t.Before(s.EffectiveFrom) && !t.After(s.EffectiveTo)
}

// StopSchedule is the raw schedule payload for one stop.
type StopSchedule struct {
	RouteSchedules []RouteSchedule `json:"route-schedules"`
}

// RouteSchedule groups the scheduled stops of one route.
type RouteSchedule struct {
	Route          ScheduleRoute   `json:"route"`
	ScheduledStops []ScheduledStop `json:"scheduled-stops"`
}

// ScheduleRoute identifies the route a schedule block belongs to.
type ScheduleRoute struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// ScheduledStop is one predicted bus at the stop.
type ScheduledStop struct {
	Cancelled string          `json:"cancelled"`
	Times     ScheduleTimes   `json:"times"`
	Variant   ScheduleVariant `json:"variant"`
}

// IsCancelled reports whether the trip has been cancelled upstream.
func (s ScheduledStop) IsCancelled() bool { return s.Cancelled == "true" }

// ScheduleVariant names the variant a scheduled stop runs under.
type ScheduleVariant struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// ScheduleTimes carries the arrival predictions for a scheduled stop.
type ScheduleTimes struct {
	Arrival ScheduleArrival `json:"arrival"`
}

// ScheduleArrival holds the scheduled and estimated arrival timestamps.
type ScheduleArrival struct {
	Scheduled string `json:"scheduled"`
	Estimated string `json:"estimated"`
}

// rawStop mirrors the wire shape of a stop element.
type rawStop struct {
	Number    *int   `json:"number"`
	Name      string `json:"name"`
	Direction string `json:"direction"`
	Side      string `json:"side"`
	Street    struct {
		Name string `json:"name"`
	} `json:"street"`
	CrossStreet struct {
		Name string `json:"name"`
	} `json:"cross-street"`
	Centre struct {
		Geographic struct {
			Latitude  string `json:"latitude"`
			Longitude string `json:"longitude"`
		} `json:"geographic"`
	} `json:"centre"`
	Distances *struct {
		Direct string `json:"direct"`
	} `json:"distances"`
	EffectiveFrom string `json:"effective-from"`
	EffectiveTo   string `json:"effective-to"`
}

// decodeStop parses one stop element. ok is false when the element is
// malformed or has no number; callers skip such elements rather than failing
// the batch.
func decodeStop(raw json.RawMessage, now time.Time, shortNames bool) (Stop, bool) {
	var rs rawStop
	if err := json.Unmarshal(raw, &rs); err != nil || rs.Number == nil {
		return Stop{}, false
	}

	name := rs.Name
	if shortNames {
		// Compact names concatenate cross streets as "A@B"; pad for display.
		name = strings.ReplaceAll(name, "@", " @ ")
	}

	distance := math.Inf(1)
	if rs.Distances != nil {
		if d, err := strconv.ParseFloat(rs.Distances.Direct, 64); err == nil {
			distance = d
		}
	}

	lat, _ := strconv.ParseFloat(rs.Centre.Geographic.Latitude, 64)
	lon, _ := strconv.ParseFloat(rs.Centre.Geographic.Longitude, 64)

	return Stop{
		Number:        *rs.Number,
		Name:          name,
		Direction:     rs.Direction,
		Side:          rs.Side,
		Street:        rs.Street.Name,
		CrossStreet:   rs.CrossStreet.Name,
		Point:         geo.Point{Lat: lat, Lon: lon},
		Distance:      distance,
		EffectiveFrom: parseTimeOr(rs.EffectiveFrom, now),
		EffectiveTo:   parseTimeOr(rs.EffectiveTo, now),
	}, true
}

// rawRoute mirrors the wire shape of a routes.json element, carrying the
// badge colors that the naive variants endpoint omits.
type rawRoute struct {
	Key             json.Number `json:"key"`
	Name            string      `json:"name"`
	BackgroundColor string      `json:"background-color"`
	BorderColor     string      `json:"border-color"`
	TextColor       string      `json:"text-color"`
	EffectiveFrom   string      `json:"effective-from"`
	EffectiveTo     string      `json:"effective-to"`
	Variants        []struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	} `json:"variants"`
}
