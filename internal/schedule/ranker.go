// Package schedule turns raw stop schedule payloads into ordered,
// display-ready arrival entries.
package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"transitsync/internal/transit"
)

// Status classifies an arrival's punctuality.
type Status int

const (
	StatusOK Status = iota
	StatusEarly
	StatusLate
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEarly:
		return "early"
	case StatusLate:
		return "late"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Arrival is one formatted entry on a stop's arrival board.
type Arrival struct {
	RouteKey  string
	RouteName string
	Status    Status
	Time      string
}

const (
	// nearWindowMinutes bounds the window in which arrivals are shown as
	// minutes remaining and checked for lateness. Inclusive at 15.
	nearWindowMinutes = 15
	// graceMinutes keeps just-departed buses on the board as "Due".
	graceMinutes = 1

	textDue         = "Due"
	textUnavailable = "Time Unavailable"

	clockLayout = "3:04 PM"
)

// CleanAndRank flattens sched into display entries and sorts them into board
// order. When clockTime is set, arrivals are shown as clock times rather than
// minutes remaining, except for late or early buses and entries that are Due.
func CleanAndRank(sched *transit.StopSchedule, clockTime bool, now time.Time) []Arrival {
	if sched == nil {
		return nil
	}
	var arrivals []Arrival
	for _, rs := range sched.RouteSchedules {
		for _, ss := range rs.ScheduledStops {
			a, ok := buildArrival(ss, clockTime, now, graceMinutes)
			if !ok {
				continue
			}
			arrivals = append(arrivals, a)
		}
	}
	Rank(arrivals, now)
	return arrivals
}

// buildArrival formats one scheduled stop. ok is false when the entry should
// not appear on the board at all.
func buildArrival(ss transit.ScheduledStop, clockTime bool, now time.Time, grace int) (Arrival, bool) {
	if ss.Variant.Key == "" || ss.Variant.Name == "" {
		return Arrival{}, false
	}

	a := Arrival{
		RouteKey:  cleanRouteKey(ss.Variant.Key),
		RouteName: ss.Variant.Name,
		Status:    StatusOK,
	}

	if ss.IsCancelled() {
		a.Status = StatusCancelled
		return a, true
	}

	est, okEst := transit.ParseTime(ss.Times.Arrival.Estimated)
	schd, okSched := transit.ParseTime(ss.Times.Arrival.Scheduled)
	if !okEst || !okSched {
		// No usable prediction; keep the entry rather than dropping it.
		a.Time = textUnavailable
		return a, true
	}

	diffMin := wholeMinutes(est.Sub(now))
	delayMin := wholeMinutes(est.Sub(schd))

	if diffMin < -grace {
		return Arrival{}, false
	}

	switch {
	case diffMin < 0 && !clockTime:
		a.Time = fmt.Sprintf("%d min. ago", -diffMin)
	case diffMin <= nearWindowMinutes && !clockTime:
		a.Time = fmt.Sprintf("%d min.", diffMin)
	default:
		a.Time = est.Format(clockLayout)
	}

	if diffMin <= nearWindowMinutes {
		// A late or early bus is always shown as minutes remaining, even when
		// a clock time was just chosen.
		if delayMin > 0 {
			a.Status = StatusLate
			a.Time = fmt.Sprintf("%d min.", diffMin)
		} else if delayMin < 0 {
			a.Status = StatusEarly
			a.Time = fmt.Sprintf("%d min.", diffMin)
		}
	}

	if diffMin <= 0 && diffMin >= -grace {
		a.Time = textDue
	}

	return a, true
}

// wholeMinutes truncates d toward zero at minute granularity.
func wholeMinutes(d time.Duration) int {
	return int(d / time.Minute)
}

// cleanRouteKey reduces a variant key to its display route key: the part
// before the first "-", with the rapid-transit "BLUE" marker collapsed to "B".
func cleanRouteKey(key string) string {
	if i := strings.Index(key, "-"); i >= 0 {
		key = key[:i]
	}
	if strings.Contains(key, "BLUE") {
		return "B"
	}
	return key
}

// Rank sorts arrivals into board order: Due entries first, then
// minutes-remaining entries ascending by count, then clock times ascending by
// time of day with next-day correction for AM times shown during the
// afternoon or evening. Ties break on status: ok, early, late, other.
func Rank(arrivals []Arrival, now time.Time) {
	sort.SliceStable(arrivals, func(i, j int) bool {
		return less(arrivals[i], arrivals[j], now)
	})
}

func less(a, b Arrival, now time.Time) bool {
	aDue, bDue := a.Time == textDue, b.Time == textDue
	if aDue || bDue {
		return aDue && !bDue
	}

	aMin, bMin := isMinutesText(a.Time), isMinutesText(b.Time)
	if aMin != bMin {
		return aMin
	}

	if aMin {
		am, bm := minutesValue(a.Time), minutesValue(b.Time)
		if am != bm {
			return am < bm
		}
		return statusPriority(a.Status) < statusPriority(b.Status)
	}

	at, bt := clockValue(a.Time, now), clockValue(b.Time, now)
	if at != bt {
		return at < bt
	}
	return statusPriority(a.Status) < statusPriority(b.Status)
}

// isMinutesText reports whether the display text is a minutes-remaining form
// ("7 min." or "2 min. ago") rather than a clock time.
func isMinutesText(text string) bool {
	return strings.Contains(text, "min.")
}

// minutesValue extracts the leading minute count; unparsable counts rank last.
func minutesValue(text string) int {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 999
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 999
	}
	return n
}

// clockValue converts a clock-time text to minutes past midnight. During the
// afternoon and evening an AM time refers to tomorrow morning, so it is
// pushed a full day forward to sort after the remaining PM times. Unparsable
// text ranks at midnight.
func clockValue(text string, now time.Time) int {
	t, err := time.Parse(clockLayout, text)
	if err != nil {
		return 0
	}
	v := t.Hour()*60 + t.Minute()
	if now.Hour() >= 12 && t.Hour() < 12 {
		v += 24 * 60
	}
	return v
}

func statusPriority(s Status) int {
	switch s {
	case StatusOK:
		return 0
	case StatusEarly:
		return 1
	case StatusLate:
		return 2
	default:
		return 3
	}
}
