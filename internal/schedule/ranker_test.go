package schedule

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitsync/internal/transit"
)

// noon is a fixed reference time; individual tests pick their own when the
// hour matters.
var noon = time.Date(2024, 3, 14, 10, 0, 0, 0, time.Local)

func apiTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05")
}

func entry(key, name string, scheduled, estimated time.Time) transit.ScheduledStop {
	return transit.ScheduledStop{
		Variant: transit.ScheduleVariant{Key: key, Name: name},
		Times: transit.ScheduleTimes{
			Arrival: transit.ScheduleArrival{
				Scheduled: apiTime(scheduled),
				Estimated: apiTime(estimated),
			},
		},
	}
}

func scheduleOf(stops ...transit.ScheduledStop) *transit.StopSchedule {
	return &transit.StopSchedule{
		RouteSchedules: []transit.RouteSchedule{
			{Route: transit.ScheduleRoute{Key: "16", Name: "Selkirk-Osborne"}, ScheduledStops: stops},
		},
	}
}

func TestCleanAndRank_DuePrecedence(t *testing.T) {
	now := noon
	due := entry("16-1-A", "Selkirk", now, now)
	soon := entry("18-1-B", "North Main", now.Add(3*time.Minute), now.Add(3*time.Minute))
	later := entry("21-1-C", "Portage Express", now.Add(75*time.Minute), now.Add(75*time.Minute))

	inputs := [][]transit.ScheduledStop{
		{due, soon, later},
		{later, due, soon},
		{soon, later, due},
	}
	for i, in := range inputs {
		got := CleanAndRank(scheduleOf(in...), false, now)
		require.Len(t, got, 3, "input order %d", i)
		assert.Equal(t, "Due", got[0].Time)
		assert.Equal(t, "3 min.", got[1].Time)
		assert.Equal(t, "11:15 AM", got[2].Time)
	}
}

func TestCleanAndRank_CrossMidnight(t *testing.T) {
	now := time.Date(2024, 3, 14, 23, 0, 0, 0, time.Local)
	pm := entry("16-1-A", "Selkirk", now.Add(30*time.Minute), now.Add(30*time.Minute))
	am := entry("18-1-B", "North Main", now.Add(75*time.Minute), now.Add(75*time.Minute))

	got := CleanAndRank(scheduleOf(am, pm), false, now)
	require.Len(t, got, 2)
	assert.Equal(t, "11:30 PM", got[0].Time, "tonight's PM time sorts first")
	assert.Equal(t, "12:15 AM", got[1].Time, "tomorrow's AM time sorts after")
}

func TestCleanAndRank_GraceDrop(t *testing.T) {
	now := noon
	gone := entry("16-1-A", "Selkirk", now.Add(-5*time.Minute), now.Add(-5*time.Minute))
	kept := entry("18-1-B", "North Main", now.Add(2*time.Minute), now.Add(2*time.Minute))

	got := CleanAndRank(scheduleOf(gone, kept), false, now)
	require.Len(t, got, 1)
	assert.Equal(t, "18", got[0].RouteKey)
}

func TestCleanAndRank_BlueCollapse(t *testing.T) {
	now := noon
	blue := entry("BLUE-EXPRESS-1", "Blue Express", now.Add(5*time.Minute), now.Add(5*time.Minute))

	got := CleanAndRank(scheduleOf(blue), false, now)
	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].RouteKey)
}

func TestCleanAndRank_LateForcesMinutesForm(t *testing.T) {
	now := noon
	// Running five minutes behind schedule, ten minutes out.
	late := entry("16-1-A", "Selkirk", now.Add(5*time.Minute), now.Add(10*time.Minute))

	got := CleanAndRank(scheduleOf(late), true, now)
	require.Len(t, got, 1)
	assert.Equal(t, StatusLate, got[0].Status)
	assert.Equal(t, "10 min.", got[0].Time, "clock mode must not hide a late bus's countdown")
}

func TestCleanAndRank_EarlyForcesMinutesForm(t *testing.T) {
	now := noon
	early := entry("16-1-A", "Selkirk", now.Add(12*time.Minute), now.Add(10*time.Minute))

	got := CleanAndRank(scheduleOf(early), true, now)
	require.Len(t, got, 1)
	assert.Equal(t, StatusEarly, got[0].Status)
	assert.Equal(t, "10 min.", got[0].Time)
}

func TestCleanAndRank_NearWindowBoundaryInclusive(t *testing.T) {
	now := noon
	// Exactly 15 minutes out and late: still inside the near window.
	edge := entry("16-1-A", "Selkirk", now.Add(13*time.Minute), now.Add(15*time.Minute))

	got := CleanAndRank(scheduleOf(edge), false, now)
	require.Len(t, got, 1)
	assert.Equal(t, StatusLate, got[0].Status)
	assert.Equal(t, "15 min.", got[0].Time)
}

func TestCleanAndRank_Cancelled(t *testing.T) {
	now := noon
	cancelled := entry("16-1-A", "Selkirk", now.Add(5*time.Minute), now.Add(5*time.Minute))
	cancelled.Cancelled = "true"

	got := CleanAndRank(scheduleOf(cancelled), false, now)
	require.Len(t, got, 1)
	assert.Equal(t, StatusCancelled, got[0].Status)
	assert.Empty(t, got[0].Time)
}

func TestCleanAndRank_TimeUnavailable(t *testing.T) {
	now := noon
	missing := transit.ScheduledStop{
		Variant: transit.ScheduleVariant{Key: "16-1-A", Name: "Selkirk"},
	}

	got := CleanAndRank(scheduleOf(missing), false, now)
	require.Len(t, got, 1)
	assert.Equal(t, "Time Unavailable", got[0].Time)
	assert.Equal(t, StatusOK, got[0].Status)
}

func TestCleanAndRank_SkipsEntriesWithoutVariant(t *testing.T) {
	now := noon
	anonymous := entry("", "", now.Add(5*time.Minute), now.Add(5*time.Minute))
	named := entry("16-1-A", "Selkirk", now.Add(5*time.Minute), now.Add(5*time.Minute))

	got := CleanAndRank(scheduleOf(anonymous, named), false, now)
	require.Len(t, got, 1)
	assert.Equal(t, "16", got[0].RouteKey)
}

func TestBuildArrival_MinutesAgoWithWiderGrace(t *testing.T) {
	now := noon
	departed := entry("16-1-A", "Selkirk", now.Add(-3*time.Minute), now.Add(-3*time.Minute))

	a, ok := buildArrival(departed, false, now, 5)
	require.True(t, ok)
	assert.Equal(t, "3 min. ago", a.Time)
}

// randomArrival generates arrivals across every display-text family so the
// comparator is exercised on all cross-family pairs.
func randomArrival(r *rand.Rand) Arrival {
	statuses := []Status{StatusOK, StatusEarly, StatusLate, StatusCancelled}
	a := Arrival{
		RouteKey: fmt.Sprintf("%d", r.Intn(99)+1),
		Status:   statuses[r.Intn(len(statuses))],
	}
	switch r.Intn(5) {
	case 0:
		a.Time = "Due"
	case 1:
		a.Time = fmt.Sprintf("%d min.", r.Intn(16))
	case 2:
		a.Time = fmt.Sprintf("%d min. ago", r.Intn(5)+1)
	case 3:
		hour := r.Intn(12) + 1
		meridiem := "AM"
		if r.Intn(2) == 0 {
			meridiem = "PM"
		}
		a.Time = fmt.Sprintf("%d:%02d %s", hour, r.Intn(60), meridiem)
	case 4:
		a.Time = "Time Unavailable"
	}
	return a
}

func TestLess_IsStrictWeakOrder(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	now := time.Date(2024, 3, 14, 17, 0, 0, 0, time.Local)

	for trial := 0; trial < 500; trial++ {
		a, b, c := randomArrival(r), randomArrival(r), randomArrival(r)

		assert.False(t, less(a, a, now), "irreflexive: %+v", a)
		if less(a, b, now) {
			assert.False(t, less(b, a, now), "antisymmetric: %+v vs %+v", a, b)
		}
		if less(a, b, now) && less(b, c, now) {
			assert.True(t, less(a, c, now), "transitive: %+v < %+v < %+v", a, b, c)
		}
	}
}

func TestRank_SortedOutputHasNoInversions(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	now := time.Date(2024, 3, 14, 17, 0, 0, 0, time.Local)

	for trial := 0; trial < 50; trial++ {
		arrivals := make([]Arrival, 20)
		for i := range arrivals {
			arrivals[i] = randomArrival(r)
		}
		Rank(arrivals, now)
		for i := 0; i < len(arrivals)-1; i++ {
			assert.False(t, less(arrivals[i+1], arrivals[i], now),
				"inversion at %d: %+v before %+v", i, arrivals[i], arrivals[i+1])
		}
	}
}

func TestRank_MinutesBeforeClockTimes(t *testing.T) {
	now := noon
	arrivals := []Arrival{
		{Time: "11:15 AM"},
		{Time: "14 min."},
		{Time: "2 min."},
	}
	Rank(arrivals, now)
	assert.Equal(t, "2 min.", arrivals[0].Time)
	assert.Equal(t, "14 min.", arrivals[1].Time)
	assert.Equal(t, "11:15 AM", arrivals[2].Time)
}

func TestRank_StatusBreaksTies(t *testing.T) {
	now := noon
	arrivals := []Arrival{
		{Time: "5 min.", Status: StatusLate},
		{Time: "5 min.", Status: StatusOK},
		{Time: "5 min.", Status: StatusEarly},
	}
	Rank(arrivals, now)
	assert.Equal(t, StatusOK, arrivals[0].Status)
	assert.Equal(t, StatusEarly, arrivals[1].Status)
	assert.Equal(t, StatusLate, arrivals[2].Status)
}
