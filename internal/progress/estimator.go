package progress

import (
	"math"
	"strings"
	"time"
)

var (
	dateLayouts = []string{"2006-01-02", "2006.01.02", "2006/01/02", "20060102"}
	timeLayouts = []string{"15:04:05", "15:04"}
)

// Estimator projects a runner's distance at a given instant from the last
// recorded passage and the runner's average pace.
type Estimator struct {
	Location       *time.Location
	DefaultPaceSec float64
}

func NewEstimator(loc *time.Location) *Estimator {
	if loc == nil {
		loc = time.UTC
	}
	return &Estimator{Location: loc, DefaultPaceSec: DefaultPaceSec}
}

func (e *Estimator) Estimate(rec Record, now time.Time) Progress {
	last, ok := rec.Last()
	if !ok {
		return Progress{Status: StatusWaiting}
	}

	out := Progress{
		Status:         StatusRunning,
		LastDistanceKm: last.DistanceKm,
		LastCheckpoint: last.Checkpoint,
		EstimatedKm:    last.DistanceKm,
	}
	if rec.Finished() {
		out.Status = StatusFinished
		return out
	}

	date := last.Date
	if date == "" {
		date = rec.EventDate
	}
	elapsed := 0.0
	if at, ok := e.passageTime(date, last.TimeOfDay); ok {
		elapsed = math.Max(now.Sub(at).Seconds(), 0)
	}

	pace, ok := ParsePace(rec.Pace)
	if !ok {
		pace = e.defaultPace()
	}

	total := rec.CourseDistanceKm
	if total <= 0 {
		total = DefaultCourseKm
	}
	// a passage recorded beyond the nominal course length is never pulled back
	total = math.Max(total, last.DistanceKm)

	out.EstimatedKm = math.Min(last.DistanceKm+elapsed/pace, total)
	return out
}

func (e *Estimator) defaultPace() float64 {
	if e.DefaultPaceSec > 0 {
		return e.DefaultPaceSec
	}
	return DefaultPaceSec
}

// passageTime combines the event date with a wall-clock time of day in the
// event's zone. Passages are assumed to fall on the event date.
func (e *Estimator) passageTime(date, clock string) (time.Time, bool) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return time.Time{}, false
	}
	if i := strings.IndexByte(date, 'T'); i >= 0 {
		date = date[:i]
	}
	if i := strings.IndexByte(clock, '.'); i >= 0 {
		clock = clock[:i]
	}

	loc := e.Location
	if loc == nil {
		loc = time.UTC
	}

	var day time.Time
	parsed := false
	for _, layout := range dateLayouts {
		if d, err := time.ParseInLocation(layout, date, loc); err == nil {
			day, parsed = d, true
			break
		}
	}
	if !parsed {
		return time.Time{}, false
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, clock); err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), true
		}
	}
	return time.Time{}, false
}
