package tracking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"backend-runcheer/internal/course"
	"backend-runcheer/internal/markers"
	"backend-runcheer/internal/progress"
)

var (
	ErrNoBibs          = errors.New("no bibs to track")
	ErrAlreadyTracking = errors.New("already tracking")
	ErrNotTracking     = errors.New("not tracking")
	ErrClosed          = errors.New("tracking session closed")
)

type State string

const (
	StateIdle     State = "idle"
	StateTracking State = "tracking"
)

// Fetcher loads the latest record of one runner.
type Fetcher interface {
	FetchRunner(ctx context.Context, eventID int, bib string) (progress.Record, error)
}

// Target is what a session tracks between Start and Stop.
type Target struct {
	EventID  int
	Bibs     []string
	Course   *course.Course
	Profiles []markers.Profile
}

// CycleReport summarizes one completed refresh cycle.
type CycleReport struct {
	EventID  int           `json:"event_id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Fetched  int           `json:"fetched"`
	Failed   int           `json:"failed"`
}

type Status struct {
	State          State         `json:"state"`
	EventID        int           `json:"event_id,omitempty"`
	Bibs           []string      `json:"bibs"`
	HasCourse      bool          `json:"has_course"`
	LastRefresh    *time.Time    `json:"last_refresh,omitempty"`
	NextRefreshSec int           `json:"next_refresh_sec"`
	Refreshing     bool          `json:"refreshing"`
	Cycles         int           `json:"cycles"`
	Failures       int           `json:"failures"`
	Finished       int           `json:"finished"`
	Results        []markers.Row `json:"results"`
}

// Options tunes a session. Hooks run on the session loop and must not call
// back into the session.
type Options struct {
	RefreshInterval      time.Duration
	RepositionInterval   time.Duration
	FetchTimeout         time.Duration
	MaxConcurrentFetches int
	Now                  func() time.Time
	Logger               *slog.Logger

	OnFetch   func(bib string, err error)
	OnCycle   func(CycleReport)
	OnDiscard func(bib string)
}

func (o Options) withDefaults() Options {
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = 60 * time.Second
	}
	if o.RepositionInterval <= 0 {
		o.RepositionInterval = 15 * time.Second
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 5 * time.Second
	}
	if o.MaxConcurrentFetches <= 0 {
		o.MaxConcurrentFetches = 8
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
