package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"backend-runcheer/internal/course"
	"backend-runcheer/internal/groups"
	"backend-runcheer/internal/markers"
	"backend-runcheer/internal/observability"
	"backend-runcheer/internal/progress"
)

const EventRefresh = "refresh"

type Roster interface {
	Roster(ctx context.Context, code string) (groups.Group, []groups.Runner, error)
}

type CourseSource interface {
	Load(eventID int) (*course.Course, error)
}

// StartRequest overrides the group's event and bib list when set.
type StartRequest struct {
	EventID int      `json:"eventId"`
	Bibs    []string `json:"bibs"`
}

type refreshEvent struct {
	Type           string    `json:"type"`
	LastRefresh    time.Time `json:"last_refresh"`
	NextRefreshSec int       `json:"next_refresh_sec"`
	Fetched        int       `json:"fetched"`
	Failed         int       `json:"failed"`
}

// Manager keeps one session per group code.
type Manager struct {
	roster    Roster
	courses   CourseSource
	fetcher   Fetcher
	estimator *progress.Estimator
	pub       markers.Publisher
	opts      Options
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(roster Roster, courses CourseSource, fetcher Fetcher, est *progress.Estimator, pub markers.Publisher, opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		roster:    roster,
		courses:   courses,
		fetcher:   fetcher,
		estimator: est,
		pub:       pub,
		opts:      opts,
		logger:    opts.Logger,
		sessions:  map[string]*Session{},
	}
}

// Start loads the group roster and course, then starts the group's session.
// Profile and checkpoint photos are captured once here.
func (m *Manager) Start(ctx context.Context, code string, req StartRequest) (Status, error) {
	group, runners, err := m.roster.Roster(ctx, code)
	if err != nil {
		return Status{}, err
	}

	eventID := req.EventID
	if eventID == 0 {
		eventID = group.EventID
	}

	var (
		bibs     []string
		profiles []markers.Profile
	)
	for _, r := range runners {
		if r.Role != groups.RoleRunner || r.Bib == "" {
			continue
		}
		bibs = append(bibs, r.Bib)
		profiles = append(profiles, markers.Profile{
			Bib:                r.Bib,
			Name:               r.Name,
			ProfilePhotoURL:    r.ProfileImage,
			CheckpointPhotoURL: r.PhotoURL,
		})
	}
	if len(req.Bibs) > 0 {
		bibs = req.Bibs
	}

	c, err := m.courses.Load(eventID)
	if err != nil {
		if !errors.Is(err, course.ErrCourseNotFound) {
			return Status{}, err
		}
		m.logger.Info("no course for event, tracking table only", "group", code, "event_id", eventID)
		c = nil
	}

	s := m.session(code)
	if err := s.Start(Target{EventID: eventID, Bibs: bibs, Course: c, Profiles: profiles}); err != nil {
		return Status{}, err
	}
	observability.ActiveSessions.Inc()
	return s.Status()
}

func (m *Manager) Stop(code string) (Status, error) {
	s, ok := m.lookup(code)
	if !ok {
		return Status{}, ErrNotTracking
	}
	if err := s.Stop(); err != nil {
		return Status{}, err
	}
	observability.ActiveSessions.Dec()
	return s.Status()
}

func (m *Manager) Reset(code string) error {
	s, ok := m.lookup(code)
	if !ok {
		return nil
	}
	return s.Reset()
}

func (m *Manager) Refresh(code string) (bool, error) {
	s, ok := m.lookup(code)
	if !ok {
		return false, ErrNotTracking
	}
	return s.Refresh()
}

// Status reports idle for groups that never started.
func (m *Manager) Status(code string) (Status, error) {
	s, ok := m.lookup(code)
	if !ok {
		return Status{State: StateIdle, Bibs: []string{}, Results: []markers.Row{}}, nil
	}
	return s.Status()
}

// Snapshot is installed on the stream hub to replay state to new viewers.
func (m *Manager) Snapshot(code string) [][]byte {
	s, ok := m.lookup(code)
	if !ok {
		return nil
	}
	return s.Snapshot()
}

func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = map[string]*Session{}
	m.mu.Unlock()

	for code, s := range sessions {
		if st, err := s.Status(); err == nil && st.State == StateTracking {
			observability.ActiveSessions.Dec()
		}
		s.Close()
		m.logger.Debug("tracking session closed", "group", code)
	}
}

func (m *Manager) lookup(code string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[code]
	return s, ok
}

func (m *Manager) session(code string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[code]; ok {
		return s
	}

	logger := m.logger.With("group", code)
	opts := m.opts
	opts.Logger = logger
	opts.OnFetch = func(bib string, err error) {
		observability.ObserveFetch(err)
		if m.opts.OnFetch != nil {
			m.opts.OnFetch(bib, err)
		}
	}
	opts.OnDiscard = func(bib string) {
		observability.DiscardedResults.Inc()
		if m.opts.OnDiscard != nil {
			m.opts.OnDiscard(bib)
		}
	}
	opts.OnCycle = func(r CycleReport) {
		observability.ObserveCycle(r.Duration)
		m.publishRefresh(code, r)
		if m.opts.OnCycle != nil {
			m.opts.OnCycle(r)
		}
	}

	s := NewSession(m.fetcher, m.estimator, markers.NewHubRenderer(m.pub, code, logger), opts)
	m.sessions[code] = s
	return s
}

func (m *Manager) publishRefresh(code string, r CycleReport) {
	payload, err := json.Marshal(refreshEvent{
		Type:           EventRefresh,
		LastRefresh:    r.Started.Add(r.Duration),
		NextRefreshSec: int(m.opts.RefreshInterval.Seconds()),
		Fetched:        r.Fetched,
		Failed:         r.Failed,
	})
	if err != nil {
		m.logger.Error("encode refresh event", "group", code, "err", err)
		return
	}
	m.pub.Broadcast(code, payload)
}
