package tracking

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"backend-runcheer/internal/markers"
	"backend-runcheer/internal/progress"
)

type fetchResult struct {
	gen uint64
	bib string
	rec progress.Record
	err error
}

type cycleDone struct {
	gen     uint64
	started time.Time
}

// Session tracks one set of bibs. All state below the channel block is owned
// by the loop goroutine; callers reach it through do.
type Session struct {
	fetcher   Fetcher
	estimator *progress.Estimator
	renderer  markers.Renderer
	opts      Options
	logger    *slog.Logger

	cmds    chan func()
	results chan fetchResult
	cycles  chan cycleDone
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once

	state       State
	gen         uint64
	ctx         context.Context
	cancel      context.CancelFunc
	target      Target
	rc          *markers.Reconciler
	records     map[string]progress.Record
	refreshT    *time.Ticker
	repositionT *time.Ticker
	refreshing  bool
	lastRefresh time.Time
	nextRefresh time.Time
	cycleCount  int
	failures    int
	cycleOK     int
	cycleFailed int
}

func NewSession(f Fetcher, est *progress.Estimator, r markers.Renderer, opts Options) *Session {
	if est == nil {
		est = progress.NewEstimator(nil)
	}
	opts = opts.withDefaults()
	s := &Session{
		fetcher:   f,
		estimator: est,
		renderer:  r,
		opts:      opts,
		logger:    opts.Logger,
		cmds:      make(chan func()),
		results:   make(chan fetchResult),
		cycles:    make(chan cycleDone),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		state:     StateIdle,
		records:   map[string]progress.Record{},
	}
	go s.loop()
	return s
}

// Start begins tracking. One refresh cycle runs immediately; markers left
// from a previous run are cleared first.
func (s *Session) Start(t Target) error {
	bibs := normalizeBibs(t.Bibs)
	if len(bibs) == 0 {
		return ErrNoBibs
	}
	t.Bibs = bibs

	var err error
	if derr := s.do(func() {
		if s.state == StateTracking {
			err = ErrAlreadyTracking
			return
		}
		s.begin(t)
	}); derr != nil {
		return derr
	}
	return err
}

// Stop cancels both tickers. Rendered markers stay where they are until the
// next Start or Reset.
func (s *Session) Stop() error {
	var err error
	if derr := s.do(func() {
		if s.state != StateTracking {
			err = ErrNotTracking
			return
		}
		s.halt()
	}); derr != nil {
		return derr
	}
	return err
}

// Reset removes every marker and results row.
func (s *Session) Reset() error {
	return s.do(func() {
		s.records = map[string]progress.Record{}
		if s.rc != nil {
			s.rc.Reset()
		}
	})
}

// Refresh runs a cycle now. It reports false when a cycle is already in
// flight.
func (s *Session) Refresh() (bool, error) {
	var (
		started bool
		err     error
	)
	if derr := s.do(func() {
		if s.state != StateTracking {
			err = ErrNotTracking
			return
		}
		started = s.refresh()
	}); derr != nil {
		return false, derr
	}
	return started, err
}

func (s *Session) Status() (Status, error) {
	var st Status
	err := s.do(func() { st = s.status() })
	return st, err
}

// Snapshot encodes the rendered state for a viewer that connects late.
func (s *Session) Snapshot() [][]byte {
	var out [][]byte
	_ = s.do(func() {
		if s.rc != nil {
			out = markers.Snapshot(s.rc.Markers(), s.rc.Results())
		}
	})
	return out
}

// Close stops tracking and ends the loop. It is safe to call more than once.
func (s *Session) Close() {
	s.once.Do(func() { close(s.quit) })
	<-s.done
}

func (s *Session) do(fn func()) error {
	ran := make(chan struct{})
	select {
	case s.cmds <- func() { fn(); close(ran) }:
	case <-s.done:
		return ErrClosed
	}
	<-ran
	return nil
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.cmds:
			fn()
		case r := <-s.results:
			s.handleResult(r)
		case c := <-s.cycles:
			s.finishCycle(c)
		case <-tickC(s.refreshT):
			s.refresh()
		case <-tickC(s.repositionT):
			s.reposition()
		case <-s.quit:
			if s.state == StateTracking {
				s.halt()
			}
			return
		}
	}
}

func (s *Session) begin(t Target) {
	if s.rc != nil {
		s.rc.Reset()
	}
	s.gen++
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.target = t
	s.rc = markers.NewReconciler(t.Course, s.renderer, t.Profiles, s.logger)
	s.records = map[string]progress.Record{}
	s.state = StateTracking
	s.refreshing = false
	s.lastRefresh = time.Time{}
	s.cycleCount, s.failures = 0, 0
	s.refreshT = time.NewTicker(s.opts.RefreshInterval)
	s.repositionT = time.NewTicker(s.opts.RepositionInterval)
	s.nextRefresh = s.opts.Now().Add(s.opts.RefreshInterval)

	s.logger.Info("tracking started", "event_id", t.EventID, "bibs", len(t.Bibs), "course", t.Course != nil)
	s.refresh()
}

func (s *Session) halt() {
	s.cancel()
	s.refreshT.Stop()
	s.repositionT.Stop()
	s.refreshT, s.repositionT = nil, nil
	s.gen++
	s.state = StateIdle
	s.refreshing = false
	s.records = map[string]progress.Record{}
	s.logger.Info("tracking stopped", "event_id", s.target.EventID, "cycles", s.cycleCount)
}

// refresh launches a fetch for every bib that has not finished yet.
func (s *Session) refresh() bool {
	if s.state != StateTracking {
		return false
	}
	if s.refreshing {
		s.logger.Debug("refresh skipped, cycle in flight", "event_id", s.target.EventID)
		return false
	}

	var pending []string
	for _, bib := range s.target.Bibs {
		if rec, ok := s.records[bib]; ok && rec.Finished() {
			continue
		}
		pending = append(pending, bib)
	}

	s.refreshing = true
	s.cycleOK, s.cycleFailed = 0, 0
	gen, ctx, eventID := s.gen, s.ctx, s.target.EventID
	started := s.opts.Now()

	go func() {
		var g errgroup.Group
		g.SetLimit(s.opts.MaxConcurrentFetches)
		for _, bib := range pending {
			g.Go(func() error {
				fctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
				defer cancel()
				rec, err := s.fetcher.FetchRunner(fctx, eventID, bib)
				select {
				case s.results <- fetchResult{gen: gen, bib: bib, rec: rec, err: err}:
				case <-s.quit:
				}
				return nil
			})
		}
		_ = g.Wait()
		select {
		case s.cycles <- cycleDone{gen: gen, started: started}:
		case <-s.quit:
		}
	}()
	return true
}

func (s *Session) handleResult(r fetchResult) {
	if r.gen != s.gen || s.state != StateTracking {
		s.logger.Debug("discarding stale result", "bib", r.bib)
		if s.opts.OnDiscard != nil {
			s.opts.OnDiscard(r.bib)
		}
		return
	}
	if s.opts.OnFetch != nil {
		s.opts.OnFetch(r.bib, r.err)
	}
	if r.err != nil {
		s.failures++
		s.cycleFailed++
		s.logger.Warn("fetch runner failed", "event_id", s.target.EventID, "bib", r.bib, "err", r.err)
		return
	}
	s.cycleOK++
	s.records[r.bib] = r.rec
	s.apply(r.bib, r.rec)
}

func (s *Session) finishCycle(c cycleDone) {
	if c.gen != s.gen || s.state != StateTracking {
		return
	}
	now := s.opts.Now()
	s.refreshing = false
	s.lastRefresh = now
	s.cycleCount++
	s.refreshT.Reset(s.opts.RefreshInterval)
	s.nextRefresh = now.Add(s.opts.RefreshInterval)

	if s.opts.OnCycle != nil {
		s.opts.OnCycle(CycleReport{
			EventID:  s.target.EventID,
			Started:  c.started,
			Duration: now.Sub(c.started),
			Fetched:  s.cycleOK,
			Failed:   s.cycleFailed,
		})
	}
}

// reposition re-estimates every bib from its last record. No network.
func (s *Session) reposition() {
	if s.state != StateTracking {
		return
	}
	for _, bib := range s.target.Bibs {
		if rec, ok := s.records[bib]; ok {
			s.apply(bib, rec)
		}
	}
}

func (s *Session) apply(bib string, rec progress.Record) {
	est := s.estimator.Estimate(rec, s.opts.Now())
	s.rc.Apply(bib, rec, est)
}

func (s *Session) status() Status {
	st := Status{
		State:      s.state,
		EventID:    s.target.EventID,
		Bibs:       append([]string{}, s.target.Bibs...),
		HasCourse:  s.target.Course != nil,
		Refreshing: s.refreshing,
		Cycles:     s.cycleCount,
		Failures:   s.failures,
		Results:    []markers.Row{},
	}
	if !s.lastRefresh.IsZero() {
		t := s.lastRefresh
		st.LastRefresh = &t
	}
	if s.state == StateTracking {
		st.NextRefreshSec = int(math.Max(math.Ceil(s.nextRefresh.Sub(s.opts.Now()).Seconds()), 0))
	}
	if s.rc != nil {
		st.Results = s.rc.Results()
	}
	for _, row := range st.Results {
		if row.Finished {
			st.Finished++
		}
	}
	return st
}

func tickC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func normalizeBibs(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, b := range in {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		out = append(out, b)
	}
	return out
}
