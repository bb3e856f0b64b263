package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"backend-runcheer/internal/observability"
)

const maxBody = 1 << 20

var ErrBadPath = errors.New("invalid upstream path")

const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Service forwards GET requests to the timing provider. Successful responses
// are cached and identical in-flight requests share one upstream call.
type Service struct {
	baseURL      string
	http         *http.Client
	cache        Cache
	batchTimeout time.Duration
	logger       *slog.Logger
	flight       singleflight.Group
}

func NewService(baseURL string, cache Cache, timeout time.Duration, logger *slog.Logger) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Timeout: timeout},
		cache:        cache,
		batchTimeout: timeout,
		logger:       logger,
	}
}

// CleanPath validates a provider path such as "event/132/player/1001".
func CleanPath(path string) (string, error) {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" || strings.Contains(path, "://") {
		return "", ErrBadPath
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." || seg == "." {
			return "", ErrBadPath
		}
	}
	return path, nil
}

// Get returns the upstream response for path, with the cache outcome.
func (s *Service) Get(ctx context.Context, path string) (Entry, string, error) {
	path, err := CleanPath(path)
	if err != nil {
		return Entry{}, CacheError, err
	}

	if e, ok, err := s.cache.Get(ctx, path); err != nil {
		s.logger.Warn("proxy cache read failed", "path", path, "err", err)
	} else if ok {
		observability.ProxyRequests.WithLabelValues(CacheHit).Inc()
		return e, CacheHit, nil
	}

	// The shared call outlives any single caller; the client timeout bounds it.
	ch := s.flight.DoChan(path, func() (any, error) {
		return s.fetch(context.WithoutCancel(ctx), path)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			observability.ProxyRequests.WithLabelValues(CacheError).Inc()
			return Entry{}, CacheError, res.Err
		}
		observability.ProxyRequests.WithLabelValues(CacheMiss).Inc()
		return res.Val.(Entry), CacheMiss, nil
	case <-ctx.Done():
		observability.ProxyRequests.WithLabelValues(CacheError).Inc()
		return Entry{}, CacheError, ctx.Err()
	}
}

func (s *Service) fetch(ctx context.Context, path string) (Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+path, nil)
	if err != nil {
		return Entry{}, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.http.Do(req)
	observability.ObserveProxyUpstream(start)
	if err != nil {
		return Entry{}, fmt.Errorf("upstream %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Entry{}, fmt.Errorf("read upstream %s: %w", path, err)
	}
	e := Entry{Status: resp.StatusCode, ContentType: resp.Header.Get("Content-Type"), Body: body}
	if e.ContentType == "" {
		e.ContentType = "application/json"
	}

	if e.Status >= 200 && e.Status < 300 {
		if err := s.cache.Set(context.WithoutCancel(ctx), path, e); err != nil {
			s.logger.Warn("proxy cache write failed", "path", path, "err", err)
		}
	}
	return e, nil
}

type BatchResult struct {
	Bib   string          `json:"bib"`
	Error *string         `json:"error"`
	Data  json.RawMessage `json:"data"`
}

type BatchResponse struct {
	EventID string        `json:"eventId"`
	Count   int           `json:"count"`
	Results []BatchResult `json:"results"`
}

// Batch fetches several runners of one event concurrently. Failures are
// reported per bib.
func (s *Service) Batch(ctx context.Context, eventID string, bibs []string) BatchResponse {
	results := make([]BatchResult, len(bibs))
	var g errgroup.Group
	for i, bib := range bibs {
		g.Go(func() error {
			results[i] = s.batchOne(ctx, eventID, bib)
			return nil
		})
	}
	_ = g.Wait()
	return BatchResponse{EventID: eventID, Count: len(results), Results: results}
}

func (s *Service) batchOne(ctx context.Context, eventID, bib string) BatchResult {
	ctx, cancel := context.WithTimeout(ctx, s.batchTimeout)
	defer cancel()

	fail := func(msg string) BatchResult {
		return BatchResult{Bib: bib, Error: &msg, Data: json.RawMessage("null")}
	}
	e, _, err := s.Get(ctx, "event/"+url.PathEscape(eventID)+"/player/"+url.PathEscape(bib))
	if err != nil {
		return fail(err.Error())
	}
	if e.Status < 200 || e.Status >= 300 {
		return fail("HTTP " + strconv.Itoa(e.Status))
	}
	if !json.Valid(e.Body) {
		return fail("invalid JSON from upstream")
	}
	return BatchResult{Bib: bib, Data: json.RawMessage(e.Body)}
}

// SplitBibs parses a comma separated bib list.
func SplitBibs(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
