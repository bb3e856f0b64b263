package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"backend-runcheer/internal/progress"
)

const maxBody = 1 << 20

// FetchFailure is a transient per-bib failure: transport error, non-2xx
// status, or a body that does not decode.
type FetchFailure struct {
	Bib    string
	Status int
	Err    error
}

func (f *FetchFailure) Error() string {
	if f.Status != 0 {
		return fmt.Sprintf("fetch bib %s: status %d", f.Bib, f.Status)
	}
	return fmt.Sprintf("fetch bib %s: %v", f.Bib, f.Err)
}

func (f *FetchFailure) Unwrap() error { return f.Err }

// Client reads runner records through the caching proxy.
type Client struct {
	BaseURL  string
	HTTP     *http.Client
	Now      func() time.Time
	validate *validator.Validate
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		HTTP:     &http.Client{Timeout: timeout},
		Now:      time.Now,
		validate: validator.New(),
	}
}

// PlayerPath is the provider path for one runner of one event.
func PlayerPath(eventID int, bib string) string {
	return fmt.Sprintf("event/%d/player/%s", eventID, url.PathEscape(bib))
}

func (c *Client) FetchRunner(ctx context.Context, eventID int, bib string) (progress.Record, error) {
	endpoint := c.BaseURL + "/proxy?path=" + url.QueryEscape(PlayerPath(eventID, bib))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return progress.Record{}, &FetchFailure{Bib: bib, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return progress.Record{}, &FetchFailure{Bib: bib, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return progress.Record{}, &FetchFailure{
			Bib:    bib,
			Status: resp.StatusCode,
			Err:    errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	var wp wirePlayer
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&wp); err != nil {
		return progress.Record{}, &FetchFailure{Bib: bib, Status: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return c.normalize(bib, wp), nil
}

func (c *Client) normalize(bib string, wp wirePlayer) progress.Record {
	rec := progress.Record{
		Bib:              bib,
		Name:             strings.TrimSpace(wp.Name),
		Team:             string(wp.TeamName),
		CourseDistanceKm: progress.DefaultCourseKm,
		NetTime:          strings.TrimSpace(string(wp.NetTime)),
		Pace:             strings.TrimSpace(string(wp.Pace)),
		EventDate:        string(wp.Event.Date),
		FetchedAt:        c.now(),
	}
	if rec.Name == "" {
		rec.Name = bib
	}
	if wp.Course.Distance.Set && wp.Course.Distance.Value > 0 {
		rec.CourseDistanceKm = wp.Course.Distance.Value
	}

	v := c.validate
	if v == nil {
		v = validator.New()
	}
	for _, r := range wp.Records {
		if !r.Point.Distance.Set {
			continue
		}
		p := progress.Passage{
			Checkpoint: strings.TrimSpace(r.Point.Name),
			DistanceKm: r.Point.Distance.Value,
			TimeOfDay:  strings.TrimSpace(string(r.TimePoint)),
		}
		if err := v.Struct(p); err != nil {
			continue
		}
		rec.Passages = append(rec.Passages, p)
	}
	sort.SliceStable(rec.Passages, func(i, j int) bool {
		return rec.Passages[i].DistanceKm < rec.Passages[j].DistanceKm
	})
	return rec
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
