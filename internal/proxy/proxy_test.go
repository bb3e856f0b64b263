package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

func newUpstream(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch {
		case strings.HasSuffix(r.URL.Path, "/player/404"):
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found"}`))
		case strings.HasSuffix(r.URL.Path, "/player/lagging"):
			time.Sleep(200 * time.Millisecond)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"name":"lagging"}`))
		case strings.HasSuffix(r.URL.Path, "/player/slow"):
			time.Sleep(50 * time.Millisecond)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"name":"slow"}`))
		default:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCleanPath(t *testing.T) {
	if p, err := CleanPath("/event/132/player/1001/"); err != nil || p != "event/132/player/1001" {
		t.Fatalf("unexpected clean path %q %v", p, err)
	}
	for _, bad := range []string{"", "  ", "event/../admin", "http://evil", "./x"} {
		if _, err := CleanPath(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestServiceCachesSuccessfulResponses(t *testing.T) {
	var hits atomic.Int32
	srv := newUpstream(t, &hits)
	svc := NewService(srv.URL, NewMemoryCache(16, time.Minute), time.Second, nil)

	e, outcome, err := svc.Get(context.Background(), "event/132/player/1001")
	if err != nil || outcome != CacheMiss || e.Status != http.StatusOK {
		t.Fatalf("first get: %v %s %+v", err, outcome, e)
	}
	e, outcome, err = svc.Get(context.Background(), "event/132/player/1001")
	if err != nil || outcome != CacheHit || !strings.Contains(string(e.Body), "/event/132/player/1001") {
		t.Fatalf("second get: %v %s %s", err, outcome, e.Body)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected single upstream call, got %d", hits.Load())
	}

	for i := 0; i < 2; i++ {
		if e, _, _ := svc.Get(context.Background(), "event/132/player/404"); e.Status != http.StatusNotFound {
			t.Fatalf("expected 404 passthrough, got %d", e.Status)
		}
	}
	if hits.Load() != 3 {
		t.Fatalf("errors must not be cached, got %d upstream calls", hits.Load())
	}
}

func TestServiceCoalescesConcurrentRequests(t *testing.T) {
	var hits atomic.Int32
	srv := newUpstream(t, &hits)
	svc := NewService(srv.URL, NewMemoryCache(16, time.Minute), time.Second, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := svc.Get(context.Background(), "event/132/player/slow"); err != nil {
				t.Errorf("get: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := hits.Load(); got > 2 {
		t.Fatalf("expected coalesced upstream calls, got %d", got)
	}
}

func TestServiceCallerDeadlineDoesNotFailSharedFetch(t *testing.T) {
	var hits atomic.Int32
	srv := newUpstream(t, &hits)
	svc := NewService(srv.URL, NewMemoryCache(16, time.Minute), time.Second, nil)

	shortErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, _, err := svc.Get(ctx, "event/1/player/lagging")
		shortErr <- err
	}()
	time.Sleep(10 * time.Millisecond)

	e, outcome, err := svc.Get(context.Background(), "event/1/player/lagging")
	if err != nil || outcome != CacheMiss || e.Status != http.StatusOK {
		t.Fatalf("patient caller failed: %v %s %+v", err, outcome, e)
	}
	if err := <-shortErr; !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected short caller to hit its own deadline, got %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("expected one shared upstream call, got %d", got)
	}
	if _, outcome, _ := svc.Get(context.Background(), "event/1/player/lagging"); outcome != CacheHit {
		t.Fatalf("expected shared result cached, got %s", outcome)
	}
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewRedisCache(client, time.Minute)
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected miss, got %v %v", ok, err)
	}
	want := Entry{Status: 200, ContentType: "application/json", Body: []byte(`{"a":1}`)}
	if err := cache.Set(ctx, "event/1", want); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := cache.Get(ctx, "event/1")
	if err != nil || !ok || got.Status != 200 || string(got.Body) != `{"a":1}` {
		t.Fatalf("unexpected entry %+v %v %v", got, ok, err)
	}

	mr.FastForward(2 * time.Minute)
	if _, ok, _ := cache.Get(ctx, "event/1"); ok {
		t.Fatalf("expected entry to expire")
	}

	mr.Set(redisKeyPrefix+"bad", "not msgpack")
	if _, _, err := cache.Get(ctx, "bad"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestBatch(t *testing.T) {
	var hits atomic.Int32
	srv := newUpstream(t, &hits)
	svc := NewService(srv.URL, NewMemoryCache(16, time.Minute), time.Second, nil)

	resp := svc.Batch(context.Background(), "132", []string{"1001", "404"})
	if resp.EventID != "132" || resp.Count != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Results[0].Error != nil || !strings.Contains(string(resp.Results[0].Data), "1001") {
		t.Fatalf("unexpected first result %+v", resp.Results[0])
	}
	if resp.Results[1].Error == nil || *resp.Results[1].Error != "HTTP 404" {
		t.Fatalf("unexpected second result %+v", resp.Results[1])
	}

	resp = svc.Batch(context.Background(), "132", []string{"7?x=1", "8#frag"})
	for i, want := range []string{"/player/7?x=1", "/player/8#frag"} {
		r := resp.Results[i]
		if r.Error != nil || !strings.Contains(string(r.Data), want) {
			t.Fatalf("bib %s not escaped into the path: %+v", r.Bib, r)
		}
	}
}

func TestSplitBibs(t *testing.T) {
	got := SplitBibs(" 1, ,2,3 ")
	if len(got) != 3 || got[0] != "1" || got[2] != "3" {
		t.Fatalf("unexpected bibs %v", got)
	}
}

func TestProxyHandlers(t *testing.T) {
	var hits atomic.Int32
	srv := newUpstream(t, &hits)
	svc := NewService(srv.URL, NewMemoryCache(16, time.Minute), time.Second, nil)
	app := fiber.New()
	RegisterRoutes(app, svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/proxy?path=event/110/player/3725", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("proxy status: %v", err)
	}
	if resp.Header.Get("Cache-Control") != cacheControl || resp.Header.Get("X-Cache") != "MISS" {
		t.Fatalf("unexpected headers %v", resp.Header)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/event/110/player/3725", nil))
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Cache") != "HIT" {
		t.Fatalf("expected cached path-style hit, got %d %s", resp.StatusCode, resp.Header.Get("X-Cache"))
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/event/110/player/404", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected upstream status passthrough, got %d", resp.StatusCode)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/proxy", nil))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", resp.StatusCode)
	}
	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/proxy?path=event/../x", nil))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for traversal, got %d", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/proxy-batch?bibs=1,2&eventId=132", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("batch status: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	var batch BatchResponse
	if err := json.Unmarshal(body, &batch); err != nil || batch.Count != 2 {
		t.Fatalf("unexpected batch body %s", body)
	}
	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/proxy-batch?eventId=132", nil))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", resp.StatusCode)
	}

	down := NewService("http://127.0.0.1:1", NewMemoryCache(4, time.Minute), 200*time.Millisecond, nil)
	app2 := fiber.New()
	RegisterRoutes(app2, down)
	resp, _ = app2.Test(httptest.NewRequest(http.MethodGet, "/proxy?path=event/1", nil))
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected bad gateway, got %d", resp.StatusCode)
	}
}
