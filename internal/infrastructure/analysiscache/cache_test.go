package analysiscache

import (
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
)

func newTestCache(ttl time.Duration) (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	c := New(ttl)
	c.now = clock.Now
	return c, clock
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestPutThenGetReturnsLatest(t *testing.T) {
	c, _ := newTestCache(time.Hour)

	c.Put("user-1", domain.LatestAnalysis{
		Result: domain.AnalysisResult{Narrative: "first"},
	})
	c.Put("user-1", domain.LatestAnalysis{
		Result: domain.AnalysisResult{Narrative: "second"},
	})

	got, ok := c.Get("user-1")
	if !ok {
		t.Fatalf("expected cached analysis")
	}
	if got.Result.Narrative != "second" {
		t.Fatalf("expected most recent entry, got %q", got.Result.Narrative)
	}
}

func TestGetExpiresEntriesAfterTTL(t *testing.T) {
	c, clock := newTestCache(time.Hour)

	c.Put("user-1", domain.LatestAnalysis{})
	clock.Advance(time.Hour)

	if _, ok := c.Get("user-1"); ok {
		t.Fatalf("expected entry expired after ttl")
	}
}

func TestGetIsPerSubject(t *testing.T) {
	c, _ := newTestCache(time.Hour)

	c.Put("user-1", domain.LatestAnalysis{})
	if _, ok := c.Get("user-2"); ok {
		t.Fatalf("expected miss for another subject")
	}
}
