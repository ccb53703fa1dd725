package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
)

const shardCount = 32

// Config holds the per-class budgets sharing one window length.
type Config struct {
	Window     time.Duration
	Analyze    int
	Generate   int
	DeepFull   int
	DeepModule int
	Ask        int
	Default    int
}

type window struct {
	start time.Time
	count int
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*window
}

// Limiter enforces fixed-window request budgets keyed by
// (subject, endpoint class). State is process-local; shards keep
// unrelated subjects from serializing against each other.
type Limiter struct {
	cfg    Config
	shards [shardCount]shard

	now func() time.Time
}

func New(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	l := &Limiter{cfg: cfg, now: time.Now}
	for i := range l.shards {
		l.shards[i].windows = make(map[string]*window)
	}
	return l
}

// Check admits or denies one call. Admission increments the window
// counter; denial never consumes budget and reports the delay until the
// window elapses.
func (l *Limiter) Check(subjectID string, class domain.EndpointClass) error {
	key := subjectID + "\x00" + string(class)
	s := &l.shards[shardIndex(key)]

	s.mu.Lock()
	defer s.mu.Unlock()

	now := l.now()
	limit := l.limitFor(class)

	w, ok := s.windows[key]
	if !ok || now.Sub(w.start) >= l.cfg.Window {
		if limit < 1 {
			return &domain.RateLimitError{Class: class, RetryAfter: l.cfg.Window}
		}
		s.windows[key] = &window{start: now, count: 1}
		return nil
	}

	if w.count >= limit {
		return &domain.RateLimitError{
			Class:      class,
			RetryAfter: w.start.Add(l.cfg.Window).Sub(now),
		}
	}

	w.count++
	return nil
}

func (l *Limiter) limitFor(class domain.EndpointClass) int {
	switch class {
	case domain.ClassAnalyze:
		return l.cfg.Analyze
	case domain.ClassGenerate:
		return l.cfg.Generate
	case domain.ClassDeepFull:
		return l.cfg.DeepFull
	case domain.ClassDeepModule:
		return l.cfg.DeepModule
	case domain.ClassAsk:
		return l.cfg.Ask
	default:
		return l.cfg.Default
	}
}

func shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}
