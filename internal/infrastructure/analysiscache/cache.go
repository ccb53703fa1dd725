package analysiscache

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
)

const (
	shardCount = 32
	defaultTTL = time.Hour
)

type entry struct {
	analysis domain.LatestAnalysis
	storedAt time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]entry
}

// Cache keeps each subject's most recent completed analysis so the deep
// pipeline can reuse its identity and visual features without a second
// upload. Entries expire after the TTL and are dropped lazily on read.
type Cache struct {
	ttl    time.Duration
	shards [shardCount]shard

	now func() time.Time
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	c := &Cache{ttl: ttl, now: time.Now}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]entry)
	}
	return c
}

func (c *Cache) Put(subjectID string, analysis domain.LatestAnalysis) {
	s := c.shardFor(subjectID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[subjectID] = entry{analysis: analysis, storedAt: c.now()}
}

func (c *Cache) Get(subjectID string) (*domain.LatestAnalysis, bool) {
	s := c.shardFor(subjectID)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[subjectID]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		delete(s.entries, subjectID)
		return nil, false
	}
	analysis := e.analysis
	return &analysis, true
}

func (c *Cache) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &c.shards[h.Sum32()%shardCount]
}
