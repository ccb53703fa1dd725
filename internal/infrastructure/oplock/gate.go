package oplock

import (
	"hash/fnv"
	"sync"
)

const shardCount = 32

type shard struct {
	mu      sync.Mutex
	holders map[string]struct{}
}

// Gate gives each subject at most one in-flight heavy operation.
// Locks are process-local: a crash drops them with the process, so
// nothing ever leaks across restarts.
type Gate struct {
	shards [shardCount]shard
}

func New() *Gate {
	g := &Gate{}
	for i := range g.shards {
		g.shards[i].holders = make(map[string]struct{})
	}
	return g
}

// TryAcquire claims the subject's slot. It never blocks: a second heavy
// request while one is in flight gets false and the caller reports Busy.
func (g *Gate) TryAcquire(subjectID string) bool {
	s := &g.shards[shardIndex(subjectID)]
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.holders[subjectID]; held {
		return false
	}
	s.holders[subjectID] = struct{}{}
	return true
}

// Release frees the subject's slot. Releasing an unheld slot is a no-op
// so deferred releases stay unconditional on every exit path.
func (g *Gate) Release(subjectID string) {
	s := &g.shards[shardIndex(subjectID)]
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.holders, subjectID)
}

func shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}
