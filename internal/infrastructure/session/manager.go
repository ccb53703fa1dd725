package session

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
)

const (
	shardCount      = 32
	defaultTTL      = 40 * time.Minute
	defaultPresence = time.Minute
)

type record struct {
	id        string
	ownerID   string
	snapshot  domain.SessionSnapshot
	createdAt time.Time
	viewers   map[string]time.Time
}

type shard struct {
	mu       sync.Mutex
	sessions map[string]*record
}

// Manager owns collaborative session state: TTL-bound shareable records
// with viewer presence tracking and owner-only mutation. Everything is
// process-local; expired records are removed lazily on the next touch.
type Manager struct {
	ttl      time.Duration
	presence time.Duration
	shards   [shardCount]shard

	// one active session per owner: creating a new one closes the
	// previous. Lock order is always ownerMu before any shard mutex.
	ownerMu sync.Mutex
	owners  map[string]string

	now func() time.Time
}

// NewManager builds a manager with the given TTL and viewer presence
// timeout. The presence timeout must stay strictly below the TTL.
func NewManager(ttl, presence time.Duration) *Manager {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if presence <= 0 || presence >= ttl {
		presence = defaultPresence
		if presence >= ttl {
			presence = ttl / 4
		}
	}
	m := &Manager{
		ttl:      ttl,
		presence: presence,
		owners:   make(map[string]string),
		now:      time.Now,
	}
	for i := range m.shards {
		m.shards[i].sessions = make(map[string]*record)
	}
	return m
}

// Create opens a session for the owner, closing the owner's previous
// active session if one exists.
func (m *Manager) Create(owner string, snapshot domain.SessionSnapshot) (*domain.OwnerSessionView, error) {
	id := uuid.NewString()
	now := m.now()

	m.ownerMu.Lock()
	defer m.ownerMu.Unlock()

	if previous, ok := m.owners[owner]; ok {
		m.removeSession(previous)
	}

	rec := &record{
		id:        id,
		ownerID:   owner,
		snapshot:  snapshot.Merge(nil),
		createdAt: now,
		viewers:   make(map[string]time.Time),
	}

	s := m.shardFor(id)
	s.mu.Lock()
	s.sessions[id] = rec
	s.mu.Unlock()

	m.owners[owner] = id
	return m.ownerView(rec, now), nil
}

// Get returns the redacted public view.
func (m *Manager) Get(id string) (*domain.SessionView, error) {
	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := m.touch(s, id)
	if err != nil {
		return nil, err
	}
	view := m.publicView(rec, m.now())
	return &view, nil
}

// GetFull returns the owner view including viewer bookkeeping.
func (m *Manager) GetFull(id, caller string) (*domain.OwnerSessionView, error) {
	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := m.touch(s, id)
	if err != nil {
		return nil, err
	}
	if rec.ownerID != caller {
		return nil, domain.ErrForbidden
	}
	return m.ownerView(rec, m.now()), nil
}

// Heartbeat registers or refreshes a viewer and reports liveness.
// It is idempotent: replays and reordering only affect recency.
func (m *Manager) Heartbeat(id, viewerID string) (*domain.HeartbeatStatus, error) {
	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := m.touch(s, id)
	if err != nil {
		return nil, err
	}

	now := m.now()
	rec.viewers[viewerID] = now
	active := m.pruneViewers(rec, now)

	return &domain.HeartbeatStatus{
		ActiveViewers:    active,
		RemainingSeconds: m.remainingSeconds(rec, now),
	}, nil
}

// Update merges the patch into the snapshot. Owner only.
func (m *Manager) Update(id, caller string, patch domain.SessionSnapshot) (*domain.OwnerSessionView, error) {
	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := m.touch(s, id)
	if err != nil {
		return nil, err
	}
	if rec.ownerID != caller {
		return nil, domain.ErrForbidden
	}

	rec.snapshot = rec.snapshot.Merge(patch)
	return m.ownerView(rec, m.now()), nil
}

// Close terminates the session. Owner only; closed sessions read as
// not found afterwards.
func (m *Manager) Close(id, caller string) error {
	m.ownerMu.Lock()
	defer m.ownerMu.Unlock()

	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := m.touch(s, id)
	if err != nil {
		return err
	}
	if rec.ownerID != caller {
		return domain.ErrForbidden
	}

	delete(s.sessions, id)
	if m.owners[rec.ownerID] == id {
		delete(m.owners, rec.ownerID)
	}
	return nil
}

// touch looks a record up under the shard lock, removing it and
// reporting SessionExpired when its TTL has elapsed.
func (m *Manager) touch(s *shard, id string) (*record, error) {
	rec, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if m.now().Sub(rec.createdAt) >= m.ttl {
		delete(s.sessions, id)
		return nil, domain.ErrSessionExpired
	}
	return rec, nil
}

func (m *Manager) pruneViewers(rec *record, now time.Time) int {
	for viewerID, last := range rec.viewers {
		if now.Sub(last) > m.presence {
			delete(rec.viewers, viewerID)
		}
	}
	return len(rec.viewers)
}

func (m *Manager) remainingSeconds(rec *record, now time.Time) int {
	remaining := rec.createdAt.Add(m.ttl).Sub(now)
	if remaining < 0 {
		return 0
	}
	return int(remaining.Seconds())
}

func (m *Manager) publicView(rec *record, now time.Time) domain.SessionView {
	return domain.SessionView{
		ID:               rec.id,
		Snapshot:         rec.snapshot,
		RemainingSeconds: m.remainingSeconds(rec, now),
		ActiveViewers:    m.pruneViewers(rec, now),
		HasDeepAnalysis:  rec.snapshot.HasDeepAnalysis(),
		CreatedAt:        rec.createdAt,
	}
}

func (m *Manager) ownerView(rec *record, now time.Time) *domain.OwnerSessionView {
	view := &domain.OwnerSessionView{
		SessionView: m.publicView(rec, now),
		OwnerID:     rec.ownerID,
		Viewers:     make([]domain.SessionViewer, 0, len(rec.viewers)),
	}
	for viewerID, last := range rec.viewers {
		view.Viewers = append(view.Viewers, domain.SessionViewer{
			ViewerID:      viewerID,
			LastHeartbeat: last,
		})
	}
	return view
}

// removeSession drops a session without owner validation; used when a
// new session displaces the owner's previous one.
func (m *Manager) removeSession(id string) {
	s := m.shardFor(id)
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func (m *Manager) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &m.shards[h.Sum32()%shardCount]
}
