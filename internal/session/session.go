// Package session provides TTL-scoped per-session analysis state.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/logging"

	"github.com/mondweep/Auto-Analyst/internal/capability"
	"github.com/mondweep/Auto-Analyst/internal/dataset"
	"github.com/mondweep/Auto-Analyst/internal/retrieval"
)

// ErrNotFound reports a lookup for a session that does not exist or has
// expired.
var ErrNotFound = errors.New("session not found")

// Session holds everything one client's analysis runs against: the loaded
// dataset, the retrieval indices built from it, the session's own model
// configuration, and the user/chat linkage for usage accounting.
type Session struct {
	ID string

	mu         sync.RWMutex
	dataset    *dataset.Descriptor
	styleIndex *retrieval.Index
	dataIndex  *retrieval.Index
	model      capability.ModelConfig
	userID     int // 0 = anonymous
	chatID     int // 0 = no chat bound

	createdAt  time.Time
	lastAccess time.Time
}

// Dataset returns the session's current dataset descriptor.
func (s *Session) Dataset() *dataset.Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataset
}

// Indices returns the style and dataset retrieval indices.
func (s *Session) Indices() (style, data *retrieval.Index) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.styleIndex, s.dataIndex
}

// Model returns a copy of the session's model configuration.
func (s *Session) Model() capability.ModelConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// SetModel replaces the session's model configuration.
func (s *Session) SetModel(cfg capability.ModelConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = cfg
}

// User returns the bound user and chat IDs (0 when unbound).
func (s *Session) User() (userID, chatID int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.chatID
}

// BindUser records the user and chat the session belongs to. Last writer
// wins; a zero value leaves the existing binding in place.
func (s *Session) BindUser(userID, chatID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if userID != 0 {
		s.userID = userID
	}
	if chatID != 0 {
		s.chatID = chatID
	}
}

// touch records an access for TTL bookkeeping.
func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastAccess = now
	s.mu.Unlock()
}

// expired reports whether the session has been idle past the TTL.
func (s *Session) expired(now time.Time, ttl time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.Sub(s.lastAccess) > ttl
}

// Defaults seeds new sessions: the service-wide model configuration, the
// dataset loaded at startup, and the styling corpus for the style index.
type Defaults struct {
	Model   capability.ModelConfig
	Dataset *dataset.Descriptor
	Styling []string
}

// Store manages the live session map. Sessions are created on first access,
// refreshed on every access, and evicted when idle past the TTL, both lazily
// on lookup and by a background sweep.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	defaults Defaults
	ttl      time.Duration
	logger   *logging.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// NewStore creates a session store. A sweepInterval of 0 disables the
// background sweep; lazy eviction on access still applies.
func NewStore(defaults Defaults, ttl, sweepInterval time.Duration) *Store {
	st := &Store{
		sessions: make(map[string]*Session),
		defaults: defaults,
		ttl:      ttl,
		logger:   logging.New().WithComponent("session"),
		done:     make(chan struct{}),
	}
	if sweepInterval > 0 {
		go st.sweep(sweepInterval)
	}
	return st
}

// NewID returns a fresh session ID for clients that arrive without one.
func NewID() string {
	return uuid.New().String()
}

// newSession builds a session from the store defaults.
func (st *Store) newSession(id string) (*Session, error) {
	styleIndex, err := retrieval.New(st.defaults.Styling)
	if err != nil {
		return nil, fmt.Errorf("session %s: building style index: %w", id, err)
	}

	var docs []string
	if st.defaults.Dataset != nil {
		docs = []string{st.defaults.Dataset.Document()}
	}
	dataIndex, err := retrieval.New(docs)
	if err != nil {
		styleIndex.Close()
		return nil, fmt.Errorf("session %s: building dataset index: %w", id, err)
	}

	now := time.Now()
	return &Session{
		ID:         id,
		dataset:    st.defaults.Dataset,
		styleIndex: styleIndex,
		dataIndex:  dataIndex,
		model:      st.defaults.Model,
		createdAt:  now,
		lastAccess: now,
	}, nil
}

// GetOrCreate returns the live session for an ID, creating it if absent or
// expired. Exactly one session per ID is ever live; concurrent callers with
// the same ID observe the same record.
func (st *Store) GetOrCreate(id string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now()
	if sess, ok := st.sessions[id]; ok {
		if !sess.expired(now, st.ttl) {
			sess.touch(now)
			return sess, nil
		}
		st.evictLocked(id, sess)
	}

	sess, err := st.newSession(id)
	if err != nil {
		return nil, err
	}
	st.sessions[id] = sess
	st.logger.Debug("session created", map[string]interface{}{"session_id": id})
	return sess, nil
}

// Get returns the live session for an ID, or an error when none exists.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := time.Now()
	if sess.expired(now, st.ttl) {
		st.evictLocked(id, sess)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	sess.touch(now)
	return sess, nil
}

// UpdateDataset replaces the session's dataset and rebuilds its dataset
// index. The style index is untouched.
func (st *Store) UpdateDataset(id string, desc *dataset.Descriptor) error {
	sess, err := st.GetOrCreate(id)
	if err != nil {
		return err
	}

	dataIndex, err := retrieval.New([]string{desc.Document()})
	if err != nil {
		return fmt.Errorf("session %s: rebuilding dataset index: %w", id, err)
	}

	sess.mu.Lock()
	old := sess.dataIndex
	sess.dataset = desc
	sess.dataIndex = dataIndex
	sess.mu.Unlock()

	if old != nil {
		old.Close()
	}

	st.logger.Info("session dataset updated", map[string]interface{}{
		"session_id": id,
		"dataset":    desc.Name,
	})
	return nil
}

// Reset discards the session's state and rebuilds it from defaults. With
// preserveModel, the session's model configuration survives the reset.
func (st *Store) Reset(id string, preserveModel bool) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	var model capability.ModelConfig
	havePrev := false
	if prev, ok := st.sessions[id]; ok {
		model = prev.Model()
		havePrev = true
		st.evictLocked(id, prev)
	}

	sess, err := st.newSession(id)
	if err != nil {
		return err
	}
	if preserveModel && havePrev {
		sess.model = model
	}
	st.sessions[id] = sess

	st.logger.Info("session reset", map[string]interface{}{
		"session_id":     id,
		"preserve_model": preserveModel,
	})
	return nil
}

// Delete removes a session immediately.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if sess, ok := st.sessions[id]; ok {
		st.evictLocked(id, sess)
	}
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// evictLocked removes a session and releases its indices. Caller holds st.mu.
func (st *Store) evictLocked(id string, sess *Session) {
	delete(st.sessions, id)
	sess.mu.Lock()
	style, data := sess.styleIndex, sess.dataIndex
	sess.styleIndex, sess.dataIndex = nil, nil
	sess.mu.Unlock()
	if style != nil {
		style.Close()
	}
	if data != nil {
		data.Close()
	}
}

// sweep evicts expired sessions on an interval until Close.
func (st *Store) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-st.done:
			return
		case <-ticker.C:
			st.mu.Lock()
			now := time.Now()
			evicted := 0
			for id, sess := range st.sessions {
				if sess.expired(now, st.ttl) {
					st.evictLocked(id, sess)
					evicted++
				}
			}
			st.mu.Unlock()
			if evicted > 0 {
				st.logger.Debug("expired sessions evicted", map[string]interface{}{
					"count": evicted,
				})
			}
		}
	}
}

// Close stops the background sweep and releases all sessions.
func (st *Store) Close() {
	st.stopOnce.Do(func() { close(st.done) })

	st.mu.Lock()
	defer st.mu.Unlock()
	for id, sess := range st.sessions {
		st.evictLocked(id, sess)
	}
}
