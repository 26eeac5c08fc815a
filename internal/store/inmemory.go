package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a single-process store for local/dev use and tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*memSession
}

type memSession struct {
	meta Meta
	logs map[Kind][]Entry
}

func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &InMemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*memSession),
	}
}

func (s *InMemoryStore) CreateSession(_ context.Context, code, inputLang string) error {
	if code == "" {
		return ErrInvalidInput
	}
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[code] = &memSession{
		meta: Meta{
			ID:             uuid.NewString(),
			Code:           code,
			InputLang:      normalizeLang(inputLang),
			Active:         true,
			CreatedAt:      now,
			LastActivityAt: now,
			ExpiresAt:      now.Add(s.ttl),
		},
		logs: map[Kind][]Entry{},
	}
	return nil
}

func (s *InMemoryStore) EndSession(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.liveLocked(code); !ok {
		return ErrNotFound
	}
	delete(s.sessions, code)
	return nil
}

func (s *InMemoryStore) Session(_ context.Context, code string) (Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.liveLocked(code)
	if !ok {
		return Meta{}, ErrNotFound
	}
	return sess.meta, nil
}

func (s *InMemoryStore) Sessions(_ context.Context) ([]Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Meta, 0, len(s.sessions))
	for code := range s.sessions {
		if sess, ok := s.liveLocked(code); ok {
			out = append(out, sess.meta)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *InMemoryStore) SetInputLang(_ context.Context, code, lang string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.liveLocked(code)
	if !ok {
		return ErrNotFound
	}
	sess.meta.InputLang = normalizeLang(lang)
	return nil
}

func (s *InMemoryStore) InputLang(_ context.Context, code string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.liveLocked(code)
	if !ok {
		return "", ErrNotFound
	}
	return normalizeLang(sess.meta.InputLang), nil
}

func (s *InMemoryStore) Append(_ context.Context, code string, kind Kind, entry Entry) (int, error) {
	if err := checkArgs(code, kind); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.liveLocked(code)
	if !ok {
		return 0, ErrNotFound
	}
	sess.logs[kind] = append(sess.logs[kind], entry)
	sess.meta.LastActivityAt = s.now().UTC()
	return len(sess.logs[kind]), nil
}

func (s *InMemoryStore) ReadRange(_ context.Context, code string, kind Kind, from, to int) ([]Entry, error) {
	if err := checkArgs(code, kind); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.liveLocked(code)
	if !ok {
		return nil, ErrNotFound
	}
	log := sess.logs[kind]
	from, to = clampRange(from, to, len(log))
	out := make([]Entry, to-from)
	copy(out, log[from:to])
	return out, nil
}

func (s *InMemoryStore) Length(_ context.Context, code string, kind Kind) (int, error) {
	if err := checkArgs(code, kind); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.liveLocked(code)
	if !ok {
		return 0, ErrNotFound
	}
	return len(sess.logs[kind]), nil
}

// PurgeExpired drops sessions past their TTL. Expired sessions are already
// invisible to readers; this only reclaims memory.
func (s *InMemoryStore) PurgeExpired(_ context.Context) (int, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for code, sess := range s.sessions {
		if !now.Before(sess.meta.ExpiresAt) {
			delete(s.sessions, code)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*memSession)
	return nil
}

func (s *InMemoryStore) liveLocked(code string) (*memSession, bool) {
	sess, ok := s.sessions[code]
	if !ok {
		return nil, false
	}
	if !s.now().Before(sess.meta.ExpiresAt) {
		return nil, false
	}
	return sess, true
}
