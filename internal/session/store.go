// Package session keeps the per-browser application state: the generated questions,
// the paper details and the header overrides.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// State keys. Header override keys share their names with the paper header fields.
const (
	KeyQuestions    = "questions"
	KeyPaperDetails = "paperDetails"
	KeyLayout       = "layout"
	KeyExamDate     = "examDate"
	KeyBranch       = "branch"
	KeySubjectCode  = "subjectCode"
	KeyMonthYear    = "monthyear"
)

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = 12 * time.Hour

// Store is a session-scoped key-value store. Reads and writes extend the session's life.
type Store interface {
	Load(ctx context.Context, sid string) (map[string]string, error)
	Save(ctx context.Context, sid string, values map[string]string) error
	Delete(ctx context.Context, sid string) error
}

// RedisStore keeps each session in one hash with a sliding expiry.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) key(sid string) string {
	return "studio:session:" + sid
}

func (s *RedisStore) Load(ctx context.Context, sid string) (map[string]string, error) {
	key := s.key(sid)
	var get *redis.MapStringStringCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		get = p.HGetAll(ctx, key)
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, err
	}
	return get.Val(), nil
}

func (s *RedisStore) Save(ctx context.Context, sid string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	key := s.key(sid)
	args := make([]any, 0, len(values)*2)
	for k, v := range values {
		args = append(args, k, v)
	}
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, args...)
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

func (s *RedisStore) Delete(ctx context.Context, sid string) error {
	return s.client.Del(ctx, s.key(sid)).Err()
}

// MemoryStore is the single-process Store used when Redis is not configured.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*memorySession
}

type memorySession struct {
	values  map[string]string
	expires time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, sessions: map[string]*memorySession{}}
}

func (s *MemoryStore) Load(_ context.Context, sid string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sid]
	if !ok || !s.now().Before(sess.expires) {
		delete(s.sessions, sid)
		return map[string]string{}, nil
	}
	sess.expires = s.now().Add(s.ttl)
	out := make(map[string]string, len(sess.values))
	for k, v := range sess.values {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, sid string, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sid]
	if !ok || !s.now().Before(sess.expires) {
		sess = &memorySession{values: map[string]string{}}
		s.sessions[sid] = sess
	}
	for k, v := range values {
		sess.values[k] = v
	}
	sess.expires = s.now().Add(s.ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sid string) error {
	s.mu.Lock()
	delete(s.sessions, sid)
	s.mu.Unlock()
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for sid, sess := range s.sessions {
		if !now.Before(sess.expires) {
			delete(s.sessions, sid)
			removed++
		}
	}
	return removed
}

// Len returns the number of live and not yet swept sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
