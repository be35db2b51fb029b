// Package session holds the signed-in user's credential pair and profile.
//
// The Store is the single owner of persisted token material. Every write
// (Save, Clear) updates the backing storage, the in-memory snapshot and the
// current-user feed under one lock, so an observer never sees a new user
// next to an old token.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-docqa-web/internal/domain"
)

// Storage is the persistence the Store writes through to.
// *repo.Storage satisfies it.
type Storage interface {
	GetMany(ctx context.Context, keys ...string) (map[string]string, error)
	SetMany(ctx context.Context, items map[string]string) error
	Remove(ctx context.Context, keys ...string) error
}

// Snapshot is a consistent view of the session at one instant.
type Snapshot struct {
	User         *domain.User
	Token        string
	RefreshToken string
}

// Store keeps the credential pair and the current user.
type Store struct {
	storage Storage
	log     zerolog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	token   string
	refresh string
	user    *domain.User

	subMu  sync.Mutex
	subs   map[uint64]chan *domain.User
	nextID uint64
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// NewStore returns an empty Store backed by storage. Call Restore to load
// persisted state.
func NewStore(storage Storage, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		log:     zerolog.Nop(),
		now:     time.Now,
		subs:    make(map[uint64]chan *domain.User),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Save persists creds and user and publishes user to subscribers.
// On storage failure nothing changes in memory.
func (s *Store) Save(ctx context.Context, creds domain.Credentials, user domain.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.SetMany(ctx, map[string]string{
		domain.StorageKeyToken:        creds.AccessToken,
		domain.StorageKeyRefreshToken: creds.RefreshToken,
		domain.StorageKeyUser:         string(raw),
	}); err != nil {
		return err
	}
	s.token = creds.AccessToken
	s.refresh = creds.RefreshToken
	s.user = user.Clone()
	s.publish(s.user)
	return nil
}

// Clear removes all persisted credential material and publishes nil.
// The in-memory state is cleared even if storage removal fails.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.storage.Remove(ctx, domain.StorageKeys...)
	if err != nil {
		s.log.Error().Err(err).Msg("session: clear persisted credentials")
	}
	s.token, s.refresh, s.user = "", "", nil
	s.publish(nil)
	return err
}

// Restore loads persisted state. When a token is present, unexpired and the
// stored profile decodes, the user is published and returned with ok=true.
// Otherwise all persisted state is cleared and ok=false.
func (s *Store) Restore(ctx context.Context) (*domain.User, bool, error) {
	vals, err := s.storage.GetMany(ctx, domain.StorageKeys...)
	if err != nil {
		return nil, false, err
	}

	token := vals[domain.StorageKeyToken]
	var user domain.User
	ok := Valid(token, s.now()) && json.Unmarshal([]byte(vals[domain.StorageKeyUser]), &user) == nil
	if !ok {
		if len(vals) > 0 {
			s.log.Info().Msg("session: persisted credentials expired or unreadable, clearing")
		}
		return nil, false, s.Clear(ctx)
	}

	s.mu.Lock()
	s.token = token
	s.refresh = vals[domain.StorageKeyRefreshToken]
	s.user = user.Clone()
	s.publish(s.user)
	s.mu.Unlock()

	return user.Clone(), true, nil
}

// CurrentUser returns a copy of the signed-in user, or nil.
func (s *Store) CurrentUser() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.Clone()
}

// Token returns the stored access token.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// RefreshToken returns the stored refresh token.
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

// Snapshot returns user and tokens read under one lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{User: s.user.Clone(), Token: s.token, RefreshToken: s.refresh}
}

// Principal returns the current user and whether the access token is valid,
// both read under one lock so a concurrent refresh or logout cannot pair a
// new user with a stale flag.
func (s *Store) Principal() (*domain.User, bool) {
	s.mu.RLock()
	u, tok := s.user.Clone(), s.token
	s.mu.RUnlock()
	return u, Valid(tok, s.now())
}

// IsAuthenticated reports whether an access token is present and its expiry
// claim is strictly in the future.
func (s *Store) IsAuthenticated() bool {
	return Valid(s.Token(), s.now())
}

// HasRole reports whether the current user has role r.
func (s *Store) HasRole(r domain.Role) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.user.Role == r
}

// HasPermission reports whether the current user holds permission p.
func (s *Store) HasPermission(p string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.HasPermission(p)
}

// Subscribe returns a feed of current-user changes. The most recent value is
// delivered immediately. Slow readers only ever see the latest value. The
// returned cancel func closes the channel.
func (s *Store) Subscribe() (<-chan *domain.User, func()) {
	ch := make(chan *domain.User, 1)

	// Holding mu across registration orders the replay before any later publish.
	s.mu.RLock()
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	ch <- s.user.Clone()
	s.subMu.Unlock()
	s.mu.RUnlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			close(ch)
			s.subMu.Unlock()
		})
	}
}

// publish must be called with mu held for writing.
func (s *Store) publish(u *domain.User) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- u.Clone()
	}
}
