package services

import (
	"log/slog"
	"time"

	"github.com/MegaGrindStone/sqlchat-web-ui/internal/chat"
	"github.com/patrickmn/go-cache"
)

// SessionCache implements the session store of the handlers with an in-memory, expiring cache. A
// session that isn't touched for the configured TTL is dropped, which is how the transcript of a
// closed page is discarded. Nothing is persisted.
type SessionCache struct {
	ttl   time.Duration
	cache *cache.Cache
}

const errLoggerKey = "err"

// DefaultSessionTTL is how long an untouched session is kept.
const DefaultSessionTTL = 30 * time.Minute

// NewSessionCache creates a new SessionCache. A non-positive ttl falls back to DefaultSessionTTL.
// Expired sessions are swept every two TTLs.
func NewSessionCache(ttl time.Duration, logger *slog.Logger) SessionCache {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	c := cache.New(ttl, 2*ttl)
	l := logger.With(slog.String("module", "sessions"))
	c.OnEvicted(func(id string, _ any) {
		l.Debug("Session evicted", slog.String("sessionID", id))
	})

	return SessionCache{
		ttl:   ttl,
		cache: c,
	}
}

// Session returns the session with the given ID and extends its lifetime.
func (s SessionCache) Session(id string) (*chat.Session, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*chat.Session)
	if !ok {
		return nil, false
	}
	s.cache.Set(id, sess, cache.DefaultExpiration)
	return sess, true
}

// AddSession stores a session under its ID.
func (s SessionCache) AddSession(sess *chat.Session) {
	s.cache.Set(sess.ID(), sess, cache.DefaultExpiration)
}

// Len reports the number of live sessions, expired but unswept ones included.
func (s SessionCache) Len() int {
	return s.cache.ItemCount()
}
