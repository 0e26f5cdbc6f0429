package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	visionamp "github.com/menta2k/vision-amp"
	"github.com/menta2k/vision-amp/internal/log"
)

// SessionCookie names the cookie carrying the session id
const SessionCookie = "vision_amp_session"

// SessionFactory creates the state for a new browser session
type SessionFactory func(ctx context.Context) (*visionamp.Session, error)

// sessionEntry serialises all operations of one session
type sessionEntry struct {
	mu       sync.Mutex
	session  *visionamp.Session
	lastUsed time.Time
}

type sessionManager struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	ttl      time.Duration
	factory  SessionFactory
	now      func() time.Time
}

func newSessionManager(factory SessionFactory, ttl time.Duration) *sessionManager {
	return &sessionManager{
		sessions: make(map[string]*sessionEntry),
		ttl:      ttl,
		factory:  factory,
		now:      time.Now,
	}
}

// acquire returns the caller's session, creating one and setting the cookie
// when the request carries no known id.
func (m *sessionManager) acquire(c echo.Context) (*sessionEntry, error) {
	id := ""
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		id = cookie.Value
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.sessions[id]; ok {
		entry.lastUsed = m.now()
		return entry, nil
	}

	session, err := m.factory(c.Request().Context())
	if err != nil {
		return nil, err
	}
	id = uuid.NewString()
	entry := &sessionEntry{session: session, lastUsed: m.now()}
	m.sessions[id] = entry
	log.Debugf("created session %s", id)

	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return entry, nil
}

// evictExpired drops sessions idle for longer than the TTL and returns how many were removed
func (m *sessionManager) evictExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.ttl)
	removed := 0
	for id, entry := range m.sessions {
		if entry.lastUsed.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func (m *sessionManager) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// run evicts idle sessions until ctx is done
func (m *sessionManager) run(ctx context.Context) {
	interval := m.ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.evictExpired(); n > 0 {
				log.Infof("evicted %d idle sessions", n)
			}
		}
	}
}
