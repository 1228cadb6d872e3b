package session

import (
	"crypto/rand"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const CookieName = "gatekeeper_session"

type entry struct {
	data     *Session
	lastSeen time.Time
}

// Manager stores sessions in process memory. Sessions idle for longer than
// the TTL are dropped by Sweep; a TTL of zero keeps them until logout or
// restart. Every successful Load counts as activity. The cookie carries no
// expiry of its own, so idleness is judged only here.
type Manager struct {
	key    []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

func NewManager(secret string, ttl time.Duration, secure bool) *Manager {
	key := []byte(secret)
	if secret == "" {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic("failed to generate session key: " + err.Error())
		}
	}
	return &Manager{
		key:      key,
		ttl:      ttl,
		secure:   secure,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Load returns a copy of the request's session, or an empty unsaved one when
// the cookie is missing, forged or points at an expired session. A live
// session's idle clock restarts.
func (m *Manager) Load(r *http.Request) *Session {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return &Session{}
	}
	id, err := m.parse(c.Value)
	if err != nil {
		return &Session{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.sessions[id]
	if !ok || m.expired(e, now) {
		return &Session{}
	}
	e.lastSeen = now
	return e.data.clone()
}

// Save stores s, assigning an ID on first save, and (re)issues the cookie.
func (m *Manager) Save(w http.ResponseWriter, s *Session) error {
	now := m.now()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	token, err := m.sign(s.ID, now)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.sessions[s.ID] = &entry{data: s.clone(), lastSeen: now}
	m.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Destroy forgets the session and expires the cookie. s is left empty.
func (m *Manager) Destroy(w http.ResponseWriter, s *Session) {
	if s.ID != "" {
		m.mu.Lock()
		delete(m.sessions, s.ID)
		m.mu.Unlock()
	}
	*s = Session{}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Sweep drops sessions idle since before now-TTL and returns how many.
func (m *Manager) Sweep(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, e := range m.sessions {
		if m.expired(e, now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) expired(e *entry, now time.Time) bool {
	return m.ttl > 0 && now.Sub(e.lastSeen) > m.ttl
}

func (m *Manager) sign(id string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:       id,
		IssuedAt: jwt.NewNumericDate(now),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
}

func (m *Manager) parse(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil {
		return "", err
	}
	if claims.ID == "" {
		return "", errors.New("session token without id")
	}
	return claims.ID, nil
}
