package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"winterstorm/internal/cache"
	"winterstorm/internal/core"
)

const sessionCookie = "winterstorm_session"

// session is one browser's in-progress debt list. It lives only in memory
// and expires after the configured TTL of inactivity.
type session struct {
	Debts             []core.Debt
	Strategy          core.Strategy
	AdditionalPayment decimal.Decimal
	// Flash is shown once on the next page render.
	Flash      string
	FlashError bool
}

func (s session) clone() session {
	s.Debts = append([]core.Debt(nil), s.Debts...)
	return s
}

func newSession() session {
	return session{Strategy: core.Avalanche, AdditionalPayment: decimal.Zero}
}

type sessionStore struct {
	cache *cache.LRUCache[session]
	ttl   time.Duration
}

func newSessionStore(maxSessions int, ttl time.Duration) *sessionStore {
	return &sessionStore{
		cache: cache.NewLRUCache[session](maxSessions, ttl),
		ttl:   ttl,
	}
}

// id returns the caller's session id, issuing a cookie when the request has
// none or refers to an unknown id.
func (st *sessionStore) id(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if _, ok := st.cache.Get(c.Value); ok {
			return c.Value
		}
	}
	id := uuid.NewString()
	st.cache.Set(id, newSession())
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(st.ttl.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// get returns a copy of the session.
func (st *sessionStore) get(id string) session {
	s, ok := st.cache.Get(id)
	if !ok {
		return newSession()
	}
	return s.clone()
}

// update applies fn to a copy of the session and stores the result.
func (st *sessionStore) update(id string, fn func(*session)) session {
	return st.cache.Update(id, func(old session, ok bool) session {
		next := newSession()
		if ok {
			next = old.clone()
		}
		fn(&next)
		return next
	})
}

// takeFlash returns the session and clears its flash message.
func (st *sessionStore) takeFlash(id string) session {
	var current session
	st.update(id, func(s *session) {
		current = s.clone()
		s.Flash, s.FlashError = "", false
	})
	return current
}

func (st *sessionStore) size() int {
	return st.cache.Size()
}
