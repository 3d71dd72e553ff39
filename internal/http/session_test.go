package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"winterstorm/internal/core"
)

func TestSessionIssuesCookie(t *testing.T) {
	st := newSessionStore(10, time.Hour)

	rec := httptest.NewRecorder()
	id := st.id(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != sessionCookie || cookies[0].Value != id {
		t.Fatalf("expected session cookie for %s, got %v", id, cookies)
	}
	if !cookies[0].HttpOnly {
		t.Fatal("session cookie must be HttpOnly")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	if got := st.id(rec, req); got != id {
		t.Fatalf("expected existing id %s, got %s", id, got)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("known session should not be reissued")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "forged"})
	if got := st.id(httptest.NewRecorder(), req); got == "forged" {
		t.Fatal("unknown session id must be replaced")
	}
}

func TestSessionUpdateIsolatesCopies(t *testing.T) {
	st := newSessionStore(10, time.Hour)
	id := st.id(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	st.update(id, func(s *session) {
		s.Debts = append(s.Debts, core.Debt{Name: "A", Balance: decimal.NewFromInt(100)})
	})

	snapshot := st.get(id)
	snapshot.Debts[0].Name = "mutated"
	if st.get(id).Debts[0].Name != "A" {
		t.Fatal("get must return a copy of the debts")
	}
}

func TestSessionFlashShownOnce(t *testing.T) {
	st := newSessionStore(10, time.Hour)
	id := st.id(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	st.update(id, func(s *session) { s.Flash, s.FlashError = "oops", true })

	first := st.takeFlash(id)
	if first.Flash != "oops" || !first.FlashError {
		t.Fatalf("expected flash, got %+v", first)
	}
	if second := st.takeFlash(id); second.Flash != "" {
		t.Fatalf("flash should be cleared, got %q", second.Flash)
	}
	if st.get(id).Strategy != core.Avalanche {
		t.Fatal("new sessions default to avalanche")
	}
}
