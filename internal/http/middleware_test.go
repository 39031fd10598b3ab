package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/fieldwork-scheduler/internal/audit"
)

func TestRecoverConvertsPanicsTo500(t *testing.T) {
	t.Parallel()

	handler := Recover(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bookings", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestActorFromHeader(t *testing.T) {
	t.Parallel()

	var seen []string
	handler := RequestLogger(nil)(ActorFromHeader(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, ActorFromContext(r.Context()))
		if LoggerFromContext(r.Context()) == nil {
			t.Fatalf("expected request scoped logger")
		}
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ActorHeader, "  crew-lead ")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	blank := httptest.NewRequest(http.MethodGet, "/", nil)
	blank.Header.Set(ActorHeader, "   ")
	handler.ServeHTTP(httptest.NewRecorder(), blank)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected status passthrough, got %d", rec.Code)
	}
	if len(seen) != 2 || seen[0] != "crew-lead" || seen[1] != audit.SystemActor {
		t.Fatalf("unexpected actors %v", seen)
	}
}
