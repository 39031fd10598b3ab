package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/fieldwork-scheduler/internal/config"
	httptransport "github.com/example/fieldwork-scheduler/internal/http"
)

func newTestApp(t *testing.T) *app {
	t.Helper()

	cfg := config.Config{
		SQLiteDSN: filepath.Join(t.TempDir(), "fieldsched.db"),
		Location:  time.UTC,
		Delivery:  config.DeliveryConfig{Timeout: time.Second},
		Weather:   config.WeatherConfig{DefaultLocation: "TBD"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.close(ctx)
	})
	return a
}

func call(t *testing.T, handler http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(httptransport.ActorHeader, "planner")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, target, err, rec.Body.String())
		}
	}
	return rec, payload
}

func TestAppServesHealthCheck(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	rec, payload := call(t, a.handler, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if payload["status"] != "ok" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestAppBookingLifecycleAgainstSQLite(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	first := `{"resource_kind":"equipment","resource_id":"eq-bt001","start":"2030-05-06T08:00:00Z","end":"2030-05-06T12:00:00Z","job_name":"Pole swap","location":"Site A"}`
	rec, created := call(t, a.handler, http.MethodPost, "/bookings", first)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("expected generated id, got %v", created)
	}

	overlap := `{"resource_kind":"equipment","resource_id":"eq-bt001","start":"2030-05-06T11:00:00Z","end":"2030-05-06T13:00:00Z","job_name":"Line check"}`
	rec, conflict := call(t, a.handler, http.MethodPost, "/bookings", overlap)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	conflicts, _ := conflict["conflicts"].([]any)
	if len(conflicts) != 1 {
		t.Fatalf("expected one conflict, got %v", conflict)
	}

	backToBack := `{"resource_kind":"equipment","resource_id":"eq-bt001","start":"2030-05-06T12:00:00Z","end":"2030-05-06T14:00:00Z","job_name":"Line check"}`
	if rec, _ := call(t, a.handler, http.MethodPost, "/bookings", backToBack); rec.Code != http.StatusCreated {
		t.Fatalf("expected adjacent booking to succeed, got %d: %s", rec.Code, rec.Body.String())
	}

	rec, listed := call(t, a.handler, http.MethodGet, "/bookings?resource_id=eq-bt001&status=scheduled", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if bookings, _ := listed["bookings"].([]any); len(bookings) != 2 {
		t.Fatalf("expected two bookings, got %v", listed)
	}

	if rec, _ := call(t, a.handler, http.MethodDelete, "/bookings/"+id, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec, fetched := call(t, a.handler, http.MethodGet, "/bookings/"+id, "")
	if rec.Code != http.StatusOK || fetched["status"] != "cancelled" {
		t.Fatalf("expected cancelled booking, got %d %v", rec.Code, fetched)
	}

	if rec, _ := call(t, a.handler, http.MethodPost, "/bookings", overlap); rec.Code != http.StatusConflict {
		t.Fatalf("expected conflict with the remaining booking, got %d", rec.Code)
	}
	morning := `{"resource_kind":"equipment","resource_id":"eq-bt001","start":"2030-05-06T08:00:00Z","end":"2030-05-06T11:00:00Z","job_name":"Rebook"}`
	if rec, _ := call(t, a.handler, http.MethodPost, "/bookings", morning); rec.Code != http.StatusCreated {
		t.Fatalf("expected cancelled slot to be reusable, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAppResourceCatalogAndPreview(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	rec, created := call(t, a.handler, http.MethodPost, "/resources", `{"kind":"consumable","name":"Cable ties","location":"Depot","quantity":10,"unit":"packs","reorder_threshold":2}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	id, _ := created["id"].(string)

	rec, adjusted := call(t, a.handler, http.MethodPost, "/resources/"+id+"/stock", `{"delta":-4}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if adjusted["quantity"] != 6.0 {
		t.Fatalf("expected quantity 6, got %v", adjusted["quantity"])
	}

	if rec, _ := call(t, a.handler, http.MethodPost, "/resources/"+id+"/stock", `{"delta":-40}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for negative stock, got %d", rec.Code)
	}

	rec, preview := call(t, a.handler, http.MethodGet, "/templates/tmpl-town-notification/preview?location=Site+B", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	subject, _ := preview["subject"].(string)
	if !strings.HasPrefix(subject, "Upcoming work in Site B") {
		t.Fatalf("unexpected subject %q", subject)
	}
}

func TestAppRunsJobsOnDemand(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	rec, payload := call(t, a.handler, http.MethodPost, "/jobs/maintenance/run", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	result, _ := payload["result"].(map[string]any)
	if result["job"] != "maintenance" {
		t.Fatalf("unexpected result %v", payload)
	}

	if rec, _ := call(t, a.handler, http.MethodPost, "/jobs/payroll/run", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", rec.Code)
	}
}
