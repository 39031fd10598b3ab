package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/fieldwork-scheduler/internal/application"
	"github.com/example/fieldwork-scheduler/internal/audit"
	"github.com/example/fieldwork-scheduler/internal/jobs"
	"github.com/example/fieldwork-scheduler/internal/persistence"
	"github.com/example/fieldwork-scheduler/internal/scheduler"
)

func newTestRouter(bookings *bookingServiceStub, resources *resourceServiceStub, previewer *previewerStub, trigger *jobTriggerStub, pinger Pinger) http.Handler {
	cfg := RouterConfig{Middleware: []func(http.Handler) http.Handler{Recover(nil), RequestLogger(nil), ActorFromHeader}}
	if bookings != nil {
		cfg.Bookings = NewBookingHandler(bookings, nil)
	}
	if resources != nil {
		cfg.Resources = NewResourceHandler(resources, nil)
	}
	if previewer != nil {
		cfg.Templates = NewTemplateHandler(previewer, nil)
	}
	if trigger != nil {
		cfg.Jobs = NewJobHandler(trigger, nil)
	}
	cfg.Health = NewHealthHandler(pinger, nil)
	return NewRouter(cfg)
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func TestBookingHandlers(t *testing.T) {
	t.Parallel()

	t.Run("create passes the actor and parsed window to the service", func(t *testing.T) {
		t.Parallel()
		stub := &bookingServiceStub{}
		router := newTestRouter(stub, nil, nil, nil, nil)

		body := `{"resource_kind":"equipment","resource_id":"rig-1","start":"2026-03-02T08:00:00Z","end":"2026-03-02T12:00:00Z","job_name":"Survey"}`
		rec := doRequest(t, router, http.MethodPost, "/bookings", body, map[string]string{ActorHeader: "dispatcher"})

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.Len(t, stub.created, 1)
		params := stub.created[0]
		assert.Equal(t, "dispatcher", params.Actor)
		assert.Equal(t, application.ResourceKindEquipment, params.Input.ResourceKind)
		assert.True(t, params.Input.Start.Equal(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)))

		dto := decodeBody[bookingDTO](t, rec)
		assert.Equal(t, "booking-1", dto.ID)
		assert.Equal(t, "2026-03-02T12:00:00Z", dto.End)
	})

	t.Run("create without actor header records the system actor", func(t *testing.T) {
		t.Parallel()
		stub := &bookingServiceStub{}
		router := newTestRouter(stub, nil, nil, nil, nil)

		body := `{"resource_kind":"equipment","resource_id":"rig-1","start":"2026-03-02T08:00:00Z","end":"2026-03-02T12:00:00Z","job_name":"Survey"}`
		rec := doRequest(t, router, http.MethodPost, "/bookings", body, nil)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, []string{audit.SystemActor}, stub.actors)
	})

	t.Run("malformed json yields 400", func(t *testing.T) {
		t.Parallel()
		stub := &bookingServiceStub{}
		rec := doRequest(t, newTestRouter(stub, nil, nil, nil, nil), http.MethodPost, "/bookings", `{"start":`, nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, stub.created)
	})

	t.Run("unparseable timestamps yield 422 without calling the service", func(t *testing.T) {
		t.Parallel()
		stub := &bookingServiceStub{}
		body := `{"resource_kind":"equipment","resource_id":"rig-1","start":"tomorrow","end":"2026-03-02T12:00:00Z","job_name":"Survey"}`
		rec := doRequest(t, newTestRouter(stub, nil, nil, nil, nil), http.MethodPost, "/bookings", body, nil)

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		resp := decodeBody[errorResponse](t, rec)
		assert.Contains(t, resp.Errors, "start")
		assert.Empty(t, stub.created)
	})

	t.Run("conflicts are returned with 409 and the blocking bookings", func(t *testing.T) {
		t.Parallel()
		window := scheduler.Window{
			Start: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC),
		}
		stub := &bookingServiceStub{err: &application.ConflictError{Conflicts: []scheduler.Conflict{{
			WithBookingID: "existing-1",
			Type:          scheduler.ConflictTypeResource,
			ResourceID:    "rig-1",
			Window:        window,
		}}}}
		body := `{"resource_kind":"equipment","resource_id":"rig-1","start":"2026-03-02T08:00:00Z","end":"2026-03-02T12:00:00Z","job_name":"Survey"}`
		rec := doRequest(t, newTestRouter(stub, nil, nil, nil, nil), http.MethodPost, "/bookings", body, nil)

		require.Equal(t, http.StatusConflict, rec.Code)
		resp := decodeBody[errorResponse](t, rec)
		require.Len(t, resp.Conflicts, 1)
		assert.Equal(t, "existing-1", resp.Conflicts[0].BookingID)
		assert.Equal(t, "resource", resp.Conflicts[0].Type)
		assert.Equal(t, "2026-03-02T09:00:00Z", resp.Conflicts[0].Start)
	})

	t.Run("list parses filters", func(t *testing.T) {
		t.Parallel()
		stub := &bookingServiceStub{bookings: []application.Booking{{ID: "b1", Status: application.BookingStatusScheduled}}}
		rec := doRequest(t, newTestRouter(stub, nil, nil, nil, nil), http.MethodGet,
			"/bookings?status=scheduled,%20rescheduled&resource_id=rig-1&from=2026-03-01T00:00:00Z", "", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, stub.listed, 1)
		params := stub.listed[0]
		assert.Equal(t, []application.BookingStatus{application.BookingStatusScheduled, application.BookingStatusRescheduled}, params.Statuses)
		assert.Equal(t, "rig-1", params.ResourceID)
		require.NotNil(t, params.From)
		assert.Nil(t, params.Until)

		resp := decodeBody[listBookingsResponse](t, rec)
		require.Len(t, resp.Bookings, 1)
		assert.Equal(t, "b1", resp.Bookings[0].ID)
	})

	t.Run("list rejects a bad until filter", func(t *testing.T) {
		t.Parallel()
		stub := &bookingServiceStub{}
		rec := doRequest(t, newTestRouter(stub, nil, nil, nil, nil), http.MethodGet, "/bookings?until=soon", "", nil)

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Empty(t, stub.listed)
	})

	t.Run("patch forwards only the supplied fields", func(t *testing.T) {
		t.Parallel()
		stub := &bookingServiceStub{booking: application.Booking{ID: "b1", Status: application.BookingStatusCancelled}}
		rec := doRequest(t, newTestRouter(stub, nil, nil, nil, nil), http.MethodPatch, "/bookings/b1", `{"status":"cancelled"}`, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, stub.updated, 1)
		patch := stub.updated[0].Patch
		require.NotNil(t, patch.Status)
		assert.Equal(t, application.BookingStatusCancelled, *patch.Status)
		assert.Nil(t, patch.Start)
		assert.Nil(t, patch.JobName)
		assert.Equal(t, "b1", stub.updated[0].BookingID)
		assert.False(t, stub.updated[0].TrustedCaller)
	})

	t.Run("missing booking maps to 404", func(t *testing.T) {
		t.Parallel()
		stub := &bookingServiceStub{err: fmt.Errorf("get booking: %w", application.ErrNotFound)}
		rec := doRequest(t, newTestRouter(stub, nil, nil, nil, nil), http.MethodGet, "/bookings/nope", "", nil)

		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", decodeBody[errorResponse](t, rec).ErrorCode)
	})

	t.Run("delete returns 204", func(t *testing.T) {
		t.Parallel()
		stub := &bookingServiceStub{}
		rec := doRequest(t, newTestRouter(stub, nil, nil, nil, nil), http.MethodDelete, "/bookings/b1", "", map[string]string{ActorHeader: "ops"})

		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, []string{"b1"}, stub.deleted)
		assert.Equal(t, []string{"ops"}, stub.actors)
	})

	t.Run("attachments are added and removed by path", func(t *testing.T) {
		t.Parallel()
		stub := &bookingServiceStub{attachment: application.BookingResource{ID: "att-1", ResourceID: "crew-2", Quantity: 1}}
		router := newTestRouter(stub, nil, nil, nil, nil)

		rec := doRequest(t, router, http.MethodPost, "/bookings/b1/resources", `{"resource_id":"crew-2","quantity":1}`, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
		require.Len(t, stub.attached, 1)
		assert.Equal(t, "b1", stub.attached[0].BookingID)
		assert.Equal(t, "att-1", decodeBody[attachmentDTO](t, rec).ID)

		rec = doRequest(t, router, http.MethodDelete, "/bookings/b1/resources/att-1", "", nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, []string{"b1/att-1"}, stub.deleted)
	})

	t.Run("store failures map to 500 without leaking details", func(t *testing.T) {
		t.Parallel()
		stub := &bookingServiceStub{err: &application.StoreError{Op: "list bookings", Err: persistence.ErrDatabaseLocked}}
		rec := doRequest(t, newTestRouter(stub, nil, nil, nil, nil), http.MethodGet, "/bookings", "", nil)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		resp := decodeBody[errorResponse](t, rec)
		assert.Equal(t, "internal server error", resp.Message)
	})

	t.Run("wrong method yields 405", func(t *testing.T) {
		t.Parallel()
		rec := doRequest(t, newTestRouter(&bookingServiceStub{}, nil, nil, nil, nil), http.MethodPut, "/bookings/b1", `{}`, nil)

		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestResourceHandlers(t *testing.T) {
	t.Parallel()

	t.Run("create parses kind specific fields", func(t *testing.T) {
		t.Parallel()
		stub := &resourceServiceStub{}
		body := `{"kind":"equipment","name":"Drill","maintenance_threshold":250,"last_maintenance":"2026-01-10T00:00:00Z"}`
		rec := doRequest(t, newTestRouter(nil, stub, nil, nil, nil), http.MethodPost, "/resources", body, nil)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.Len(t, stub.inputs, 1)
		input := stub.inputs[0]
		require.NotNil(t, input.MaintenanceThreshold)
		assert.Equal(t, 250.0, *input.MaintenanceThreshold)
		require.NotNil(t, input.LastMaintenance)
		assert.Equal(t, 2026, input.LastMaintenance.Year())
	})

	t.Run("list forwards the kind filter", func(t *testing.T) {
		t.Parallel()
		stub := &resourceServiceStub{resource: application.Resource{ID: "c1", Kind: application.ResourceKindConsumable, Quantity: 4}}
		rec := doRequest(t, newTestRouter(nil, stub, nil, nil, nil), http.MethodGet, "/resources?kind=consumable", "", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, application.ResourceKindConsumable, stub.listKind)
		resp := decodeBody[listResourcesResponse](t, rec)
		require.Len(t, resp.Resources, 1)
		assert.Equal(t, 4.0, resp.Resources[0].Quantity)
	})

	t.Run("usage and stock endpoints pass amounts through", func(t *testing.T) {
		t.Parallel()
		stub := &resourceServiceStub{resource: application.Resource{ID: "r1", Kind: application.ResourceKindEquipment, UsageHours: 10}}
		router := newTestRouter(nil, stub, nil, nil, nil)

		rec := doRequest(t, router, http.MethodPost, "/resources/r1/usage", `{"hours":2.5}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 12.5, decodeBody[resourceDTO](t, rec).UsageHours)

		rec = doRequest(t, router, http.MethodPost, "/resources/r1/stock", `{"delta":-3}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []float64{2.5}, stub.usage)
		assert.Equal(t, []float64{-3}, stub.deltas)
	})

	t.Run("validation failures map to 422 with field errors", func(t *testing.T) {
		t.Parallel()
		stub := &resourceServiceStub{err: &application.ValidationError{FieldErrors: map[string]string{"hours": "must be positive"}}}
		rec := doRequest(t, newTestRouter(nil, stub, nil, nil, nil), http.MethodPost, "/resources/r1/usage", `{"hours":0}`, nil)

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "must be positive", decodeBody[errorResponse](t, rec).Errors["hours"])
	})

	t.Run("duplicates map to 409", func(t *testing.T) {
		t.Parallel()
		stub := &resourceServiceStub{err: fmt.Errorf("create resource: %w", application.ErrAlreadyExists)}
		rec := doRequest(t, newTestRouter(nil, stub, nil, nil, nil), http.MethodPost, "/resources", `{"kind":"person","name":"Ana"}`, nil)

		require.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("update and delete route by id", func(t *testing.T) {
		t.Parallel()
		stub := &resourceServiceStub{}
		router := newTestRouter(nil, stub, nil, nil, nil)

		rec := doRequest(t, router, http.MethodPut, "/resources/r9", `{"kind":"person","name":"Ana"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "r9", decodeBody[resourceDTO](t, rec).ID)

		rec = doRequest(t, router, http.MethodDelete, "/resources/r9", "", nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestTemplateAndJobHandlers(t *testing.T) {
	t.Parallel()

	t.Run("preview applies query overrides", func(t *testing.T) {
		t.Parallel()
		previewer := &previewerStub{}
		rec := doRequest(t, newTestRouter(nil, nil, previewer, nil, nil), http.MethodGet, "/templates/t1/preview?job_name=Bridge", "", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Bridge", previewer.overrides["job_name"])
		preview := decodeBody[application.TemplatePreview](t, rec)
		assert.Equal(t, "Reminder for Bridge", preview.Subject)
		assert.Equal(t, "t1", preview.TemplateID)
	})

	t.Run("job run returns the sweep report", func(t *testing.T) {
		t.Parallel()
		trigger := &jobTriggerStub{result: application.SweepReport{Job: "rerouting", Affected: 2}, shared: true}
		rec := doRequest(t, newTestRouter(nil, nil, nil, trigger, nil), http.MethodPost, "/jobs/rerouting/run", "", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"rerouting"}, trigger.names)
		var resp struct {
			Job    string                  `json:"job"`
			Shared bool                    `json:"shared"`
			Result application.SweepReport `json:"result"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Shared)
		assert.Equal(t, 2, resp.Result.Affected)
	})

	t.Run("job errors map to status codes", func(t *testing.T) {
		t.Parallel()
		cases := []struct {
			err  error
			want int
		}{
			{err: jobs.ErrUnknownJob, want: http.StatusNotFound},
			{err: jobs.ErrRunnerStopped, want: http.StatusServiceUnavailable},
			{err: context.DeadlineExceeded, want: http.StatusServiceUnavailable},
			{err: errors.New("boom"), want: http.StatusInternalServerError},
		}
		for _, tc := range cases {
			trigger := &jobTriggerStub{err: tc.err}
			rec := doRequest(t, newTestRouter(nil, nil, nil, trigger, nil), http.MethodPost, "/jobs/weather/run", "", nil)
			assert.Equal(t, tc.want, rec.Code, "error %v", tc.err)
		}
	})
}

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, newTestRouter(nil, nil, nil, nil, pingerStub{}), http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[healthResponse](t, rec).Status)

	rec = doRequest(t, newTestRouter(nil, nil, nil, nil, pingerStub{err: persistence.ErrDatabaseLocked}), http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", decodeBody[healthResponse](t, rec).Status)
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, newTestRouter(nil, nil, nil, nil, nil), http.MethodGet, "/rooms", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeBody[errorResponse](t, rec).ErrorCode)
}
