package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/fieldwork-scheduler/internal/application"
)

type bookingService interface {
	CreateBooking(ctx context.Context, params application.CreateBookingParams) (application.Booking, error)
	UpdateBooking(ctx context.Context, params application.UpdateBookingParams) (application.Booking, error)
	DeleteBooking(ctx context.Context, actor, bookingID string) error
	GetBooking(ctx context.Context, bookingID string) (application.Booking, error)
	ListBookings(ctx context.Context, params application.ListBookingsParams) ([]application.Booking, error)
	AddResource(ctx context.Context, params application.AddBookingResourceParams) (application.BookingResource, error)
	RemoveResource(ctx context.Context, actor, bookingID, attachmentID string) error
}

// BookingHandler serves the booking endpoints.
type BookingHandler struct {
	service   bookingService
	responder responder
	logger    *slog.Logger
}

// NewBookingHandler constructs a booking handler.
func NewBookingHandler(service bookingService, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{service: service, responder: newResponder(logger), logger: defaultLogger(logger)}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	input, vErr := req.toInput()
	if vErr != nil {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	booking, err := h.service.CreateBooking(r.Context(), application.CreateBookingParams{
		Actor: ActorFromContext(r.Context()),
		Input: input,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toBookingDTO(booking))
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	booking, err := h.service.GetBooking(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toBookingDTO(booking))
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	params, vErr := buildListParams(r.URL.Query())
	if vErr != nil {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	bookings, err := h.service.ListBookings(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]bookingDTO, 0, len(bookings))
	for _, booking := range bookings {
		out = append(out, toBookingDTO(booking))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listBookingsResponse{Bookings: out})
}

func (h *BookingHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	var req bookingPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	patch, vErr := req.toPatch()
	if vErr != nil {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	booking, err := h.service.UpdateBooking(r.Context(), application.UpdateBookingParams{
		Actor:     ActorFromContext(r.Context()),
		BookingID: id,
		Patch:     patch,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toBookingDTO(booking))
}

func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	if err := h.service.DeleteBooking(r.Context(), ActorFromContext(r.Context()), id); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *BookingHandler) AddResource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	var req attachResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	attachment, err := h.service.AddResource(r.Context(), application.AddBookingResourceParams{
		Actor:          ActorFromContext(r.Context()),
		BookingID:      id,
		ResourceID:     strings.TrimSpace(req.ResourceID),
		Quantity:       req.Quantity,
		AssignedUserID: strings.TrimSpace(req.AssignedUserID),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toAttachmentDTO(attachment))
}

func (h *BookingHandler) RemoveResource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(r, "id")
	attachmentID, attachmentOK := pathParam(r, "attachmentID")
	if !ok || !attachmentOK {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	if err := h.service.RemoveResource(r.Context(), ActorFromContext(r.Context()), id, attachmentID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type bookingRequest struct {
	ResourceKind   string `json:"resource_kind"`
	ResourceID     string `json:"resource_id"`
	Start          string `json:"start"`
	End            string `json:"end"`
	JobName        string `json:"job_name"`
	JobNumber      string `json:"job_number"`
	Description    string `json:"description"`
	Location       string `json:"location"`
	AssignedUserID string `json:"assigned_user_id"`
}

func (r bookingRequest) toInput() (application.BookingInput, error) {
	fields := fieldErrors{}
	start := fields.parseTime("start", r.Start)
	end := fields.parseTime("end", r.End)
	if err := fields.err(); err != nil {
		return application.BookingInput{}, err
	}
	return application.BookingInput{
		ResourceKind:   application.ResourceKind(strings.TrimSpace(r.ResourceKind)),
		ResourceID:     strings.TrimSpace(r.ResourceID),
		Start:          start,
		End:            end,
		JobName:        strings.TrimSpace(r.JobName),
		JobNumber:      strings.TrimSpace(r.JobNumber),
		Description:    r.Description,
		Location:       strings.TrimSpace(r.Location),
		AssignedUserID: strings.TrimSpace(r.AssignedUserID),
	}, nil
}

type bookingPatchRequest struct {
	ResourceKind   *string `json:"resource_kind"`
	ResourceID     *string `json:"resource_id"`
	Start          *string `json:"start"`
	End            *string `json:"end"`
	JobName        *string `json:"job_name"`
	JobNumber      *string `json:"job_number"`
	Description    *string `json:"description"`
	Location       *string `json:"location"`
	AssignedUserID *string `json:"assigned_user_id"`
	Status         *string `json:"status"`
}

func (r bookingPatchRequest) toPatch() (application.BookingPatch, error) {
	fields := fieldErrors{}
	patch := application.BookingPatch{
		ResourceID:     r.ResourceID,
		JobName:        r.JobName,
		JobNumber:      r.JobNumber,
		Description:    r.Description,
		Location:       r.Location,
		AssignedUserID: r.AssignedUserID,
	}
	if r.ResourceKind != nil {
		kind := application.ResourceKind(strings.TrimSpace(*r.ResourceKind))
		patch.ResourceKind = &kind
	}
	if r.Status != nil {
		status := application.BookingStatus(strings.TrimSpace(*r.Status))
		patch.Status = &status
	}
	if r.Start != nil {
		start := fields.parseTime("start", *r.Start)
		patch.Start = &start
	}
	if r.End != nil {
		end := fields.parseTime("end", *r.End)
		patch.End = &end
	}
	if err := fields.err(); err != nil {
		return application.BookingPatch{}, err
	}
	return patch, nil
}

type attachResourceRequest struct {
	ResourceID     string `json:"resource_id"`
	Quantity       int    `json:"quantity"`
	AssignedUserID string `json:"assigned_user_id"`
}

func buildListParams(values url.Values) (application.ListBookingsParams, error) {
	fields := fieldErrors{}
	params := application.ListBookingsParams{
		ResourceID:     strings.TrimSpace(values.Get("resource_id")),
		AssignedUserID: strings.TrimSpace(values.Get("assigned_user_id")),
	}
	for _, raw := range strings.Split(values.Get("status"), ",") {
		if status := strings.TrimSpace(raw); status != "" {
			params.Statuses = append(params.Statuses, application.BookingStatus(status))
		}
	}
	if raw := values.Get("from"); raw != "" {
		from := fields.parseTime("from", raw)
		params.From = &from
	}
	if raw := values.Get("until"); raw != "" {
		until := fields.parseTime("until", raw)
		params.Until = &until
	}
	if err := fields.err(); err != nil {
		return application.ListBookingsParams{}, err
	}
	return params, nil
}

type listBookingsResponse struct {
	Bookings []bookingDTO `json:"bookings"`
}

type bookingDTO struct {
	ID             string          `json:"id"`
	ResourceKind   string          `json:"resource_kind"`
	ResourceID     string          `json:"resource_id"`
	Start          string          `json:"start"`
	End            string          `json:"end"`
	JobName        string          `json:"job_name"`
	JobNumber      string          `json:"job_number,omitempty"`
	Description    string          `json:"description,omitempty"`
	Location       string          `json:"location,omitempty"`
	AssignedUserID string          `json:"assigned_user_id,omitempty"`
	Status         string          `json:"status"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
	Resources      []attachmentDTO `json:"resources,omitempty"`
}

type attachmentDTO struct {
	ID             string `json:"id"`
	ResourceKind   string `json:"resource_kind"`
	ResourceID     string `json:"resource_id"`
	Quantity       int    `json:"quantity"`
	AssignedUserID string `json:"assigned_user_id,omitempty"`
}

func toBookingDTO(b application.Booking) bookingDTO {
	dto := bookingDTO{
		ID:             b.ID,
		ResourceKind:   string(b.ResourceKind),
		ResourceID:     b.ResourceID,
		Start:          formatTime(b.Start),
		End:            formatTime(b.End),
		JobName:        b.JobName,
		JobNumber:      b.JobNumber,
		Description:    b.Description,
		Location:       b.Location,
		AssignedUserID: b.AssignedUserID,
		Status:         string(b.Status),
		CreatedAt:      formatTime(b.CreatedAt),
		UpdatedAt:      formatTime(b.UpdatedAt),
	}
	for _, attachment := range b.Resources {
		dto.Resources = append(dto.Resources, toAttachmentDTO(attachment))
	}
	return dto
}

func toAttachmentDTO(a application.BookingResource) attachmentDTO {
	return attachmentDTO{
		ID:             a.ID,
		ResourceKind:   string(a.ResourceKind),
		ResourceID:     a.ResourceID,
		Quantity:       a.Quantity,
		AssignedUserID: a.AssignedUserID,
	}
}

func pathParam(r *http.Request, name string) (string, bool) {
	value := strings.TrimSpace(mux.Vars(r)[name])
	return value, value != ""
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// fieldErrors collects request decoding problems into a validation error.
type fieldErrors map[string]string

func (f fieldErrors) parseTime(field, value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		f[field] = "must be an RFC3339 timestamp"
		return time.Time{}
	}
	return ts
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &application.ValidationError{FieldErrors: f}
}
