package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/fieldwork-scheduler/internal/application"
)

type resourceService interface {
	CreateResource(ctx context.Context, params application.CreateResourceParams) (application.Resource, error)
	UpdateResource(ctx context.Context, params application.UpdateResourceParams) (application.Resource, error)
	GetResource(ctx context.Context, id string) (application.Resource, error)
	ListResources(ctx context.Context, kind application.ResourceKind) ([]application.Resource, error)
	RecordUsage(ctx context.Context, actor, id string, hours float64) (application.Resource, error)
	AdjustStock(ctx context.Context, actor, id string, delta float64) (application.Resource, error)
	DeleteResource(ctx context.Context, actor, id string) error
}

// ResourceHandler serves the resource catalog endpoints.
type ResourceHandler struct {
	service   resourceService
	responder responder
	logger    *slog.Logger
}

// NewResourceHandler constructs a resource handler.
func NewResourceHandler(service resourceService, logger *slog.Logger) *ResourceHandler {
	return &ResourceHandler{service: service, responder: newResponder(logger), logger: defaultLogger(logger)}
}

func (h *ResourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req resourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	input, vErr := req.toInput()
	if vErr != nil {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	resource, err := h.service.CreateResource(r.Context(), application.CreateResourceParams{
		Actor: ActorFromContext(r.Context()),
		Input: input,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toResourceDTO(resource))
}

func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	kind := application.ResourceKind(strings.TrimSpace(r.URL.Query().Get("kind")))
	resources, err := h.service.ListResources(r.Context(), kind)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]resourceDTO, 0, len(resources))
	for _, resource := range resources {
		out = append(out, toResourceDTO(resource))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listResourcesResponse{Resources: out})
}

func (h *ResourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	resource, err := h.service.GetResource(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toResourceDTO(resource))
}

func (h *ResourceHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	var req resourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	input, vErr := req.toInput()
	if vErr != nil {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	resource, err := h.service.UpdateResource(r.Context(), application.UpdateResourceParams{
		Actor:      ActorFromContext(r.Context()),
		ResourceID: id,
		Input:      input,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toResourceDTO(resource))
}

func (h *ResourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	if err := h.service.DeleteResource(r.Context(), ActorFromContext(r.Context()), id); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// RecordUsage adds operating hours to a piece of equipment.
func (h *ResourceHandler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	var req struct {
		Hours float64 `json:"hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	resource, err := h.service.RecordUsage(r.Context(), ActorFromContext(r.Context()), id, req.Hours)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toResourceDTO(resource))
}

// AdjustStock applies a signed quantity change to a consumable.
func (h *ResourceHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	var req struct {
		Delta float64 `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	resource, err := h.service.AdjustStock(r.Context(), ActorFromContext(r.Context()), id, req.Delta)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toResourceDTO(resource))
}

type resourceRequest struct {
	Kind                 string   `json:"kind"`
	Name                 string   `json:"name"`
	EquipmentType        string   `json:"equipment_type"`
	RequiresOperator     bool     `json:"requires_operator"`
	UsageHours           float64  `json:"usage_hours"`
	MaintenanceThreshold *float64 `json:"maintenance_threshold"`
	LastMaintenance      string   `json:"last_maintenance"`
	Email                string   `json:"email"`
	ManagerEmail         string   `json:"manager_email"`
	Location             string   `json:"location"`
	Quantity             float64  `json:"quantity"`
	Unit                 string   `json:"unit"`
	ReorderThreshold     float64  `json:"reorder_threshold"`
}

func (r resourceRequest) toInput() (application.ResourceInput, error) {
	fields := fieldErrors{}
	input := application.ResourceInput{
		Kind:                 application.ResourceKind(strings.TrimSpace(r.Kind)),
		Name:                 strings.TrimSpace(r.Name),
		EquipmentType:        strings.TrimSpace(r.EquipmentType),
		RequiresOperator:     r.RequiresOperator,
		UsageHours:           r.UsageHours,
		MaintenanceThreshold: r.MaintenanceThreshold,
		Email:                strings.TrimSpace(r.Email),
		ManagerEmail:         strings.TrimSpace(r.ManagerEmail),
		Location:             strings.TrimSpace(r.Location),
		Quantity:             r.Quantity,
		Unit:                 strings.TrimSpace(r.Unit),
		ReorderThreshold:     r.ReorderThreshold,
	}
	if strings.TrimSpace(r.LastMaintenance) != "" {
		last := fields.parseTime("last_maintenance", r.LastMaintenance)
		input.LastMaintenance = &last
	}
	if err := fields.err(); err != nil {
		return application.ResourceInput{}, err
	}
	return input, nil
}

type listResourcesResponse struct {
	Resources []resourceDTO `json:"resources"`
}

type resourceDTO struct {
	ID                   string   `json:"id"`
	Kind                 string   `json:"kind"`
	Name                 string   `json:"name"`
	EquipmentType        string   `json:"equipment_type,omitempty"`
	RequiresOperator     bool     `json:"requires_operator,omitempty"`
	UsageHours           float64  `json:"usage_hours,omitempty"`
	MaintenanceThreshold *float64 `json:"maintenance_threshold,omitempty"`
	LastMaintenance      string   `json:"last_maintenance,omitempty"`
	Email                string   `json:"email,omitempty"`
	ManagerEmail         string   `json:"manager_email,omitempty"`
	Location             string   `json:"location,omitempty"`
	Quantity             float64  `json:"quantity,omitempty"`
	Unit                 string   `json:"unit,omitempty"`
	ReorderThreshold     float64  `json:"reorder_threshold,omitempty"`
	CreatedAt            string   `json:"created_at"`
	UpdatedAt            string   `json:"updated_at"`
}

func toResourceDTO(res application.Resource) resourceDTO {
	var last time.Time
	if res.LastMaintenance != nil {
		last = *res.LastMaintenance
	}
	return resourceDTO{
		ID:                   res.ID,
		Kind:                 string(res.Kind),
		Name:                 res.Name,
		EquipmentType:        res.EquipmentType,
		RequiresOperator:     res.RequiresOperator,
		UsageHours:           res.UsageHours,
		MaintenanceThreshold: res.MaintenanceThreshold,
		LastMaintenance:      formatTime(last),
		Email:                res.Email,
		ManagerEmail:         res.ManagerEmail,
		Location:             res.Location,
		Quantity:             res.Quantity,
		Unit:                 res.Unit,
		ReorderThreshold:     res.ReorderThreshold,
		CreatedAt:            formatTime(res.CreatedAt),
		UpdatedAt:            formatTime(res.UpdatedAt),
	}
}
