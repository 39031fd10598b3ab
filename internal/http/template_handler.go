package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/fieldwork-scheduler/internal/application"
)

type templatePreviewer interface {
	PreviewTemplate(ctx context.Context, templateID string, overrides map[string]string) (application.TemplatePreview, error)
}

// TemplateHandler renders notification templates for review.
type TemplateHandler struct {
	previewer templatePreviewer
	responder responder
	logger    *slog.Logger
}

func NewTemplateHandler(previewer templatePreviewer, logger *slog.Logger) *TemplateHandler {
	return &TemplateHandler{previewer: previewer, responder: newResponder(logger), logger: defaultLogger(logger)}
}

// Preview renders the template with sample values. Query parameters override
// the sample value of the placeholder with the same name.
func (h *TemplateHandler) Preview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	overrides := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			overrides[key] = values[0]
		}
	}

	preview, err := h.previewer.PreviewTemplate(r.Context(), id, overrides)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, preview)
}
