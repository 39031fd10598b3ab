package http

import (
	"context"
	"log/slog"
	"net/http"
)

type jobTrigger interface {
	Trigger(ctx context.Context, name string) (any, bool, error)
}

// JobHandler runs periodic jobs on demand.
type JobHandler struct {
	jobs      jobTrigger
	responder responder
	logger    *slog.Logger
}

func NewJobHandler(jobs jobTrigger, logger *slog.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, responder: newResponder(logger), logger: defaultLogger(logger)}
}

type jobRunResponse struct {
	Job    string `json:"job"`
	Shared bool   `json:"shared"`
	Result any    `json:"result,omitempty"`
}

// Run triggers the named job and waits for its result. Shared reports that
// the request joined a run that was already in progress.
func (h *JobHandler) Run(w http.ResponseWriter, r *http.Request) {
	name, ok := pathParam(r, "name")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	logger := handlerLogger(r.Context(), h.logger, "JobHandler", "Run", "job", name)
	result, shared, err := h.jobs.Trigger(r.Context(), name)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	logger.InfoContext(r.Context(), "job run on demand", "shared", shared)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, jobRunResponse{Job: name, Shared: shared, Result: result})
}
