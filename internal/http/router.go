package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

type RouterConfig struct {
	Bookings   *BookingHandler
	Resources  *ResourceHandler
	Templates  *TemplateHandler
	Jobs       *JobHandler
	Health     *HealthHandler
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	if cfg.Bookings != nil {
		r.HandleFunc("/bookings", cfg.Bookings.Create).Methods(http.MethodPost)
		r.HandleFunc("/bookings", cfg.Bookings.List).Methods(http.MethodGet)
		r.HandleFunc("/bookings/{id}", cfg.Bookings.Get).Methods(http.MethodGet)
		r.HandleFunc("/bookings/{id}", cfg.Bookings.Update).Methods(http.MethodPatch)
		r.HandleFunc("/bookings/{id}", cfg.Bookings.Delete).Methods(http.MethodDelete)
		r.HandleFunc("/bookings/{id}/resources", cfg.Bookings.AddResource).Methods(http.MethodPost)
		r.HandleFunc("/bookings/{id}/resources/{attachmentID}", cfg.Bookings.RemoveResource).Methods(http.MethodDelete)
	}

	if cfg.Resources != nil {
		r.HandleFunc("/resources", cfg.Resources.Create).Methods(http.MethodPost)
		r.HandleFunc("/resources", cfg.Resources.List).Methods(http.MethodGet)
		r.HandleFunc("/resources/{id}", cfg.Resources.Get).Methods(http.MethodGet)
		r.HandleFunc("/resources/{id}", cfg.Resources.Update).Methods(http.MethodPut)
		r.HandleFunc("/resources/{id}", cfg.Resources.Delete).Methods(http.MethodDelete)
		r.HandleFunc("/resources/{id}/usage", cfg.Resources.RecordUsage).Methods(http.MethodPost)
		r.HandleFunc("/resources/{id}/stock", cfg.Resources.AdjustStock).Methods(http.MethodPost)
	}

	if cfg.Templates != nil {
		r.HandleFunc("/templates/{id}/preview", cfg.Templates.Preview).Methods(http.MethodGet)
	}

	if cfg.Jobs != nil {
		r.HandleFunc("/jobs/{name}/run", cfg.Jobs.Run).Methods(http.MethodPost)
	}

	if cfg.Health != nil {
		r.HandleFunc("/healthz", cfg.Health.Check).Methods(http.MethodGet)
	}

	var handler http.Handler = r
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}
	return handler
}

func notFound(w http.ResponseWriter, r *http.Request) {
	newResponder(nil).writeError(r.Context(), w, http.StatusNotFound, nil)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	newResponder(nil).writeError(r.Context(), w, http.StatusMethodNotAllowed, nil)
}
