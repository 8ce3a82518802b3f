package api

import (
	"context"
	"net/http"
)

type componentStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// Pinger is implemented by collaborators that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

func (h *Handler) componentHealth(ctx context.Context, extras map[string]Pinger) ([]componentStatus, string, int) {
	overallStatus := "ok"
	statusCode := http.StatusOK
	recordComponent := func(component string, err error) componentStatus {
		status := "ok"
		message := ""
		if err != nil {
			status = "degraded"
			message = err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
		return componentStatus{Component: component, Status: status, Error: message}
	}

	components := make([]componentStatus, 0, 1+len(extras))
	if h.Store != nil {
		components = append(components, recordComponent("datastore", h.Store.Ping(ctx)))
	}
	for name, pinger := range extras {
		if pinger != nil {
			components = append(components, recordComponent(name, pinger.Ping(ctx)))
		}
	}
	return components, overallStatus, statusCode
}

// Healthz reports datastore health for readiness probes.
func (h *Handler) Healthz(extras map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			writeError(w, http.StatusMethodNotAllowed, methodNotAllowed(r.Method))
			return
		}
		components, overall, statusCode := h.componentHealth(r.Context(), extras)
		writeJSON(w, statusCode, map[string]interface{}{
			"status":     overall,
			"components": components,
		})
	}
}
