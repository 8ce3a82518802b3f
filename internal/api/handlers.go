package api

import (
	"log/slog"
	"net/http"

	"slidecast/internal/auth"
	"slidecast/internal/observability/metrics"
	"slidecast/internal/slides"
	"slidecast/internal/storage"
)

const defaultMaxUploadBytes = 50 << 20

// Handler bundles the collaborators the API routes need. Everything is
// injected; the package keeps no process-wide state.
type Handler struct {
	Store          storage.Repository
	Tokens         *auth.TokenIssuer
	Slides         *slides.Processor
	Logger         *slog.Logger
	Metrics        *metrics.Recorder
	MaxUploadBytes int64
}

func NewHandler(store storage.Repository, tokens *auth.TokenIssuer, processor *slides.Processor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:          store,
		Tokens:         tokens,
		Slides:         processor,
		Logger:         logger,
		MaxUploadBytes: defaultMaxUploadBytes,
	}
}

func (h *Handler) metrics() *metrics.Recorder {
	if h.Metrics != nil {
		return h.Metrics
	}
	return metrics.Default()
}

func (h *Handler) maxUploadBytes() int64 {
	if h.MaxUploadBytes > 0 {
		return h.MaxUploadBytes
	}
	return defaultMaxUploadBytes
}

// Ping responds to liveness probes from clients.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, methodNotAllowed(r.Method))
		return
	}
	writeJSON(w, http.StatusOK, "Pong")
}
