package handlers

import (
	"log/slog"
	"net/http"

	"github.com/ecucondorSA/autorenta-sub030/internal/application/usecases"
)

// StatusSource reports the monitor's current state
type StatusSource interface {
	Status() usecases.MonitorStatus
}

// StatusHandler handles status requests
type StatusHandler struct {
	source StatusSource
	mode   string
	logger *slog.Logger
}

// NewStatusHandler creates a new status handler. mode is the configured data mode.
func NewStatusHandler(source StatusSource, mode string, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		source: source,
		mode:   mode,
		logger: logger,
	}
}

// Handle handles status requests
func (h *StatusHandler) Handle(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":    h.mode,
		"monitor": h.source.Status(),
	})
}
