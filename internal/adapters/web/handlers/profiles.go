package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
	"github.com/ecucondorSA/autorenta-sub030/internal/profile"
)

// ProfileLock is the lock state of one configured profile
type ProfileLock struct {
	Name  string           `json:"name"`
	Path  string           `json:"path"`
	Lock  profile.LockInfo `json:"lock"`
	Error string           `json:"error,omitempty"`
}

// ProfilesHandler reports lock files without touching them
type ProfilesHandler struct {
	profiles   []models.BrowserProfileConfig
	staleAfter time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// NewProfilesHandler creates a handler over the configured profiles
func NewProfilesHandler(profiles []models.BrowserProfileConfig, staleAfter time.Duration, logger *slog.Logger) *ProfilesHandler {
	return &ProfilesHandler{
		profiles:   profiles,
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     logger,
	}
}

// Handle serves GET /profiles
func (h *ProfilesHandler) Handle(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	out := make([]ProfileLock, 0, len(h.profiles))
	for _, p := range h.profiles {
		lockPath := p.LockFilePath
		if lockPath == "" {
			lockPath = profile.DefaultLockPath(p.ProfilePath)
		}
		entry := ProfileLock{Name: p.ProfileName, Path: p.ProfilePath}
		info, err := profile.Inspect(lockPath, h.staleAfter, now)
		if err != nil {
			h.logger.Warn("Failed to inspect profile lock", "profile", p.ProfileName, "error", err)
			entry.Error = err.Error()
		}
		entry.Lock = info
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, out)
}
