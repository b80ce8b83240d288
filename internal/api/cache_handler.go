package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/opcore/internal/api/shared"
	"github.com/phrazzld/opcore/internal/cache"
	"github.com/phrazzld/opcore/internal/platform/logger"
)

// CacheHandler exposes cache statistics and invalidation
type CacheHandler struct {
	cache  *cache.Cache
	logger *slog.Logger
}

// NewCacheHandler creates a new CacheHandler
func NewCacheHandler(c *cache.Cache, logger *slog.Logger) *CacheHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for CacheHandler")
	}

	return &CacheHandler{
		cache:  c,
		logger: logger.With(slog.String("component", "cache_handler")),
	}
}

// Stats handles GET /api/cache/stats requests
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.cache.Stats())
}

// Clear handles DELETE /api/cache requests
func (h *CacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	removed := h.cache.Len()
	h.cache.Clear()

	logger.FromContextOrDefault(r.Context(), h.logger).Info("cache cleared", "entries", removed)
	w.WriteHeader(http.StatusNoContent)
}
