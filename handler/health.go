package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/aurachat/empathy-crawler-service/common"
	"github.com/aurachat/empathy-crawler-service/common/db"
	"github.com/aurachat/empathy-crawler-service/common/utils"
	"github.com/go-chi/chi/v5"
)

type HealthHandler struct {
	db     *db.DB
	router *chi.Mux
}

func NewHealthHandler(db *db.DB) *HealthHandler {
	h := &HealthHandler{
		db: db,
	}

	r := chi.NewRouter()
	r.Get("/", h.handleHealthCheck)
	r.Get("/database", h.handleDatabaseHealth)

	h.router = r
	return h
}

func (h *HealthHandler) Router() *chi.Mux {
	return h.router
}

func (h *HealthHandler) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   common.AppName,
	}

	utils.WriteJSON(w, http.StatusOK, response)
}

func (h *HealthHandler) handleDatabaseHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}

	if err := h.db.Ping(ctx); err != nil {
		response["status"] = "unhealthy"
		response["error"] = err.Error()
		utils.WriteJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	stat := h.db.Pool.Stat()
	response["database"] = map[string]interface{}{
		"total_conns": stat.TotalConns(),
		"idle_conns":  stat.IdleConns(),
		"max_conns":   stat.MaxConns(),
	}

	utils.WriteJSON(w, http.StatusOK, response)
}
