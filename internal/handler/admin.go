package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"barrel-market-api/internal/logging"
	"barrel-market-api/internal/model"
	"barrel-market-api/internal/repository"
	"barrel-market-api/internal/service"
	"barrel-market-api/pkg/apierror"
	"barrel-market-api/pkg/response"
	"barrel-market-api/pkg/uid"

	"github.com/go-chi/chi/v5"
)

const (
	maxAdminBody   = 4 << 10
	maxKeyLabelLen = 255
)

// QueueStatser exposes ingest queue counters.
type QueueStatser interface {
	Stats() service.QueueStats
}

// StoreStatser exposes store statistics.
type StoreStatser interface {
	GetStats(ctx context.Context) (map[string]interface{}, error)
}

// KeyManager issues and revokes intake keys.
type KeyManager interface {
	Create(ctx context.Context, key, label string) (*model.APIKey, error)
	Deactivate(ctx context.Context, key string) error
}

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	queue     QueueStatser
	store     StoreStatser
	keys      KeyManager
	dbType    string // sqlite or postgres
	startTime time.Time
	log       *slog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(queue QueueStatser, store StoreStatser, dbType string) *AdminHandler {
	return &AdminHandler{
		queue:     queue,
		store:     store,
		dbType:    dbType,
		startTime: time.Now(),
		log:       logging.Component(nil, "admin"),
	}
}

// SetKeyManager enables the key endpoints.
func (h *AdminHandler) SetKeyManager(keys KeyManager) {
	h.keys = keys
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]interface{})

	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["db_type"] = h.dbType

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	if h.queue != nil {
		stats["ingest"] = h.queue.Stats()
	}

	if h.store != nil {
		storeStats, err := h.store.GetStats(r.Context())
		if err == nil {
			storeStats["status"] = "connected"
			stats["store"] = storeStats
		} else {
			stats["store"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	} else {
		stats["store"] = map[string]interface{}{
			"status": "not_configured",
		}
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

type createKeyRequest struct {
	Label string `json:"label"`
}

// CreateKey handles POST /api/v1/admin/keys
func (h *AdminHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	if h.keys == nil {
		response.Error(w, apierror.ServiceUnavailable("key store is not configured"))
		return
	}

	var req createKeyRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxAdminBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(w, apierror.BadRequest("invalid JSON: "+err.Error()))
		return
	}
	req.Label = strings.TrimSpace(req.Label)
	if len(req.Label) > maxKeyLabelLen {
		response.Error(w, apierror.ValidationError("invalid key",
			apierror.FieldError{Field: "label", Message: "must be at most 255 bytes"}))
		return
	}

	key, err := h.keys.Create(r.Context(), strings.ReplaceAll(uid.New(), "-", ""), req.Label)
	if err != nil {
		h.log.Error("create api key failed", "error", err)
		response.Error(w, apierror.InternalError(""))
		return
	}

	h.log.Info("api key created", "id", key.ID, "label", key.Label)
	response.JSON(w, http.StatusCreated, key)
}

// DeactivateKey handles DELETE /api/v1/admin/keys/{key}
func (h *AdminHandler) DeactivateKey(w http.ResponseWriter, r *http.Request) {
	if h.keys == nil {
		response.Error(w, apierror.ServiceUnavailable("key store is not configured"))
		return
	}

	key := chi.URLParam(r, "key")
	err := h.keys.Deactivate(r.Context(), key)
	switch {
	case errors.Is(err, repository.ErrAPIKeyNotFound):
		response.Error(w, apierror.NotFound("api key not found"))
		return
	case err != nil:
		h.log.Error("deactivate api key failed", "error", err)
		response.Error(w, apierror.InternalError(""))
		return
	}

	response.OK(w, map[string]bool{"deactivated": true})
}
