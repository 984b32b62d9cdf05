package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"barrel-market-api/internal/model"
	"barrel-market-api/internal/repository"
	"barrel-market-api/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestReady(t *testing.T) {
	rec := httptest.NewRecorder()
	New("test", newTestStore(t)).Ready(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })
	rec = httptest.NewRecorder()
	New("test", down).Ready(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ReadyResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &resp))
	assert.False(t, resp.Ready)
}

func TestStatus_Degraded(t *testing.T) {
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })
	rec := httptest.NewRecorder()
	New("test", down).Status(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "error", resp.Checks.Database)
	assert.Equal(t, "no-store, no-cache, must-revalidate", rec.Header().Get("Cache-Control"))
}

type staticQueue service.QueueStats

func (q staticQueue) Stats() service.QueueStats { return service.QueueStats(q) }

func TestAdminStats(t *testing.T) {
	h := NewAdminHandler(staticQueue{Persisted: 4, Skipped: 1}, newTestStore(t), "sqlite")

	rec := httptest.NewRecorder()
	h.GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &stats))
	assert.Contains(t, stats, "ingest")
	assert.Contains(t, stats, "runtime")

	var store map[string]interface{}
	require.NoError(t, json.Unmarshal(stats["store"], &store))
	assert.Equal(t, "connected", store["status"])
}

type memoryKeys struct {
	active map[string]bool
}

func (m *memoryKeys) Create(_ context.Context, key, label string) (*model.APIKey, error) {
	m.active[key] = true
	return &model.APIKey{ID: int64(len(m.active)), Key: key, Label: label, Active: true}, nil
}

func (m *memoryKeys) Deactivate(_ context.Context, key string) error {
	if !m.active[key] {
		return repository.ErrAPIKeyNotFound
	}
	m.active[key] = false
	return nil
}

func TestAdminKeys(t *testing.T) {
	keys := &memoryKeys{active: map[string]bool{}}
	h := NewAdminHandler(staticQueue{}, nil, "sqlite")
	h.SetKeyManager(keys)

	r := chi.NewRouter()
	r.Post("/keys", h.CreateKey)
	r.Delete("/keys/{key}", h.DeactivateKey)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/keys", strings.NewReader(`{"label":" scanner-1 "}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created model.APIKey
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &created))
	assert.Equal(t, "scanner-1", created.Label)
	assert.Len(t, created.Key, 32)
	assert.True(t, keys.active[created.Key])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/keys/"+created.Key, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, keys.active[created.Key])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/keys/"+created.Key, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/keys", strings.NewReader(`{"label":`+`"`+strings.Repeat("x", 256)+`"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/keys", nil))
	assert.Equal(t, http.StatusCreated, rec.Code, "label is optional")
}

func TestAdminKeys_NotConfigured(t *testing.T) {
	h := NewAdminHandler(staticQueue{}, nil, "sqlite")

	rec := httptest.NewRecorder()
	h.CreateKey(rec, httptest.NewRequest(http.MethodPost, "/keys", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
