package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"barrel-market-api/internal/logging"
	"barrel-market-api/internal/model"
	"barrel-market-api/internal/repository"
	"barrel-market-api/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu   sync.Mutex
	subs []model.Submission
	err  error
}

func (q *fakeQueue) Enqueue(sub model.Submission) (*service.Handle, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	q.subs = append(q.subs, sub)
	return nil, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    *struct {
		Page     int `json:"page"`
		PageSize int `json:"page_size"`
		Total    int `json:"total"`
		Pages    int `json:"pages"`
	} `json:"meta"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details []struct {
			Field string `json:"field"`
		} `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

var seedDay = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func seedRecord(name string, x int, at time.Time) *model.Record {
	return &model.Record{
		Name:         name,
		Price:        3,
		Quantity:     128,
		Seller:       "Tandi_",
		SellerUUID:   model.UnknownSeller,
		MinecraftID:  "minecraft:" + name,
		TypeID:       "valuables",
		TypeRu:       "Ценности",
		BenefitRatio: model.BenefitRatio(128, 3),
		X:            x,
		Y:            64,
		Z:            0,
		RecordDate:   model.RecordDate(at),
		CreatedAt:    at,
	}
}

func newTestStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()
	store, err := repository.NewSQLiteStore(":memory:", logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newListingHandler(t *testing.T, maxBody int64) (*ListingHandler, *fakeQueue, *repository.SQLiteStore) {
	t.Helper()
	store := newTestStore(t)
	listings := service.NewListingService(store, service.ListingConfig{
		SimilarityThreshold: 0.45,
		DefaultPageSize:     10,
		MaxPageSize:         100,
	})
	q := &fakeQueue{}
	return NewListingHandler(q, listings, maxBody, logging.Discard()), q, store
}

func TestSubmit(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantQueued int
		wantFields []string
	}{
		{
			name:       "single object",
			body:       `{"text":"Diamonds 3 for 128","x":10,"y":64,"z":-5}`,
			wantStatus: http.StatusAccepted,
			wantQueued: 1,
		},
		{
			name:       "array",
			body:       `[{"text":"a","x":1,"y":2,"z":3},{"text":"b","x":0,"y":0,"z":0}]`,
			wantStatus: http.StatusAccepted,
			wantQueued: 2,
		},
		{
			name:       "missing coordinate rejects the whole batch",
			body:       `[{"text":"a","x":1,"y":2,"z":3},{"text":"b","x":1,"y":2}]`,
			wantStatus: http.StatusBadRequest,
			wantFields: []string{"submissions[1].z"},
		},
		{
			name:       "blank text",
			body:       `{"text":"   ","x":1,"y":2,"z":3}`,
			wantStatus: http.StatusBadRequest,
			wantFields: []string{"submissions[0].text"},
		},
		{
			name:       "fractional coordinate",
			body:       `{"text":"a","x":1.5,"y":2,"z":3}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed JSON",
			body:       `{"text":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty array",
			body:       `[]`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty body",
			body:       ``,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, q, _ := newListingHandler(t, 1<<20)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/listings", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Submit(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			env := decode(t, rec)
			if tt.wantStatus != http.StatusAccepted {
				assert.False(t, env.Success)
				assert.Empty(t, q.subs)
				var fields []string
				for _, d := range env.Error.Details {
					fields = append(fields, d.Field)
				}
				for _, f := range tt.wantFields {
					assert.Contains(t, fields, f)
				}
				return
			}

			var data struct {
				Queued int `json:"queued"`
			}
			require.NoError(t, json.Unmarshal(env.Data, &data))
			assert.Equal(t, tt.wantQueued, data.Queued)
			assert.Len(t, q.subs, tt.wantQueued)
		})
	}
}

func TestSubmit_TrimsText(t *testing.T) {
	h, q, _ := newListingHandler(t, 1<<20)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/listings",
		strings.NewReader(`{"text":"  Diamonds  ","x":-1,"y":70,"z":2}`))
	rec := httptest.NewRecorder()
	h.Submit(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, q.subs, 1)
	assert.Equal(t, model.Submission{Text: "Diamonds", X: -1, Y: 70, Z: 2}, q.subs[0])
}

func TestSubmit_BodyTooLarge(t *testing.T) {
	h, q, _ := newListingHandler(t, 32)

	body := `{"text":"` + strings.Repeat("x", 64) + `","x":1,"y":2,"z":3}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/listings", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Submit(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", decode(t, rec).Error.Code)
	assert.Empty(t, q.subs)
}

func TestSubmit_QueueClosed(t *testing.T) {
	h, q, _ := newListingHandler(t, 1<<20)
	q.err = service.ErrQueueClosed

	req := httptest.NewRequest(http.MethodPost, "/api/v1/listings",
		strings.NewReader(`{"text":"a","x":1,"y":2,"z":3}`))
	rec := httptest.NewRecorder()
	h.Submit(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBarrels(t *testing.T) {
	h, _, store := newListingHandler(t, 1<<20)
	_, err := store.BulkInsert(context.Background(), []*model.Record{
		seedRecord("diamond", 1, seedDay),
		seedRecord("diamond", 1, seedDay.AddDate(0, 0, 1)),
		seedRecord("apple", 2, seedDay.Add(time.Hour)),
		seedRecord("emerald", 3, seedDay.Add(2*time.Hour)),
	})
	require.NoError(t, err)

	t.Run("paginates groups", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/listings/barrels?page=2&page_size=2&sort=name", nil)
		rec := httptest.NewRecorder()
		h.Barrels(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		env := decode(t, rec)
		require.NotNil(t, env.Meta)
		assert.Equal(t, 2, env.Meta.Page)
		assert.Equal(t, 2, env.Meta.PageSize)
		assert.Equal(t, 3, env.Meta.Total)
		assert.Equal(t, 2, env.Meta.Pages)

		var groups []model.Group
		require.NoError(t, json.Unmarshal(env.Data, &groups))
		require.Len(t, groups, 1)
		assert.Equal(t, "emerald", groups[0].Name)
	})

	t.Run("groups count every day of a barrel", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/listings/barrels?minecraft_id=minecraft:diamond", nil)
		rec := httptest.NewRecorder()
		h.Barrels(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var groups []model.Group
		require.NoError(t, json.Unmarshal(decode(t, rec).Data, &groups))
		require.Len(t, groups, 1)
		assert.Equal(t, 2, groups[0].Count)
		assert.NotNil(t, groups[0].Notes)
	})

	t.Run("huge page is an empty page", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/listings/barrels?page=1844674407370955161", nil)
		rec := httptest.NewRecorder()
		h.Barrels(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		env := decode(t, rec)
		require.NotNil(t, env.Meta)
		assert.Equal(t, 3, env.Meta.Total)
		assert.Empty(t, env.Data)
	})

	for _, q := range []string{"sort=cheapest", "page=two", "page_size=1.5"} {
		t.Run("rejects "+q, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/listings/barrels?"+q, nil)
			rec := httptest.NewRecorder()
			h.Barrels(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "VALIDATION_ERROR", decode(t, rec).Error.Code)
		})
	}
}

func TestHistory(t *testing.T) {
	h, _, store := newListingHandler(t, 1<<20)
	_, err := store.BulkInsert(context.Background(), []*model.Record{
		seedRecord("diamond", 1, seedDay),
		seedRecord("diamond", 1, seedDay.AddDate(0, 0, 1)),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/listings/barrels/history?x=1&y=64&z=0", nil)
	rec := httptest.NewRecorder()
	h.History(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var history model.History
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &history))
	assert.Equal(t, 2, history.Count)
	require.Len(t, history.Records, 2)
	assert.Equal(t, "2025-03-15", history.Records[0].RecordDate)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/listings/barrels/history?x=1&y=abc", nil)
	rec = httptest.NewRecorder()
	h.History(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	require.Len(t, env.Error.Details, 2)
	assert.Equal(t, "y", env.Error.Details[0].Field)
	assert.Equal(t, "z", env.Error.Details[1].Field)
}

func TestTypesAndItems(t *testing.T) {
	h, _, store := newListingHandler(t, 1<<20)
	_, err := store.BulkInsert(context.Background(), []*model.Record{
		seedRecord("diamond", 1, seedDay),
		seedRecord("emerald", 2, seedDay),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.Types(rec, httptest.NewRequest(http.MethodGet, "/api/v1/listings/types", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var types []model.TypeCount
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &types))
	require.Len(t, types, 1)
	assert.Equal(t, int64(2), types[0].Count)

	rec = httptest.NewRecorder()
	h.Items(rec, httptest.NewRequest(http.MethodGet, "/api/v1/listings/items?type=valuables", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var items []model.ItemCount
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &items))
	assert.Len(t, items, 2)

	rec = httptest.NewRecorder()
	h.Items(rec, httptest.NewRequest(http.MethodGet, "/api/v1/listings/items", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.All(rec, httptest.NewRequest(http.MethodGet, "/api/v1/listings/all", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var all []model.Record
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &all))
	assert.Len(t, all, 2)
}
