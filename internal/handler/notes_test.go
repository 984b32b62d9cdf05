package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"barrel-market-api/internal/logging"
	"barrel-market-api/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postNote(t *testing.T, h *NoteHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notes", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Append(rec, req)
	return rec
}

func TestNoteAppend(t *testing.T) {
	store := newTestStore(t)
	h := NewNoteHandler(service.NewNoteService(store, time.UTC), 1<<20, logging.Discard())

	accepted := func(rec *httptest.ResponseRecorder) bool {
		var data struct {
			Accepted bool `json:"accepted"`
		}
		require.NoError(t, json.Unmarshal(decode(t, rec).Data, &data))
		return data.Accepted
	}

	rec := postNote(t, h, `{"x":1,"y":64,"z":0,"items":"64 diamonds, 2 saddles"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, accepted(rec))

	rec = postNote(t, h, `{"x":1,"y":64,"z":0,"items":"something else"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, accepted(rec), "second note on the same day is ignored")

	rec = postNote(t, h, `{"x":2,"y":64,"z":0,"items":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postNote(t, h, `{"x":2,"items":"apples"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postNote(t, h, `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INPUT_FAILURE", decode(t, rec).Error.Code)
}
