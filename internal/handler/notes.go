package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"barrel-market-api/internal/logging"
	"barrel-market-api/internal/model"
	"barrel-market-api/pkg/apierror"
	"barrel-market-api/pkg/response"
)

// NoteAppender stores barrel notes.
type NoteAppender interface {
	Append(ctx context.Context, x, y, z int, items string) (bool, error)
}

// NoteHandler handles barrel note requests.
type NoteHandler struct {
	notes   NoteAppender
	maxBody int64
	log     *slog.Logger
}

// NewNoteHandler creates a note handler.
func NewNoteHandler(notes NoteAppender, maxBody int64, log *slog.Logger) *NoteHandler {
	return &NoteHandler{notes: notes, maxBody: maxBody, log: logging.Component(log, "note-handler")}
}

type noteRequest struct {
	X     *int   `json:"x"`
	Y     *int   `json:"y"`
	Z     *int   `json:"z"`
	Items string `json:"items"`
}

// Append handles POST /api/v1/notes
func (h *NoteHandler) Append(w http.ResponseWriter, r *http.Request) {
	body, apiErr := readBody(w, r, h.maxBody)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	var req noteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON: "+err.Error()))
		return
	}
	if req.X == nil || req.Y == nil || req.Z == nil {
		response.Error(w, apierror.ValidationError("invalid note",
			apierror.FieldError{Field: "x,y,z", Message: "are required"}))
		return
	}

	accepted, err := h.notes.Append(r.Context(), *req.X, *req.Y, *req.Z, req.Items)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			response.Error(w, apierror.ValidationError("invalid note",
				apierror.FieldError{Field: "items", Message: "is required"}))
			return
		}
		h.log.Error("append note failed", "error", err)
		response.Error(w, apierror.InternalError(""))
		return
	}

	response.OK(w, map[string]bool{"accepted": accepted})
}
