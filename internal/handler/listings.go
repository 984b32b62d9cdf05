package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"barrel-market-api/internal/logging"
	"barrel-market-api/internal/model"
	"barrel-market-api/internal/service"
	"barrel-market-api/pkg/apierror"
	"barrel-market-api/pkg/response"
)

// Enqueuer accepts submissions for ingestion.
type Enqueuer interface {
	Enqueue(sub model.Submission) (*service.Handle, error)
}

// ListingHandler serves listing intake and the read endpoints.
type ListingHandler struct {
	queue    Enqueuer
	listings *service.ListingService
	maxBody  int64
	log      *slog.Logger
}

// NewListingHandler creates a listing handler. maxBody bounds intake bodies.
func NewListingHandler(queue Enqueuer, listings *service.ListingService, maxBody int64, log *slog.Logger) *ListingHandler {
	return &ListingHandler{
		queue:    queue,
		listings: listings,
		maxBody:  maxBody,
		log:      logging.Component(log, "listing-handler"),
	}
}

type submissionRequest struct {
	Text string `json:"text"`
	X    *int   `json:"x"`
	Y    *int   `json:"y"`
	Z    *int   `json:"z"`
}

// Submit handles POST /api/v1/listings. The body is one submission or an
// array of them; every item is validated before any is queued.
func (h *ListingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	body, apiErr := readBody(w, r, h.maxBody)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	var reqs []submissionRequest
	if bytes.HasPrefix(body, []byte("[")) {
		err := json.Unmarshal(body, &reqs)
		if err != nil {
			response.Error(w, apierror.BadRequest("invalid JSON: "+err.Error()))
			return
		}
	} else {
		var one submissionRequest
		if err := json.Unmarshal(body, &one); err != nil {
			response.Error(w, apierror.BadRequest("invalid JSON: "+err.Error()))
			return
		}
		reqs = []submissionRequest{one}
	}

	if len(reqs) == 0 {
		response.Error(w, apierror.BadRequest("at least one submission is required"))
		return
	}

	subs := make([]model.Submission, len(reqs))
	var details []apierror.FieldError
	for i, req := range reqs {
		prefix := fmt.Sprintf("submissions[%d].", i)
		text := strings.TrimSpace(req.Text)
		if text == "" {
			details = append(details, apierror.FieldError{Field: prefix + "text", Message: "is required"})
		}
		for _, c := range []struct {
			name string
			v    *int
		}{{"x", req.X}, {"y", req.Y}, {"z", req.Z}} {
			if c.v == nil {
				details = append(details, apierror.FieldError{Field: prefix + c.name, Message: "is required"})
			}
		}
		if req.X != nil && req.Y != nil && req.Z != nil {
			subs[i] = model.Submission{Text: text, X: *req.X, Y: *req.Y, Z: *req.Z}
		}
	}
	if len(details) > 0 {
		response.Error(w, apierror.ValidationError("invalid submission", details...))
		return
	}

	for i, sub := range subs {
		if _, err := h.queue.Enqueue(sub); err != nil {
			h.log.Error("enqueue failed", "error", err, "queued", i)
			response.Error(w, apierror.ServiceUnavailable("ingestion is not accepting submissions"))
			return
		}
	}

	response.Accepted(w, map[string]interface{}{
		"queued": len(subs),
	})
}

// All handles GET /api/v1/listings/all
func (h *ListingHandler) All(w http.ResponseWriter, r *http.Request) {
	records, err := h.listings.All(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, records)
}

// Types handles GET /api/v1/listings/types
func (h *ListingHandler) Types(w http.ResponseWriter, r *http.Request) {
	types, err := h.listings.Types(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, types)
}

// Items handles GET /api/v1/listings/items?type=
func (h *ListingHandler) Items(w http.ResponseWriter, r *http.Request) {
	typeID := strings.TrimSpace(r.URL.Query().Get("type"))
	if typeID == "" {
		response.Error(w, apierror.ValidationError("missing parameter",
			apierror.FieldError{Field: "type", Message: "is required"}))
		return
	}

	items, err := h.listings.ItemsByType(r.Context(), typeID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, items)
}

// Barrels handles GET /api/v1/listings/barrels
func (h *ListingHandler) Barrels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	sort, err := model.ParseSortMode(q.Get("sort"))
	if err != nil {
		response.Error(w, apierror.ValidationError("invalid parameter",
			apierror.FieldError{Field: "sort", Message: "must be one of recent, name, benefit"}))
		return
	}

	page, _, err := intParam(q.Get("page"))
	if err != nil {
		response.Error(w, apierror.ValidationError("invalid parameter",
			apierror.FieldError{Field: "page", Message: "must be an integer"}))
		return
	}
	size, _, err := intParam(q.Get("page_size"))
	if err != nil {
		response.Error(w, apierror.ValidationError("invalid parameter",
			apierror.FieldError{Field: "page_size", Message: "must be an integer"}))
		return
	}

	result, err := h.listings.Groups(r.Context(), service.GroupQuery{
		MinecraftID: strings.TrimSpace(q.Get("minecraft_id")),
		Seller:      strings.TrimSpace(q.Get("seller")),
		Name:        strings.TrimSpace(q.Get("name")),
		Sort:        sort,
		Page:        page,
		PageSize:    size,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	response.JSONWithMeta(w, http.StatusOK, result.Groups, response.NewMeta(result.Page, result.PageSize, result.Total))
}

// History handles GET /api/v1/listings/barrels/history?x=&y=&z=
func (h *ListingHandler) History(w http.ResponseWriter, r *http.Request) {
	pos, apiErr := positionParams(r)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	history, err := h.listings.History(r.Context(), pos)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, history)
}

func (h *ListingHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error("request failed", "path", r.URL.Path, "error", err)
	response.Error(w, apierror.InternalError(""))
}

// readBody reads at most limit bytes of the request body.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, *apierror.Error) {
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apierror.PayloadTooLarge(tooLarge.Limit)
		}
		return nil, apierror.BadRequest("failed to read request body")
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, apierror.BadRequest("request body is empty")
	}
	return body, nil
}

// intParam parses an optional integer parameter.
func intParam(s string) (int, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// positionParams parses the required x, y and z query parameters.
func positionParams(r *http.Request) (model.Position, *apierror.Error) {
	q := r.URL.Query()
	var coords [3]int
	var details []apierror.FieldError
	for i, name := range []string{"x", "y", "z"} {
		v, ok, err := intParam(q.Get(name))
		switch {
		case err != nil:
			details = append(details, apierror.FieldError{Field: name, Message: "must be an integer"})
		case !ok:
			details = append(details, apierror.FieldError{Field: name, Message: "is required"})
		default:
			coords[i] = v
		}
	}
	if len(details) > 0 {
		return model.Position{}, apierror.ValidationError("invalid coordinates", details...)
	}
	return model.Position{X: coords[0], Y: coords[1], Z: coords[2]}, nil
}
