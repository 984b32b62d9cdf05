package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"barrel-market-api/internal/model"
	"barrel-market-api/internal/repository"
	"barrel-market-api/pkg/sanitize"
)

// NoteService stores free-text barrel notes, one per barrel per day.
type NoteService struct {
	store repository.NoteRepository
	loc   *time.Location
	now   func() time.Time
}

// NewNoteService creates a note service. Days are calendar days in loc.
func NewNoteService(store repository.NoteRepository, loc *time.Location) *NoteService {
	if loc == nil {
		loc = time.UTC
	}
	return &NoteService{store: store, loc: loc, now: time.Now}
}

// Append stores items for the barrel at x,y,z. A second note for the same
// barrel on the same day is accepted and ignored; accepted is false then.
func (s *NoteService) Append(ctx context.Context, x, y, z int, items string) (bool, error) {
	items = strings.TrimSpace(sanitize.Text(items))
	if items == "" {
		return false, fmt.Errorf("%w: items must not be empty", model.ErrValidation)
	}

	note := &model.Note{
		X:          x,
		Y:          y,
		Z:          z,
		Items:      items,
		RecordDate: model.RecordDate(s.now().In(s.loc)),
	}
	accepted, err := s.store.AppendNote(ctx, note)
	if err != nil {
		return false, fmt.Errorf("append note: %w", err)
	}
	return accepted, nil
}
