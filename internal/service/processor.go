package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"barrel-market-api/internal/model"
	"barrel-market-api/internal/repository"
)

// Extractor turns a submission into a validated listing.
type Extractor interface {
	Extract(ctx context.Context, apiKey string, sub model.Submission) (*model.Listing, error)
}

// SellerResolver maps a seller name to a UUID or model.UnknownSeller.
type SellerResolver interface {
	Resolve(ctx context.Context, name string) string
}

// Processor runs one submission through the dedup gate, extraction and
// seller resolution, producing a record ready to stage.
type Processor struct {
	store     repository.ListingRepository
	extractor Extractor
	sellers   SellerResolver
	loc       *time.Location
	now       func() time.Time
}

// NewProcessor creates a processor. Record dates are calendar days in loc.
func NewProcessor(store repository.ListingRepository, extractor Extractor, sellers SellerResolver, loc *time.Location) *Processor {
	if loc == nil {
		loc = time.UTC
	}
	return &Processor{
		store:     store,
		extractor: extractor,
		sellers:   sellers,
		loc:       loc,
		now:       time.Now,
	}
}

// Process returns the record for sub. Errors wrap the model error classes.
func (p *Processor) Process(ctx context.Context, apiKey string, sub model.Submission) (*model.Record, error) {
	now := p.now().In(p.loc)
	key := model.Key{Day: model.RecordDate(now), X: sub.X, Y: sub.Y, Z: sub.Z}

	exists, err := p.store.ExistsForDay(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("dedup gate: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s at %d,%d,%d", model.ErrDuplicate, key.Day, key.X, key.Y, key.Z)
	}

	listing, err := p.extractor.Extract(ctx, apiKey, sub)
	if err != nil {
		return nil, err
	}

	sellerUUID := p.sellers.Resolve(ctx, listing.Seller)
	return model.NewRecord(sub, listing, sellerUUID, now), nil
}

// stagedItem is a record waiting for the next flush with its handle.
type stagedItem struct {
	record *model.Record
	job    *job
}

// stage accumulates records of one drain cycle, at most one per key.
type stage struct {
	mu    sync.Mutex
	items []stagedItem
	keys  map[model.Key]struct{}
}

func newStage() *stage {
	return &stage{keys: make(map[model.Key]struct{})}
}

// add stages rec unless its key is already staged.
func (s *stage) add(rec *model.Record, j *job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.Key()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	s.items = append(s.items, stagedItem{record: rec, job: j})
	return true
}

func (s *stage) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// take empties the stage. Keys stay reserved until reset.
func (s *stage) take() []stagedItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.items
	s.items = nil
	return items
}

// reset forgets every key at the end of a drain cycle.
func (s *stage) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.keys = make(map[model.Key]struct{})
}
