package service

import (
	"context"
	"fmt"
	"math"

	"barrel-market-api/internal/model"
	"barrel-market-api/internal/repository"
)

// ListingConfig holds read-path settings.
type ListingConfig struct {
	SimilarityThreshold float64
	DefaultPageSize     int
	MaxPageSize         int
}

// GroupQuery selects one page of grouped listings.
type GroupQuery struct {
	MinecraftID string
	Seller      string
	Name        string
	Sort        model.SortMode
	Page        int
	PageSize    int
}

// ListingService serves the read side: summaries, grouped search and
// per-barrel history.
type ListingService struct {
	store repository.Store
	cfg   ListingConfig
}

// NewListingService creates a listing service.
func NewListingService(store repository.Store, cfg ListingConfig) *ListingService {
	if cfg.DefaultPageSize < 1 {
		cfg.DefaultPageSize = 10
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		cfg.MaxPageSize = cfg.DefaultPageSize
	}
	return &ListingService{store: store, cfg: cfg}
}

// All returns every record, newest first.
func (s *ListingService) All(ctx context.Context) ([]model.Record, error) {
	return s.store.ListAll(ctx)
}

// Types returns the distinct types with their counts.
func (s *ListingService) Types(ctx context.Context) ([]model.TypeCount, error) {
	return s.store.ListTypes(ctx)
}

// ItemsByType returns the distinct items of one type with their counts.
func (s *ListingService) ItemsByType(ctx context.Context, typeID string) ([]model.ItemCount, error) {
	return s.store.ListItemsByType(ctx, typeID)
}

// Groups filters records, groups them by barrel and returns one page with
// the notes of every barrel on the page attached.
func (s *ListingService) Groups(ctx context.Context, q GroupQuery) (*model.Page, error) {
	records, err := s.store.Find(ctx, model.ListingFilter{
		MinecraftID: q.MinecraftID,
		Seller:      q.Seller,
		Name:        q.Name,
		Sort:        q.Sort,
		Threshold:   s.cfg.SimilarityThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("find listings: %w", err)
	}

	groups, days := Aggregate(records)
	page, size := s.normalizePage(q.Page, q.PageSize)

	start := max(0, min((page-1)*size, len(groups)))
	end := min(start+size, len(groups))
	window := groups[start:end]

	if err := s.attachNotes(ctx, window, days); err != nil {
		return nil, err
	}

	return &model.Page{
		Groups:   window,
		Page:     page,
		PageSize: size,
		Total:    len(groups),
	}, nil
}

// History returns every record at pos, newest first.
func (s *ListingService) History(ctx context.Context, pos model.Position) (*model.History, error) {
	records, err := s.store.History(ctx, pos)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return &model.History{Records: records, Count: len(records)}, nil
}

func (s *ListingService) normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = s.cfg.DefaultPageSize
	}
	if size > s.cfg.MaxPageSize {
		size = s.cfg.MaxPageSize
	}
	if size < 1 {
		size = 1
	}
	// keep (page-1)*size from overflowing
	if page > math.MaxInt/size {
		page = math.MaxInt / size
	}
	return page, size
}

// attachNotes loads the notes of every group in one store call.
func (s *ListingService) attachNotes(ctx context.Context, groups []model.Group, days map[model.Position][]string) error {
	var keys []model.Key
	for _, g := range groups {
		pos := g.Position()
		for _, day := range days[pos] {
			keys = append(keys, model.Key{Day: day, X: pos.X, Y: pos.Y, Z: pos.Z})
		}
	}

	notes, err := s.store.NotesFor(ctx, keys)
	if err != nil {
		return fmt.Errorf("load notes: %w", err)
	}

	byPos := make(map[model.Position][]model.Note, len(groups))
	for _, n := range notes {
		pos := model.Position{X: n.X, Y: n.Y, Z: n.Z}
		byPos[pos] = append(byPos[pos], n)
	}
	for i := range groups {
		if found := byPos[groups[i].Position()]; found != nil {
			groups[i].Notes = found
		}
	}
	return nil
}

// Aggregate groups records by coordinate triple in first-seen order. The
// first record of each triple represents the group. It also returns the
// distinct days each group covers.
func Aggregate(records []model.Record) ([]model.Group, map[model.Position][]string) {
	groups := make([]model.Group, 0)
	index := make(map[model.Position]int)
	days := make(map[model.Position][]string)
	seenDay := make(map[model.Key]struct{})

	for _, r := range records {
		pos := r.Position()
		if i, ok := index[pos]; ok {
			groups[i].Count++
		} else {
			index[pos] = len(groups)
			groups = append(groups, model.Group{Record: r, Count: 1, Notes: []model.Note{}})
		}

		if _, ok := seenDay[r.Key()]; !ok {
			seenDay[r.Key()] = struct{}{}
			days[pos] = append(days[pos], r.RecordDate)
		}
	}
	return groups, days
}
