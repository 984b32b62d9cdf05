package repository

import (
	"context"

	"barrel-market-api/internal/model"
)

// ListingRepository defines listing data access methods.
type ListingRepository interface {
	// ExistsForDay reports whether a record already holds the idempotency key.
	ExistsForDay(ctx context.Context, key model.Key) (bool, error)

	// BulkInsert writes records in one transaction. Rows whose key already
	// exists are skipped; the returned flags line up with records and are
	// true for rows actually written. Written records get their ID set.
	BulkInsert(ctx context.Context, records []*model.Record) ([]bool, error)

	// ListAll returns every record, newest first.
	ListAll(ctx context.Context) ([]model.Record, error)

	// ListTypes groups records by type id with the smallest label and a count.
	ListTypes(ctx context.Context) ([]model.TypeCount, error)

	// ListItemsByType groups records of one type by item id.
	ListItemsByType(ctx context.Context, typeID string) ([]model.ItemCount, error)

	// Find returns records matching the filter in the filter's order.
	Find(ctx context.Context, f model.ListingFilter) ([]model.Record, error)

	// History returns every record at pos, newest first.
	History(ctx context.Context, pos model.Position) ([]model.Record, error)

	// GetStats returns statistics about the listing database.
	GetStats(ctx context.Context) (map[string]interface{}, error)

	Ping(ctx context.Context) error

	// Close closes the repository connection.
	Close() error
}

// NoteRepository defines barrel note data access methods.
type NoteRepository interface {
	// AppendNote stores note unless one exists for its key; false means it
	// was a duplicate and nothing was written.
	AppendNote(ctx context.Context, note *model.Note) (bool, error)

	// NotesFor returns the notes stored under any of keys.
	NotesFor(ctx context.Context, keys []model.Key) ([]model.Note, error)
}

// Store is a database holding both listings and notes.
type Store interface {
	ListingRepository
	NoteRepository
}

// APIKeyRepository defines intake credential data access methods.
type APIKeyRepository interface {
	// IsActive reports whether key exists and is enabled.
	IsActive(ctx context.Context, key string) (bool, error)

	// Create stores a new active key.
	Create(ctx context.Context, key, label string) (*model.APIKey, error)

	// Deactivate disables key.
	Deactivate(ctx context.Context, key string) error
}
