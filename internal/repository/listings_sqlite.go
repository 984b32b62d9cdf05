package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"barrel-market-api/internal/model"
	"barrel-market-api/pkg/trigram"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteStore implements Store using SQLite. Fuzzy name search runs in
// process with the same trigram measure pg_trgm uses.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens the database at dbPath (":memory:" for tests).
func NewSQLiteStore(dbPath string, log *slog.Logger) (*SQLiteStore, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dbPath)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports 1 writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createSQLiteTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}
	log.Info("sqlite store initialized", "path", dbPath)
	return &SQLiteStore{db: db}, nil
}

func createSQLiteTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS listings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		price REAL NOT NULL,
		quantity REAL NOT NULL,
		seller TEXT NOT NULL DEFAULT 'UNKNOWN',
		seller_uuid TEXT NOT NULL DEFAULT 'UNKNOWN',
		minecraft_id TEXT NOT NULL,
		type_id TEXT NOT NULL DEFAULT 'other',
		type_ru TEXT NOT NULL DEFAULT '',
		benefit_ratio REAL NOT NULL DEFAULT 0,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		z INTEGER NOT NULL,
		record_date TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE (record_date, x, y, z)
	);
	CREATE INDEX IF NOT EXISTS idx_listings_coords ON listings(x, y, z);
	CREATE INDEX IF NOT EXISTS idx_listings_type ON listings(type_id);

	CREATE TABLE IF NOT EXISTS barrel_notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		z INTEGER NOT NULL,
		items TEXT NOT NULL,
		record_date TEXT NOT NULL,
		UNIQUE (record_date, x, y, z)
	);
	`
	_, err := db.Exec(query)
	return err
}

const sqliteSelectListings = `SELECT ` + listingColumns + `, record_date, created_at FROM listings`

func scanSQLiteRecords(rows *sql.Rows) ([]model.Record, error) {
	defer rows.Close()
	records := make([]model.Record, 0)
	for rows.Next() {
		var rec model.Record
		var createdAt int64
		if err := rows.Scan(
			&rec.ID, &rec.Name, &rec.Price, &rec.Quantity, &rec.Seller, &rec.SellerUUID,
			&rec.MinecraftID, &rec.TypeID, &rec.TypeRu, &rec.BenefitRatio,
			&rec.X, &rec.Y, &rec.Z, &rec.RecordDate, &createdAt,
		); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.Unix(0, createdAt).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ExistsForDay reports whether a listing already holds key.
func (r *SQLiteStore) ExistsForDay(ctx context.Context, key model.Key) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM listings WHERE record_date = ? AND x = ? AND y = ? AND z = ?`,
		key.Day, key.X, key.Y, key.Z).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check listing key: %w", err)
	}
	return n > 0, nil
}

// BulkInsert writes records in one transaction. Conflicting rows are
// ignored and reported as not inserted.
func (r *SQLiteStore) BulkInsert(ctx context.Context, records []*model.Record) ([]bool, error) {
	inserted := make([]bool, len(records))
	if len(records) == 0 {
		return inserted, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO listings (name, price, quantity, seller, seller_uuid, minecraft_id, type_id, type_ru,
			benefit_ratio, x, y, z, record_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (record_date, x, y, z) DO NOTHING`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		res, err := stmt.ExecContext(ctx, rec.Name, rec.Price, rec.Quantity, rec.Seller, rec.SellerUUID,
			rec.MinecraftID, rec.TypeID, rec.TypeRu, rec.BenefitRatio, rec.X, rec.Y, rec.Z,
			rec.RecordDate, rec.CreatedAt.UnixNano())
		if err != nil {
			return nil, fmt.Errorf("failed to insert listing at %d,%d,%d: %w", rec.X, rec.Y, rec.Z, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		rec.ID = id
		inserted[i] = true
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

// ListAll returns every listing, newest first.
func (r *SQLiteStore) ListAll(ctx context.Context) ([]model.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, sqliteSelectListings+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	return scanSQLiteRecords(rows)
}

// ListTypes groups listings by type.
func (r *SQLiteStore) ListTypes(ctx context.Context) ([]model.TypeCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT type_id, MIN(type_ru), COUNT(*) FROM listings
		GROUP BY type_id ORDER BY type_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list types: %w", err)
	}
	defer rows.Close()

	types := make([]model.TypeCount, 0)
	for rows.Next() {
		var t model.TypeCount
		if err := rows.Scan(&t.TypeID, &t.Type, &t.Count); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// ListItemsByType groups the listings of one type by item id.
func (r *SQLiteStore) ListItemsByType(ctx context.Context, typeID string) ([]model.ItemCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT minecraft_id, MIN(name), COUNT(*) FROM listings
		WHERE type_id = ?
		GROUP BY minecraft_id ORDER BY minecraft_id`, typeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	items := make([]model.ItemCount, 0)
	for rows.Next() {
		var it model.ItemCount
		if err := rows.Scan(&it.MinecraftID, &it.Name, &it.Count); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Find filters listings. The seller and name filters are applied in Go:
// SQLite's LIKE folds ASCII only and has no trigram index.
func (r *SQLiteStore) Find(ctx context.Context, f model.ListingFilter) ([]model.Record, error) {
	qb := newQueryBuilder(question)
	if f.MinecraftID != "" {
		qb.where("minecraft_id = %s", f.MinecraftID)
	}

	r.mu.RLock()
	rows, err := r.db.QueryContext(ctx, sqliteSelectListings+qb.whereClause()+orderFor(f.Sort), qb.args...)
	if err != nil {
		r.mu.RUnlock()
		return nil, fmt.Errorf("failed to find listings: %w", err)
	}
	records, err := scanSQLiteRecords(rows)
	r.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("failed to find listings: %w", err)
	}

	if f.Seller != "" {
		needle := strings.ToLower(f.Seller)
		kept := records[:0]
		for _, rec := range records {
			if strings.Contains(strings.ToLower(rec.Seller), needle) {
				kept = append(kept, rec)
			}
		}
		records = kept
	}

	if f.Name == "" {
		return records, nil
	}

	type scored struct {
		rec model.Record
		sim float64
	}
	matches := make([]scored, 0, len(records))
	for _, rec := range records {
		if sim := trigram.Similarity(rec.Name, f.Name); sim >= f.Threshold {
			matches = append(matches, scored{rec: rec, sim: sim})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.sim != b.sim {
			return a.sim > b.sim
		}
		if !a.rec.CreatedAt.Equal(b.rec.CreatedAt) {
			return a.rec.CreatedAt.After(b.rec.CreatedAt)
		}
		return a.rec.ID > b.rec.ID
	})

	out := make([]model.Record, len(matches))
	for i, m := range matches {
		out[i] = m.rec
	}
	return out, nil
}

// History returns every listing at pos, newest first.
func (r *SQLiteStore) History(ctx context.Context, pos model.Position) ([]model.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, sqliteSelectListings+`
		WHERE x = ? AND y = ? AND z = ?
		ORDER BY created_at DESC, id DESC`, pos.X, pos.Y, pos.Z)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return scanSQLiteRecords(rows)
}

// AppendNote stores note once per coordinate triple and day.
func (r *SQLiteStore) AppendNote(ctx context.Context, note *model.Note) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO barrel_notes (x, y, z, items, record_date) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (record_date, x, y, z) DO NOTHING`,
		note.X, note.Y, note.Z, note.Items, note.RecordDate)
	if err != nil {
		return false, fmt.Errorf("failed to append note: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if note.ID, err = res.LastInsertId(); err != nil {
		return false, err
	}
	return true, nil
}

// NotesFor loads all notes under keys with one query.
func (r *SQLiteStore) NotesFor(ctx context.Context, keys []model.Key) ([]model.Note, error) {
	notes := make([]model.Note, 0)
	if len(keys) == 0 {
		return notes, nil
	}

	qb := newQueryBuilder(question)
	clauses := make([]string, len(keys))
	for i, k := range keys {
		clauses[i] = fmt.Sprintf("(record_date = %s AND x = %s AND y = %s AND z = %s)",
			qb.arg(k.Day), qb.arg(k.X), qb.arg(k.Y), qb.arg(k.Z))
	}
	query := `SELECT id, x, y, z, items, record_date FROM barrel_notes WHERE ` +
		strings.Join(clauses, " OR ") + ` ORDER BY id`

	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, query, qb.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load notes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var n model.Note
		if err := rows.Scan(&n.ID, &n.X, &n.Y, &n.Z, &n.Items, &n.RecordDate); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// GetStats returns statistics about the listing database.
func (r *SQLiteStore) GetStats(ctx context.Context) (map[string]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]interface{})

	var listings, notes int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM listings").Scan(&listings); err != nil {
		return nil, err
	}
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM barrel_notes").Scan(&notes); err != nil {
		return nil, err
	}
	stats["total_listings"] = listings
	stats["total_notes"] = notes

	var last sql.NullInt64
	if err := r.db.QueryRowContext(ctx, "SELECT MAX(created_at) FROM listings").Scan(&last); err == nil && last.Valid {
		stats["last_insert"] = time.Unix(0, last.Int64).UTC()
	}

	var pageCount, pageSize int64
	if err := r.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		if err := r.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil {
			stats["db_size_bytes"] = pageCount * pageSize
		}
	}
	stats["driver"] = "sqlite"

	return stats, nil
}

// Ping checks the connection.
func (r *SQLiteStore) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLiteStore) Close() error {
	return r.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
