// Package seller maps player names to their Mojang profile UUID.
package seller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"barrel-market-api/internal/cache"
	"barrel-market-api/internal/model"
	"barrel-market-api/pkg/uid"
)

// negative cache marker, never a valid UUID
const missMarker = "-"

// errNoProfile means the directory answered that the name has no profile.
var errNoProfile = errors.New("no such profile")

// Observer receives the result label of each Resolve call.
type Observer interface {
	ObserveLookup(result string)
}

// Config configures a Resolver.
type Config struct {
	// BaseURL is the lookup endpoint; the name is appended as a path segment.
	BaseURL     string
	HTTP        *http.Client
	Cache       cache.Cache
	CacheTTL    time.Duration
	NegativeTTL time.Duration
	Observer    Observer
	Logger      *slog.Logger
}

// Resolver looks sellers up in the player directory. It never fails: any
// problem yields model.UnknownSeller.
type Resolver struct {
	baseURL     string
	http        *http.Client
	cache       cache.Cache
	ttl         time.Duration
	negativeTTL time.Duration
	observer    Observer
	log         *slog.Logger
}

// NewResolver creates a resolver. Cache may be nil.
func NewResolver(cfg Config) *Resolver {
	hc := cfg.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Second}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		http:        hc,
		cache:       cfg.Cache,
		ttl:         cfg.CacheTTL,
		negativeTTL: cfg.NegativeTTL,
		observer:    cfg.Observer,
		log:         log.With(slog.String("component", "seller-resolver")),
	}
}

// Resolve returns the canonical UUID for name, or model.UnknownSeller.
func (r *Resolver) Resolve(ctx context.Context, name string) string {
	name = strings.TrimSpace(name)
	switch strings.ToLower(name) {
	case "", "none", "null", "unknown":
		return model.UnknownSeller
	}

	key := "seller:" + strings.ToLower(name)
	if r.cache != nil {
		if b, err := r.cache.Get(ctx, key); err == nil {
			switch v := string(b); {
			case v == missMarker:
				r.observe("hit")
				return model.UnknownSeller
			case uid.Canonical(v) == v:
				r.observe("hit")
				return v
			default:
				r.log.Warn("dropping corrupt seller cache entry", "key", key)
				if err := r.cache.Delete(ctx, key); err != nil {
					r.log.Debug("seller cache delete failed", "error", err)
				}
			}
		}
	}

	id, err := r.lookup(ctx, name)
	if err != nil {
		r.log.Warn("seller lookup failed", "seller", name, "error", err)
		r.observe("unknown")
		// transport errors and shutdown are not answers about the name
		if errors.Is(err, errNoProfile) && ctx.Err() == nil {
			r.store(ctx, key, missMarker, r.negativeTTL)
		}
		return model.UnknownSeller
	}

	r.observe("resolved")
	r.store(ctx, key, id, r.ttl)
	return id
}

func (r *Resolver) lookup(ctx context.Context, name string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/"+url.PathEscape(name), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrLookup, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrLookup, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusNoContent:
		return "", fmt.Errorf("%w: %w", model.ErrLookup, errNoProfile)
	default:
		return "", fmt.Errorf("%w: status %d", model.ErrLookup, resp.StatusCode)
	}

	var profile struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", fmt.Errorf("%w: decode profile: %v", model.ErrLookup, err)
	}
	id := uid.Canonical(profile.ID)
	if id == "" {
		return "", fmt.Errorf("%w: bad profile id %q", model.ErrLookup, profile.ID)
	}
	return id, nil
}

func (r *Resolver) store(ctx context.Context, key, value string, ttl time.Duration) {
	if r.cache == nil || ttl <= 0 {
		return
	}
	if err := r.cache.Set(ctx, key, []byte(value), ttl); err != nil && !errors.Is(err, context.Canceled) {
		r.log.Debug("seller cache write failed", "error", err)
	}
}

func (r *Resolver) observe(result string) {
	if r.observer != nil {
		r.observer.ObserveLookup(result)
	}
}
