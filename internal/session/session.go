// Package session persists authenticated BrowserState per Site in
// Redis with a 23h TTL (spec.md section 4.3). A load past expiry
// reports no session rather than returning stale cookies, forcing the
// Auth Engine to re-authenticate.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hoistscout/hoistscout-core/internal/models"
)

// ErrNotFound is returned by Load when no session exists or it expired.
var ErrNotFound = errors.New("no session for site")

// Store persists BrowserState keyed by site id.
type Store struct {
	client *redis.Client
}

// NewStore builds a session Store over a shared Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func key(siteID int64) string {
	return fmt.Sprintf("hoistscout:session:%d", siteID)
}

// Save persists state with SessionTTL, overwriting any prior session.
func (s *Store) Save(ctx context.Context, state *models.BrowserState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling browser state: %w", err)
	}
	if err := s.client.Set(ctx, key(state.SiteID), data, models.SessionTTL).Err(); err != nil {
		return fmt.Errorf("saving session for site %d: %w", state.SiteID, err)
	}
	return nil
}

// Load returns the cached BrowserState for siteID, or ErrNotFound if
// none exists or the Redis-side TTL already reaped it. Load also
// double-checks CapturedAt against SessionTTL in case a caller holds a
// long-lived reference to a Store created before the key expired.
func (s *Store) Load(ctx context.Context, siteID int64) (*models.BrowserState, error) {
	data, err := s.client.Get(ctx, key(siteID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session for site %d: %w", siteID, err)
	}

	var state models.BrowserState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshaling session for site %d: %w", siteID, err)
	}
	if state.Expired(time.Now()) {
		return nil, ErrNotFound
	}

	return &state, nil
}

// Invalidate removes any cached session for siteID. The Scrape Runner
// does not call it; a cached session is dropped only by its TTL or by a
// later Save.
func (s *Store) Invalidate(ctx context.Context, siteID int64) error {
	if err := s.client.Del(ctx, key(siteID)).Err(); err != nil {
		return fmt.Errorf("invalidating session for site %d: %w", siteID, err)
	}
	return nil
}
