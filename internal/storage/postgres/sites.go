package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hoistscout/hoistscout-core/internal/models"
)

// ErrSiteNotFound is returned when a Site id has no matching row.
var ErrSiteNotFound = errors.New("postgres: site not found")

// SiteRepo is the Site repository.
type SiteRepo struct {
	db *DB
}

// NewSiteRepo builds a SiteRepo.
func NewSiteRepo(db *DB) *SiteRepo { return &SiteRepo{db: db} }

const siteSelectColumns = `
	SELECT id, name, url, category, auth_type, encrypted_credentials, scraping_config,
		active, legal_blocked, created_at, updated_at
	FROM sites`

// Get loads one Site by id.
func (r *SiteRepo) Get(ctx context.Context, id int64) (*models.Site, error) {
	site, err := scanSite(r.db.SQL().QueryRowContext(ctx, siteSelectColumns+" WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSiteNotFound
	}
	return site, err
}

// ListActive returns every Site eligible for scheduling.
func (r *SiteRepo) ListActive(ctx context.Context) ([]models.Site, error) {
	rows, err := r.db.SQL().QueryContext(ctx, siteSelectColumns+" WHERE active = true AND legal_blocked = false")
	if err != nil {
		return nil, fmt.Errorf("postgres: listing active sites: %w", err)
	}
	defer rows.Close()

	var sites []models.Site
	for rows.Next() {
		site, err := scanSiteRows(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, *site)
	}
	return sites, rows.Err()
}

// MarkLegalBlocked flags a Site as blocked by the Compliance Gate.
func (r *SiteRepo) MarkLegalBlocked(ctx context.Context, id int64) error {
	_, err := r.db.SQL().ExecContext(ctx, `
		UPDATE sites SET legal_blocked = true, updated_at = now() WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: marking site %d legal_blocked: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSite(row rowScanner) (*models.Site, error) {
	return scanSiteRows(row)
}

func scanSiteRows(row rowScanner) (*models.Site, error) {
	var site models.Site
	err := row.Scan(
		&site.ID, &site.Name, &site.URL, &site.Category, &site.AuthType,
		&site.EncryptedCredentials, &site.ScrapingConfig, &site.Active,
		&site.LegalBlocked, &site.CreatedAt, &site.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("postgres: scanning site: %w", err)
	}
	return &site, nil
}
