package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"guildmembers/internal/database"
	"guildmembers/internal/models"
)

type SiteRepository struct {
	db database.DBTX
}

func NewSiteRepository(db database.DBTX) *SiteRepository {
	return &SiteRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *SiteRepository) WithTx(tx database.DBTX) *SiteRepository {
	return &SiteRepository{db: tx}
}

// GetSiteByID retrieves a site, or nil when it does not exist
func (r *SiteRepository) GetSiteByID(ctx context.Context, id int64) (*models.Site, error) {
	s := &models.Site{}
	err := r.db.QueryRowContext(ctx, `SELECT id, domain, name FROM sites WHERE id = ?`, id).Scan(&s.ID, &s.Domain, &s.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get site: %w", err)
	}
	return s, nil
}

// CreateSite inserts a site. Domains are stored lower-cased.
func (r *SiteRepository) CreateSite(ctx context.Context, site *models.Site) error {
	site.Domain = strings.ToLower(strings.TrimSpace(site.Domain))
	if site.Name == "" {
		site.Name = site.Domain
	}

	id, err := r.db.ExecReturningID(ctx, `INSERT INTO sites (domain, name) VALUES (?, ?)`, site.Domain, site.Name)
	if err != nil {
		if database.IsUniqueViolation(r.db, err) {
			return ErrDuplicateSite
		}
		return fmt.Errorf("failed to create site: %w", err)
	}
	site.ID = id
	return nil
}

// ListSites returns every site ordered by id
func (r *SiteRepository) ListSites(ctx context.Context) ([]models.Site, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, domain, name FROM sites ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []models.Site
	for rows.Next() {
		var s models.Site
		if err := rows.Scan(&s.ID, &s.Domain, &s.Name); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, s)
	}
	return sites, rows.Err()
}
