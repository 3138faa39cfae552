// Package tenants implements the tenant directory: durable records keyed by
// subdomain slug plus a read-through cache in front of them.
package tenants

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/prettygood-work/benefits-chat-demo/internal/api"
)

var ErrTenantNotFound = errors.New("tenant not found")

// slugPattern constrains slugs to lowercase alphanumerics and hyphens,
// starting and ending with an alphanumeric.
var slugPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// ReservedSlugs are subdomains that never resolve to a tenant.
var ReservedSlugs = map[string]bool{
	"www":   true,
	"admin": true,
	"app":   true,
}

type Tenant struct {
	ID        string          `json:"id"`
	Slug      string          `json:"slug"`
	Name      string          `json:"name"`
	Status    string          `json:"status"`
	Branding  json.RawMessage `json:"branding,omitempty"`
	Settings  json.RawMessage `json:"settings,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ValidateSlug reports whether a slug is well-formed and unreserved.
func ValidateSlug(slug string) error {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if !slugPattern.MatchString(slug) {
		return api.E(api.KindBadRequest, "slug must be lowercase alphanumerics and hyphens")
	}
	if ReservedSlugs[slug] {
		return api.E(api.KindBadRequest, fmt.Sprintf("slug %q is reserved", slug))
	}
	return nil
}

// GetBySlug resolves an active tenant by its lower-cased slug.
func (s *Store) GetBySlug(ctx context.Context, slug string) (Tenant, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	var t Tenant
	err := s.db.QueryRowContext(ctx,
		`SELECT id, slug, name, status, COALESCE(branding, 'null'), COALESCE(settings, 'null'), created_at, updated_at
		 FROM tenants
		 WHERE slug = $1 AND status = 'active'`,
		slug,
	).Scan(&t.ID, &t.Slug, &t.Name, &t.Status, &t.Branding, &t.Settings, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Tenant{}, ErrTenantNotFound
	}
	if err != nil {
		return Tenant{}, fmt.Errorf("get tenant by slug: %w", err)
	}
	return t, nil
}

// GetByID fetches a tenant regardless of status.
func (s *Store) GetByID(ctx context.Context, id string) (Tenant, error) {
	var t Tenant
	err := s.db.QueryRowContext(ctx,
		`SELECT id, slug, name, status, COALESCE(branding, 'null'), COALESCE(settings, 'null'), created_at, updated_at
		 FROM tenants
		 WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.Slug, &t.Name, &t.Status, &t.Branding, &t.Settings, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Tenant{}, ErrTenantNotFound
	}
	if err != nil {
		return Tenant{}, fmt.Errorf("get tenant by id: %w", err)
	}
	return t, nil
}

// Create inserts a tenant and its owner membership in one transaction. A
// duplicate slug surfaces as a conflict; partial writes never survive.
func (s *Store) Create(ctx context.Context, slug, name, ownerUserID string) (Tenant, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if err := ValidateSlug(slug); err != nil {
		return Tenant{}, err
	}
	if strings.TrimSpace(name) == "" {
		return Tenant{}, api.E(api.KindBadRequest, "name is required")
	}
	if ownerUserID == "" {
		return Tenant{}, api.E(api.KindBadRequest, "owner user id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Tenant{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var t Tenant
	err = tx.QueryRowContext(ctx,
		`INSERT INTO tenants (slug, name, status)
		 VALUES ($1, $2, 'active')
		 RETURNING id, slug, name, status, COALESCE(branding, 'null'), COALESCE(settings, 'null'), created_at, updated_at`,
		slug, name,
	).Scan(&t.ID, &t.Slug, &t.Name, &t.Status, &t.Branding, &t.Settings, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Tenant{}, api.E(api.KindConflict, fmt.Sprintf("slug %q already exists", slug))
		}
		return Tenant{}, fmt.Errorf("insert tenant: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tenant_memberships (tenant_id, user_id, role, permissions)
		 VALUES ($1, $2, 'owner', $3)`,
		t.ID, ownerUserID, pq.Array([]string{"*"}),
	)
	if err != nil {
		return Tenant{}, fmt.Errorf("insert owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Tenant{}, fmt.Errorf("commit tenant create: %w", err)
	}
	return t, nil
}

// Update applies a partial update. Nil fields are left untouched.
func (s *Store) Update(ctx context.Context, id string, name *string, status *string, branding json.RawMessage) (Tenant, error) {
	var t Tenant
	err := s.db.QueryRowContext(ctx,
		`UPDATE tenants
		 SET name = COALESCE($2, name),
		     status = COALESCE($3, status),
		     branding = COALESCE($4, branding),
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING id, slug, name, status, COALESCE(branding, 'null'), COALESCE(settings, 'null'), created_at, updated_at`,
		id, name, status, nullableJSON(branding),
	).Scan(&t.ID, &t.Slug, &t.Name, &t.Status, &t.Branding, &t.Settings, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Tenant{}, ErrTenantNotFound
	}
	if err != nil {
		return Tenant{}, fmt.Errorf("update tenant: %w", err)
	}
	return t, nil
}

// List returns tenants ordered by creation time, newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Tenant, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, slug, name, status, COALESCE(branding, 'null'), COALESCE(settings, 'null'), created_at, updated_at
		 FROM tenants
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name, &t.Status, &t.Branding, &t.Settings, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tenants rows: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
