package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

type tenantRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type platformConfigRow struct {
	ID            string    `db:"id"`
	TenantID      string    `db:"tenant_id"`
	Position      int       `db:"position"`
	Platform      string    `db:"platform"`
	BundleID      string    `db:"bundle_id"`
	KeyID         string    `db:"key_id"`
	TeamID        string    `db:"team_id"`
	CredentialRef string    `db:"credential_ref"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r tenantRow) toDomain(configs []platformConfigRow) *push.Tenant {
	t := &push.Tenant{
		ID:        r.ID,
		Name:      r.Name,
		Configs:   make([]push.PlatformConfig, 0, len(configs)),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	for _, c := range configs {
		t.Configs = append(t.Configs, push.PlatformConfig{
			ID:            c.ID,
			Platform:      push.Platform(c.Platform),
			BundleID:      c.BundleID,
			KeyID:         c.KeyID,
			TeamID:        c.TeamID,
			CredentialRef: c.CredentialRef,
			CreatedAt:     c.CreatedAt,
			UpdatedAt:     c.UpdatedAt,
		})
	}
	return t
}

const selectTenant = `SELECT id, name, created_at, updated_at FROM tenants`

const selectConfigs = `
	SELECT id, tenant_id, position, platform, bundle_id, key_id, team_id, credential_ref, created_at, updated_at
	FROM platform_configs
	WHERE tenant_id = $1
	ORDER BY position
`

func (s *Store) CreateTenant(ctx context.Context, tenant *push.Tenant) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tenants (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		tenant.ID, tenant.Name, tenant.CreatedAt, tenant.UpdatedAt,
	)
	if violatedConstraint(err) == tenantNameConstraint {
		return &push.ValidationError{Field: "name", Reason: "already registered"}
	}
	if isUniqueViolation(err) {
		return &push.ValidationError{Field: "tenant_id", Reason: "already exists"}
	}
	if err != nil {
		return fmt.Errorf("insert tenant %s: %w", tenant.ID, err)
	}
	if err := insertConfigs(ctx, tx, tenant); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, tenantID string) (*push.Tenant, error) {
	return s.loadTenant(ctx, s.db, selectTenant+` WHERE id = $1`, tenantID)
}

func (s *Store) FindTenantByName(ctx context.Context, name string) (*push.Tenant, error) {
	return s.loadTenant(ctx, s.db, selectTenant+` WHERE name = $1`, name)
}

// UpdateTenant locks the tenant row for the duration of fn and rewrites its configs.
func (s *Store) UpdateTenant(ctx context.Context, tenantID string, fn func(tenant *push.Tenant) error) (*push.Tenant, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	tenant, err := s.loadTenant(ctx, tx, selectTenant+` WHERE id = $1 FOR UPDATE`, tenantID)
	if err != nil {
		return nil, err
	}
	if err := fn(tenant); err != nil {
		return nil, err
	}
	tenant.ID = tenantID

	_, err = tx.ExecContext(ctx,
		`UPDATE tenants SET name = $2, updated_at = $3 WHERE id = $1`,
		tenant.ID, tenant.Name, tenant.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update tenant %s: %w", tenantID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM platform_configs WHERE tenant_id = $1`, tenantID); err != nil {
		return nil, fmt.Errorf("clear platform configs: %w", err)
	}
	if err := insertConfigs(ctx, tx, tenant); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return tenant, nil
}

func (s *Store) loadTenant(ctx context.Context, q sqlx.QueryerContext, query, key string) (*push.Tenant, error) {
	var row tenantRow
	err := sqlx.GetContext(ctx, q, &row, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &push.NotFoundError{Resource: "tenant", ID: key}
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant %s: %w", key, err)
	}

	var configs []platformConfigRow
	if err := sqlx.SelectContext(ctx, q, &configs, selectConfigs, row.ID); err != nil {
		return nil, fmt.Errorf("get platform configs of %s: %w", row.ID, err)
	}
	return row.toDomain(configs), nil
}

// insertConfigs writes the tenant's configs with their slice index as position, which
// keeps insertion order stable across rewrites.
func insertConfigs(ctx context.Context, tx *sqlx.Tx, tenant *push.Tenant) error {
	const query = `
		INSERT INTO platform_configs
			(id, tenant_id, position, platform, bundle_id, key_id, team_id, credential_ref, created_at, updated_at)
		VALUES
			(:id, :tenant_id, :position, :platform, :bundle_id, :key_id, :team_id, :credential_ref, :created_at, :updated_at)
	`
	for i, c := range tenant.Configs {
		row := platformConfigRow{
			ID:            c.ID,
			TenantID:      tenant.ID,
			Position:      i,
			Platform:      string(c.Platform),
			BundleID:      c.BundleID,
			KeyID:         c.KeyID,
			TeamID:        c.TeamID,
			CredentialRef: c.CredentialRef,
			CreatedAt:     c.CreatedAt,
			UpdatedAt:     c.UpdatedAt,
		}
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return fmt.Errorf("insert platform config %d: %w", i, err)
		}
	}
	return nil
}
