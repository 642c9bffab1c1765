// Package credentials resolves a tenant's provider credentials for one platform.
package credentials

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

// Resolver turns (tenant, platform, bundle) into a validated CredentialBundle.
// Lookups are keyed by tenant id only.
type Resolver struct {
	tenants push.TenantStore
	logger  *slog.Logger
}

func NewResolver(tenants push.TenantStore, logger *slog.Logger) *Resolver {
	return &Resolver{
		tenants: tenants,
		logger:  logger.With("component", "CredentialResolver"),
	}
}

// Resolve returns the credentials of the first matching config in insertion order.
// An empty bundleID matches any bundle of the platform.
func (r *Resolver) Resolve(ctx context.Context, tenantID string, platform push.Platform, bundleID string) (*push.CredentialBundle, error) {
	if tenantID == "" {
		return nil, &push.ValidationError{Field: "tenant_id", Reason: "is required"}
	}
	if !platform.Valid() {
		return nil, &push.UnsupportedPlatformError{Platform: string(platform)}
	}

	tenant, err := r.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant.ID != tenantID {
		return nil, fmt.Errorf("tenant store returned tenant %q for lookup %q", tenant.ID, tenantID)
	}

	cfg := tenant.FindConfig(platform, bundleID)
	if cfg == nil {
		id := fmt.Sprintf("%s/%s", tenantID, platform)
		if bundleID != "" {
			id += "/" + bundleID
		}
		return nil, &push.NotFoundError{Resource: "platform config", ID: id}
	}
	if cfg.CredentialRef == "" {
		return nil, &push.NotFoundError{Resource: "credential", ID: cfg.ID}
	}
	if platform == push.PlatformIOS && (cfg.KeyID == "" || cfg.TeamID == "") {
		return nil, &push.ValidationError{Field: "key_id", Reason: "apple config requires key id and team id"}
	}

	r.logger.Debug("Credentials resolved", "tenant_id", tenantID, "platform", platform, "config_id", cfg.ID)
	return &push.CredentialBundle{
		TenantID:      tenant.ID,
		ConfigID:      cfg.ID,
		Platform:      cfg.Platform,
		BundleID:      cfg.BundleID,
		KeyID:         cfg.KeyID,
		TeamID:        cfg.TeamID,
		CredentialRef: cfg.CredentialRef,
	}, nil
}
