// Package tenants implements tenant onboarding and platform credential management.
package tenants

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

// BlobWriter persists a credential blob and returns its reference.
type BlobWriter interface {
	Save(ctx context.Context, tenantID, configID string, platform push.Platform, blob []byte) (string, error)
}

type Service struct {
	store  push.TenantStore
	blobs  BlobWriter
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func NewService(store push.TenantStore, blobs BlobWriter, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		blobs:  blobs,
		logger: logger.With("component", "TenantService"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// Register creates a tenant. Names are unique; the id is "<name>_<unix millis>".
// Uniqueness is enforced by the store so concurrent registrations cannot both win.
func (s *Service) Register(ctx context.Context, name string) (*push.Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &push.ValidationError{Field: "name", Reason: "is required"}
	}
	// The id becomes a credential object prefix and a document id.
	if strings.ContainsAny(name, `/\`) {
		return nil, &push.ValidationError{Field: "name", Reason: "must not contain path separators"}
	}

	now := s.now()
	tenant := &push.Tenant{
		ID:        fmt.Sprintf("%s_%d", name, now.UnixMilli()),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateTenant(ctx, tenant); err != nil {
		return nil, err
	}

	s.logger.Info("Tenant registered", "tenant_id", tenant.ID)
	return tenant, nil
}

// Get returns the tenant or a NotFoundError.
func (s *Service) Get(ctx context.Context, tenantID string) (*push.Tenant, error) {
	if tenantID == "" {
		return nil, &push.ValidationError{Field: "tenant_id", Reason: "is required"}
	}
	return s.store.GetTenant(ctx, tenantID)
}

// FindByName returns the tenant registered under name or a NotFoundError.
func (s *Service) FindByName(ctx context.Context, name string) (*push.Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &push.ValidationError{Field: "name", Reason: "is required"}
	}
	return s.store.FindTenantByName(ctx, name)
}

// AddPlatformConfig stores the credential blob and records the config. A config with
// the same platform and bundle id is rotated in place and keeps its id.
func (s *Service) AddPlatformConfig(ctx context.Context, tenantID string, in push.PlatformConfigInput) (*push.PlatformConfig, error) {
	platform, err := push.ParsePlatform(string(in.Platform))
	if err != nil {
		return nil, err
	}
	in.Platform = platform
	if err := push.Validate(in); err != nil {
		return nil, err
	}
	if len(in.Credential) == 0 {
		return nil, &push.ValidationError{Field: "credential", Reason: "is required"}
	}

	if tenantID == "" {
		return nil, &push.ValidationError{Field: "tenant_id", Reason: "is required"}
	}

	now := s.now()
	var stored push.PlatformConfig
	_, err = s.store.UpdateTenant(ctx, tenantID, func(t *push.Tenant) error {
		configID := s.newID()
		existing := t.FindConfig(platform, in.BundleID)
		if existing != nil {
			configID = existing.ID
		}

		// The blob is written first so a stored config never points at a missing file.
		ref, err := s.blobs.Save(ctx, tenantID, configID, platform, in.Credential)
		if err != nil {
			return fmt.Errorf("failed to store credential: %w", err)
		}

		t.UpsertConfig(push.PlatformConfig{
			ID:            configID,
			Platform:      platform,
			BundleID:      in.BundleID,
			KeyID:         in.KeyID,
			TeamID:        in.TeamID,
			CredentialRef: ref,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		t.UpdatedAt = now
		stored = *t.FindConfig(platform, in.BundleID)
		if existing != nil {
			s.logger.Info("Platform config rotated", "tenant_id", tenantID, "config_id", configID, "platform", platform)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Platform config saved", "tenant_id", tenantID, "config_id", stored.ID, "platform", platform)
	return &stored, nil
}
