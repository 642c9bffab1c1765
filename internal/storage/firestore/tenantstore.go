package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

// tenantRecord is the internal DB representation. Platform configs are nested so a
// tenant and its configs change in one document write.
type tenantRecord struct {
	Name      string                 `firestore:"name"`
	Configs   []platformConfigRecord `firestore:"platforms"`
	CreatedAt time.Time              `firestore:"created_at"`
	UpdatedAt time.Time              `firestore:"updated_at"`
}

type platformConfigRecord struct {
	ID            string    `firestore:"id"`
	Platform      string    `firestore:"platform"`
	BundleID      string    `firestore:"bundle_id"`
	KeyID         string    `firestore:"key_id,omitempty"`
	TeamID        string    `firestore:"team_id,omitempty"`
	CredentialRef string    `firestore:"credential_ref"`
	CreatedAt     time.Time `firestore:"created_at"`
	UpdatedAt     time.Time `firestore:"updated_at"`
}

type tenantNameRecord struct {
	TenantID string `firestore:"tenant_id"`
}

func toTenantRecord(t *push.Tenant) tenantRecord {
	rec := tenantRecord{
		Name:      t.Name,
		Configs:   make([]platformConfigRecord, 0, len(t.Configs)),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	for _, c := range t.Configs {
		rec.Configs = append(rec.Configs, platformConfigRecord{
			ID:            c.ID,
			Platform:      string(c.Platform),
			BundleID:      c.BundleID,
			KeyID:         c.KeyID,
			TeamID:        c.TeamID,
			CredentialRef: c.CredentialRef,
			CreatedAt:     c.CreatedAt,
			UpdatedAt:     c.UpdatedAt,
		})
	}
	return rec
}

func (r tenantRecord) toDomain(id string) *push.Tenant {
	t := &push.Tenant{
		ID:        id,
		Name:      r.Name,
		Configs:   make([]push.PlatformConfig, 0, len(r.Configs)),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	for _, c := range r.Configs {
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

// CreateTenant writes the tenant and its name index in one transaction.
func (s *Store) CreateTenant(ctx context.Context, tenant *push.Tenant) error {
	nameRef := s.tenantNameRef(tenant.Name)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(nameRef)
		if err == nil {
			return &push.ValidationError{Field: "name", Reason: "already registered"}
		}
		if !isNotFound(err) {
			return err
		}
		if err := tx.Create(s.tenantRef(tenant.ID), toTenantRecord(tenant)); err != nil {
			return err
		}
		return tx.Create(nameRef, tenantNameRecord{TenantID: tenant.ID})
	})
	if status.Code(err) == codes.AlreadyExists {
		return &push.ValidationError{Field: "tenant_id", Reason: "already exists"}
	}
	if err != nil {
		var verr *push.ValidationError
		if errors.As(err, &verr) {
			return err
		}
		return fmt.Errorf("failed to create tenant %s: %w", tenant.ID, err)
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, tenantID string) (*push.Tenant, error) {
	snap, err := s.tenantRef(tenantID).Get(ctx)
	if isNotFound(err) {
		return nil, &push.NotFoundError{Resource: "tenant", ID: tenantID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant %s: %w", tenantID, err)
	}
	var rec tenantRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode tenant %s: %w", tenantID, err)
	}
	return rec.toDomain(snap.Ref.ID), nil
}

func (s *Store) FindTenantByName(ctx context.Context, name string) (*push.Tenant, error) {
	iter := s.client.Collection(tenantsCollection).Where("name", "==", name).Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, &push.NotFoundError{Resource: "tenant", ID: name}
	}
	if err != nil {
		return nil, fmt.Errorf("firestore query failed: %w", err)
	}
	var rec tenantRecord
	if err := doc.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode tenant %s: %w", doc.Ref.ID, err)
	}
	return rec.toDomain(doc.Ref.ID), nil
}

// UpdateTenant runs fn inside a transaction so concurrent config additions do not
// overwrite each other.
func (s *Store) UpdateTenant(ctx context.Context, tenantID string, fn func(tenant *push.Tenant) error) (*push.Tenant, error) {
	ref := s.tenantRef(tenantID)
	var updated *push.Tenant

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return &push.NotFoundError{Resource: "tenant", ID: tenantID}
		}
		if err != nil {
			return err
		}
		var rec tenantRecord
		if err := snap.DataTo(&rec); err != nil {
			return fmt.Errorf("failed to decode tenant %s: %w", tenantID, err)
		}

		tenant := rec.toDomain(tenantID)
		if err := fn(tenant); err != nil {
			return err
		}
		tenant.ID = tenantID
		updated = tenant
		return tx.Set(ref, toTenantRecord(tenant))
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) tenantRef(tenantID string) *firestore.DocumentRef {
	return s.client.Collection(tenantsCollection).Doc(tenantID)
}

func (s *Store) tenantNameRef(name string) *firestore.DocumentRef {
	return s.client.Collection(tenantNamesCollection).Doc(hashKey(name))
}
