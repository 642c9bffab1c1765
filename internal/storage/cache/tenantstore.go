// Package cache provides a read-aside redis cache in front of the tenant store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

// ErrMiss is returned by CacheClient.Get when the key is absent.
var ErrMiss = errors.New("cache miss")

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get decodes the value into dest or returns an error (ErrMiss if absent).
	Get(ctx context.Context, key string, dest any) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// CachedTenantStore is a Decorator that adds Read-Aside caching to any TenantStore.
// Tenant lookups sit on every dispatch path; writes invalidate so a rotated credential
// is picked up by the next dispatch.
type CachedTenantStore struct {
	realStore push.TenantStore
	cache     CacheClient
	ttl       time.Duration
	logger    *slog.Logger
}

var _ push.TenantStore = (*CachedTenantStore)(nil)

func NewCachedTenantStore(realStore push.TenantStore, cache CacheClient, ttl time.Duration, logger *slog.Logger) *CachedTenantStore {
	return &CachedTenantStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		logger:    logger.With("component", "CachedTenantStore"),
	}
}

// --- READ PATH (Read-Aside) ---

func (s *CachedTenantStore) GetTenant(ctx context.Context, tenantID string) (*push.Tenant, error) {
	key := cacheKey(tenantID)

	// 1. Try Cache
	var cached push.Tenant
	err := s.cache.Get(ctx, key, &cached)
	if err == nil && cached.ID == tenantID {
		return &cached, nil
	}
	if err != nil && !errors.Is(err, ErrMiss) {
		s.logger.Warn("Cache read failed, falling back to store", "tenant_id", tenantID, "err", err)
	}

	// 2. Fallback to Real Store
	fresh, err := s.realStore.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	// 3. Populate Cache. Errors are ignored: if Redis is down we serve from the store.
	_ = s.cache.Set(ctx, key, fresh, s.ttl)

	return fresh, nil
}

func (s *CachedTenantStore) FindTenantByName(ctx context.Context, name string) (*push.Tenant, error) {
	return s.realStore.FindTenantByName(ctx, name)
}

// --- WRITE PATHS (Invalidate-on-Write) ---

func (s *CachedTenantStore) CreateTenant(ctx context.Context, tenant *push.Tenant) error {
	if err := s.realStore.CreateTenant(ctx, tenant); err != nil {
		return err
	}
	return s.invalidate(ctx, tenant.ID)
}

func (s *CachedTenantStore) UpdateTenant(ctx context.Context, tenantID string, fn func(tenant *push.Tenant) error) (*push.Tenant, error) {
	// 1. Write to Source of Truth
	updated, err := s.realStore.UpdateTenant(ctx, tenantID, fn)
	if err != nil {
		return nil, err
	}
	// 2. Invalidate Cache
	if err := s.invalidate(ctx, tenantID); err != nil {
		return nil, err
	}
	return updated, nil
}

// --- Helpers ---

func (s *CachedTenantStore) invalidate(ctx context.Context, tenantID string) error {
	if err := s.cache.Del(ctx, cacheKey(tenantID)); err != nil {
		return fmt.Errorf("failed to invalidate cached tenant %s: %w", tenantID, err)
	}
	return nil
}

func cacheKey(tenantID string) string {
	return fmt.Sprintf("push:tenant:%s", tenantID)
}
