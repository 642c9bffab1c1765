// Package memory provides in-process TenantStore and DeviceStore implementations for
// local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

// Store implements push.TenantStore and push.DeviceStore. A single mutex serializes
// every write, which gives per-device serialization for free.
type Store struct {
	mu         sync.RWMutex
	tenants    map[string]*push.Tenant
	devices    map[string]*push.DeviceToken
	tokenOwner map[string]string
}

func NewStore() *Store {
	return &Store{
		tenants:    make(map[string]*push.Tenant),
		devices:    make(map[string]*push.DeviceToken),
		tokenOwner: make(map[string]string),
	}
}

// --- Tenants ---

func (s *Store) CreateTenant(_ context.Context, tenant *push.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tenants[tenant.ID]; exists {
		return &push.ValidationError{Field: "tenant_id", Reason: "already exists"}
	}
	for _, t := range s.tenants {
		if t.Name == tenant.Name {
			return &push.ValidationError{Field: "name", Reason: "already registered"}
		}
	}
	s.tenants[tenant.ID] = tenant.Clone()
	return nil
}

func (s *Store) GetTenant(_ context.Context, tenantID string) (*push.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, &push.NotFoundError{Resource: "tenant", ID: tenantID}
	}
	return t.Clone(), nil
}

func (s *Store) FindTenantByName(_ context.Context, name string) (*push.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tenants {
		if t.Name == name {
			return t.Clone(), nil
		}
	}
	return nil, &push.NotFoundError{Resource: "tenant", ID: name}
}

func (s *Store) UpdateTenant(_ context.Context, tenantID string, fn func(tenant *push.Tenant) error) (*push.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, &push.NotFoundError{Resource: "tenant", ID: tenantID}
	}
	working := t.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID = tenantID
	s.tenants[tenantID] = working
	return working.Clone(), nil
}

// --- Devices ---

func (s *Store) GetDevice(_ context.Context, deviceID string) (*push.DeviceToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return nil, &push.NotFoundError{Resource: "device", ID: deviceID}
	}
	return d.Clone(), nil
}

func (s *Store) UpdateDevice(_ context.Context, deviceID string, fn func(current *push.DeviceToken) (*push.DeviceToken, error)) (*push.DeviceToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.devices[deviceID]
	next, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}
	push.KeepImmutable(current, next)
	next.DeviceID = deviceID

	if owner, taken := s.tokenOwner[next.Token]; taken && owner != deviceID {
		return nil, &push.ValidationError{Field: "token", Reason: "already registered to another device"}
	}
	if current != nil && current.Token != next.Token {
		delete(s.tokenOwner, current.Token)
	}
	s.tokenOwner[next.Token] = deviceID
	s.devices[deviceID] = next.Clone()
	return next, nil
}

func (s *Store) FindDevices(_ context.Context, filter push.DeviceFilter) ([]push.DeviceToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []push.DeviceToken
	for _, d := range s.devices {
		if filter.Matches(d) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}
