package push

import "context"

// TenantStore persists tenants and their nested platform configs.
type TenantStore interface {
	// CreateTenant stores a new tenant. It fails with a ValidationError if the id exists.
	CreateTenant(ctx context.Context, tenant *Tenant) error

	// GetTenant returns the tenant or a NotFoundError.
	GetTenant(ctx context.Context, tenantID string) (*Tenant, error)

	// FindTenantByName returns the tenant with the given display name or a NotFoundError.
	FindTenantByName(ctx context.Context, name string) (*Tenant, error)

	// UpdateTenant applies fn to the stored tenant atomically and returns the result.
	UpdateTenant(ctx context.Context, tenantID string, fn func(tenant *Tenant) error) (*Tenant, error)
}

// DeviceStore persists device tokens. Implementations keep device ids and push tokens
// unique and serialize updates per device id.
type DeviceStore interface {
	// GetDevice returns the device or a NotFoundError.
	GetDevice(ctx context.Context, deviceID string) (*DeviceToken, error)

	// UpdateDevice runs fn against the current record (nil when absent) and stores
	// the record it returns. Returning an error aborts the update.
	UpdateDevice(ctx context.Context, deviceID string, fn func(current *DeviceToken) (*DeviceToken, error)) (*DeviceToken, error)

	// FindDevices returns every device matching filter. Order is not significant.
	FindDevices(ctx context.Context, filter DeviceFilter) ([]DeviceToken, error)
}

// ProviderAdapter delivers one notification to one recipient on one platform.
// Adapters are stateless per call: provider clients are built from the bundle and
// released before Send returns.
type ProviderAdapter interface {
	Platform() Platform
	Send(ctx context.Context, creds CredentialBundle, token string, payload Payload) (*ProviderResult, error)
}

// CredentialReader loads the credential blob a bundle refers to.
type CredentialReader interface {
	ReadCredential(ctx context.Context, ref string) ([]byte, error)
}
