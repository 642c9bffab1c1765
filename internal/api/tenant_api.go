package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

// TenantService is the onboarding surface the API drives.
type TenantService interface {
	Register(ctx context.Context, name string) (*push.Tenant, error)
	Get(ctx context.Context, tenantID string) (*push.Tenant, error)
	FindByName(ctx context.Context, name string) (*push.Tenant, error)
	AddPlatformConfig(ctx context.Context, tenantID string, in push.PlatformConfigInput) (*push.PlatformConfig, error)
}

// CredentialResolver resolves credentials for inspection.
type CredentialResolver interface {
	Resolve(ctx context.Context, tenantID string, platform push.Platform, bundleID string) (*push.CredentialBundle, error)
}

type TenantAPI struct {
	Tenants  TenantService
	Resolver CredentialResolver
	Logger   *slog.Logger
}

func NewTenantAPI(tenants TenantService, resolver CredentialResolver, logger *slog.Logger) *TenantAPI {
	return &TenantAPI{
		Tenants:  tenants,
		Resolver: resolver,
		Logger:   logger.With("component", "TenantAPI"),
	}
}

type RegisterTenantRequest struct {
	Name string `json:"name"`
}

// PlatformConfigResponse omits the credential reference.
type PlatformConfigResponse struct {
	ID        string        `json:"id"`
	Platform  push.Platform `json:"platform"`
	BundleID  string        `json:"bundle_id"`
	KeyID     string        `json:"key_id,omitempty"`
	TeamID    string        `json:"team_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type TenantResponse struct {
	ID        string                   `json:"tenant_id"`
	Name      string                   `json:"name"`
	Platforms []PlatformConfigResponse `json:"platforms"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
}

func toConfigResponse(c push.PlatformConfig) PlatformConfigResponse {
	return PlatformConfigResponse{
		ID:        c.ID,
		Platform:  c.Platform,
		BundleID:  c.BundleID,
		KeyID:     c.KeyID,
		TeamID:    c.TeamID,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func toTenantResponse(t *push.Tenant) TenantResponse {
	resp := TenantResponse{
		ID:        t.ID,
		Name:      t.Name,
		Platforms: make([]PlatformConfigResponse, 0, len(t.Configs)),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	for _, c := range t.Configs {
		resp.Platforms = append(resp.Platforms, toConfigResponse(c))
	}
	return resp
}

func (api *TenantAPI) RegisterTenant(w http.ResponseWriter, r *http.Request) {
	var req RegisterTenantRequest
	if err := decode(r, &req); err != nil {
		writeError(w, api.Logger, err)
		return
	}

	tenant, err := api.Tenants.Register(r.Context(), req.Name)
	if err != nil {
		writeError(w, api.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTenantResponse(tenant))
}

func (api *TenantAPI) GetTenant(w http.ResponseWriter, r *http.Request) {
	tenant, err := api.Tenants.Get(r.Context(), r.PathValue("tenantID"))
	if err != nil {
		writeError(w, api.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTenantResponse(tenant))
}

// FindTenant looks a tenant up by the "name" query parameter.
func (api *TenantAPI) FindTenant(w http.ResponseWriter, r *http.Request) {
	tenant, err := api.Tenants.FindByName(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		writeError(w, api.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTenantResponse(tenant))
}

// AddPlatformConfig accepts the credential blob base64-encoded in the "credential" field.
func (api *TenantAPI) AddPlatformConfig(w http.ResponseWriter, r *http.Request) {
	var in push.PlatformConfigInput
	if err := decode(r, &in); err != nil {
		writeError(w, api.Logger, err)
		return
	}

	cfg, err := api.Tenants.AddPlatformConfig(r.Context(), r.PathValue("tenantID"), in)
	if err != nil {
		writeError(w, api.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toConfigResponse(*cfg))
}

// ResolveCredentials reports which config a send would use. The blob itself is never
// returned.
func (api *TenantAPI) ResolveCredentials(w http.ResponseWriter, r *http.Request) {
	platform, err := push.ParsePlatform(r.URL.Query().Get("platform"))
	if err != nil {
		writeError(w, api.Logger, err)
		return
	}

	bundle, err := api.Resolver.Resolve(r.Context(), r.PathValue("tenantID"), platform, r.URL.Query().Get("bundle_id"))
	if err != nil {
		writeError(w, api.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}
