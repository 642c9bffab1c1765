package push

import "time"

// Tenant is an independent customer owning one or more platform configurations.
type Tenant struct {
	ID        string           `json:"tenant_id"`
	Name      string           `json:"name"`
	Configs   []PlatformConfig `json:"platforms"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// PlatformConfig holds the credentials a tenant uses for one push platform and app.
// CredentialRef points at the opaque credential blob (.p8 key or service account JSON).
type PlatformConfig struct {
	ID            string    `json:"id"`
	Platform      Platform  `json:"platform"`
	BundleID      string    `json:"bundle_id"`
	KeyID         string    `json:"key_id,omitempty"`
	TeamID        string    `json:"team_id,omitempty"`
	CredentialRef string    `json:"credential_ref"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PlatformConfigInput is the data needed to add or rotate a platform config.
type PlatformConfigInput struct {
	Platform   Platform `json:"platform" validate:"required"`
	BundleID   string   `json:"bundle_id" validate:"required"`
	KeyID      string   `json:"key_id" validate:"required_if=Platform ios"`
	TeamID     string   `json:"team_id" validate:"required_if=Platform ios"`
	Credential []byte   `json:"credential" validate:"required"`
}

// CredentialBundle is the resolved, validated set of credentials for a single send.
// It is passed by value into provider adapters and never shared between tenants.
type CredentialBundle struct {
	TenantID      string   `json:"tenant_id"`
	ConfigID      string   `json:"config_id"`
	Platform      Platform `json:"platform"`
	BundleID      string   `json:"bundle_id"`
	KeyID         string   `json:"key_id,omitempty"`
	TeamID        string   `json:"team_id,omitempty"`
	CredentialRef string   `json:"-"`
}

// FindConfig returns the first config of the given platform in insertion order,
// narrowed to bundleID when it is not empty.
func (t *Tenant) FindConfig(p Platform, bundleID string) *PlatformConfig {
	for i := range t.Configs {
		c := &t.Configs[i]
		if c.Platform != p {
			continue
		}
		if bundleID != "" && c.BundleID != bundleID {
			continue
		}
		return c
	}
	return nil
}

// UpsertConfig replaces the config with the same (platform, bundle id) in place,
// keeping its position, or appends cfg. It reports whether a config was replaced.
func (t *Tenant) UpsertConfig(cfg PlatformConfig) bool {
	for i := range t.Configs {
		c := t.Configs[i]
		if c.Platform == cfg.Platform && c.BundleID == cfg.BundleID {
			cfg.CreatedAt = c.CreatedAt
			t.Configs[i] = cfg
			return true
		}
	}
	t.Configs = append(t.Configs, cfg)
	return false
}

// Clone returns a deep copy of t.
func (t *Tenant) Clone() *Tenant {
	out := *t
	out.Configs = append([]PlatformConfig(nil), t.Configs...)
	return &out
}
