// Package registry owns device token records and their session state machine.
package registry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

const sessionIDBytes = 16

// Registry applies register / associate / deactivate events to device records.
// All transitions go through push.NextState.
type Registry struct {
	store        push.DeviceStore
	logger       *slog.Logger
	now          func() time.Time
	newSessionID func() (string, error)
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithSessionIDGenerator overrides session id generation.
func WithSessionIDGenerator(gen func() (string, error)) Option {
	return func(r *Registry) { r.newSessionID = gen }
}

func New(store push.DeviceStore, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:        store,
		logger:       logger.With("component", "DeviceRegistry"),
		now:          func() time.Time { return time.Now().UTC() },
		newSessionID: randomSessionID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates the device record on first sight or rotates its push token.
// The session id is generated once and kept for the life of the record.
func (r *Registry) Register(ctx context.Context, reg push.Registration) (*push.DeviceToken, error) {
	if err := push.Validate(reg); err != nil {
		return nil, err
	}
	platform, err := push.ParsePlatform(string(reg.Platform))
	if err != nil {
		return nil, err
	}

	device, err := r.store.UpdateDevice(ctx, reg.DeviceID, func(current *push.DeviceToken) (*push.DeviceToken, error) {
		now := r.now()
		if current == nil {
			sessionID, err := r.newSessionID()
			if err != nil {
				return nil, fmt.Errorf("failed to generate session id: %w", err)
			}
			state, err := push.NextState(push.StateUnregistered, push.EventRegister)
			if err != nil {
				return nil, err
			}
			return &push.DeviceToken{
				DeviceID:   reg.DeviceID,
				Token:      reg.Token,
				Platform:   platform,
				TenantID:   reg.TenantID,
				SessionID:  sessionID,
				State:      state,
				LastActive: now,
				CreatedAt:  now,
			}, nil
		}

		if current.TenantID != reg.TenantID {
			return nil, &push.ValidationError{Field: "device_id", Reason: "registered under another tenant"}
		}
		state, err := push.NextState(current.State, push.EventRegister)
		if err != nil {
			return nil, err
		}
		current.Token = reg.Token
		current.State = state
		current.LastActive = now
		return current, nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Device registered", "device_id", device.DeviceID, "tenant_id", device.TenantID, "platform", device.Platform)
	return device, nil
}

// AssociateUser links the device to userID and marks it active. Repeating the call
// only refreshes last-active.
func (r *Registry) AssociateUser(ctx context.Context, deviceID, tenantID, userID string) (*push.DeviceToken, error) {
	switch {
	case deviceID == "":
		return nil, &push.ValidationError{Field: "device_id", Reason: "is required"}
	case tenantID == "":
		return nil, &push.ValidationError{Field: "tenant_id", Reason: "is required"}
	case userID == "":
		return nil, &push.ValidationError{Field: "user_id", Reason: "is required"}
	}

	device, err := r.store.UpdateDevice(ctx, deviceID, func(current *push.DeviceToken) (*push.DeviceToken, error) {
		if current == nil || current.TenantID != tenantID {
			return nil, &push.NotFoundError{Resource: "device", ID: deviceID}
		}
		state, err := push.NextState(current.State, push.EventAssociate)
		if err != nil {
			return nil, &push.ValidationError{Field: "device_id", Reason: err.Error()}
		}
		current.UserID = userID
		current.State = state
		current.LastActive = r.now()
		return current, nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Device associated", "device_id", deviceID, "tenant_id", tenantID, "user_id", userID)
	return device, nil
}

// Deactivate marks the device inactive (logout). The associated user id is kept; userID
// is recorded only when the device has none yet.
func (r *Registry) Deactivate(ctx context.Context, deviceID, tenantID, userID string) (*push.DeviceToken, error) {
	switch {
	case deviceID == "":
		return nil, &push.ValidationError{Field: "device_id", Reason: "is required"}
	case tenantID == "":
		return nil, &push.ValidationError{Field: "tenant_id", Reason: "is required"}
	}

	device, err := r.store.UpdateDevice(ctx, deviceID, func(current *push.DeviceToken) (*push.DeviceToken, error) {
		if current == nil || current.TenantID != tenantID {
			return nil, &push.NotFoundError{Resource: "device", ID: deviceID}
		}
		state, err := push.NextState(current.State, push.EventDeactivate)
		if err != nil {
			return nil, &push.ValidationError{Field: "device_id", Reason: err.Error()}
		}
		if current.UserID == "" {
			current.UserID = userID
		}
		current.State = state
		return current, nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Device deactivated", "device_id", deviceID, "tenant_id", tenantID)
	return device, nil
}

// FindActiveByUser returns the active devices of a user, optionally narrowed to platform.
func (r *Registry) FindActiveByUser(ctx context.Context, tenantID, userID string, platform push.Platform) ([]push.DeviceToken, error) {
	if tenantID == "" {
		return nil, &push.ValidationError{Field: "tenant_id", Reason: "is required"}
	}
	if userID == "" {
		return nil, &push.ValidationError{Field: "user_id", Reason: "is required"}
	}
	return r.store.FindDevices(ctx, push.DeviceFilter{
		TenantID:   tenantID,
		UserID:     userID,
		Platform:   platform,
		ActiveOnly: true,
	})
}

// FindActiveByTenant returns every active device of a tenant, optionally narrowed to platform.
func (r *Registry) FindActiveByTenant(ctx context.Context, tenantID string, platform push.Platform) ([]push.DeviceToken, error) {
	if tenantID == "" {
		return nil, &push.ValidationError{Field: "tenant_id", Reason: "is required"}
	}
	return r.store.FindDevices(ctx, push.DeviceFilter{
		TenantID:   tenantID,
		Platform:   platform,
		ActiveOnly: true,
	})
}

func randomSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
