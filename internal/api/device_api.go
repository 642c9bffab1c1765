package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

// DeviceRegistry is the device lifecycle the API drives.
type DeviceRegistry interface {
	Register(ctx context.Context, reg push.Registration) (*push.DeviceToken, error)
	AssociateUser(ctx context.Context, deviceID, tenantID, userID string) (*push.DeviceToken, error)
	Deactivate(ctx context.Context, deviceID, tenantID, userID string) (*push.DeviceToken, error)
}

type DeviceAPI struct {
	Registry DeviceRegistry
	Logger   *slog.Logger
}

func NewDeviceAPI(registry DeviceRegistry, logger *slog.Logger) *DeviceAPI {
	return &DeviceAPI{
		Registry: registry,
		Logger:   logger.With("component", "DeviceAPI"),
	}
}

type RegisterDeviceResponse struct {
	SessionID string            `json:"session_id"`
	Device    *push.DeviceToken `json:"device"`
}

// SessionRequest is the body of login and logout.
type SessionRequest struct {
	DeviceID string `json:"device_id"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
}

func (api *DeviceAPI) Register(w http.ResponseWriter, r *http.Request) {
	var req push.Registration
	if err := decode(r, &req); err != nil {
		writeError(w, api.Logger, err)
		return
	}

	device, err := api.Registry.Register(r.Context(), req)
	if err != nil {
		writeError(w, api.Logger, err)
		return
	}
	api.Logger.Info("Register: device registered", "device_id", device.DeviceID, "tenant_id", device.TenantID)

	writeJSON(w, http.StatusOK, RegisterDeviceResponse{SessionID: device.SessionID, Device: device})
}

func (api *DeviceAPI) Login(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, api.Logger, err)
		return
	}

	device, err := api.Registry.AssociateUser(r.Context(), req.DeviceID, req.TenantID, req.UserID)
	if err != nil {
		writeError(w, api.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

func (api *DeviceAPI) Logout(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, api.Logger, err)
		return
	}

	device, err := api.Registry.Deactivate(r.Context(), req.DeviceID, req.TenantID, req.UserID)
	if err != nil {
		writeError(w, api.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}
