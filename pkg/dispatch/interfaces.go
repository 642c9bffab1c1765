// Package dispatch defines the contracts between the transports and the dispatch engine.
package dispatch

import (
	"context"

	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

// Dispatcher sends one logical notification to the recipients its mode selects.
type Dispatcher interface {
	// Dispatch routes req by its Mode. For user and bulk sends the report is returned
	// even when the error is a *push.DispatchFailedError.
	Dispatch(ctx context.Context, req *push.NotificationRequest) (*push.Report, error)
}

// RecipientFinder looks up the active devices a fan-out send targets.
type RecipientFinder interface {
	FindActiveByUser(ctx context.Context, tenantID, userID string, platform push.Platform) ([]push.DeviceToken, error)
	FindActiveByTenant(ctx context.Context, tenantID string, platform push.Platform) ([]push.DeviceToken, error)
}
