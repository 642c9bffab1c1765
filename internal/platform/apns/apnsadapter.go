// Package apns provides the Apple Push Notification Service adapter.
package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

const (
	defaultSound = "default"
	mediaURLKey  = "media-url"
)

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// ClientFactory builds a client for one send from the tenant's bundle and .p8 key.
// The returned release func is called once the send completes.
type ClientFactory func(creds push.CredentialBundle, p8Key []byte) (APNSClient, func(), error)

// NewTokenClientFactory returns a factory of token-authenticated apns2 clients
// targeting the production or the sandbox gateway.
func NewTokenClientFactory(production bool) ClientFactory {
	return func(creds push.CredentialBundle, p8Key []byte) (APNSClient, func(), error) {
		authKey, err := token.AuthKeyFromBytes(p8Key)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
		}
		client := apns2.NewTokenClient(&token.Token{
			AuthKey: authKey,
			KeyID:   creds.KeyID,
			TeamID:  creds.TeamID,
		})
		if production {
			client = client.Production()
		} else {
			client = client.Development()
		}
		return client, client.HTTPClient.CloseIdleConnections, nil
	}
}

// Adapter sends to Apple devices. It holds no tenant state: a client is built from
// the credential bundle on every call.
type Adapter struct {
	credentials push.CredentialReader
	newClient   ClientFactory
	logger      *slog.Logger
}

var _ push.ProviderAdapter = (*Adapter)(nil)

func NewAdapter(credentials push.CredentialReader, newClient ClientFactory, logger *slog.Logger) *Adapter {
	return &Adapter{
		credentials: credentials,
		newClient:   newClient,
		logger:      logger.With("component", "APNSAdapter"),
	}
}

func (a *Adapter) Platform() push.Platform { return push.PlatformIOS }

// Send pushes one notification with the bundle id as topic.
func (a *Adapter) Send(ctx context.Context, creds push.CredentialBundle, deviceToken string, p push.Payload) (*push.ProviderResult, error) {
	key, err := a.credentials.ReadCredential(ctx, creds.CredentialRef)
	if err != nil {
		return nil, err
	}
	client, release, err := a.newClient(creds, key)
	if err != nil {
		return nil, &push.ProviderError{Platform: push.PlatformIOS, Reason: "invalid signing key", Err: err}
	}
	defer release()

	res, err := client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       creds.BundleID,
		Payload:     BuildPayload(p),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("APNs send abandoned: %w", ctxErr)
		}
		// Network/Transport Failure
		return nil, &push.ProviderError{Platform: push.PlatformIOS, Reason: err.Error(), Err: err}
	}

	if !res.Sent() {
		switch res.Reason {
		case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
			a.logger.Info("APNs reports dead token", "tenant_id", creds.TenantID, "reason", res.Reason)
		default:
			a.logger.Warn("APNs rejected notification", "tenant_id", creds.TenantID, "reason", res.Reason, "status", res.StatusCode)
		}
		return nil, &push.ProviderError{Platform: push.PlatformIOS, Reason: res.Reason, StatusCode: res.StatusCode}
	}

	return &push.ProviderResult{ID: res.ApnsID, StatusCode: res.StatusCode}, nil
}

// BuildPayload maps the neutral payload onto the aps dictionary. A missing title
// sends the body as a plain alert string.
func BuildPayload(p push.Payload) *payload.Payload {
	builder := payload.NewPayload()
	if p.Title != "" {
		builder.AlertTitle(p.Title).AlertBody(p.Body)
	} else {
		builder.Alert(p.Body)
	}

	sound := p.Sound
	if sound == "" {
		sound = defaultSound
	}
	builder.Sound(sound)

	if p.ImageURL != "" {
		builder.MutableContent().Custom(mediaURLKey, p.ImageURL)
	}
	if p.Category != "" {
		builder.Category(p.Category)
	}
	for k, v := range p.Data {
		builder.Custom(k, v)
	}
	return builder
}
