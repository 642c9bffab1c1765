// Package fcm provides the Firebase Cloud Messaging adapter for Android devices.
package fcm

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// *messaging.Client satisfies it.
type MessagingClient interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

// ClientFactory builds a messaging client from a tenant's service account JSON.
type ClientFactory func(ctx context.Context, creds push.CredentialBundle, serviceAccount []byte) (MessagingClient, error)

// NewFirebaseClientFactory returns a factory creating one Firebase app per call.
// The project id is taken from the service account.
func NewFirebaseClientFactory() ClientFactory {
	return func(ctx context.Context, _ push.CredentialBundle, serviceAccount []byte) (MessagingClient, error) {
		app, err := firebase.NewApp(ctx, nil, option.WithCredentialsJSON(serviceAccount))
		if err != nil {
			return nil, fmt.Errorf("failed to create firebase app: %w", err)
		}
		client, err := app.Messaging(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create messaging client: %w", err)
		}
		return client, nil
	}
}

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
		logger:      logger.With("component", "FCMAdapter"),
	}
}

func (a *Adapter) Platform() push.Platform { return push.PlatformAndroid }

func (a *Adapter) Send(ctx context.Context, creds push.CredentialBundle, deviceToken string, p push.Payload) (*push.ProviderResult, error) {
	serviceAccount, err := a.credentials.ReadCredential(ctx, creds.CredentialRef)
	if err != nil {
		return nil, err
	}
	client, err := a.newClient(ctx, creds, serviceAccount)
	if err != nil {
		return nil, &push.ProviderError{Platform: push.PlatformAndroid, Reason: "invalid service account", Err: err}
	}

	id, err := client.Send(ctx, BuildMessage(deviceToken, p))
	if err != nil {
		reason := err.Error()
		switch {
		case messaging.IsRegistrationTokenNotRegistered(err):
			reason = "registration-token-not-registered"
			a.logger.Info("FCM reports dead token", "tenant_id", creds.TenantID)
		case messaging.IsInvalidArgument(err):
			reason = "invalid-argument"
			a.logger.Warn("FCM rejected message as InvalidArgument", "tenant_id", creds.TenantID, "err", err)
		}
		return nil, &push.ProviderError{Platform: push.PlatformAndroid, Reason: reason, Err: err}
	}

	return &push.ProviderResult{ID: id}, nil
}

// BuildMessage maps the neutral payload onto a single-token FCM message.
func BuildMessage(deviceToken string, p push.Payload) *messaging.Message {
	msg := &messaging.Message{
		Token: deviceToken,
		Data:  p.Data,
		Notification: &messaging.Notification{
			Title:    p.Title,
			Body:     p.Body,
			ImageURL: p.ImageURL,
		},
	}
	if p.Category != "" || p.Sound != "" {
		msg.Android = &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{
				ClickAction: p.Category,
				Sound:       p.Sound,
			},
		}
	}
	return msg
}
