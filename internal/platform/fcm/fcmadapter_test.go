package fcm_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-tenant-push-service/internal/platform/fcm"
	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

// MockClient satisfies the MessagingClient interface
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Send(ctx context.Context, msg *messaging.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

type stubReader map[string][]byte

func (s stubReader) ReadCredential(_ context.Context, ref string) ([]byte, error) {
	b, ok := s[ref]
	if !ok {
		return nil, &push.NotFoundError{Resource: "credential", ID: ref}
	}
	return b, nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var bundle = push.CredentialBundle{
	TenantID:      "t1",
	Platform:      push.PlatformAndroid,
	BundleID:      "com.acme.app",
	CredentialRef: "t1/android.json",
}

func TestFCMSend(t *testing.T) {
	ctx := context.Background()
	reader := stubReader{"t1/android.json": []byte(`{"project_id":"acme"}`)}

	t.Run("Happy Path - Success", func(t *testing.T) {
		mockClient := new(MockClient)
		var gotServiceAccount []byte
		factory := func(_ context.Context, _ push.CredentialBundle, sa []byte) (fcm.MessagingClient, error) {
			gotServiceAccount = sa
			return mockClient, nil
		}
		adapter := fcm.NewAdapter(reader, factory, newTestLogger())

		// Arrange
		mockClient.On("Send", ctx, mock.MatchedBy(func(m *messaging.Message) bool {
			return m.Token == "token-1" &&
				m.Notification.Title == "Hi" &&
				m.Notification.ImageURL == "https://cdn/x.png" &&
				m.Data["k"] == "v"
		})).Return("projects/acme/messages/1", nil)

		// Act
		result, err := adapter.Send(ctx, bundle, "token-1", push.Payload{
			Title:    "Hi",
			Body:     "There",
			ImageURL: "https://cdn/x.png",
			Data:     map[string]string{"k": "v"},
		})

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "projects/acme/messages/1", result.ID)
		assert.JSONEq(t, `{"project_id":"acme"}`, string(gotServiceAccount))
		mockClient.AssertExpectations(t)
	})

	t.Run("Send Failure - Provider Error", func(t *testing.T) {
		mockClient := new(MockClient)
		factory := func(context.Context, push.CredentialBundle, []byte) (fcm.MessagingClient, error) {
			return mockClient, nil
		}
		adapter := fcm.NewAdapter(reader, factory, newTestLogger())
		mockClient.On("Send", ctx, mock.Anything).Return("", errors.New("quota exceeded"))

		_, err := adapter.Send(ctx, bundle, "token-1", push.Payload{Body: "x"})

		var perr *push.ProviderError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, push.PlatformAndroid, perr.Platform)
		assert.Equal(t, "quota exceeded", perr.Reason)
	})

	t.Run("Bad Service Account", func(t *testing.T) {
		factory := func(context.Context, push.CredentialBundle, []byte) (fcm.MessagingClient, error) {
			return nil, errors.New("bad json")
		}
		adapter := fcm.NewAdapter(reader, factory, newTestLogger())

		_, err := adapter.Send(ctx, bundle, "token-1", push.Payload{Body: "x"})
		assert.Equal(t, push.KindProvider, push.Kind(err))
	})

	t.Run("Missing Credential", func(t *testing.T) {
		adapter := fcm.NewAdapter(stubReader{}, nil, newTestLogger())
		_, err := adapter.Send(ctx, bundle, "token-1", push.Payload{Body: "x"})
		assert.Equal(t, push.KindNotFound, push.Kind(err))
	})
}

func TestBuildMessage(t *testing.T) {
	plain := fcm.BuildMessage("tok", push.Payload{Title: "a", Body: "b"})
	assert.Nil(t, plain.Android)
	assert.Equal(t, "tok", plain.Token)

	withCategory := fcm.BuildMessage("tok", push.Payload{Body: "b", Category: "OPEN_ORDER"})
	require.NotNil(t, withCategory.Android)
	assert.Equal(t, "OPEN_ORDER", withCategory.Android.Notification.ClickAction)
}
