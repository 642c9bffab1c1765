package s3cred_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-tenant-push-service/internal/storage/s3cred"
	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

type mockObjectClient struct {
	mock.Mock
}

func (m *mockObjectClient) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func (m *mockObjectClient) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Happy Path - Save uploads under the prefix", func(t *testing.T) {
		// Arrange
		client := new(mockObjectClient)
		store := s3cred.NewStore(client, "creds-bucket", "/push/")
		client.On("PutObject", ctx, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
			body, _ := io.ReadAll(in.Body)
			return aws.ToString(in.Bucket) == "creds-bucket" &&
				aws.ToString(in.Key) == "push/acme_1_cfg-1/ios.p8" &&
				bytes.Equal(body, []byte("p8-key"))
		})).Return(&s3.PutObjectOutput{}, nil).Once()

		// Act
		ref, err := store.Save(ctx, "acme_1", "cfg-1", push.PlatformIOS, []byte("p8-key"))

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "acme_1_cfg-1/ios.p8", ref)
		client.AssertExpectations(t)
	})

	t.Run("Happy Path - ReadCredential downloads the object", func(t *testing.T) {
		// Arrange
		client := new(mockObjectClient)
		store := s3cred.NewStore(client, "creds-bucket", "")
		client.On("GetObject", ctx, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
			return aws.ToString(in.Key) == "t_c/android.json"
		})).Return(&s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte(`{"type":"service_account"}`)))}, nil).Once()

		// Act
		got, err := store.ReadCredential(ctx, "t_c/android.json")

		// Assert
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"service_account"}`, string(got))
	})

	t.Run("Failure - Missing object is NotFound", func(t *testing.T) {
		client := new(mockObjectClient)
		store := s3cred.NewStore(client, "creds-bucket", "")
		client.On("GetObject", ctx, mock.Anything).Return(nil, &types.NoSuchKey{}).Once()

		_, err := store.ReadCredential(ctx, "t_c/huawei.json")
		assert.Equal(t, push.KindNotFound, push.Kind(err))
	})

	t.Run("Failure - Transport errors are wrapped", func(t *testing.T) {
		client := new(mockObjectClient)
		store := s3cred.NewStore(client, "creds-bucket", "")
		client.On("GetObject", ctx, mock.Anything).Return(nil, errors.New("connection reset")).Once()

		_, err := store.ReadCredential(ctx, "t_c/huawei.json")
		require.Error(t, err)
		assert.Equal(t, push.KindInternal, push.Kind(err))
	})

	t.Run("Failure - Rejects escaping references and bad input", func(t *testing.T) {
		client := new(mockObjectClient)
		store := s3cred.NewStore(client, "creds-bucket", "")

		_, err := store.ReadCredential(ctx, "../other/ios.p8")
		assert.Equal(t, push.KindValidation, push.Kind(err))

		_, err = store.Save(ctx, "t", "c", "windows", []byte("x"))
		assert.Equal(t, push.KindUnsupportedPlatform, push.Kind(err))

		client.AssertNotCalled(t, "GetObject", mock.Anything, mock.Anything)
		client.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything)
	})
}
