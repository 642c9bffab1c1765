package credentials_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-tenant-push-service/internal/credentials"
	"github.com/tinywideclouds/go-tenant-push-service/internal/storage/memory"
	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seed(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.CreateTenant(ctx, &push.Tenant{
		ID:   "tenant-a",
		Name: "a",
		Configs: []push.PlatformConfig{
			{ID: "a-ios-1", Platform: push.PlatformIOS, BundleID: "com.a.one", KeyID: "KA", TeamID: "TA", CredentialRef: "a/ios1.p8"},
			{ID: "a-ios-2", Platform: push.PlatformIOS, BundleID: "com.a.two", KeyID: "KA2", TeamID: "TA", CredentialRef: "a/ios2.p8"},
			{ID: "a-android", Platform: push.PlatformAndroid, BundleID: "com.a.one", CredentialRef: "a/android.json"},
		},
	}))
	require.NoError(t, store.CreateTenant(ctx, &push.Tenant{
		ID:   "tenant-b",
		Name: "b",
		Configs: []push.PlatformConfig{
			{ID: "b-ios", Platform: push.PlatformIOS, BundleID: "com.a.one", KeyID: "KB", TeamID: "TB", CredentialRef: "b/ios.p8"},
			{ID: "b-huawei-nocred", Platform: push.PlatformHuawei, BundleID: "com.b"},
		},
	}))
	return store
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	resolver := credentials.NewResolver(seed(t), newLogger())

	t.Run("first config in insertion order without bundle", func(t *testing.T) {
		bundle, err := resolver.Resolve(ctx, "tenant-a", push.PlatformIOS, "")
		require.NoError(t, err)
		assert.Equal(t, "a-ios-1", bundle.ConfigID)
		assert.Equal(t, "KA", bundle.KeyID)
		assert.Equal(t, "TA", bundle.TeamID)
		assert.Equal(t, "a/ios1.p8", bundle.CredentialRef)
	})

	t.Run("bundle id narrows the match", func(t *testing.T) {
		bundle, err := resolver.Resolve(ctx, "tenant-a", push.PlatformIOS, "com.a.two")
		require.NoError(t, err)
		assert.Equal(t, "a-ios-2", bundle.ConfigID)
	})

	t.Run("errors", func(t *testing.T) {
		testCases := []struct {
			name     string
			tenant   string
			platform push.Platform
			bundle   string
			kind     string
		}{
			{"unknown tenant", "tenant-z", push.PlatformIOS, "", push.KindNotFound},
			{"no config of platform", "tenant-a", push.PlatformHuawei, "", push.KindNotFound},
			{"no config of bundle", "tenant-a", push.PlatformAndroid, "com.a.two", push.KindNotFound},
			{"config without credential", "tenant-b", push.PlatformHuawei, "", push.KindNotFound},
			{"unsupported platform", "tenant-a", "windows", "", push.KindUnsupportedPlatform},
			{"missing tenant id", "", push.PlatformIOS, "", push.KindValidation},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := resolver.Resolve(ctx, tc.tenant, tc.platform, tc.bundle)
				require.Error(t, err)
				assert.Equal(t, tc.kind, push.Kind(err))
			})
		}
	})
}

func TestResolve_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	resolver := credentials.NewResolver(seed(t), newLogger())

	// Both tenants have an ios config with the same bundle id.
	a, err := resolver.Resolve(ctx, "tenant-a", push.PlatformIOS, "com.a.one")
	require.NoError(t, err)
	b, err := resolver.Resolve(ctx, "tenant-b", push.PlatformIOS, "com.a.one")
	require.NoError(t, err)

	assert.Equal(t, "tenant-a", a.TenantID)
	assert.Equal(t, "tenant-b", b.TenantID)
	assert.NotEqual(t, a.CredentialRef, b.CredentialRef)
	assert.NotEqual(t, a.ConfigID, b.ConfigID)
	assert.Equal(t, "KB", b.KeyID)
}

type misroutingStore struct {
	push.TenantStore
}

func (misroutingStore) GetTenant(context.Context, string) (*push.Tenant, error) {
	return &push.Tenant{ID: "someone-else", Configs: []push.PlatformConfig{
		{ID: "x", Platform: push.PlatformAndroid, CredentialRef: "x.json"},
	}}, nil
}

func TestResolve_RejectsMismatchedTenant(t *testing.T) {
	resolver := credentials.NewResolver(misroutingStore{}, newLogger())
	bundle, err := resolver.Resolve(context.Background(), "tenant-a", push.PlatformAndroid, "")
	assert.Error(t, err)
	assert.Nil(t, bundle)
}

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Resolve(ctx context.Context, tenantID string, platform push.Platform, bundleID string) (*push.CredentialBundle, error) {
	args := m.Called(ctx, tenantID, platform, bundleID)
	bundle, _ := args.Get(0).(*push.CredentialBundle)
	return bundle, args.Error(1)
}

func TestMemo_ResolvesOncePerKey(t *testing.T) {
	ctx := context.Background()
	source := new(mockSource)
	source.On("Resolve", ctx, "t1", push.PlatformIOS, "").
		Return(&push.CredentialBundle{TenantID: "t1", ConfigID: "ios"}, nil).Once()
	source.On("Resolve", ctx, "t1", push.PlatformAndroid, "").
		Return(nil, errors.New("boom")).Once()

	memo := credentials.NewMemo(source)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bundle, err := memo.Resolve(ctx, "t1", push.PlatformIOS, "")
			assert.NoError(t, err)
			assert.Equal(t, "ios", bundle.ConfigID)
		}()
	}
	wg.Wait()

	_, err := memo.Resolve(ctx, "t1", push.PlatformAndroid, "")
	assert.Error(t, err)
	_, err = memo.Resolve(ctx, "t1", push.PlatformAndroid, "")
	assert.Error(t, err)

	source.AssertExpectations(t)
	source.AssertNumberOfCalls(t, "Resolve", 2)
}

func TestMemo_CallerDeadline(t *testing.T) {
	ctx := context.Background()

	// Arrange: the first lookup only ends when its caller gives up.
	source := new(mockSource)
	source.On("Resolve", mock.Anything, "t1", push.PlatformIOS, "").
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(nil, context.DeadlineExceeded).Once()
	source.On("Resolve", mock.Anything, "t1", push.PlatformIOS, "").
		Return(&push.CredentialBundle{TenantID: "t1", ConfigID: "ios"}, nil).Once()

	memo := credentials.NewMemo(source)

	// Act
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := memo.Resolve(short, "t1", push.PlatformIOS, "")

	// Assert
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	// The abandoned lookup is not memoized; a later caller resolves afresh.
	require.Eventually(t, func() bool {
		bundle, err := memo.Resolve(ctx, "t1", push.PlatformIOS, "")
		return err == nil && bundle.ConfigID == "ios"
	}, time.Second, 10*time.Millisecond)
	source.AssertNumberOfCalls(t, "Resolve", 2)
}
