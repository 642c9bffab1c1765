package credfile_test

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-tenant-push-service/internal/storage/credfile"
	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

func TestSaveAndRead(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	store := credfile.NewStore(fsys, "docs")

	ref, err := store.Save(ctx, "acme_1700000000000", "cfg-1", push.PlatformIOS, []byte("p8-key"))
	require.NoError(t, err)
	assert.Equal(t, "acme_1700000000000_cfg-1/ios.p8", ref)

	exists, err := afero.Exists(fsys, "docs/acme_1700000000000_cfg-1/ios.p8")
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := store.ReadCredential(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("p8-key"), got)

	t.Run("rotation replaces the blob", func(t *testing.T) {
		again, err := store.Save(ctx, "acme_1700000000000", "cfg-1", push.PlatformIOS, []byte("new-key"))
		require.NoError(t, err)
		assert.Equal(t, ref, again)

		got, err := store.ReadCredential(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, []byte("new-key"), got)
	})
}

func TestFileNames(t *testing.T) {
	ctx := context.Background()
	store := credfile.NewStore(afero.NewMemMapFs(), "root")

	android, err := store.Save(ctx, "t", "c", push.PlatformAndroid, []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, "t_c/android.json", android)

	huawei, err := store.Save(ctx, "t", "c", push.PlatformHuawei, []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, "t_c/huawei.json", huawei)

	_, err = store.Save(ctx, "t", "c", "windows", []byte("x"))
	assert.Equal(t, push.KindUnsupportedPlatform, push.Kind(err))
}

func TestRejectsEscapes(t *testing.T) {
	ctx := context.Background()
	store := credfile.NewStore(afero.NewMemMapFs(), "root")

	_, err := store.Save(ctx, "../evil", "c", push.PlatformIOS, []byte("x"))
	assert.Equal(t, push.KindValidation, push.Kind(err))

	_, err = store.ReadCredential(ctx, "../../etc/passwd")
	assert.Equal(t, push.KindValidation, push.Kind(err))

	_, err = store.ReadCredential(ctx, "/etc/passwd")
	assert.Equal(t, push.KindValidation, push.Kind(err))

	_, err = store.ReadCredential(ctx, "missing/ios.p8")
	assert.Equal(t, push.KindNotFound, push.Kind(err))
}
