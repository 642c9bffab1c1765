// Package credfile stores tenant credential blobs (.p8 keys, service account JSON) on a
// filesystem under one directory per platform config.
package credfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600
)

var fileNames = map[push.Platform]string{
	push.PlatformIOS:     "ios.p8",
	push.PlatformAndroid: "android.json",
	push.PlatformHuawei:  "huawei.json",
}

// Store writes blobs to <root>/<tenantID>_<configID>/<platform file>. References are
// paths relative to root, so a store can be relocated without rewriting records.
type Store struct {
	fs   afero.Fs
	root string
}

func NewStore(fsys afero.Fs, root string) *Store {
	return &Store{fs: fsys, root: root}
}

// Save writes blob for the given config and returns its reference. An existing blob
// is replaced.
func (s *Store) Save(_ context.Context, tenantID, configID string, platform push.Platform, blob []byte) (string, error) {
	ref, err := ObjectName(tenantID, configID, platform)
	if err != nil {
		return "", err
	}

	full := filepath.Join(s.root, filepath.FromSlash(ref))
	if err := s.fs.MkdirAll(filepath.Dir(full), dirPerm); err != nil {
		return "", fmt.Errorf("failed to create credential dir: %w", err)
	}
	if err := afero.WriteFile(s.fs, full, blob, filePerm); err != nil {
		return "", fmt.Errorf("failed to write credential: %w", err)
	}
	return ref, nil
}

// ReadCredential implements push.CredentialReader.
func (s *Store) ReadCredential(_ context.Context, ref string) ([]byte, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if ref == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, &push.ValidationError{Field: "credential_ref", Reason: "must be a relative path inside the credential root"}
	}
	b, err := afero.ReadFile(s.fs, filepath.Join(s.root, clean))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &push.NotFoundError{Resource: "credential", ID: ref}
		}
		return nil, fmt.Errorf("failed to read credential %s: %w", ref, err)
	}
	return b, nil
}

// ObjectName returns the slash separated name of a config's credential blob,
// "<tenantID>_<configID>/<platform file>".
func ObjectName(tenantID, configID string, platform push.Platform) (string, error) {
	name, ok := fileNames[platform]
	if !ok {
		return "", &push.UnsupportedPlatformError{Platform: string(platform)}
	}
	if err := checkSegment("tenant_id", tenantID); err != nil {
		return "", err
	}
	if err := checkSegment("config_id", configID); err != nil {
		return "", err
	}
	return path.Join(tenantID+"_"+configID, name), nil
}

func checkSegment(field, v string) error {
	if v == "" {
		return &push.ValidationError{Field: field, Reason: "is required"}
	}
	if strings.ContainsAny(v, `/\`) || v == "." || v == ".." {
		return &push.ValidationError{Field: field, Reason: "must not contain path separators"}
	}
	return nil
}
