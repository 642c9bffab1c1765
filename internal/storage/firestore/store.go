// Package firestore implements the tenant and device stores on Google Cloud Firestore.
package firestore

import (
	"crypto/sha256"
	"encoding/hex"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	tenantsCollection = "tenants"
	devicesCollection = "devices"
	// push_tokens/{sha256(token)} -> device id. Keeps push tokens globally unique.
	tokensCollection = "push_tokens"
	// tenant_names/{sha256(name)} -> tenant id. Keeps tenant names unique.
	tenantNamesCollection = "tenant_names"
)

// Store implements push.TenantStore and push.DeviceStore.
type Store struct {
	client *firestore.Client
}

func NewStore(client *firestore.Client) *Store {
	return &Store{client: client}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func hashKey(k string) string {
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:])
}
