package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

// deviceRecord is the internal DB representation, keyed by device id.
type deviceRecord struct {
	Token      string    `firestore:"token"`
	Platform   string    `firestore:"platform"`
	TenantID   string    `firestore:"tenant_id"`
	UserID     string    `firestore:"user_id"`
	SessionID  string    `firestore:"session_id"`
	State      string    `firestore:"state"`
	LastActive time.Time `firestore:"last_active"`
	CreatedAt  time.Time `firestore:"created_at"`
}

type tokenIndexRecord struct {
	DeviceID string `firestore:"device_id"`
}

func toDeviceRecord(d *push.DeviceToken) deviceRecord {
	return deviceRecord{
		Token:      d.Token,
		Platform:   string(d.Platform),
		TenantID:   d.TenantID,
		UserID:     d.UserID,
		SessionID:  d.SessionID,
		State:      string(d.State),
		LastActive: d.LastActive,
		CreatedAt:  d.CreatedAt,
	}
}

func (r deviceRecord) toDomain(id string) *push.DeviceToken {
	return &push.DeviceToken{
		DeviceID:   id,
		Token:      r.Token,
		Platform:   push.Platform(r.Platform),
		TenantID:   r.TenantID,
		UserID:     r.UserID,
		SessionID:  r.SessionID,
		State:      push.SessionState(r.State),
		LastActive: r.LastActive,
		CreatedAt:  r.CreatedAt,
	}
}

func (s *Store) GetDevice(ctx context.Context, deviceID string) (*push.DeviceToken, error) {
	snap, err := s.deviceRef(deviceID).Get(ctx)
	if isNotFound(err) {
		return nil, &push.NotFoundError{Resource: "device", ID: deviceID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device %s: %w", deviceID, err)
	}
	var rec deviceRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode device %s: %w", deviceID, err)
	}
	return rec.toDomain(deviceID), nil
}

// UpdateDevice serializes writes to one device through a transaction. The token index
// document is checked and moved in the same transaction.
func (s *Store) UpdateDevice(ctx context.Context, deviceID string, fn func(current *push.DeviceToken) (*push.DeviceToken, error)) (*push.DeviceToken, error) {
	ref := s.deviceRef(deviceID)
	var updated *push.DeviceToken

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// 1. Reads: the device, then the index entry of the token it will carry.
		var current *push.DeviceToken
		snap, err := tx.Get(ref)
		switch {
		case isNotFound(err):
		case err != nil:
			return err
		default:
			var rec deviceRecord
			if err := snap.DataTo(&rec); err != nil {
				return fmt.Errorf("failed to decode device %s: %w", deviceID, err)
			}
			current = rec.toDomain(deviceID)
		}

		next, err := fn(current.Clone())
		if err != nil {
			return err
		}
		push.KeepImmutable(current, next)
		next.DeviceID = deviceID

		indexRef := s.tokenRef(next.Token)
		indexSnap, err := tx.Get(indexRef)
		switch {
		case isNotFound(err):
		case err != nil:
			return err
		default:
			var idx tokenIndexRecord
			if err := indexSnap.DataTo(&idx); err != nil {
				return fmt.Errorf("failed to decode token index: %w", err)
			}
			if idx.DeviceID != deviceID {
				return &push.ValidationError{Field: "token", Reason: "already registered to another device"}
			}
		}

		// 2. Writes.
		if current != nil && current.Token != next.Token {
			if err := tx.Delete(s.tokenRef(current.Token)); err != nil {
				return err
			}
		}
		if err := tx.Set(indexRef, tokenIndexRecord{DeviceID: deviceID}); err != nil {
			return err
		}
		updated = next
		return tx.Set(ref, toDeviceRecord(next))
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// FindDevices queries by the equality fields of filter. ActiveOnly is applied after
// the query.
func (s *Store) FindDevices(ctx context.Context, filter push.DeviceFilter) ([]push.DeviceToken, error) {
	q := s.client.Collection(devicesCollection).Query
	if filter.TenantID != "" {
		q = q.Where("tenant_id", "==", filter.TenantID)
	}
	if filter.UserID != "" {
		q = q.Where("user_id", "==", filter.UserID)
	}
	if filter.Platform != "" {
		q = q.Where("platform", "==", string(filter.Platform))
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []push.DeviceToken
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var rec deviceRecord
		if err := doc.DataTo(&rec); err != nil {
			// Skip corrupt rows.
			continue
		}
		d := rec.toDomain(doc.Ref.ID)
		if filter.Matches(d) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *Store) deviceRef(deviceID string) *firestore.DocumentRef {
	return s.client.Collection(devicesCollection).Doc(deviceID)
}

func (s *Store) tokenRef(token string) *firestore.DocumentRef {
	return s.client.Collection(tokensCollection).Doc(hashKey(token))
}
