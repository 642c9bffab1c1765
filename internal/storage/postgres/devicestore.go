package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

type deviceRow struct {
	DeviceID   string    `db:"device_id"`
	Token      string    `db:"token"`
	Platform   string    `db:"platform"`
	TenantID   string    `db:"tenant_id"`
	UserID     string    `db:"user_id"`
	SessionID  string    `db:"session_id"`
	State      string    `db:"state"`
	LastActive time.Time `db:"last_active"`
	CreatedAt  time.Time `db:"created_at"`
}

func toDeviceRow(d *push.DeviceToken) deviceRow {
	return deviceRow{
		DeviceID:   d.DeviceID,
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

func (r deviceRow) toDomain() *push.DeviceToken {
	return &push.DeviceToken{
		DeviceID:   r.DeviceID,
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

const selectDevice = `
	SELECT device_id, token, platform, tenant_id, user_id, session_id, state, last_active, created_at
	FROM devices
`

func (s *Store) GetDevice(ctx context.Context, deviceID string) (*push.DeviceToken, error) {
	var row deviceRow
	err := s.db.GetContext(ctx, &row, selectDevice+` WHERE device_id = $1`, deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &push.NotFoundError{Resource: "device", ID: deviceID}
	}
	if err != nil {
		return nil, fmt.Errorf("get device %s: %w", deviceID, err)
	}
	return row.toDomain(), nil
}

// UpdateDevice serializes writers of one device id with a transaction scoped advisory
// lock, which also covers the first insert of a new id.
func (s *Store) UpdateDevice(ctx context.Context, deviceID string, fn func(current *push.DeviceToken) (*push.DeviceToken, error)) (*push.DeviceToken, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, deviceID); err != nil {
		return nil, fmt.Errorf("lock device %s: %w", deviceID, err)
	}

	var current *push.DeviceToken
	var row deviceRow
	err = tx.GetContext(ctx, &row, selectDevice+` WHERE device_id = $1`, deviceID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("get device %s: %w", deviceID, err)
	default:
		current = row.toDomain()
	}

	next, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}
	push.KeepImmutable(current, next)
	next.DeviceID = deviceID

	var owner string
	err = tx.GetContext(ctx, &owner, `SELECT device_id FROM devices WHERE token = $1`, next.Token)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("check token owner: %w", err)
	case owner != deviceID:
		return nil, &push.ValidationError{Field: "token", Reason: "already registered to another device"}
	}

	const upsert = `
		INSERT INTO devices (device_id, token, platform, tenant_id, user_id, session_id, state, last_active, created_at)
		VALUES (:device_id, :token, :platform, :tenant_id, :user_id, :session_id, :state, :last_active, :created_at)
		ON CONFLICT (device_id) DO UPDATE SET
			token = EXCLUDED.token,
			platform = EXCLUDED.platform,
			tenant_id = EXCLUDED.tenant_id,
			user_id = EXCLUDED.user_id,
			session_id = EXCLUDED.session_id,
			state = EXCLUDED.state,
			last_active = EXCLUDED.last_active
	`
	_, err = tx.NamedExecContext(ctx, upsert, toDeviceRow(next))
	if isUniqueViolation(err) {
		// Another device took the token between the check and the write.
		return nil, &push.ValidationError{Field: "token", Reason: "already registered to another device"}
	}
	if err != nil {
		return nil, fmt.Errorf("upsert device %s: %w", deviceID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return next, nil
}

func (s *Store) FindDevices(ctx context.Context, filter push.DeviceFilter) ([]push.DeviceToken, error) {
	query, args := buildDeviceQuery(filter)

	var rows []deviceRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("find devices: %w", err)
	}

	out := make([]push.DeviceToken, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.toDomain())
	}
	return out, nil
}

func buildDeviceQuery(filter push.DeviceFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(column string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.TenantID != "" {
		add("tenant_id", filter.TenantID)
	}
	if filter.UserID != "" {
		add("user_id", filter.UserID)
	}
	if filter.Platform != "" {
		add("platform", string(filter.Platform))
	}
	if filter.ActiveOnly {
		where = append(where, fmt.Sprintf("state IN ('%s', '%s')", push.StateAnonymous, push.StateActive))
	}

	query := selectDevice
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	return query + " ORDER BY device_id", args
}
