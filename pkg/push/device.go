package push

import (
	"fmt"
	"time"
)

// SessionState is the association state of a device record.
type SessionState string

const (
	StateUnregistered SessionState = "unregistered"
	StateAnonymous    SessionState = "anonymous"
	StateActive       SessionState = "active"
	StateInactive     SessionState = "inactive"
)

// DeviceEvent is an input to the device state machine.
type DeviceEvent string

const (
	EventRegister   DeviceEvent = "register"
	EventAssociate  DeviceEvent = "associate"
	EventDeactivate DeviceEvent = "deactivate"
)

var transitions = map[SessionState]map[DeviceEvent]SessionState{
	StateUnregistered: {
		EventRegister: StateAnonymous,
	},
	StateAnonymous: {
		EventRegister:   StateAnonymous,
		EventAssociate:  StateActive,
		EventDeactivate: StateInactive,
	},
	StateActive: {
		EventRegister:   StateActive,
		EventAssociate:  StateActive,
		EventDeactivate: StateInactive,
	},
	StateInactive: {
		EventRegister:   StateInactive,
		EventAssociate:  StateActive,
		EventDeactivate: StateInactive,
	},
}

// NextState returns the state reached by applying ev to from, or an error when the
// transition is not allowed.
func NextState(from SessionState, ev DeviceEvent) (SessionState, error) {
	if from == "" {
		from = StateUnregistered
	}
	next, ok := transitions[from][ev]
	if !ok {
		return from, fmt.Errorf("device transition %q not allowed from state %q", ev, from)
	}
	return next, nil
}

// DeviceToken is a registered device's current push token plus its session and
// association state.
type DeviceToken struct {
	DeviceID   string       `json:"device_id"`
	Token      string       `json:"token"`
	Platform   Platform     `json:"platform"`
	TenantID   string       `json:"tenant_id"`
	UserID     string       `json:"user_id,omitempty"`
	SessionID  string       `json:"session_id"`
	State      SessionState `json:"state"`
	LastActive time.Time    `json:"last_active"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Active is the status flag: anonymous and associated-active devices receive sends,
// inactive (logged out) devices do not.
func (d *DeviceToken) Active() bool {
	return d.State == StateAnonymous || d.State == StateActive
}

// Clone returns a copy of d, or nil.
func (d *DeviceToken) Clone() *DeviceToken {
	if d == nil {
		return nil
	}
	out := *d
	return &out
}

// KeepImmutable copies the write-once fields of current onto next. Stores call it on
// every update so a session id is never replaced once assigned.
func KeepImmutable(current, next *DeviceToken) {
	if current == nil || next == nil {
		return
	}
	next.DeviceID = current.DeviceID
	next.CreatedAt = current.CreatedAt
	if current.SessionID != "" {
		next.SessionID = current.SessionID
	}
	if next.UserID == "" {
		next.UserID = current.UserID
	}
}

// Registration is the input of a device registration.
type Registration struct {
	DeviceID string   `json:"device_id" validate:"required"`
	Token    string   `json:"token" validate:"required"`
	Platform Platform `json:"platform" validate:"required"`
	TenantID string   `json:"tenant_id" validate:"required"`
}

// DeviceFilter narrows a device query. Empty fields do not filter.
type DeviceFilter struct {
	TenantID   string
	UserID     string
	Platform   Platform
	ActiveOnly bool
}

// Matches reports whether d satisfies f.
func (f DeviceFilter) Matches(d *DeviceToken) bool {
	if f.TenantID != "" && d.TenantID != f.TenantID {
		return false
	}
	if f.UserID != "" && d.UserID != f.UserID {
		return false
	}
	if f.Platform != "" && d.Platform != f.Platform {
		return false
	}
	if f.ActiveOnly && !d.Active() {
		return false
	}
	return true
}
