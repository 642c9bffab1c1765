// Package push contains the public domain model and contracts of the tenant push service:
// tenants and their platform credentials, device tokens, notification requests and dispatch reports.
package push

import "strings"

// Platform is a push platform kind. The set is closed: ios, android, huawei.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformHuawei  Platform = "huawei"
)

// Platforms lists every supported platform kind.
var Platforms = []Platform{PlatformIOS, PlatformAndroid, PlatformHuawei}

// Valid reports whether p is one of the supported platform kinds.
func (p Platform) Valid() bool {
	switch p {
	case PlatformIOS, PlatformAndroid, PlatformHuawei:
		return true
	}
	return false
}

// ParsePlatform normalizes s and returns an UnsupportedPlatformError for anything
// outside the supported set.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", &UnsupportedPlatformError{Platform: s}
	}
	return p, nil
}
