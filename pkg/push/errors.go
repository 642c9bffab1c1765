package push

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError reports a missing or malformed input field. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an absent tenant, platform config, credential or device.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// UnsupportedPlatformError reports a platform kind outside ios/android/huawei.
type UnsupportedPlatformError struct {
	Platform string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform %q", e.Platform)
}

// ProviderError is an adapter-level failure. StatusCode is the provider's HTTP status
// when one was received.
type ProviderError struct {
	Platform   Platform
	Reason     string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider error (status %d): %s", e.Platform, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("%s provider error: %s", e.Platform, e.Reason)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// TimeoutError reports a recipient whose send exceeded its budget.
type TimeoutError struct {
	Platform Platform
	Token    string
	After    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s send timed out after %s", e.Platform, e.After)
}

// DispatchFailedError is returned by fan-out sends when no recipient succeeded.
// The full per-recipient report is attached.
type DispatchFailedError struct {
	Report *Report
}

func (e *DispatchFailedError) Error() string {
	return fmt.Sprintf("dispatch %s failed for all %d recipients", e.Report.ID, e.Report.Total)
}

// Error kinds as reported in outcomes and API responses.
const (
	KindValidation          = "validation"
	KindNotFound            = "not_found"
	KindUnsupportedPlatform = "unsupported_platform"
	KindProvider            = "provider"
	KindTimeout             = "timeout"
	KindDispatchFailed      = "dispatch_failed"
	KindInternal            = "internal"
)

// Kind classifies err into one of the error kinds.
func Kind(err error) string {
	var (
		validation  *ValidationError
		notFound    *NotFoundError
		unsupported *UnsupportedPlatformError
		provider    *ProviderError
		timeout     *TimeoutError
		failed      *DispatchFailedError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &unsupported):
		return KindUnsupportedPlatform
	case errors.As(err, &timeout):
		return KindTimeout
	case errors.As(err, &provider):
		return KindProvider
	case errors.As(err, &failed):
		return KindDispatchFailed
	}
	return KindInternal
}
