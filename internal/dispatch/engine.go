// Package dispatch implements the fan-out of notifications to provider adapters.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tinywideclouds/go-tenant-push-service/internal/credentials"
	pubdispatch "github.com/tinywideclouds/go-tenant-push-service/pkg/dispatch"
	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

const (
	DefaultWorkers          = 16
	DefaultRecipientTimeout = 10 * time.Second
)

// Config bounds the fan-out.
type Config struct {
	// Workers is the maximum number of concurrent provider sends per dispatch.
	Workers int
	// RecipientTimeout is the budget of a single provider send.
	RecipientTimeout time.Duration
}

// Engine orchestrates single-token, by-user and bulk sends.
type Engine struct {
	resolver   credentials.Source
	recipients pubdispatch.RecipientFinder
	adapters   *Adapters
	cfg        Config
	logger     *slog.Logger
	newID      func() string
}

var _ pubdispatch.Dispatcher = (*Engine)(nil)

func NewEngine(
	resolver credentials.Source,
	recipients pubdispatch.RecipientFinder,
	adapters *Adapters,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.RecipientTimeout <= 0 {
		cfg.RecipientTimeout = DefaultRecipientTimeout
	}
	return &Engine{
		resolver:   resolver,
		recipients: recipients,
		adapters:   adapters,
		cfg:        cfg,
		logger:     logger.With("component", "DispatchEngine"),
		newID:      uuid.NewString,
	}
}

// Dispatch routes req by its targeting mode.
func (e *Engine) Dispatch(ctx context.Context, req *push.NotificationRequest) (*push.Report, error) {
	switch req.Mode {
	case push.ModeToken:
		return e.SendToToken(ctx, req)
	case push.ModeUser:
		return e.SendToUser(ctx, req)
	case push.ModeBulk:
		return e.SendBulk(ctx, req)
	}
	return nil, &push.ValidationError{Field: "mode", Reason: "must be one of [token user bulk]"}
}

// SendToToken sends to exactly one push token. Every error propagates to the caller.
// The platform is checked before any lookup, so an unsupported platform touches
// neither the registry nor an adapter.
func (e *Engine) SendToToken(ctx context.Context, req *push.NotificationRequest) (*push.Report, error) {
	req.Mode = push.ModeToken
	if err := push.Validate(req); err != nil {
		return nil, err
	}
	platform, err := push.ParsePlatform(string(req.Platform))
	if err != nil {
		return nil, err
	}
	adapter, err := e.adapters.For(platform)
	if err != nil {
		return nil, err
	}

	budget, cancel := context.WithTimeout(ctx, e.cfg.RecipientTimeout)
	defer cancel()

	creds, err := e.resolver.Resolve(budget, req.TenantID, platform, req.BundleID)
	if err != nil {
		if timedOut(ctx, budget) {
			return nil, e.timeoutError(platform, req.Token)
		}
		return nil, err
	}

	id := e.newID()
	result, err := e.send(ctx, budget, adapter, *creds, req.Token, req.Payload())
	if err != nil {
		e.logger.Warn("Token send failed", "dispatch_id", id, "tenant_id", req.TenantID, "platform", platform, "err", err)
		return nil, err
	}

	report := push.NewReport(id, push.ModeToken, req.TenantID, []push.Outcome{{
		Platform: platform,
		Token:    req.Token,
		Success:  true,
		Result:   result,
	}})
	e.logSummary(report)
	return report, nil
}

// SendToUser sends to every active device of req.UserID, optionally filtered by platform.
func (e *Engine) SendToUser(ctx context.Context, req *push.NotificationRequest) (*push.Report, error) {
	req.Mode = push.ModeUser
	if err := push.Validate(req); err != nil {
		return nil, err
	}
	platform, err := optionalPlatform(req.Platform)
	if err != nil {
		return nil, err
	}

	devices, err := e.recipients.FindActiveByUser(ctx, req.TenantID, req.UserID, platform)
	if err != nil {
		return nil, fmt.Errorf("failed to find devices of user %s: %w", req.UserID, err)
	}
	if len(devices) == 0 {
		return nil, &push.NotFoundError{Resource: "active devices for user", ID: req.UserID}
	}
	return e.fanOut(ctx, req, devices)
}

// SendBulk sends to every active device of the tenant, optionally filtered by platform.
func (e *Engine) SendBulk(ctx context.Context, req *push.NotificationRequest) (*push.Report, error) {
	req.Mode = push.ModeBulk
	if err := push.Validate(req); err != nil {
		return nil, err
	}
	platform, err := optionalPlatform(req.Platform)
	if err != nil {
		return nil, err
	}

	devices, err := e.recipients.FindActiveByTenant(ctx, req.TenantID, platform)
	if err != nil {
		return nil, fmt.Errorf("failed to find devices of tenant %s: %w", req.TenantID, err)
	}
	if len(devices) == 0 {
		return nil, &push.NotFoundError{Resource: "active devices for tenant", ID: req.TenantID}
	}
	return e.fanOut(ctx, req, devices)
}

// fanOut delivers to every recipient on a bounded group. Each worker writes only its
// own outcome slot, so the slice needs no lock.
func (e *Engine) fanOut(ctx context.Context, req *push.NotificationRequest, devices []push.DeviceToken) (*push.Report, error) {
	id := e.newID()
	memo := credentials.NewMemo(e.resolver)
	payload := req.Payload()
	outcomes := make([]push.Outcome, len(devices))

	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for i, device := range devices {
		g.Go(func() error {
			outcomes[i] = e.deliver(ctx, memo, req, device, payload)
			if !outcomes[i].Success {
				e.logger.Warn("Recipient send failed",
					"dispatch_id", id,
					"platform", device.Platform,
					"device_id", device.DeviceID,
					"reason", outcomes[i].Error,
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := push.NewReport(id, req.Mode, req.TenantID, outcomes)
	e.logSummary(report)
	if report.Succeeded == 0 {
		return report, &push.DispatchFailedError{Report: report}
	}
	return report, nil
}

// deliver never returns an error: every failure becomes a failed outcome.
func (e *Engine) deliver(ctx context.Context, memo *credentials.Memo, req *push.NotificationRequest, device push.DeviceToken, payload push.Payload) push.Outcome {
	outcome := push.Outcome{
		DeviceID: device.DeviceID,
		Platform: device.Platform,
		Token:    device.Token,
	}
	fail := func(err error) push.Outcome {
		outcome.Error = err.Error()
		outcome.ErrorKind = push.Kind(err)
		return outcome
	}

	adapter, err := e.adapters.For(device.Platform)
	if err != nil {
		return fail(err)
	}

	// One budget covers the credential lookup and the provider send.
	budget, cancel := context.WithTimeout(ctx, e.cfg.RecipientTimeout)
	defer cancel()

	creds, err := memo.Resolve(budget, req.TenantID, device.Platform, req.BundleID)
	if err != nil {
		if timedOut(ctx, budget) {
			return fail(e.timeoutError(device.Platform, device.Token))
		}
		return fail(err)
	}
	result, err := e.send(ctx, budget, adapter, *creds, device.Token, payload)
	if err != nil {
		return fail(err)
	}

	outcome.Success = true
	outcome.Result = result
	return outcome
}

type sendResult struct {
	result *push.ProviderResult
	err    error
}

// send runs one adapter call under the recipient budget. A slow provider is
// abandoned when the budget expires; its goroutine exits once the adapter returns.
func (e *Engine) send(ctx, budget context.Context, adapter push.ProviderAdapter, creds push.CredentialBundle, token string, payload push.Payload) (*push.ProviderResult, error) {
	done := make(chan sendResult, 1)
	go func() {
		result, err := adapter.Send(budget, creds, token, payload)
		done <- sendResult{result: result, err: err}
	}()

	select {
	case r := <-done:
		if r.err == nil {
			if r.result == nil {
				r.result = &push.ProviderResult{}
			}
			return r.result, nil
		}
		if errors.Is(r.err, context.DeadlineExceeded) && timedOut(ctx, budget) {
			return nil, e.timeoutError(adapter.Platform(), token)
		}
		if push.Kind(r.err) == push.KindInternal {
			return nil, &push.ProviderError{Platform: adapter.Platform(), Reason: r.err.Error(), Err: r.err}
		}
		return nil, r.err
	case <-budget.Done():
		if ctx.Err() != nil {
			return nil, fmt.Errorf("send aborted: %w", ctx.Err())
		}
		return nil, e.timeoutError(adapter.Platform(), token)
	}
}

// timedOut reports whether budget expired on its own rather than through ctx.
func timedOut(ctx, budget context.Context) bool {
	return budget.Err() != nil && ctx.Err() == nil
}

func (e *Engine) timeoutError(platform push.Platform, token string) *push.TimeoutError {
	return &push.TimeoutError{Platform: platform, Token: token, After: e.cfg.RecipientTimeout}
}

func (e *Engine) logSummary(report *push.Report) {
	e.logger.Info("Dispatch complete",
		"dispatch_id", report.ID,
		"mode", report.Mode,
		"tenant_id", report.TenantID,
		"total", report.Total,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
	)
}

func optionalPlatform(p push.Platform) (push.Platform, error) {
	if p == "" {
		return "", nil
	}
	return push.ParsePlatform(string(p))
}
