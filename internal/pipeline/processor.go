package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-tenant-push-service/pkg/dispatch"
	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

// NewProcessor creates the stream processor that hands each request to the dispatcher.
// Errors a redelivery cannot fix are acknowledged; anything else is returned so the
// message is retried.
func NewProcessor(
	dispatcher dispatch.Dispatcher,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[push.NotificationRequest] {

	return func(ctx context.Context, original messagepipeline.Message, request *push.NotificationRequest) error {
		procLogger := logger.With(
			"tenant_id", request.TenantID,
			"mode", request.Mode,
			"pubsub_msg_id", original.ID,
		)

		report, err := dispatcher.Dispatch(ctx, request)
		if err != nil {
			switch push.Kind(err) {
			case push.KindValidation, push.KindNotFound, push.KindUnsupportedPlatform, push.KindProvider, push.KindTimeout:
				procLogger.Warn("Dropping notification", "kind", push.Kind(err), "err", err)
				return nil
			case push.KindDispatchFailed:
				procLogger.Warn("Every recipient failed", "dispatch_id", report.ID, "total", report.Total)
				return nil
			}
			procLogger.Error("Dispatch failed", "err", err)
			return err // Retryable
		}

		procLogger.Info("Dispatched", "dispatch_id", report.ID, "succeeded", report.Succeeded, "failed", report.Failed)
		return nil
	}
}
