// Package pipeline feeds notification requests from a message stream into the
// dispatch engine.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

// NotificationRequestTransformer is a dataflow Transformer that unmarshals a raw
// message payload into a push.NotificationRequest. Field validation is left to the
// dispatch engine.
func NotificationRequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*push.NotificationRequest, bool, error) {
	var req push.NotificationRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		// skip=true lets the StreamingService handle the Nack/DLQ logic.
		return nil, true, fmt.Errorf("failed to unmarshal notification request from message %s: %w", msg.ID, err)
	}
	if req.Mode == "" {
		return nil, true, fmt.Errorf("notification request in message %s has no mode", msg.ID)
	}
	return &req, false, nil
}
