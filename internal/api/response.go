// Package api exposes the device, send and tenant operations over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

// failedDispatchResponse is the body of a dispatch in which every recipient failed.
type failedDispatchResponse struct {
	Error  string       `json:"error"`
	Kind   string       `json:"kind"`
	Report *push.Report `json:"report"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch push.Kind(err) {
	case push.KindValidation, push.KindUnsupportedPlatform:
		return http.StatusBadRequest
	case push.KindNotFound:
		return http.StatusNotFound
	case push.KindProvider, push.KindDispatchFailed:
		return http.StatusBadGateway
	case push.KindTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeError writes err with its mapped status. Internal errors are logged and their
// detail is not exposed.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var failed *push.DispatchFailedError
	if errors.As(err, &failed) {
		writeJSON(w, http.StatusBadGateway, failedDispatchResponse{
			Error:  err.Error(),
			Kind:   push.KindDispatchFailed,
			Report: failed.Report,
		})
		return
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", "err", err)
		response.WriteJSONError(w, status, "internal error")
		return
	}
	response.WriteJSONError(w, status, err.Error())
}

func decode(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return &push.ValidationError{Field: "body", Reason: "invalid json"}
	}
	return nil
}
