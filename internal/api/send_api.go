package api

import (
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-tenant-push-service/pkg/dispatch"
	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

type SendAPI struct {
	Dispatcher dispatch.Dispatcher
	Logger     *slog.Logger
}

func NewSendAPI(dispatcher dispatch.Dispatcher, logger *slog.Logger) *SendAPI {
	return &SendAPI{
		Dispatcher: dispatcher,
		Logger:     logger.With("component", "SendAPI"),
	}
}

func (api *SendAPI) SendToToken(w http.ResponseWriter, r *http.Request) {
	api.send(w, r, push.ModeToken)
}

func (api *SendAPI) SendToUser(w http.ResponseWriter, r *http.Request) {
	api.send(w, r, push.ModeUser)
}

func (api *SendAPI) SendBulk(w http.ResponseWriter, r *http.Request) {
	api.send(w, r, push.ModeBulk)
}

// send forces the route's mode onto the request body before dispatching.
func (api *SendAPI) send(w http.ResponseWriter, r *http.Request, mode push.TargetMode) {
	var req push.NotificationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, api.Logger, err)
		return
	}
	req.Mode = mode

	report, err := api.Dispatcher.Dispatch(r.Context(), &req)
	if err != nil {
		api.Logger.Warn("Send failed", "mode", mode, "tenant_id", req.TenantID, "kind", push.Kind(err), "err", err)
		writeError(w, api.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
