// Package pushservice assembles the push dispatch HTTP surface and the optional
// Pub/Sub ingestion pipeline into one runnable service.
package pushservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-tenant-push-service/internal/api"
	"github.com/tinywideclouds/go-tenant-push-service/internal/pipeline"
	"github.com/tinywideclouds/go-tenant-push-service/pkg/dispatch"
	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
	"github.com/tinywideclouds/go-tenant-push-service/pushservice/config"
)

// Dependencies are the domain components the service exposes.
type Dependencies struct {
	Dispatcher  dispatch.Dispatcher
	Devices     api.DeviceRegistry
	Tenants     api.TenantService
	Credentials api.CredentialResolver
}

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[push.NotificationRequest]
	logger          *slog.Logger
}

// New assembles the service. A nil consumer disables asynchronous dispatch.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	deps Dependencies,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Pipeline
	var streamingService *messagepipeline.StreamingService[push.NotificationRequest]
	if consumer != nil {
		processor := pipeline.NewProcessor(deps.Dispatcher, logger)

		var err error
		streamingService, err = messagepipeline.NewStreamingService(
			messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
			consumer,
			pipeline.NotificationRequestTransformer,
			processor,
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create streaming service: %w", err)
		}
	}

	// 3. APIs
	deviceAPI := api.NewDeviceAPI(deps.Devices, logger)
	sendAPI := api.NewSendAPI(deps.Dispatcher, logger)
	tenantAPI := api.NewTenantAPI(deps.Tenants, deps.Credentials, logger)

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	public := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(handlerFunc))
	}
	protected := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(handlerFunc)))
	}

	// Device lifecycle is called by end devices before any user is known.
	public("POST /api/v1/devices/register", deviceAPI.Register)
	public("POST /api/v1/devices/login", deviceAPI.Login)
	public("POST /api/v1/devices/logout", deviceAPI.Logout)

	protected("POST /api/v1/notifications/token", sendAPI.SendToToken)
	protected("POST /api/v1/notifications/user", sendAPI.SendToUser)
	protected("POST /api/v1/notifications/bulk", sendAPI.SendBulk)

	protected("POST /api/v1/tenants", tenantAPI.RegisterTenant)
	protected("GET /api/v1/tenants", tenantAPI.FindTenant)
	protected("GET /api/v1/tenants/{tenantID}", tenantAPI.GetTenant)
	protected("POST /api/v1/tenants/{tenantID}/platforms", tenantAPI.AddPlatformConfig)
	protected("GET /api/v1/tenants/{tenantID}/credentials", tenantAPI.ResolveCredentials)

	// Global OPTIONS for the API namespace (CORS preflight)
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	})))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	if w.pipelineService != nil {
		w.logger.Info("Core processing pipeline starting...")
		if err := w.pipelineService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start processing service: %w", err)
		}
	} else {
		w.logger.Info("No subscription configured, asynchronous dispatch disabled")
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if w.pipelineService != nil {
		if err := w.pipelineService.Stop(ctx); err != nil {
			w.logger.Error("Processing pipeline shutdown failed.", "err", err)
			finalErr = err
		}
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
