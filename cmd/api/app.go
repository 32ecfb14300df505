package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/msgdesk/hub/internal/api/handlers"
	"github.com/msgdesk/hub/internal/api/middleware"
	"github.com/msgdesk/hub/internal/command"
	"github.com/msgdesk/hub/internal/config"
	"github.com/msgdesk/hub/internal/jobs"
	"github.com/msgdesk/hub/internal/loaders"
	"github.com/msgdesk/hub/internal/models"
	"github.com/msgdesk/hub/internal/observability"
	"github.com/msgdesk/hub/internal/repository"
	"github.com/msgdesk/hub/internal/service"
	"github.com/msgdesk/hub/internal/workers"
	"github.com/msgdesk/hub/pkg/cache"
	"github.com/msgdesk/hub/pkg/dataloader"
	"github.com/msgdesk/hub/pkg/sms"
	"github.com/msgdesk/hub/pkg/whatsapp"
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg            *config.Config
	db             *pgxpool.Pool
	server         *http.Server
	river          *river.Client[pgx.Tx]
	message        *service.MessagePublisherManager
	poller         *workers.SchedulePoller
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	metrics        *observability.Metrics
}

const (
	riverQueueDepthInterval = 15 * time.Second
	scheduledSendMaxWorkers = 10

	webhookCacheSize = 256
	webhookCacheTTL  = time.Minute

	enqueueRetries        = 3
	enqueueInitialBackoff = 100 * time.Millisecond
	enqueueMaxBackoff     = 2 * time.Second
)

// setupMetrics creates meter provider and hub metrics when metrics are enabled. The returned handler is
// non-nil only for the Prometheus exporter. A nil provider means metrics are disabled.
func setupMetrics(cfg *config.Config) (*sdkmetric.MeterProvider, http.Handler, *observability.Metrics, error) {
	mp, metricsHandler, err := observability.NewMeterProvider(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create meter provider: %w", err)
	}

	if mp == nil {
		return nil, nil, nil, nil
	}

	metrics, err := observability.NewMetrics(mp.Meter("hub"))
	if err != nil {
		err2 := observability.ShutdownMeterProvider(context.Background(), mp)
		if err2 != nil {
			slog.Error("shutdown meter provider after metrics error", "error", err2)
		}

		return nil, nil, nil, fmt.Errorf("create metrics: %w", err)
	}

	return mp, metricsHandler, metrics, nil
}

// providerClients holds the outbound provider clients. Unconfigured providers stay nil so the
// services reject the corresponding sends instead of calling an empty endpoint.
type providerClients struct {
	sms            service.SMSSender
	whatsapp       service.WhatsAppSender
	catalog        service.TemplateCatalog
	templateSender command.TemplateSender
}

func newProviderClients(cfg *config.Config) providerClients {
	var clients providerClients

	if cfg.SMSEnabled() {
		clients.sms = sms.NewClient(sms.ClientOptions{
			BaseURL:  cfg.SMSGatewayURL,
			APIKey:   cfg.SMSGatewayAPIKey,
			SenderID: cfg.SMSSenderID,
		})
	} else {
		slog.Warn("SMS disabled (SMS_GATEWAY_URL empty or unset)")
	}

	if cfg.WhatsAppEnabled() {
		wa := whatsapp.NewClient(whatsapp.ClientOptions{
			BaseURL:           cfg.WhatsAppAPIBaseURL,
			AccessToken:       cfg.WhatsAppAccessToken,
			PhoneNumberID:     cfg.WhatsAppPhoneNumberID,
			BusinessAccountID: cfg.WhatsAppBusinessAccountID,
		})
		clients.whatsapp = wa
		clients.catalog = wa
		clients.templateSender = service.NewWhatsAppTemplateSender(wa)
	} else {
		slog.Warn("WhatsApp disabled (WHATSAPP_PHONE_NUMBER_ID or WHATSAPP_ACCESS_TOKEN unset)")
	}

	return clients
}

// apiHandlers groups the HTTP handlers mounted by newRouter.
type apiHandlers struct {
	health    *handlers.HealthHandler
	contacts  *handlers.ContactsHandler
	groups    *handlers.GroupsHandler
	templates *handlers.TemplatesHandler
	messages  *handlers.MessagesHandler
	bulkSends *handlers.BulkSendsHandler
	scheduled *handlers.ScheduledMessagesHandler
	dashboard *handlers.DashboardHandler
	webhooks  *handlers.WebhooksHandler
}

// NewApp builds and wires all components. It does not start the HTTP server, River or the poller;
// call Run to start and block until shutdown or failure.
func NewApp(cfg *config.Config, db *pgxpool.Pool) (*App, error) {
	var (
		err            error
		meterProvider  *sdkmetric.MeterProvider
		metricsHandler http.Handler
		metrics        *observability.Metrics
	)

	if cfg.OtelMetricsExporter == "" {
		slog.Warn("metrics not enabled (OTEL_METRICS_EXPORTER empty or unset)")
	} else {
		meterProvider, metricsHandler, metrics, err = setupMetrics(cfg)
		if err != nil {
			return nil, err
		}
	}

	var tracerProvider *sdktrace.TracerProvider

	if cfg.OtelTracesExporter == "" {
		slog.Warn("tracing not enabled (OTEL_TRACES_EXPORTER empty or unset)")
	} else {
		tracerProvider, err = observability.NewTracerProvider(cfg)
		if err != nil {
			if meterProvider != nil {
				if err2 := observability.ShutdownMeterProvider(context.Background(), meterProvider); err2 != nil {
					slog.Error("shutdown meter provider after tracer provider error", "error", err2)
				}
			}

			return nil, fmt.Errorf("create tracer provider: %w", err)
		}
	}

	// Correlation IDs are logged even with tracing off.
	defaultHandler := slog.Default().Handler()
	slog.SetDefault(slog.New(observability.NewTraceContextHandler(defaultHandler)))

	if tracerProvider != nil {
		otel.SetTracerProvider(tracerProvider)
	}

	if meterProvider != nil {
		otel.SetMeterProvider(meterProvider)
	}

	messageManager := service.NewMessagePublisherManager(
		cfg.MessagePublisherBufferSize, cfg.MessagePublisherPerEventTimeout, metrics.EventMetrics(),
	)

	app, err := wireApp(cfg, db, messageManager, metrics, metricsHandler, meterProvider, tracerProvider)
	if err != nil {
		messageManager.Shutdown()

		if err2 := shutdownObservability(context.Background(), tracerProvider, meterProvider); err2 != nil {
			slog.Error("shutdown observability after wiring error", "error", err2)
		}

		return nil, err
	}

	return app, nil
}

func wireApp(
	cfg *config.Config,
	db *pgxpool.Pool,
	messageManager *service.MessagePublisherManager,
	metrics *observability.Metrics,
	metricsHandler http.Handler,
	meterProvider *sdkmetric.MeterProvider,
	tracerProvider *sdktrace.TracerProvider,
) (*App, error) {
	messagingMetrics := metrics.MessagingMetrics()
	webhookMetrics := metrics.WebhookMetrics()
	cacheMetrics := metrics.CacheMetrics()

	contactsRepo := repository.NewContactsRepository(db)
	groupsRepo := repository.NewGroupsRepository(db)
	messagesRepo := repository.NewMessagesRepository(db)
	templatesRepo := repository.NewTemplatesRepository(db)
	bulkSendsRepo := repository.NewBulkSendsRepository(db)
	scheduledRepo := repository.NewScheduledMessagesRepository(db)
	dashboardRepo := repository.NewDashboardRepository(db)

	webhookListCache, err := cache.NewLoaderCache[string, []models.Webhook](
		webhookCacheSize, func(s string) string { return s }, cache.WithTTL(webhookCacheTTL))
	if err != nil {
		return nil, fmt.Errorf("create webhook list cache: %w", err)
	}

	webhookByIDCache, err := cache.NewLoaderCache[uuid.UUID, *models.Webhook](
		webhookCacheSize, uuid.UUID.String, cache.WithTTL(webhookCacheTTL))
	if err != nil {
		return nil, fmt.Errorf("create webhook cache: %w", err)
	}

	webhooksRepo := service.NewCachingWebhooksRepository(
		repository.NewWebhooksRepository(db), webhookListCache, webhookByIDCache, cacheMetrics,
	)

	templateLookups, err := cache.NewLoaderCache[service.TemplateKey, *models.Template](
		cfg.TemplateCacheSize, service.TemplateKeyString, cache.WithTTL(cfg.TemplateCacheTTL))
	if err != nil {
		return nil, fmt.Errorf("create template cache: %w", err)
	}

	clients := newProviderClients(cfg)

	loaderFactory := loaders.NewFactory(groupsRepo, messagesRepo, loaders.DefaultHistoryLimit,
		dataloader.WithWait(cfg.DataloaderWait),
		dataloader.WithMaxBatch(cfg.DataloaderMaxBatch),
	)

	templatesService := service.NewTemplatesService(
		templatesRepo, clients.catalog, templateLookups, messageManager, cacheMetrics, messagingMetrics,
	)
	contactsService := service.NewContactsService(contactsRepo, messageManager, loaderFactory, cfg.DefaultRegion)
	groupsService := service.NewGroupsService(groupsRepo, messageManager)
	messagingService := service.NewMessagingService(
		messagesRepo,
		contactsRepo,
		templatesService,
		clients.sms,
		clients.whatsapp,
		messageManager,
		messagingMetrics,
		cfg.DefaultRegion,
	)

	defaultLimits := command.DefaultLimits()
	bulkSendService := service.NewBulkSendService(
		bulkSendsRepo,
		contactsRepo,
		templatesService,
		messagesRepo,
		clients.templateSender,
		messageManager,
		messagingMetrics,
		service.BulkSendConfig{
			Limits: command.Limits{
				MaxRecipients:    cfg.BulkSendMaxRecipients,
				MaxBatchSize:     cfg.BulkSendMaxBatchSize,
				DefaultBatchSize: cfg.BulkSendDefaultBatchSize,
				MaxDelay:         defaultLimits.MaxDelay,
			},
			DefaultDelay:       cfg.BulkSendDefaultDelay,
			RateLimit:          cfg.BulkSendRateLimit,
			DefaultRegion:      cfg.DefaultRegion,
		},
	)
	scheduledService := service.NewScheduledMessagesService(scheduledRepo, messagingService, bulkSendService, messageManager)
	dashboardService := service.NewDashboardService(dashboardRepo)
	webhooksService := service.NewWebhooksService(webhooksRepo, messageManager, cfg.WebhookMaxCount)

	webhookSender := service.NewWebhookSenderImpl(webhooksRepo, webhookMetrics)

	riverWorkers := river.NewWorkers()
	river.AddWorker(riverWorkers, workers.NewWebhookDispatchWorker(webhooksRepo, webhookSender, webhookMetrics))
	river.AddWorker(riverWorkers, workers.NewBulkSendWorker(bulkSendService))
	river.AddWorker(riverWorkers, workers.NewScheduledSendWorker(scheduledService))

	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault:  {MaxWorkers: cfg.WebhookDeliveryMaxConcurrent},
			jobs.QueueBulkSends: {MaxWorkers: cfg.BulkSendMaxConcurrent},
			jobs.QueueScheduled: {MaxWorkers: scheduledSendMaxWorkers},
		},
		Workers:      riverWorkers,
		ErrorHandler: &jobs.ErrorHandler{},
	})
	if err != nil {
		return nil, fmt.Errorf("create River client: %w", err)
	}

	enqueueBackoff := jobs.Backoff{Retries: enqueueRetries, Initial: enqueueInitialBackoff, Max: enqueueMaxBackoff}

	jobInserter := jobs.NewRiverJobInserter(riverClient, enqueueBackoff)
	bulkSendService.SetJobInserter(jobInserter)

	webhookInserter := jobs.NewRetryingInserter(riverClient, enqueueBackoff, webhookMetrics)
	webhookProvider := service.NewWebhookProvider(
		webhookInserter, webhooksRepo,
		cfg.WebhookDeliveryMaxAttempts, cfg.WebhookMaxFanOutPerEvent,
		webhookMetrics,
	)
	messageManager.RegisterProvider(webhookProvider)

	var poller *workers.SchedulePoller
	if cfg.SchedulerEnabled {
		poller = workers.NewSchedulePoller(
			scheduledRepo, jobInserter, messagingMetrics, cfg.SchedulerPollInterval, cfg.SchedulerBatchSize,
		)
	} else {
		slog.Warn("scheduled message poller disabled (SCHEDULER_ENABLED=false)")
	}

	h := apiHandlers{
		health:    handlers.NewHealthHandler(db),
		contacts:  handlers.NewContactsHandler(contactsService),
		groups:    handlers.NewGroupsHandler(groupsService, contactsService),
		templates: handlers.NewTemplatesHandler(templatesService),
		messages:  handlers.NewMessagesHandler(messagingService),
		bulkSends: handlers.NewBulkSendsHandler(bulkSendService),
		scheduled: handlers.NewScheduledMessagesHandler(scheduledService),
		dashboard: handlers.NewDashboardHandler(dashboardService),
		webhooks:  handlers.NewWebhooksHandler(webhooksService),
	}

	router := newRouter(cfg, h, loaderFactory, metricsHandler, metrics.APIMetrics())
	server := newHTTPServer(cfg, router, meterProvider, tracerProvider)

	return &App{
		cfg:            cfg,
		db:             db,
		server:         server,
		river:          riverClient,
		message:        messageManager,
		poller:         poller,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		metrics:        metrics,
	}, nil
}

// newRouter mounts the routes: /health (and /metrics for the Prometheus exporter) are public,
// everything under /v1 requires the API key.
func newRouter(
	cfg *config.Config,
	h apiHandlers,
	loaderFactory *loaders.Factory,
	metricsHandler http.Handler,
	bodyTooLarge middleware.RequestBodyTooLargeRecorder,
) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logging)

	r.Get("/health", h.health.Check)

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.APIKey))
		r.Use(middleware.MaxBody(cfg.MaxRequestBodyBytes, bodyTooLarge))
		r.Use(middleware.Loaders(loaderFactory))

		r.Route("/contacts", func(r chi.Router) {
			r.Post("/", h.contacts.Create)
			r.Get("/", h.contacts.List)
			r.Get("/{id}", h.contacts.Get)
			r.Patch("/{id}", h.contacts.Update)
			r.Delete("/{id}", h.contacts.Delete)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Post("/", h.groups.Create)
			r.Get("/", h.groups.List)
			r.Get("/{id}", h.groups.Get)
			r.Patch("/{id}", h.groups.Update)
			r.Delete("/{id}", h.groups.Delete)
			r.Get("/{id}/members", h.groups.ListMembers)
			r.Post("/{id}/members", h.groups.AddMembers)
			r.Delete("/{id}/members/{contactId}", h.groups.RemoveMember)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.templates.List)
			r.Post("/sync", h.templates.Sync)
			r.Get("/{id}", h.templates.Get)
		})

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", h.messages.List)
			r.Post("/sms", h.messages.SendSMS)
			r.Post("/template", h.messages.SendTemplate)
		})

		r.Route("/bulk-sends", func(r chi.Router) {
			r.Post("/", h.bulkSends.Create)
			r.Get("/", h.bulkSends.List)
			r.Get("/{id}", h.bulkSends.Get)
			r.Get("/{id}/results", h.bulkSends.Results)
			r.Post("/{id}/cancel", h.bulkSends.Cancel)
		})

		r.Route("/scheduled-messages", func(r chi.Router) {
			r.Post("/", h.scheduled.Create)
			r.Get("/", h.scheduled.List)
			r.Get("/{id}", h.scheduled.Get)
			r.Post("/{id}/cancel", h.scheduled.Cancel)
		})

		r.Get("/dashboard", h.dashboard.Get)

		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/", h.webhooks.Create)
			r.Get("/", h.webhooks.List)
			r.Get("/{id}", h.webhooks.Get)
			r.Patch("/{id}", h.webhooks.Update)
			r.Delete("/{id}", h.webhooks.Delete)
		})
	})

	return r
}

// newHTTPServer wraps the router. Handler chain: RequestID -> otelhttp -> router (Recoverer, Logging, ...),
// so access logs get trace_id/span_id from context.
func newHTTPServer(
	cfg *config.Config,
	router http.Handler,
	meterProvider *sdkmetric.MeterProvider,
	tracerProvider *sdktrace.TracerProvider,
) *http.Server {
	otelOpts := []otelhttp.Option{
		// Skip tracing and HTTP metrics for health checks and scrapes to reduce noise.
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}),
		otelhttp.WithSpanNameFormatter(middleware.SpanName),
	}
	if meterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(meterProvider))
	}

	if tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(tracerProvider))
	}

	handler := otelhttp.NewHandler(router, "hub-api", otelOpts...)
	handler = middleware.RequestID(handler)

	const (
		readTimeout  = 15 * time.Second
		writeTimeout = 30 * time.Second
		idleTimeout  = 60 * time.Second
	)

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Run starts the HTTP server, River and the schedule poller, then blocks until ctx is cancelled
// (e.g. signal) or a component fails. Either way it cancels the internal background context so
// River, the poller and the queue depth poller stop before Run returns. Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	riverCtx, cancelRiver := context.WithCancel(ctx)
	defer cancelRiver()

	if events := a.metrics.EventMetrics(); events != nil {
		go runRiverQueueDepthPoller(riverCtx, a.db, events)
	}

	go func() {
		if err := a.river.Start(riverCtx); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case runErr <- fmt.Errorf("river: %w", err):
			default:
			}
		}
	}()

	if a.poller != nil {
		go a.poller.Start(riverCtx)
	}

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case runErr <- fmt.Errorf("server: %w", err):
			default:
			}
		}
	}()

	select {
	case err := <-runErr:
		cancelRiver()

		return err
	case <-ctx.Done():
		cancelRiver()

		return nil
	}
}

// runRiverQueueDepthPoller periodically updates the River queue depth gauge (all queues this server works).
func runRiverQueueDepthPoller(ctx context.Context, db *pgxpool.Pool, eventMetrics observability.EventMetrics) {
	ticker := time.NewTicker(riverQueueDepthInterval)
	defer ticker.Stop()

	queues := []string{river.QueueDefault, jobs.QueueBulkSends, jobs.QueueScheduled}

	update := func() {
		var count int

		err := db.QueryRow(ctx,
			`SELECT COUNT(*) FROM river_job WHERE queue = ANY($1) AND state IN ($2, $3, $4)`,
			queues,
			rivertype.JobStateAvailable, rivertype.JobStateRetryable, rivertype.JobStateScheduled,
		).Scan(&count)
		if err != nil {
			slog.WarnContext(ctx, "river queue depth poll failed", "error", err)

			return
		}

		eventMetrics.SetRiverQueueDepth(count)
	}

	update()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

// shutdownObservability shuts down tracer and meter providers. Logs secondary errors, returns the first.
func shutdownObservability(ctx context.Context, tracer *sdktrace.TracerProvider, meter *sdkmetric.MeterProvider) error {
	var first error

	if tracer != nil {
		if err := observability.ShutdownTracerProvider(ctx, tracer); err != nil {
			first = err
		}
	}

	if meter != nil {
		if err := observability.ShutdownMeterProvider(ctx, meter); err != nil {
			if first == nil {
				first = err
			} else {
				slog.Error("shutdown meter provider", "error", err)
			}
		}
	}

	return first
}

// Shutdown stops the server, River (waiting for in-flight sends) and the message publisher, in order.
// Call after Run returns. Observability is shut down last; its error is returned only when the
// server and River shut down successfully.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		obsErr := shutdownObservability(ctx, a.tracerProvider, a.meterProvider)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			slog.Error("shutdown observability", "error", obsErr)
		}
	}()

	defer a.message.Shutdown()

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if stopErr := a.river.Stop(ctx); stopErr != nil {
			slog.Error("river stop during server shutdown", "error", stopErr)
		}

		return fmt.Errorf("server shutdown: %w", err)
	}

	if err = a.river.Stop(ctx); err != nil {
		return fmt.Errorf("river stop: %w", err)
	}

	return nil
}
