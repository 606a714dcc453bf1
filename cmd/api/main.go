package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/envioex/backend-envioex/internal/analytics"
	"github.com/envioex/backend-envioex/internal/audit"
	"github.com/envioex/backend-envioex/internal/auth"
	"github.com/envioex/backend-envioex/internal/common"
	"github.com/envioex/backend-envioex/internal/config"
	"github.com/envioex/backend-envioex/internal/db"
	"github.com/envioex/backend-envioex/internal/delivery"
	"github.com/envioex/backend-envioex/internal/events"
	"github.com/envioex/backend-envioex/internal/expense"
	"github.com/envioex/backend-envioex/internal/health"
	"github.com/envioex/backend-envioex/internal/invoice"
	"github.com/envioex/backend-envioex/internal/notify"
	"github.com/envioex/backend-envioex/internal/obs"
	"github.com/envioex/backend-envioex/internal/order"
	"github.com/envioex/backend-envioex/internal/product"
	"github.com/envioex/backend-envioex/internal/queue"
	"github.com/envioex/backend-envioex/internal/ratelimit"
	"github.com/envioex/backend-envioex/internal/resilience"
	"github.com/envioex/backend-envioex/internal/security"
	"github.com/envioex/backend-envioex/internal/settings"
	"github.com/envioex/backend-envioex/internal/shop"
	"github.com/envioex/backend-envioex/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(envOrDefault("OBS_LOG_FORMAT", "json"), envOrDefault("OBS_LOG_LEVEL", "info")).
		With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "envioex")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled, stopTracing := setupTracing(cfg.AppEnv, logger)
	defer stopTracing()

	if envBool("DB_AUTO_MIGRATE", true) {
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	mailer := common.NopEmailSender{}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool := openPostgres(ctx, cfg.DatabaseURL, logger)
	defer pool.Close()

	redisClient := openRedis(ctx, cfg.RedisURL, metricsEnabled, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	eventStore := events.NewStore(pool)
	taskQueue := queue.Enqueuer{
		R:           redisClient,
		Prefix:      cfg.QueueRedisPrefix,
		DedupTTL:    cfg.IdempotencyTTL,
		MaxAttempts: cfg.WebhookDefaultMaxAttempts,
	}

	notifyStore := notify.NewStore(pool)
	dispatcher := &notify.Dispatcher{
		Store:              notifyStore,
		Events:             eventStore,
		Client:             notify.HttpClient(int(cfg.WebhookRequestTimeout/time.Millisecond), cfg.WebhookAllowInsecureTLS),
		Breaker:            resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("webhook"),
		Queue:              taskQueue,
		BackoffBaseSec:     cfg.WebhookBackoffBaseSec,
		DefaultMaxAttempts: cfg.WebhookDefaultMaxAttempts,
		Enabled:            cfg.WebhookDeliveryEnabled,
		Replay:             notify.RedisReplayProtector{Client: redisClient},
		ReplayTTL:          cfg.WebhookReplayTTL,
	}
	emailNotifier := notify.EmailNotifier{
		Mail:         mailer,
		Enabled:      cfg.NotifyEmailEnabled,
		From:         cfg.NotifyEmailFrom,
		TopicToggles: cfg.NotifyEmailTopics,
	}
	bus := &events.Bus{
		Store:     eventStore,
		Scheduler: dispatcher,
		Notifiers: []events.Notifier{emailNotifier},
	}

	authStore := auth.NewStore(pool)
	authService, err := auth.NewService(auth.Config{
		Store:           authStore,
		Secret:          cfg.JWTSecret,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		ResetTokenTTL:   cfg.PasswordResetTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	authHandler := &auth.Handler{
		Service:               authService,
		Mailer:                mailer,
		PublicBaseURL:         cfg.PublicBaseURL,
		RefreshCookieName:     cfg.RefreshCookieName,
		RefreshCookieDomain:   cfg.RefreshCookieDomain,
		RefreshCookieSecure:   cfg.RefreshCookieSecure,
		RefreshCookieSameSite: cfg.RefreshCookieSameSite,
	}
	authMiddleware := auth.Middleware{Service: authService}

	addressHandler := &user.Handler{Service: user.NewService(user.NewStore(pool))}

	settingsService := &settings.Service{
		Store:  settings.NewStore(pool),
		Cache:  settings.NewCache(redisClient, cfg.SettingsCacheTTL),
		Events: bus,
		Log:    logger,
		Defaults: settings.Settings{
			ExchangeRate: cfg.ExchangeRateDefault,
			CostPerPound: cfg.CostPerPound,
		},
	}
	settingsHandler := &settings.Handler{Svc: settingsService}

	shopHandler := &shop.Handler{Store: shop.NewStore(pool)}

	productStore := product.NewStore(pool)
	productService := &product.Service{
		Store:          productStore,
		Settings:       settingsService,
		BaseTaxDefault: cfg.BaseTaxEnabled,
	}
	productHandler := &product.Handler{Svc: productService}

	orderStore := order.NewStore(pool)
	orderService := &order.Service{
		Store:             orderStore,
		Products:          productStore,
		Mail:              mailer,
		NotifyOnPurchased: cfg.NotifyOnPurchased,
		NotifyOnDelivered: cfg.NotifyOnDelivered,
		Events:            bus,
	}
	orderHandler := &order.Handler{Svc: orderService}

	deliveryService := &delivery.Service{
		Store:             delivery.NewStore(pool),
		Orders:            orderStore,
		Mail:              mailer,
		NotifyOnDelivered: cfg.NotifyOnDelivered,
		Events:            bus,
	}
	deliveryHandler := &delivery.Handler{Svc: deliveryService}
	deliveryWebhook := delivery.Webhook{Svc: deliveryService, Replay: redisClient, ReplayTTL: cfg.DeliveryTrackReplayTTL}

	invoiceService := &invoice.Service{Store: invoice.NewStore(pool), Events: bus}
	invoiceHandler := &invoice.Handler{Svc: invoiceService, Validate: validator.New()}

	expenseHandler := &expense.Handler{Store: expense.NewStore(pool)}

	analyticsService := &analytics.Service{
		Q:            analytics.NewQuerier(pool),
		R:            redisClient,
		TTL:          cfg.AnalyticsCacheTTL,
		DefaultRange: cfg.AnalyticsDefaultRange,
	}
	analyticsHandler := &analytics.Handler{Svc: analyticsService}

	notifyAdmin := &notify.AdminHandler{Store: notifyStore, Disp: dispatcher}
	queueAdmin := &queue.AdminHandler{
		Store:             queue.NewStore(pool),
		Queue:             taskQueue,
		Logger:            logger,
		VisibilityTimeout: cfg.QueueVisibilityTimeout,
	}

	auditService := &audit.Service{
		Store:        audit.NewStore(pool),
		Enabled:      cfg.AuditEnabled,
		SamplingRate: cfg.AuditSamplingRate,
	}
	auditRecorder := audit.HTTPRecorder{
		Service: auditService,
		OnError: func(err error) { logger.Error().Err(err).Msg("record audit log") },
	}
	auditHandler := audit.Handler{Store: auditService.Store}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	authLimiter := newAuthLimiter(redisClient, logger)

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		obs.RoutePatternMiddleware,
	)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(
		obs.RequestLogger{Logger: logger}.Middleware,
		security.Headers{Enable: cfg.SecurityHeadersEnabled}.Middleware,
		security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware,
	)
	if cfg.RateLimitEnabled {
		r.Use(ratelimit.Handler{
			Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "rl"},
			Config: ratelimit.Config{
				Key:    common.ClientIP,
				Window: cfg.RateLimitWindow,
				Max:    cfg.RateLimitMax,
			},
			OnError: func(err error) { logger.Error().Err(err).Msg("rate limit check") },
		}.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", true) {
		mux := protectPprof(newPprofMux(),
			envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", ""),
			envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", ""))
		r.Mount("/debug/pprof", mux)
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/auth", func(a chi.Router) {
			a.Use(authLimiter.Handler)
			a.Post("/register", authHandler.Register)
			a.Post("/login", authHandler.Login)

			// Refresh and logout ride on the refresh cookie, so they carry
			// double-submit CSRF protection.
			a.Group(func(cookieAuthed chi.Router) {
				cookieAuthed.Use(security.CSRF{}.Middleware)
				cookieAuthed.Post("/refresh", authHandler.Refresh)
				cookieAuthed.Post("/logout", authHandler.Logout)
			})
			a.Post("/password/forgot", authHandler.Forgot)
			a.Post("/password/reset", authHandler.Reset)

			a.Group(func(protected chi.Router) {
				protected.Use(authMiddleware.RequireAuth)
				protected.Get("/me", authHandler.Me)
			})
		})

		v.Route("/users/me/addresses", func(a chi.Router) {
			a.Use(authMiddleware.RequireAuth)
			a.Get("/", addressHandler.List)
			a.Post("/", addressHandler.Create)
			a.Route("/{addressID}", func(child chi.Router) {
				child.Patch("/", addressHandler.Update)
				child.Delete("/", addressHandler.Delete)
			})
		})

		v.Post("/webhooks/delivery/{courier}", deliveryWebhook.Handle)

		v.Group(func(authR chi.Router) {
			authR.Use(authMiddleware.RequireAuth)

			authR.Route("/shops", func(s chi.Router) {
				s.Get("/", shopHandler.List)
				s.Get("/tax-preview", shopHandler.TaxPreview)
				s.Post("/", shopHandler.Create)
				s.Route("/{id}", func(child chi.Router) {
					child.Get("/", shopHandler.Get)
					child.Put("/", shopHandler.Update)
					child.Delete("/", shopHandler.Delete)
				})
			})

			authR.Route("/products", func(p chi.Router) {
				p.Get("/", productHandler.List)
				p.Post("/quote", productHandler.Quote)
				p.With(idem.Middleware).Post("/", productHandler.Create)
				p.Route("/{id}", func(child chi.Router) {
					child.Get("/", productHandler.Get)
					child.Put("/", productHandler.Update)
					child.Delete("/", productHandler.Delete)
				})
			})

			authR.Route("/orders", func(o chi.Router) {
				o.Get("/", orderHandler.List)
				o.With(idem.Middleware).Post("/", orderHandler.Create)
				o.Route("/{id}", func(child chi.Router) {
					child.Get("/", orderHandler.Get)
					child.Put("/", orderHandler.Update)
					child.Patch("/status", orderHandler.SetStatus)
					child.Post("/cancel", orderHandler.Cancel)
					child.Post("/delivery", deliveryHandler.Create)
					child.Get("/delivery", deliveryHandler.Get)
				})
			})

			authR.Route("/invoices", func(i chi.Router) {
				i.Get("/", invoiceHandler.List)
				i.With(idem.Middleware).Post("/", invoiceHandler.Create)
				i.Route("/{id}", func(child chi.Router) {
					child.Get("/", invoiceHandler.Get)
					child.Put("/", invoiceHandler.Update)
					child.Delete("/", invoiceHandler.Delete)
					child.Post("/tags", invoiceHandler.AddTag)
					child.Put("/tags/{tagID}", invoiceHandler.UpdateTag)
					child.Delete("/tags/{tagID}", invoiceHandler.RemoveTag)
				})
			})

			authR.Route("/expenses", func(e chi.Router) {
				e.Get("/", expenseHandler.List)
				e.Get("/summary", expenseHandler.MonthlySummary)
				e.Post("/", expenseHandler.Create)
				e.Route("/{id}", func(child chi.Router) {
					child.Get("/", expenseHandler.Get)
					child.Put("/", expenseHandler.Update)
					child.Delete("/", expenseHandler.Delete)
				})
			})

			authR.Route("/settings", func(s chi.Router) {
				s.Get("/", settingsHandler.Get)
				s.With(auditRecorder.Middleware(audit.HTTPConfig{ResourceType: "settings"})).Put("/", settingsHandler.Update)
			})

			authR.Route("/analytics", func(an chi.Router) {
				an.Get("/invoiced", analyticsHandler.Invoiced)
				an.Get("/orders-by-status", analyticsHandler.OrdersByStatus)
				an.Get("/top-shops", analyticsHandler.TopShops)
				an.Get("/overview", analyticsHandler.Overview)
			})
		})

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(authMiddleware.RequireAuth)
			admin.Use(requireRole(authStore, "admin"))
			admin.Use(auditRecorder.Middleware(audit.HTTPConfig{}))
			admin.Post("/webhooks", notifyAdmin.CreateEndpoint)
			admin.Put("/webhooks/{id}", notifyAdmin.UpdateEndpoint)
			admin.Get("/webhooks", notifyAdmin.ListEndpoints)
			admin.Delete("/webhooks/{id}", notifyAdmin.DeleteEndpoint)
			admin.Get("/webhook-deliveries", notifyAdmin.ListDeliveries)
			admin.Post("/webhook-deliveries/{id}/replay", notifyAdmin.ReplayDelivery)
			admin.Get("/queue/dlq", queueAdmin.ListDLQ)
			admin.Post("/queue/dlq/replay", queueAdmin.ReplayDLQ)
			admin.Get("/queue/stats", queueAdmin.Stats)
			admin.Get("/audit-logs", auditHandler.List)
		})
	})

	if cfg.WebhookDeliveryEnabled {
		startDispatchLoops(dispatcher, cfg.EventWorkerConcurrency, logger)
	}

	srv := &http.Server{Addr: cfg.HTTPAddr(), Handler: r}
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop

		// Fail readiness first so load balancers stop routing here, then
		// drain in-flight requests.
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

// setupTracing initialises the OTLP exporter when tracing is enabled. The
// returned cleanup flushes pending spans and is safe to call unconditionally.
func setupTracing(appEnv string, logger zerolog.Logger) (bool, func()) {
	if !envBool("OBS_ENABLE_TRACING", true) {
		return false, func() {}
	}
	shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
		ServiceName:   "envioex-api",
		Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
		Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
		SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
		Environment:   appEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
		return false, func() {}
	}
	return true, func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown tracer")
		}
	}
}

func openPostgres(ctx context.Context, url string, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "envioex-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func openRedis(ctx context.Context, url string, metricsEnabled bool, logger zerolog.Logger) *redis.Client {
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

// newAuthLimiter gives credential endpoints a tighter per-IP limit than the
// global one.
func newAuthLimiter(client *redis.Client, logger zerolog.Logger) *limiterstdlib.Middleware {
	rate, err := limiter.NewRateFromFormatted(envOrDefault("AUTH_RATE_LIMIT", "10-M"))
	if err != nil {
		logger.Fatal().Err(err).Msg("parse auth rate limit")
	}
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: "rl:auth"})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth rate limiter store")
	}
	return limiterstdlib.NewMiddleware(limiter.New(store, rate))
}

func startDispatchLoops(dispatcher *notify.Dispatcher, concurrency int, logger zerolog.Logger) {
	for range concurrency {
		go func() {
			ticker := time.NewTicker(2 * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				if err := dispatcher.WorkOnce(context.Background(), 50); err != nil {
					logger.Error().Err(err).Msg("dispatch webhook")
				}
			}
		}()
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func requireRole(store auth.Store, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			forbid := func(message string) {
				common.JSONError(w, http.StatusForbidden, "FORBIDDEN", message, nil)
			}
			if store == nil {
				common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "role validator not configured", nil)
				return
			}

			userID, ok := common.UserID(r.Context())
			if !ok {
				forbid("forbidden")
				return
			}
			uid, err := uuid.Parse(userID)
			if err != nil {
				forbid("forbidden")
				return
			}
			account, err := store.GetUserByID(r.Context(), uid)
			switch {
			case err != nil:
				forbid("forbidden")
			case !slices.Contains(account.Roles, role):
				forbid("insufficient permissions")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if trimmed := strings.TrimSpace(os.Getenv(key)); trimmed != "" {
		return trimmed
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	switch strings.ToLower(envOrDefault(key, "")) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envFloat(key string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(envOrDefault(key, ""), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt(key string, fallback int) int {
	return common.AtoiDefault(envOrDefault(key, ""), fallback)
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, profile := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+profile, pprof.Handler(profile))
	}
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	matches := func(got, want string) bool {
		return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || !matches(u, user) || !matches(p, pass) {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
