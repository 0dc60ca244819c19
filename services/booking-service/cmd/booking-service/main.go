package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/auth"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/config"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/db"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/httpx"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/kafkax"
	otelx "github.com/mariuslungu97/calendar-booking-backend-sub000/libs/otel"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/runtime"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/busysync"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/cache"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/consumer"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/handlers"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/inbox"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/jobs"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/outbox"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/payments"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/policy"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/scheduling"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/slots"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotEnv(".env")

	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	pol, err := policy.Load(config.String("BOOKING_POLICY_FILE", ""))
	if err != nil {
		logger.Error("booking policy load failed", "err", err)
		panic(err)
	}

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	redisDB, err := config.Int("REDIS_DB", 0)
	if err != nil {
		panic(err)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.String("REDIS_ADDR", "localhost:6379"),
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       redisDB,
	})
	store := cache.NewRedis(rdb, config.String("CACHE_PREFIX", "booking"))

	bookingRepo := storage.NewBookingRepository(pool)
	scheduleRepo := storage.NewScheduleRepository(pool)
	busyRepo := storage.NewBusyRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	inboxRepo := inbox.NewRepository(pool)

	schedules := scheduling.NewCachedProvider(scheduling.NewStorageProvider(scheduleRepo), store, pol.CacheTTL(), logger)
	slotService := slots.NewService(schedules, bookingRepo, busyRepo, store, pol, logger)

	payProvider := payments.Disabled()
	if key := strings.TrimSpace(config.String("STRIPE_SECRET_KEY", "")); key != "" {
		payProvider = payments.NewStripeProvider(payments.StripeConfig{
			SecretKey:  key,
			SuccessURL: config.String("CHECKOUT_SUCCESS_URL", "http://localhost:3000/booking/success"),
			CancelURL:  config.String("CHECKOUT_CANCEL_URL", "http://localhost:3000/booking/cancelled"),
		})
		logger.Info("stripe checkout enabled")
	}

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	if topic := strings.TrimSpace(config.String("KAFKA_BUSY_TOPIC", busysync.Topic)); topic != "" && brokers != "" {
		busyHandler := busysync.NewHandler(busyRepo, slotService, logger)
		busyConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "booking-service"),
			Topic:   topic,
		}, busyHandler.Handle)
		go busyConsumer.Run(ctx)
	}

	scheduler := jobs.NewScheduler(logger)
	expirer := jobs.NewExpirer(pool, bookingRepo, outboxRepo, slotService, payProvider, logger, jobs.ExpirerConfig{
		TTL:       pol.PendingPaymentTTL(),
		BatchSize: 100,
	})
	if err := scheduler.Add("expire-pending-payments", pol.ExpireCron, expirer.RunOnce); err != nil {
		logger.Error("expiry job registration failed", "err", err)
		panic(err)
	}
	retentionKeep, err := config.Duration("EVENT_RETENTION", 7*24*time.Hour)
	if err != nil {
		panic(err)
	}
	retention := jobs.NewRetention(retentionKeep, logger, map[string]jobs.Pruner{
		"inbox_events":  inboxRepo,
		"outbox_events": jobs.PrunerFunc(outboxRepo.PrunePublished),
	})
	if err := scheduler.Add("prune-event-tables", config.String("RETENTION_CRON", "@daily"), retention.RunOnce); err != nil {
		logger.Error("retention job registration failed", "err", err)
		panic(err)
	}
	go func() {
		if err := scheduler.Run(ctx); err != nil {
			logger.Error("job scheduler stopped", "err", err)
		}
	}()

	if err := startGrpcServer(ctx, logger, slotService); err != nil {
		logger.Error("grpc server failed to start", "err", err)
	}

	availabilityHandler := handlers.NewAvailabilityHandler(slotService, logger)
	bookingHandler := handlers.NewBookingHandler(bookingRepo, outboxRepo, schedules, slotService, payProvider, pol, logger)
	scheduleHandler := handlers.NewScheduleHandler(scheduleRepo, schedules, slotService, logger)
	calendarHandler := handlers.NewCalendarHandler(scheduleRepo, bookingRepo, logger)
	webhookHandler := handlers.NewWebhookHandler(bookingRepo, outboxRepo, slotService, handlers.WebhookConfig{
		Secret: config.String("STRIPE_WEBHOOK_SECRET", ""),
	}, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "redis", Check: store.Ping},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)

	public := publicRateLimit(logger, rdb)
	mux.Handle("/api/v1/public/availability", public(http.HandlerFunc(availabilityHandler.Month)))
	mux.Handle("/api/v1/public/availability/check", public(http.HandlerFunc(availabilityHandler.Check)))
	mux.Handle("/api/v1/public/book", public(http.HandlerFunc(bookingHandler.Book)))
	mux.Handle("/api/v1/public/bookings/cancel", public(http.HandlerFunc(bookingHandler.Cancel)))
	mux.Handle("/api/v1/public/bookings/reschedule", public(http.HandlerFunc(bookingHandler.Reschedule)))

	jwtSecret := config.String("JWT_SECRET", "")
	if jwtSecret == "" {
		logger.Warn("JWT_SECRET not set; owner routes will reject every request")
	}
	mux.Handle("/api/v1/schedules", auth.RequireOwner(jwtSecret, http.HandlerFunc(scheduleHandler.Serve)))
	mux.Handle("/api/v1/bookings", auth.RequireOwner(jwtSecret, http.HandlerFunc(bookingHandler.List)))
	mux.Handle("/api/v1/bookings/calendar.ics", auth.RequireOwner(jwtSecret, http.HandlerFunc(calendarHandler.Feed)))

	mux.HandleFunc("/api/v1/webhooks/stripe", webhookHandler.Stripe)

	requestTimeout, err := config.Duration("REQUEST_TIMEOUT", 10*time.Second)
	if err != nil {
		panic(err)
	}
	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.BookingAPICORS(config.List("CORS_ALLOWED_ORIGINS", ""))),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(requestTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	_ = runtime.Shutdown(logger, 10*time.Second,
		runtime.ShutdownStep{Name: "http server", Stop: srv.Shutdown},
		runtime.ShutdownStep{Name: "redis", Stop: func(context.Context) error { return rdb.Close() }},
	)
}

// publicRateLimit limits anonymous routes per client. Redis keeps the window shared across
// replicas; RATE_LIMIT_BACKEND=memory falls back to per-process token buckets.
func publicRateLimit(logger *slog.Logger, rdb *redis.Client) httpx.Middleware {
	limit, err := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	if err != nil || limit <= 0 {
		limit = 60
	}
	if strings.EqualFold(config.String("RATE_LIMIT_BACKEND", "redis"), "memory") {
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limit)
		return httpx.NewRateLimiter(limit, time.Minute).Middleware()
	}
	logger.Info("rate limiting enabled (redis)", "per_minute", limit)
	rl := httpx.NewRedisRateLimiter(rdb, limit, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
	return rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
}
