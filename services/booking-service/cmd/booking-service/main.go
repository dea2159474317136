package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/clinicbook/clinicbook/libs/config"
	"github.com/clinicbook/clinicbook/libs/db"
	"github.com/clinicbook/clinicbook/libs/httpx"
	"github.com/clinicbook/clinicbook/libs/kafkax"
	otelx "github.com/clinicbook/clinicbook/libs/otel"
	"github.com/clinicbook/clinicbook/libs/runtime"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/booking"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/civil"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/consumer"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/handlers"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/inbox"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/outbox"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/plans"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/schedule"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/storage"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/waitlist"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

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

	loc, err := config.Location("CLINIC_TIMEZONE", "UTC")
	if err != nil {
		logger.Error("invalid clinic timezone", "err", err)
		panic(err)
	}
	clock := civil.NewClock(loc)

	apptRepo := storage.NewAppointmentRepository(pool)
	schedRepo := schedule.NewRepository(pool)
	waitlistRepo := waitlist.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	plansRepo := plans.NewRepository(pool)

	waitlistEngine := waitlist.NewEngine(waitlistRepo, schedRepo, apptRepo, outboxRepo, clock, logger, waitlist.Config{
		OfferTTL:        config.Duration("WAITLIST_OFFER_TTL", 24*time.Hour),
		MatchTimeWindow: config.Bool("WAITLIST_MATCH_TIME_WINDOW", true),
	})
	bookingSvc := booking.NewService(apptRepo, schedRepo, waitlistEngine, outboxRepo, plans.NewEntitlementPolicy(plansRepo), clock, logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	sweeper := waitlist.NewSweeper(waitlistRepo, clock, logger, config.Duration("WAITLIST_SWEEP_INTERVAL", time.Minute))
	go sweeper.Run(ctx)

	inboxRepo := inbox.NewRepository(pool)
	entitlementsTopic := config.String("KAFKA_ENTITLEMENTS_TOPIC", "billing.entitlements.updated.v1")
	if entitlementsTopic != "" && config.String("KAFKA_BROKERS", "") != "" {
		entitlementsConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "booking-service"),
			Topic:   entitlementsTopic,
		}, func(ctx context.Context, msg kafka.Message) error {
			var payload struct {
				ProfessionalID         string `json:"professional_id"`
				Tier                   string `json:"tier"`
				MaxMonthlyAppointments int    `json:"max_monthly_appointments"`
			}
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid entitlements payload", "err", err, "topic", msg.Topic)
				return nil
			}
			if payload.ProfessionalID == "" {
				logger.Error("entitlements event missing professional_id", "topic", msg.Topic)
				return nil
			}
			if payload.MaxMonthlyAppointments <= 0 {
				payload.MaxMonthlyAppointments = plans.LimitsForTier(payload.Tier).MaxMonthlyAppointments
			}

			tx, err := pool.Begin(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = tx.Rollback(ctx) }()
			if err := plansRepo.Upsert(ctx, tx, plans.Entitlement{
				ProfessionalID:         payload.ProfessionalID,
				Tier:                   payload.Tier,
				MaxMonthlyAppointments: payload.MaxMonthlyAppointments,
			}); err != nil {
				return err
			}
			return tx.Commit(ctx)
		})
		go entitlementsConsumer.Run(ctx)
	}

	bookingHandler := handlers.NewBookingHandler(bookingSvc)
	scheduleHandler := schedule.NewHandler(schedRepo)
	waitlistHandler := waitlist.NewHandler(waitlistEngine)

	// Rate limit only the public patient-facing endpoints.
	publicLimit := publicRateLimiter(logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.Handle("GET /api/v1/professionals/{id}/timeslots", publicLimit(http.HandlerFunc(bookingHandler.Timeslots)))
	mux.Handle("POST /api/v1/appointments", publicLimit(http.HandlerFunc(bookingHandler.Create)))
	mux.HandleFunc("PATCH /api/v1/appointments/{id}/cancel", bookingHandler.Cancel)
	mux.HandleFunc("PATCH /api/v1/appointments/{id}/reschedule", bookingHandler.Reschedule)
	mux.HandleFunc("DELETE /api/v1/appointments/{id}", bookingHandler.Delete)
	mux.HandleFunc("GET /api/v1/professionals/{id}/appointments", bookingHandler.ListForProfessional)

	mux.HandleFunc("GET /api/v1/professionals/{id}/schedule", scheduleHandler.GetSchedule)
	mux.HandleFunc("PUT /api/v1/professionals/{id}/schedule", scheduleHandler.PutSchedule)
	mux.HandleFunc("GET /api/v1/professionals/{id}/breaks", scheduleHandler.ListBreaks)
	mux.HandleFunc("POST /api/v1/professionals/{id}/breaks", scheduleHandler.CreateBreak)
	mux.HandleFunc("DELETE /api/v1/professionals/{id}/breaks/{breakId}", scheduleHandler.DeleteBreak)

	mux.Handle("POST /api/v1/waitlist", publicLimit(http.HandlerFunc(waitlistHandler.Create)))
	mux.HandleFunc("GET /api/v1/waitlist/priority/{token}", waitlistHandler.Get)
	mux.HandleFunc("POST /api/v1/waitlist/priority/{token}/confirm", waitlistHandler.Confirm)
	mux.HandleFunc("POST /api/v1/waitlist/priority/{token}/release", waitlistHandler.Release)
	mux.HandleFunc("DELETE /api/v1/waitlist/priority/{token}", waitlistHandler.Cancel)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", ""), ","),
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "X-Professional-Id"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(1<<20),
		httpx.WithAccessLog(logger),
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
