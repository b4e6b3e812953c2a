package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	blacklisthandler "gatepass/internal/blacklist/handler"
	blacklistservice "gatepass/internal/blacklist/service"
	blackliststore "gatepass/internal/blacklist/store"
	emergencyhandler "gatepass/internal/emergency/handler"
	emergencymetrics "gatepass/internal/emergency/metrics"
	emergencyservice "gatepass/internal/emergency/service"
	emergencystore "gatepass/internal/emergency/store"
	estatehandler "gatepass/internal/estate/handler"
	estatemodels "gatepass/internal/estate/models"
	estateservice "gatepass/internal/estate/service"
	estatestore "gatepass/internal/estate/store"
	jwttoken "gatepass/internal/jwt_token"
	movementhandler "gatepass/internal/movement/handler"
	movementservice "gatepass/internal/movement/service"
	movementstore "gatepass/internal/movement/store"
	"gatepass/internal/notify"
	"gatepass/internal/pass/expiry"
	passhandler "gatepass/internal/pass/handler"
	passmetrics "gatepass/internal/pass/metrics"
	passservice "gatepass/internal/pass/service"
	passstore "gatepass/internal/pass/store"
	"gatepass/internal/platform/config"
	"gatepass/internal/platform/httpserver"
	"gatepass/internal/platform/kafka"
	"gatepass/internal/platform/logger"
	"gatepass/internal/platform/metrics"
	"gatepass/internal/platform/postgres"
	"gatepass/internal/platform/redis"
	httptransport "gatepass/internal/transport/http"
	"gatepass/pkg/platform/audit"
	"gatepass/pkg/platform/audit/relay"
	auditmemory "gatepass/pkg/platform/audit/store/memory"
	auditpostgres "gatepass/pkg/platform/audit/store/postgres"
	"gatepass/pkg/platform/circuit"
	"gatepass/pkg/platform/clock"
	"gatepass/pkg/platform/tx"
)

func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("gatepass exited", "error", err)
		os.Exit(1)
	}
}

// stores groups one persistence backend for every aggregate.
type stores struct {
	estates   estateservice.EstateStore
	members   estateservice.MemberStore
	passes    passservice.Store
	blacklist blacklistservice.Store
	movements movementservice.Store
	panics    emergencyservice.Store
	audit     audit.Store
	outbox    relay.Outbox
	tx        tx.Runner
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	clk := clock.Real()
	health := map[string]httptransport.HealthCheck{}

	var db *sql.DB
	st := memoryStores()
	if cfg.Postgres.URL != "" {
		db, err = postgres.Open(ctx, cfg.Postgres, log)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(db); err != nil {
			return err
		}
		st = postgresStores(db)
		health["postgres"] = db.PingContext
	} else {
		log.Warn("DATABASE_URL not set; using in-memory stores")
	}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		health["redis"] = rdb.Health
	}

	publisher := audit.NewPublisher(st.audit, audit.WithLogger(log))

	estates := estateservice.New(st.estates, st.members,
		estateservice.WithLogger(log),
		estateservice.WithAuditPublisher(publisher),
		estateservice.WithTx(st.tx),
		estateservice.WithDefaultPolicy(estatemodels.Policy{
			BlockOnBlacklist: cfg.Policy.BlockOnBlacklist,
			PassHistoryLimit: cfg.Policy.PassHistoryLimit,
		}),
	)
	blacklist := blacklistservice.New(st.blacklist,
		blacklistservice.WithLogger(log),
		blacklistservice.WithAuditPublisher(publisher),
	)
	movements := movementservice.New(st.movements, movementservice.WithLogger(log))

	g, gctx := errgroup.WithContext(ctx)

	scheduler, runScheduler, stopScheduler, err := buildScheduler(cfg.Expiry, rdb, clk, log)
	if err != nil {
		return err
	}
	defer stopScheduler()
	if runScheduler != nil {
		g.Go(func() error { return runScheduler(gctx) })
	}

	passes := passservice.New(st.passes, blacklist, estates, movements,
		passservice.WithLogger(log),
		passservice.WithMetrics(passmetrics.New(m.Registry)),
		passservice.WithAuditPublisher(publisher),
		passservice.WithTx(st.tx),
		passservice.WithScheduler(scheduler),
		passservice.WithClock(clk),
	)
	scheduler.Bind(passes)
	if n, err := passes.RescheduleLive(ctx); err != nil {
		log.Error("rescheduling live passes failed", "error", err)
	} else {
		log.Info("live passes rescheduled", "count", n)
	}

	notifier, closeNotifier, err := buildNotifier(cfg, log)
	if err != nil {
		return err
	}
	defer closeNotifier()

	dispatcher := emergencyservice.New(st.panics, estates, notifier,
		emergencyservice.WithLogger(log),
		emergencyservice.WithMetrics(emergencymetrics.New(m.Registry)),
		emergencyservice.WithAuditPublisher(publisher),
		emergencyservice.WithTx(st.tx),
		emergencyservice.WithSecurityPrefix(cfg.NATS.SecuritySubject),
		emergencyservice.WithFanOut(cfg.Policy.AdminFanout),
	)

	if len(cfg.Kafka.Brokers) > 0 {
		if st.outbox == nil {
			log.Warn("KAFKA_BROKERS set without DATABASE_URL; audit stream disabled")
		} else {
			client, err := kafka.NewClient(cfg.Kafka)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := kafka.EnsureTopics(ctx, client, cfg.Kafka.Partitions, cfg.Kafka.AuditTopic); err != nil {
				return err
			}
			auditRelay := relay.New(st.outbox, kafka.NewProducer(client), cfg.Kafka.AuditTopic, log)
			g.Go(func() error {
				if err := auditRelay.Run(gctx); !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		}
	}

	jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	router := httptransport.NewRouter(httptransport.Options{
		Logger:         log,
		Validator:      jwttoken.NewJWTServiceAdapter(jwt),
		AdminToken:     cfg.Auth.AdminToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		Clock:          clk,
		Latency:        m,
		Metrics:        m.Handler(),
		Health:         health,
	}, httptransport.Handlers{
		Estates:   estatehandler.New(estates, jwt, cfg.Auth.TokenTTL, log),
		Passes:    passhandler.New(passes, log),
		Blacklist: blacklisthandler.New(blacklist, log),
		Movements: movementhandler.New(movements, log),
		Panic:     emergencyhandler.New(dispatcher, log),
	})

	srv := httpserver.New(cfg.Server, router)
	g.Go(func() error {
		log.Info("starting gatepass", "addr", cfg.Server.Addr, "env", cfg.Environment, "expiry", cfg.Expiry.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type expiryScheduler interface {
	passservice.ExpiryScheduler
	Bind(expiry.Expirer)
}

// buildScheduler picks the expiry backend. run is nil when the backend needs
// no background loop.
func buildScheduler(cfg config.ExpiryConfig, rdb *redis.Client, clk clock.Clock, log *slog.Logger) (scheduler expiryScheduler, run func(context.Context) error, stop func(), err error) {
	switch cfg.Backend {
	case "redis":
		if rdb == nil {
			return nil, nil, nil, errors.New("expiry backend redis requires REDIS_URL")
		}
		queue := expiry.NewRedisQueue(rdb, clk, log,
			expiry.WithPollInterval(cfg.PollInterval),
			expiry.WithBatchSize(cfg.BatchSize),
		)
		return queue, queue.Run, func() {}, nil
	default:
		timers := expiry.NewTimerScheduler(clk, log)
		return timers, nil, timers.Stop, nil
	}
}

func memoryStores() stores {
	return stores{
		estates:   estatestore.NewInMemoryEstateStore(),
		members:   estatestore.NewInMemoryMemberStore(),
		passes:    passstore.NewInMemoryStore(),
		blacklist: blackliststore.NewInMemoryStore(),
		movements: movementstore.NewInMemoryStore(),
		panics:    emergencystore.NewInMemoryStore(),
		audit:     auditmemory.NewInMemoryStore(),
		tx:        tx.NewShardedRunner(),
	}
}

func postgresStores(db *sql.DB) stores {
	outbox := auditpostgres.New(db)
	return stores{
		estates:   estatestore.NewPostgresEstateStore(db),
		members:   estatestore.NewPostgresMemberStore(db),
		passes:    passstore.NewPostgres(db),
		blacklist: blackliststore.NewPostgres(db),
		movements: movementstore.NewPostgres(db),
		panics:    emergencystore.NewPostgres(db),
		audit:     outbox,
		outbox:    outbox,
		tx:        tx.NewSQLRunner(db),
	}
}

// buildNotifier routes the security channel to NATS and admin email to
// MailerSend. Either falls back to the log once its breaker opens, or is
// log-only when not configured.
func buildNotifier(cfg *config.Config, log *slog.Logger) (notify.Notifier, func(), error) {
	fallback := notify.NewLogNotifier(log)
	router := notify.NewRouter()
	closer := func() {}

	if cfg.NATS.URL != "" {
		conn, err := notify.ConnectNATS(cfg.NATS.URL, log)
		if err != nil {
			return nil, nil, err
		}
		closer = func() { drain(conn, log) }
		router.Route(notify.ChannelSecurity, notify.NewFailover(
			notify.NewNATSNotifier(conn), fallback,
			circuit.New("nats", circuit.WithFailureThreshold(cfg.Policy.NotifyFailureLimit)), log,
		))
	} else {
		router.Route(notify.ChannelSecurity, fallback)
	}

	mailer := notify.NewMailerSendNotifier(cfg.Mail.MailerSendKey, cfg.Mail.FromName, cfg.Mail.From)
	if mailer.Enabled() && !cfg.Mail.DevMode {
		router.Route(notify.ChannelEmail, notify.NewFailover(
			mailer, fallback,
			circuit.New("mailersend", circuit.WithFailureThreshold(cfg.Policy.NotifyFailureLimit)), log,
		))
	} else {
		router.Route(notify.ChannelEmail, fallback)
	}
	return router, closer, nil
}

func drain(conn *nats.Conn, log *slog.Logger) {
	if err := conn.Drain(); err != nil {
		log.Warn("nats drain failed", "error", err)
	}
}
