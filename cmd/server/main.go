// Command server runs the business registry API: party and legal-entity
// identity, domain verification, endpoint publication, and access grants,
// with an append-only pseudonymized audit trail underneath all of it.
//
// Wiring lives here; business logic lives in the internal service packages.
// Without a Postgres DSN the process runs entirely on in-memory stores,
// which is the development and demo mode.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	accesshandler "registra/internal/access/handler"
	accessservice "registra/internal/access/service"
	endpointstore "registra/internal/access/store/endpoint"
	grantstore "registra/internal/access/store/grant"
	requeststore "registra/internal/access/store/request"
	"registra/internal/audit"
	auditmemory "registra/internal/audit/store/memory"
	auditpostgres "registra/internal/audit/store/postgres"
	"registra/internal/audit/stream"
	"registra/internal/collaborator/notify"
	identitycache "registra/internal/identity/cache"
	identityhandler "registra/internal/identity/handler"
	identityservice "registra/internal/identity/service"
	entitystore "registra/internal/identity/store/entity"
	partystore "registra/internal/identity/store/party"
	"registra/internal/platform/config"
	"registra/internal/platform/httpserver"
	"registra/internal/platform/logger"
	"registra/internal/platform/metrics"
	"registra/internal/platform/postgres"
	platformredis "registra/internal/platform/redis"
	"registra/internal/platform/token"
	"registra/internal/platform/txn"
	httptransport "registra/internal/transport/http"
	verificationhandler "registra/internal/verification/handler"
	verificationservice "registra/internal/verification/service"
	challengestore "registra/internal/verification/store/challenge"
	"registra/pkg/requestcontext"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var (
		db     *sql.DB
		runner txn.Runner
	)
	health := map[string]func(ctx context.Context) error{}

	if cfg.Postgres.DSN != "" {
		var err error
		db, err = postgres.Open(cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		runner = txn.NewSQL(db)
		health["postgres"] = db.PingContext
		log.Info("using postgres stores")
	} else {
		runner = txn.NewSharded()
		log.Info("no postgres dsn configured, using in-memory stores")
	}

	// Audit pipeline: durable store, pseudonymizer, optional Kafka mirror.
	var (
		eventStore   audit.Store
		mappingStore audit.MappingStore
	)
	if db != nil {
		eventStore = auditpostgres.NewStore(db)
		mappingStore = auditpostgres.NewMappingStore(db)
	} else {
		eventStore = auditmemory.NewStore()
		mappingStore = auditmemory.NewMappingStore()
	}

	recorderOpts := []audit.RecorderOption{audit.WithLogger(log), audit.WithMetrics(m)}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := stream.New(cfg.Kafka.Brokers, stream.WithTopic(cfg.Kafka.Topic), stream.WithLogger(log))
		if err != nil {
			return err
		}
		defer publisher.Close(context.Background())
		recorderOpts = append(recorderOpts, audit.WithStream(publisher))
		log.Info("audit events mirrored to kafka", "topic", cfg.Kafka.Topic)
	}
	recorder := audit.NewRecorder(eventStore, mappingStore,
		audit.NewPseudonymizer([]byte(cfg.Audit.PseudonymKey), mappingStore), recorderOpts...)

	// Stores.
	var (
		parties    identityservice.PartyStore
		entities   entityStore
		challenges verificationservice.ChallengeStore
		endpoints  accessservice.EndpointStore
		requests   accessservice.RequestStore
		grants     accessservice.GrantStore
	)
	if db != nil {
		parties = partystore.NewPostgres(db)
		entities = entitystore.NewPostgres(db)
		challenges = challengestore.NewPostgres(db)
		endpoints = endpointstore.NewPostgres(db)
		requests = requeststore.NewPostgres(db)
		grants = grantstore.NewPostgres(db)
	} else {
		parties = partystore.NewInMemory()
		entities = entitystore.NewInMemory()
		challenges = challengestore.NewInMemory()
		endpoints = endpointstore.NewInMemory()
		requests = requeststore.NewInMemory()
		grants = grantstore.NewInMemory()
	}

	notifier := notify.NewLogNotifier(log)

	accessSvc := accessservice.New(endpoints, requests, grants, entities, recorder, runner, nil,
		accessservice.WithLogger(log),
		accessservice.WithMetrics(m),
		accessservice.WithNotifier(notifier))

	identityOpts := []identityservice.Option{
		identityservice.WithLogger(log),
		identityservice.WithMetrics(m),
		identityservice.WithCascader(accessSvc),
	}
	verificationOpts := []verificationservice.Option{
		verificationservice.WithLogger(log),
		verificationservice.WithMetrics(m),
		verificationservice.WithNotifier(notifier),
	}

	rdb, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		trustCache := identitycache.NewTrustCache(rdb.Client)
		identityOpts = append(identityOpts, identityservice.WithTrustCache(trustCache))
		verificationOpts = append(verificationOpts, verificationservice.WithTrustInvalidator(trustCache))
		health["redis"] = rdb.Health
		log.Info("trust profile caching enabled")
	}

	identitySvc := identityservice.New(parties, entities, recorder, runner, identityOpts...)
	verificationSvc := verificationservice.New(challenges, entities, recorder, runner, verificationservice.Config{
		AttemptCeiling: cfg.Verification.AttemptCeiling,
		ChallengeTTL:   cfg.Verification.ChallengeTTL,
		ReverifyAfter:  cfg.Verification.ReverifyAfter,
	}, verificationOpts...)

	tokens := token.NewService(cfg.Auth.JWTSigningKey)
	router := httptransport.NewRouter(httptransport.Deps{
		Logger:       log,
		Validator:    tokens,
		Identity:     identityhandler.New(identitySvc, log),
		Verification: verificationhandler.New(verificationSvc, log),
		Access:       accesshandler.New(accessSvc, log),
		HealthChecks: health,
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return sweep(ctx, cfg.Verification.SweepInterval, func(ctx context.Context) {
			if n, err := verificationSvc.ExpireDueChallenges(ctx); err != nil {
				log.Warn("challenge expiry sweep failed", "err", err)
			} else if n > 0 {
				log.Info("expired stale challenges", "count", n)
			}
		})
	})

	g.Go(func() error {
		return sweep(ctx, cfg.Verification.SweepInterval, func(ctx context.Context) {
			if n, err := verificationSvc.DowngradeOverdueEntities(ctx); err != nil {
				log.Warn("re-verification sweep failed", "err", err)
			} else if n > 0 {
				log.Info("downgraded overdue entities", "count", n)
			}
		})
	})

	g.Go(func() error {
		return sweep(ctx, cfg.Audit.SweepInterval, func(ctx context.Context) {
			cutoff := time.Now().UTC().Add(-cfg.Audit.Retention)
			if res, err := recorder.Purge(ctx, cutoff); err != nil {
				log.Warn("audit retention sweep failed", "err", err)
			} else if res.Events > 0 || res.Mappings > 0 {
				log.Info("purged expired audit data", "events", res.Events, "mappings", res.Mappings)
			}
		})
	})

	return g.Wait()
}

// sweep runs fn on a fixed interval until ctx ends. Each run gets a fresh
// context stamped with the sweep clock and a system actor for auditing.
func sweep(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			runCtx := requestcontext.WithNow(ctx, time.Now().UTC())
			runCtx = requestcontext.WithActor(runCtx, "system:sweep")
			fn(runCtx)
		}
	}
}

// entityStore is the union of the per-component views onto the legal entity
// store; both implementations satisfy it.
type entityStore interface {
	identityservice.EntityStore
	verificationservice.EntityStore
	accessservice.EntityReader
}
