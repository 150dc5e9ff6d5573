package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	authflowhandler "devportal/internal/authflow/handler"
	authflowservice "devportal/internal/authflow/service"
	authflowstore "devportal/internal/authflow/store"
	grantshandler "devportal/internal/grants/handler"
	grantsservice "devportal/internal/grants/service"
	grantsstore "devportal/internal/grants/store"
	httpapi "devportal/internal/http"
	identityhandler "devportal/internal/identity/handler"
	identityservice "devportal/internal/identity/service"
	identitystore "devportal/internal/identity/store"
	"devportal/internal/identity/token"
	"devportal/internal/platform/config"
	"devportal/internal/platform/httpserver"
	"devportal/internal/platform/logger"
	"devportal/internal/platform/metrics"
	platformredis "devportal/internal/platform/redis"
	registryhandler "devportal/internal/registry/handler"
	registryservice "devportal/internal/registry/service"
	registrystore "devportal/internal/registry/store"
	"devportal/pkg/platform/audit"
	auditpublisher "devportal/pkg/platform/audit/publisher"
	auditmemory "devportal/pkg/platform/audit/store/memory"
	auditpostgres "devportal/pkg/platform/audit/store/postgres"
	auditworker "devportal/pkg/platform/audit/worker"
)

const auditBuffer = 256

// main is the composition root: it selects stores from configuration, wires
// the services together, and runs the HTTP server plus the audit worker
// until shutdown.
func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("database unreachable", "error", err)
			os.Exit(1)
		}
		log.Info("using postgres-backed stores")
	} else {
		log.Info("using in-memory stores")
	}

	// Audit pipeline: services emit into a buffered channel, the worker
	// drains it into the store, and Kafka mirrors it when configured.
	outbox := make(chan audit.Event, auditBuffer)
	var auditStore audit.Store
	if db != nil {
		auditStore = auditpostgres.New(db)
	} else {
		auditStore = auditmemory.New()
	}
	var auditPub audit.Publisher = auditpublisher.NewChannel(outbox)
	var kafkaPub *auditpublisher.Kafka
	if len(cfg.Audit.Brokers) > 0 {
		kafkaPub, err = auditpublisher.NewKafka(cfg.Audit.Brokers, cfg.Audit.Topic, log)
		if err != nil {
			log.Error("failed to connect audit kafka publisher", "error", err)
			os.Exit(1)
		}
		auditPub = auditpublisher.NewFanout(auditPub, kafkaPub)
		log.Info("audit events mirrored to kafka", "topic", cfg.Audit.Topic)
	}

	m := metrics.New()

	var (
		users    identityservice.UserStore
		apps     registryservice.ApplicationStore
		requests grantsservice.RequestStore
		grants   grantsservice.GrantStore
	)
	if db != nil {
		users = identitystore.NewPostgres(db)
		apps = registrystore.NewPostgres(db)
		requests = grantsstore.NewPostgresRequests(db)
		grants = grantsstore.NewPostgresGrants(db)
	} else {
		users = identitystore.NewMemory()
		apps = registrystore.NewMemory()
		requests = grantsstore.NewMemoryRequests()
		grants = grantsstore.NewMemoryGrants()
	}

	memoryCodes := authflowstore.NewMemoryCodes()
	var codes authflowservice.CodeStore = memoryCodes
	if cfg.Redis.URL != "" {
		redisClient, err := platformredis.New(cfg.Redis)
		if err != nil {
			log.Error("failed to connect redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		codes = authflowstore.NewRedisCodes(redisClient.Client)
		memoryCodes = nil
		log.Info("using redis-backed authorization code store")
	}

	tokens := token.NewManager(cfg.JWTSigningKey, cfg.SessionTTL)

	identitySvc := identityservice.New(users, tokens,
		identityservice.WithLogger(log),
		identityservice.WithMetrics(m),
		identityservice.WithAuditPublisher(auditPub),
	)
	registrySvc := registryservice.New(apps,
		registryservice.WithLogger(log),
		registryservice.WithMetrics(m),
		registryservice.WithAuditPublisher(auditPub),
	)
	grantsSvc := grantsservice.New(requests, grants, apps, users,
		grantsservice.WithLogger(log),
		grantsservice.WithMetrics(m),
		grantsservice.WithAuditPublisher(auditPub),
	)
	authflowSvc := authflowservice.New(registrySvc, identitySvc, identitySvc, grantsSvc, codes,
		authflowservice.WithLogger(log),
		authflowservice.WithMetrics(m),
		authflowservice.WithAuditPublisher(auditPub),
		authflowservice.WithCodeTTL(cfg.AuthCodeTTL),
	)

	router := httpapi.NewRouter(httpapi.Handlers{
		Identity: identityhandler.New(identitySvc, log),
		Registry: registryhandler.New(registrySvc, log),
		Grants:   grantshandler.New(grantsSvc, log),
		AuthFlow: authflowhandler.New(authflowSvc, log),
	}, identitySvc, log)

	srv := httpserver.New(cfg.Addr, router)
	worker := auditworker.NewWorker(auditStore, outbox)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting developer portal", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return worker.Run(groupCtx)
	})
	if memoryCodes != nil {
		// Redis expires codes via key TTL; the in-memory store needs a sweeper.
		group.Go(func() error {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-groupCtx.Done():
					return groupCtx.Err()
				case <-ticker.C:
					if _, err := memoryCodes.PruneExpired(groupCtx, time.Now()); err != nil {
						log.Warn("failed to prune expired authorization codes", "error", err)
					}
				}
			}
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}

	if kafkaPub != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := kafkaPub.Close(closeCtx); err != nil {
			log.Warn("failed to flush kafka audit publisher", "error", err)
		}
	}

	log.Info("server stopped")
}
