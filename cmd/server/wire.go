package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"parkspot/internal/auth/credential"
	"parkspot/internal/auth/handler"
	"parkspot/internal/auth/provider"
	"parkspot/internal/auth/reconcile"
	"parkspot/internal/auth/registrar"
	"parkspot/internal/auth/service"
	"parkspot/internal/auth/session"
	"parkspot/internal/auth/store/identity"
	"parkspot/internal/platform/config"
	"parkspot/internal/platform/database"
	"parkspot/internal/platform/metrics"
	"parkspot/internal/platform/middleware"
	"parkspot/internal/platform/redis"
	"parkspot/pkg/platform/circuit"
)

type identityStore interface {
	registrar.IdentityCreator
	credential.IdentityFinder
}

// app owns everything main needs to serve and to release on exit.
type app struct {
	router  http.Handler
	relay   *reconcile.Relay
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg *config.Server, log *slog.Logger, m *metrics.Metrics) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var (
		identities identityStore = identity.NewInMemoryStore()
		outbox     reconcile.Store
	)
	if cfg.Database.URL != "" {
		if err := database.RunMigrations(cfg.Database.URL); err != nil {
			return nil, err
		}
		pool, err := database.OpenPool(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		identities = identity.NewPostgresStore(pool)

		outbox, err = openOutbox(ctx, cfg, a)
		if err != nil {
			return nil, err
		}
		log.Info("using postgres identity store")
	} else {
		outbox = reconcile.NewInMemoryStore()
		log.Warn("DATABASE_URL not set, identities are kept in memory")
	}

	svcCfg := service.Config{
		Mode:           cfg.Auth.Mode,
		SiteURL:        cfg.SiteURL,
		OAuthProviders: cfg.Provider.OAuthProviders,
		SecureCookies:  cfg.IsProduction(),
	}
	regOpts := []registrar.Option{
		registrar.WithMinPasswordLength(cfg.Auth.MinPasswordLength),
		registrar.WithRequireConfirmation(cfg.Auth.RequireEmailConfirmation),
		registrar.WithBcryptCost(bcrypt.DefaultCost),
		registrar.WithLogger(log),
	}

	var (
		verifier service.Verifier
		reg      service.Registrar
		svcOpts  = []service.Option{service.WithMetrics(m), service.WithLogger(log)}
	)
	switch cfg.Auth.Mode {
	case config.AuthModeProvider:
		client := provider.NewClient(cfg.Provider.URL, cfg.Provider.AnonKey,
			provider.WithTimeout(cfg.Provider.Timeout),
			provider.WithObserver(m),
			provider.WithBreaker(circuit.New("identity-provider")),
		)
		recorder := reconcile.NewRecorder(outbox, reconcile.WithLogger(log), reconcile.WithCounter(m))
		verifier = credential.NewProviderVerifier(client)
		reg = registrar.NewProvider(client, identities, recorder, regOpts...)
		svcOpts = append(svcOpts,
			service.WithProvider(client),
			service.WithExchanger(session.NewExchanger(client, log)),
		)

		relay, err := buildRelay(ctx, cfg, log, m, outbox, a)
		if err != nil {
			return nil, err
		}
		a.relay = relay
	default:
		local, err := credential.NewLocalVerifier(identities, bcrypt.DefaultCost, credential.WithLogger(log))
		if err != nil {
			return nil, err
		}
		revocations, err := buildRevocationList(ctx, cfg, log, a)
		if err != nil {
			return nil, err
		}
		verifier = local
		reg = registrar.NewLocal(identities, regOpts...)
		svcOpts = append(svcOpts, service.WithIssuer(session.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer,
			session.WithTTL(cfg.Auth.SessionTTL),
			session.WithRevocationList(revocations),
			session.WithLogger(log),
		)))
	}

	svc, err := service.New(svcCfg, verifier, reg, svcOpts...)
	if err != nil {
		return nil, err
	}

	proxies, err := middleware.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
	if err != nil {
		return nil, err
	}
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, middleware.WithRateLimitLogger(log))
	a.closers = append(a.closers, limiter.Stop)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.ClientMetadata(proxies))
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Latency(m))
	r.Use(chimw.Timeout(cfg.Provider.Timeout + 5*time.Second))

	handler.New(svc, log,
		handler.WithRateLimiter(limiter),
		handler.WithErrorDetails(!cfg.IsProduction()),
	).Register(r)
	handler.RegisterOps(r, m.Handler())

	a.router = r
	ok = true
	return a, nil
}

// openOutbox opens the database/sql handle backing the orphan outbox.
func openOutbox(ctx context.Context, cfg *config.Server, a *app) (reconcile.Store, error) {
	db, err := database.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = db.Close() })
	return reconcile.NewPostgresStore(db), nil
}

func buildRevocationList(ctx context.Context, cfg *config.Server, log *slog.Logger, a *app) (session.RevocationList, error) {
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		log.Warn("REDIS_URL not set, revoked sessions are tracked in memory")
		return session.NewMemoryRevocationList(), nil
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	return session.NewRedisRevocationList(client.Client), nil
}

func buildRelay(ctx context.Context, cfg *config.Server, log *slog.Logger, m *metrics.Metrics, outbox reconcile.Store, a *app) (*reconcile.Relay, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Warn("KAFKA_BROKERS not set, orphaned identities stay in the outbox")
		return nil, nil
	}
	pub, err := reconcile.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.OrphanTopic)
	if err != nil {
		return nil, err
	}
	if err := pub.EnsureTopic(ctx, 1, 1); err != nil {
		pub.Close()
		return nil, fmt.Errorf("ensure orphan topic: %w", err)
	}
	a.closers = append(a.closers, pub.Close)
	return reconcile.NewRelay(outbox, pub,
		reconcile.WithInterval(cfg.Kafka.RelayInterval),
		reconcile.WithRelayLogger(log),
		reconcile.WithPublishCounter(m),
	), nil
}
