package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/animus-labs/animus-contracts/internal/auditexport"
	"github.com/animus-labs/animus-contracts/internal/authz"
	"github.com/animus-labs/animus-contracts/internal/identity"
	"github.com/animus-labs/animus-contracts/internal/platform/auth"
	"github.com/animus-labs/animus-contracts/internal/platform/httpserver"
	"github.com/animus-labs/animus-contracts/internal/platform/metrics"
	"github.com/animus-labs/animus-contracts/internal/platform/objectstore"
	"github.com/animus-labs/animus-contracts/internal/platform/postgres"
	"github.com/animus-labs/animus-contracts/internal/repo"
	"github.com/animus-labs/animus-contracts/internal/repo/memory"
	pgrepo "github.com/animus-labs/animus-contracts/internal/repo/postgres"
	"github.com/animus-labs/animus-contracts/internal/service/contracts"
)

const serviceName = "contractd"

var _ contracts.Metrics = (*metrics.Metrics)(nil)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpCfg, err := httpserver.ConfigFromEnv(serviceName)
	if err != nil {
		logger.Error("invalid http config", "error", err)
		os.Exit(2)
	}
	svcCfg, err := contracts.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid contracts config", "error", err)
		os.Exit(2)
	}
	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}
	archiveCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid audit archive config", "error", err)
		os.Exit(2)
	}

	keyring, err := identity.LoadKeyring(svcCfg.KeyringFile)
	if err != nil {
		logger.Error("identity keyring unavailable", "error", err)
		os.Exit(2)
	}
	resolver := identity.NewCachingResolver(keyring, svcCfg.IdentityTTL, time.Now)

	policy := authz.DefaultPolicy()
	if svcCfg.PolicyFile != "" {
		policy, err = authz.LoadPolicy(svcCfg.PolicyFile)
		if err != nil {
			logger.Error("authorization policy unavailable", "error", err)
			os.Exit(2)
		}
	}
	checker, err := authz.NewEvaluator(policy)
	if err != nil {
		logger.Error("invalid authorization policy", "error", err)
		os.Exit(2)
	}

	m := metrics.New()
	var checks []httpserver.ReadinessCheck

	store, closeStore, err := openStore(ctx, svcCfg)
	if err != nil {
		logger.Error("contract store unavailable", "store", svcCfg.Store, "error", err)
		os.Exit(1)
	}
	defer closeStore()
	if pinger, ok := store.(repo.Pinger); ok {
		checks = append(checks, httpserver.ReadinessCheck{
			Name:  svcCfg.Store,
			Check: httpserver.WithTimeout(750*time.Millisecond, pinger.Ping),
		})
	}

	opts := []contracts.Option{
		contracts.WithLogger(logger),
		contracts.WithMetrics(m),
		contracts.WithLockTimeout(svcCfg.LockTimeout),
	}
	if archiveCfg.Enabled {
		client, err := objectstore.NewMinIOClient(archiveCfg)
		if err != nil {
			logger.Error("audit archive client", "error", err)
			os.Exit(2)
		}
		if err := objectstore.EnsureBucket(ctx, client, archiveCfg); err != nil {
			logger.Error("audit archive bucket unavailable", "error", err)
			os.Exit(1)
		}
		archiver, err := auditexport.NewArchiver(client, archiveCfg.Bucket, archiveCfg.Prefix)
		if err != nil {
			logger.Error("audit archiver", "error", err)
			os.Exit(2)
		}
		opts = append(opts, contracts.WithExporter(archiver))
		checks = append(checks, httpserver.ReadinessCheck{
			Name: "audit_archive",
			Check: httpserver.WithTimeout(750*time.Millisecond, func(ctx context.Context) error {
				return objectstore.CheckBucket(ctx, client, archiveCfg)
			}),
		})
	}

	svc, err := contracts.New(store, resolver, checker, opts...)
	if err != nil {
		logger.Error("contract service", "error", err)
		os.Exit(2)
	}
	if svcCfg.ExpiryInterval > 0 {
		contracts.NewSweeper(logger, svc, svcCfg.ExpiryInterval).Start(ctx)
	}

	authenticator, err := newAuthenticator(ctx, authCfg)
	if err != nil {
		logger.Error("authenticator", "mode", authCfg.Mode, "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", httpserver.Healthz(serviceName))
	mux.HandleFunc("GET /readyz", httpserver.ReadyzWithChecks(serviceName, checks...))
	mux.Handle("GET /metrics", m.Handler())
	newContractsAPI(logger, svc, m).register(mux)

	handler := auth.Middleware{
		Logger:        logger,
		Authenticator: authenticator,
		SkipPrefixes:  []string{"/healthz", "/readyz", "/metrics"},
	}.Wrap(mux)

	logger.Info("contract service starting",
		"store", svcCfg.Store,
		"identities", keyring.Len(),
		"auth_mode", authCfg.Mode,
		"audit_archive", archiveCfg.Enabled,
	)
	if err := httpserver.Run(ctx, logger, httpCfg, httpserver.Wrap(logger, handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg contracts.Config) (repo.ContractStore, func(), error) {
	switch cfg.Store {
	case contracts.StoreMemory:
		return memory.New(), func() {}, nil
	case contracts.StorePostgres:
		dbCfg, err := postgres.ConfigFromEnv()
		if err != nil {
			return nil, nil, err
		}
		db, err := postgres.Open(ctx, dbCfg)
		if err != nil {
			return nil, nil, err
		}
		if dbCfg.Migrate {
			if err := pgrepo.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return pgrepo.NewContractStore(db), func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store %q", cfg.Store)
	}
}

func newAuthenticator(ctx context.Context, cfg auth.Config) (auth.Authenticator, error) {
	switch cfg.Mode {
	case auth.ModeDev:
		return auth.NewDevAuthenticator(cfg), nil
	case auth.ModeOIDC:
		a, err := auth.NewOIDCAuthenticator(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}
