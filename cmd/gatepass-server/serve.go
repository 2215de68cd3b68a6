package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/gatepass/server/internal/auth"
	"github.com/BrandonDHaskell/gatepass/server/internal/catalog"
	"github.com/BrandonDHaskell/gatepass/server/internal/config"
	"github.com/BrandonDHaskell/gatepass/server/internal/db"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/service"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/signing"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store/memory"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store/postgres"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store/sqlite"
	"github.com/BrandonDHaskell/gatepass/server/internal/grpcapi"
	"github.com/BrandonDHaskell/gatepass/server/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the gRPC gate scan service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	appLogger.Info("configuration loaded",
		slog.String("env", cfg.Env),
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("grpc_addr", cfg.GRPCAddr),
		slog.String("store", cfg.Store),
		slog.Bool("persistent_keys", cfg.KeystorePath != ""),
		slog.Duration("qr_validity", cfg.QRValidity),
		slog.Bool("qr_strict_timestamps", cfg.QRStrictTimestamps),
		slog.Bool("seed_dev", cfg.SeedDev),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		appLogger.Error("failed to open store", slog.String("error", err.Error()))
		return err
	}
	defer closeStores()

	keys, err := openKeyStore(cfg)
	if err != nil {
		appLogger.Error("failed to open keystore", slog.String("error", err.Error()))
		return err
	}

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		if cat, err = catalog.Load(cfg.CatalogPath); err != nil {
			appLogger.Error("failed to load catalog", slog.String("error", err.Error()))
			return err
		}
	}

	tokens := auth.NewIssuer([]byte(cfg.JWTSecret), cfg.TokenTTL)
	svcs := service.New(stores, signing.NewEd25519Signer(keys), cat, tokens, service.Options{
		Pass: service.PassConfig{
			QRValidity:      cfg.QRValidity,
			DefaultTTLHours: cfg.DefaultPassTTLHours,
		},
		Scan: service.ScanConfig{
			QRValidity:       cfg.QRValidity,
			StrictTimestamps: cfg.QRStrictTimestamps,
		},
		LoginSecret: cfg.LoginSecret,
	}, appLogger)

	if cfg.SeedDev {
		if err := service.SeedDev(ctx, svcs.Principals, appLogger); err != nil {
			appLogger.Error("dev seed failed", slog.String("error", err.Error()))
			return err
		}
	}

	sweeper := service.NewExpirySweeper(svcs.Passes, cfg.ExpirySweepInterval, appLogger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	pruner := service.NewAuditPruner(svcs.Audit, service.PrunerConfig{
		RetentionDays: cfg.AuditRetentionDays,
		IntervalHours: cfg.AuditPruneIntervalHours,
	}, appLogger)
	pruner.Start(ctx)
	defer pruner.Stop()

	httpServer := httpapi.NewServer(httpapi.Dependencies{
		Logger:           appLogger,
		Addr:             cfg.HTTPAddr,
		Env:              cfg.Env,
		Services:         svcs,
		Tokens:           tokens,
		RateLimitRPS:     cfg.RateLimitRPS,
		RateLimitBurst:   cfg.RateLimitBurst,
		OperationTimeout: cfg.OperationTimeout,
	})

	errs := make(chan error, 2)
	running := 1
	go func() { errs <- httpServer.Start(ctx) }()

	if cfg.GRPCAddr != "" {
		grpcServer := grpcapi.NewServer(grpcapi.Dependencies{
			Logger:           appLogger,
			Addr:             cfg.GRPCAddr,
			Scans:            svcs.Scans,
			Tokens:           tokens,
			OperationTimeout: cfg.OperationTimeout,
		})
		running++
		go func() { errs <- grpcServer.Run(ctx) }()
	}

	// The first failure cancels ctx so the other server drains too.
	var firstErr error
	for range running {
		if err := <-errs; err != nil {
			if firstErr == nil {
				firstErr = err
				appLogger.Error("server error", slog.String("error", err.Error()))
			}
			stop()
		}
	}

	appLogger.Info("gatepass server stopped")
	return firstErr
}

// openStores selects the storage backend. The returned func releases it.
func openStores(ctx context.Context, cfg config.Config) (store.Stores, func(), error) {
	switch cfg.Store {
	case config.StoreSQLite:
		sqlDB, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
		if err != nil {
			return store.Stores{}, nil, err
		}
		writer := db.NewWorker(sqlDB)
		appLogger.Info("connected to sqlite", slog.String("path", cfg.DBPath))
		return sqlite.New(sqlDB, writer), func() {
			writer.Close()
			_ = sqlDB.Close()
		}, nil

	case config.StorePostgres:
		pool, err := db.OpenPostgres(ctx, db.PostgresConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
		})
		if err != nil {
			return store.Stores{}, nil, err
		}
		appLogger.Info("connected to PostgreSQL")
		return postgres.New(pool), pool.Close, nil

	case config.StoreMemory:
		appLogger.Warn("using in-memory store; passes are lost on restart")
		return memory.New(), func() {}, nil
	}
	return store.Stores{}, nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// openKeyStore returns the age-sealed key file, or process memory when no
// path is configured (memory store only).
func openKeyStore(cfg config.Config) (signing.KeyStore, error) {
	if cfg.KeystorePath == "" {
		appLogger.Warn("private keys are held in memory only")
		return signing.NewMemoryKeyStore(), nil
	}

	identity := cfg.KeystoreIdentity
	if identity == "" {
		var err error
		identity, err = signing.ReadIdentityFile(cfg.KeystoreIdentityFile, cfg.IsDevLike())
		if err != nil {
			return nil, err
		}
	}

	keys, err := signing.OpenAgeFileKeyStore(cfg.KeystorePath, identity)
	if err != nil {
		return nil, err
	}
	appLogger.Info("opened keystore", slog.String("path", cfg.KeystorePath))
	return keys, nil
}
