package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/devtunnel/internal/api"
	"github.com/edvin/devtunnel/internal/authentik"
	"github.com/edvin/devtunnel/internal/cloudflare"
	"github.com/edvin/devtunnel/internal/config"
	"github.com/edvin/devtunnel/internal/core"
	"github.com/edvin/devtunnel/internal/crypto"
	"github.com/edvin/devtunnel/internal/daemon"
	"github.com/edvin/devtunnel/internal/db"
	"github.com/edvin/devtunnel/internal/inventory"
	"github.com/edvin/devtunnel/internal/logging"
	"github.com/edvin/devtunnel/internal/mcpserver"
	"github.com/edvin/devtunnel/internal/metrics"
	"github.com/edvin/devtunnel/internal/platform"
	"github.com/edvin/devtunnel/internal/store/postgres"
	"github.com/edvin/devtunnel/internal/store/sqlite"
)

const (
	cloudflareRPS   = 4
	cloudflareBurst = 8
	shutdownTimeout = 10 * time.Second
)

func main() {
	if len(os.Args) >= 2 && os.Args[1] == "generate-key" {
		generateKey()
		return
	}

	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	migrateOnly := flag.Bool("migrate-only", false, "Run database migrations and exit")
	listenFlag := flag.String("listen", "", "HTTP listen address (overrides HTTP_LISTEN_ADDR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *listenFlag != "" {
		cfg.HTTPListenAddr = *listenFlag
	}

	mode := config.ModeServe
	if *migrateOnly {
		mode = config.ModeMigrate
	}
	if err := cfg.Validate(mode); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	if *migrateFlag || *migrateOnly {
		logger.Info().Msg("running database migrations")
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		if *migrateOnly {
			return
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open route store")
	}
	defer closeStore()

	secretKey, err := crypto.DecodeKey(cfg.SecretsKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid SECRETS_KEY")
	}

	identityTLS, err := cfg.IdentityTLS()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure identity provider TLS")
	}

	runner := platform.ExecRunner{}
	services := core.NewServices(core.Deps{
		Store:    store,
		Tunnel:   cloudflare.NewClient(cfg.CloudflareAPIURL, cfg.UpstreamTimeout, cloudflare.WithRateLimit(cloudflareRPS, cloudflareBurst)),
		Identity: authentik.NewClient(cfg.UpstreamTimeout, identityTLS),
		Daemon:   daemon.NewController(cfg.TunnelService, runner, logger),
		Inventory: inventory.New(
			inventory.OSFileSystem{},
			store,
			inventory.NewSocketInspector(cfg.ProcPath, runner, logger),
			cfg.ProjectsRoot,
			cfg.ManifestFile,
			logger,
		),
		SecretKey:     secretKey,
		HealthTimeout: cfg.HealthCheckTimeout,
		Logger:        logger,
	})

	mcpCfg, err := mcpserver.DefaultConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load MCP tool config")
	}

	var keyHash string
	if cfg.APIKey != "" {
		keyHash = crypto.HashAPIKey(cfg.APIKey)
	} else {
		logger.Warn().Msg("API_KEY not set; the API is unauthenticated")
	}

	srv := api.NewServer(logger, services, store, keyHash, mcpserver.New(services, mcpCfg, logger))

	httpServer := &http.Server{
		Addr:              cfg.HTTPListenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	servers := []*http.Server{httpServer}
	if cfg.MetricsListenAddr != "" {
		servers = append(servers, metrics.NewServer(cfg.MetricsListenAddr, store.Ping))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		g.Go(func() error {
			logger.Info().Str("addr", s.Addr).Msg("starting HTTP server")
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", s.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, s := range servers {
			if err := s.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Str("addr", s.Addr).Msg("shutdown incomplete")
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

// routeStore is a core.Store the process owns.
type routeStore interface {
	core.Store
	inventory.ProjectSource
}

// openStore opens the backend DATABASE_URL names. The SQLite store migrates
// itself on open since it is created on first use.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (routeStore, func(), error) {
	dialect, dsn, err := db.ParseURL(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	if dialect == db.DialectSQLite {
		conn, err := db.OpenSQLite(dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(conn, dialect); err != nil {
			conn.Close()
			return nil, nil, err
		}
		metrics.RegisterSQLDBMetrics(prometheus.DefaultRegisterer, conn)
		logger.Info().Str("path", dsn).Msg("using sqlite route store")
		s := sqlite.New(conn)
		return s, func() { _ = s.Close() }, nil
	}

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	metrics.RegisterPgxPoolMetrics(prometheus.DefaultRegisterer, pool)
	logger.Info().Msg("using postgres route store")
	return postgres.New(pool), pool.Close, nil
}

func generateKey() {
	key, err := crypto.GenerateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to generate key: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("SECRETS_KEY=%s\n", base64.StdEncoding.EncodeToString(key))
}
