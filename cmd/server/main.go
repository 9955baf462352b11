// Attestation bot server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/byteball/attestation-kit/internal/api"
	"github.com/byteball/attestation-kit/internal/attestation"
	"github.com/byteball/attestation-kit/internal/chat"
	"github.com/byteball/attestation-kit/internal/cleanup"
	"github.com/byteball/attestation-kit/internal/config"
	"github.com/byteball/attestation-kit/internal/gate"
	"github.com/byteball/attestation-kit/internal/health"
	"github.com/byteball/attestation-kit/internal/ledger"
	"github.com/byteball/attestation-kit/internal/lifecycle"
	"github.com/byteball/attestation-kit/internal/middleware"
	"github.com/byteball/attestation-kit/internal/shared"
	"github.com/byteball/attestation-kit/internal/store"
	"github.com/byteball/attestation-kit/internal/wallet"
	"github.com/byteball/attestation-kit/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "testnet", cfg.Testnet, "local_ledger", cfg.UseLocalLedger())

	repo, err := store.NewSQLite(cfg.DBPath, shared.RetryPolicy{
		MaxRetries: cfg.DBMaxRetries,
		BaseDelay:  cfg.DBRetryBaseDelay,
	})
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	publisher, err := newLedger(cfg, repo, logger)
	if err != nil {
		slog.Error("Failed to initialize ledger client", "error", err)
		os.Exit(1)
	}

	verifier := wallet.NewVerifier()
	orders := lifecycle.NewManager(repo, cfg.AllowDuplicateOrders)
	pairing := lifecycle.Pairing{PubKey: cfg.DevicePubKey, Hub: cfg.Hub, Testnet: cfg.Testnet}

	clientGate := gate.New()
	registry := chat.NewRegistry()
	gateway := chat.NewGateway(registry, originPatterns(cfg.AllowedOrigins), logger)

	dispatcher := attestation.NewDispatcher(attestation.Deps{
		Gate:      clientGate,
		Sessions:  repo,
		Orders:    orders,
		Verifier:  verifier,
		Addresses: verifier,
		Ledger:    publisher,
		Messenger: gateway,
		Logger:    logger,
	})
	attestation.LogEvents(dispatcher.Events(), logger)
	dispatcher.Events().On(attestation.KindAddressAdded, attestation.NewOrderBinder(orders, gateway, logger))
	gateway.SetHandler(dispatcher)

	baseHandler := api.NewHandler(repo, orders, pairing, verifier)
	orderHandler := api.NewOrderHandler(baseHandler)
	healthHandler := api.NewHealthHandler(repo, cfg.HealthCheckTimeout)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	healthHandler.RegisterHealth(r)

	r.Group(func(r chi.Router) {
		r.Use(middleware.OperatorToken(cfg.AdminToken))
		orderHandler.RegisterRoutes(r)
	})

	r.Get("/ws/chat", gateway.ServeHTTP)

	r.Handle("/*", web.SPAHandler())

	// WriteTimeout stays 0 so chat sockets are not cut.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Idle sessions lose their sockets too; a reconnect starts a fresh conversation.
	cleanup.NewSweeper(repo, clientGate, cfg.SessionTTL, registry.CloseClient).Start(ctx, 0)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.GRPCPort != "" {
		healthServer := health.NewServer(repo, cfg.HealthCheckTimeout, logger)
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			slog.Error("Failed to listen for gRPC health", "port", cfg.GRPCPort, "error", err)
			os.Exit(1)
		}
		g.Go(func() error { return healthServer.Serve(lis) })
		g.Go(func() error {
			healthServer.Watch(gctx, 10*time.Second)
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			healthServer.Stop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func newLedger(cfg *config.Config, repo *store.SQLiteStore, logger *slog.Logger) (ledger.Client, error) {
	if !cfg.UseLocalLedger() {
		slog.Info("Publishing attestations to remote node", "url", cfg.LedgerURL)
		return ledger.NewHTTPClient(cfg.LedgerURL, cfg.LedgerTimeout, logger,
			ledger.WithRetries(3, 500*time.Millisecond)), nil
	}

	key, err := wallet.LoadKey(cfg.AttestorKey)
	if err != nil {
		return nil, err
	}
	local := ledger.NewLocal(key, repo, logger)
	slog.Info("Signing attestations locally", "attestor", local.Attestor())
	return local, nil
}

// originPatterns converts ALLOWED_ORIGINS into websocket host patterns.
func originPatterns(origins []string) []string {
	return lo.Map(origins, func(origin string, _ int) string {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			return u.Host
		}
		return origin
	})
}
