package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	secrets "github.com/panyam/secrets"
	"github.com/panyam/secrets/config"
	secretsgrpc "github.com/panyam/secrets/grpc"
	"github.com/panyam/secrets/oauth2"
)

// main wires the stores, the service and the transports, then waits for a
// signal and shuts everything down.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	slog.SetDefault(newLogger(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	b := &backends{}
	defer b.Close()

	identities, err := b.identityStore(ctx, cfg)
	if err != nil {
		return err
	}
	sessionStore, expire, err := b.sessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	go runExpirer(ctx, expire, 10*time.Minute)

	sessions := secrets.NewSessionManager(sessionStore)
	sessions.Lifetime = cfg.Lifetime()

	service := &secrets.Service{
		Store:    identities,
		Sessions: sessions,
		Authenticator: &secrets.Authenticator{
			Store: identities,
			Cost:  cfg.BcryptCost,
		},
	}
	service.EnsureDefaults()

	app := &secrets.WebApp{
		Service:      service,
		CookieName:   cfg.SessionCookieName,
		CookieSecure: cfg.CookieSecure,
	}
	app.EnsureDefaults()
	if cfg.FederatedEnabled() {
		app.Provider = newProvider(cfg, app)
		slog.Info("federated login enabled", "provider", cfg.OAuthProvider)
	}

	router := app.Router()
	router.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 2)
	go func() {
		slog.Info("starting http server", "addr", srv.Addr, "identity_store", cfg.IdentityStore, "session_store", cfg.SessionStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		grpcServer = newGRPCServer(service.Gate)
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		go func() {
			slog.Info("starting grpc server", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				errs <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errs:
		return err
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	return srv.Shutdown(shutdownCtx)
}

func newProvider(cfg *config.Config, app *secrets.WebApp) *oauth2.Provider {
	handleProfile := func(w http.ResponseWriter, r *http.Request, profile oauth2.Profile) {
		app.CompleteFederatedLogin(w, r, profile.Provider, profile.ID, profile.CallbackURL)
	}

	var provider *oauth2.Provider
	if cfg.OAuthProvider == "github" {
		provider = oauth2.NewGithubProvider(cfg.OAuthClientID, cfg.OAuthClientSecret, cfg.OAuthCallbackURL, handleProfile)
	} else {
		provider = oauth2.NewGoogleProvider(cfg.OAuthClientID, cfg.OAuthClientSecret, cfg.OAuthCallbackURL, handleProfile)
	}
	if cfg.OAuthUserInfoURL != "" {
		provider.UserInfoURL = cfg.OAuthUserInfoURL
	}
	if cfg.OAuthStateSecret != "" {
		provider.StateSecret = []byte(cfg.OAuthStateSecret)
	} else {
		slog.Warn("OAUTH_STATE_SECRET not set, federated logins only work on a single instance")
	}
	provider.FailureURL = app.LoginURL
	provider.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	return provider
}

// newGRPCServer serves the health service behind the access gate. Other
// services register on the returned server.
func newGRPCServer(gate *secrets.AccessGate) *grpc.Server {
	healthMethods := []string{
		"/grpc.health.v1.Health/Check",
		"/grpc.health.v1.Health/Watch",
		"/grpc.health.v1.Health/List",
	}
	server := grpc.NewServer(
		grpc.UnaryInterceptor(secretsgrpc.UnaryGateInterceptor(secretsgrpc.NewInterceptorConfig(gate, healthMethods...))),
		grpc.StreamInterceptor(secretsgrpc.StreamGateInterceptor(secretsgrpc.NewInterceptorConfig(gate, healthMethods...))),
	)
	healthpb.RegisterHealthServer(server, health.NewServer())
	return server
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
