// cmd/resolverd/main.go
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

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/cache"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/config"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/dereference"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/methods/jwk"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/methods/key"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/methods/registry"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/methods/web"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/resolver"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/server"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/signature"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/storage"
)

const userAgent = "registryaccord-resolver"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.close()

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           a.handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           server.NewMetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("resolverd starting", "addr", srv.Addr, "env", cfg.Env, "methods", a.resolver.Methods())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()
	go func() {
		logger.Info("metrics server starting", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	// graceful shutdown
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	} else {
		logger.Info("shutdown complete")
	}
}

// app holds the wired components and the resources to release on exit.
type app struct {
	handler  *server.Handler
	resolver *resolver.Resolver
	closers  []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
}

// newApp wires config -> registry store -> method resolvers -> resolver ->
// dereferencer -> signature protocol -> HTTP handler.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}

	store, err := openStore(ctx, cfg, a)
	if err != nil {
		return nil, err
	}

	methods := []resolver.MethodResolver{
		key.New(),
		jwk.New(),
		registry.New(cfg.RegistryMethod, store),
	}
	if cfg.UniversalResolverURL != "" {
		for _, m := range cfg.UniversalMethods {
			methods = append(methods, web.New(m, cfg.UniversalResolverURL, web.WithUserAgent(userAgent)))
		}
	}

	c, err := cache.New(cfg.CacheBackend, cfg.CachePath, cache.WithTTL(cfg.CacheTTL))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open cache: %w", err)
	}
	res, err := resolver.New(methods,
		resolver.WithCache(c),
		resolver.WithFailureCaching(cfg.CacheFailures),
		resolver.WithLogger(logger),
	)
	if err != nil {
		_ = c.Close()
		a.close()
		return nil, err
	}
	a.resolver = res
	a.closers = append(a.closers, res.Close)

	deref := dereference.New(res)
	tokens := signature.New(deref, signature.WithLogger(logger))

	h, err := server.New(cfg, server.Services{
		Resolver:     res,
		Dereferencer: deref,
		Tokens:       tokens,
		Store:        store,
	}, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.handler = h
	return a, nil
}

func openStore(ctx context.Context, cfg config.Config, a *app) (storage.Store, error) {
	switch cfg.RegistryBackend {
	case "postgres":
		pg, err := storage.NewPostgres(ctx, cfg.RegistryDSN)
		if err != nil {
			return nil, fmt.Errorf("open registry: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		return pg, nil
	default:
		return storage.NewMemory(), nil
	}
}
