package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/Movigation/moviesir-session/internal/config"
	"github.com/Movigation/moviesir-session/internal/logging"
	"github.com/Movigation/moviesir-session/internal/metrics"
	"github.com/Movigation/moviesir-session/oauthprovider"
	"github.com/Movigation/moviesir-session/server"
	"github.com/Movigation/moviesir-session/storage"
	"github.com/Movigation/moviesir-session/storage/postgres"
	"github.com/Movigation/moviesir-session/tenants"
	"github.com/common-nighthawk/go-figure"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("error running server")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logging.Setup(c.GetEnv(), c.GetLogLevel())
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backend, closeStorage, err := openStorage(ctx, c)
	if err != nil {
		return err
	}
	defer closeStorage()

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	profiles := tenants.Defaults(c)
	runtimes := make([]*server.Runtime, 0, len(profiles))
	for _, t := range profiles {
		rt, err := server.NewRuntime(ctx, t, backend, c)
		if err != nil {
			return fmt.Errorf("tenant %s: %w", t.ID, err)
		}
		runtimes = append(runtimes, rt)
	}

	registry, err := oauthprovider.NewRegistry(c)
	if err != nil {
		return err
	}
	flow, err := oauthprovider.NewFlow(registry, oauthprovider.NewInMemoryFlowRepo())
	if err != nil {
		return err
	}

	handler, err := server.New(c, tenants.NewInMemoryRepo(profiles...), runtimes,
		server.WithOAuthFlow(flow),
		server.WithGatherer(reg),
	)
	if err != nil {
		return err
	}

	srv := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- listenAndServe(srv) }()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(srv)
}

// openStorage selects the client storage backend. The returned func releases it.
func openStorage(ctx context.Context, c config.Config) (storage.Storage, func(), error) {
	noop := func() {}
	switch backend := c.GetStorageBackend(); backend {
	case "memory":
		return storage.NewMemoryStorage(), noop, nil
	case "file":
		fs, err := storage.NewFileStorage(c.GetDataFolder(), c.GetStorageSecret())
		if err != nil {
			return nil, noop, fmt.Errorf("file storage: %w", err)
		}
		return fs, noop, nil
	case "redis":
		client, err := storage.DialRedis(ctx, strings.TrimPrefix(c.GetRedisURL(), "redis://"), c.GetRedisPassword())
		if err != nil {
			return nil, noop, err
		}
		return storage.NewRedisStorage(client, ""), func() { _ = client.Close() }, nil
	case "postgres":
		store, err := postgres.Open(ctx, c.GetDatabaseURL())
		if err != nil {
			return nil, noop, fmt.Errorf("postgres storage: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", backend)
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
