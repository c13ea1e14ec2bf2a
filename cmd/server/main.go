package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UkralStul/blog-web/internal/api"
	"github.com/UkralStul/blog-web/internal/comments"
	"github.com/UkralStul/blog-web/internal/config"
	"github.com/UkralStul/blog-web/internal/logger"
	"github.com/UkralStul/blog-web/internal/metrics"
	"github.com/UkralStul/blog-web/internal/mockapi"
	"github.com/UkralStul/blog-web/internal/query"
	"github.com/UkralStul/blog-web/internal/session"
	"github.com/UkralStul/blog-web/internal/storage"
	"github.com/UkralStul/blog-web/internal/storage/inmemory"
	"github.com/UkralStul/blog-web/internal/storage/postgres"
	redisstore "github.com/UkralStul/blog-web/internal/storage/redis"
	"github.com/UkralStul/blog-web/internal/web"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	backendMode := flag.String("backend", "", "Backend mode (rest or mock), overrides the config")
	storageType := flag.String("storage", "", "Session storage (in-memory, postgres or redis), overrides the config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg.Override(*backendMode, *storageType)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("Server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	m := metrics.New()

	client, err := newBackend(cfg, log, m)
	if err != nil {
		return err
	}

	store, closeStore, err := newSessionStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	q := query.New(query.Options{
		StaleTime:    cfg.Cache.StaleTime,
		MaxEntries:   cfg.Cache.MaxEntries,
		BatchWait:    cfg.Cache.BatchWait,
		FetchTimeout: cfg.Backend.Timeout,
	}, log, m)

	site, err := web.NewServer(web.Deps{
		API:      client,
		Query:    q,
		Comments: comments.NewComposer(client, q, log, m),
		Sessions: session.NewManager(store, client, log, m),
		Latest:   query.NewLatest(),
		Metrics:  m.Handler(),
		Cookie: web.CookieConfig{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.CookieSecure,
			MaxAge: cfg.Session.TTL,
		},
		Log: log,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           site,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server",
			zap.String("addr", srv.Addr),
			zap.String("backend", cfg.Backend.Mode),
			zap.String("storage", cfg.Session.Storage),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newBackend returns a client for the configured backend. In mock mode the
// in-process fake is seeded with demo data and served without a network hop.
func newBackend(cfg *config.Config, log *zap.Logger, obs api.Observer) (*api.Client, error) {
	opts := []api.Option{api.WithLogger(log), api.WithObserver(obs)}
	if cfg.Backend.Mode != "mock" {
		return api.New(cfg.Backend.URL, append(opts, api.WithTimeout(cfg.Backend.Timeout))...)
	}

	store := mockapi.NewStore()
	f, err := mockapi.Seed(store)
	if err != nil {
		return nil, err
	}
	log.Info("Mock backend seeded",
		zap.String("login", mockapi.DemoEmail),
		zap.String("password", mockapi.DemoPassword),
		zap.Int("posts", len(f.Posts)),
	)
	hc := &http.Client{Transport: mockapi.Transport{Handler: mockapi.NewServer(store)}, Timeout: cfg.Backend.Timeout}
	return api.New(mockapi.BaseURL, append(opts, api.WithHTTPClient(hc))...)
}

func newSessionStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Storage, func(), error) {
	nop := func() {}
	switch cfg.Session.Storage {
	case "postgres":
		s, err := postgres.New(cfg.Session.DSN, cfg.Session.TTL)
		if err != nil {
			return nil, nop, err
		}
		go every(ctx, 10*time.Minute, func() {
			n, err := s.Purge(ctx)
			if err != nil {
				log.Warn("Failed to purge sessions", zap.Error(err))
				return
			}
			log.Debug("Purged expired sessions", zap.Int64("count", n))
		})
		return s, nop, nil
	case "redis":
		s, err := redisstore.New(ctx, redisstore.Config{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
			TTL:      cfg.Session.TTL,
		})
		if err != nil {
			return nil, nop, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				log.Warn("Failed to close redis", zap.Error(err))
			}
		}, nil
	default:
		s := inmemory.New(cfg.Session.TTL)
		go every(ctx, 10*time.Minute, func() {
			log.Debug("Purged expired sessions", zap.Int("count", s.Purge()))
		})
		return s, nop, nil
	}
}

// every runs fn each interval until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func()) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}
}
