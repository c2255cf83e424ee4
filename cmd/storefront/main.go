// Command storefront runs the storefront shell: it restores the persisted
// session at startup, keeps it validated in the background, and serves the
// guarded pages. Business logic lives in the internal packages; main only
// wires them together.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"storefront/internal/backend"
	"storefront/internal/credential"
	"storefront/internal/guard"
	"storefront/internal/platform/config"
	"storefront/internal/platform/logger"
	"storefront/internal/platform/tracer"
	"storefront/internal/session/broadcast"
	"storefront/internal/session/interceptor"
	"storefront/internal/session/metrics"
	"storefront/internal/session/service"
	"storefront/internal/session/token"
	"storefront/internal/transport/web"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing storefront",
		"addr", cfg.Addr,
		"backend", cfg.BackendBaseURL,
		"revalidate_interval", cfg.RevalidateInterval,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mx := metrics.New(reg)

	var creds credential.Store
	if cfg.CredentialPath != "" {
		creds = credential.NewFileStore(cfg.CredentialPath)
	} else {
		log.Warn("no credential path configured, sessions will not survive restarts")
		creds = credential.NewMemoryStore()
	}

	bus := broadcast.New()

	// Spans go to whatever provider the process was started with; without one
	// the global provider discards them.
	tr := tracer.NewOTel()

	// The manager talks to the backend over a plain client; only application
	// data traffic goes through the intercepting one.
	api := backend.New(cfg.BackendBaseURL,
		backend.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		backend.WithLogger(log),
		backend.WithTracer(tr),
	)
	sessions := service.NewManager(creds, api, bus,
		service.WithLogger(log),
		service.WithMetrics(mx),
		service.WithTracer(tr),
		service.WithRevalidateInterval(cfg.RevalidateInterval),
	)

	data := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: interceptor.New(nil, creds, bus,
			interceptor.WithLogger(log),
			interceptor.WithMetrics(mx),
		),
	}

	g := guard.New(sessions, creds, bus,
		guard.WithLoginPath(cfg.LoginPath),
		guard.WithLogger(log),
		guard.WithMetrics(mx),
	)

	handler := web.NewHandler(sessions, data, cfg.BackendBaseURL, cfg.LoginPath, log)
	router := web.NewRouter(handler, g, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		err := sessions.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	group.Go(func() error {
		bctx, cancel := context.WithTimeout(ctx, cfg.HTTPTimeout)
		defer cancel()
		if err := sessions.Bootstrap(bctx); err != nil {
			log.Warn("session bootstrap failed, starting anonymous", "error", err)
		}
		snap := sessions.Snapshot()
		log.Info("session resolved", "state", snap.State.String())
		if snap.Authenticated() {
			if cred, err := creds.Get(bctx); err == nil {
				if expiry, bounded := token.ExpiryTime(cred); bounded {
					log.Info("credential expiry", "expires_at", expiry, "remaining", time.Until(expiry).Round(time.Second))
				}
			}
		}
		return nil
	})

	group.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("storefront exited", "error", err)
		os.Exit(1)
	}
	log.Info("storefront stopped")
}
