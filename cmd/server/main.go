package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dash-proxy/internal/platform/config"
	"dash-proxy/internal/platform/logger"
	"dash-proxy/internal/platform/metrics"
	"dash-proxy/internal/playurl"
	"dash-proxy/internal/upstream"
	"dash-proxy/internal/videoproxy"
	"dash-proxy/internal/wbi"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	cfg, err := config.FromEnv()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	client := upstream.New(cfg.UpstreamAPIBase,
		upstream.WithTimeout(cfg.UpstreamTimeout),
		upstream.WithUserAgent(cfg.UserAgent),
		upstream.WithReferer(cfg.Referer),
		upstream.WithObserver(met),
	)
	resolver := playurl.NewResolver(client, wbi.NewKeyFetcher(client), wbi.Signer{}, log)
	svc := videoproxy.NewService(resolver, met)
	streamer := videoproxy.NewStreamer(client, cfg.StreamHostSuffixes, log, met)
	h := videoproxy.NewHandler(svc, streamer, log, cfg.PublicBaseURL, cfg.ProxyPathPrefix)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestID)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Method(http.MethodGet, "/metrics", met.Handler())
	r.Get("/health", h.Health)
	proxyRoutes := func(r chi.Router) {
		r.Get("/video-manifest", h.GetVideoManifest)
		r.Get("/manifest.mpd", h.GetMPD)
		r.Get("/stream", h.Stream)
	}
	if h.Prefix() == "" {
		r.Group(proxyRoutes)
	} else {
		r.Route(h.Prefix(), proxyRoutes)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"upstream", cfg.UpstreamAPIBase,
		"upstream_timeout", cfg.UpstreamTimeout.String(),
		"proxy_prefix", h.Prefix(),
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
