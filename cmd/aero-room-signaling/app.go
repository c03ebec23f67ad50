package main

import (
	"log/slog"

	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/config"
	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/httpserver"
	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/presence"
	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/signaling"
)

// app is the fully wired process: presence core, WebSocket transport and the
// HTTP server carrying both plus the operational endpoints.
type app struct {
	http      *httpserver.Server
	signaling *signaling.Server
	census    *presence.Census
	metrics   *metrics.Metrics
}

func newApp(cfg config.Config, logger *slog.Logger, build httpserver.BuildInfo) (*app, error) {
	srv, err := httpserver.New(cfg, logger, build)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	reg := presence.NewRegistry()
	census := presence.NewCensus(reg)

	sig := signaling.NewServer(signaling.Config{
		Coordinator:     presence.NewCoordinator(reg, logger, m),
		Census:          census,
		Logger:          logger,
		Metrics:         m,
		Middleware:      srv.WithOriginPolicy,
		MaxMessageBytes: cfg.MaxMessageBytes,
		SendQueueBytes:  cfg.SendQueueBytes,
		IdleTimeout:     cfg.WSIdleTimeout,
		PingInterval:    cfg.WSPingInterval,
		WriteTimeout:    cfg.WSWriteTimeout,
	})
	sig.RegisterRoutes(srv.Mux())

	// Expose internal counters in Prometheus' text format.
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(m, census))

	return &app{http: srv, signaling: sig, census: census, metrics: m}, nil
}
