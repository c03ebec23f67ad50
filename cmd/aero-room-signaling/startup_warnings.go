package main

import (
	"log/slog"

	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/config"
	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/origin"
)

// Transport limits above these values weaken the relay's memory bounds.
const (
	largeMaxMessageBytes = 16 << 20
	largeSendQueueBytes  = 64 << 20
)

func logStartupWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if containsString(cfg.AllowedOrigins, origin.Wildcard) {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if !cfg.KeepaliveEnabled() {
		logger.Warn("startup warning: WebSocket keepalive is disabled; half-open connections keep their peers in rooms until the TCP connection fails",
			"warning_code", "ws_keepalive_disabled",
			"ws_idle_timeout", cfg.WSIdleTimeout,
			"mode", cfg.Mode,
		)
	}

	if cfg.MaxMessageBytes > largeMaxMessageBytes {
		logger.Warn("startup security warning: max message size is very large (increases per-message allocation risk)",
			"warning_code", "max_message_bytes_large",
			"max_message_bytes", cfg.MaxMessageBytes,
			"mode", cfg.Mode,
		)
	}
	if cfg.SendQueueBytes > largeSendQueueBytes {
		logger.Warn("startup security warning: send queue is very large (slow receivers can pin this much memory each)",
			"warning_code", "send_queue_bytes_large",
			"send_queue_bytes", cfg.SendQueueBytes,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.PublicBaseURL == "" {
		logger.Warn("startup warning: public base URL is unset while --mode=prod",
			"warning_code", "public_base_url_unset_in_prod",
			"mode", cfg.Mode,
		)
	}

	if err := cfg.ICEConfigError(); err != nil {
		logger.Warn("startup warning: ICE server configuration is invalid; /readyz will fail until it is fixed",
			"warning_code", "ice_config_invalid",
			"err", err,
		)
	}
}

// logOriginPolicy records which browser origins may open WebSockets and read
// /stats. Requests without an Origin header are always accepted.
func logOriginPolicy(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	policy := "allowlist"
	switch {
	case containsString(cfg.AllowedOrigins, origin.Wildcard):
		policy = "any"
	case len(cfg.AllowedOrigins) == 0:
		policy = "same-host"
	}
	logger.Info("origin policy: cross-origin requests not matching this policy get 403; set ALLOWED_ORIGINS to change it",
		"origin_policy", policy,
		"allowed_origins", cfg.AllowedOrigins,
	)
}

func containsString(xs []string, v string) bool {
	for _, s := range xs {
		if s == v {
			return true
		}
	}
	return false
}
