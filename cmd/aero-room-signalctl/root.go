package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/config"
)

const (
	envVarServerURL  = "AERO_ROOM_SIGNALING_URL"
	defaultServerURL = "http://127.0.0.1:9000"
)

type rootOptions struct {
	server   string
	origin   string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "aero-room-signalctl",
		Short:         "Inspect and exercise an aero room signaling relay",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	server := defaultServerURL
	if v, ok := os.LookupEnv(envVarServerURL); ok && strings.TrimSpace(v) != "" {
		server = strings.TrimSpace(v)
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", server, "relay base URL (env "+envVarServerURL+")")
	cmd.PersistentFlags().StringVar(&opts.origin, "origin", "", "Origin header to send (for relays with an origin allowlist)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	cmd.AddCommand(newStatsCmd(opts), newJoinCmd(opts))
	return cmd
}

func (o *rootOptions) header() http.Header {
	if o.origin == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Origin", o.origin)
	return h
}

// logger writes to the command's stderr so stdout stays machine readable.
func (o *rootOptions) logger(cmd *cobra.Command) (*slog.Logger, error) {
	level, err := config.ParseLogLevel(o.logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})), nil
}
