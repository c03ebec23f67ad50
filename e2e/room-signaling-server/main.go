// Command room-signaling-server runs the signaling routes on an ephemeral
// port for browser and cross-language end-to-end tests. It prints
// "READY <port>" once listening.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/presence"
	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/signaling"
)

func main() {
	bindHost := envOrDefault("BIND_HOST", "127.0.0.1")
	port := envIntOrDefault("PORT", 0)

	listenAddr := net.JoinHostPort(bindHost, strconv.Itoa(port))
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "listen %s: %v\n", listenAddr, err)
		os.Exit(1)
	}

	var logOut io.Writer = io.Discard
	if os.Getenv("E2E_VERBOSE") != "" {
		logOut = os.Stderr
	}
	sig := newSignalingServer(slog.New(slog.NewTextHandler(logOut, nil)))

	srv := &http.Server{
		Handler:           sig.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	actualPort := ln.Addr().(*net.TCPAddr).Port
	fmt.Printf("READY %d\n", actualPort)

	select {
	case <-ctx.Done():
		_ = srv.Shutdown(context.Background())
		sig.Close()
		<-errCh
	case err := <-errCh:
		sig.Close()
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "http server error: %v\n", err)
			os.Exit(1)
		}
	}
}

// newSignalingServer accepts every origin and uses short keepalive timers so
// tests observe idle reaping quickly.
func newSignalingServer(logger *slog.Logger) *signaling.Server {
	reg := presence.NewRegistry()
	m := metrics.New()
	return signaling.NewServer(signaling.Config{
		Coordinator:  presence.NewCoordinator(reg, logger, m),
		Census:       presence.NewCensus(reg),
		Logger:       logger,
		Metrics:      m,
		IdleTimeout:  10 * time.Second,
		PingInterval: 2 * time.Second,
	})
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return fallback
}
