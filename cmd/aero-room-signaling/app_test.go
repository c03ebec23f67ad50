package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/config"
	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/httpserver"
)

func startTestApp(t *testing.T, cfg config.Config) (*app, *httptest.Server) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(cfg, logger, httpserver.BuildInfo{Commit: "abc"})
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	ts := httptest.NewServer(a.http.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(a.signaling.Close)
	return a, ts
}

func testAppConfig() config.Config {
	return config.Config{
		ListenAddr:      "127.0.0.1:0",
		Mode:            config.ModeDev,
		ShutdownTimeout: 2 * time.Second,
		MaxMessageBytes: config.DefaultMaxMessageBytes,
		SendQueueBytes:  config.DefaultSendQueueBytes,
		WSIdleTimeout:   config.DefaultWSIdleTimeout,
		WSPingInterval:  config.DefaultWSPingInterval,
		WSWriteTimeout:  config.DefaultWSWriteTimeout,
	}
}

func readBody(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestApp_MetricsReflectPresence(t *testing.T) {
	a, ts := startTestApp(t, testAppConfig())

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"join","room":"lobby","peerId":"alice"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, data, err := conn.ReadMessage(); err != nil || string(data) != `{"type":"peers","peers":[]}` {
		t.Fatalf("read=(%s, %v)", data, err)
	}

	status, body := readBody(t, ts.URL+"/metrics")
	if status != http.StatusOK {
		t.Fatalf("status=%d", status)
	}
	for _, want := range []string{
		"# TYPE aero_room_signaling_events_total counter",
		`aero_room_signaling_events_total{event="peer_joined"} 1`,
		`aero_room_signaling_events_total{event="ws_connection_opened"} 1`,
		"aero_room_signaling_rooms 1",
		"aero_room_signaling_peers 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}

	if rooms, peers := a.census.Totals(); rooms != 1 || peers != 1 {
		t.Fatalf("totals=(%d, %d)", rooms, peers)
	}
}

func TestApp_StatsAndOperationalRoutes(t *testing.T) {
	_, ts := startTestApp(t, testAppConfig())

	if status, body := readBody(t, ts.URL+"/stats"); status != http.StatusOK || strings.TrimSpace(body) != `{"rooms":0,"roomDetails":{},"totalPeers":0}` {
		t.Fatalf("stats=(%d, %s)", status, body)
	}
	if status, _ := readBody(t, ts.URL+"/healthz"); status != http.StatusOK {
		t.Fatalf("healthz status=%d", status)
	}
	if status, body := readBody(t, ts.URL+"/version"); status != http.StatusOK || !strings.Contains(body, `"abc"`) {
		t.Fatalf("version=(%d, %s)", status, body)
	}
}

func TestApp_OriginPolicyGuardsUpgrades(t *testing.T) {
	cfg := testAppConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	_, ts := startTestApp(t, cfg)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatalf("expected cross-origin upgrade to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("resp=%v, want 403", resp)
	}

	header.Set("Origin", "https://app.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("allowed origin dial: %v", err)
	}
	_ = conn.Close()

	// Non-browser clients send no Origin header.
	conn, _, err = websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("no-origin dial: %v", err)
	}
	_ = conn.Close()
}

func TestResolveBuildInfo_PrefersInjectedValues(t *testing.T) {
	commit, builtAt := resolveBuildInfo("deadbeef", "2024-01-01T00:00:00Z")
	if commit != "deadbeef" || builtAt != "2024-01-01T00:00:00Z" {
		t.Fatalf("resolveBuildInfo=(%q, %q)", commit, builtAt)
	}
}
