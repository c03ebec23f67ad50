package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/pflag"

	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/origin"
)

const (
	envVarConfigFile      = "AERO_ROOM_SIGNALING_CONFIG"
	envVarListenAddr      = "AERO_ROOM_SIGNALING_LISTEN_ADDR"
	envVarPublicBaseURL   = "AERO_ROOM_SIGNALING_PUBLIC_BASE_URL"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"
	envVarLogFormat       = "AERO_ROOM_SIGNALING_LOG_FORMAT"
	envVarLogLevel        = "AERO_ROOM_SIGNALING_LOG_LEVEL"
	envVarShutdownTimeout = "AERO_ROOM_SIGNALING_SHUTDOWN_TIMEOUT"
	envVarMode            = "AERO_ROOM_SIGNALING_MODE"

	envVarMaxMessageBytes = "AERO_ROOM_SIGNALING_MAX_MESSAGE_BYTES"
	envVarSendQueueBytes  = "AERO_ROOM_SIGNALING_SEND_QUEUE_BYTES"
	envVarWSIdleTimeout   = "AERO_ROOM_SIGNALING_WS_IDLE_TIMEOUT"
	envVarWSPingInterval  = "AERO_ROOM_SIGNALING_WS_PING_INTERVAL"
	envVarWSWriteTimeout  = "AERO_ROOM_SIGNALING_WS_WRITE_TIMEOUT"

	// Deployment variables understood by earlier releases of the relay. They
	// are combined into a listen address below the explicit listen-addr
	// setting.
	envVarBindHost = "BIND_HOST"
	envVarPort     = "SIGNALING_PORT"
)

const (
	DefaultBindHost        = "127.0.0.1"
	DefaultPort            = "9000"
	DefaultListenAddr      = DefaultBindHost + ":" + DefaultPort
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMode            = ModeDev

	DefaultMaxMessageBytes int64 = 1 << 20
	DefaultSendQueueBytes        = 1 << 20
	DefaultWSIdleTimeout         = 60 * time.Second
	DefaultWSPingInterval        = 20 * time.Second
	DefaultWSWriteTimeout        = 10 * time.Second
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr      string
	PublicBaseURL   string
	AllowedOrigins  []string
	Mode            Mode
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	// ConfigFile is the YAML file that was loaded, if any.
	ConfigFile string

	// WebSocket transport limits.
	MaxMessageBytes int64
	SendQueueBytes  int
	// WSIdleTimeout closes connections that send nothing (not even a pong) for
	// this long. Zero disables keepalive entirely.
	WSIdleTimeout  time.Duration
	WSPingInterval time.Duration
	WSWriteTimeout time.Duration

	// ICEServers is handed to browsers via /webrtc/ice. The relay itself never
	// performs ICE.
	ICEServers []webrtc.ICEServer

	iceConfigErr error
}

// ICEConfigError reports an invalid ICE server configuration. It is surfaced
// through /readyz rather than failing startup.
func (c Config) ICEConfigError() error {
	return c.iceConfigErr
}

// KeepaliveEnabled reports whether idle connections are reaped.
func (c Config) KeepaliveEnabled() bool {
	return c.WSIdleTimeout > 0
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	fs := pflag.NewFlagSet("aero-room-signaling", pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	fs.String("config", "", "YAML config file (env "+envVarConfigFile+")")
	fs.String("listen-addr", DefaultListenAddr, "HTTP listen address (host:port; env "+envVarListenAddr+", or "+envVarBindHost+"/"+envVarPort+")")
	fs.String("public-base-url", "", "Public base URL (optional; used for logging)")
	fs.String("allowed-origins", "", "Comma-separated list of allowed browser origins (env "+envVarAllowedOrigins+")")
	fs.String("mode", string(DefaultMode), "Run mode: dev or prod")
	fs.String("log-format", "", "Log format: text or json (default depends on mode)")
	fs.String("log-level", "", "Log level: debug, info, warn, error (default depends on mode)")
	fs.Duration("shutdown-timeout", DefaultShutdownTimeout, "Graceful shutdown timeout (e.g. 15s)")
	fs.Int64("max-message-bytes", DefaultMaxMessageBytes, "Max inbound WebSocket message size in bytes (env "+envVarMaxMessageBytes+")")
	fs.Int64("send-queue-bytes", DefaultSendQueueBytes, "Max queued outbound bytes per connection before dropping (env "+envVarSendQueueBytes+")")
	fs.Duration("ws-idle-timeout", DefaultWSIdleTimeout, "Close WebSocket connections idle for this long; 0 disables keepalive (env "+envVarWSIdleTimeout+")")
	fs.Duration("ws-ping-interval", DefaultWSPingInterval, "Send ping frames at this interval (must be < --ws-idle-timeout; env "+envVarWSPingInterval+")")
	fs.Duration("ws-write-timeout", DefaultWSWriteTimeout, "Per-frame WebSocket write deadline (env "+envVarWSWriteTimeout+")")
	fs.String("ice-servers-json", "", "ICE server JSON config ("+envICEServersJSON+")")
	fs.String("stun-urls", "", "comma-separated STUN URLs ("+envStunURLs+")")
	fs.String("turn-urls", "", "comma-separated TURN URLs ("+envTurnURLs+")")
	fs.String("turn-username", "", "TURN username ("+envTurnUsername+")")
	fs.String("turn-credential", "", "TURN credential ("+envTurnCredential+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	l := layers{lookup: lookup, fs: fs}

	configFile := l.str("", envVarConfigFile, "config")
	file, err := loadFile(configFile)
	if err != nil {
		return Config{}, err
	}

	listenAddr := DefaultListenAddr
	if file.ListenAddr != "" {
		listenAddr = file.ListenAddr
	}
	if addr, ok := legacyListenAddr(lookup); ok {
		listenAddr = addr
	}
	listenAddr = l.str(listenAddr, envVarListenAddr, "listen-addr")
	if _, _, err := net.SplitHostPort(listenAddr); err != nil {
		return Config{}, fmt.Errorf("invalid listen address %q: %w", listenAddr, err)
	}

	publicBaseURL := l.str(file.PublicBaseURL, envVarPublicBaseURL, "public-base-url")
	if publicBaseURL != "" {
		u, err := url.Parse(publicBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Config{}, fmt.Errorf("invalid public base URL %q (expected http(s)://host[:port])", publicBaseURL)
		}
	}

	allowedOrigins := file.AllowedOrigins
	if raw := l.str("", envVarAllowedOrigins, "allowed-origins"); raw != "" {
		allowedOrigins = splitCommaSeparated(raw)
	}
	allowedOrigins, err = parseAllowedOrigins(allowedOrigins)
	if err != nil {
		return Config{}, err
	}

	mode, err := parseMode(l.str(orDefault(file.Mode, string(DefaultMode)), envVarMode, "mode"))
	if err != nil {
		return Config{}, err
	}
	logFormat, err := parseLogFormat(orDefault(l.str(file.LogFormat, envVarLogFormat, "log-format"), defaultLogFormatForMode(mode)))
	if err != nil {
		return Config{}, err
	}
	logLevel, err := ParseLogLevel(orDefault(l.str(file.LogLevel, envVarLogLevel, "log-level"), defaultLogLevelForMode(mode)))
	if err != nil {
		return Config{}, err
	}

	shutdownTimeout, err := l.duration(file.ShutdownTimeout.or(DefaultShutdownTimeout), envVarShutdownTimeout, "shutdown-timeout")
	if err != nil {
		return Config{}, err
	}
	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("shutdown timeout must be > 0 (got %s)", shutdownTimeout)
	}

	maxMessageBytes := DefaultMaxMessageBytes
	if file.MaxMessageBytes != nil {
		maxMessageBytes = *file.MaxMessageBytes
	}
	maxMessageBytes, err = l.int64(maxMessageBytes, envVarMaxMessageBytes, "max-message-bytes")
	if err != nil {
		return Config{}, err
	}
	if maxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("max message bytes must be > 0 (got %d)", maxMessageBytes)
	}

	sendQueueBytes := int64(DefaultSendQueueBytes)
	if file.SendQueueBytes != nil {
		sendQueueBytes = int64(*file.SendQueueBytes)
	}
	sendQueueBytes, err = l.int64(sendQueueBytes, envVarSendQueueBytes, "send-queue-bytes")
	if err != nil {
		return Config{}, err
	}
	if sendQueueBytes <= 0 {
		return Config{}, fmt.Errorf("send queue bytes must be > 0 (got %d)", sendQueueBytes)
	}

	idleTimeout, err := l.duration(file.WSIdleTimeout.or(DefaultWSIdleTimeout), envVarWSIdleTimeout, "ws-idle-timeout")
	if err != nil {
		return Config{}, err
	}
	pingInterval, err := l.duration(file.WSPingInterval.or(DefaultWSPingInterval), envVarWSPingInterval, "ws-ping-interval")
	if err != nil {
		return Config{}, err
	}
	writeTimeout, err := l.duration(file.WSWriteTimeout.or(DefaultWSWriteTimeout), envVarWSWriteTimeout, "ws-write-timeout")
	if err != nil {
		return Config{}, err
	}
	if idleTimeout < 0 || pingInterval < 0 {
		return Config{}, errors.New("ws idle timeout and ping interval must be >= 0")
	}
	if idleTimeout > 0 && (pingInterval <= 0 || pingInterval >= idleTimeout) {
		return Config{}, fmt.Errorf("ws ping interval (%s) must be > 0 and < ws idle timeout (%s)", pingInterval, idleTimeout)
	}
	if writeTimeout <= 0 {
		return Config{}, fmt.Errorf("ws write timeout must be > 0 (got %s)", writeTimeout)
	}

	iceServers, iceErr := iceSources{
		JSON:           l.str("", envICEServersJSON, "ice-servers-json"),
		StunURLs:       l.str(strings.Join(file.StunURLs, ","), envStunURLs, "stun-urls"),
		TurnURLs:       l.str(strings.Join(file.TurnURLs, ","), envTurnURLs, "turn-urls"),
		TurnUsername:   l.str(file.TurnUsername, envTurnUsername, "turn-username"),
		TurnCredential: l.str(file.TurnCredential, envTurnCredential, "turn-credential"),
		File:           file.ICEServers,
	}.resolve()

	return Config{
		ListenAddr:      listenAddr,
		PublicBaseURL:   publicBaseURL,
		AllowedOrigins:  allowedOrigins,
		Mode:            mode,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		ShutdownTimeout: shutdownTimeout,
		ConfigFile:      configFile,
		MaxMessageBytes: maxMessageBytes,
		SendQueueBytes:  int(sendQueueBytes),
		WSIdleTimeout:   idleTimeout,
		WSPingInterval:  pingInterval,
		WSWriteTimeout:  writeTimeout,
		ICEServers:      iceServers,
		iceConfigErr:    iceErr,
	}, nil
}

// layers resolves a single setting across env and flags. The value passed in
// already reflects the built-in default and the config file.
type layers struct {
	lookup func(string) (string, bool)
	fs     *pflag.FlagSet
}

func (l layers) str(value, envKey, flagName string) string {
	value = envOrDefault(l.lookup, envKey, value)
	if l.fs.Changed(flagName) {
		value, _ = l.fs.GetString(flagName)
	}
	return strings.TrimSpace(value)
}

func (l layers) duration(value time.Duration, envKey, flagName string) (time.Duration, error) {
	if raw, ok := l.lookup(envKey); ok && strings.TrimSpace(raw) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", envKey, raw, err)
		}
		value = d
	}
	if l.fs.Changed(flagName) {
		return l.fs.GetDuration(flagName)
	}
	return value, nil
}

func (l layers) int64(value int64, envKey, flagName string) (int64, error) {
	if raw, ok := l.lookup(envKey); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", envKey, raw, err)
		}
		value = n
	}
	if l.fs.Changed(flagName) {
		return l.fs.GetInt64(flagName)
	}
	return value, nil
}

// legacyListenAddr combines BIND_HOST and SIGNALING_PORT when either is set.
func legacyListenAddr(lookup func(string) (string, bool)) (string, bool) {
	host := envOrDefault(lookup, envVarBindHost, "")
	port := envOrDefault(lookup, envVarPort, "")
	if strings.TrimSpace(host) == "" && strings.TrimSpace(port) == "" {
		return "", false
	}
	return net.JoinHostPort(orDefault(strings.TrimSpace(host), DefaultBindHost), orDefault(strings.TrimSpace(port), DefaultPort)), true
}

func parseAllowedOrigins(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		out = append(out, entry)
	}
	if _, err := origin.NewPolicy(out); err != nil {
		return nil, fmt.Errorf("%s: %w", envVarAllowedOrigins, err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg Config, w io.Writer) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(w, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func defaultLogFormatForMode(mode Mode) string {
	if mode == ModeProd {
		return string(LogFormatJSON)
	}
	return string(LogFormatText)
}

func defaultLogLevelForMode(mode Mode) string {
	if mode == ModeProd {
		return "info"
	}
	return "debug"
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

// ParseLogLevel accepts debug, info, warn (or warning) and error, ignoring case
// and surrounding space.
func ParseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}
