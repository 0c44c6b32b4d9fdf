// Package config turns command line arguments and CALCD_* environment
// variables into the settings a server process runs with.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"socketcalc/server"
	"socketcalc/server/domain"
	"socketcalc/utils"
)

var (
	ErrInvalidArgs = errors.New("config: expected <host> <port>")
	ErrInvalidPort = errors.New("config: port must be an integer between 0 and 65535")
	ErrFlags       = errors.New("config: invalid flags")
)

const (
	EnvMode         = "CALCD_MODE"
	EnvHandler      = "CALCD_HANDLER"
	EnvIdleTimeout  = "CALCD_IDLE_TIMEOUT"
	EnvWriteTimeout = "CALCD_WRITE_TIMEOUT"
	EnvMaxConns     = "CALCD_MAX_CONNS"
	EnvLogLevel     = "CALCD_LOG_LEVEL"
	EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

type Config struct {
	Host string
	Port int

	Mode    server.Mode
	Handler domain.HandlerKind

	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	MaxConns     int

	LogLevel     slog.Level
	OTLPEndpoint string
}

// Usage writes the synopsis and flag defaults of fs to w.
func Usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, "usage: %s [flags] <host> <port>\n", fs.Name())
	fs.SetOutput(w)
	fs.PrintDefaults()
}

// NewFlagSet declares the server flags on a fresh FlagSet, each defaulting
// from its environment variable.
func NewFlagSet(name string, cfg *Config) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar((*string)(&cfg.Mode), "mode", utils.GetEnvDefault(EnvMode, string(server.ModeMultiplex)),
		"concurrency strategy: iterative, threaded, multiplex or websocket")
	fs.StringVar((*string)(&cfg.Handler), "handler", utils.GetEnvDefault(EnvHandler, string(domain.HandlerCalculator)),
		"request handler: calc or echo")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", utils.GetEnvDuration(EnvIdleTimeout, 0),
		"close connections without a request for this long (0 disables)")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", utils.GetEnvDuration(EnvWriteTimeout, 5*time.Second),
		"give up flushing a response after this long (multiplex)")
	fs.IntVar(&cfg.MaxConns, "max-conns", utils.GetEnvInt(EnvMaxConns, 0),
		"maximum concurrent connections (threaded, 0 is unbounded)")
	fs.TextVar(&cfg.LogLevel, "log-level", defaultLogLevel(), "debug, info, warn or error")
	return fs
}

// Parse reads flags and the positional <host> <port> from args, which
// excludes the program name.
func Parse(args []string) (Config, error) {
	var cfg Config
	fs := NewFlagSet("calcd", &cfg)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return Config{}, err
		}
		return Config{}, fmt.Errorf("%w: %w", ErrFlags, err)
	}

	host, port, err := ParseEndpoint(fs.Args())
	if err != nil {
		return Config{}, err
	}
	cfg.Host, cfg.Port = host, port

	if _, err := server.ParseMode(string(cfg.Mode)); err != nil {
		return Config{}, err
	}
	if _, err := domain.NewHandler(cfg.Handler); err != nil {
		return Config{}, err
	}
	if cfg.MaxConns < 0 {
		return Config{}, fmt.Errorf("%w: max-conns must not be negative", ErrFlags)
	}
	cfg.OTLPEndpoint = utils.GetEnvDefault(EnvOTLPEndpoint, "")
	return cfg, nil
}

// ParseEndpoint validates exactly two positional arguments: a host and a
// numeric port.
func ParseEndpoint(args []string) (string, int, error) {
	if len(args) != 2 {
		return "", 0, fmt.Errorf("%w: got %d arguments", ErrInvalidArgs, len(args))
	}
	port, err := strconv.Atoi(args[1])
	if err != nil || port < 0 || port > 65535 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidPort, args[1])
	}
	return args[0], port, nil
}

func defaultLogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(utils.GetEnvDefault(EnvLogLevel, "info"))); err != nil {
		return slog.LevelInfo
	}
	return level
}
