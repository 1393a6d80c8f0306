// ABOUTME: Entry point for fastagi-server, a FastAGI listener for Asterisk dialplans.
// ABOUTME: Loads config, opens the audit store, and runs the listener until signaled.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/fastagi/internal/agi"
	"github.com/2389/fastagi/internal/audit"
	"github.com/2389/fastagi/internal/config"
)

// version is set by goreleaser at build time.
var version = "dev"

const banner = `
  ____          _     _     ____  ____ ____
 |  __|__ _ ___| |_  /_\   / ___||_  _/ ___|
 | |_ / _' / __| __|//_\\ | |  _   | | |  _
 |  _| (_| \__ \ |_/  _  \| |_| |  | | |_| |
 |_|  \__,_|___/\__\_/ \_/ \____|  |_|\____|
`

func getConfigPath() string {
	if envPath := os.Getenv("FASTAGI_CONFIG"); envPath != "" {
		return envPath
	}
	if _, err := os.Stat("fastagi.yaml"); err == nil {
		return "fastagi.yaml"
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "fastagi.yaml"
	}
	return homeDir + "/.config/fastagi/fastagi.yaml"
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		cfg = config.Defaults()
		gray.Printf("    (no config at %s, using defaults)\n\n", configPath)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config: %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Listen: %s\n", cfg.Server.Addr)
	green.Print("    ▶ ")
	fmt.Printf("Audit:  %s\n", cfg.Audit.Path)
	fmt.Println()

	store, err := audit.Open(cfg.Audit.Path, logger)
	if err != nil {
		return fmt.Errorf("opening audit store: %w", err)
	}
	defer store.Close()

	recorder := audit.NewRecorder(store, logger)

	listener, err := agi.NewListener(agi.ListenerOptions{
		Addr:         cfg.Server.Addr,
		MaxQueueSize: cfg.Queue.MaxSize,
		Logger:       logger,
		DedupeWindow: 10 * time.Minute,
		DedupeMax:    1000,
		OnChannel: func(ch *agi.Channel) {
			go recorder.Attach(ctx, ch)
			go runDemoDialplan(ctx, ch, logger)
		},
	})
	if err != nil {
		return fmt.Errorf("creating listener: %w", err)
	}

	logger.Info("starting fastagi-server", "addr", listener.Addr().String(), "config", configPath)

	serveErr := make(chan error, 1)
	go func() { serveErr <- listener.Serve(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
		defer shutdownCancel()
		return listener.Shutdown(shutdownCtx)
	case err := <-serveErr:
		return err
	}
}

// runDemoDialplan is the stand-in dialplan application run against every
// connecting channel until a real one is wired in. It answers, announces
// itself, tags the channel with a variable, and hangs up, exercising the
// core verb surface end to end for anything that dials this listener.
func runDemoDialplan(ctx context.Context, ch *agi.Channel, logger *slog.Logger) {
	if err := ch.Ready(ctx); err != nil {
		return
	}

	if err := ch.Answer(ctx); err != nil {
		logger.Warn("demo dialplan: answer failed", "error", err)
		return
	}
	if err := ch.Verbose(ctx, "fastagi-server demo dialplan", 1); err != nil {
		logger.Warn("demo dialplan: verbose failed", "error", err)
	}
	if err := ch.SetVariable(ctx, "FASTAGI_DEMO", "1"); err != nil {
		logger.Warn("demo dialplan: set variable failed", "error", err)
	}
	if err := ch.HangupChannel(ctx); err != nil {
		logger.Warn("demo dialplan: hangup failed", "error", err)
	}
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{level: level}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{level: h.level, attrs: newAttrs, groups: h.groups}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{level: h.level, attrs: h.attrs, groups: newGroups}
}
