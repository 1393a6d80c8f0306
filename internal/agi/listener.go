// ABOUTME: Listener is the thin accept loop that turns TCP connections into Channels.
// ABOUTME: It is deliberately minimal: spawn, dedupe, observe. No AGI logic lives here.

package agi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/2389/fastagi/internal/dedupe"
)

// ListenerOptions configures a Listener.
type ListenerOptions struct {
	Addr         string
	MaxQueueSize int
	Logger       *slog.Logger

	// DedupeWindow is how long a uniqueid is remembered for duplicate
	// detection. Zero disables the dedupe cache.
	DedupeWindow time.Duration
	DedupeMax    int

	// OnChannel, when set, is invoked with each accepted Channel before
	// Run is called on it, letting the caller register its own
	// subscribers (audit logging, metrics) ahead of the first record.
	OnChannel func(*Channel)
}

// Listener accepts FastAGI connections and spawns one Channel per
// connection. It is an "external collaborator" from the protocol
// engine's point of view: the engine never listens on a socket itself.
type Listener struct {
	opts ListenerOptions
	ln   net.Listener

	logger *slog.Logger
	dedupe *dedupe.Cache

	mu       sync.Mutex
	channels map[*Channel]struct{}
	wg       sync.WaitGroup
}

// NewListener creates a Listener bound to opts.Addr. Call Serve to begin
// accepting connections.
func NewListener(opts ListenerOptions) (*Listener, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "listener")

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", opts.Addr, err)
	}

	l := &Listener{
		opts:     opts,
		ln:       ln,
		logger:   logger,
		channels: make(map[*Channel]struct{}),
	}
	if opts.DedupeWindow > 0 {
		l.dedupe = dedupe.New(opts.DedupeWindow, opts.DedupeMax)
	}
	return l, nil
}

// Addr returns the address the listener is bound to.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed. Each connection is handled in its own goroutine.
func (l *Listener) Serve(ctx context.Context) error {
	l.logger.Info("listener accepting connections", "addr", l.ln.Addr().String())

	go func() {
		<-ctx.Done()
		_ = l.ln.Close()
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				l.wg.Wait()
				return nil
			default:
				l.logger.Error("accept failed", "error", err)
				return fmt.Errorf("accept: %w", err)
			}
		}

		l.wg.Add(1)
		go l.handleConn(ctx, conn)
	}
}

func (l *Listener) handleConn(ctx context.Context, conn net.Conn) {
	defer l.wg.Done()

	ch := NewChannel(conn, Options{MaxQueueSize: l.opts.MaxQueueSize, Logger: l.logger})

	l.mu.Lock()
	l.channels[ch] = struct{}{}
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.channels, ch)
		l.mu.Unlock()
	}()

	if l.opts.OnChannel != nil {
		l.opts.OnChannel(ch)
	}

	go l.checkDuplicate(ctx, ch)
	go l.logQueueStats(ctx, ch)

	if err := ch.Run(); err != nil {
		l.logger.Warn("channel terminated with error", "remote", conn.RemoteAddr().String(), "error", err)
	}
}

// checkDuplicate waits for the channel to become ready, then checks its
// uniqueid against the dedupe cache. A collision is logged, not
// rejected: the engine has no opinion on what the caller does about a
// duplicate session, so the Listener only flags it.
func (l *Listener) checkDuplicate(ctx context.Context, ch *Channel) {
	if l.dedupe == nil {
		return
	}
	if err := ch.Ready(ctx); err != nil {
		return
	}
	meta := ch.Metadata()
	if meta == nil || meta.UniqueID == "" {
		return
	}
	if l.dedupe.CheckAndMark(meta.UniqueID) {
		l.logger.Warn("duplicate agi_uniqueid connected", "uniqueid", meta.UniqueID, "channel", meta.Channel)
	}
}

// logQueueStats periodically logs a queue/channel observability snapshot
// at Debug level.
func (l *Listener) logQueueStats(ctx context.Context, ch *Channel) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ch.Done():
			return
		case <-ticker.C:
			size, processing, oldestAgeMs := ch.QueueStats()
			l.logger.Debug("queue snapshot", "size", size, "processing", processing, "oldest_age_ms", oldestAgeMs)
		}
	}
}

// Shutdown closes every live channel and waits for handler goroutines to
// return, or until ctx is cancelled.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	channels := make([]*Channel, 0, len(l.channels))
	for ch := range l.channels {
		channels = append(channels, ch)
	}
	l.mu.Unlock()

	for _, ch := range channels {
		_ = ch.Close()
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if l.dedupe != nil {
			l.dedupe.Close()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
