// ABOUTME: Channel is the per-connection orchestrator: framer, header parser, queue, and event bus.
// ABOUTME: One Channel corresponds to one TCP connection and one in-progress call.

package agi

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Options configures a Channel's behavior, overriding the build-time
// queue defaults.
type Options struct {
	MaxQueueSize int
	Logger       *slog.Logger
}

// Channel is one call's control session: the AGI header block, followed
// by a serialized command/response exchange, over one TCP connection.
// Construction does not block; call Run to pump the connection.
type Channel struct {
	conn   net.Conn
	logger *slog.Logger

	framer *framer
	bus    *eventBus
	queue  *commandQueue

	mu       sync.RWMutex
	metadata *CallMetadata
	ready    bool
	alive    bool

	readyCh chan struct{}
	doneCh  chan struct{}
}

// NewChannel wraps conn as a FastAGI channel. The caller must invoke Run
// in its own goroutine to begin pumping the connection; commands
// submitted before Run observes the ready signal block until headers
// finish parsing.
func NewChannel(conn net.Conn, opts Options) *Channel {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "channel", "remote", conn.RemoteAddr().String())

	bus := newEventBus(logger)
	c := &Channel{
		conn:    conn,
		logger:  logger,
		framer:  newFramer(),
		bus:     bus,
		alive:   true,
		readyCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	c.queue = newCommandQueue(conn, bus, logger, opts.MaxQueueSize)
	return c
}

// Run pumps the connection: reads bytes, feeds the Framer, and routes
// each emitted record to the header parser (while not yet ready) or the
// response parser (afterward). Run blocks until the connection closes or
// a protocol error terminates the channel, then it terminates the
// command queue and returns.
func (c *Channel) Run() error {
	reader := bufio.NewReader(c.conn)
	buf := make([]byte, 4096)

	defer c.terminate(ReasonChannelClosed)

	for {
		n, err := reader.Read(buf)
		if n > 0 {
			for _, record := range c.framer.feed(buf[:n]) {
				if procErr := c.handleRecord(record); procErr != nil {
					c.bus.Publish(EventError, ErrorPayload{Err: procErr})
					return procErr
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			ioErr := newIOError("", err)
			c.bus.Publish(EventError, ErrorPayload{Err: ioErr})
			return ioErr
		}
	}
}

func (c *Channel) handleRecord(record string) error {
	c.mu.RLock()
	ready := c.ready
	c.mu.RUnlock()

	if !ready {
		return c.handleHeaderRecord(record)
	}
	return c.handleResponseLine(record)
}

// handleHeaderRecord parses the INIT-state header block, then transitions
// the channel to WAITING and emits ready. No command is accepted before
// this transition.
func (c *Channel) handleHeaderRecord(record string) error {
	meta, err := parseHeaderRecord(record)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.metadata = meta
	c.ready = true
	c.mu.Unlock()

	close(c.readyCh)
	c.bus.Publish(EventReady, nil)
	c.logger.Info("channel ready", "uniqueid", meta.UniqueID, "channel", meta.Channel)
	return nil
}

// handleResponseLine parses one WAITING-state line. A HANGUP line
// terminates the channel; it is never treated as a response to the
// in-flight command, even if one happens to be outstanding.
func (c *Channel) handleResponseLine(line string) error {
	c.bus.Publish(EventRecv, RecvPayload{Line: line})

	resp, isHangup, err := parseResponseLine(line)
	if err != nil {
		return err
	}
	if isHangup {
		c.logger.Info("received unsolicited hangup")
		c.terminate(ReasonHangup)
		return nil
	}

	c.bus.Publish(EventResponse, ResponsePayload{Response: resp})
	c.queue.deliverResponse(resp)
	return nil
}

// terminate transitions the channel to dead state and drains the queue.
// Idempotent; safe to call from Run's deferred cleanup and from an
// inbound HANGUP line.
func (c *Channel) terminate(reason CloseReason) {
	c.mu.Lock()
	wasAlive := c.alive
	c.alive = false
	c.mu.Unlock()

	c.queue.terminate(reason)

	if wasAlive {
		if reason == ReasonHangup {
			c.bus.Publish(EventHangup, nil)
		}
		c.bus.Publish(EventClose, ClosePayload{Reason: reason})
		close(c.doneCh)
		c.bus.Close()
	}
}

// Close terminates the channel from outside the read loop, e.g. when the
// listener is shutting down. Idempotent.
func (c *Channel) Close() error {
	c.terminate(ReasonChannelClosed)
	return c.conn.Close()
}

// Submit sends a command and blocks for its response. A nil timeout
// selects the verb's context-sensitive default. Header parsing and
// command processing are disjoint: a command submitted before the ready
// signal fires blocks here until it does, rather than reaching the queue
// (and the socket) while headers are still being consumed.
func (c *Channel) Submit(ctx context.Context, command string, timeout *time.Duration) (*Response, error) {
	select {
	case <-c.readyCh:
	case <-c.doneCh:
		return nil, newChannelDeadError(command, ReasonChannelClosed)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return c.queue.submit(ctx, command, timeout)
}

// ClearCommandQueue drains every pending (not in-flight) command,
// rejecting each with a manually-cleared error, and returns the count.
func (c *Channel) ClearCommandQueue() int {
	return c.queue.clear()
}

// QueueStats returns a snapshot of the command queue.
func (c *Channel) QueueStats() (size int, processing bool, oldestAgeMs int64) {
	s := c.queue.stats()
	return s.Size, s.Processing, s.OldestAgeMs
}

// IsAlive reports whether the channel is still accepting commands.
func (c *Channel) IsAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.alive
}

// Ready blocks until the header block has finished parsing, or ctx is
// cancelled first.
func (c *Channel) Ready(ctx context.Context) error {
	select {
	case <-c.readyCh:
		return nil
	case <-c.doneCh:
		return fmt.Errorf("channel closed before headers completed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the channel terminates.
func (c *Channel) Done() <-chan struct{} {
	return c.doneCh
}

// Metadata returns the CallMetadata parsed from the header block. Call
// after Ready returns; the fields are immutable from that point on.
func (c *Channel) Metadata() *CallMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metadata
}

// Subscribe registers a subscriber for the given EventType; the
// subscription is released automatically when ctx is cancelled.
func (c *Channel) Subscribe(ctx context.Context, evt EventType) <-chan Event {
	ch, _ := c.bus.Subscribe(ctx, evt)
	return ch
}
