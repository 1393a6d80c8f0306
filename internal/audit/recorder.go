// ABOUTME: Recorder subscribes to a Channel's event bus and writes audit entries as commands resolve.
// ABOUTME: It is the only consumer that turns Channel events into persisted rows.

package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/fastagi/internal/agi"
)

// Recorder bridges one Channel's event stream into a Store.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger.With("component", "audit-recorder")}
}

// Attach subscribes to ch's lifecycle and command events and persists
// them to the Recorder's Store until ctx is cancelled or the channel
// closes. Call in its own goroutine.
func (r *Recorder) Attach(ctx context.Context, ch *agi.Channel) {
	readyCh := ch.Subscribe(ctx, agi.EventReady)
	processedCh := ch.Subscribe(ctx, agi.EventCommandProcessed)
	failedCh := ch.Subscribe(ctx, agi.EventCommandFailed)
	closeCh := ch.Subscribe(ctx, agi.EventClose)

	var uniqueID, channelName string

	for {
		select {
		case <-ctx.Done():
			return

		case <-readyCh:
			meta := ch.Metadata()
			if meta == nil {
				continue
			}
			uniqueID, channelName = meta.UniqueID, meta.Channel
			if err := r.store.RecordSessionStart(ctx, uniqueID, channelName, time.Now()); err != nil {
				r.logger.Warn("failed to record session start", "error", err)
			}

		case evt, ok := <-processedCh:
			if !ok {
				return
			}
			payload, ok := evt.Payload.(agi.CommandProcessedPayload)
			if !ok {
				continue
			}
			r.record(ctx, uniqueID, channelName, payload.Command, 200, payload.DurationMs, "")

		case evt, ok := <-failedCh:
			if !ok {
				return
			}
			payload, ok := evt.Payload.(agi.CommandFailedPayload)
			if !ok {
				continue
			}
			errText := ""
			if payload.Err != nil {
				errText = payload.Err.Error()
			}
			r.record(ctx, uniqueID, channelName, payload.Command, 0, 0, errText)

		case evt, ok := <-closeCh:
			if !ok {
				return
			}
			payload, _ := evt.Payload.(agi.ClosePayload)
			if uniqueID != "" {
				if err := r.store.RecordSessionEnd(ctx, uniqueID, string(payload.Reason), time.Now()); err != nil {
					r.logger.Warn("failed to record session end", "error", err)
				}
			}
			return
		}
	}
}

func (r *Recorder) record(ctx context.Context, uniqueID, channelName, command string, resultCode int, durationMs int64, errText string) {
	if uniqueID == "" {
		return
	}
	entry := Entry{
		UniqueID:   uniqueID,
		Channel:    channelName,
		Command:    command,
		ResultCode: resultCode,
		DurationMs: durationMs,
		Err:        errText,
		At:         time.Now(),
	}
	if err := r.store.RecordCommand(ctx, entry); err != nil {
		r.logger.Warn("failed to record command", "error", err, "command", command)
	}
}
