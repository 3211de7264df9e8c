package eventlog

import (
	"context"
	"log/slog"
	"time"

	"giftchain/core/events"
	"giftchain/observability"
)

// Recorder adapts a Store to events.Emitter. Events only reach it after the
// node has committed the operation that produced them.
type Recorder struct {
	store  *Store
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder wraps store. A nil logger falls back to slog.Default.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger, now: time.Now}
}

// Emit implements events.Emitter.
func (r *Recorder) Emit(evt events.Event) {
	if r == nil || r.store == nil || evt == nil {
		return
	}
	rendered := events.Render(evt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec, err := r.store.Append(ctx, rendered, r.now())
	observability.Events().RecordPersisted(err)
	if err != nil {
		r.logger.Error("persist event failed", "type", rendered.Type, "error", err)
		return
	}
	r.logger.Debug("event persisted", "type", rec.Type, "sequence", rec.Sequence)
}
