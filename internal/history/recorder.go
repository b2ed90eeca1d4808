package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/procdash/internal/manager"
)

const sendTimeout = 5 * time.Second

// Recorder forwards manager events to sinks. Sink failures are logged and do
// not stop the recorder.
type Recorder struct {
	sinks []Sink
	log   *slog.Logger
}

func NewRecorder(log *slog.Logger, sinks ...Sink) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{sinks: sinks, log: log}
}

// Run consumes events until the channel is closed or ctx is done.
func (r *Recorder) Run(ctx context.Context, events <-chan manager.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.record(ctx, FromManager(ev))
		}
	}
}

func (r *Recorder) record(ctx context.Context, e Event) {
	for _, s := range r.sinks {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		if err := s.Send(sctx, e); err != nil {
			r.log.Warn("history sink failed", slog.String("entry", e.Name), slog.String("reason", e.Reason), slog.Any("error", err))
		}
		cancel()
	}
}
