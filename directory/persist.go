package directory

import (
	"context"
	"sync"

	"livetv-guide/logger"
)

// indexWriter persists the active position in the background. Only the
// latest position is kept, so a slow store never holds up navigation and
// a burst of channel changes collapses into one write.
type indexWriter struct {
	store  IndexStore
	logger logger.Logger

	mu      sync.Mutex
	index   int
	dirty   bool
	writeMu sync.Mutex
	wake    chan struct{}
}

func newIndexWriter(store IndexStore, log logger.Logger) *indexWriter {
	return &indexWriter{store: store, logger: log, wake: make(chan struct{}, 1)}
}

func (w *indexWriter) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		}

		if err := w.flush(ctx); err != nil {
			w.logger.Warnf("Error persisting channel index: %v", err)
		}
	}
}

// queue records index as the position to persist and returns at once.
func (w *indexWriter) queue(index int) {
	w.mu.Lock()
	w.index = index
	w.dirty = true
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// discard drops a position not yet written.
func (w *indexWriter) discard() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.dirty = false
}

// flush writes the queued position, if any. Writes are serialised and
// always carry the latest queued value.
func (w *indexWriter) flush(ctx context.Context) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.Lock()
	if !w.dirty {
		w.mu.Unlock()
		return nil
	}
	index := w.index
	w.dirty = false
	w.mu.Unlock()

	return w.store.SetChannelIndex(ctx, index)
}
