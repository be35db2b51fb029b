// Package analytics batches telemetry (user events, performance samples) to
// the upstream analytics endpoints.
//
// Delivery is at-least-once: a failed flush puts its batch back at the front
// of the queue in original order, so a later flush may resend it.
package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SendFunc delivers one batch.
type SendFunc[T any] func(ctx context.Context, batch []T) error

// Batcher accumulates items and flushes them when Size is reached or on
// every Run tick, whichever comes first.
type Batcher[T any] struct {
	name string
	size int
	send SendFunc[T]
	log  zerolog.Logger

	mu    sync.Mutex
	queue []T

	// sendMu serializes deliveries so a re-queued batch lands ahead of
	// anything taken after it.
	sendMu sync.Mutex
}

// NewBatcher returns a Batcher flushing at size items (minimum 1).
func NewBatcher[T any](name string, size int, send SendFunc[T], log zerolog.Logger) *Batcher[T] {
	if size < 1 {
		size = 1
	}
	return &Batcher[T]{name: name, size: size, send: send, log: log}
}

// Add enqueues item. The call that reaches the size threshold takes the
// whole queue before returning and delivers it in the background, so the
// buffer is empty when Add returns and every later threshold crossing
// triggers its own delivery.
func (b *Batcher[T]) Add(item T) {
	b.mu.Lock()
	b.queue = append(b.queue, item)
	var batch []T
	if len(b.queue) >= b.size {
		batch, b.queue = b.queue, nil
	}
	b.mu.Unlock()

	if batch != nil {
		go func() { _ = b.deliver(context.Background(), batch) }()
	}
}

// Len reports queued items.
func (b *Batcher[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Pending returns a copy of the queue.
func (b *Batcher[T]) Pending() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]T(nil), b.queue...)
}

// Flush sends everything queued as one batch. It waits for a delivery
// already in progress first. On failure the batch is put back in front of
// anything queued meanwhile.
func (b *Batcher[T]) Flush(ctx context.Context) error {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	b.mu.Lock()
	batch := b.queue
	b.queue = nil
	b.mu.Unlock()
	return b.sendLocked(ctx, batch)
}

func (b *Batcher[T]) deliver(ctx context.Context, batch []T) error {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	return b.sendLocked(ctx, batch)
}

// sendLocked must be called with sendMu held.
func (b *Batcher[T]) sendLocked(ctx context.Context, batch []T) error {
	if len(batch) == 0 {
		return nil
	}
	if err := b.send(ctx, batch); err != nil {
		b.mu.Lock()
		b.queue = append(batch, b.queue...)
		b.mu.Unlock()
		flushTotal.WithLabelValues(b.name, "error").Inc()
		b.log.Warn().Err(err).Str("batcher", b.name).Int("items", len(batch)).Msg("flush failed, re-queued")
		return err
	}
	flushTotal.WithLabelValues(b.name, "ok").Inc()
	flushedItems.WithLabelValues(b.name).Add(float64(len(batch)))
	return nil
}

// Run flushes every interval until ctx is done, then makes a final
// best-effort flush bounded by interval.
func (b *Batcher[T]) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = b.Flush(ctx)
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), interval)
			_ = b.Flush(fctx)
			cancel()
			return
		}
	}
}
