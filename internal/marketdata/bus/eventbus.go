// Package bus fans out internal events (ticks, candles, order lifecycle) to
// any number of subscribers, generalizing the teacher's single-type candle
// FanOut into a tagged-union bus carrying model.Event (§5: handlers must be
// best-effort and never block the data path, so subscribers that fall
// behind simply miss events rather than stall the producer).
package bus

import (
	"context"
	"log"
	"sync"

	"cryptomomentum-corev1/internal/model"
)

// EventBus broadcasts events from a single input channel to N output
// channels. If a subscriber's channel is full, the event is dropped for
// that subscriber only — a slow consumer never blocks the pipeline.
type EventBus struct {
	mu      sync.RWMutex
	outputs []chan model.Event
	bufSize int

	// OnDrop is called when an event is dropped for subscriberIdx.
	OnDrop func(subscriberIdx int, kind model.EventKind)
}

// New creates an EventBus with the given per-subscriber buffer size.
func New(outputBufferSize int) *EventBus {
	return &EventBus{bufSize: outputBufferSize}
}

// Subscribe creates and returns a new output channel.
func (b *EventBus) Subscribe() <-chan model.Event {
	ch := make(chan model.Event, b.bufSize)
	b.mu.Lock()
	b.outputs = append(b.outputs, ch)
	b.mu.Unlock()
	return ch
}

// Run reads from input and fans out to all subscribers until ctx is
// cancelled or input closes.
func (b *EventBus) Run(ctx context.Context, input <-chan model.Event) {
	defer func() {
		b.mu.RLock()
		for _, ch := range b.outputs {
			close(ch)
		}
		b.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-input:
			if !ok {
				return
			}
			b.publish(ev)
		}
	}
}

// Publish pushes a single event to all subscribers without going through
// a channel — used by producers (router, exit manager) that emit events
// synchronously rather than via Run's input channel.
func (b *EventBus) Publish(ev model.Event) {
	b.publish(ev)
}

func (b *EventBus) publish(ev model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for i, ch := range b.outputs {
		select {
		case ch <- ev:
		default:
			if b.OnDrop != nil {
				b.OnDrop(i, ev.Kind)
			} else {
				log.Printf("[bus] output channel %d full, dropping %s event", i, ev.Kind)
			}
		}
	}
}

// ChannelStat reports (length, capacity) for one subscriber channel —
// used to report saturation in health/metrics endpoints.
type ChannelStat struct {
	Len int
	Cap int
}

// ChannelStats returns saturation info for every subscriber.
func (b *EventBus) ChannelStats() []ChannelStat {
	b.mu.RLock()
	defer b.mu.RUnlock()
	stats := make([]ChannelStat, len(b.outputs))
	for i, ch := range b.outputs {
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
