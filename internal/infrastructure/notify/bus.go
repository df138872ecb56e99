// Package notify fans store snapshots out to subscribers. Delivery is
// asynchronous but ordered per topic: every subscriber of a topic observes
// snapshots in publish order, because each topic maps to exactly one worker.
package notify

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog"
)

const (
	defaultWorkers = 4
	channelBuffer  = 64
)

type event struct {
	topic    string
	snapshot any
}

// Subscriber receives every snapshot published on the topics it subscribed
// to. Handlers run on a bus worker goroutine and must not block.
type Subscriber func(topic string, snapshot any)

// Bus routes snapshots to a fixed set of workers using consistent hashing on
// the topic, guaranteeing per-topic ordering.
type Bus struct {
	workers []chan event
	mu      sync.RWMutex
	subs    map[string][]Subscriber
	log     zerolog.Logger
}

// NewBus creates a Bus with numWorkers sharded workers. If numWorkers <= 0,
// defaultWorkers is used.
func NewBus(numWorkers int, log zerolog.Logger) *Bus {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	b := &Bus{
		workers: make([]chan event, numWorkers),
		subs:    make(map[string][]Subscriber),
		log:     log,
	}
	for i := range b.workers {
		b.workers[i] = make(chan event, channelBuffer)
	}
	return b
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (b *Bus) Start(ctx context.Context) {
	for _, ch := range b.workers {
		go b.runWorker(ctx, ch)
	}
}

// Subscribe registers fn for every future snapshot published on topic.
func (b *Bus) Subscribe(topic string, fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], fn)
}

// Publish sends a snapshot to the worker responsible for its topic. The call
// is non-blocking up to channelBuffer capacity.
func (b *Bus) Publish(topic string, snapshot any) {
	b.workers[b.shardIndex(topic)] <- event{topic: topic, snapshot: snapshot}
}

// shardIndex maps a topic deterministically to a worker index.
func (b *Bus) shardIndex(topic string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	return int(h.Sum32()) % len(b.workers)
}

// deliver runs one subscriber. A panicking subscriber must not take down
// the worker, or every topic sharded onto it goes silent.
func (b *Bus) deliver(ev event, fn Subscriber) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Str("topic", ev.topic).Interface("panic", r).Msg("snapshot subscriber panicked")
		}
	}()
	fn(ev.topic, ev.snapshot)
}

func (b *Bus) runWorker(ctx context.Context, ch <-chan event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			b.mu.RLock()
			subs := b.subs[ev.topic]
			b.mu.RUnlock()
			for _, fn := range subs {
				b.deliver(ev, fn)
			}
		}
	}
}
