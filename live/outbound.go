package live

import (
	"errors"
	"log/slog"
	"sync"

	"go.aimuz.me/glance/metrics"
)

const (
	defaultOutboundSize = 32
	priorityQueueSize   = 32
)

// ErrBackpressure is returned when a queue is full and the item was dropped.
var ErrBackpressure = errors.New("live outbound backpressure")

// Sender is the send side of a Session.
type Sender interface {
	SendMedia(chunk MediaChunk) error
	SendToolResults(results ...ToolResult) error
}

type outboundItem struct {
	chunk   MediaChunk
	results []ToolResult
}

// Outbound decouples producers from the network. Offers never block: media
// is dropped when the queue is full. Tool results go to a priority queue that
// is drained first, and are never dropped while the queue is open. A single goroutine performs the sends and
// records failures; they never propagate back to producers.
type Outbound struct {
	sender   Sender
	normal   chan outboundItem
	priority chan outboundItem
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewOutbound starts the drain goroutine. size <= 0 selects the default.
func NewOutbound(sender Sender, size int) *Outbound {
	if size <= 0 {
		size = defaultOutboundSize
	}
	o := &Outbound{
		sender:   sender,
		normal:   make(chan outboundItem, size),
		priority: make(chan outboundItem, priorityQueueSize),
		done:     make(chan struct{}),
	}
	o.wg.Go(o.run)
	return o
}

// Offer enqueues a media chunk without waiting.
func (o *Outbound) Offer(chunk MediaChunk) error {
	select {
	case <-o.done:
		return ErrClosed
	default:
	}
	select {
	case o.normal <- outboundItem{chunk: chunk}:
		return nil
	default:
		metrics.RecordMediaSent(chunkKind(chunk), "dropped")
		return ErrBackpressure
	}
}

// Respond enqueues tool results ahead of pending media. Every call must be
// answered, so when the priority queue is full Respond waits for room. It
// returns ErrClosed if the queue closes first.
func (o *Outbound) Respond(results ...ToolResult) error {
	if len(results) == 0 {
		return nil
	}
	select {
	case <-o.done:
		return ErrClosed
	default:
	}
	item := outboundItem{results: results}
	select {
	case o.priority <- item:
		return nil
	default:
	}
	slog.Debug("tool result queue full, waiting", "count", len(results))
	select {
	case o.priority <- item:
		return nil
	case <-o.done:
		metrics.RecordMediaSent("tool", "dropped")
		return ErrClosed
	}
}

// Close stops the drain goroutine and discards anything still queued.
// It is idempotent.
func (o *Outbound) Close() {
	o.once.Do(func() { close(o.done) })
	o.wg.Wait()
}

func (o *Outbound) run() {
	for {
		// Hard priority: tool results go before any queued media.
		select {
		case <-o.done:
			return
		case item := <-o.priority:
			o.send(item)
			continue
		default:
		}

		select {
		case <-o.done:
			return
		case item := <-o.priority:
			o.send(item)
		case item := <-o.normal:
			o.send(item)
		}
	}
}

func (o *Outbound) send(item outboundItem) {
	if item.results != nil {
		if err := o.sender.SendToolResults(item.results...); err != nil {
			slog.Warn("send tool results", "error", err, "count", len(item.results))
			metrics.RecordMediaSent("tool", "error")
			return
		}
		metrics.RecordMediaSent("tool", "ok")
		return
	}

	kind := chunkKind(item.chunk)
	if err := o.sender.SendMedia(item.chunk); err != nil {
		slog.Debug("send media", "error", err, "kind", kind)
		metrics.RecordMediaSent(kind, "error")
		return
	}
	metrics.RecordMediaSent(kind, "ok")
}

func chunkKind(c MediaChunk) string {
	if c.IsAudio() {
		return "audio"
	}
	return "video"
}
