package events

import (
	"context"
	"sync"
)

// ChannelBus is the in-process Bus used when RabbitMQ is disabled. The
// channel itself is never closed, so a Publish racing Close cannot panic.
type ChannelBus struct {
	ch        chan Event
	done      chan struct{}
	closeOnce sync.Once
}

func NewChannelBus(buffer int) *ChannelBus {
	return &ChannelBus{ch: make(chan Event, buffer), done: make(chan struct{})}
}

// Publish blocks while the buffer is full, until ctx ends or the bus closes.
func (b *ChannelBus) Publish(ctx context.Context, e Event) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	select {
	case b.ch <- e:
		return nil
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume hands events to h until ctx ends. After Close it drains what is
// buffered and returns ErrClosed.
func (b *ChannelBus) Consume(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-b.ch:
			// handler errors are the handler's to log; the event is dropped
			_ = h(ctx, e)
		case <-b.done:
			for {
				select {
				case e := <-b.ch:
					_ = h(ctx, e)
				default:
					return ErrClosed
				}
			}
		}
	}
}

func (b *ChannelBus) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}
