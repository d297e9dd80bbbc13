package chat

import (
	"context"
	"errors"
	"sync"
)

var ErrBusClosed = errors.New("bus closed")

// Bus carries persisted messages to every hub that should fan them out. The
// in-process bus serves a single instance; RedisBus lets several instances
// share broadcasts.
type Bus interface {
	Publish(ctx context.Context, msg *Message) error
	// Subscribe returns a stream of published messages. The channel is
	// closed when ctx ends or the bus is closed.
	Subscribe(ctx context.Context) (<-chan *Message, error)
	Close() error
}

type localSub struct {
	ch   chan *Message
	done chan struct{}
}

// LocalBus delivers in publish order. Publish blocks until every live
// subscriber has accepted the message, so a slow hub slows publishers instead
// of losing messages.
type LocalBus struct {
	mu      sync.RWMutex
	subs    map[*localSub]struct{}
	closing chan struct{}
	once    sync.Once
	buffer  int
}

func NewLocalBus(buffer int) *LocalBus {
	if buffer < 0 {
		buffer = 0
	}
	return &LocalBus{
		subs:    make(map[*localSub]struct{}),
		closing: make(chan struct{}),
		buffer:  buffer,
	}
}

func (b *LocalBus) Publish(ctx context.Context, msg *Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	select {
	case <-b.closing:
		return ErrBusClosed
	default:
	}
	for s := range b.subs {
		select {
		case s.ch <- msg:
		case <-s.done:
		case <-b.closing:
			return ErrBusClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context) (<-chan *Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.closing:
		return nil, ErrBusClosed
	default:
	}
	s := &localSub{ch: make(chan *Message, b.buffer), done: make(chan struct{})}
	b.subs[s] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.closing:
		}
		// Release blocked publishers before taking the write lock.
		close(s.done)
		b.mu.Lock()
		delete(b.subs, s)
		close(s.ch)
		b.mu.Unlock()
	}()
	return s.ch, nil
}

func (b *LocalBus) Close() error {
	b.once.Do(func() { close(b.closing) })
	return nil
}
