package broker

import (
	"context"
	"sync"

	"github.com/Baaaki/scooter-fleet/pkg/logger"
	"go.uber.org/zap"
)

const localBufferSize = 256

// LocalBroker is the in-process bus for single-instance deployments and tests.
type LocalBroker struct {
	mu     sync.RWMutex
	subs   map[chan Envelope]struct{}
	closed bool
}

// NewLocalBroker returns an in-process broker for single-instance deployments and tests.
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[chan Envelope]struct{})}
}

func (b *LocalBroker) Publish(_ context.Context, env Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}
	for ch := range b.subs {
		select {
		case ch <- env:
		default:
			logger.Log.Warn("Local broker subscriber full, dropping envelope",
				zap.String("room", env.Room),
				zap.String("event", env.Event),
			)
		}
	}
	return nil
}

func (b *LocalBroker) Subscribe(ctx context.Context) (<-chan Envelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	ch := make(chan Envelope, localBufferSize)
	b.subs[ch] = struct{}{}

	go func() {
		<-ctx.Done()
		b.remove(ch)
	}()

	return ch, nil
}

func (b *LocalBroker) remove(ch chan Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

func (b *LocalBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	return nil
}
