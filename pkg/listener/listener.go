package listener

import (
	"context"
	"log/slog"
	"sync"
)

type Job interface {
	Start(ctx context.Context)
	Stop()
}

// Listener runs handler on its own goroutine for every value received from
// in until it is stopped. Handler errors are logged and do not stop the loop.
type Listener[T any] struct {
	name        string
	handler     func(input T) error
	stopHandler func()

	in     <-chan T
	wg     sync.WaitGroup
	once   sync.Once
	cancel func()
}

func New[T any](
	name string,
	in <-chan T,
	handler func(T) error,
	stopHandler ...func(),
) *Listener[T] {
	if len(stopHandler) == 0 {
		stopHandler = []func(){func() {}}
	}

	return &Listener[T]{
		name:        name,
		in:          in,
		handler:     handler,
		cancel:      func() {},
		stopHandler: stopHandler[0],
	}
}

func (l *Listener[T]) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)

	go func() {
		defer l.wg.Done()
		for l.run(ctx) {
		}
	}()
}

func (l *Listener[T]) run(ctx context.Context) bool {
	select {
	case inp := <-l.in:
		if err := l.handler(inp); err != nil {
			slog.Error("listener handler failed", "listener", l.name, "error", err)
		}
	case <-ctx.Done():
		return false
	}

	return true
}

// Stop cancels the loop and waits for a running handler to return.
// Only the first call has an effect.
func (l *Listener[T]) Stop() {
	l.once.Do(func() {
		l.cancel()
		l.wg.Wait()
		l.stopHandler()
	})
}
