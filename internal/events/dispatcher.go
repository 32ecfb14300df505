package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Listener reacts to dispatched events.
type Listener interface {
	Handle(ctx context.Context, event Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, event Event) error

// Handle calls f.
func (f ListenerFunc) Handle(ctx context.Context, event Event) error { return f(ctx, event) }

type subscription struct {
	id       uint64
	listener Listener
}

// Dispatcher delivers events synchronously to subscribed listeners.
// Listeners for a name run in subscription order, then wildcard listeners.
type Dispatcher struct {
	mu       sync.RWMutex
	nextID   uint64
	named    map[string][]subscription
	wildcard []subscription
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{named: make(map[string][]subscription)}
}

// Subscribe registers listener for events called name. The returned func removes it.
func (d *Dispatcher) Subscribe(name string, listener Listener) (unsubscribe func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.named[name] = append(d.named[name], subscription{id: id, listener: listener})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		d.named[name] = remove(d.named[name], id)
		if len(d.named[name]) == 0 {
			delete(d.named, name)
		}
	}
}

// SubscribeAll registers listener for every event.
func (d *Dispatcher) SubscribeAll(listener Listener) (unsubscribe func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.wildcard = append(d.wildcard, subscription{id: id, listener: listener})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		d.wildcard = remove(d.wildcard, id)
	}
}

func remove(subs []subscription, id uint64) []subscription {
	out := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}

	return out
}

// Dispatch delivers event to every matching listener. All listeners run even when one fails
// or panics; the returned error joins the listener errors.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	d.mu.RLock()
	named := d.named[event.Name()]
	listeners := make([]Listener, 0, len(named)+len(d.wildcard))

	for _, s := range named {
		listeners = append(listeners, s.listener)
	}

	for _, s := range d.wildcard {
		listeners = append(listeners, s.listener)
	}
	d.mu.RUnlock()

	var errs []error

	for _, l := range listeners {
		if err := d.invoke(ctx, l, event); err != nil {
			slog.Warn("event listener failed",
				"event", event.Name(),
				"run_id", event.RunID(),
				"error", err,
			)

			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (d *Dispatcher) invoke(ctx context.Context, l Listener, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic on %s: %v", event.Name(), r)
		}
	}()

	return l.Handle(ctx, event)
}

// HasListeners reports whether an event called name would reach any listener.
func (d *Dispatcher) HasListeners(name string) bool {
	return d.ListenerCount(name) > 0
}

// ListenerCount returns the number of listeners an event called name reaches, wildcards included.
func (d *Dispatcher) ListenerCount(name string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.named[name]) + len(d.wildcard)
}
