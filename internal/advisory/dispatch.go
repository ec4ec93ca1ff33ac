package advisory

import "context"

// Handler consumes one event.
type Handler func(ctx context.Context, ev Event) error

// Dispatcher routes events to per-type handlers in arrival order.
type Dispatcher struct {
	handlers map[EventType]Handler
	fallback Handler
}

// NewDispatcher returns a dispatcher with no handlers. Events without a
// handler are dropped.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[EventType]Handler)}
}

// On registers h for events of type t.
func (d *Dispatcher) On(t EventType, h Handler) *Dispatcher {
	if h != nil {
		d.handlers[t] = h
	}
	return d
}

// Otherwise registers h for event types with no specific handler.
func (d *Dispatcher) Otherwise(h Handler) *Dispatcher {
	d.fallback = h
	return d
}

// Dispatch delivers ev to its handler.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	if h, ok := d.handlers[ev.Type]; ok {
		return h(ctx, ev)
	}
	if d.fallback != nil {
		return d.fallback(ctx, ev)
	}
	return nil
}

// Emit adapts Dispatch to the emit callback used by Advisor.Turn.
func (d *Dispatcher) Emit(ctx context.Context) func(Event) error {
	return func(ev Event) error {
		return d.Dispatch(ctx, ev)
	}
}
