package dom

import (
	"sync"
	"sync/atomic"

	"golang.org/x/net/html"
)

// Event is a DOM event travelling through a Document.
type Event struct {
	Type       string
	Target     *Element
	Submitter  *Element
	Key        string
	Bubbles    bool
	Cancelable bool
	Trusted    bool

	prevented bool
	stopped   bool
}

// NewEvent builds an event. Most form events bubble and can be cancelled.
func NewEvent(typ string, target *Element) *Event {
	ev := &Event{Type: typ, Target: target, Bubbles: true, Cancelable: true}
	switch typ {
	case "focus", "blur", "load", "scroll":
		ev.Bubbles = false
		ev.Cancelable = false
	case "input", "change", "keyup":
		ev.Cancelable = false
	}
	return ev
}

// PreventDefault suppresses the default action of a cancelable event.
func (e *Event) PreventDefault() {
	if e.Cancelable {
		e.prevented = true
	}
}

// DefaultPrevented reports whether PreventDefault took effect.
func (e *Event) DefaultPrevented() bool { return e.prevented }

// StopPropagation stops the event after the current node's listeners run.
func (e *Event) StopPropagation() { e.stopped = true }

// Listener handles an event.
type Listener func(ev *Event)

// ListenerID identifies a registration so it can be removed later.
type ListenerID uint64

var listenerSeq atomic.Uint64

// EventSource is anything listeners can be attached to: a Document, or a live
// browser bridge that mirrors page events.
type EventSource interface {
	AddEventListener(typ string, l Listener, capture bool) ListenerID
	RemoveEventListener(id ListenerID)
}

type registration struct {
	id      ListenerID
	typ     string
	fn      Listener
	capture bool
}

// Registry holds listeners for one event target.
type Registry struct {
	mu   sync.Mutex
	regs []registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers l for events of type typ.
func (r *Registry) Add(typ string, l Listener, capture bool) ListenerID {
	id := ListenerID(listenerSeq.Add(1))
	r.mu.Lock()
	r.regs = append(r.regs, registration{id: id, typ: typ, fn: l, capture: capture})
	r.mu.Unlock()
	return id
}

// Remove drops a registration; it reports whether the id was known.
func (r *Registry) Remove(id ListenerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, reg := range r.regs {
		if reg.id == id {
			r.regs = append(r.regs[:i:i], r.regs[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.regs)
}

type phase int

const (
	phaseCapture phase = iota
	phaseTarget
	phaseBubble
)

func (r *Registry) fire(ev *Event, p phase) {
	r.mu.Lock()
	regs := append([]registration(nil), r.regs...)
	r.mu.Unlock()
	for _, reg := range regs {
		if reg.typ != ev.Type {
			continue
		}
		if p == phaseCapture && !reg.capture {
			continue
		}
		if p == phaseBubble && reg.capture {
			continue
		}
		reg.fn(ev)
	}
}

// Notify invokes every listener for the event type regardless of phase.
// Hosts that observe events out of band (a browser bridge) use it.
func (r *Registry) Notify(ev *Event) {
	r.fire(ev, phaseTarget)
}

// Dispatch sends ev through the capture, target and bubble phases. It returns
// false when a listener prevented the default action.
func (d *Document) Dispatch(ev *Event) bool {
	if ev.Target == nil {
		return true
	}
	var path []*html.Node
	for n := ev.Target.node; n != nil; n = n.Parent {
		path = append(path, n)
	}
	// path runs target..document; capture walks it backwards.
	for i := len(path) - 1; i >= 1; i-- {
		if r, ok := d.listeners[path[i]]; ok {
			r.fire(ev, phaseCapture)
		}
		if ev.stopped {
			return !ev.prevented
		}
	}
	if r, ok := d.listeners[path[0]]; ok {
		r.fire(ev, phaseTarget)
	}
	if ev.stopped || !ev.Bubbles {
		return !ev.prevented
	}
	for i := 1; i < len(path); i++ {
		if r, ok := d.listeners[path[i]]; ok {
			r.fire(ev, phaseBubble)
		}
		if ev.stopped {
			break
		}
	}
	return !ev.prevented
}
