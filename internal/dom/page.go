package dom

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Call is one primitive operation performed on a MemoryPage.
type Call struct {
	Op     string
	Target string
	Arg    string
}

// MemoryPage hosts a Document in process. It serves as the replay target in
// tests and for offline replays against saved markup.
type MemoryPage struct {
	mu      sync.Mutex
	doc     *Document
	calls   []Call
	overlay string

	// FailOn, when set, may veto an operation before it touches the DOM.
	FailOn func(op string, el *Element) error
}

// NewMemoryPage wraps doc.
func NewMemoryPage(doc *Document) *MemoryPage {
	return &MemoryPage{doc: doc}
}

// Document returns the hosted document.
func (p *MemoryPage) Document() *Document { return p.doc }

// URL returns the hosted document's address.
func (p *MemoryPage) URL() string { return p.doc.URL() }

// Calls returns the operations performed so far.
func (p *MemoryPage) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// Overlay returns the text of the visible overlay, empty when hidden.
func (p *MemoryPage) Overlay() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overlay
}

func (p *MemoryPage) record(op string, el *Element, arg string) error {
	target := ""
	if el != nil {
		target = Describe(el)
	}
	p.mu.Lock()
	p.calls = append(p.calls, Call{Op: op, Target: target, Arg: arg})
	p.mu.Unlock()
	if el != nil && !el.Attached() {
		return fmt.Errorf("%s on %s: %w", op, target, ErrDetached)
	}
	if p.FailOn != nil {
		return p.FailOn(op, el)
	}
	return nil
}

func (p *MemoryPage) Snapshot(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.doc, nil
}

func (p *MemoryPage) ScrollIntoView(_ context.Context, el *Element) error {
	return p.record("scroll", el, "")
}

func (p *MemoryPage) SetNativeValue(_ context.Context, el *Element, value string) error {
	if err := p.record("value", el, value); err != nil {
		return err
	}
	el.SetValueNative(value)
	return nil
}

func (p *MemoryPage) SetNativeChecked(_ context.Context, el *Element, checked bool) error {
	if err := p.record("checked", el, fmt.Sprint(checked)); err != nil {
		return err
	}
	el.SetChecked(checked)
	return nil
}

func (p *MemoryPage) SetNativeSelectedIndex(_ context.Context, el *Element, index int) error {
	if err := p.record("select", el, fmt.Sprint(index)); err != nil {
		return err
	}
	el.SetSelectedIndex(index)
	return nil
}

func (p *MemoryPage) DispatchEvent(_ context.Context, el *Element, typ string) error {
	if err := p.record("dispatch", el, typ); err != nil {
		return err
	}
	el.DispatchEvent(typ)
	return nil
}

func (p *MemoryPage) Click(_ context.Context, el *Element) error {
	if err := p.record("click", el, ""); err != nil {
		return err
	}
	el.DispatchEvent("pointerdown")
	el.DispatchEvent("pointerup")
	el.Click()
	return nil
}

func (p *MemoryPage) Highlight(_ context.Context, el *Element, color string) error {
	return p.record("highlight", el, color)
}

func (p *MemoryPage) ShowOverlay(_ context.Context, text string) error {
	p.mu.Lock()
	p.overlay = text
	p.mu.Unlock()
	return nil
}

func (p *MemoryPage) HideOverlay(context.Context) error {
	p.mu.Lock()
	p.overlay = ""
	p.mu.Unlock()
	return nil
}

func (p *MemoryPage) AddEventListener(typ string, l Listener, capture bool) ListenerID {
	return p.doc.AddEventListener(typ, l, capture)
}

func (p *MemoryPage) RemoveEventListener(id ListenerID) {
	p.doc.RemoveEventListener(id)
}

// Close is a no-op; there is no process behind a MemoryPage.
func (p *MemoryPage) Close() error { return nil }

// Describe renders a short human readable label for logs: tag#id or
// tag[name=...] or just the tag.
func Describe(el *Element) string {
	var b strings.Builder
	b.WriteString(el.Tag())
	switch {
	case el.ID() != "":
		b.WriteString("#" + el.ID())
	case el.Name() != "":
		b.WriteString("[name=" + el.Name() + "]")
	}
	return b.String()
}
