// Package descriptor turns a live element into a durable, multi-strategy
// description that can find the equivalent element again after the page has
// re-rendered.
package descriptor

import (
	"formfiller/internal/dom"
)

// Strategy names one independent way of locating an element.
type Strategy string

const (
	StableID    Strategy = "stable-id"
	NameType    Strategy = "name-type"
	TestAttr    Strategy = "test-attr"
	AriaLabel   Strategy = "aria-label"
	Placeholder Strategy = "placeholder"
	Label       Strategy = "label"
	Structural  Strategy = "structural"
	TreePath    Strategy = "tree-path"
	Position    Strategy = "position"
)

// Priority lists strategies from highest to lowest confidence. Resolution
// walks them in this order.
var Priority = []Strategy{
	StableID,
	NameType,
	TestAttr,
	AriaLabel,
	Placeholder,
	Label,
	Structural,
	TreePath,
	Position,
}

// Locator is the strategy specific payload. Which fields are set depends on
// the strategy: selector based ones fill Selector, label fills Text, tree-path
// fills Selector with an XPath, position fills Rect.
type Locator struct {
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`
	// Occurrence is the 1-based position of the element among the selector's
	// matches at capture time; zero when the selector was unique.
	Occurrence int       `json:"occurrence,omitempty"`
	Tag        string    `json:"tag,omitempty"`
	Type       string    `json:"type,omitempty"`
	Rect       *dom.Rect `json:"rect,omitempty"`
}

// Descriptor maps each available strategy to its locator. Descriptors are
// plain data and survive a JSON round trip unchanged.
type Descriptor map[Strategy]Locator

// Has reports whether strategy s was captured.
func (d Descriptor) Has(s Strategy) bool {
	_, ok := d[s]
	return ok
}

// Strategies returns the captured strategies in priority order.
func (d Descriptor) Strategies() []Strategy {
	out := make([]Strategy, 0, len(d))
	for _, s := range Priority {
		if d.Has(s) {
			out = append(out, s)
		}
	}
	return out
}

// Best returns the highest priority strategy present.
func (d Descriptor) Best() (Strategy, Locator, bool) {
	for _, s := range Priority {
		if l, ok := d[s]; ok {
			return s, l, true
		}
	}
	return "", Locator{}, false
}

// Clone returns an independent copy.
func (d Descriptor) Clone() Descriptor {
	out := make(Descriptor, len(d))
	for k, v := range d {
		if v.Rect != nil {
			r := *v.Rect
			v.Rect = &r
		}
		out[k] = v
	}
	return out
}
