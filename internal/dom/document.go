// Package dom is the in-process page model the recorder and replayer run against.
//
// A Document wraps a golang.org/x/net/html tree plus a side table of live
// element state (value, checked, selection, layout box, identity) that the
// markup alone cannot express. Documents are not safe for concurrent use; the
// page they model is single threaded.
package dom

import (
	"errors"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// ErrDetached is returned when an operation targets an element that is no
// longer part of its document.
var ErrDetached = errors.New("element is detached from the document")

// Rect is a viewport-relative layout box.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the box.
func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Empty reports whether the box has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// File describes a file chosen in a file input.
type File struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// Navigation records a default form submission that was not prevented.
type Navigation struct {
	Action string
	Method string
}

type nodeState struct {
	value    *string
	checked  *bool
	selected *int
	rect     *Rect
	files    []File
	identity any
	hook     ValueHook
}

// Document is a parsed page plus its live state.
type Document struct {
	root        *html.Node
	url         string
	state       map[*html.Node]*nodeState
	listeners   map[*html.Node]*Registry
	navigations []Navigation
}

// Parse reads markup and builds a Document.
func Parse(r io.Reader) (*Document, error) {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, err
	}
	return NewDocument(root), nil
}

// ParseString is Parse over a string.
func ParseString(markup string) (*Document, error) {
	return Parse(strings.NewReader(markup))
}

// MustParse panics on malformed input. Intended for fixtures.
func MustParse(markup string) *Document {
	doc, err := ParseString(markup)
	if err != nil {
		panic(err)
	}
	return doc
}

// NewDocument wraps an already parsed tree.
func NewDocument(root *html.Node) *Document {
	return &Document{
		root:      root,
		state:     make(map[*html.Node]*nodeState),
		listeners: make(map[*html.Node]*Registry),
	}
}

// URL returns the address the document was loaded from.
func (d *Document) URL() string { return d.url }

// SetURL sets the document address.
func (d *Document) SetURL(u string) { d.url = u }

// Node returns the underlying document node.
func (d *Document) Node() *html.Node { return d.root }

// Wrap returns an Element handle for n, or nil when n is not an element.
func (d *Document) Wrap(n *html.Node) *Element {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	return &Element{node: n, doc: d}
}

// DocumentElement returns the <html> element.
func (d *Document) DocumentElement() *Element {
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return d.Wrap(c)
		}
	}
	return nil
}

// Body returns the <body> element.
func (d *Document) Body() *Element {
	root := d.DocumentElement()
	if root == nil {
		return nil
	}
	for _, c := range root.Children() {
		if c.Tag() == "body" {
			return c
		}
	}
	return nil
}

// Elements returns every element in document order.
func (d *Document) Elements() []*Element {
	var out []*Element
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				out = append(out, d.Wrap(c))
			}
			walk(c)
		}
	}
	walk(d.root)
	return out
}

// QueryAll evaluates a CSS selector. An invalid selector matches nothing.
func (d *Document) QueryAll(selector string) []*Element {
	sel := goquery.NewDocumentFromNode(d.root).Find(selector)
	out := make([]*Element, 0, sel.Length())
	for _, n := range sel.Nodes {
		if el := d.Wrap(n); el != nil {
			out = append(out, el)
		}
	}
	return out
}

// Query returns the first element matching a CSS selector.
func (d *Document) Query(selector string) *Element {
	all := d.QueryAll(selector)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// XPathAll evaluates an XPath expression against the document.
func (d *Document) XPathAll(expr string) ([]*Element, error) {
	nodes, err := htmlquery.QueryAll(d.root, expr)
	if err != nil {
		return nil, err
	}
	out := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		if el := d.Wrap(n); el != nil {
			out = append(out, el)
		}
	}
	return out, nil
}

// GetElementByID returns the first element whose id attribute equals id.
func (d *Document) GetElementByID(id string) *Element {
	if id == "" {
		return nil
	}
	for _, el := range d.Elements() {
		if el.ID() == id {
			return el
		}
	}
	return nil
}

// ElementByPath follows element-child indices down from <html>.
func (d *Document) ElementByPath(path []int) *Element {
	el := d.DocumentElement()
	for _, i := range path {
		if el == nil {
			return nil
		}
		children := el.Children()
		if i < 0 || i >= len(children) {
			return nil
		}
		el = children[i]
	}
	return el
}

// SetIdentity overrides the instance identity reported by Element.Identity.
// Hosts that rebuild the tree per snapshot use it to keep identities stable.
func (d *Document) SetIdentity(el *Element, id any) {
	d.stateOf(el.node).identity = id
}

// Navigations lists default submissions that went through.
func (d *Document) Navigations() []Navigation {
	return append([]Navigation(nil), d.navigations...)
}

func (d *Document) stateOf(n *html.Node) *nodeState {
	st, ok := d.state[n]
	if !ok {
		st = &nodeState{}
		d.state[n] = st
	}
	return st
}

func (d *Document) lookup(n *html.Node) (*nodeState, bool) {
	st, ok := d.state[n]
	return st, ok
}

// AddEventListener registers a document level listener.
func (d *Document) AddEventListener(typ string, l Listener, capture bool) ListenerID {
	return d.registry(d.root).Add(typ, l, capture)
}

// RemoveEventListener detaches a listener registered on the document or on any
// of its elements.
func (d *Document) RemoveEventListener(id ListenerID) {
	for _, r := range d.listeners {
		if r.Remove(id) {
			return
		}
	}
}

func (d *Document) registry(n *html.Node) *Registry {
	r, ok := d.listeners[n]
	if !ok {
		r = NewRegistry()
		d.listeners[n] = r
	}
	return r
}
