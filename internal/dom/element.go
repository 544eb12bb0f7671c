package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Element is a handle on an element node. Two handles are the same element
// when Is reports true.
type Element struct {
	node *html.Node
	doc  *Document
}

// Option is one entry of a <select>.
type Option struct {
	Value string `json:"value"`
	Text  string `json:"text"`
	Index int    `json:"index"`
}

// ValueHook intercepts assignments to an element's value property. Reactive
// frameworks install one to track controlled inputs; native performs the raw
// assignment.
type ValueHook func(el *Element, value string, native func(string))

// Node returns the underlying html node.
func (e *Element) Node() *html.Node { return e.node }

// Document returns the owning document.
func (e *Element) Document() *Document { return e.doc }

// Is reports whether both handles point at the same node.
func (e *Element) Is(other *Element) bool {
	return e != nil && other != nil && e.node == other.node
}

// Identity returns an opaque comparable value identifying this element
// instance for as long as it lives.
func (e *Element) Identity() any {
	if st, ok := e.doc.lookup(e.node); ok && st.identity != nil {
		return st.identity
	}
	return e.node
}

// Tag returns the lower-case tag name.
func (e *Element) Tag() string { return strings.ToLower(e.node.Data) }

// Attr returns an attribute value and whether it is present.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.node.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

// GetAttr returns an attribute value or the empty string.
func (e *Element) GetAttr(name string) string {
	v, _ := e.Attr(name)
	return v
}

// Attrs returns the attributes in source order.
func (e *Element) Attrs() []html.Attribute {
	return append([]html.Attribute(nil), e.node.Attr...)
}

// SetAttr sets or replaces an attribute.
func (e *Element) SetAttr(name, value string) {
	for i, a := range e.node.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			e.node.Attr[i].Val = value
			return
		}
	}
	e.node.Attr = append(e.node.Attr, html.Attribute{Key: name, Val: value})
}

// RemoveAttr deletes an attribute if present.
func (e *Element) RemoveAttr(name string) {
	attrs := e.node.Attr[:0]
	for _, a := range e.node.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			continue
		}
		attrs = append(attrs, a)
	}
	e.node.Attr = attrs
}

func (e *Element) ID() string   { return e.GetAttr("id") }
func (e *Element) Name() string { return e.GetAttr("name") }

// Type returns the lower-cased type attribute, empty when absent.
func (e *Element) Type() string { return strings.ToLower(strings.TrimSpace(e.GetAttr("type"))) }

// Classes returns the class list.
func (e *Element) Classes() []string { return strings.Fields(e.GetAttr("class")) }

// HasClass reports whether the class list contains name.
func (e *Element) HasClass(name string) bool {
	for _, c := range e.Classes() {
		if c == name {
			return true
		}
	}
	return false
}

// Text returns the element's text content with whitespace collapsed.
func (e *Element) Text() string {
	return collapse(textOf(e.node, nil))
}

// OwnText returns the text content, skipping the subtrees of form controls.
// Label text is read this way so a wrapped control's options don't leak in.
func (e *Element) OwnText() string {
	return collapse(textOf(e.node, func(n *html.Node) bool {
		switch strings.ToLower(n.Data) {
		case "input", "select", "textarea", "button", "script", "style":
			return true
		}
		return false
	}))
}

func textOf(n *html.Node, skip func(*html.Node) bool) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				b.WriteString(c.Data)
				b.WriteByte(' ')
			case html.ElementNode:
				if skip != nil && skip(c) {
					continue
				}
				walk(c)
			}
		}
	}
	walk(n)
	return b.String()
}

func collapse(s string) string { return strings.Join(strings.Fields(s), " ") }

// Parent returns the parent element, or nil at the top of the tree.
func (e *Element) Parent() *Element { return e.doc.Wrap(e.node.Parent) }

// Children returns the element children.
func (e *Element) Children() []*Element {
	var out []*Element
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, e.doc.Wrap(c))
		}
	}
	return out
}

// Closest returns the nearest inclusive ancestor satisfying match.
func (e *Element) Closest(match func(*Element) bool) *Element {
	for el := e; el != nil; el = el.Parent() {
		if match(el) {
			return el
		}
	}
	return nil
}

// Contains reports whether other is e or one of its descendants.
func (e *Element) Contains(other *Element) bool {
	for n := other.node; n != nil; n = n.Parent {
		if n == e.node {
			return true
		}
	}
	return false
}

// Attached reports whether the element is still reachable from its document.
func (e *Element) Attached() bool {
	for n := e.node; n != nil; n = n.Parent {
		if n == e.doc.root {
			return true
		}
	}
	return false
}

// Remove detaches the element from the tree.
func (e *Element) Remove() {
	if e.node.Parent != nil {
		e.node.Parent.RemoveChild(e.node)
	}
}

// AppendChild moves child under e.
func (e *Element) AppendChild(child *Element) {
	if child.node.Parent != nil {
		child.node.Parent.RemoveChild(child.node)
	}
	e.node.AppendChild(child.node)
}

// InsertBefore inserts child before ref, which must be a child of e.
func (e *Element) InsertBefore(child, ref *Element) {
	if child.node.Parent != nil {
		child.node.Parent.RemoveChild(child.node)
	}
	e.node.InsertBefore(child.node, ref.node)
}

// IndexInParent returns the position among the parent's element children.
func (e *Element) IndexInParent() int {
	i := 0
	for c := e.node.PrevSibling; c != nil; c = c.PrevSibling {
		if c.Type == html.ElementNode {
			i++
		}
	}
	return i
}

// TreePath returns element-child indices from <html> down to e.
func (e *Element) TreePath() []int {
	var path []int
	for el := e; el != nil; el = el.Parent() {
		if el.node.Parent == nil || el.node.Parent.Type == html.DocumentNode {
			break
		}
		path = append(path, el.IndexInParent())
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// AddEventListener registers a listener on this element.
func (e *Element) AddEventListener(typ string, l Listener, capture bool) ListenerID {
	return e.doc.registry(e.node).Add(typ, l, capture)
}

// DispatchEvent fires an event of the given type at the element.
func (e *Element) DispatchEvent(typ string) bool {
	return e.doc.Dispatch(NewEvent(typ, e))
}

// Form returns the owning form: the form named by the form attribute, or the
// nearest ancestor form.
func (e *Element) Form() *Element {
	if id := e.GetAttr("form"); id != "" {
		if f := e.doc.GetElementByID(id); f != nil && f.Tag() == "form" {
			return f
		}
	}
	p := e.Parent()
	if p == nil {
		return nil
	}
	return p.Closest(func(el *Element) bool { return el.Tag() == "form" })
}

// IsCheckable reports whether e is a checkbox or radio input.
func (e *Element) IsCheckable() bool {
	if e.Tag() != "input" {
		return false
	}
	t := e.Type()
	return t == "checkbox" || t == "radio"
}

// IsTextEntry reports whether e accepts free text.
func (e *Element) IsTextEntry() bool {
	switch e.Tag() {
	case "textarea":
		return true
	case "input":
		switch e.Type() {
		case "checkbox", "radio", "file", "submit", "button", "reset", "image", "hidden":
			return false
		}
		return true
	}
	if v, ok := e.Attr("contenteditable"); ok && v != "false" {
		return true
	}
	return false
}

// IsSubmitter reports whether activating e submits its form.
func (e *Element) IsSubmitter() bool {
	switch e.Tag() {
	case "button":
		t := e.Type()
		return t == "" || t == "submit"
	case "input":
		t := e.Type()
		return t == "submit" || t == "image"
	}
	return false
}

// Disabled reports whether the disabled attribute is present.
func (e *Element) Disabled() bool {
	_, ok := e.Attr("disabled")
	return ok
}
