package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Value returns the current value property.
func (e *Element) Value() string {
	if st, ok := e.doc.lookup(e.node); ok && st.value != nil {
		return *st.value
	}
	switch e.Tag() {
	case "textarea":
		var b strings.Builder
		for c := e.node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
		return b.String()
	case "select":
		opts := e.Options()
		if i := e.SelectedIndex(); i >= 0 && i < len(opts) {
			return opts[i].Value
		}
		return ""
	case "input":
		v, ok := e.Attr("value")
		if !ok && e.IsCheckable() {
			return "on"
		}
		return v
	}
	return e.GetAttr("value")
}

// InterceptValue installs a hook around value assignment. Passing nil removes it.
func (e *Element) InterceptValue(h ValueHook) {
	e.doc.stateOf(e.node).hook = h
}

// SetValue assigns through the value property, honouring any installed hook.
func (e *Element) SetValue(v string) {
	if st, ok := e.doc.lookup(e.node); ok && st.hook != nil {
		st.hook(e, v, e.SetValueNative)
		return
	}
	e.SetValueNative(v)
}

// SetValueNative assigns the value bypassing any hook.
func (e *Element) SetValueNative(v string) {
	if e.Tag() == "select" {
		for _, o := range e.Options() {
			if o.Value == v {
				e.SetSelectedIndex(o.Index)
				return
			}
		}
		e.SetSelectedIndex(-1)
		return
	}
	e.doc.stateOf(e.node).value = &v
}

// Checked returns the checkedness of a checkbox or radio.
func (e *Element) Checked() bool {
	if st, ok := e.doc.lookup(e.node); ok && st.checked != nil {
		return *st.checked
	}
	_, ok := e.Attr("checked")
	return ok
}

// SetChecked updates checkedness. Checking a radio clears the rest of its group.
func (e *Element) SetChecked(checked bool) {
	e.doc.stateOf(e.node).checked = &checked
	if !checked || e.Type() != "radio" || e.Name() == "" {
		return
	}
	for _, other := range e.radioGroup() {
		if other.Is(e) {
			continue
		}
		off := false
		e.doc.stateOf(other.node).checked = &off
	}
}

func (e *Element) radioGroup() []*Element {
	form := e.Form()
	var out []*Element
	for _, el := range e.doc.Elements() {
		if el.Tag() != "input" || el.Type() != "radio" || el.Name() != e.Name() {
			continue
		}
		if !sameElement(el.Form(), form) {
			continue
		}
		out = append(out, el)
	}
	return out
}

func sameElement(a, b *Element) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Is(b)
}

func (e *Element) descendants() []*Element {
	var out []*Element
	var walk func(el *Element)
	walk = func(el *Element) {
		for _, c := range el.Children() {
			out = append(out, c)
			walk(c)
		}
	}
	walk(e)
	return out
}

// Options lists the <option> elements of a select in order.
func (e *Element) Options() []Option {
	var out []Option
	for _, el := range e.optionElements() {
		v, ok := el.Attr("value")
		text := el.Text()
		if !ok {
			v = text
		}
		out = append(out, Option{Value: v, Text: text, Index: len(out)})
	}
	return out
}

func (e *Element) optionElements() []*Element {
	if e.Tag() != "select" {
		return nil
	}
	var out []*Element
	for _, el := range e.descendants() {
		if el.Tag() == "option" {
			out = append(out, el)
		}
	}
	return out
}

// SelectedIndex returns the selected option index, -1 when nothing is selected.
func (e *Element) SelectedIndex() int {
	if st, ok := e.doc.lookup(e.node); ok && st.selected != nil {
		return *st.selected
	}
	opts := e.optionElements()
	for i, o := range opts {
		if _, ok := o.Attr("selected"); ok {
			return i
		}
	}
	if len(opts) == 0 {
		return -1
	}
	return 0
}

// SetSelectedIndex selects an option; out of range values clear the selection.
func (e *Element) SetSelectedIndex(i int) {
	if i < 0 || i >= len(e.optionElements()) {
		i = -1
	}
	e.doc.stateOf(e.node).selected = &i
}

// SelectedText returns the label of the selected option.
func (e *Element) SelectedText() string {
	opts := e.Options()
	if i := e.SelectedIndex(); i >= 0 && i < len(opts) {
		return opts[i].Text
	}
	return ""
}

// Rect returns the element's layout box when one is known.
func (e *Element) Rect() (Rect, bool) {
	if st, ok := e.doc.lookup(e.node); ok && st.rect != nil {
		return *st.rect, true
	}
	return Rect{}, false
}

// SetRect records the element's layout box.
func (e *Element) SetRect(r Rect) {
	e.doc.stateOf(e.node).rect = &r
}

// Files returns the files selected in a file input.
func (e *Element) Files() []File {
	if st, ok := e.doc.lookup(e.node); ok {
		return append([]File(nil), st.files...)
	}
	return nil
}

// SetFiles records a file selection and mirrors the fakepath value browsers expose.
func (e *Element) SetFiles(files []File) {
	st := e.doc.stateOf(e.node)
	st.files = append([]File(nil), files...)
	v := ""
	if len(files) > 0 {
		v = `C:\fakepath\` + files[0].Name
	}
	st.value = &v
}

// InputKind returns the DOM "type" property: the type attribute for inputs
// (defaulting to text) and a tag-derived value otherwise.
func (e *Element) InputKind() string {
	switch e.Tag() {
	case "input":
		if t := e.Type(); t != "" {
			return t
		}
		return "text"
	case "select":
		if _, ok := e.Attr("multiple"); ok {
			return "select-multiple"
		}
		return "select-one"
	case "textarea":
		return "textarea"
	case "button":
		if t := e.Type(); t != "" {
			return t
		}
		return "submit"
	}
	return strings.ToLower(e.Type())
}
