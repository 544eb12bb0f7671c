package dom

// The helpers below drive a Document the way a person at the keyboard would:
// every event they fire is trusted. Recorder fixtures and the in-memory host
// build on them.

func (d *Document) fire(target *Element, typ string) bool {
	ev := NewEvent(typ, target)
	ev.Trusted = true
	return d.Dispatch(ev)
}

// UserType types text one character at a time, firing an input event per
// keystroke, then commits with change.
func UserType(el *Element, text string) {
	el.doc.fire(el, "focus")
	current := ""
	for _, r := range text {
		current += string(r)
		el.SetValueNative(current)
		el.doc.fire(el, "input")
	}
	el.doc.fire(el, "change")
	el.doc.fire(el, "blur")
}

// UserClear empties a text field the way select-all plus delete does.
func UserClear(el *Element) {
	el.SetValueNative("")
	el.doc.fire(el, "input")
}

// UserClick presses and releases the pointer over el, then activates it.
func UserClick(el *Element) {
	d := el.doc
	d.fire(el, "pointerdown")
	d.fire(el, "mousedown")
	d.fire(el, "pointerup")
	d.fire(el, "mouseup")
	el.activate(true)
}

// UserSelect picks an option by index.
func UserSelect(el *Element, index int) {
	el.SetSelectedIndex(index)
	el.doc.fire(el, "input")
	el.doc.fire(el, "change")
}

// UserChooseFiles picks files in a file input.
func UserChooseFiles(el *Element, files ...File) {
	el.SetFiles(files)
	el.doc.fire(el, "input")
	el.doc.fire(el, "change")
}

// UserKey presses a key while el has focus.
func UserKey(el *Element, key string) {
	ev := NewEvent("keydown", el)
	ev.Key = key
	ev.Trusted = true
	el.doc.Dispatch(ev)
}
