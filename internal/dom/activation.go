package dom

// Click runs the element's activation behaviour the way HTMLElement.click()
// does: checkables flip before the click event and flip back if it is
// cancelled, submit buttons submit their form afterwards. Like a scripted
// click, the events it fires are not trusted.
func (e *Element) Click() {
	e.activate(false)
}

func (e *Element) activate(trusted bool) {
	if e.Disabled() {
		return
	}
	checkable := e.IsCheckable()
	was := e.Checked()
	isRadio := e.Type() == "radio"
	var previous *Element
	if checkable {
		if isRadio {
			for _, r := range e.radioGroup() {
				if r.Checked() {
					previous = r
					break
				}
			}
			e.SetChecked(true)
		} else {
			e.SetChecked(!was)
		}
	}

	click := NewEvent("click", e)
	click.Trusted = trusted
	ok := e.doc.Dispatch(click)
	if !ok {
		if checkable {
			e.SetChecked(was)
			if isRadio && previous != nil {
				previous.SetChecked(true)
			}
		}
		return
	}
	if checkable && e.Checked() != was {
		for _, typ := range []string{"input", "change"} {
			ev := NewEvent(typ, e)
			ev.Trusted = trusted
			e.doc.Dispatch(ev)
		}
		return
	}
	if e.IsSubmitter() {
		if form := e.Form(); form != nil {
			e.doc.submit(form, e)
		}
	}
}

// RequestSubmit submits the form through its submit event, like
// form.requestSubmit().
func (e *Element) RequestSubmit() {
	if e.Tag() != "form" {
		return
	}
	e.doc.submit(e, nil)
}

func (d *Document) submit(form, submitter *Element) {
	ev := NewEvent("submit", form)
	ev.Submitter = submitter
	ev.Trusted = true
	if !d.Dispatch(ev) {
		return
	}
	method := form.GetAttr("method")
	if method == "" {
		method = "get"
	}
	d.navigations = append(d.navigations, Navigation{Action: form.GetAttr("action"), Method: method})
}
