package dom

// TrackValue turns el into a controlled input the way React does it: value
// assignments through the property are remembered by a tracker, and onChange
// only fires for input events whose native value differs from the tracker.
// Assigning through the property and then dispatching input is therefore
// invisible to the framework; assigning natively is not.
func TrackValue(el *Element, onChange func(value string)) {
	tracked := el.Value()
	el.InterceptValue(func(target *Element, v string, native func(string)) {
		tracked = v
		native(v)
	})
	el.AddEventListener("input", func(ev *Event) {
		current := el.Value()
		if current == tracked {
			return
		}
		tracked = current
		onChange(current)
	}, false)
}
