package recorder

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"formfiller/internal/descriptor"
	"formfiller/internal/dom"
	"formfiller/internal/models"
)

const signup = `<html><body>
<div class="formfiller-overlay"><button id="overlay-close" type="button">close</button></div>
<form id="signup" action="/register" method="post">
  <input id="first" name="first" type="text">
  <input id="last" name="last" type="text">
  <textarea id="bio" name="bio"></textarea>
  <input id="terms" name="terms" type="checkbox">
  <input type="radio" name="plan" value="free" checked>
  <input type="radio" name="plan" value="pro">
  <select id="country" name="country">
    <option value="fr">France</option>
    <option value="de">Germany</option>
    <option value="it">Italy</option>
  </select>
  <input id="avatar" name="avatar" type="file">
  <button id="go" type="submit">Create account</button>
</form>
<button id="help" type="button">A very long help button label that goes well past the fifty rune limit</button>
</body></html>`

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newDoc(t *testing.T) *dom.Document {
	t.Helper()
	doc := dom.MustParse(signup)
	doc.SetURL("https://example.test/signup")
	return doc
}

func start(t *testing.T, doc *dom.Document, opts Options) *Recorder {
	t.Helper()
	if opts.Now == nil {
		opts.Now = func() time.Time { return epoch }
	}
	r := New(opts)
	require.NoError(t, r.Start(doc))
	return r
}

func kinds(actions []models.Action) []models.ActionKind {
	out := make([]models.ActionKind, len(actions))
	for i, a := range actions {
		out[i] = a.Kind
	}
	return out
}

func TestRecordSignupScenario(t *testing.T) {
	doc := newDoc(t)
	r := start(t, doc, Options{})

	dom.UserType(doc.GetElementByID("first"), "Jane")
	dom.UserType(doc.GetElementByID("last"), "Doe")
	dom.UserClick(doc.GetElementByID("go"))
	actions := r.Stop()

	require.Len(t, actions, 3)
	assert.Equal(t, []models.ActionKind{models.ActionTextChange, models.ActionTextChange, models.ActionFormSubmit}, kinds(actions))
	assert.Equal(t, "Jane", actions[0].Payload.Value)
	assert.Equal(t, "Doe", actions[1].Payload.Value)
	assert.Equal(t, []int{1, 2, 3}, []int{actions[0].ID, actions[1].ID, actions[2].ID})

	assert.Equal(t, "#first", actions[0].Descriptor[descriptor.StableID].Selector)
	assert.Equal(t, "https://example.test/signup", actions[0].PageURL)
	assert.Equal(t, epoch.UnixMilli(), actions[0].Timestamp)
	assert.Equal(t, models.ElementInfo{Tag: "input", Type: "text", Name: "first", ID: "first"}, actions[0].Element)

	submit := actions[2]
	assert.True(t, submit.NoAutoExecute)
	assert.Equal(t, "button", submit.Element.Tag)
	assert.Equal(t, "#go", submit.Descriptor[descriptor.StableID].Selector)
}

func TestKeystrokesCoalesceIntoOneEdit(t *testing.T) {
	doc := newDoc(t)
	var streamed []models.Action
	r := start(t, doc, Options{OnAction: func(a models.Action) { streamed = append(streamed, a) }})

	dom.UserType(doc.GetElementByID("bio"), "hello")
	actions := r.Stop()

	require.Len(t, actions, 1)
	assert.Equal(t, "hello", actions[0].Payload.Value)
	// five inputs and the change, all on action 1
	require.Len(t, streamed, 6)
	for _, a := range streamed {
		assert.Equal(t, 1, a.ID)
	}
	assert.Equal(t, "h", streamed[0].Payload.Value)
	assert.Equal(t, "hello", streamed[5].Payload.Value)
}

func TestInterleavedEditsDoNotMerge(t *testing.T) {
	doc := newDoc(t)
	r := start(t, doc, Options{})

	dom.UserType(doc.GetElementByID("first"), "J")
	dom.UserType(doc.GetElementByID("last"), "D")
	dom.UserType(doc.GetElementByID("first"), "Ja")
	actions := r.Stop()

	require.Len(t, actions, 3)
	assert.Equal(t, []string{"J", "D", "Ja"}, []string{actions[0].Payload.Value, actions[1].Payload.Value, actions[2].Payload.Value})
}

func TestRerenderedNodeStartsNewEdit(t *testing.T) {
	doc := newDoc(t)
	r := start(t, doc, Options{})

	old := doc.GetElementByID("first")
	dom.UserType(old, "Ja")

	// Same markup, new instance, as a framework re-render produces.
	n := &html.Node{Type: html.ElementNode, Data: "input", Attr: append([]html.Attribute(nil), old.Attrs()...)}
	fresh := doc.Wrap(n)
	old.Parent().InsertBefore(fresh, old)
	old.Remove()
	dom.UserType(fresh, "Jane")

	actions := r.Stop()
	require.Len(t, actions, 2)
	assert.Equal(t, "Ja", actions[0].Payload.Value)
	assert.Equal(t, "Jane", actions[1].Payload.Value)
	assert.Equal(t, actions[0].Descriptor, actions[1].Descriptor)
}

func TestCaptureSurvivesStoppedPropagation(t *testing.T) {
	doc := newDoc(t)
	form := doc.GetElementByID("signup")
	for _, typ := range []string{"input", "change", "click", "submit"} {
		form.AddEventListener(typ, func(ev *dom.Event) { ev.StopPropagation() }, true)
	}
	r := start(t, doc, Options{})

	dom.UserType(doc.GetElementByID("first"), "Jane")
	dom.UserClick(doc.GetElementByID("terms"))
	actions := r.Stop()

	assert.Equal(t, []models.ActionKind{models.ActionTextChange, models.ActionActivate}, kinds(actions))
}

func TestOverlayIsNotRecorded(t *testing.T) {
	doc := newDoc(t)
	r := start(t, doc, Options{})
	dom.UserClick(doc.GetElementByID("overlay-close"))
	assert.Empty(t, r.Stop())
}

func TestCheckableActions(t *testing.T) {
	doc := newDoc(t)
	r := start(t, doc, Options{})

	dom.UserClick(doc.GetElementByID("terms"))
	dom.UserClick(doc.Query(`input[value="pro"]`))
	actions := r.Stop()

	require.Len(t, actions, 2, "change events from checkables are not recorded twice")
	check, radio := actions[0], actions[1]

	assert.Equal(t, models.ActionActivate, check.Kind)
	require.NotNil(t, check.Payload.Checked)
	assert.True(t, *check.Payload.Checked)
	assert.Empty(t, check.Payload.Group)

	require.NotNil(t, radio.Payload.Checked)
	assert.True(t, *radio.Payload.Checked)
	assert.Equal(t, "plan", radio.Payload.Group)
	assert.Equal(t, "pro", radio.Payload.Value)
	assert.Equal(t, "radio", radio.Element.Type)
}

func TestSelectAndFileActions(t *testing.T) {
	doc := newDoc(t)
	r := start(t, doc, Options{})

	dom.UserSelect(doc.GetElementByID("country"), 2)
	dom.UserChooseFiles(doc.GetElementByID("avatar"), dom.File{Name: "me.png", Size: 2048, Type: "image/png"})
	actions := r.Stop()

	require.Len(t, actions, 2)
	sel := actions[0]
	assert.Equal(t, models.ActionValueChange, sel.Kind)
	assert.Equal(t, "it", sel.Payload.Value)
	require.NotNil(t, sel.Payload.SelectedIndex)
	assert.Equal(t, 2, *sel.Payload.SelectedIndex)
	assert.Equal(t, "Italy", sel.Payload.SelectedText)
	assert.Len(t, sel.Payload.Options, 3)

	file := actions[1]
	assert.Equal(t, models.ActionValueChange, file.Kind)
	assert.Equal(t, []dom.File{{Name: "me.png", Size: 2048, Type: "image/png"}}, file.Payload.Files)
}

func TestAuxiliaryEventsAreOptIn(t *testing.T) {
	doc := newDoc(t)
	r := start(t, doc, Options{})
	dom.UserKey(doc.GetElementByID("first"), "Enter")
	dom.UserClick(doc.GetElementByID("help"))
	assert.Equal(t, []models.ActionKind{models.ActionActivate}, kinds(r.Stop()))

	doc = newDoc(t)
	r = start(t, doc, Options{CaptureAuxiliaryEvents: true})
	dom.UserKey(doc.GetElementByID("first"), "Enter")
	dom.UserClick(doc.GetElementByID("help"))
	actions := r.Stop()

	assert.Equal(t, []models.ActionKind{models.ActionAuxiliary, models.ActionAuxiliary, models.ActionActivate}, kinds(actions))
	assert.Equal(t, "keydown", actions[0].Payload.Event)
	assert.Equal(t, "Enter", actions[0].Payload.Key)
	assert.Equal(t, "mousedown", actions[1].Payload.Event)
}

func TestAuxiliaryKeysDoNotSplitAnEdit(t *testing.T) {
	doc := newDoc(t)
	r := start(t, doc, Options{CaptureAuxiliaryEvents: true})

	first := doc.GetElementByID("first")
	current := ""
	for _, c := range "Jane" {
		dom.UserKey(first, string(c))
		current += string(c)
		first.SetValueNative(current)
		ev := dom.NewEvent("input", first)
		ev.Trusted = true
		doc.Dispatch(ev)
	}
	dom.UserKey(doc.GetElementByID("last"), "D")
	dom.UserType(doc.GetElementByID("last"), "D")
	actions := r.Stop()

	var edits []string
	for _, a := range actions {
		if a.Kind == models.ActionTextChange {
			edits = append(edits, a.Payload.Value)
		}
	}
	assert.Equal(t, []string{"Jane", "D"}, edits)
	assert.Equal(t, models.ActionAuxiliary, actions[0].Kind)
	assert.Equal(t, models.ActionTextChange, actions[1].Kind)
}

func TestUntrustedEventsAreIgnored(t *testing.T) {
	doc := newDoc(t)
	r := start(t, doc, Options{CaptureAuxiliaryEvents: true})

	first := doc.GetElementByID("first")
	first.SetValueNative("scripted")
	doc.Dispatch(dom.NewEvent("input", first))
	first.DispatchEvent("focus")
	doc.GetElementByID("terms").Click()

	assert.Empty(t, r.Stop())
}

func TestElementTextIsTruncated(t *testing.T) {
	doc := newDoc(t)
	r := start(t, doc, Options{})
	dom.UserClick(doc.GetElementByID("help"))
	actions := r.Stop()

	require.Len(t, actions, 1)
	assert.Len(t, []rune(actions[0].Element.Text), elementTextLimit)
	assert.True(t, strings.HasPrefix(actions[0].Element.Text, "A very long help"))
}

func TestStartStopLifecycle(t *testing.T) {
	doc := newDoc(t)
	r := New(Options{})

	assert.Equal(t, []models.Action{}, r.Stop(), "stop while idle")
	assert.Equal(t, Status{}, r.Status())

	require.NoError(t, r.Start(doc))
	assert.ErrorIs(t, r.Start(doc), ErrAlreadyRecording)

	dom.UserType(doc.GetElementByID("first"), "Jane")
	assert.Equal(t, Status{Recording: true, ActionCount: 1}, r.Status())
	require.Len(t, r.Stop(), 1)
	assert.Equal(t, Status{ActionCount: 1}, r.Status(), "the log outlives stop")

	dom.UserType(doc.GetElementByID("last"), "Doe")
	assert.Equal(t, Status{ActionCount: 1}, r.Status(), "listeners are gone after stop")
	assert.Len(t, r.Actions(), 1)

	require.NoError(t, r.Start(doc))
	assert.Empty(t, r.Actions(), "restart clears the log")
	dom.UserType(doc.GetElementByID("last"), "Doe")
	actions := r.Stop()
	require.Len(t, actions, 1)
	assert.Equal(t, 1, actions[0].ID)
}

func TestHandlerPanicDoesNotEscape(t *testing.T) {
	doc := newDoc(t)
	r := start(t, doc, Options{OnAction: func(models.Action) { panic("boom") }})
	assert.NotPanics(t, func() { dom.UserType(doc.GetElementByID("first"), "J") })
	assert.Len(t, r.Stop(), 1)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "recording", Recording.String())
}
