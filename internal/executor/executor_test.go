package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formfiller/internal/descriptor"
	"formfiller/internal/dom"
	"formfiller/internal/models"
	"formfiller/internal/resolver"
)

const form = `<html><body>
<form id="signup" action="/register" method="post">
  <input id="first" name="first" type="text">
  <input id="last" name="last" type="text">
  <input id="email" name="email" type="email">
  <input id="terms" name="terms" type="checkbox">
  <input type="radio" name="plan" value="free" checked>
  <input type="radio" name="plan" value="pro">
  <select id="country" name="country">
    <option value="fr">France</option>
    <option value="de">Germany</option>
    <option value="it">Italy</option>
  </select>
  <input id="avatar" name="avatar" type="file">
  <button id="help" type="button">Help</button>
  <button id="go" type="submit">Create account</button>
</form>
</body></html>`

func testConfig() Config {
	return Config{
		Retry:          resolver.RetryPolicy{Attempts: 1},
		HighlightColor: "#6366f1",
		SubmitColor:    "#ef4444",
		ClickRetries:   1,
	}
}

var gen = descriptor.NewGenerator(descriptor.DefaultGeneratorConfig())

func actionFor(t *testing.T, doc *dom.Document, selector string, kind models.ActionKind) models.Action {
	t.Helper()
	el := doc.Query(selector)
	require.NotNil(t, el, selector)
	return models.Action{
		Kind:       kind,
		Descriptor: gen.Generate(el),
		Element:    models.ElementInfo{Tag: el.Tag(), Type: el.InputKind(), Name: el.Name(), ID: el.ID()},
	}
}

func text(t *testing.T, doc *dom.Document, selector, value string) models.Action {
	a := actionFor(t, doc, selector, models.ActionTextChange)
	a.Payload.Value = value
	return a
}

func number(actions ...models.Action) []models.Action {
	for i := range actions {
		actions[i].ID = i + 1
	}
	return actions
}

func ptr[T any](v T) *T { return &v }

func TestReplayPreservesOrder(t *testing.T) {
	doc := dom.MustParse(form)
	actions := number(
		text(t, doc, "#last", "Doe"),
		text(t, doc, "#first", "Jane"),
		text(t, doc, "#email", "jane@example.test"),
	)
	page := dom.NewMemoryPage(dom.MustParse(form))

	res, err := NewReplayer(testConfig()).Play(context.Background(), page, actions, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Succeeded)

	var order []string
	for _, c := range page.Calls() {
		if c.Op == "value" {
			order = append(order, c.Target)
		}
	}
	assert.Equal(t, []string{"input#last", "input#first", "input#email"}, order)
	assert.Equal(t, "Jane", page.Document().GetElementByID("first").Value())
}

func TestTextDispatchProtocol(t *testing.T) {
	doc := dom.MustParse(form)
	page := dom.NewMemoryPage(dom.MustParse(form))
	var seen []string
	el := page.Document().GetElementByID("first")
	for _, typ := range []string{"input", "change", "keyup"} {
		typ := typ
		el.AddEventListener(typ, func(ev *dom.Event) {
			assert.True(t, ev.Bubbles, typ)
			seen = append(seen, typ)
		}, false)
	}

	_, err := NewReplayer(testConfig()).Play(context.Background(), page, number(text(t, doc, "#first", "Jane")), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"input", "change", "keyup"}, seen)
}

func TestControlledInputObservesReplay(t *testing.T) {
	doc := dom.MustParse(form)
	page := dom.NewMemoryPage(dom.MustParse(form))
	var state []string
	dom.TrackValue(page.Document().GetElementByID("first"), func(v string) { state = append(state, v) })

	_, err := NewReplayer(testConfig()).Play(context.Background(), page, number(text(t, doc, "#first", "Jane")), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Jane"}, state)
}

func TestFormSubmitIsNeverPerformed(t *testing.T) {
	doc := dom.MustParse(form)
	submit := actionFor(t, doc, "#go", models.ActionFormSubmit)
	submit.NoAutoExecute = true

	page := dom.NewMemoryPage(dom.MustParse(form))
	submits := 0
	page.Document().AddEventListener("submit", func(*dom.Event) { submits++ }, true)

	res, err := NewReplayer(testConfig()).Play(context.Background(), page, number(submit), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Zero(t, submits)
	assert.Empty(t, page.Document().Navigations())
	for _, c := range page.Calls() {
		assert.NotEqual(t, "click", c.Op)
		if c.Op == "highlight" {
			assert.Equal(t, "#ef4444", c.Arg)
		}
	}
}

func TestMissingElementIsNotFatal(t *testing.T) {
	doc := dom.MustParse(form)
	ghost := text(t, doc, "#email", "x")
	ghost.Descriptor = descriptor.Descriptor{descriptor.StableID: {Selector: "#nope", Tag: "input"}}
	actions := number(text(t, doc, "#first", "Jane"), ghost, text(t, doc, "#last", "Doe"))

	page := dom.NewMemoryPage(dom.MustParse(form))
	var progress []Progress
	res, err := NewReplayer(testConfig()).Play(context.Background(), page, actions, func(p Progress) { progress = append(progress, p) })
	require.NoError(t, err)

	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "2/3 successful", res.Summary())
	assert.Equal(t, "Doe", page.Document().GetElementByID("last").Value())

	require.Len(t, progress, 3)
	assert.Equal(t, "failed", progress[1].Status)
	assert.Equal(t, Progress{Current: 3, Total: 3, Succeeded: 2, Failed: 1, ActionID: 3, Status: "success"}, progress[2])

	var failed ExecutionLog
	for _, l := range res.Logs {
		if l.StepStatus == "failed" {
			failed = l
		}
	}
	assert.Equal(t, 2, failed.ActionID)
	assert.Contains(t, failed.ErrorDetail, "element not found")
}

func TestCheckableReplayIsIdempotent(t *testing.T) {
	doc := dom.MustParse(form)
	check := actionFor(t, doc, "#terms", models.ActionActivate)
	check.Payload.Checked = ptr(true)

	page := dom.NewMemoryPage(dom.MustParse(form))
	changes := 0
	page.Document().GetElementByID("terms").AddEventListener("change", func(*dom.Event) { changes++ }, false)

	r := NewReplayer(testConfig())
	_, err := r.Play(context.Background(), page, number(check), nil)
	require.NoError(t, err)
	_, err = r.Play(context.Background(), page, number(check), nil)
	require.NoError(t, err)

	assert.True(t, page.Document().GetElementByID("terms").Checked())
	assert.Equal(t, 1, changes, "second replay must not toggle again")
}

func TestRadioReplayChecksRecordedOption(t *testing.T) {
	doc := dom.MustParse(form)
	radio := actionFor(t, doc, `input[value="pro"]`, models.ActionActivate)
	radio.Payload.Checked = ptr(true)
	radio.Payload.Group = "plan"

	page := dom.NewMemoryPage(dom.MustParse(form))
	res, err := NewReplayer(testConfig()).Play(context.Background(), page, number(radio), nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Succeeded)

	assert.True(t, page.Document().Query(`input[value="pro"]`).Checked())
	assert.False(t, page.Document().Query(`input[value="free"]`).Checked())
}

func TestClickUsesNativeActivation(t *testing.T) {
	doc := dom.MustParse(form)
	page := dom.NewMemoryPage(dom.MustParse(form))
	var seen []string
	help := page.Document().GetElementByID("help")
	for _, typ := range []string{"pointerdown", "pointerup", "click"} {
		typ := typ
		help.AddEventListener(typ, func(*dom.Event) { seen = append(seen, typ) }, false)
	}

	_, err := NewReplayer(testConfig()).Play(context.Background(), page, number(actionFor(t, doc, "#help", models.ActionActivate)), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"pointerdown", "pointerup", "click"}, seen)
}

func TestSelectReplay(t *testing.T) {
	doc := dom.MustParse(form)
	sel := actionFor(t, doc, "#country", models.ActionValueChange)
	sel.Payload = models.Payload{Value: "it", SelectedIndex: ptr(2), SelectedText: "Italy", Options: doc.GetElementByID("country").Options()}

	page := dom.NewMemoryPage(dom.MustParse(form))
	changed := false
	page.Document().GetElementByID("country").AddEventListener("change", func(*dom.Event) { changed = true }, false)

	res, err := NewReplayer(testConfig()).Play(context.Background(), page, number(sel), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, "it", page.Document().GetElementByID("country").Value())
	assert.True(t, changed)
}

func TestMatchOptionTiers(t *testing.T) {
	recorded := []dom.Option{{Value: "fr", Text: "France", Index: 0}, {Value: "de", Text: "Germany", Index: 1}, {Value: "it", Text: "Italy", Index: 2}}
	payload := models.Payload{Value: "it", SelectedIndex: ptr(2), SelectedText: "Italy", Options: recorded}

	t.Run("index when length unchanged", func(t *testing.T) {
		// reordered: the value at index 2 is no longer "it"
		live := []dom.Option{{Value: "it", Text: "Italy", Index: 0}, {Value: "fr", Text: "France", Index: 1}, {Value: "de", Text: "Germany", Index: 2}}
		assert.Equal(t, 2, MatchOption(live, payload))
	})

	t.Run("value when length changed", func(t *testing.T) {
		live := []dom.Option{{Value: "", Text: "Choose", Index: 0}, {Value: "it", Text: "Italia", Index: 1}, {Value: "fr", Text: "France", Index: 2}, {Value: "de", Text: "Germany", Index: 3}}
		assert.Equal(t, 1, MatchOption(live, payload))
	})

	t.Run("text when value gone", func(t *testing.T) {
		live := []dom.Option{{Value: "", Text: "Choose", Index: 0}, {Value: "IT", Text: "ITALY", Index: 1}, {Value: "FR", Text: "France", Index: 2}, {Value: "DE", Text: "Germany", Index: 3}}
		assert.Equal(t, 1, MatchOption(live, payload))
	})

	t.Run("substring", func(t *testing.T) {
		live := []dom.Option{{Value: "1", Text: "France (FR)", Index: 0}, {Value: "2", Text: "Italy (IT)", Index: 1}}
		assert.Equal(t, 1, MatchOption(live, models.Payload{SelectedText: "italy"}))
	})

	t.Run("index out of range", func(t *testing.T) {
		live := []dom.Option{{Value: "x", Text: "Italy", Index: 0}}
		assert.Equal(t, 0, MatchOption(live, models.Payload{SelectedIndex: ptr(5), SelectedText: "Italy"}))
	})

	t.Run("nothing", func(t *testing.T) {
		live := []dom.Option{{Value: "es", Text: "Spain", Index: 0}}
		assert.Equal(t, -1, MatchOption(live, payload))
	})
}

func TestFileInputFailsWithDispatchError(t *testing.T) {
	doc := dom.MustParse(form)
	file := actionFor(t, doc, "#avatar", models.ActionValueChange)
	file.Payload.Files = []dom.File{{Name: "me.png"}}

	res, err := NewReplayer(testConfig()).Play(context.Background(), dom.NewMemoryPage(dom.MustParse(form)), number(file), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
}

func TestDispatchErrorsAreTallied(t *testing.T) {
	doc := dom.MustParse(form)
	page := dom.NewMemoryPage(dom.MustParse(form))
	boom := errors.New("node is detached")
	page.FailOn = func(op string, el *dom.Element) error {
		if op == "value" && el.ID() == "first" {
			return boom
		}
		return nil
	}
	r := NewReplayer(testConfig())

	var dispatchErr *DispatchError
	res, playErr := r.Play(context.Background(), page, number(text(t, doc, "#first", "Jane"), text(t, doc, "#last", "Doe")), nil)
	require.NoError(t, playErr)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Succeeded)

	err := r.dispatch(context.Background(), page, page.Document().GetElementByID("first"), text(t, doc, "#first", "Jane"))
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, "set value", dispatchErr.Op)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "Doe", page.Document().GetElementByID("last").Value())
}

func TestAuxiliaryReplay(t *testing.T) {
	doc := dom.MustParse(form)
	focus := actionFor(t, doc, "#first", models.ActionAuxiliary)
	focus.Payload.Event = "focus"

	page := dom.NewMemoryPage(dom.MustParse(form))
	focused := false
	page.Document().GetElementByID("first").AddEventListener("focus", func(*dom.Event) { focused = true }, false)

	_, err := NewReplayer(testConfig()).Play(context.Background(), page, number(focus), nil)
	require.NoError(t, err)
	assert.True(t, focused)
}

func TestEmptyReplayIsNoop(t *testing.T) {
	page := dom.NewMemoryPage(dom.MustParse(form))
	res, err := NewReplayer(testConfig()).Play(context.Background(), page, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.Empty(t, page.Calls())
}

func TestCancellationBetweenActions(t *testing.T) {
	doc := dom.MustParse(form)
	actions := number(text(t, doc, "#first", "a"), text(t, doc, "#last", "b"), text(t, doc, "#email", "c"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := NewReplayer(testConfig()).Play(ctx, dom.NewMemoryPage(dom.MustParse(form)), actions, func(Progress) { cancel() })
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 2, res.Skipped)
	assert.False(t, res.Success())
}

type blockingPage struct {
	*dom.MemoryPage
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *blockingPage) Snapshot(ctx context.Context) (*dom.Document, error) {
	p.once.Do(func() { close(p.entered) })
	<-p.release
	return p.MemoryPage.Snapshot(ctx)
}

func TestConcurrentPlayIsRejected(t *testing.T) {
	doc := dom.MustParse(form)
	page := &blockingPage{MemoryPage: dom.NewMemoryPage(dom.MustParse(form)), entered: make(chan struct{}), release: make(chan struct{})}
	r := NewReplayer(testConfig())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Play(context.Background(), page, number(text(t, doc, "#first", "a")), nil)
	}()
	<-page.entered
	assert.True(t, r.Running())

	_, err := r.Play(context.Background(), dom.NewMemoryPage(dom.MustParse(form)), number(text(t, doc, "#first", "b")), nil)
	assert.ErrorIs(t, err, ErrReplayInProgress)

	close(page.release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("first replay did not finish")
	}
	assert.False(t, r.Running())
}

func TestOverlayShowsProgressThenHides(t *testing.T) {
	doc := dom.MustParse(form)
	page := dom.NewMemoryPage(dom.MustParse(form))
	var shown []string
	_, err := NewReplayer(testConfig()).Play(context.Background(), page, number(text(t, doc, "#first", "a"), text(t, doc, "#last", "b")),
		func(Progress) { shown = append(shown, page.Overlay()) })
	require.NoError(t, err)

	assert.Equal(t, []string{"Filling 1/2", "Filling 2/2"}, shown)
	assert.Empty(t, page.Overlay())
}
