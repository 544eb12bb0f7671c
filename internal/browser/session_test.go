package browser

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formfiller/internal/dom"
	"formfiller/internal/executor"
	"formfiller/internal/models"
	"formfiller/internal/recorder"
	"formfiller/internal/resolver"
)

const formHTML = `<html><head></head><body><form id="f" action="/join"><input id="email" name="email" type="email"><input id="terms" name="terms" type="checkbox"><button id="go" type="submit">Join</button></form></body></html>`

// html, head, body, form, email, terms, go
var (
	emailPath = []int{1, 0, 0}
	termsPath = []int{1, 0, 1}
	goPath    = []int{1, 0, 2}
	formPath  = []int{1, 0}
)

func str(s string) *string { return &s }

func liveNodes() []nodeState {
	nodes := make([]nodeState, 7)
	for i := range nodes {
		nodes[i] = nodeState{ID: int64(i + 1), Rect: []float64{0, float64(i * 30), 200, 24}}
	}
	nodes[4].Value = str("")
	nodes[5].Checked = true
	return nodes
}

func liveSnapshot() snapshot {
	return snapshot{URL: "https://example.test/join", HTML: formHTML, Nodes: liveNodes()}
}

type fakeEval struct {
	mu      sync.Mutex
	exprs   []string
	respond func(expr string) (any, error)
}

func (f *fakeEval) Evaluate(ctx context.Context, expr string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.exprs = append(f.exprs, expr)
	f.mu.Unlock()
	v, err := f.respond(expr)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (f *fakeEval) calls(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.exprs {
		if strings.HasPrefix(e, prefix) {
			out = append(out, e)
		}
	}
	return out
}

func okEverything(expr string) (any, error) {
	switch {
	case expr == snapshotExpr:
		return liveSnapshot(), nil
	case expr == drainExpr:
		return drainResult{}, nil
	default:
		return opResult{OK: true}, nil
	}
}

func testSession(t *testing.T, respond func(string) (any, error)) (*Session, *fakeEval) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	fe := &fakeEval{respond: respond}
	return newSession(ctx, cancel, fe, Options{URL: "https://example.test/join"}), fe
}

func TestDeliverMirrorsTrustedEvents(t *testing.T) {
	s, _ := testSession(t, okEverything)

	var got []*dom.Event
	s.AddEventListener("input", func(ev *dom.Event) { got = append(got, ev) }, true)

	s.deliver(drainResult{
		URL:       "https://example.test/join?step=1",
		Snapshots: []snapshot{liveSnapshot()},
		Events: []pageEvent{
			{Type: "input", Path: emailPath, Target: nodeState{ID: 5, Value: str("j")}},
			{Type: "input", Path: emailPath, Target: nodeState{ID: 5, Value: str("ja")}},
			{Type: "input", Path: []int{9, 9}, Target: nodeState{ID: 99}},
			{Type: "input", Path: emailPath, Snapshot: 3},
		},
	})

	require.Len(t, got, 2, "events with unknown targets or snapshots are dropped")
	for _, ev := range got {
		assert.True(t, ev.Trusted)
		assert.Equal(t, "email", ev.Target.ID())
		assert.Equal(t, int64(5), ev.Target.Identity())
	}
	assert.Equal(t, "ja", got[1].Target.Value())
	assert.Equal(t, "https://example.test/join", got[0].Target.Document().URL())
	assert.Equal(t, "https://example.test/join?step=1", s.URL())
}

func TestRecorderOverSession(t *testing.T) {
	s, _ := testSession(t, okEverything)
	rec := recorder.New(recorder.Options{})
	require.NoError(t, rec.Start(s))

	// The second keystroke arrives in a fresh snapshot; identity keeps the
	// edits on one action.
	s.deliver(drainResult{
		Snapshots: []snapshot{liveSnapshot(), liveSnapshot()},
		Events: []pageEvent{
			{Type: "focus", Path: emailPath, Target: nodeState{ID: 5}},
			{Type: "input", Path: emailPath, Target: nodeState{ID: 5, Value: str("j")}},
			{Type: "input", Path: emailPath, Snapshot: 1, Target: nodeState{ID: 5, Value: str("jane@example.test")}},
			{Type: "click", Path: termsPath, Snapshot: 1, Target: nodeState{ID: 6, Checked: true}},
			{Type: "click", Path: goPath, Snapshot: 1, Target: nodeState{ID: 7}},
			{Type: "submit", Path: formPath, Snapshot: 1, Target: nodeState{ID: 4}, Submitter: goPath},
		},
	})

	actions := rec.Stop()
	require.Len(t, actions, 3)
	assert.Equal(t, models.ActionTextChange, actions[0].Kind)
	assert.Equal(t, "jane@example.test", actions[0].Payload.Value)
	assert.Equal(t, models.ActionActivate, actions[1].Kind)
	require.NotNil(t, actions[1].Payload.Checked)
	assert.True(t, *actions[1].Payload.Checked)
	assert.Equal(t, models.ActionFormSubmit, actions[2].Kind)
	assert.Equal(t, "go", actions[2].Element.ID)
	assert.True(t, actions[2].NoAutoExecute)
}

func TestSnapshotAppliesLiveState(t *testing.T) {
	s, _ := testSession(t, okEverything)

	doc, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/join", doc.URL())

	terms := doc.GetElementByID("terms")
	require.NotNil(t, terms)
	assert.True(t, terms.Checked())
	assert.Equal(t, int64(6), terms.Identity())

	rect, ok := doc.GetElementByID("email").Rect()
	require.True(t, ok)
	assert.Equal(t, 120.0, rect.Y)
}

func TestSnapshotMisaligned(t *testing.T) {
	s, _ := testSession(t, func(expr string) (any, error) {
		snap := liveSnapshot()
		snap.Nodes = snap.Nodes[:3]
		return snap, nil
	})

	doc, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	_, ok := doc.GetElementByID("email").Rect()
	assert.False(t, ok, "state is only applied when the trees line up")
}

func TestOperationsAddressElementsByPath(t *testing.T) {
	s, fe := testSession(t, okEverything)
	doc := dom.MustParse(formHTML)
	email := doc.GetElementByID("email")

	ctx := context.Background()
	require.NoError(t, s.SetNativeValue(ctx, email, `say "hi"`))
	require.NoError(t, s.SetNativeChecked(ctx, doc.GetElementByID("terms"), true))
	require.NoError(t, s.DispatchEvent(ctx, email, "change"))

	assert.Equal(t, []string{
		`window.__formfiller.op("value", [1,0,0], "say \"hi\"")`,
		`window.__formfiller.op("checked", [1,0,1], "true")`,
		`window.__formfiller.op("dispatch", [1,0,0], "change")`,
	}, fe.calls("window.__formfiller.op"))
}

func TestOperationFailures(t *testing.T) {
	s, _ := testSession(t, func(expr string) (any, error) {
		switch {
		case strings.Contains(expr, `"click"`):
			return opResult{Error: "detached"}, nil
		case strings.Contains(expr, `"scroll"`):
			return nil, errors.New("target closed")
		default:
			return opResult{Error: "TypeError: boom"}, nil
		}
	})
	el := dom.MustParse(formHTML).GetElementByID("go")
	ctx := context.Background()

	assert.ErrorIs(t, s.Click(ctx, el), dom.ErrDetached)
	assert.ErrorContains(t, s.ScrollIntoView(ctx, el), "target closed")
	assert.ErrorContains(t, s.Highlight(ctx, el, "#fff"), "TypeError: boom")
}

func TestOverlay(t *testing.T) {
	s, fe := testSession(t, okEverything)
	ctx := context.Background()
	require.NoError(t, s.ShowOverlay(ctx, "Filling 1/3"))
	require.NoError(t, s.HideOverlay(ctx))

	assert.Equal(t, []string{
		`window.__formfiller.overlay("formfiller-overlay", "Filling 1/3")`,
		`window.__formfiller.overlay("formfiller-overlay", "")`,
	}, fe.calls("window.__formfiller.overlay"))
}

func TestReplayThroughSession(t *testing.T) {
	s, fe := testSession(t, okEverything)
	rec := recorder.New(recorder.Options{})
	require.NoError(t, rec.Start(s))
	s.deliver(drainResult{
		Snapshots: []snapshot{liveSnapshot()},
		Events: []pageEvent{
			{Type: "input", Path: emailPath, Target: nodeState{ID: 5, Value: str("jane@example.test")}},
		},
	})
	actions := rec.Stop()
	require.Len(t, actions, 1)

	player := executor.NewReplayer(executor.Config{
		Retry:          resolver.RetryPolicy{Attempts: 1},
		HighlightColor: "#6366f1",
		SubmitColor:    "#ef4444",
		ClickRetries:   1,
	})
	res, err := player.Play(context.Background(), s, actions, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Contains(t, fe.calls("window.__formfiller.op"),
		`window.__formfiller.op("value", [1,0,0], "jane@example.test")`)
}

func TestListenStopsOnClose(t *testing.T) {
	var mu sync.Mutex
	drained := 0
	s, _ := testSession(t, func(expr string) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		drained++
		if drained == 1 {
			return nil, errors.New("navigating")
		}
		return drainResult{}, nil
	})
	s.opts.PollInterval = 1
	go s.listen()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return drained >= 3
	}, time.Second, time.Millisecond)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
