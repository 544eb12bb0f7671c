package recorder

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"formfiller/internal/descriptor"
	"formfiller/internal/dom"
	"formfiller/internal/models"
)

var ErrAlreadyRecording = errors.New("recording is already in progress")

// DefaultOverlayClass marks our own on-page widgets; nothing inside them is
// recorded.
const DefaultOverlayClass = "formfiller-overlay"

const elementTextLimit = 50

type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	if s == Recording {
		return "recording"
	}
	return "idle"
}

type Status struct {
	Recording   bool `json:"is_recording"`
	ActionCount int  `json:"action_count"`
}

type Options struct {
	// CaptureAuxiliaryEvents turns focus, keydown and mousedown into stored
	// actions. When false they are only logged.
	CaptureAuxiliaryEvents bool
	OverlayClass           string
	Generator              *descriptor.Generator
	Logger                 *zap.Logger
	// OnAction is called with a copy of every appended or coalesced action.
	OnAction func(models.Action)
	Now      func() time.Time
}

// Recorder turns page events into an ordered action log.
type Recorder struct {
	opts Options
	gen  *descriptor.Generator
	log  *zap.Logger

	mu        sync.Mutex
	state     State
	src       dom.EventSource
	listeners []dom.ListenerID
	actions   []models.Action
	owners    []int // instance token per action, 0 when not a text edit
	seq       int
	tokens    map[any]int
}

func New(opts Options) *Recorder {
	if opts.OverlayClass == "" {
		opts.OverlayClass = DefaultOverlayClass
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	gen := opts.Generator
	if gen == nil {
		gen = descriptor.NewGenerator(descriptor.DefaultGeneratorConfig(), descriptor.WithLogger(opts.Logger))
	}
	return &Recorder{opts: opts, gen: gen, log: opts.Logger.Named("recorder"), tokens: map[any]int{}}
}

var auxiliaryEvents = []string{"focus", "keydown", "mousedown"}

// Start attaches capture-phase listeners to src and clears the log.
func (r *Recorder) Start(src dom.EventSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == Recording {
		return ErrAlreadyRecording
	}
	r.actions = nil
	r.owners = nil
	r.seq = 0
	r.tokens = map[any]int{}
	r.src = src

	handlers := map[string]dom.Listener{
		"click":  r.guard(r.onClick),
		"input":  r.guard(r.onInput),
		"change": r.guard(r.onChange),
		"submit": r.guard(r.onSubmit),
	}
	for _, typ := range auxiliaryEvents {
		handlers[typ] = r.guard(r.onAuxiliary)
	}
	for _, typ := range append([]string{"click", "input", "change", "submit"}, auxiliaryEvents...) {
		r.listeners = append(r.listeners, src.AddEventListener(typ, handlers[typ], true))
	}
	r.state = Recording
	r.log.Info("recording started")
	return nil
}

// Stop detaches the listeners and returns a copy of the log. The log stays
// readable through Actions and Status until the next Start. Stopping an idle
// recorder returns an empty log.
func (r *Recorder) Stop() []models.Action {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Recording {
		return []models.Action{}
	}
	for _, id := range r.listeners {
		r.src.RemoveEventListener(id)
	}
	r.listeners = nil
	r.src = nil
	r.tokens = map[any]int{}
	r.state = Idle
	r.log.Info("recording stopped", zap.Int("actions", len(r.actions)))
	return append([]models.Action{}, models.CloneActions(r.actions)...)
}

func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{Recording: r.state == Recording, ActionCount: len(r.actions)}
}

// Actions returns a copy of the log captured so far.
func (r *Recorder) Actions() []models.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return models.CloneActions(r.actions)
}

func (r *Recorder) guard(fn func(*dom.Element, *dom.Event)) dom.Listener {
	return func(ev *dom.Event) {
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("event handler panicked", zap.String("event", ev.Type), zap.Any("panic", rec))
			}
		}()
		if !ev.Trusted {
			return
		}
		el := ev.Target
		if el == nil || r.inOverlay(el) {
			return
		}
		fn(el, ev)
	}
}

func (r *Recorder) inOverlay(el *dom.Element) bool {
	return el.Closest(func(e *dom.Element) bool { return e.HasClass(r.opts.OverlayClass) }) != nil
}

func (r *Recorder) onClick(el *dom.Element, _ *dom.Event) {
	switch {
	case el.IsTextEntry(), el.Tag() == "select", el.Tag() == "option", el.Tag() == "label":
		return
	case el.Tag() == "input" && el.Type() == "file":
		return
	case el.IsSubmitter() && el.Form() != nil:
		// The form's submit event records this.
		return
	}
	a := r.newAction(models.ActionActivate, el)
	if el.IsCheckable() {
		checked := el.Checked()
		a.Payload.Checked = &checked
		a.Payload.Value = el.Value()
		if el.Type() == "radio" {
			a.Payload.Group = el.Name()
		}
	}
	r.append(a, 0)
}

func (r *Recorder) onInput(el *dom.Element, _ *dom.Event) {
	if el.IsTextEntry() {
		r.textChange(el)
	}
}

func (r *Recorder) onChange(el *dom.Element, _ *dom.Event) {
	switch {
	case el.IsTextEntry():
		r.textChange(el)
	case el.Tag() == "select":
		a := r.newAction(models.ActionValueChange, el)
		idx := el.SelectedIndex()
		a.Payload.Value = el.Value()
		a.Payload.SelectedIndex = &idx
		a.Payload.SelectedText = el.SelectedText()
		a.Payload.Options = el.Options()
		r.append(a, 0)
	case el.Tag() == "input" && el.Type() == "file":
		a := r.newAction(models.ActionValueChange, el)
		a.Payload.Files = el.Files()
		a.Payload.Value = el.Value()
		r.append(a, 0)
	}
	// Checkables are recorded from their click.
}

func (r *Recorder) onSubmit(form *dom.Element, ev *dom.Event) {
	target := form
	if ev.Submitter != nil {
		target = ev.Submitter
	}
	a := r.newAction(models.ActionFormSubmit, target)
	a.NoAutoExecute = true
	r.append(a, 0)
}

func (r *Recorder) onAuxiliary(el *dom.Element, ev *dom.Event) {
	if !r.opts.CaptureAuxiliaryEvents {
		r.log.Debug("auxiliary event", zap.String("event", ev.Type), zap.String("element", dom.Describe(el)))
		return
	}
	token := 0
	if el.IsTextEntry() {
		r.mu.Lock()
		token = r.tokenFor(el)
		r.mu.Unlock()
	}
	a := r.newAction(models.ActionAuxiliary, el)
	a.Payload.Event = ev.Type
	a.Payload.Key = ev.Key
	r.append(a, token)
}

// tokenFor returns the instance token of el, assigning one on first sight.
// Callers hold r.mu.
func (r *Recorder) tokenFor(el *dom.Element) int {
	token, ok := r.tokens[el.Identity()]
	if !ok {
		token = len(r.tokens) + 1
		r.tokens[el.Identity()] = token
	}
	return token
}

// editTarget finds the text change an edit of token extends: the newest
// action, looking past auxiliary events on the same element. -1 when none.
func (r *Recorder) editTarget(token int) int {
	i := len(r.actions) - 1
	for i >= 0 && r.owners[i] == token && r.actions[i].Kind == models.ActionAuxiliary {
		i--
	}
	if i >= 0 && r.owners[i] == token && r.actions[i].Kind == models.ActionTextChange {
		return i
	}
	return -1
}

// textChange coalesces consecutive edits of one element instance into one
// action. Auxiliary events on that element do not break the run; anything
// else appends.
func (r *Recorder) textChange(el *dom.Element) {
	r.mu.Lock()
	if r.state != Recording {
		r.mu.Unlock()
		return
	}
	token := r.tokenFor(el)
	if i := r.editTarget(token); i >= 0 {
		a := &r.actions[i]
		a.Payload.Value = el.Value()
		a.Timestamp = r.opts.Now().UnixMilli()
		out := a.Clone()
		r.mu.Unlock()
		r.emit(out)
		return
	}
	r.mu.Unlock()

	a := r.newAction(models.ActionTextChange, el)
	a.Payload.Value = el.Value()
	r.append(a, token)
}

func (r *Recorder) newAction(kind models.ActionKind, el *dom.Element) models.Action {
	return models.Action{
		Kind:       kind,
		Timestamp:  r.opts.Now().UnixMilli(),
		Descriptor: r.gen.Generate(el),
		Element:    elementInfo(el),
		PageURL:    el.Document().URL(),
	}
}

func (r *Recorder) append(a models.Action, token int) {
	r.mu.Lock()
	if r.state != Recording {
		r.mu.Unlock()
		return
	}
	r.seq++
	a.ID = r.seq
	r.actions = append(r.actions, a)
	r.owners = append(r.owners, token)
	out := a.Clone()
	r.mu.Unlock()

	r.log.Debug("action captured",
		zap.Int("id", out.ID),
		zap.String("kind", string(out.Kind)),
		zap.String("element", fmt.Sprintf("%s %s", out.Element.Tag, out.Element.Name)))
	r.emit(out)
}

func (r *Recorder) emit(a models.Action) {
	if r.opts.OnAction != nil {
		r.opts.OnAction(a)
	}
}

func elementInfo(el *dom.Element) models.ElementInfo {
	info := models.ElementInfo{Tag: el.Tag(), Name: el.Name(), ID: el.ID()}
	switch el.Tag() {
	case "input", "select", "textarea", "button":
		info.Type = el.InputKind()
	}
	text := el.Text()
	if utf8.RuneCountInString(text) > elementTextLimit {
		text = string([]rune(text)[:elementTextLimit])
	}
	info.Text = text
	return info
}
