package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"formfiller/internal/descriptor"
	"formfiller/internal/dom"
	"formfiller/internal/models"
	"formfiller/internal/resolver"
)

var (
	ErrElementNotFound   = resolver.ErrElementNotFound
	ErrReplayInProgress  = errors.New("a replay is already in progress")
	ErrUnsupportedAction = errors.New("action cannot be replayed")
	ErrNoMatchingOption  = errors.New("no option matches the recorded selection")
)

// Page is what the replayer needs from the host: a view of the DOM and the
// most primitive mutation each element type offers. Value setters must
// bypass any framework installed property shim.
type Page interface {
	Snapshot(ctx context.Context) (*dom.Document, error)
	ScrollIntoView(ctx context.Context, el *dom.Element) error
	SetNativeValue(ctx context.Context, el *dom.Element, value string) error
	SetNativeChecked(ctx context.Context, el *dom.Element, checked bool) error
	SetNativeSelectedIndex(ctx context.Context, el *dom.Element, index int) error
	DispatchEvent(ctx context.Context, el *dom.Element, typ string) error
	Click(ctx context.Context, el *dom.Element) error
	Highlight(ctx context.Context, el *dom.Element, color string) error
}

// Overlay is implemented by hosts that can show on-page progress.
type Overlay interface {
	ShowOverlay(ctx context.Context, text string) error
	HideOverlay(ctx context.Context) error
}

// DispatchError is a failure while mutating or dispatching on a resolved
// element.
type DispatchError struct {
	ActionID int
	Op       string
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("action %d: %s: %v", e.ActionID, e.Op, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

type Config struct {
	SettleDelay      time.Duration
	Retry            resolver.RetryPolicy
	HighlightColor   string
	SubmitColor      string
	ClickRetries     int
	OverlayHideDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		SettleDelay:      300 * time.Millisecond,
		Retry:            resolver.DefaultRetryPolicy(),
		HighlightColor:   "#6366f1",
		SubmitColor:      "#ef4444",
		ClickRetries:     3,
		OverlayHideDelay: 2 * time.Second,
	}
}

type ExecutionLog struct {
	Timestamp   time.Time `json:"timestamp"`
	Level       string    `json:"level"`
	Message     string    `json:"message"`
	StepIndex   int       `json:"step_index"`
	ActionID    int       `json:"action_id,omitempty"`
	StepType    string    `json:"step_type,omitempty"`
	StepStatus  string    `json:"step_status,omitempty"` // success, failed
	Strategy    string    `json:"strategy,omitempty"`
	Value       string    `json:"value,omitempty"`
	Duration    int64     `json:"duration,omitempty"` // milliseconds
	ErrorDetail string    `json:"error_detail,omitempty"`
}

// Result tallies a replay. A replay never fails as a whole; individual
// actions do.
type Result struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Skipped   int            `json:"skipped"`
	Cancelled bool           `json:"cancelled"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	Logs      []ExecutionLog `json:"logs"`
}

// Summary renders the tally the way the overlay shows it, e.g. "7/9 successful".
func (r *Result) Summary() string {
	s := fmt.Sprintf("%d/%d successful", r.Succeeded, r.Total)
	if r.Skipped > 0 {
		s += fmt.Sprintf(", %d skipped", r.Skipped)
	}
	return s
}

func (r *Result) Success() bool { return r.Failed == 0 && r.Skipped == 0 }

func (r *Result) Duration() time.Duration { return r.EndTime.Sub(r.StartTime) }

func (r *Result) addLog(level, message string, stepIndex int) {
	r.Logs = append(r.Logs, ExecutionLog{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		StepIndex: stepIndex,
	})
}

func (r *Result) addStepLog(level, message string, stepIndex int, a models.Action, stepStatus, strategy string, duration int64, errorDetail string) {
	r.Logs = append(r.Logs, ExecutionLog{
		Timestamp:   time.Now(),
		Level:       level,
		Message:     message,
		StepIndex:   stepIndex,
		ActionID:    a.ID,
		StepType:    string(a.Kind),
		StepStatus:  stepStatus,
		Strategy:    strategy,
		Value:       a.Payload.Value,
		Duration:    duration,
		ErrorDetail: errorDetail,
	})
}

// Progress is reported after every action, whatever its outcome.
type Progress struct {
	Current   int    `json:"current"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	ActionID  int    `json:"action_id"`
	Status    string `json:"status"`
}

// Replayer plays an action log against a Page, one action at a time.
type Replayer struct {
	cfg      Config
	resolver *resolver.Resolver
	log      *zap.Logger
	running  atomic.Bool
	sleep    func(context.Context, time.Duration) error
}

type Option func(*Replayer)

func WithLogger(l *zap.Logger) Option { return func(r *Replayer) { r.log = l } }

func WithResolver(res *resolver.Resolver) Option { return func(r *Replayer) { r.resolver = res } }

func NewReplayer(cfg Config, opts ...Option) *Replayer {
	r := &Replayer{cfg: cfg, log: zap.NewNop(), sleep: sleepCtx}
	for _, opt := range opts {
		opt(r)
	}
	if r.resolver == nil {
		r.resolver = resolver.New(resolver.WithLogger(r.log))
	}
	r.log = r.log.Named("replayer")
	return r
}

// Running reports whether a replay is in progress.
func (r *Replayer) Running() bool { return r.running.Load() }

// Play replays actions in order. Failures are tallied and never stop the
// sequence; only ctx cancellation does, checked between actions. A second
// concurrent Play is rejected with ErrReplayInProgress.
func (r *Replayer) Play(ctx context.Context, page Page, actions []models.Action, progress func(Progress)) (*Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrReplayInProgress
	}
	defer r.running.Store(false)

	result := &Result{Total: len(actions), StartTime: time.Now(), Logs: []ExecutionLog{}}
	if len(actions) == 0 {
		result.addLog("info", "no actions to replay", -1)
		result.EndTime = time.Now()
		return result, nil
	}
	overlay, _ := page.(Overlay)
	result.addLog("info", fmt.Sprintf("replaying %d actions", len(actions)), -1)

	for i, a := range actions {
		if err := ctx.Err(); err != nil {
			result.Cancelled = true
			result.Skipped = len(actions) - i
			result.addLog("warn", fmt.Sprintf("replay cancelled, %d actions skipped", result.Skipped), i)
			break
		}
		if overlay != nil {
			_ = overlay.ShowOverlay(ctx, fmt.Sprintf("Filling %d/%d", i+1, len(actions)))
		}

		desc := getDetailedStepDescription(a, i, len(actions))
		start := time.Now()
		strategy, err := r.playOne(ctx, page, a)
		elapsed := time.Since(start).Milliseconds()

		status := "success"
		if err != nil {
			status = "failed"
			result.Failed++
			result.addStepLog("error", desc, i, a, status, string(strategy), elapsed, err.Error())
			r.log.Warn("action failed", zap.Int("action", a.ID), zap.String("kind", string(a.Kind)), zap.Error(err))
		} else {
			result.Succeeded++
			result.addStepLog("info", desc, i, a, status, string(strategy), elapsed, "")
			r.log.Debug("action replayed", zap.Int("action", a.ID), zap.String("strategy", string(strategy)))
		}
		if progress != nil {
			progress(Progress{
				Current: i + 1, Total: len(actions),
				Succeeded: result.Succeeded, Failed: result.Failed,
				ActionID: a.ID, Status: status,
			})
		}
	}

	result.EndTime = time.Now()
	result.addLog("info", "replay finished: "+result.Summary(), -1)
	r.log.Info("replay finished", zap.String("summary", result.Summary()), zap.Duration("duration", result.Duration()))
	if overlay != nil {
		_ = overlay.ShowOverlay(ctx, result.Summary())
		r.hideLater(overlay)
	}
	return result, nil
}

func (r *Replayer) hideLater(o Overlay) {
	if r.cfg.OverlayHideDelay <= 0 {
		_ = o.HideOverlay(context.Background())
		return
	}
	time.AfterFunc(r.cfg.OverlayHideDelay, func() { _ = o.HideOverlay(context.Background()) })
}

func (r *Replayer) playOne(ctx context.Context, page Page, a models.Action) (strategy descriptor.Strategy, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &DispatchError{ActionID: a.ID, Op: "replay", Err: fmt.Errorf("panic recovered: %v", rec)}
		}
	}()

	m, err := r.resolver.ResolveWithRetry(ctx, page.Snapshot, a.Descriptor, expectFor(a), r.cfg.Retry)
	if err != nil {
		return "", err
	}
	el := m.Element

	if err := page.ScrollIntoView(ctx, el); err != nil {
		return m.Strategy, &DispatchError{ActionID: a.ID, Op: "scroll", Err: err}
	}
	color := r.cfg.HighlightColor
	if a.Kind == models.ActionFormSubmit {
		color = r.cfg.SubmitColor
	}
	if err := page.Highlight(ctx, el, color); err != nil {
		r.log.Debug("highlight failed", zap.Error(err))
	}
	if err := r.sleep(ctx, r.cfg.SettleDelay); err != nil {
		return m.Strategy, err
	}

	// Submits are only pointed at, never performed.
	if a.Kind == models.ActionFormSubmit || a.NoAutoExecute {
		return m.Strategy, nil
	}
	return m.Strategy, r.dispatch(ctx, page, el, a)
}

func expectFor(a models.Action) resolver.Expect {
	return resolver.Expect{Tag: a.Element.Tag, Type: a.Element.Type, Group: a.Payload.Group}
}

func (r *Replayer) dispatch(ctx context.Context, page Page, el *dom.Element, a models.Action) error {
	switch a.Kind {
	case models.ActionTextChange:
		return r.setText(ctx, page, el, a)
	case models.ActionActivate:
		if el.IsCheckable() && a.Payload.Checked != nil {
			want := *a.Payload.Checked
			if el.Type() == "radio" {
				want = true
			}
			return r.setChecked(ctx, page, el, a, want)
		}
		return r.click(ctx, page, el, a)
	case models.ActionValueChange:
		switch {
		case el.Tag() == "select":
			return r.selectOption(ctx, page, el, a)
		case el.IsCheckable() && a.Payload.Checked != nil:
			return r.setChecked(ctx, page, el, a, *a.Payload.Checked)
		case el.Tag() == "input" && el.Type() == "file":
			// Browsers do not let scripts choose files.
			return &DispatchError{ActionID: a.ID, Op: "files", Err: ErrUnsupportedAction}
		default:
			return r.setText(ctx, page, el, a)
		}
	case models.ActionAuxiliary:
		if a.Payload.Event == "" {
			return &DispatchError{ActionID: a.ID, Op: "auxiliary", Err: ErrUnsupportedAction}
		}
		return wrap(a, "dispatch "+a.Payload.Event, page.DispatchEvent(ctx, el, a.Payload.Event))
	}
	return &DispatchError{ActionID: a.ID, Op: string(a.Kind), Err: ErrUnsupportedAction}
}

func wrap(a models.Action, op string, err error) error {
	if err == nil {
		return nil
	}
	return &DispatchError{ActionID: a.ID, Op: op, Err: err}
}

// setText assigns natively, then fires input, change and keyup so reactive
// frameworks pick the value up.
func (r *Replayer) setText(ctx context.Context, page Page, el *dom.Element, a models.Action) error {
	if err := page.SetNativeValue(ctx, el, a.Payload.Value); err != nil {
		return wrap(a, "set value", err)
	}
	for _, typ := range []string{"input", "change", "keyup"} {
		if err := page.DispatchEvent(ctx, el, typ); err != nil {
			return wrap(a, "dispatch "+typ, err)
		}
	}
	return nil
}

func (r *Replayer) setChecked(ctx context.Context, page Page, el *dom.Element, a models.Action, want bool) error {
	if el.Checked() == want {
		return nil
	}
	if err := page.SetNativeChecked(ctx, el, want); err != nil {
		return wrap(a, "set checked", err)
	}
	return wrap(a, "dispatch change", page.DispatchEvent(ctx, el, "change"))
}

func (r *Replayer) click(ctx context.Context, page Page, el *dom.Element, a models.Action) error {
	attempts := r.cfg.ClickRetries
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = page.Click(ctx, el); err == nil {
			return nil
		}
		if errors.Is(err, dom.ErrDetached) || attempt == attempts {
			break
		}
		r.log.Debug("click failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		if serr := r.sleep(ctx, time.Duration(attempt)*100*time.Millisecond); serr != nil {
			return serr
		}
	}
	return wrap(a, "click", err)
}

func (r *Replayer) selectOption(ctx context.Context, page Page, el *dom.Element, a models.Action) error {
	idx := MatchOption(el.Options(), a.Payload)
	if idx < 0 {
		return &DispatchError{ActionID: a.ID, Op: "select", Err: ErrNoMatchingOption}
	}
	if err := page.SetNativeSelectedIndex(ctx, el, idx); err != nil {
		return wrap(a, "select", err)
	}
	for _, typ := range []string{"input", "change"} {
		if err := page.DispatchEvent(ctx, el, typ); err != nil {
			return wrap(a, "dispatch "+typ, err)
		}
	}
	return nil
}

// MatchOption picks the live option for a recorded selection: the recorded
// index when the option list kept its length, then an exact value match, then
// the option text, case-insensitively, exact before substring. It returns -1
// when nothing matches.
func MatchOption(live []dom.Option, p models.Payload) int {
	if p.SelectedIndex != nil {
		idx := *p.SelectedIndex
		if idx >= 0 && idx < len(live) && (len(p.Options) == 0 || len(p.Options) == len(live)) {
			return idx
		}
	}
	if p.Value != "" {
		for _, o := range live {
			if o.Value == p.Value {
				return o.Index
			}
		}
	}
	text := strings.TrimSpace(p.SelectedText)
	if text == "" && p.SelectedIndex != nil {
		if i := *p.SelectedIndex; i >= 0 && i < len(p.Options) {
			text = strings.TrimSpace(p.Options[i].Text)
		}
	}
	if text == "" {
		return -1
	}
	for _, o := range live {
		if strings.EqualFold(strings.TrimSpace(o.Text), text) {
			return o.Index
		}
	}
	lower := strings.ToLower(text)
	for _, o := range live {
		if strings.Contains(strings.ToLower(o.Text), lower) {
			return o.Index
		}
	}
	for _, o := range live {
		if t := strings.ToLower(strings.TrimSpace(o.Text)); t != "" && strings.Contains(lower, t) {
			return o.Index
		}
	}
	return -1
}

// getDetailedStepDescription returns a step description with progress info.
func getDetailedStepDescription(a models.Action, index, total int) string {
	progress := fmt.Sprintf("[%d/%d]", index+1, total)
	target := a.Element.Tag
	if a.Element.Name != "" {
		target += fmt.Sprintf("[name=%s]", a.Element.Name)
	} else if a.Element.ID != "" {
		target += "#" + a.Element.ID
	}

	switch a.Kind {
	case models.ActionTextChange:
		if len(a.Payload.Value) > 50 {
			return fmt.Sprintf("%s ⌨️ type into %s (%d chars)", progress, target, len(a.Payload.Value))
		}
		return fmt.Sprintf("%s ⌨️ type into %s: %s", progress, target, a.Payload.Value)
	case models.ActionActivate:
		if a.Payload.Checked != nil {
			return fmt.Sprintf("%s ☑️ set %s checked=%v", progress, target, *a.Payload.Checked)
		}
		return fmt.Sprintf("%s 🔘 click %s", progress, target)
	case models.ActionValueChange:
		if a.Payload.SelectedText != "" {
			return fmt.Sprintf("%s 🔄 select %q in %s", progress, a.Payload.SelectedText, target)
		}
		return fmt.Sprintf("%s 🔄 change %s → %s", progress, target, a.Payload.Value)
	case models.ActionFormSubmit:
		return fmt.Sprintf("%s ✅ submit recorded at %s (not executed)", progress, target)
	case models.ActionAuxiliary:
		return fmt.Sprintf("%s ⚙️ %s on %s", progress, a.Payload.Event, target)
	default:
		return fmt.Sprintf("%s ⚙️ %s on %s", progress, a.Kind, target)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
