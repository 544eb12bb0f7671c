package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"formfiller/internal/dom"
	"formfiller/internal/recorder"
	"formfiller/pkg/chrome"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultStartTimeout = 30 * time.Second
)

// Options configure a browser session.
type Options struct {
	URL          string
	Device       string
	ExecPath     string
	Headless     bool
	OverlayClass string
	PollInterval time.Duration
	StartTimeout time.Duration
	Logger       *zap.Logger
}

func (o *Options) defaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.StartTimeout <= 0 {
		o.StartTimeout = defaultStartTimeout
	}
	if o.OverlayClass == "" {
		o.OverlayClass = "formfiller-overlay"
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

type evaluator interface {
	Evaluate(ctx context.Context, expr string, out any) error
}

type chromeEvaluator struct {
	browser context.Context
}

// Evaluate runs expr in the page. ctx bounds the call; the browser context
// keeps owning the tab.
func (c chromeEvaluator) Evaluate(ctx context.Context, expr string, out any) error {
	rctx, cancel := context.WithCancel(c.browser)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(rctx, chromedp.Evaluate(expr, out)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Session is a live Chrome tab. It mirrors trusted page events into
// listeners and performs replay operations through the bridge script.
type Session struct {
	opts      Options
	log       *zap.Logger
	eval      evaluator
	listeners *dom.Registry

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	url       string
	closeOnce sync.Once
}

var _ recorder.Host = (*Session)(nil)

func newSession(ctx context.Context, cancel context.CancelFunc, eval evaluator, opts Options) *Session {
	opts.defaults()
	return &Session{
		opts:      opts,
		log:       opts.Logger.Named("browser"),
		eval:      eval,
		listeners: dom.NewRegistry(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		url:       opts.URL,
	}
}

// Open launches Chrome, loads opts.URL with the bridge installed and starts
// polling for events.
func Open(ctx context.Context, opts Options) (*Session, error) {
	opts.defaults()
	log := opts.Logger.Named("browser")

	dev, ok := chrome.LookupDevice(opts.Device)
	if !ok {
		log.Warn("unknown device, using default", zap.String("device", opts.Device), zap.String("default", chrome.DefaultDevice))
	}
	execPath := opts.ExecPath
	if execPath == "" {
		execPath = chrome.GetChromePath()
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), chrome.AllocatorOptions(execPath, opts.Headless, dev)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Sugar().Debugf))
	cancel := func() {
		browserCancel()
		allocCancel()
	}

	// The first Run starts the browser; it must not carry the startup deadline.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	startCtx, startCancel := context.WithTimeout(browserCtx, opts.StartTimeout)
	defer startCancel()
	stop := context.AfterFunc(ctx, startCancel)
	defer stop()

	err := chromedp.Run(startCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(bridgeScript).Do(ctx)
			return err
		}),
		chromedp.Emulate(dev),
		chromedp.Navigate(opts.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(bridgeScript, nil),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open %s: %w", opts.URL, err)
	}

	log.Info("browser session opened", zap.String("url", opts.URL), zap.String("device", dev.Name), zap.Bool("headless", opts.Headless))
	s := newSession(browserCtx, cancel, chromeEvaluator{browser: browserCtx}, opts)
	go s.listen()
	return s, nil
}

// NewFactory adapts Open to the recorder session manager.
func NewFactory(base Options) recorder.HostFactory {
	return func(ctx context.Context, req recorder.SessionRequest) (recorder.Host, error) {
		opts := base
		opts.URL = req.URL
		if req.Device != "" {
			opts.Device = req.Device
		}
		return Open(ctx, opts)
	}
}

func (s *Session) listen() {
	defer close(s.done)
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.pump(s.ctx); err != nil && s.ctx.Err() == nil {
				// Navigations briefly leave the page without a bridge.
				s.log.Debug("poll events", zap.Error(err))
			}
		}
	}
}

// pump drains the bridge queue once and delivers what it found.
func (s *Session) pump(ctx context.Context) error {
	var res drainResult
	if err := s.eval.Evaluate(ctx, drainExpr, &res); err != nil {
		return err
	}
	s.deliver(res)
	return nil
}

func (s *Session) deliver(res drainResult) {
	if res.URL != "" {
		s.mu.Lock()
		s.url = res.URL
		s.mu.Unlock()
	}

	docs := make([]*dom.Document, len(res.Snapshots))
	for _, pe := range res.Events {
		if pe.Snapshot < 0 || pe.Snapshot >= len(res.Snapshots) {
			s.log.Debug("event without snapshot", zap.String("event", pe.Type))
			continue
		}
		doc := docs[pe.Snapshot]
		if doc == nil {
			var aligned bool
			var err error
			doc, aligned, err = mirror(res.Snapshots[pe.Snapshot])
			if err != nil {
				s.log.Warn("mirror snapshot", zap.Error(err))
				continue
			}
			if !aligned {
				s.log.Debug("snapshot tree differs from live tree", zap.String("url", res.Snapshots[pe.Snapshot].URL))
			}
			docs[pe.Snapshot] = doc
		}

		el := doc.ElementByPath(pe.Path)
		if el == nil {
			s.log.Debug("event target not in snapshot", zap.String("event", pe.Type), zap.Ints("path", pe.Path))
			continue
		}
		applyState(el, pe.Target)

		ev := dom.NewEvent(pe.Type, el)
		ev.Trusted = true
		ev.Key = pe.Key
		if pe.Submitter != nil {
			ev.Submitter = doc.ElementByPath(pe.Submitter)
		}
		s.listeners.Notify(ev)
	}
}

func (s *Session) AddEventListener(typ string, l dom.Listener, capture bool) dom.ListenerID {
	return s.listeners.Add(typ, l, capture)
}

func (s *Session) RemoveEventListener(id dom.ListenerID) {
	s.listeners.Remove(id)
}

// URL returns the address of the page as of the last poll.
func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Snapshot captures the live tree with layout boxes and form state.
func (s *Session) Snapshot(ctx context.Context) (*dom.Document, error) {
	var snap snapshot
	if err := s.eval.Evaluate(ctx, snapshotExpr, &snap); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	doc, aligned, err := mirror(snap)
	if err != nil {
		return nil, err
	}
	if !aligned {
		s.log.Warn("snapshot tree differs from live tree, positions unavailable", zap.String("url", snap.URL))
	}
	return doc, nil
}

func (s *Session) op(ctx context.Context, name string, el *dom.Element, arg string) error {
	var res opResult
	if err := s.eval.Evaluate(ctx, opExpr(name, el.TreePath(), arg), &res); err != nil {
		return fmt.Errorf("%s on %s: %w", name, dom.Describe(el), err)
	}
	if res.OK {
		return nil
	}
	if res.Error == "detached" {
		return fmt.Errorf("%s on %s: %w", name, dom.Describe(el), dom.ErrDetached)
	}
	return fmt.Errorf("%s on %s: %s", name, dom.Describe(el), res.Error)
}

func (s *Session) ScrollIntoView(ctx context.Context, el *dom.Element) error {
	return s.op(ctx, "scroll", el, "")
}

func (s *Session) SetNativeValue(ctx context.Context, el *dom.Element, value string) error {
	return s.op(ctx, "value", el, value)
}

func (s *Session) SetNativeChecked(ctx context.Context, el *dom.Element, checked bool) error {
	return s.op(ctx, "checked", el, fmt.Sprint(checked))
}

func (s *Session) SetNativeSelectedIndex(ctx context.Context, el *dom.Element, index int) error {
	return s.op(ctx, "select", el, fmt.Sprint(index))
}

func (s *Session) DispatchEvent(ctx context.Context, el *dom.Element, typ string) error {
	return s.op(ctx, "dispatch", el, typ)
}

func (s *Session) Click(ctx context.Context, el *dom.Element) error {
	return s.op(ctx, "click", el, "")
}

func (s *Session) Highlight(ctx context.Context, el *dom.Element, color string) error {
	return s.op(ctx, "highlight", el, color)
}

func (s *Session) ShowOverlay(ctx context.Context, text string) error {
	return s.overlay(ctx, text)
}

func (s *Session) HideOverlay(ctx context.Context) error {
	return s.overlay(ctx, "")
}

func (s *Session) overlay(ctx context.Context, text string) error {
	var res opResult
	if err := s.eval.Evaluate(ctx, overlayExpr(s.opts.OverlayClass, text), &res); err != nil {
		return fmt.Errorf("overlay: %w", err)
	}
	if !res.OK {
		return errors.New("overlay: " + res.Error)
	}
	return nil
}

// Close shuts the tab and the browser process. It is safe to call twice.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		s.log.Info("browser session closed", zap.String("url", s.URL()))
	})
	return nil
}
