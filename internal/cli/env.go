package cli

import (
	"bufio"
	"context"
	"io"

	"formfiller/internal/browser"
	"formfiller/internal/descriptor"
	"formfiller/internal/executor"
	"formfiller/internal/recorder"
	"formfiller/internal/resolver"
	"formfiller/internal/store"
	"formfiller/pkg/database"
)

// openHost opens the page a command records on or replays into. Tests swap it
// for an in-memory page.
var openHost = func(ctx context.Context, req recorder.SessionRequest, headless bool) (recorder.Host, error) {
	opts := browserOptions()
	opts.Headless = headless
	return browser.NewFactory(opts)(ctx, req)
}

func browserOptions() browser.Options {
	return browser.Options{
		Device:       cfg.Chrome.Device,
		ExecPath:     cfg.Chrome.ExecPath,
		Headless:     cfg.Chrome.HeadlessMode,
		OverlayClass: cfg.Recorder.OverlayClass,
		Logger:       zlog,
	}
}

func recorderOptions() recorder.Options {
	return recorder.Options{
		CaptureAuxiliaryEvents: cfg.Recorder.CaptureAuxiliaryEvents,
		OverlayClass:           cfg.Recorder.OverlayClass,
		Generator:              descriptor.NewGenerator(cfg.GeneratorConfig(), descriptor.WithLogger(zlog)),
		Logger:                 zlog,
	}
}

// newReplayer builds a replayer with the configured resolver tolerance.
func newReplayer() *executor.Replayer {
	return executor.NewReplayer(cfg.ReplayConfig(), replayerOptions()...)
}

func replayerOptions() []executor.Option {
	return []executor.Option{
		executor.WithLogger(zlog),
		executor.WithResolver(resolver.New(resolver.WithLogger(zlog), resolver.WithPositionTolerance(cfg.Resolver.PositionTolerance))),
	}
}

func openStore() (store.Store, error) {
	st, _, err := database.Open(cfg, zlog)
	return st, err
}

// waitForEnter returns once a line (or EOF) arrives on in, or ctx ends.
func waitForEnter(ctx context.Context, in io.Reader) {
	done := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(in).ReadString('\n')
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
