package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"formfiller/internal/api/handlers"
	"formfiller/internal/api/routes"
	"formfiller/internal/browser"
	"formfiller/internal/recorder"
	"formfiller/internal/services"
	"formfiller/pkg/auth"
	"formfiller/pkg/database"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	boot := time.Now()
	st, users, err := database.Open(cfg, zlog)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = st.Close() }()

	manager := recorder.NewManager(browser.NewFactory(browserOptions()),
		recorder.WithRecorderOptions(recorderOptions()),
		recorder.WithReplayConfig(cfg.ReplayConfig()),
		recorder.WithReplayerOptions(replayerOptions()...),
		recorder.WithMaxSessions(cfg.Chrome.MaxInstances),
		recorder.WithManagerLogger(zlog),
	)
	defer manager.Close()

	statusSync := services.NewStatusSync(st, services.DefaultRunTimeout, zlog)
	if n := statusSync.Recover(ctx, boot); n > 0 {
		zlog.Info("closed runs left over from a previous process", zap.Int("count", n))
	}

	scheduler := services.NewScheduler(zlog)
	if err := scheduler.Add("session-janitor", cfg.Recorder.JanitorSpec, services.SessionJanitor(manager, cfg.SessionTTL())); err != nil {
		return err
	}
	if err := scheduler.Add("run-status-sync", "@every 1m", statusSync.Job()); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireTime)
	h := handlers.New(manager, st, users, tokens, zlog)
	router := routes.SetupRoutes(cfg.Server.Mode, h, zlog)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		zlog.Info("server starting", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	zlog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	zlog.Info("server shutdown complete")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
