package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"formfiller/internal/executor"
	"formfiller/internal/models"
	"formfiller/internal/recorder"
	"formfiller/internal/services"
	"formfiller/internal/store"
)

var (
	replayData     string
	replayDataFile string
	replayURL      string
	replayDevice   string
	replayHeadless bool
	replayKeep     bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <profile-id>",
	Short: "Fill a saved profile into its page",
	Long: `Opens the profile's page and replays its actions. --data feeds one
tab-separated spreadsheet row into the profile's custom actions, in order.
Submit buttons are highlighted, never pressed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		profile, err := st.GetProfile(ctx, args[0])
		if err != nil {
			return err
		}
		row, err := dataRow()
		if err != nil {
			return err
		}

		target := profile.URL
		if replayURL != "" {
			target = replayURL
		}
		headless := replayHeadless || cfg.Chrome.HeadlessMode
		host, err := openHost(ctx, recorder.SessionRequest{URL: target, Device: replayDevice}, headless)
		if err != nil {
			return err
		}
		defer func() { _ = host.Close() }()

		out := cmd.OutOrStdout()
		result, err := replayProfile(ctx, st, host, profile, row, out)
		if err != nil {
			return err
		}
		if replayKeep && !headless {
			fmt.Fprintln(out, idStyle.Render("Review the form in the browser, press Enter here to close it."))
			waitForEnter(ctx, cmd.InOrStdin())
		}
		if !result.Success() {
			return fmt.Errorf("replay incomplete: %s", result.Summary())
		}
		return nil
	},
}

// replayProfile plays profile into page with row bound to its custom actions
// and keeps the outcome in the run history.
func replayProfile(ctx context.Context, runs store.RunStore, page recorder.Host, profile *models.Profile, row []string, out io.Writer) (*executor.Result, error) {
	actions := profile.ActionsWithData(row)
	tracker := services.NewRunTracker(runs, zlog)
	run, err := tracker.Begin(ctx, profile.ID, page.URL(), len(actions))
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("▶ Replaying %q (%d actions)", profile.Name, len(actions))))
	result, err := newReplayer().Play(ctx, page, actions, func(p executor.Progress) {
		mark := okStyle.Render("✔")
		if p.Status != "success" {
			mark = errorStyle.Render("✘")
		}
		fmt.Fprintf(out, "  %s %s action %d\n", countStyle.Render(fmt.Sprintf("[%d/%d]", p.Current, p.Total)), mark, p.ActionID)
	})
	tracker.Finish(run, result, err)
	if err != nil {
		return nil, err
	}

	style := okStyle
	if !result.Success() {
		style = warnStyle
	}
	fmt.Fprintln(out, style.Render(result.Summary()))
	fmt.Fprintln(out, idStyle.Render(fmt.Sprintf("Run #%d recorded", run.ID)))
	return result, nil
}

func dataRow() ([]string, error) {
	text := replayData
	if replayDataFile != "" {
		raw, err := os.ReadFile(replayDataFile)
		if err != nil {
			return nil, fmt.Errorf("read data file: %w", err)
		}
		text = string(raw)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return models.ParseDataRow(text)
}

func init() {
	replayCmd.Flags().StringVar(&replayData, "data", "", "Tab-separated row bound to the profile's custom actions")
	replayCmd.Flags().StringVar(&replayDataFile, "data-file", "", "Read the data row from a file")
	replayCmd.Flags().StringVar(&replayURL, "url", "", "Open this URL instead of the profile's")
	replayCmd.Flags().StringVarP(&replayDevice, "device", "d", "", "Device to emulate")
	replayCmd.Flags().BoolVar(&replayHeadless, "headless", false, "Run the browser headless")
	replayCmd.Flags().BoolVar(&replayKeep, "keep-open", true, "Keep the browser open until Enter so the form can be submitted")
	rootCmd.AddCommand(replayCmd)
}
