package cli

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"formfiller/internal/models"
	"formfiller/internal/recorder"
)

var (
	recordName   string
	recordDevice string
)

var recordCmd = &cobra.Command{
	Use:   "record <url>",
	Short: "Record a form fill into a new profile",
	Long: `Opens the page in a visible browser and records what you type, pick and
click. Press Enter in this terminal to stop; the actions are saved as a profile.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		host, err := openHost(ctx, recorder.SessionRequest{URL: args[0], Device: recordDevice}, false)
		if err != nil {
			return err
		}
		defer func() { _ = host.Close() }()

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, headerStyle.Render("● Recording "+args[0]))
		fmt.Fprintln(out, idStyle.Render("Fill the form in the browser, then press Enter here to stop."))

		actions, err := record(ctx, host, cmd.InOrStdin(), out)
		if err != nil {
			return err
		}
		if len(actions) == 0 {
			fmt.Fprintln(out, warnStyle.Render("Nothing recorded, no profile saved."))
			return nil
		}

		name := recordName
		if name == "" {
			name = defaultProfileName(args[0])
		}
		profile, err := models.NewProfile(uuid.New().String(), name, args[0], actions)
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
		if err := st.UpsertProfile(context.Background(), profile); err != nil {
			return fmt.Errorf("save profile: %w", err)
		}

		fmt.Fprintln(out, okStyle.Render(fmt.Sprintf("✔ Saved %d action(s) as %q", len(actions), name)))
		fmt.Fprintln(out, idStyle.Render("Profile ID: ")+profile.ID)
		return nil
	},
}

// record captures actions from host until a line arrives on in or ctx ends.
func record(ctx context.Context, host recorder.Host, in io.Reader, out io.Writer) ([]models.Action, error) {
	opts := recorderOptions()
	opts.OnAction = func(a models.Action) {
		fmt.Fprintf(out, "  %s %s %s\n", countStyle.Render(fmt.Sprintf("#%d", a.ID)), a.Kind, idStyle.Render(describeElement(a.Element)))
	}
	rec := recorder.New(opts)
	if err := rec.Start(host); err != nil {
		return nil, err
	}
	waitForEnter(ctx, in)
	return rec.Stop(), nil
}

func describeElement(e models.ElementInfo) string {
	s := e.Tag
	switch {
	case e.ID != "":
		s += "#" + e.ID
	case e.Name != "":
		s += "[name=" + e.Name + "]"
	}
	return s
}

func defaultProfileName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host + u.Path
}

func init() {
	recordCmd.Flags().StringVarP(&recordName, "name", "n", "", "Profile name (default: host and path of the URL)")
	recordCmd.Flags().StringVarP(&recordDevice, "device", "d", "", "Device to emulate (see `formfiller devices`)")
	rootCmd.AddCommand(recordCmd)
}
