package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"formfiller/internal/models"
)

var runsLimit int

var profilesCmd = &cobra.Command{
	Use:     "profiles",
	Aliases: []string{"p"},
	Short:   "List, inspect and delete saved profiles",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		profiles, err := st.ListProfiles(cmd.Context())
		if err != nil {
			return err
		}
		printProfiles(cmd.OutOrStdout(), profiles)
		return nil
	},
}

var profilesShowCmd = &cobra.Command{
	Use:   "show <profile-id>",
	Short: "Show a profile's actions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		p, err := st.GetProfile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printProfile(cmd.OutOrStdout(), p)
		return nil
	},
}

var profilesDeleteCmd = &cobra.Command{
	Use:   "delete <profile-id>",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		if err := st.DeleteProfile(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("✔ Deleted "+args[0]))
		return nil
	},
}

var profilesRunsCmd = &cobra.Command{
	Use:   "runs <profile-id>",
	Short: "Show a profile's replay history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		runs, err := st.ListRuns(cmd.Context(), args[0], runsLimit)
		if err != nil {
			return err
		}
		printRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}

func printProfiles(out io.Writer, profiles []models.Profile) {
	if len(profiles) == 0 {
		fmt.Fprintln(out, headerStyle.Render("📋 No profiles saved"))
		return
	}
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("📋 %d profile(s)", len(profiles))))
	fmt.Fprintln(out)

	t := newTable(out, "ID", "Name", "Actions", "Custom", "Updated")
	for _, p := range profiles {
		t.row(
			idStyle.Render(p.ID),
			truncate(p.Name, 40),
			countStyle.Render(strconv.Itoa(len(p.Actions))),
			countStyle.Render(strconv.Itoa(len(p.CustomActions()))),
			dateStyle.Render(formatWhen(p.UpdatedAt)),
		)
	}
	t.flush()
}

func printProfile(out io.Writer, p *models.Profile) {
	fmt.Fprintln(out, headerStyle.Render(p.Name))
	fmt.Fprintln(out, idStyle.Render(p.ID+"  "+p.URL))
	fmt.Fprintln(out)

	t := newTable(out, "#", "Kind", "Element", "Value", "Column")
	for _, a := range p.Actions {
		column := ""
		if a.Custom != nil {
			column = countStyle.Render(strconv.Itoa(a.Custom.Column))
		}
		t.row(
			strconv.Itoa(a.ID),
			string(a.Kind),
			describeElement(a.Element),
			truncate(payloadText(a.Payload), 30),
			column,
		)
	}
	t.flush()
}

func printRuns(out io.Writer, runs []models.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(out, headerStyle.Render("No runs yet"))
		return
	}
	t := newTable(out, "Run", "Status", "Succeeded", "Failed", "Skipped", "Started", "Took")
	for _, r := range runs {
		status := okStyle.Render(r.Status)
		if r.Status != models.RunCompleted || r.Failed > 0 {
			status = warnStyle.Render(r.Status)
		}
		t.row(
			strconv.FormatUint(uint64(r.ID), 10),
			status,
			strconv.Itoa(r.Succeeded),
			strconv.Itoa(r.Failed),
			strconv.Itoa(r.Skipped),
			dateStyle.Render(formatWhen(r.StartTime)),
			(time.Duration(r.Duration) * time.Millisecond).String(),
		)
	}
	t.flush()
}

func payloadText(p models.Payload) string {
	switch {
	case p.Checked != nil:
		return strconv.FormatBool(*p.Checked)
	case p.SelectedText != "":
		return p.SelectedText
	}
	return p.Value
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	t = t.Local()
	diff := time.Since(t)
	switch {
	case diff < 24*time.Hour:
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	}
	return t.Format("2006-01-02")
}

func init() {
	profilesRunsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Number of runs to show")
	profilesCmd.AddCommand(profilesListCmd, profilesShowCmd, profilesDeleteCmd, profilesRunsCmd)
	rootCmd.AddCommand(profilesCmd)
}
