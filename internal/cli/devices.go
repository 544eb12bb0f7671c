package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"formfiller/pkg/chrome"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the devices a browser session can emulate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, headerStyle.Render("📱 Devices"))
		fmt.Fprintln(out)

		t := newTable(out, "Name", "Viewport", "Mobile", "")
		for _, name := range chrome.DeviceNames() {
			dev, _ := chrome.LookupDevice(name)
			mark := ""
			if name == cfg.Chrome.Device {
				mark = okStyle.Render("configured")
			}
			t.row(name, countStyle.Render(fmt.Sprintf("%dx%d", dev.Width, dev.Height)), fmt.Sprint(dev.Mobile), mark)
		}
		t.flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
