package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/scryshot/internal/backend"
	"github.com/copyleftdev/scryshot/internal/browser"
)

var installBackend string

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Download the browser a backend drives",
	Long: `Download the browser binary for a backend. chromedp uses the system
Chrome and needs no install; playwright and rod fetch their own Chromium.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()
		name := firstNonEmpty(installBackend, cfg.Browser.Backend)
		if err := browser.Install(name, logger); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s browser ready\n", name)
		return nil
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List device profiles scenarios can emulate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tVIEWPORT\tSCALE\tMOBILE")
		for _, name := range backend.DeviceNames() {
			d, err := backend.LookupDevice(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "%s\t%dx%d\t%.2g\t%t\n", d.Name, d.Width, d.Height, d.Scale, d.Mobile)
		}
		return tw.Flush()
	},
}

func init() {
	installCmd.Flags().StringVarP(&installBackend, "backend", "b", "", "Backend to install for: "+fmt.Sprint(browser.Names()))
}
