package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/source"
)

var sourcesJSON bool

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := source.NewRegistry(source.FromConfig(cfg.Sources))
		if err != nil {
			return err
		}
		all := reg.All()
		if sourcesJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(all)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tENABLED\tADAPTER\tFETCHER\tINTERVAL\tENDPOINT")
		for _, s := range all {
			fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\t%s\n", s.Name, s.Enabled, s.Adapter, s.Fetcher, s.PollInterval, s.Endpoint)
		}
		fmt.Fprintf(tw, "\n%d sources, %d enabled\n", reg.Len(), len(reg.Enabled()))
		return tw.Flush()
	},
}

func init() {
	sourcesCmd.Flags().BoolVar(&sourcesJSON, "json", false, "print as JSON")
}
