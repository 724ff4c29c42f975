package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/enrichment"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/scheduler"
)

var skipEnrich bool

var pollCmd = &cobra.Command{
	Use:   "poll [source]",
	Short: "Poll one source, or every enabled source, once and enrich the results",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		var results []scheduler.PollResult
		if len(args) == 1 {
			res, err := a.scheduler.PollNow(ctx, args[0])
			if err != nil {
				return err
			}
			results = append(results, res)
		} else {
			results = a.scheduler.PollAll(ctx)
		}

		out := struct {
			Polls      []scheduler.PollResult `json:"polls"`
			Enrichment *enrichment.BatchStats `json:"enrichment,omitempty"`
		}{Polls: results}
		if !skipEnrich {
			stats := a.pool.Drain(ctx)
			out.Enrichment = &stats
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	pollCmd.Flags().BoolVar(&skipEnrich, "no-enrich", false, "only fetch and ingest")
}
