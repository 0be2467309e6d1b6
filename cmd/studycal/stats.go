package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"studycal/internal/planner"
	"studycal/internal/scheduler"
)

func newStatsCmd(root *rootFlags) *cobra.Command {
	var (
		icsFiles   []string
		eventsPath string
		year       int
		month      int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize time per event type and a monthly heatmap",
		Example: `  studycal stats --ics classes.ics --month 12
  studycal schedule --requests week.yaml --json > plan.json && studycal stats --events plan.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			req := planner.StatsRequest{Year: year, Month: month, UseFeeds: len(icsFiles) > 0}
			if eventsPath != "" {
				if req.Events, err = readRecords(eventsPath); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			svc, err := buildServices(ctx, cfg, fileSources(icsFiles), nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			report, err := svc.planner.Stats(ctx, req, nil)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return printStats(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringSliceVar(&icsFiles, "ics", nil, "calendar file(s) to include")
	cmd.Flags().StringVar(&eventsPath, "events", "", "JSON file of schedule rows (output of schedule --json)")
	cmd.Flags().IntVar(&year, "year", 0, "heatmap year (default current)")
	cmd.Flags().IntVar(&month, "month", 0, "heatmap month 1-12 (default current)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func readRecords(path string) ([]scheduler.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []scheduler.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return records, nil
}

func printStats(w io.Writer, report planner.StatsReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT TYPE\tMINUTES")
	for _, t := range report.ByType {
		fmt.Fprintf(tw, "%s\t%.1f\n", t.EventType, t.Minutes)
	}
	fmt.Fprintf(tw, "\n%04d-%02d\tMINUTES\n", report.Year, report.Month)
	for _, d := range report.Heatmap {
		if d.Minutes == 0 {
			continue
		}
		fmt.Fprintf(tw, "%s\t%.1f\n", d.Date, d.Minutes)
	}
	return tw.Flush()
}
