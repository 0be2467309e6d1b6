package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"studycal/internal/planner"
	"studycal/internal/scheduler"
)

type scheduleFlags struct {
	icsFiles     []string
	requestsPath string
	outPath      string
	asJSON       bool
	useFeeds     bool
	session      string
}

func newScheduleCmd(root *rootFlags) *cobra.Command {
	f := &scheduleFlags{}
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Place the requests of a YAML file into free time",
		Example: `  studycal schedule --ics classes.ics --requests week.yaml
  studycal schedule --ics classes.ics --requests week.yaml --out plan.ics --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			req, err := readScheduleRequest(f.requestsPath)
			if err != nil {
				return err
			}

			sources := fileSources(f.icsFiles)
			if f.useFeeds {
				sources = append(cfg.Sources(), sources...)
			}
			req.UseFeeds = req.UseFeeds || len(sources) > 0
			if f.session != "" {
				req.Session = f.session
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			svc, err := buildServices(ctx, cfg, sources, nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			out, err := svc.planner.Schedule(ctx, req, nil)
			if err != nil {
				return err
			}

			if f.outPath != "" {
				if err := writeExport(svc.planner, out, f.outPath); err != nil {
					return err
				}
			}
			w := cmd.OutOrStdout()
			if f.asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(scheduler.Records(out.Result.Events))
			}
			return printSchedule(w, out, svc.planner.Location())
		},
	}
	cmd.Flags().StringSliceVar(&f.icsFiles, "ics", nil, "calendar file(s) whose events are busy time")
	cmd.Flags().StringVar(&f.requestsPath, "requests", "", "YAML file with requests, preferences and window")
	cmd.Flags().StringVar(&f.outPath, "out", "", "write imported and placed events to this .ics file")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print result rows as JSON")
	cmd.Flags().BoolVar(&f.useFeeds, "feeds", false, "also use the feeds from the config file")
	cmd.Flags().StringVar(&f.session, "session", "", "record the run in this history session")
	_ = cmd.MarkFlagRequired("requests")
	return cmd
}

// readScheduleRequest decodes a request file. The file is either a full
// run description or a bare list of requests.
func readScheduleRequest(path string) (planner.ScheduleRequest, error) {
	var req planner.ScheduleRequest
	data, err := os.ReadFile(path)
	if err != nil {
		return req, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return req, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(node.Content) == 0 {
		return req, errors.New(path + " is empty")
	}
	if node.Content[0].Kind == yaml.SequenceNode {
		err = node.Content[0].Decode(&req.Requests)
	} else {
		err = node.Content[0].Decode(&req)
	}
	if err != nil {
		return req, fmt.Errorf("decode %s: %w", path, err)
	}
	return req, nil
}

func writeExport(svc *planner.Service, out planner.Outcome, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := svc.Export(f, out, ""); err != nil {
		f.Close()
		return fmt.Errorf("export %s: %w", path, err)
	}
	return f.Close()
}

func printSchedule(w io.Writer, out planner.Outcome, loc *time.Location) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TITLE\tSTART\tEND\tTYPE\tPRIORITY\tNOTE")
	for _, ev := range out.Result.Events {
		note := ""
		if ev.Recurrence {
			note = "weekly"
		}
		if ev.Unscheduled {
			when := "-"
			if ev.OccurrenceDate != nil {
				when = ev.OccurrenceDate.String()
			}
			fmt.Fprintf(tw, "%s\t%s\t-\t%s\t%s\tunscheduled %d min\n",
				ev.Title, when, ev.EventType, ev.Priority, ev.RequestedMinutes)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.Title,
			ev.Start.In(loc).Format("Mon 2006-01-02 15:04"),
			ev.End.In(loc).Format("15:04"),
			ev.EventType, ev.Priority, note)
	}
	fmt.Fprintf(tw, "\n%d placed, %d unscheduled, %d busy events imported\n",
		len(out.Result.Placed()), len(out.Result.Unscheduled()), len(out.Imported))
	return tw.Flush()
}
