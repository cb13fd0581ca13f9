package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// syncRun mirrors the server's sync run JSON.
type syncRun struct {
	ID            string `json:"id"`
	Trigger       string `json:"trigger"`
	State         string `json:"state"`
	StartedAt     string `json:"startedAt"`
	FinishedAt    string `json:"finishedAt,omitempty"`
	BugsFetched   int    `json:"bugsFetched"`
	BugsCreated   int    `json:"bugsCreated"`
	BugsUpdated   int    `json:"bugsUpdated"`
	BugsFailed    int    `json:"bugsFailed,omitempty"`
	LinksResolved int64  `json:"linksResolved"`
	LastError     string `json:"lastError,omitempty"`
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Manage synchronization runs",
	}

	cmd.AddCommand(newSyncTriggerCmd())
	cmd.AddCommand(newSyncRunsCmd())
	cmd.AddCommand(newSyncStatusCmd())

	return cmd
}

func newSyncTriggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Trigger a sync run",
		Long:  "Trigger an on-demand synchronization against the configured Bugzilla instance.",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := globalClient.doRequest("POST", "/api/v1/sync/runs:trigger", nil)
			if err != nil {
				return err
			}

			var run syncRun
			if err := json.Unmarshal(data, &run); err != nil {
				return fmt.Errorf("decoding response: %w", err)
			}

			if outputFlag == "json" {
				return printJSON(run)
			}
			fmt.Printf("Sync run %s started (%s)\n", run.ID, run.State)
			return nil
		},
	}
}

func newSyncRunsCmd() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List sync runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/sync/runs"
			if state != "" {
				path += "?state=" + state
			}
			data, err := globalClient.doRequest("GET", path, nil)
			if err != nil {
				return err
			}

			var body struct {
				Runs []syncRun `json:"runs"`
			}
			if err := json.Unmarshal(data, &body); err != nil {
				return fmt.Errorf("decoding response: %w", err)
			}

			if outputFlag == "json" {
				return printJSON(body.Runs)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTRIGGER\tSTATE\tSTARTED\tFETCHED\tCREATED\tUPDATED")
			for _, run := range body.Runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
					run.ID, run.Trigger, run.State, run.StartedAt,
					run.BugsFetched, run.BugsCreated, run.BugsUpdated)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by state (running, succeeded, failed)")

	return cmd
}

func newSyncStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show one sync run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := globalClient.doRequest("GET", "/api/v1/sync/runs/"+args[0], nil)
			if err != nil {
				return err
			}

			var run syncRun
			if err := json.Unmarshal(data, &run); err != nil {
				return fmt.Errorf("decoding response: %w", err)
			}

			if outputFlag == "json" {
				return printJSON(run)
			}

			fmt.Printf("Run:      %s\n", run.ID)
			fmt.Printf("Trigger:  %s\n", run.Trigger)
			fmt.Printf("State:    %s\n", run.State)
			fmt.Printf("Started:  %s\n", run.StartedAt)
			if run.FinishedAt != "" {
				fmt.Printf("Finished: %s\n", run.FinishedAt)
			}
			fmt.Printf("Fetched:  %d  Created: %d  Updated: %d  Failed: %d  Links resolved: %d\n",
				run.BugsFetched, run.BugsCreated, run.BugsUpdated, run.BugsFailed, run.LinksResolved)
			if run.LastError != "" {
				fmt.Printf("Error:    %s\n", run.LastError)
			}
			return nil
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
