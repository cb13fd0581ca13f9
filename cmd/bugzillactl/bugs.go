package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// bugSummary mirrors the fields of the server's bug JSON shown in listings.
type bugSummary struct {
	BzID     int64  `json:"bzId"`
	Product  string `json:"product"`
	Severity string `json:"severity"`
	Status   string `json:"status"`
	IsOpen   bool   `json:"isOpen"`
	Summary  string `json:"summary"`
}

func newBugsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bugs",
		Short: "Inspect mirrored bugs",
	}

	cmd.AddCommand(newBugsListCmd())
	cmd.AddCommand(newBugsGetCmd())

	return cmd
}

func newBugsListCmd() *cobra.Command {
	var (
		status   string
		product  string
		severity string
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List mirrored bugs",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			if status != "" {
				params.Set("status", status)
			}
			if product != "" {
				params.Set("product", product)
			}
			if severity != "" {
				params.Set("severity", severity)
			}
			if pageSize > 0 {
				params.Set("pageSize", fmt.Sprint(pageSize))
			}

			path := "/api/v1/bugs"
			if encoded := params.Encode(); encoded != "" {
				path += "?" + encoded
			}

			data, err := globalClient.doRequest("GET", path, nil)
			if err != nil {
				return err
			}

			var body struct {
				Bugs []bugSummary `json:"bugs"`
			}
			if err := json.Unmarshal(data, &body); err != nil {
				return fmt.Errorf("decoding response: %w", err)
			}

			if outputFlag == "json" {
				return printJSON(body.Bugs)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPRODUCT\tSEVERITY\tSTATUS\tSUMMARY")
			for _, bug := range body.Bugs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
					bug.BzID, bug.Product, bug.Severity, bug.Status, truncate(bug.Summary, 60))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status name")
	cmd.Flags().StringVar(&product, "product", "", "Filter by product name")
	cmd.Flags().StringVar(&severity, "severity", "", "Filter by severity name")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Page size")

	return cmd
}

func newBugsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <bz-id>",
		Short: "Show one mirrored bug",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := globalClient.doRequest("GET", "/api/v1/bugs/"+args[0], nil)
			if err != nil {
				return err
			}

			var pretty map[string]any
			if err := json.Unmarshal(data, &pretty); err != nil {
				return fmt.Errorf("decoding response: %w", err)
			}
			return printJSON(pretty)
		},
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
