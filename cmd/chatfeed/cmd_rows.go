package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/user/chatfeed/internal/rowadapter"
)

func init() {
	rootCmd.AddCommand(rowsCmd)
}

var rowsCmd = &cobra.Command{
	Use:   "rows <file>",
	Short: "Map a JSON array of raw persisted rows to canonical events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read rows file: %w", err)
		}

		var rows []rowadapter.Row
		if err := json.Unmarshal(data, &rows); err != nil {
			return fmt.Errorf("decode rows file: %w", err)
		}

		adapter := rowadapter.New()
		events, errs := adapter.MapBatch(rows)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSESSION\tKIND\tCREATED\tPAYLOAD")
		for _, ev := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				ev.ID, ev.SessionID, ev.Kind, ev.CreatedAt, payloadSummary(ev.Payload))
		}
		w.Flush()

		if len(errs) > 0 {
			fmt.Fprintf(os.Stderr, "\n%d row(s) failed to map:\n", len(errs))
			for _, rerr := range errs {
				fmt.Fprintf(os.Stderr, "  %v\n", rerr)
			}
		}
		fmt.Printf("\n%d mapped, %d failed\n", len(events), len(errs))
		return nil
	},
}
