package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/user/chatfeed/internal/sse"
	"github.com/user/chatfeed/internal/types"
)

func init() {
	rootCmd.AddCommand(replayCmd)
}

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Batch-parse a recorded SSE stream and print the decoded events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read fixture: %w", err)
		}

		results, errs := sse.ParseInput(string(data))

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tTYPE\tID\tSESSION\tKIND\tPAYLOAD")
		for i, res := range results {
			switch {
			case res.Event != nil:
				ev := res.Event
				fmt.Fprintf(w, "%d\tevent\t%s\t%s\t%s\t%s\n",
					i+1, ev.ID, ev.SessionID, ev.Kind, payloadSummary(ev.Payload))
			case res.Patch != nil:
				p := res.Patch
				fmt.Fprintf(w, "%d\tpatch\t->%s\t%s\t%s\t%s\n",
					i+1, p.TargetID, p.SessionID, p.Mode, payloadSummary(p.Payload))
			}
		}
		w.Flush()

		if len(errs) > 0 {
			fmt.Fprintf(os.Stderr, "\n%d frame(s) failed to decode:\n", len(errs))
			for _, derr := range errs {
				fmt.Fprintf(os.Stderr, "  %s: %v\n", derr.MessageID, derr.Err)
			}
		}
		fmt.Printf("\n%d decoded, %d failed\n", len(results), len(errs))
		return nil
	},
}

const maxSummaryChars = 60

func payloadSummary(p types.Payload) string {
	var s string
	switch {
	case p.Text != "":
		s = p.Text
	case p.ToolName != "":
		s = p.ToolName + " " + string(p.ToolArgs)
	case p.Content != "":
		s = p.Content
	case p.Detail != "":
		s = p.Detail
	case p.Reason != "":
		s = p.Reason
	default:
		return "-"
	}
	if len(s) > maxSummaryChars {
		s = s[:maxSummaryChars] + "..."
	}
	return s
}
