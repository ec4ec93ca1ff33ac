package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scriptlab/internal/api"
	"scriptlab/internal/logging"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var limit int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print buffered daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()
			out := cmd.OutOrStdout()

			page, err := client.Logs(cmd.Context(), 0, limit, false)
			if err != nil {
				return err
			}
			printLogEvents(out, page.Events)
			if !follow {
				return nil
			}
			return followLogs(cmd.Context(), client, out, page.Next)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new events")
	cmd.Flags().IntVarP(&limit, "lines", "n", 200, "Maximum events per page")
	return cmd
}

func followLogs(ctx context.Context, client *api.Client, out io.Writer, since uint64) error {
	for {
		page, err := client.Logs(ctx, since, 0, true)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			// The daemon may be restarting; back off and resume.
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		printLogEvents(out, page.Events)
		if page.Next > since {
			since = page.Next
		}
	}
}

func printLogEvents(out io.Writer, events []logging.LogEvent) {
	for _, evt := range events {
		fmt.Fprintln(out, formatLogEvent(evt))
	}
}

func formatLogEvent(evt logging.LogEvent) string {
	var b strings.Builder
	b.WriteString(evt.Timestamp.Local().Format("15:04:05"))
	b.WriteString(" ")
	fmt.Fprintf(&b, "%-5s", strings.ToUpper(evt.Level))
	if evt.Component != "" {
		fmt.Fprintf(&b, " [%s]", evt.Component)
	}
	b.WriteString(" ")
	b.WriteString(evt.Message)
	if evt.WorkflowID != "" {
		fmt.Fprintf(&b, " workflow=%s", evt.WorkflowID)
	}
	if evt.SlotID != "" {
		fmt.Fprintf(&b, " slot=%s", evt.SlotID)
	}
	keys := make([]string, 0, len(evt.Fields))
	for k := range evt.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, evt.Fields[k])
	}
	return b.String()
}
