package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scriptlab/internal/api"
	"scriptlab/internal/assets"
	"scriptlab/internal/planner"
	"scriptlab/internal/workflow"
)

func newWorkflowCommand(ctx *commandContext) *cobra.Command {
	workflowCmd := &cobra.Command{
		Use:     "workflow",
		Aliases: []string{"wf"},
		Short:   "Manage workflows on a running daemon",
	}
	workflowCmd.AddCommand(newWorkflowListCommand(ctx))
	workflowCmd.AddCommand(newWorkflowShowCommand(ctx))
	workflowCmd.AddCommand(newWorkflowCreateCommand(ctx))
	workflowCmd.AddCommand(newWorkflowReplanCommand(ctx))
	workflowCmd.AddCommand(newWorkflowGenerateCommand(ctx))
	return workflowCmd
}

func newWorkflowListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			workflows, err := ctx.client().ListWorkflows(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(workflows) == 0 {
				fmt.Fprintln(out, "No workflows")
				return nil
			}
			fmt.Fprint(out, renderWorkflowTable(workflows))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum workflows to list")
	return cmd
}

func newWorkflowShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a workflow's plan and slots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := ctx.client().GetWorkflow(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, view)
			}
			return printWorkflowView(out, view)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the workflow view as JSON")
	return cmd
}

func newWorkflowCreateCommand(ctx *commandContext) *cobra.Command {
	var briefPath string
	var generate bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a workflow from a YAML brief",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(briefPath) == "" {
				return fmt.Errorf("--brief is required")
			}
			brief, err := planner.LoadBrief(briefPath)
			if err != nil {
				return err
			}
			view, err := ctx.client().CreateWorkflow(cmd.Context(), api.CreateWorkflowRequest{Brief: brief, Generate: generate})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created workflow %s (%s)\n", view.ID, view.Status)
			if generate {
				return printWorkflowView(out, view)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&briefPath, "brief", "b", "", "Path to a YAML brief")
	cmd.Flags().BoolVar(&generate, "generate", true, "Generate the plan immediately")
	return cmd
}

func newWorkflowReplanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "replan <id>",
		Short: "Regenerate a workflow's plan from its brief",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := ctx.client().GeneratePlan(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printWorkflowView(cmd.OutOrStdout(), view)
		},
	}
}

func newWorkflowGenerateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <id>",
		Short: "Generate every asset slot that is not ready",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := ctx.client().GenerateAll(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, bulkSummary(report))
			for _, failure := range report.Failed {
				fmt.Fprintf(out, "  failed %s: %s\n", failure.SlotID, failure.Error)
			}
			return nil
		},
	}
}

func renderWorkflowTable(workflows []workflow.Summary) string {
	rows := make([][]string, 0, len(workflows))
	for _, wf := range workflows {
		rows = append(rows, []string{
			wf.ID,
			wf.Title,
			string(wf.Status),
			strconv.FormatInt(wf.Revision, 10),
			wf.UpdatedAt.Local().Format(time.DateTime),
		})
	}
	return renderTable(
		[]string{"ID", "Title", "Status", "Rev", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func printWorkflowView(out io.Writer, view workflow.View) error {
	fmt.Fprintf(out, "Workflow %s  status=%s  revision=%d\n", view.ID, view.Status, view.Revision)
	if view.Error != "" {
		fmt.Fprintf(out, "Last error: %s\n", view.Error)
	}
	fmt.Fprintln(out)

	rendered, err := renderMarkdown(planMarkdown(view.Title, view.Plan), shouldColorize(out))
	if err != nil {
		return err
	}
	fmt.Fprint(out, rendered)

	if len(view.Slots) == 0 {
		return nil
	}
	fmt.Fprint(out, renderSlotTable(view.Slots))
	return nil
}

func renderSlotTable(slots []assets.SlotView) string {
	rows := make([][]string, 0, len(slots))
	for _, slot := range slots {
		state := string(slot.State)
		if slot.InFlight {
			state += " (generating)"
		}
		result := ""
		if slot.Result != nil {
			result = slot.Result.URL
		}
		rows = append(rows, []string{slot.ID, state, strconv.Itoa(len(slot.References)), result})
	}
	return renderTable(
		[]string{"Slot", "State", "Refs", "Result"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func bulkSummary(report assets.BulkReport) string {
	return fmt.Sprintf("Generated %d, skipped %d, failed %d", len(report.Generated), len(report.Skipped), len(report.Failed))
}

func writeJSON(out io.Writer, value any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
