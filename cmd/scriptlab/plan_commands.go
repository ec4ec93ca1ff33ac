package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"scriptlab/internal/daemon"
	"scriptlab/internal/logging"
	"scriptlab/internal/media"
	"scriptlab/internal/plan"
	"scriptlab/internal/planner"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Generate plans without a running daemon",
	}
	planCmd.AddCommand(newPlanGenerateCommand(ctx))
	planCmd.AddCommand(newPlanFormatsCommand())
	return planCmd
}

func newPlanGenerateCommand(ctx *commandContext) *cobra.Command {
	var briefPath string
	var noCritique bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a production plan from a YAML brief",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(briefPath) == "" {
				return fmt.Errorf("--brief is required")
			}
			brief, err := planner.LoadBrief(briefPath)
			if err != nil {
				return err
			}

			logger, err := logging.New(logging.Options{
				Level:            "warn",
				Format:           "console",
				OutputPaths:      []string{"stderr"},
				ErrorOutputPaths: []string{"stderr"},
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			files, err := media.NewStore(cfg.Paths.MediaDir, cfg.MediaURL)
			if err != nil {
				return err
			}
			providers, err := daemon.BuildProviders(cmd.Context(), cfg, files)
			if err != nil {
				return err
			}

			p := planner.New(providers.Text,
				planner.WithLogger(logger),
				planner.WithCritique(cfg.Generation.Critique && !noCritique),
			)
			result, err := p.Generate(cmd.Context(), brief)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := plan.MarshalEnvelope(result.Plan)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			}
			md := planMarkdown(brief.Idea, result.Plan)
			if summary := strings.TrimSpace(result.CritiqueSummary); summary != "" {
				md += "## Critique\n\n" + summary + "\n"
			}
			rendered, err := renderMarkdown(md, shouldColorize(out))
			if err != nil {
				return err
			}
			fmt.Fprint(out, rendered)
			return nil
		},
	}
	cmd.Flags().StringVarP(&briefPath, "brief", "b", "", "Path to a YAML brief")
	cmd.Flags().BoolVar(&noCritique, "no-critique", false, "Skip the critique pass")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the plan envelope as JSON")
	return cmd
}

func newPlanFormatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "formats",
		Short:       "List supported content formats",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			formats := planner.Formats()
			table := make([][]string, 0, len(formats))
			for _, f := range formats {
				table = append(table, []string{
					f.Name,
					f.Label(),
					strconv.Itoa(f.MinScenes) + "-" + strconv.Itoa(f.MaxScenes),
					f.Guidance,
				})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"Name", "Label", "Scenes", "Guidance"},
				table,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}
