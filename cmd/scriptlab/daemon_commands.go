package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scriptlab/internal/config"
	"scriptlab/internal/daemonctl"
	"scriptlab/internal/daemonrun"
	"scriptlab/internal/preflight"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scriptlab daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx.logLevel = &logLevel
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    ctx.resolvedLogLevel(cfg),
				Development: development,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for this run")
	cmd.Flags().BoolVar(&development, "dev", false, "Use development logging (source locations)")
	return cmd
}

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the scriptlab daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), ctx.client(), exe, daemonctl.LaunchOptions{
				ConfigPath: ctx.configPath(),
			}, 10*time.Second)
			if err != nil {
				return err
			}
			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the background scriptlab daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			result, err := daemonctl.Stop(cmd.Context(), ctx.client(), daemonrun.PIDPath(cfg), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var runChecks bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, provider, and workflow status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			client := ctx.client()

			running, pid, err := daemonctl.ProcessInfo(cmd.Context(), client, daemonrun.PIDPath(cfg))
			if err != nil {
				return err
			}

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}
			switch {
			case running && pid > 0:
				fmt.Fprintln(stdout, renderStatusLine("Scriptlab", statusOK, fmt.Sprintf("Running (pid %d)", pid), colorize))
			case running:
				fmt.Fprintln(stdout, renderStatusLine("Scriptlab", statusOK, "Running", colorize))
			default:
				fmt.Fprintln(stdout, renderStatusLine("Scriptlab", statusError, "Not running", colorize))
			}
			fmt.Fprintln(stdout, renderStatusLine("Database", statusInfo, cfg.DatabasePath(), colorize))
			fmt.Fprintln(stdout, renderStatusLine("Media", statusInfo, cfg.Paths.MediaDir, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Auth required", statusInfo, yesNo(strings.TrimSpace(cfg.API.Token) != ""), colorize))
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Providers", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range providerLines(cfg, colorize) {
				fmt.Fprintln(stdout, line)
			}

			if runChecks {
				fmt.Fprintln(stdout)
				for _, line := range renderSectionHeader("Checks", colorize) {
					fmt.Fprintln(stdout, line)
				}
				for _, line := range preflightLines(preflight.RunAll(cmd.Context(), cfg), colorize) {
					fmt.Fprintln(stdout, line)
				}
			}

			if !running {
				return nil
			}
			workflows, err := client.ListWorkflows(cmd.Context(), 10)
			if err != nil {
				return fmt.Errorf("list workflows: %w", err)
			}
			fmt.Fprintln(stdout)
			for _, line := range renderSectionHeader("Recent Workflows", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if len(workflows) == 0 {
				fmt.Fprintln(stdout, "No workflows yet")
				return nil
			}
			fmt.Fprint(stdout, renderWorkflowTable(workflows))
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&runChecks, "check", false, "Run provider and directory checks")

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func providerLines(cfg *config.Config, colorize bool) []string {
	lines := []string{
		renderStatusLine("Text", statusInfo, textProviderLabel(cfg), colorize),
		renderStatusLine("Images", statusInfo, cfg.Media.ImageProvider, colorize),
	}
	if strings.TrimSpace(cfg.Media.RenderURL) != "" {
		lines = append(lines, renderStatusLine("Video/Audio", statusInfo, "render ("+cfg.Media.RenderURL+")", colorize))
	} else {
		lines = append(lines, renderStatusLine("Video/Audio", statusWarn, "not configured", colorize))
	}
	lines = append(lines, renderStatusLine("Critique", statusInfo, yesNo(cfg.Generation.Critique), colorize))
	return lines
}

func textProviderLabel(cfg *config.Config) string {
	if cfg.LLM.Provider == config.ProviderGemini {
		return "gemini (" + cfg.Gemini.TextModel + ")"
	}
	return cfg.LLM.Provider + " (" + cfg.LLM.Model + ")"
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}
