package main

import (
	"github.com/spf13/cobra"
)

// buildRunCmd creates the "run" command, which drives one prompt through
// the supervisor against whichever engine has credentials configured and
// prints the resulting event stream and final text.
func buildRunCmd() *cobra.Command {
	var (
		configPath string
		prompt     string
		provider   string
		workspace  string
		preview    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single prompt through the supervisor",
		Long: `Run loads a deployment config (or its defaults), wires every
provider engine with credentials present, and drives one supervised run.

Example:

  agentctl run --prompt "list the files in the workspace" --provider ollama`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), runOptions{
				configPath: configPath,
				prompt:     prompt,
				provider:   provider,
				workspace:  workspace,
				preview:    preview,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Prompt to run (required)")
	cmd.Flags().StringVar(&provider, "provider", "", "Preferred provider ID (defaults to router's choice)")
	cmd.Flags().StringVar(&workspace, "workspace", ".", "Workspace root directory")
	cmd.Flags().BoolVar(&preview, "preview", false, "Buffer file effects for explicit commit instead of applying them live")
	_ = cmd.MarkFlagRequired("prompt")

	return cmd
}

// buildDoctorCmd creates the "doctor" command, which reports which
// provider engines the loaded config has credentials for.
func buildDoctorCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Report which provider engines are configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}
