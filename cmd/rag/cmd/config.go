package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Tije-csv/RAG-2.2/internal/config"
	"github.com/Tije-csv/RAG-2.2/internal/output"
)

func newConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the user and project configuration files.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/rag/config.yaml)
  3. Project config (.rag.yaml)
  4. Environment variables (RAG_*)`,
		Example: `  # Create the user config with defaults
  rag config init

  # Create a project config in the current directory
  rag config init --project

  # Show the effective configuration
  rag config show`,
	}

	cmd.AddCommand(newConfigInitCmd(opts))
	cmd.AddCommand(newConfigShowCmd(opts))
	cmd.AddCommand(newConfigPathCmd(opts))

	return cmd
}

func newConfigInitCmd(opts *globalOptions) *cobra.Command {
	var force, project bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the defaults",
		Long: `Write the default configuration to the user config file, or to
.rag.yaml in the project directory with --project. An existing file is
kept unless --force is given, in which case it is backed up first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, opts, force, project)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration")
	cmd.Flags().BoolVar(&project, "project", false, "Write .rag.yaml in the project directory")

	return cmd
}

func newConfigShowCmd(opts *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  `Show the configuration after merging defaults, config files and environment variables. Secrets are never printed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, err := opts.loadProject()
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, cfg)
			}
			redacted := *cfg
			redacted.Embeddings.APIKey = redact(cfg.Embeddings.APIKey)
			redacted.Generation.APIKey = redact(cfg.Generation.APIKey)
			redacted.Server.AdminKey = redact(cfg.Server.AdminKey)
			data, err := yaml.Marshal(&redacted)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newConfigPathCmd(opts *globalOptions) *cobra.Command {
	var project bool

	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := configPath(opts, project)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}

	cmd.Flags().BoolVar(&project, "project", false, "Print the project config path")

	return cmd
}

func runConfigInit(cmd *cobra.Command, opts *globalOptions, force, project bool) error {
	out := output.New(cmd.OutOrStdout())

	path, err := configPath(opts, project)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		if !force {
			out.Warning("Configuration already exists")
			out.Statusf("📁", "Location: %s", path)
			out.Newline()
			out.Status("💡", "Use --force to overwrite it (a backup is kept)")
			return nil
		}
		backup, err := config.BackupFile(path)
		if err != nil {
			return err
		}
		out.Statusf("💾", "Backup: %s", backup)
	}

	if err := config.NewConfig().WriteYAML(path); err != nil {
		return err
	}
	out.Successf("Configuration written to %s", path)
	return nil
}

func configPath(opts *globalOptions, project bool) (string, error) {
	if !project {
		return config.GetUserConfigPath(), nil
	}
	root, err := config.FindProjectRoot(opts.dir)
	if err != nil {
		return "", err
	}
	return config.ProjectConfigPath(root), nil
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
