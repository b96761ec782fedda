package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ckscraper/pkg/config"
	errs "ckscraper/pkg/errors"
	"ckscraper/pkg/ui"
)

func newConfigCmd(a *app) *cobra.Command {
	var force bool

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
		Long: `Manage ckscraper configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (CKSCRAPER_*, also read from .env files)
  - Configuration file
  - Default values (lowest priority)`,
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the default values",
		Long: `Write a configuration file holding every option with its default value.

The file goes to the --config path, or to ~/.config/ckscraper/config.yaml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runConfigInit(force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "replace an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runConfigShow()
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long: `Validate the configuration for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Value types and ranges
  - Output and log directories can be created`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runConfigValidate()
		},
	}

	configCmd.AddCommand(initCmd, showCmd, validateCmd)
	return configCmd
}

func (a *app) configPath() string {
	if a.configFile != "" {
		return a.configFile
	}
	return config.DefaultPath()
}

func (a *app) runConfigInit(force bool) error {
	path := a.configPath()
	if _, err := os.Stat(path); err == nil && !force {
		return usageError("configuration file %s already exists (use --force to replace it)", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return errs.Wrap(errs.ErrorTypeConfig, err, "writing configuration")
	}

	ui.PrintSuccess("Configuration file created: " + path)
	ui.PrintMessage("\nNext steps:")
	ui.PrintMessage("1. Set site.host to the site you use, e.g. coomer.su")
	ui.PrintMessage("2. Run 'ckscraper config validate' to check the file")
	ui.PrintMessage("3. Run 'ckscraper -u <user> -a list-files'")
	return nil
}

func (a *app) runConfigShow() error {
	cfg, err := config.Load(a.configFile, nil)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeConfig, err, "loading configuration")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeUnknown, err, "formatting configuration")
	}
	fmt.Fprint(a.out, string(data))

	ui.PrintMessage("\nConfiguration sources (in order of priority):")
	ui.PrintMessage("1. Command line flags")
	ui.PrintMessage("2. Environment variables (" + config.EnvPrefix + "*)")
	if a.configFile != "" {
		ui.PrintMessage("3. Configuration file: " + a.configFile)
	} else {
		ui.PrintMessage("3. Configuration file: (searched in default locations)")
	}
	ui.PrintMessage("4. Default values")
	return nil
}

func (a *app) runConfigValidate() error {
	if a.configFile != "" {
		if _, err := os.Stat(a.configFile); err != nil {
			return errs.Wrap(errs.ErrorTypeConfig, err, "configuration file")
		}
		ui.PrintInfo("Validating configuration", a.configFile)
	}

	cfg, err := config.Load(a.configFile, nil)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeConfig, err, "configuration is invalid")
	}

	var problems []string
	if err := os.MkdirAll(cfg.Output.BaseDirectory, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("cannot create output directory: %v", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}
	if len(problems) > 0 {
		for _, p := range problems {
			ui.PrintError("  - " + p)
		}
		return usageError("configuration has %d problem(s)", len(problems))
	}

	if cfg.Site.Host == "" {
		ui.PrintWarning("site.host is not set, --web-site will be required")
	}

	ui.PrintSuccess("Configuration is valid")
	ui.PrintMessage("\nConfiguration summary:")
	ui.PrintMessage(fmt.Sprintf("  Site: %s (%s)", cfg.Site.Host, cfg.Site.Service))
	ui.PrintMessage(fmt.Sprintf("  Output directory: %s", cfg.Output.BaseDirectory))
	ui.PrintMessage(fmt.Sprintf("  Rate limit: %d requests/minute", cfg.RateLimit.RequestsPerMinute))
	ui.PrintMessage(fmt.Sprintf("  Max attempts: %d", cfg.Download.MaxAttempts))
	ui.PrintMessage(fmt.Sprintf("  Log level: %s", cfg.Logging.Level))
	return nil
}
