package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entrhq/coursebot/pkg/config"
)

// cliFlags holds the root command's persistent flags.
type cliFlags struct {
	configPath string
	envFile    string
	headless   bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &cliFlags{}

	root := &cobra.Command{
		Use:          "coursebot",
		Short:        "Register for courses as soon as slots open",
		Long:         "coursebot logs in to the course registration system, solves the login captcha through an OCR service and submits the configured courses until each one is confirmed.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.ErrOrStderr())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", config.DefaultPath, "path to the YAML config file")
	pf.StringVar(&flags.envFile, "env-file", "", "dotenv file with secrets (default .env when present)")
	pf.BoolVar(&flags.headless, "headless", true, "run the browser without a window")
	pf.StringVar(&flags.logLevel, "log-level", "", "override log.level: debug, info, warn or error")

	root.AddCommand(newCheckCmd(flags), newVersionCmd())
	return root
}

func newCheckCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config and print what a run would submit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if _, err := newEngineConfig(cfg); err != nil {
				return err
			}
			if _, err := newPendingSet(cfg); err != nil {
				return err
			}
			printPlan(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "coursebot v%s\n", version)
		},
	}
}

// loadConfig reads the env file, the config file and the flag overrides.
func loadConfig(cmd *cobra.Command, flags *cliFlags) (*config.Config, error) {
	if err := config.LoadEnvFile(flags.envFile); err != nil {
		return nil, err
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = flags.headless
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// printPlan writes a human-readable summary of cfg without secrets.
func printPlan(w io.Writer, cfg *config.Config) {
	track := "non-degree"
	if cfg.DegreeTrack {
		track = "degree"
	}

	fmt.Fprintf(w, "account:   %s\n", cfg.Auth.Username)
	fmt.Fprintf(w, "term:      %s (%s courses)\n", cfg.Semester, track)
	fmt.Fprintf(w, "ocr:       %s\n", cfg.OCR.Provider)
	fmt.Fprintf(w, "submit:    %s, classify by %s\n", cfg.SubmitMode, cfg.Classify.Mode)
	fmt.Fprintf(w, "timeout:   %s per attempt, %s between submits\n", cfg.Timings.AttemptTimeout, cfg.Timings.Pacing)
	fmt.Fprintf(w, "results:   %s\n", cfg.ResultsDir)
	fmt.Fprintf(w, "courses:\n")
	for _, c := range cfg.Courses {
		if c.Token != "" {
			fmt.Fprintf(w, "  - %s\n", c.Token)
			continue
		}
		fmt.Fprintf(w, "  - %s sections %s\n", c.ID, strings.Join(c.Sections, ", "))
	}
}
