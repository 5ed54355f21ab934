package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/amitmag/flowtrace/internal/config"
	"github.com/amitmag/flowtrace/internal/healthcheck"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize flowtrace configuration interactively",
	Long: `Guides you through setting up flowtrace configuration step by step.
Creates a config file with evaluation, output and cache settings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit(cmd)
	},
}

func runInit(cmd *cobra.Command) error {
	cfg := config.DefaultConfig()
	out := cmd.OutOrStdout()

	// === SECTION 1: Evaluation ===
	stepLimit := strconv.Itoa(cfg.StepLimit)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Step limit").
				Description("Statements and loop iterations allowed per condition evaluation").
				Placeholder(strconv.Itoa(config.DefaultStepLimit)).
				Value(&stepLimit).
				Validate(func(s string) error {
					n, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil || n <= 0 {
						return fmt.Errorf("enter a positive whole number")
					}
					return nil
				}),
			huh.NewConfirm().
				Title("Drop repeated edges?").
				Description("Nested conditions emit some edges more than once").
				Value(&cfg.DedupeEdges),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	cfg.StepLimit, _ = strconv.Atoi(strings.TrimSpace(stepLimit))

	// === SECTION 2: Output and cache ===
	format := string(cfg.OutputFormat)
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Default output format").
				Description("What `flowtrace build` prints").
				Options(
					huh.NewOption("flowchart.js diagram", string(config.OutputFlowchart)),
					huh.NewOption("JSON (graph and diagram)", string(config.OutputJSON)),
					huh.NewOption("MessagePack (graph and diagram)", string(config.OutputMsgpack)),
				).
				Value(&format),
			huh.NewConfirm().
				Title("Cache rendered diagrams?").
				Description(fmt.Sprintf("Stored at %s", cfg.CachePath)).
				Value(&cfg.CacheEnabled),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	cfg.OutputFormat = config.OutputFormat(format)

	// === SECTION 3: Config Location ===
	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Global (~/.flowtrace/config.yaml)", "global"),
					huh.NewOption("Project (./.flowtrace/config.yaml)", "project"),
				).
				Value(&saveLocationChoice),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	configPath := config.ProjectConfigFilePath()
	if saveLocationChoice == "global" {
		configPath = config.GlobalConfigFilePath()
	}

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	fmt.Fprintln(out, "\n=== Configuration Preview ===")
	fmt.Fprintf(out, "Config path: %s\n", configPath)
	fmt.Fprintf(out, "Step limit: %d\n", cfg.StepLimit)
	fmt.Fprintf(out, "Dedupe edges: %t\n", cfg.DedupeEdges)
	fmt.Fprintf(out, "Output format: %s\n", cfg.OutputFormat)
	if cfg.CacheEnabled {
		fmt.Fprintf(out, "Cache: %s (%d entries)\n", cfg.CachePath, cfg.CacheMaxEntries)
	} else {
		fmt.Fprintln(out, "Cache: disabled")
	}
	fmt.Fprintln(out, "================================")

	// Save config
	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintf(out, "Configuration saved to: %s\n", configPath)

	fmt.Fprintln(out, "\n=== Running Health Check ===")
	result, err := healthcheck.Check(cmd.Context(), cfg, configPath, configPath)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Fprintf(out, "\nConfig Scope: %s\n", result.SavedScope)
	if result.SavedScope == "project" {
		if absPath, err := filepath.Abs(configPath); err == nil {
			fmt.Fprintf(out, "Config Path: %s\n\n", absPath)
		}
	}
	displayDoctorResult(out, result)
	return nil
}

func init() {
	RootCmd.AddCommand(initCmd)
}
