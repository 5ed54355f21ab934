package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/amitmag/flowtrace/internal/config"
	"github.com/amitmag/flowtrace/internal/healthcheck"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on configuration, renderer and cache",
	Long: `Renders a small probe function with the effective configuration and
verifies that the diagram cache file can be read.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		configPath := effectiveConfigPath(cmd)
		result, err := healthcheck.Check(cmd.Context(), cfg, configPath, configPath)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		displayDoctorResult(cmd.OutOrStdout(), result)

		if result.HasError() {
			return fmt.Errorf("health check failed: one or more components are not working")
		}
		return nil
	},
}

// effectiveConfigPath returns the file Load gives the last word to, or ""
// when only defaults and environment variables are in effect.
func effectiveConfigPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	for _, path := range []string{config.ProjectConfigFilePath(), config.GlobalConfigFilePath()} {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func displayDoctorResult(w io.Writer, result *healthcheck.HealthCheckResult) {
	if result.EffectivePath != "" {
		fmt.Fprintf(w, "Using config: %s (%s)\n\n", result.EffectivePath, result.EffectiveScope)
	} else {
		fmt.Fprintf(w, "Using config: defaults (run 'flowtrace init' to create a file)\n\n")
	}

	for _, c := range []healthcheck.ComponentStatus{result.Renderer, result.Cache} {
		fmt.Fprintf(w, "%s:\n", c.Name)
		if c.Detail != "" {
			fmt.Fprintf(w, "  Detail: %s\n", c.Detail)
		}
		fmt.Fprintf(w, "  Status: %s %s\n", formatStatusIcon(c.Status), c.Status)
		if c.Error != "" && c.Status == "error" {
			fmt.Fprintf(w, "  Error: %s\n", c.Error)
		}
	}
}

func formatStatusIcon(status string) string {
	switch status {
	case "ready", "empty":
		return "✓"
	case "disabled":
		return "-"
	case "error":
		return "✗"
	default:
		return "?"
	}
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}
