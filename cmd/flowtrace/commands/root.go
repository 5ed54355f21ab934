package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amitmag/flowtrace/internal/config"
	"github.com/amitmag/flowtrace/internal/log"
)

// BuildTime is set by main from the linker flags.
var BuildTime = ""

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "flowtrace",
	Short: "flowtrace - feasibility-annotated control flow diagrams",
	Long: `flowtrace walks a JavaScript function, decides for every branch whether it
is taken under the argument values you give, and prints the control flow
graph as a flowchart.js diagram.

Commands:
  build       Print the diagram of a function
  trace       Print the source reconstructed while building
  list        List the functions found under a directory
  init        Write a configuration file interactively
  doctor      Check the renderer and the diagram cache
  version     Print version information

Use "flowtrace [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Config file path (default: global then project config)")
	RootCmd.PersistentFlags().BoolP("verbose", "V", false, "Debug logging")
	RootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON lines")
}

// loadConfig reads the config selected by --config, or the layered default,
// and applies the logging flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if cmd.Flags().Changed("verbose") {
		cfg.Verbose, _ = cmd.Flags().GetBool("verbose")
	}
	if cmd.Flags().Changed("log-json") {
		cfg.LogJSON, _ = cmd.Flags().GetBool("log-json")
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) log.Logger {
	level := log.WarnLevel
	if cfg.Verbose {
		level = log.DebugLevel
	}
	return log.New(log.LoggerConfig{Level: level, JSONOutput: cfg.LogJSON, Output: cmd.ErrOrStderr()})
}
