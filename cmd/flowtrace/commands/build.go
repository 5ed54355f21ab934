// Package commands provides the CLI commands for flowtrace.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/amitmag/flowtrace/internal/config"
	"github.com/amitmag/flowtrace/pkg/args"
	"github.com/amitmag/flowtrace/pkg/ast"
	"github.com/amitmag/flowtrace/pkg/cache"
	"github.com/amitmag/flowtrace/pkg/flowtrace"
)

// buildCmd represents the build command
var buildCmd = &cobra.Command{
	Use:   "build <file>",
	Short: "Print the flowchart.js diagram of a function",
	Long: `Builds the control flow graph of the functions in <file> (JavaScript, or
ESTree JSON when the file ends in .json) and prints it.

Argument values are literals: --arg n=5 --arg name='"bob"' --arg xs=[1, 2].
Every parameter of a rendered function needs a value.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, argv []string) error {
		cfg, res, err := render(cmd, argv[0])
		if err != nil {
			return err
		}

		format := cfg.OutputFormat
		if cmd.Flags().Changed("format") {
			f, _ := cmd.Flags().GetString("format")
			format = config.OutputFormat(strings.ToLower(f))
		}
		return writeResult(cmd.OutOrStdout(), res, format)
	},
}

// traceCmd represents the trace command
var traceCmd = &cobra.Command{
	Use:   "trace <file>",
	Short: "Print the source reconstructed while building the graph",
	Long: `Prints the statement log the builder evaluated branch conditions against:
the argument declarations followed by the function body without returns.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, argv []string) error {
		_, res, err := render(cmd, argv[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Graph.Source)
		return nil
	},
}

func writeResult(w io.Writer, res *flowtrace.Result, format config.OutputFormat) error {
	switch format {
	case config.OutputFlowchart, "":
		_, err := io.WriteString(w, res.Diagram)
		return err
	case config.OutputJSON:
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case config.OutputMsgpack:
		data, err := msgpack.Marshal(res)
		if err != nil {
			return fmt.Errorf("marshaling msgpack: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown format %q (use flowchart, json or msgpack)", format)
	}
}

// render runs the shared part of build and trace: config, bindings,
// optional interactive prompting, cache, and the render itself.
func render(cmd *cobra.Command, path string) (*config.Config, *flowtrace.Result, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cmd, cfg)

	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, nil, fmt.Errorf("path is a directory, expected a file: %s", path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading source: %w", err)
	}

	bindings, err := collectBindings(cmd)
	if err != nil {
		return nil, nil, err
	}

	function, _ := cmd.Flags().GetString("function")
	format := flowtrace.FormatFromPath(path)
	if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
		prog, err := flowtrace.Parse(cmd.Context(), src, format, function)
		if err != nil {
			return nil, nil, err
		}
		if err := promptMissing(bindings, parameters(prog)); err != nil {
			return nil, nil, err
		}
	}

	opts := []flowtrace.Option{
		flowtrace.WithLogger(logger),
		flowtrace.WithStepLimit(cfg.StepLimit),
	}
	noCache, _ := cmd.Flags().GetBool("no-cache")
	var lru *cache.LRU[flowtrace.Result]
	if cfg.CacheEnabled && !noCache {
		lru = cache.New(cache.Options[flowtrace.Result]{MaxSize: cfg.CacheMaxEntries})
		if err := cache.LoadFromFile(lru, cfg.CachePath); err != nil {
			logger.Warn("ignoring unreadable cache", "path", cfg.CachePath, "error", err)
			lru.Clear()
		}
		opts = append(opts, flowtrace.WithCache(lru))
	}

	dedupe, _ := cmd.Flags().GetBool("dedupe")
	res, err := flowtrace.New(opts...).Render(cmd.Context(), flowtrace.Request{
		Source:   src,
		Format:   format,
		Function: function,
		Bindings: bindings,
		Dedupe:   dedupe || cfg.DedupeEdges,
	})
	if err != nil {
		return nil, nil, err
	}

	if lru != nil {
		if err := cache.PersistToFile(lru, cfg.CachePath); err != nil {
			logger.Warn("failed to save cache", "path", cfg.CachePath, "error", err)
		}
		stats := lru.Stats()
		logger.Debug("cache", "entries", stats.Length, "hits", stats.HitCount, "misses", stats.MissCount)
	}
	return cfg, res, nil
}

// collectBindings reads --args-file first, then lets --arg pairs override it.
func collectBindings(cmd *cobra.Command) (*args.Bindings, error) {
	bindings := args.New()
	if file, _ := cmd.Flags().GetString("args-file"); file != "" {
		fromFile, err := args.LoadFile(file)
		if err != nil {
			return nil, err
		}
		bindings.Merge(fromFile)
	}

	pairs, _ := cmd.Flags().GetStringArray("arg")
	fromFlags, err := args.ParsePairs(pairs)
	if err != nil {
		return nil, err
	}
	bindings.Merge(fromFlags)
	return bindings, nil
}

func parameters(prog *ast.Program) []string {
	var names []string
	for _, fn := range ast.Functions(prog) {
		for _, p := range fn.Params {
			names = append(names, p.Name)
		}
	}
	return names
}

// promptMissing asks for a value for every parameter without a binding,
// one input row per parameter.
func promptMissing(bindings *args.Bindings, params []string) error {
	missing := bindings.Missing(params)
	if len(missing) == 0 {
		return nil
	}

	values := make([]string, len(missing))
	fields := make([]huh.Field, len(missing))
	for i, name := range missing {
		fields[i] = huh.NewInput().
			Title(name).
			Description("Literal value, or [a, b] for an array").
			Value(&values[i]).
			Validate(validLiteral)
	}
	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	for i, name := range missing {
		bindings.Set(name, args.ParseValue(strings.TrimSpace(values[i])))
	}
	return nil
}

func validLiteral(s string) error {
	_, err := args.ParseValue(strings.TrimSpace(s)).Resolve()
	return err
}

func addRenderFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayP("arg", "a", nil, "Argument value as name=literal (repeatable)")
	cmd.Flags().String("args-file", "", "YAML, JSON or HCL file of argument values")
	cmd.Flags().StringP("function", "f", "", "Render only this function")
	cmd.Flags().BoolP("interactive", "i", false, "Prompt for missing argument values")
	cmd.Flags().Bool("no-cache", false, "Bypass the diagram cache")
	cmd.Flags().Bool("dedupe", false, "Drop repeated edge lines")
}

func init() {
	addRenderFlags(buildCmd)
	buildCmd.Flags().String("format", "", "Output format: flowchart, json or msgpack (default from config)")
	addRenderFlags(traceCmd)

	RootCmd.AddCommand(buildCmd)
	RootCmd.AddCommand(traceCmd)
}
