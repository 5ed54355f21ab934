package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amitmag/flowtrace/internal/scanner"
	"github.com/amitmag/flowtrace/pkg/ast"
	"github.com/amitmag/flowtrace/pkg/flowtrace"
)

var listCmd = &cobra.Command{
	Use:   "list [dir]",
	Short: "List the functions flowtrace can render",
	Long: `Scans a directory (default: current) for JavaScript sources, honouring
.flowtraceignore files, and prints every top-level function with its
parameters. Files that fail to parse are reported and skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) > 0 {
			root = args[0]
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(cmd, cfg)

		opts := scanner.DefaultOptions()
		if estree, _ := cmd.Flags().GetBool("estree"); estree {
			opts.Extensions = append(opts.Extensions, ".json")
		}
		files, err := scanner.New(opts).Scan(root)
		if err != nil {
			return err
		}
		logger.Debug("scanned", "root", root, "files", len(files))

		out := cmd.OutOrStdout()
		failed := 0
		for _, f := range files {
			if err := listFile(cmd, out, f); err != nil {
				logger.Warn("skipping file", "path", f.Path, "error", err)
				failed++
			}
		}
		if failed > 0 && failed == len(files) {
			return fmt.Errorf("no file under %s could be parsed", root)
		}
		return nil
	},
}

func listFile(cmd *cobra.Command, w io.Writer, f scanner.FileInfo) error {
	src, err := os.ReadFile(f.FullPath)
	if err != nil {
		return err
	}
	prog, err := flowtrace.Parse(cmd.Context(), src, flowtrace.FormatFromPath(f.Path), "")
	if err != nil {
		return err
	}
	for _, fn := range ast.Functions(prog) {
		fmt.Fprintf(w, "%s: %s\n", f.Path, signature(fn))
	}
	return nil
}

func signature(fn *ast.FunctionDeclaration) string {
	names := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		names[i] = p.Name
	}
	name := "<anonymous>"
	if fn.ID != nil {
		name = fn.ID.Name
	}
	return name + "(" + strings.Join(names, ", ") + ")"
}

func init() {
	listCmd.Flags().Bool("estree", false, "Also read .json files as ESTree documents")
	RootCmd.AddCommand(listCmd)
}
