// Package flowtrace ties the pipeline together: parse a function, build its
// feasibility-annotated control flow graph under a set of argument
// bindings, and serialize it as a flowchart.js diagram.
package flowtrace

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/amitmag/flowtrace/internal/log"
	"github.com/amitmag/flowtrace/pkg/args"
	"github.com/amitmag/flowtrace/pkg/ast"
	"github.com/amitmag/flowtrace/pkg/cache"
	"github.com/amitmag/flowtrace/pkg/cfg"
	"github.com/amitmag/flowtrace/pkg/flowchart"
	"github.com/amitmag/flowtrace/pkg/parser"
)

// ErrFunctionNotFound is returned when Request.Function names no top-level
// function of the source.
var ErrFunctionNotFound = errors.New("function not found")

// Format is the encoding of Request.Source.
type Format string

const (
	FormatJS     Format = "js"     // JavaScript source text
	FormatESTree Format = "estree" // ESTree/esprima JSON
)

// FormatFromPath picks the source format from a file extension: .json is
// ESTree, anything else JavaScript.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatESTree
	}
	return FormatJS
}

// Request is one rendering job.
type Request struct {
	Source   []byte
	Format   Format // FormatJS when empty
	Function string // Render only this top-level function; all when empty
	Bindings *args.Bindings
	Dedupe   bool // Drop repeated edge lines
}

// Result holds the graph and its diagram text. Results may be shared
// through the cache and must not be modified.
type Result struct {
	Graph   *cfg.Graph `json:"graph" msgpack:"graph"`
	Diagram string     `json:"diagram" msgpack:"diagram"`
}

// Renderer runs requests. It is safe for concurrent use.
type Renderer struct {
	cache     *cache.LRU[Result]
	logger    log.Logger
	stepLimit int
	dedupe    bool
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithCache memoizes results. Construction is deterministic, so a hit is
// identical to a fresh render.
func WithCache(c *cache.LRU[Result]) Option {
	return func(r *Renderer) { r.cache = c }
}

func WithLogger(l log.Logger) Option {
	return func(r *Renderer) { r.logger = l }
}

// WithStepLimit bounds each condition evaluation.
func WithStepLimit(n int) Option {
	return func(r *Renderer) { r.stepLimit = n }
}

// WithDedupe drops repeated edges for every request.
func WithDedupe() Option {
	return func(r *Renderer) { r.dedupe = true }
}

// New creates a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{logger: log.Discard()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Parse decodes src in the given format into a program, narrowed to the
// named function when name is not empty.
func Parse(ctx context.Context, src []byte, format Format, name string) (*ast.Program, error) {
	var (
		prog *ast.Program
		err  error
	)
	switch format {
	case FormatJS, "":
		prog, err = parser.Parse(ctx, src)
	case FormatESTree:
		prog, err = ast.DecodeESTree(src)
	default:
		return nil, fmt.Errorf("unknown source format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if name == "" {
		return prog, nil
	}

	fn := ast.FindFunction(prog, name)
	if fn == nil {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}
	return &ast.Program{Body: []ast.Stmt{fn}}, nil
}

// Render parses, builds and serializes req.
func (r *Renderer) Render(ctx context.Context, req Request) (*Result, error) {
	dedupe := req.Dedupe || r.dedupe
	key := r.key(req, dedupe)
	if r.cache != nil {
		if res, ok := r.cache.Get(key); ok {
			r.logger.Debug("cache hit", "key", key[:12])
			return &res, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prog, err := Parse(ctx, req.Source, req.Format, req.Function)
	if err != nil {
		return nil, err
	}

	g, err := cfg.Build(prog, req.Bindings, cfg.WithStepLimit(r.stepLimit), cfg.WithLogger(r.logger))
	if err != nil {
		return nil, err
	}

	var opts []flowchart.Option
	if dedupe {
		opts = append(opts, flowchart.WithDedupe())
	}
	diagram, err := flowchart.Marshal(g, opts...)
	if err != nil {
		return nil, err
	}

	res := Result{Graph: g, Diagram: string(diagram)}
	r.logger.Debug("rendered graph", "nodes", g.Len(), "bytes", len(diagram))
	if r.cache != nil {
		r.cache.Set(key, res)
	}
	return &res, nil
}

func (r *Renderer) key(req Request, dedupe bool) string {
	format := req.Format
	if format == "" {
		format = FormatJS
	}
	parts := []string{
		string(format),
		req.Function,
		strconv.Itoa(r.stepLimit),
		strconv.FormatBool(dedupe),
		string(req.Source),
	}
	for _, name := range req.Bindings.Names() {
		v, _ := req.Bindings.Get(name)
		parts = append(parts, name, v.Literal())
	}
	return cache.Key(parts...)
}
