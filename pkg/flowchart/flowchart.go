// Package flowchart serializes a cfg.Graph into flowchart.js diagram text.
package flowchart

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/amitmag/flowtrace/pkg/cfg"
)

// ErrMalformedGraph is returned when a node references an id outside the
// table, or a condition's outcome lookahead runs past the end.
var ErrMalformedGraph = errors.New("malformed graph")

type options struct {
	dedupe bool
}

// Option configures serialization.
type Option func(*options)

// WithDedupe drops edge lines that were already emitted. By default
// repeated edges are kept, since the yes/no resolution of nested
// conditions emits some edges more than once.
func WithDedupe() Option {
	return func(o *options) { o.dedupe = true }
}

// Marshal returns the diagram text of g.
func Marshal(g *cfg.Graph, opts ...Option) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, g, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes the diagram text of g to w: one declaration per node in
// table order, then the edges.
func Encode(w io.Writer, g *cfg.Graph, opts ...Option) error {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if g == nil {
		return fmt.Errorf("%w: nil graph", ErrMalformedGraph)
	}
	for i, n := range g.Nodes {
		if n == nil || n.ID != i+1 {
			return fmt.Errorf("%w: table position %d does not hold node %d", ErrMalformedGraph, i+1, i+1)
		}
	}

	e := &encoder{g: g, aliases: declare(g), dedupe: o.dedupe}
	for _, n := range g.Nodes {
		e.writeDeclaration(n)
	}
	for _, n := range g.Nodes {
		var err error
		if n.IsCondition {
			_, err = e.conditionEdges(n.ID)
		} else {
			err = e.childEdges(n)
		}
		if err != nil {
			return err
		}
	}

	_, err := io.WriteString(w, e.sb.String())
	return err
}

// declare assigns per-kind aliases (cond1, op1, st1, ...) in table order.
func declare(g *cfg.Graph) []string {
	aliases := make([]string, len(g.Nodes)+1)
	counters := map[cfg.NodeKind]int{}
	for _, n := range g.Nodes {
		kind := n.Kind()
		counters[kind]++
		aliases[n.ID] = prefix(kind) + strconv.Itoa(counters[kind])
	}
	return aliases
}

func prefix(k cfg.NodeKind) string {
	switch k {
	case cfg.KindCondition:
		return "cond"
	case cfg.KindOperation:
		return "op"
	default:
		return "st"
	}
}

type encoder struct {
	g       *cfg.Graph
	aliases []string
	dedupe  bool
	seen    map[string]bool
	sb      strings.Builder
}

func (e *encoder) alias(id int) (string, error) {
	if id < 1 || id >= len(e.aliases) {
		return "", fmt.Errorf("%w: node %d does not exist", ErrMalformedGraph, id)
	}
	return e.aliases[id], nil
}

func (e *encoder) writeDeclaration(n *cfg.Node) {
	fmt.Fprintf(&e.sb, "%s=>%s: ** %d **\n", e.aliases[n.ID], n.Kind(), n.ID)
	for _, c := range n.Content {
		e.sb.WriteString(c)
	}
	if n.IsFeasible {
		e.sb.WriteString(" | approved\n")
	} else {
		e.sb.WriteString("| else\n")
	}
}

func (e *encoder) edge(line string) {
	if e.dedupe {
		if e.seen == nil {
			e.seen = make(map[string]bool)
		}
		if e.seen[line] {
			return
		}
		e.seen[line] = true
	}
	e.sb.WriteString(line)
	e.sb.WriteString("\n")
}

func (e *encoder) childEdges(n *cfg.Node) error {
	from := e.aliases[n.ID]
	for _, child := range n.Children {
		to, err := e.alias(child)
		if err != nil {
			return err
		}
		e.edge(from + "->" + to)
	}
	return nil
}

// conditionEdges emits the yes and no edges of the condition at id. The yes
// target is the node right after it; when that is itself a condition its
// edges are resolved first. The no target is the node after the yes chain,
// skipping one more node when the chain ended on a then arm. It returns
// the id the no edge points at.
func (e *encoder) conditionEdges(id int) (int, error) {
	from := e.aliases[id]
	next := id + 1
	to, err := e.alias(next)
	if err != nil {
		return 0, fmt.Errorf("%w: condition %d has no yes branch", ErrMalformedGraph, id)
	}
	e.edge(from + "(yes)->" + to)

	yes := e.g.Node(next)
	if yes.IsCondition {
		if next, err = e.conditionEdges(next); err != nil {
			return 0, err
		}
	} else if err := e.childEdges(yes); err != nil {
		return 0, err
	}

	if e.g.Node(next).TruePath == cfg.ArmTrue {
		next++
	}
	to, err = e.alias(next)
	if err != nil {
		return 0, fmt.Errorf("%w: condition %d has no no branch", ErrMalformedGraph, id)
	}
	e.edge(from + "(no)->" + to)
	return next, nil
}
