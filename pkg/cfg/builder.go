package cfg

import (
	"errors"
	"fmt"

	"github.com/amitmag/flowtrace/internal/log"
	"github.com/amitmag/flowtrace/pkg/args"
	"github.com/amitmag/flowtrace/pkg/ast"
	"github.com/amitmag/flowtrace/pkg/trace"
)

var (
	// ErrInvalidBindings is returned before construction starts when a
	// binding is malformed or a function parameter is unbound.
	ErrInvalidBindings = errors.New("invalid bindings")

	// ErrUnsupportedNode is returned for syntax outside the supported subset.
	ErrUnsupportedNode = ast.ErrUnsupportedNode

	// ErrEvaluation is returned when a condition fragment fails to run.
	ErrEvaluation = trace.ErrEvaluation
)

// Reachability decides whether a condition holds at the current point of a
// reconstructed statement log. *trace.Evaluator implements it.
type Reachability interface {
	IsReachable(l *trace.Log, cond ast.Expr, depth int, parentWasTrue bool) (bool, error)
}

type options struct {
	stepLimit int
	eval      Reachability
	logger    log.Logger
}

// Option configures Build.
type Option func(*options)

// WithStepLimit bounds each condition evaluation. See trace.WithStepLimit.
func WithStepLimit(n int) Option {
	return func(o *options) { o.stepLimit = n }
}

// WithEvaluator replaces the default trace evaluator.
func WithEvaluator(r Reachability) Option {
	return func(o *options) { o.eval = r }
}

// WithLogger routes node allocation and condition decisions to logger at
// debug level.
func WithLogger(logger log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Build walks every top-level function of prog and returns the node table.
// Bindings are resolved first: a malformed value, or a parameter of any
// walked function without a binding, fails with ErrInvalidBindings and no
// graph. Each call owns its state, so concurrent calls are safe.
func Build(prog *ast.Program, bindings *args.Bindings, opts ...Option) (*Graph, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.eval == nil {
		o.eval = trace.NewEvaluator(trace.WithStepLimit(o.stepLimit))
	}
	if o.logger == nil {
		o.logger = log.Discard()
	}
	if prog == nil {
		return nil, fmt.Errorf("%w: nil program", ErrUnsupportedNode)
	}

	params, err := bindings.Resolve()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBindings, err)
	}
	for _, stmt := range prog.Body {
		if stmt == nil {
			return nil, fmt.Errorf("%w: nil statement", ErrUnsupportedNode)
		}
		fn, ok := stmt.(*ast.FunctionDeclaration)
		if !ok {
			return nil, fmt.Errorf("%w: top-level %s outside a function", ErrUnsupportedNode, stmt.Kind())
		}
		names := make([]string, len(fn.Params))
		for i, p := range fn.Params {
			names[i] = p.Name
		}
		if missing := bindings.Missing(names); len(missing) > 0 {
			return nil, fmt.Errorf("%w: no value for parameter(s) %v", ErrInvalidBindings, missing)
		}
	}

	b := &builder{
		g:      &Graph{},
		reach:  true,
		eval:   o.eval,
		logger: o.logger,
	}
	b.alloc(Node{IsFeasible: true})
	for _, p := range params {
		b.log.Param(p)
	}

	for _, stmt := range prog.Body {
		if err := ast.VisitStmt(stmt, b); err != nil {
			return nil, err
		}
	}
	b.g.Source = b.log.String()
	return b.g, nil
}

// builder is the per-call walk state. The current node is always the most
// recently allocated one.
type builder struct {
	g      *Graph
	depth  int
	reach  bool
	log    trace.Log
	eval   Reachability
	logger log.Logger
}

func (b *builder) node(id int) *Node { return b.g.Nodes[id-1] }
func (b *builder) current() *Node    { return b.g.Nodes[len(b.g.Nodes)-1] }
func (b *builder) nextID() int       { return len(b.g.Nodes) + 1 }

func (b *builder) alloc(n Node) *Node {
	n.ID = b.nextID()
	if n.Role == "" {
		n.Role = RoleFresh
	}
	if n.Content == nil {
		n.Content = []string{}
	}
	n.Children = []int{}
	b.g.Nodes = append(b.g.Nodes, &n)
	b.logger.Debug("cfg node", "id", n.ID, "feasible", n.IsFeasible, "arm", string(n.TruePath), "role", string(n.Role))
	return &n
}

// visitWith visits s with the given reachability, restoring the caller's
// afterwards.
func (b *builder) visitWith(s ast.Stmt, reach bool) error {
	saved := b.reach
	b.reach = reach
	err := ast.VisitStmt(s, b)
	b.reach = saved
	return err
}

// decide evaluates test against the log. Unreachable code is never run.
func (b *builder) decide(test ast.Expr, reachable bool) (bool, error) {
	if !reachable {
		return false, nil
	}
	ok, err := b.eval.IsReachable(&b.log, test, b.depth, reachable)
	if err != nil {
		return false, err
	}
	b.logger.Debug("cfg condition", "cond", ast.Render(test), "depth", b.depth, "taken", ok)
	return ok, nil
}

func (b *builder) VisitFunctionDeclaration(s *ast.FunctionDeclaration) error {
	if s.Body == nil {
		return fmt.Errorf("%w: function without body", ErrUnsupportedNode)
	}
	return ast.VisitStmt(s.Body, b)
}

func (b *builder) VisitBlockStatement(s *ast.BlockStatement) error {
	b.log.Open()
	b.depth++
	for _, stmt := range s.Body {
		if err := ast.VisitStmt(stmt, b); err != nil {
			return err
		}
	}
	b.depth--
	b.log.Close()
	return nil
}

func (b *builder) VisitVariableDeclaration(s *ast.VariableDeclaration) error {
	for _, d := range s.Declarations {
		if d == nil || d.ID == nil {
			return fmt.Errorf("%w: malformed declarator", ErrUnsupportedNode)
		}
		if err := checkExpr(d.Init, true); err != nil {
			return err
		}
	}
	b.current().addContent(ast.RenderDeclarators(s.Declarations) + "\n")
	b.log.Declare(s.Declarations)
	return nil
}

func (b *builder) VisitExpressionStatement(s *ast.ExpressionStatement) error {
	if err := checkExpr(s.Expression, false); err != nil {
		return err
	}
	b.current().addContent(ast.Render(s.Expression) + "\n")
	b.log.Exec(s.Expression)
	return nil
}

// VisitReturnStatement records the return in a new node, or in the empty
// exit node of a loop that immediately precedes it. Returns are not part of
// the reconstructed log.
func (b *builder) VisitReturnStatement(s *ast.ReturnStatement) error {
	if err := checkExpr(s.Argument, true); err != nil {
		return err
	}
	text := "return"
	if s.Argument != nil {
		text += " " + ast.Render(s.Argument)
	}

	cur := b.current()
	if cur.Role == RoleLoopExit {
		cur.addContent(text)
		return nil
	}
	cur.link(b.nextID())
	b.alloc(Node{Content: []string{text}, IsFeasible: true, Role: RolePopulated})
	return nil
}

func (b *builder) VisitWhileStatement(s *ast.WhileStatement) error {
	if err := checkExpr(s.Test, false); err != nil {
		return err
	}
	feasible := b.reach
	taken, err := b.decide(s.Test, feasible)
	if err != nil {
		return err
	}
	b.log.While(s.Test)

	cond := b.current()
	if cond.Role == RolePopulated {
		cond.link(b.nextID())
		cond = b.alloc(Node{TruePath: ArmTrue})
	}
	cond.IsCondition = true
	cond.addContent(ast.Render(s.Test))
	cond.IsFeasible = feasible
	cond.link(b.nextID())
	b.alloc(Node{IsFeasible: taken, TruePath: ArmTrue})

	if err := b.visitWith(s.Body, taken); err != nil {
		return err
	}
	b.current().link(cond.ID)
	exit := b.alloc(Node{IsFeasible: feasible, TruePath: ArmFalse, Role: RoleLoopExit})
	cond.link(exit.ID)
	return nil
}

// chain is the state shared by the arms of one if / else-if / else chain.
type chain struct {
	conds  []int // condition node ids, in order
	blocks []int // nodes wired to the join node
	reach  bool  // reachability of the whole chain
	taken  bool  // some earlier arm was taken
}

func (c *chain) lastCond() int { return c.conds[len(c.conds)-1] }

func (b *builder) VisitIfStatement(s *ast.IfStatement) error {
	return b.visitArm(s, &chain{reach: b.reach}, false)
}

// visitArm handles one if or else-if test of a chain and everything after
// it. An arm is feasible only when the chain is reachable and no earlier
// arm was taken.
func (b *builder) visitArm(s *ast.IfStatement, c *chain, elseIf bool) error {
	if err := checkExpr(s.Test, false); err != nil {
		return err
	}
	feasible := c.reach && !c.taken

	cond := b.current()
	if cond.Role == RolePopulated {
		parent, arm := cond, ArmNone
		if elseIf {
			parent, arm = b.node(c.lastCond()), ArmFalse
		}
		parent.link(b.nextID())
		cond = b.alloc(Node{IsFeasible: feasible, TruePath: arm})
	}
	cond.IsCondition = true

	taken, err := b.decide(s.Test, feasible)
	if err != nil {
		return err
	}
	c.conds = append(c.conds, cond.ID)
	cond.addContent(ast.Render(s.Test))
	cond.IsFeasible = feasible
	cond.link(b.nextID())
	then := b.alloc(Node{IsFeasible: taken, TruePath: ArmTrue})
	c.blocks = append(c.blocks, then.ID)
	if elseIf {
		b.log.ElseIf(s.Test)
	} else {
		b.log.If(s.Test)
	}

	if err := b.visitWith(s.Consequent, taken); err != nil {
		return err
	}
	c.taken = c.taken || taken

	switch alt := s.Alternate.(type) {
	case nil:
		if len(c.conds) == 1 {
			c.blocks = append(c.blocks, c.conds[0])
		}
		b.join(c.blocks)
	case *ast.IfStatement:
		return b.visitArm(alt, c, true)
	default:
		reach := c.reach && !c.taken
		b.node(c.lastCond()).link(b.nextID())
		els := b.alloc(Node{IsFeasible: reach, TruePath: ArmFalse})
		c.blocks = append(c.blocks, els.ID)
		b.log.Else()
		if err := b.visitWith(alt, reach); err != nil {
			return err
		}
		b.join(c.blocks)
	}
	return nil
}

// join wires blocks to a common successor: the current node when it is
// still empty, a new start node otherwise. A loop exit used as the join
// point stops being one.
func (b *builder) join(blocks []int) {
	target := b.current()
	switch target.Role {
	case RolePopulated:
		target = b.alloc(Node{IsFeasible: true, TruePath: ArmFalse})
	case RoleLoopExit:
		target.Role = RoleFresh
	}
	for _, id := range blocks {
		b.node(id).link(target.ID)
	}
}

// checkExpr rejects missing operands anywhere in e. A nil e itself is
// accepted when optional.
func checkExpr(e ast.Expr, optional bool) error {
	if e == nil {
		if optional {
			return nil
		}
		return fmt.Errorf("%w: missing expression", ErrUnsupportedNode)
	}

	var operands []ast.Expr
	switch e := e.(type) {
	case *ast.BinaryExpression:
		operands = []ast.Expr{e.Left, e.Right}
	case *ast.AssignmentExpression:
		operands = []ast.Expr{e.Left, e.Right}
	case *ast.MemberExpression:
		operands = []ast.Expr{e.Object, e.Property}
	case *ast.UnaryExpression:
		operands = []ast.Expr{e.Argument}
	case *ast.UpdateExpression:
		operands = []ast.Expr{e.Argument}
	case *ast.ArrayExpression:
		operands = e.Elements
	}
	for _, op := range operands {
		if err := checkExpr(op, false); err != nil {
			return err
		}
	}
	return nil
}
