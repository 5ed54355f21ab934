package cfg

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amitmag/flowtrace/pkg/args"
	"github.com/amitmag/flowtrace/pkg/ast"
	"github.com/amitmag/flowtrace/pkg/trace"
)

func id(name string) *ast.Identifier { return &ast.Identifier{Name: name} }
func lit(raw string) *ast.Literal    { return &ast.Literal{Raw: raw} }

func bin(op string, l, r ast.Expr) *ast.BinaryExpression {
	return &ast.BinaryExpression{Operator: op, Left: l, Right: r}
}

func set(name string, v ast.Expr) *ast.ExpressionStatement {
	return &ast.ExpressionStatement{Expression: &ast.AssignmentExpression{Operator: "=", Left: id(name), Right: v}}
}

func let(name string, init ast.Expr) *ast.VariableDeclaration {
	return &ast.VariableDeclaration{Keyword: "let", Declarations: []*ast.VariableDeclarator{{ID: id(name), Init: init}}}
}

func block(stmts ...ast.Stmt) *ast.BlockStatement { return &ast.BlockStatement{Body: stmts} }

func ret(e ast.Expr) *ast.ReturnStatement { return &ast.ReturnStatement{Argument: e} }

func program(params []string, body ...ast.Stmt) *ast.Program {
	fn := &ast.FunctionDeclaration{ID: id("func"), Body: block(body...)}
	for _, p := range params {
		fn.Params = append(fn.Params, id(p))
	}
	return &ast.Program{Body: []ast.Stmt{fn}}
}

// whileProgram is
//
//	let x=1, y=2; x++; let a = x; while(a>y) y = a + 1; return a+1;
func whileProgram() *ast.Program {
	return program(nil,
		&ast.VariableDeclaration{Keyword: "let", Declarations: []*ast.VariableDeclarator{
			{ID: id("x"), Init: lit("1")}, {ID: id("y"), Init: lit("2")},
		}},
		&ast.ExpressionStatement{Expression: &ast.UpdateExpression{Operator: "++", Argument: id("x")}},
		let("a", id("x")),
		&ast.WhileStatement{Test: bin(">", id("a"), id("y")), Body: set("y", bin("+", id("a"), lit("1")))},
		ret(bin("+", id("a"), lit("1"))),
	)
}

func TestBuild_While(t *testing.T) {
	g, err := Build(whileProgram(), nil)
	require.NoError(t, err)

	want := []*Node{
		{ID: 1, Content: []string{"x = 1, y = 2\n", "x++\n", "a = x\n"}, Children: []int{2}, IsFeasible: true, Role: RolePopulated},
		{ID: 2, Content: []string{"a > y"}, Children: []int{3, 4}, IsCondition: true, IsFeasible: true, TruePath: ArmTrue, Role: RolePopulated},
		{ID: 3, Content: []string{"y = a + 1\n"}, Children: []int{2}, TruePath: ArmTrue, Role: RolePopulated},
		{ID: 4, Content: []string{"return a + 1"}, Children: []int{}, IsFeasible: true, TruePath: ArmFalse, Role: RolePopulated},
	}
	if diff := cmp.Diff(want, g.Nodes); diff != "" {
		t.Errorf("node table mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "{let x = 1, y = 2;x++;let a = x;while(a > y)y = a + 1;}", g.Source)
}

func TestBuild_StraightLine(t *testing.T) {
	g, err := Build(program(nil, let("x", lit("1")), set("x", lit("2")), ret(id("x"))), nil)
	require.NoError(t, err)

	require.Equal(t, 2, g.Len())
	assert.Equal(t, []string{"x = 1\n", "x = 2\n"}, g.Node(1).Content)
	assert.Equal(t, []int{2}, g.Node(1).Children)
	assert.Equal(t, []string{"return x"}, g.Node(2).Content)
	for _, n := range g.Nodes {
		assert.True(t, n.IsFeasible)
		assert.False(t, n.IsCondition)
	}
}

func TestBuild_IfWithoutElseJoins(t *testing.T) {
	// let x=true; if(!x) return x;
	prog := program(nil,
		let("x", lit("true")),
		&ast.IfStatement{Test: &ast.UnaryExpression{Operator: "!", Argument: id("x")}, Consequent: ret(id("x"))},
	)
	g, err := Build(prog, nil)
	require.NoError(t, err)
	require.Equal(t, 5, g.Len())

	cond := g.Node(2)
	assert.True(t, cond.IsCondition)
	assert.Equal(t, []int{3, 5}, cond.Children)

	then := g.Node(3)
	assert.False(t, then.IsFeasible)
	assert.Equal(t, ArmTrue, then.TruePath)
	assert.Equal(t, []int{4, 5}, then.Children)

	join := g.Node(5)
	assert.Equal(t, KindStart, join.Kind())
	assert.True(t, join.IsFeasible)
	assert.Equal(t, ArmFalse, join.TruePath)
}

func TestBuild_ElseIfChainFeasibility(t *testing.T) {
	// let a=1; if(a>0){a=2} else if(a>0){a=3} else a=4;
	prog := program(nil,
		let("a", lit("1")),
		&ast.IfStatement{
			Test:       bin(">", id("a"), lit("0")),
			Consequent: block(set("a", lit("2"))),
			Alternate: &ast.IfStatement{
				Test:       bin(">", id("a"), lit("0")),
				Consequent: block(set("a", lit("3"))),
				Alternate:  set("a", lit("4")),
			},
		},
	)
	g, err := Build(prog, nil)
	require.NoError(t, err)

	feasible := map[string]bool{}
	for _, n := range g.Nodes {
		if len(n.Content) > 0 {
			feasible[n.Content[0]] = n.IsFeasible
		}
	}
	assert.True(t, feasible["a = 2\n"])
	// The else-if test would hold too, but an earlier arm was taken.
	elseIf := g.Node(4)
	assert.True(t, elseIf.IsCondition)
	assert.False(t, elseIf.IsFeasible)
	assert.False(t, feasible["a = 3\n"])
	assert.False(t, feasible["a = 4\n"])

	last := g.Nodes[len(g.Nodes)-1]
	assert.Equal(t, KindStart, last.Kind())
	assert.True(t, last.IsFeasible)
}

func TestBuild_WhileBodyLinksBack(t *testing.T) {
	// let i=0; while(i<3){ i++; }
	prog := program(nil,
		let("i", lit("0")),
		&ast.WhileStatement{
			Test: bin("<", id("i"), lit("3")),
			Body: block(&ast.ExpressionStatement{Expression: &ast.UpdateExpression{Operator: "++", Argument: id("i")}}),
		},
	)
	g, err := Build(prog, nil)
	require.NoError(t, err)
	require.Equal(t, 4, g.Len())

	cond, body, exit := g.Node(2), g.Node(3), g.Node(4)
	assert.True(t, cond.IsCondition)
	assert.True(t, body.IsFeasible)
	assert.Equal(t, []int{cond.ID}, body.Children)
	assert.Equal(t, []int{body.ID, exit.ID}, cond.Children)
	assert.Equal(t, RoleLoopExit, exit.Role)
}

func TestBuild_Parameters(t *testing.T) {
	b := args.New()
	b.Set("arr", args.ArrayOf("1", "2", "3"))
	b.Set("n", args.Scalar("2"))

	prog := program([]string{"arr", "n"},
		&ast.IfStatement{
			Test: bin(">", &ast.MemberExpression{Object: id("arr"), Property: id("n"), Computed: true}, lit("2")),
			Consequent: block(set("n", lit("0"))),
		},
	)
	g, err := Build(prog, b)
	require.NoError(t, err)

	// The empty entry node is reused as the condition.
	assert.True(t, g.Node(1).IsCondition)
	assert.True(t, g.Node(2).IsFeasible)
	assert.Equal(t, "let arr=[1,2,3]; let n=2; {if(arr[n] > 2){n = 0;}}", g.Source)
}

// thenArms returns the non-condition nodes on the true arm of a condition,
// in table order.
func thenArms(g *Graph) []*Node {
	var arms []*Node
	for _, n := range g.Nodes {
		if !n.IsCondition && n.TruePath == ArmTrue {
			arms = append(arms, n)
		}
	}
	return arms
}

func TestBuild_ParameterWritesDoNotCarryOver(t *testing.T) {
	b := args.New()
	b.Set("arr", args.ArrayOf("1"))

	first := func() *ast.MemberExpression {
		return &ast.MemberExpression{Object: id("arr"), Property: lit("0"), Computed: true}
	}
	test := func() ast.Expr { return bin("==", first(), lit("2")) }

	prog := program([]string{"arr"},
		&ast.ExpressionStatement{Expression: &ast.AssignmentExpression{
			Operator: "=", Left: first(), Right: bin("+", first(), lit("1")),
		}},
		&ast.IfStatement{Test: test(), Consequent: ret(lit("1"))},
		&ast.IfStatement{Test: test(), Consequent: ret(lit("2"))},
	)
	g, err := Build(prog, b)
	require.NoError(t, err)

	arms := thenArms(g)
	require.Len(t, arms, 2)
	assert.True(t, arms[0].IsFeasible, "first arm")
	assert.True(t, arms[1].IsFeasible, "second arm sees the same arr[0]")
}

func TestBuild_BlockScopedShadowing(t *testing.T) {
	prog := program(nil,
		let("x", lit("1")),
		&ast.IfStatement{Test: lit("true"), Consequent: block(let("x", lit("5")))},
		&ast.IfStatement{Test: bin("==", id("x"), lit("1")), Consequent: ret(lit("1"))},
	)
	g, err := Build(prog, nil)
	require.NoError(t, err)
	assert.Equal(t, "{let x = 1;if(true){let x = 5;}if(x == 1)}", g.Source)

	arms := thenArms(g)
	require.Len(t, arms, 2)
	assert.True(t, arms[0].IsFeasible)
	assert.True(t, arms[1].IsFeasible, "outer x is still 1")
}

func TestBuild_Errors(t *testing.T) {
	bad := args.New()
	bad.Set("x", args.ArrayOf("1", ""))

	tests := []struct {
		name     string
		prog     *ast.Program
		bindings *args.Bindings
		opts     []Option
		want     error
	}{
		{"nil program", nil, nil, nil, ErrUnsupportedNode},
		{"missing parameter", program([]string{"x"}), nil, nil, ErrInvalidBindings},
		{"bad literal", program([]string{"x"}), bad, nil, ErrInvalidBindings},
		{
			name: "top-level statement",
			prog: &ast.Program{Body: []ast.Stmt{let("x", lit("1"))}},
			want: ErrUnsupportedNode,
		},
		{
			name: "nil operand",
			prog: program(nil, &ast.IfStatement{Test: bin(">", id("x"), nil), Consequent: block()}),
			want: ErrUnsupportedNode,
		},
		{
			name: "undeclared identifier",
			prog: program(nil, &ast.IfStatement{Test: bin(">", id("z"), lit("1")), Consequent: block()}),
			want: ErrEvaluation,
		},
		{
			name: "step limit",
			prog: program(nil,
				let("i", lit("0")),
				&ast.WhileStatement{
					Test: bin(">=", id("i"), lit("0")),
					Body: &ast.ExpressionStatement{Expression: &ast.UpdateExpression{Operator: "++", Argument: id("i")}},
				},
				&ast.IfStatement{Test: bin(">", id("i"), lit("0")), Consequent: block()},
			),
			opts: []Option{WithStepLimit(100)},
			want: trace.ErrStepLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Build(tt.prog, tt.bindings, tt.opts...)
			require.Error(t, err)
			assert.Nil(t, g)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

// scripted answers conditions in order and records what it was asked.
type scripted struct {
	answers []bool
	asked   []string
}

func (s *scripted) IsReachable(l *trace.Log, cond ast.Expr, depth int, parentWasTrue bool) (bool, error) {
	s.asked = append(s.asked, ast.Render(cond))
	if len(s.answers) == 0 {
		return false, errors.New("no answer left")
	}
	ok := s.answers[0]
	s.answers = s.answers[1:]
	return ok, nil
}

func TestBuild_UnreachableConditionsAreNotEvaluated(t *testing.T) {
	prog := program(nil,
		&ast.IfStatement{
			Test: id("a"),
			Consequent: block(
				&ast.IfStatement{Test: id("b"), Consequent: block(set("x", lit("1")))},
			),
		},
		&ast.IfStatement{Test: id("c"), Consequent: block()},
	)

	eval := &scripted{answers: []bool{false, true}}
	g, err := Build(prog, nil, WithEvaluator(eval))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, eval.asked)

	for _, n := range g.Nodes {
		if len(n.Content) > 0 && n.Content[0] == "b" {
			assert.False(t, n.IsFeasible)
		}
	}
}

func TestBuild_Deterministic(t *testing.T) {
	first, err := Build(whileProgram(), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*Graph, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g, err := Build(whileProgram(), nil)
			if err == nil {
				results[i] = g
			}
		}(i)
	}
	wg.Wait()

	for _, g := range results {
		require.NotNil(t, g)
		assert.Empty(t, cmp.Diff(first, g))
	}
}
