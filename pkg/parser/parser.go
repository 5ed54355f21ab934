// Package parser turns JavaScript source into the closed syntax tree of
// package ast, using the tree-sitter JavaScript grammar.
package parser

import (
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/amitmag/flowtrace/pkg/ast"
)

var (
	// ErrSyntax is returned when the source does not parse.
	ErrSyntax = errors.New("syntax error")

	// ErrUnsupportedSyntax is returned for valid JavaScript outside the
	// supported statement and expression set.
	ErrUnsupportedSyntax = errors.New("unsupported syntax")
)

// Parse parses src. A new tree-sitter parser is created per call, so Parse
// is safe for concurrent use.
func Parse(ctx context.Context, src []byte) (*ast.Program, error) {
	p := sitter.NewParser()
	p.SetLanguage(javascript.GetLanguage())

	tree, err := p.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing source: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		if bad := firstError(root); bad != nil {
			pos := bad.StartPoint()
			return nil, fmt.Errorf("%w at %d:%d near %q", ErrSyntax, pos.Row+1, pos.Column+1, bad.Content(src))
		}
		return nil, ErrSyntax
	}

	c := &converter{src: src}
	body, err := c.statements(root)
	if err != nil {
		return nil, err
	}
	return &ast.Program{Body: body}, nil
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || !(child.HasError() || child.IsMissing()) {
			continue
		}
		if bad := firstError(child); bad != nil {
			return bad
		}
	}
	return nil
}

type converter struct {
	src []byte
}

func (c *converter) text(n *sitter.Node) string { return n.Content(c.src) }

func (c *converter) unsupported(n *sitter.Node) error {
	pos := n.StartPoint()
	return fmt.Errorf("%w: %s at %d:%d", ErrUnsupportedSyntax, n.Type(), pos.Row+1, pos.Column+1)
}

func skipped(n *sitter.Node) bool {
	switch n.Type() {
	case "comment", "empty_statement", "hash_bang_line":
		return true
	}
	return false
}

// namedChildren returns the named children of n, minus comments.
func namedChildren(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil || child.Type() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}

func firstNamed(n *sitter.Node) *sitter.Node {
	if children := namedChildren(n); len(children) > 0 {
		return children[0]
	}
	return nil
}

func (c *converter) statements(parent *sitter.Node) ([]ast.Stmt, error) {
	var out []ast.Stmt
	for _, child := range namedChildren(parent) {
		if skipped(child) {
			continue
		}
		s, err := c.stmt(child)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *converter) stmt(n *sitter.Node) (ast.Stmt, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: missing statement", ErrUnsupportedSyntax)
	}

	switch n.Type() {
	case "function_declaration":
		return c.function(n)
	case "statement_block":
		body, err := c.statements(n)
		if err != nil {
			return nil, err
		}
		return &ast.BlockStatement{Body: body}, nil
	case "lexical_declaration", "variable_declaration":
		return c.declaration(n)
	case "expression_statement":
		inner := firstNamed(n)
		if inner == nil {
			return nil, c.unsupported(n)
		}
		e, err := c.expr(inner)
		if err != nil {
			return nil, err
		}
		return &ast.ExpressionStatement{Expression: e}, nil
	case "if_statement":
		test, err := c.expr(n.ChildByFieldName("condition"))
		if err != nil {
			return nil, err
		}
		cons, err := c.stmt(n.ChildByFieldName("consequence"))
		if err != nil {
			return nil, err
		}
		s := &ast.IfStatement{Test: test, Consequent: cons}
		if alt := n.ChildByFieldName("alternative"); alt != nil {
			if s.Alternate, err = c.stmt(firstNamed(alt)); err != nil {
				return nil, err
			}
		}
		return s, nil
	case "while_statement":
		test, err := c.expr(n.ChildByFieldName("condition"))
		if err != nil {
			return nil, err
		}
		body, err := c.stmt(n.ChildByFieldName("body"))
		if err != nil {
			return nil, err
		}
		return &ast.WhileStatement{Test: test, Body: body}, nil
	case "return_statement":
		s := &ast.ReturnStatement{}
		if arg := firstNamed(n); arg != nil {
			var err error
			if s.Argument, err = c.expr(arg); err != nil {
				return nil, err
			}
		}
		return s, nil
	}
	return nil, c.unsupported(n)
}

func (c *converter) function(n *sitter.Node) (*ast.FunctionDeclaration, error) {
	fn := &ast.FunctionDeclaration{}
	if name := n.ChildByFieldName("name"); name != nil {
		fn.ID = &ast.Identifier{Name: c.text(name)}
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		for _, p := range namedChildren(params) {
			if p.Type() != "identifier" {
				return nil, c.unsupported(p)
			}
			fn.Params = append(fn.Params, &ast.Identifier{Name: c.text(p)})
		}
	}

	body := n.ChildByFieldName("body")
	if body == nil || body.Type() != "statement_block" {
		return nil, fmt.Errorf("%w: function body must be a block", ErrUnsupportedSyntax)
	}
	stmts, err := c.statements(body)
	if err != nil {
		return nil, err
	}
	fn.Body = &ast.BlockStatement{Body: stmts}
	return fn, nil
}

func (c *converter) declaration(n *sitter.Node) (*ast.VariableDeclaration, error) {
	decl := &ast.VariableDeclaration{Keyword: n.Child(0).Type()}
	for _, d := range namedChildren(n) {
		if d.Type() != "variable_declarator" {
			return nil, c.unsupported(d)
		}
		name := d.ChildByFieldName("name")
		if name == nil || name.Type() != "identifier" {
			return nil, c.unsupported(d)
		}
		declarator := &ast.VariableDeclarator{ID: &ast.Identifier{Name: c.text(name)}}
		if value := d.ChildByFieldName("value"); value != nil {
			init, err := c.expr(value)
			if err != nil {
				return nil, err
			}
			declarator.Init = init
		}
		decl.Declarations = append(decl.Declarations, declarator)
	}
	return decl, nil
}

func (c *converter) expr(n *sitter.Node) (ast.Expr, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: missing expression", ErrUnsupportedSyntax)
	}

	switch n.Type() {
	case "parenthesized_expression":
		return c.expr(firstNamed(n))
	case "identifier", "undefined":
		return &ast.Identifier{Name: c.text(n)}, nil
	case "number", "string", "true", "false", "null":
		return &ast.Literal{Raw: c.text(n)}, nil
	case "array":
		arr := &ast.ArrayExpression{}
		for _, el := range namedChildren(n) {
			e, err := c.expr(el)
			if err != nil {
				return nil, err
			}
			arr.Elements = append(arr.Elements, e)
		}
		return arr, nil
	case "binary_expression":
		left, right, err := c.pair(n.ChildByFieldName("left"), n.ChildByFieldName("right"))
		if err != nil {
			return nil, err
		}
		return &ast.BinaryExpression{Operator: c.operator(n), Left: left, Right: right}, nil
	case "assignment_expression", "augmented_assignment_expression":
		left, right, err := c.pair(n.ChildByFieldName("left"), n.ChildByFieldName("right"))
		if err != nil {
			return nil, err
		}
		op := "="
		if n.Type() == "augmented_assignment_expression" {
			op = c.operator(n)
		}
		return &ast.AssignmentExpression{Operator: op, Left: left, Right: right}, nil
	case "unary_expression":
		arg, err := c.expr(n.ChildByFieldName("argument"))
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpression{Operator: c.operator(n), Argument: arg}, nil
	case "update_expression":
		arg, err := c.expr(firstNamed(n))
		if err != nil {
			return nil, err
		}
		first := n.Child(0)
		prefix := first.Type() == "++" || first.Type() == "--"
		op := first.Type()
		if !prefix {
			op = n.Child(int(n.ChildCount()) - 1).Type()
		}
		return &ast.UpdateExpression{Operator: op, Argument: arg, Prefix: prefix}, nil
	case "member_expression":
		obj, err := c.expr(n.ChildByFieldName("object"))
		if err != nil {
			return nil, err
		}
		prop := n.ChildByFieldName("property")
		if prop == nil || prop.Type() != "property_identifier" {
			return nil, c.unsupported(n)
		}
		return &ast.MemberExpression{Object: obj, Property: &ast.Identifier{Name: c.text(prop)}}, nil
	case "subscript_expression":
		obj, index, err := c.pair(n.ChildByFieldName("object"), n.ChildByFieldName("index"))
		if err != nil {
			return nil, err
		}
		return &ast.MemberExpression{Object: obj, Property: index, Computed: true}, nil
	}
	return nil, c.unsupported(n)
}

func (c *converter) operator(n *sitter.Node) string {
	if op := n.ChildByFieldName("operator"); op != nil {
		return op.Type()
	}
	return ""
}

func (c *converter) pair(a, b *sitter.Node) (ast.Expr, ast.Expr, error) {
	left, err := c.expr(a)
	if err != nil {
		return nil, nil, err
	}
	right, err := c.expr(b)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}
