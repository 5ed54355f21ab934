// Package ast defines the closed syntax tree consumed by the CFG builder.
// It covers the JavaScript subset of a single function body: declarations,
// assignments, if/else-if/else chains, while loops, returns, and
// binary/unary/update/member/array expressions.
package ast

import "errors"

// ErrUnsupportedNode is returned when a tree contains a node outside the
// supported subset, including nil where a node is required.
var ErrUnsupportedNode = errors.New("unsupported syntax node")

// Kind is the ESTree type name of a node.
type Kind string

const (
	KindProgram              Kind = "Program"
	KindFunctionDeclaration  Kind = "FunctionDeclaration"
	KindBlockStatement       Kind = "BlockStatement"
	KindVariableDeclaration  Kind = "VariableDeclaration"
	KindExpressionStatement  Kind = "ExpressionStatement"
	KindWhileStatement       Kind = "WhileStatement"
	KindIfStatement          Kind = "IfStatement"
	KindReturnStatement      Kind = "ReturnStatement"
	KindBinaryExpression     Kind = "BinaryExpression"
	KindMemberExpression     Kind = "MemberExpression"
	KindUnaryExpression      Kind = "UnaryExpression"
	KindAssignmentExpression Kind = "AssignmentExpression"
	KindUpdateExpression     Kind = "UpdateExpression"
	KindIdentifier           Kind = "Identifier"
	KindLiteral              Kind = "Literal"
	KindArrayExpression      Kind = "ArrayExpression"
)

// Node is any syntax tree node.
type Node interface {
	Kind() Kind
}

// Stmt is a statement node. The set is closed: only types in this package
// implement it.
type Stmt interface {
	Node
	Accept(v StmtVisitor) error
	stmtNode()
}

// Expr is an expression node. The set is closed: only types in this package
// implement it.
type Expr interface {
	Node
	exprNode()
}

// Program is the parser's root: the top-level statements of a source file.
type Program struct {
	Body []Stmt
}

func (p *Program) Kind() Kind { return KindProgram }

// FunctionDeclaration is `function id(params) body`.
type FunctionDeclaration struct {
	ID     *Identifier
	Params []*Identifier
	Body   *BlockStatement
}

// BlockStatement is a braced statement list.
type BlockStatement struct {
	Body []Stmt
}

// VariableDeclaration is a let/const/var statement with one or more declarators.
type VariableDeclaration struct {
	Keyword      string // "let", "const" or "var"
	Declarations []*VariableDeclarator
}

// VariableDeclarator is one `name` or `name = init` of a declaration.
type VariableDeclarator struct {
	ID   *Identifier
	Init Expr // nil when the declarator has no initializer
}

// ExpressionStatement is an expression evaluated for its side effects.
type ExpressionStatement struct {
	Expression Expr
}

// WhileStatement is `while (test) body`.
type WhileStatement struct {
	Test Expr
	Body Stmt
}

// IfStatement is `if (test) consequent [else alternate]`. An else-if chain
// is an IfStatement whose Alternate is another IfStatement.
type IfStatement struct {
	Test       Expr
	Consequent Stmt
	Alternate  Stmt // nil without an else branch
}

// ReturnStatement is `return [argument]`.
type ReturnStatement struct {
	Argument Expr // nil for a bare return
}

// BinaryExpression is `left operator right`.
type BinaryExpression struct {
	Operator string
	Left     Expr
	Right    Expr
}

// MemberExpression is `object[property]` when Computed, `object.property`
// otherwise.
type MemberExpression struct {
	Object   Expr
	Property Expr
	Computed bool
}

// UnaryExpression is a prefix operator applied to an argument.
type UnaryExpression struct {
	Operator string
	Argument Expr
}

// AssignmentExpression is `left operator right` for =, += and friends.
type AssignmentExpression struct {
	Operator string
	Left     Expr
	Right    Expr
}

// UpdateExpression is ++ or -- applied before (Prefix) or after the argument.
type UpdateExpression struct {
	Operator string
	Argument Expr
	Prefix   bool
}

// Identifier is a variable or property name.
type Identifier struct {
	Name string
}

// Literal keeps the literal exactly as written in the source.
type Literal struct {
	Raw string
}

// ArrayExpression is `[elements...]`.
type ArrayExpression struct {
	Elements []Expr
}

func (*FunctionDeclaration) Kind() Kind  { return KindFunctionDeclaration }
func (*BlockStatement) Kind() Kind       { return KindBlockStatement }
func (*VariableDeclaration) Kind() Kind  { return KindVariableDeclaration }
func (*ExpressionStatement) Kind() Kind  { return KindExpressionStatement }
func (*WhileStatement) Kind() Kind       { return KindWhileStatement }
func (*IfStatement) Kind() Kind          { return KindIfStatement }
func (*ReturnStatement) Kind() Kind      { return KindReturnStatement }
func (*BinaryExpression) Kind() Kind     { return KindBinaryExpression }
func (*MemberExpression) Kind() Kind     { return KindMemberExpression }
func (*UnaryExpression) Kind() Kind      { return KindUnaryExpression }
func (*AssignmentExpression) Kind() Kind { return KindAssignmentExpression }
func (*UpdateExpression) Kind() Kind     { return KindUpdateExpression }
func (*Identifier) Kind() Kind           { return KindIdentifier }
func (*Literal) Kind() Kind              { return KindLiteral }
func (*ArrayExpression) Kind() Kind      { return KindArrayExpression }

func (*FunctionDeclaration) stmtNode() {}
func (*BlockStatement) stmtNode()      {}
func (*VariableDeclaration) stmtNode() {}
func (*ExpressionStatement) stmtNode() {}
func (*WhileStatement) stmtNode()      {}
func (*IfStatement) stmtNode()         {}
func (*ReturnStatement) stmtNode()     {}

func (*BinaryExpression) exprNode()     {}
func (*MemberExpression) exprNode()     {}
func (*UnaryExpression) exprNode()      {}
func (*AssignmentExpression) exprNode() {}
func (*UpdateExpression) exprNode()     {}
func (*Identifier) exprNode()           {}
func (*Literal) exprNode()              {}
func (*ArrayExpression) exprNode()      {}

// Functions returns the top-level function declarations of p in source order.
func Functions(p *Program) []*FunctionDeclaration {
	var fns []*FunctionDeclaration
	for _, stmt := range p.Body {
		if fn, ok := stmt.(*FunctionDeclaration); ok {
			fns = append(fns, fn)
		}
	}
	return fns
}

// FindFunction returns the top-level function named name, or nil.
func FindFunction(p *Program, name string) *FunctionDeclaration {
	for _, fn := range Functions(p) {
		if fn.ID != nil && fn.ID.Name == name {
			return fn
		}
	}
	return nil
}
