package ast

import "fmt"

// StmtVisitor has one method per statement kind. Implementations are
// checked by the compiler against the full statement set.
type StmtVisitor interface {
	VisitFunctionDeclaration(s *FunctionDeclaration) error
	VisitBlockStatement(s *BlockStatement) error
	VisitVariableDeclaration(s *VariableDeclaration) error
	VisitExpressionStatement(s *ExpressionStatement) error
	VisitWhileStatement(s *WhileStatement) error
	VisitIfStatement(s *IfStatement) error
	VisitReturnStatement(s *ReturnStatement) error
}

func (s *FunctionDeclaration) Accept(v StmtVisitor) error { return v.VisitFunctionDeclaration(s) }
func (s *BlockStatement) Accept(v StmtVisitor) error      { return v.VisitBlockStatement(s) }
func (s *VariableDeclaration) Accept(v StmtVisitor) error { return v.VisitVariableDeclaration(s) }
func (s *ExpressionStatement) Accept(v StmtVisitor) error { return v.VisitExpressionStatement(s) }
func (s *WhileStatement) Accept(v StmtVisitor) error      { return v.VisitWhileStatement(s) }
func (s *IfStatement) Accept(v StmtVisitor) error         { return v.VisitIfStatement(s) }
func (s *ReturnStatement) Accept(v StmtVisitor) error     { return v.VisitReturnStatement(s) }

// VisitStmt dispatches s to v, rejecting a nil statement.
func VisitStmt(s Stmt, v StmtVisitor) error {
	if s == nil {
		return fmt.Errorf("%w: nil statement", ErrUnsupportedNode)
	}
	return s.Accept(v)
}

// ExprVisitor has one method per expression kind, each producing a T.
type ExprVisitor[T any] interface {
	VisitBinaryExpression(e *BinaryExpression) (T, error)
	VisitMemberExpression(e *MemberExpression) (T, error)
	VisitUnaryExpression(e *UnaryExpression) (T, error)
	VisitAssignmentExpression(e *AssignmentExpression) (T, error)
	VisitUpdateExpression(e *UpdateExpression) (T, error)
	VisitIdentifier(e *Identifier) (T, error)
	VisitLiteral(e *Literal) (T, error)
	VisitArrayExpression(e *ArrayExpression) (T, error)
}

// VisitExpr dispatches e to the matching method of v.
func VisitExpr[T any](e Expr, v ExprVisitor[T]) (T, error) {
	switch e := e.(type) {
	case *BinaryExpression:
		return v.VisitBinaryExpression(e)
	case *MemberExpression:
		return v.VisitMemberExpression(e)
	case *UnaryExpression:
		return v.VisitUnaryExpression(e)
	case *AssignmentExpression:
		return v.VisitAssignmentExpression(e)
	case *UpdateExpression:
		return v.VisitUpdateExpression(e)
	case *Identifier:
		return v.VisitIdentifier(e)
	case *Literal:
		return v.VisitLiteral(e)
	case *ArrayExpression:
		return v.VisitArrayExpression(e)
	}
	var zero T
	if e == nil {
		return zero, fmt.Errorf("%w: nil expression", ErrUnsupportedNode)
	}
	return zero, fmt.Errorf("%w: %s", ErrUnsupportedNode, e.Kind())
}
