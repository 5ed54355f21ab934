package ast

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// esNode is the union of ESTree fields used by the supported subset. Child
// fields stay raw because ESTree reuses names with different shapes
// (FunctionDeclaration.expression is a bool, ExpressionStatement.expression
// a node).
type esNode struct {
	Type         string            `json:"type"`
	Body         json.RawMessage   `json:"body"`
	ID           json.RawMessage   `json:"id"`
	Params       []json.RawMessage `json:"params"`
	Kind         string            `json:"kind"`
	Declarations []json.RawMessage `json:"declarations"`
	Init         json.RawMessage   `json:"init"`
	Expression   json.RawMessage   `json:"expression"`
	Test         json.RawMessage   `json:"test"`
	Consequent   json.RawMessage   `json:"consequent"`
	Alternate    json.RawMessage   `json:"alternate"`
	Argument     json.RawMessage   `json:"argument"`
	Operator     string            `json:"operator"`
	Left         json.RawMessage   `json:"left"`
	Right        json.RawMessage   `json:"right"`
	Object       json.RawMessage   `json:"object"`
	Property     json.RawMessage   `json:"property"`
	Computed     bool              `json:"computed"`
	Prefix       bool              `json:"prefix"`
	Name         string            `json:"name"`
	Raw          string            `json:"raw"`
	Value        json.RawMessage   `json:"value"`
	Elements     []json.RawMessage `json:"elements"`
}

// DecodeESTree decodes an ESTree (esprima) JSON document. The root may be a
// Program or a single FunctionDeclaration.
func DecodeESTree(data []byte) (*Program, error) {
	root, err := decodeNode(data)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, fmt.Errorf("%w: empty document", ErrUnsupportedNode)
	}

	switch Kind(root.Type) {
	case KindProgram:
		body, err := decodeStmtList(root.Body)
		if err != nil {
			return nil, err
		}
		return &Program{Body: body}, nil
	case KindFunctionDeclaration:
		fn, err := decodeFunction(root)
		if err != nil {
			return nil, err
		}
		return &Program{Body: []Stmt{fn}}, nil
	default:
		return nil, fmt.Errorf("%w: root %s", ErrUnsupportedNode, root.Type)
	}
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decodeNode(raw json.RawMessage) (*esNode, error) {
	if isNull(raw) {
		return nil, nil
	}
	var n esNode
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("decoding ESTree node: %w", err)
	}
	return &n, nil
}

func decodeStmtList(raw json.RawMessage) ([]Stmt, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decoding statement list: %w", err)
	}
	stmts := make([]Stmt, 0, len(items))
	for _, item := range items {
		stmt, err := decodeStmt(item)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func decodeStmt(raw json.RawMessage) (Stmt, error) {
	n, err := decodeNode(raw)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("%w: missing statement", ErrUnsupportedNode)
	}

	switch Kind(n.Type) {
	case KindFunctionDeclaration:
		return decodeFunction(n)
	case KindBlockStatement:
		return decodeBlock(n)
	case KindVariableDeclaration:
		decl := &VariableDeclaration{Keyword: n.Kind}
		for _, item := range n.Declarations {
			d, err := decodeNode(item)
			if err != nil {
				return nil, err
			}
			if d == nil || d.Type != "VariableDeclarator" {
				return nil, fmt.Errorf("%w: malformed declarator", ErrUnsupportedNode)
			}
			id, err := decodeIdentifier(d.ID)
			if err != nil {
				return nil, err
			}
			var init Expr
			if !isNull(d.Init) {
				if init, err = decodeExpr(d.Init); err != nil {
					return nil, err
				}
			}
			decl.Declarations = append(decl.Declarations, &VariableDeclarator{ID: id, Init: init})
		}
		return decl, nil
	case KindExpressionStatement:
		expr, err := decodeExpr(n.Expression)
		if err != nil {
			return nil, err
		}
		return &ExpressionStatement{Expression: expr}, nil
	case KindWhileStatement:
		test, err := decodeExpr(n.Test)
		if err != nil {
			return nil, err
		}
		body, err := decodeStmt(n.Body)
		if err != nil {
			return nil, err
		}
		return &WhileStatement{Test: test, Body: body}, nil
	case KindIfStatement:
		test, err := decodeExpr(n.Test)
		if err != nil {
			return nil, err
		}
		cons, err := decodeStmt(n.Consequent)
		if err != nil {
			return nil, err
		}
		stmt := &IfStatement{Test: test, Consequent: cons}
		if !isNull(n.Alternate) {
			if stmt.Alternate, err = decodeStmt(n.Alternate); err != nil {
				return nil, err
			}
		}
		return stmt, nil
	case KindReturnStatement:
		stmt := &ReturnStatement{}
		if !isNull(n.Argument) {
			if stmt.Argument, err = decodeExpr(n.Argument); err != nil {
				return nil, err
			}
		}
		return stmt, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedNode, n.Type)
	}
}

func decodeFunction(n *esNode) (*FunctionDeclaration, error) {
	fn := &FunctionDeclaration{}
	if !isNull(n.ID) {
		id, err := decodeIdentifier(n.ID)
		if err != nil {
			return nil, err
		}
		fn.ID = id
	}
	for _, p := range n.Params {
		id, err := decodeIdentifier(p)
		if err != nil {
			return nil, fmt.Errorf("function parameter: %w", err)
		}
		fn.Params = append(fn.Params, id)
	}
	body, err := decodeNode(n.Body)
	if err != nil {
		return nil, err
	}
	if body == nil || Kind(body.Type) != KindBlockStatement {
		return nil, fmt.Errorf("%w: function body must be a block", ErrUnsupportedNode)
	}
	if fn.Body, err = decodeBlock(body); err != nil {
		return nil, err
	}
	return fn, nil
}

func decodeBlock(n *esNode) (*BlockStatement, error) {
	body, err := decodeStmtList(n.Body)
	if err != nil {
		return nil, err
	}
	return &BlockStatement{Body: body}, nil
}

func decodeIdentifier(raw json.RawMessage) (*Identifier, error) {
	n, err := decodeNode(raw)
	if err != nil {
		return nil, err
	}
	if n == nil || Kind(n.Type) != KindIdentifier {
		return nil, fmt.Errorf("%w: expected Identifier", ErrUnsupportedNode)
	}
	return &Identifier{Name: n.Name}, nil
}

func decodeExpr(raw json.RawMessage) (Expr, error) {
	n, err := decodeNode(raw)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("%w: missing expression", ErrUnsupportedNode)
	}

	switch Kind(n.Type) {
	case KindBinaryExpression, "LogicalExpression":
		left, right, err := decodePair(n.Left, n.Right)
		if err != nil {
			return nil, err
		}
		return &BinaryExpression{Operator: n.Operator, Left: left, Right: right}, nil
	case KindAssignmentExpression:
		left, right, err := decodePair(n.Left, n.Right)
		if err != nil {
			return nil, err
		}
		return &AssignmentExpression{Operator: n.Operator, Left: left, Right: right}, nil
	case KindMemberExpression:
		obj, prop, err := decodePair(n.Object, n.Property)
		if err != nil {
			return nil, err
		}
		return &MemberExpression{Object: obj, Property: prop, Computed: n.Computed}, nil
	case KindUnaryExpression:
		arg, err := decodeExpr(n.Argument)
		if err != nil {
			return nil, err
		}
		return &UnaryExpression{Operator: n.Operator, Argument: arg}, nil
	case KindUpdateExpression:
		arg, err := decodeExpr(n.Argument)
		if err != nil {
			return nil, err
		}
		return &UpdateExpression{Operator: n.Operator, Argument: arg, Prefix: n.Prefix}, nil
	case KindIdentifier:
		return &Identifier{Name: n.Name}, nil
	case KindLiteral:
		raw := n.Raw
		if raw == "" {
			raw = string(bytes.TrimSpace(n.Value))
		}
		return &Literal{Raw: raw}, nil
	case KindArrayExpression:
		arr := &ArrayExpression{}
		for _, item := range n.Elements {
			el, err := decodeExpr(item)
			if err != nil {
				return nil, err
			}
			arr.Elements = append(arr.Elements, el)
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedNode, n.Type)
	}
}

func decodePair(a, b json.RawMessage) (Expr, Expr, error) {
	left, err := decodeExpr(a)
	if err != nil {
		return nil, nil, err
	}
	right, err := decodeExpr(b)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}
