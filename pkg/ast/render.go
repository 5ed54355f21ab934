package ast

import "strings"

var binaryPrecedence = map[string]int{
	"??": 3, "||": 3,
	"&&": 4,
	"|":  5,
	"^":  6,
	"&":  7,
	"==": 8, "!=": 8, "===": 8, "!==": 8,
	"<": 9, ">": 9, "<=": 9, ">=": 9, "in": 9, "instanceof": 9,
	"<<": 10, ">>": 10, ">>>": 10,
	"+": 11, "-": 11,
	"*": 12, "/": 12, "%": 12,
	"**": 13,
}

const (
	precAssign = 2
	precUnary  = 14
	precUpdate = 15
	precAtom   = 20
)

func precedence(e Expr) int {
	switch e := e.(type) {
	case *AssignmentExpression:
		return precAssign
	case *BinaryExpression:
		if p, ok := binaryPrecedence[e.Operator]; ok {
			return p
		}
		return precAssign + 1
	case *UnaryExpression:
		return precUnary
	case *UpdateExpression:
		return precUpdate
	default:
		return precAtom
	}
}

// Render prints e the way the flowchart shows it: binary operators
// spaced (`a + 1`), member access as `a[i]` or `a.b`, arrays as `[1,2]`.
// Parentheses are added only where precedence requires them.
func Render(e Expr) string {
	var sb strings.Builder
	render(&sb, e)
	return sb.String()
}

// RenderDeclarators prints the declarators of a declaration joined by ", ",
// each as `name` or `name = init`.
func RenderDeclarators(decls []*VariableDeclarator) string {
	var sb strings.Builder
	for i, d := range decls {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(d.ID.Name)
		if d.Init != nil {
			sb.WriteString(" = ")
			render(&sb, d.Init)
		}
	}
	return sb.String()
}

func render(sb *strings.Builder, e Expr) {
	switch e := e.(type) {
	case *BinaryExpression:
		p := precedence(e)
		rightAssoc := e.Operator == "**"
		renderOperand(sb, e.Left, p, rightAssoc)
		sb.WriteString(" ")
		sb.WriteString(e.Operator)
		sb.WriteString(" ")
		renderOperand(sb, e.Right, p, !rightAssoc)
	case *AssignmentExpression:
		render(sb, e.Left)
		sb.WriteString(" ")
		sb.WriteString(e.Operator)
		sb.WriteString(" ")
		render(sb, e.Right)
	case *MemberExpression:
		renderOperand(sb, e.Object, precAtom, false)
		if e.Computed {
			sb.WriteString("[")
			render(sb, e.Property)
			sb.WriteString("]")
		} else {
			sb.WriteString(".")
			render(sb, e.Property)
		}
	case *UnaryExpression:
		sb.WriteString(e.Operator)
		if isWordOperator(e.Operator) {
			sb.WriteString(" ")
		}
		renderOperand(sb, e.Argument, precUnary, false)
	case *UpdateExpression:
		if e.Prefix {
			sb.WriteString(e.Operator)
			renderOperand(sb, e.Argument, precUpdate, false)
		} else {
			renderOperand(sb, e.Argument, precUpdate, false)
			sb.WriteString(e.Operator)
		}
	case *Identifier:
		sb.WriteString(e.Name)
	case *Literal:
		sb.WriteString(e.Raw)
	case *ArrayExpression:
		sb.WriteString("[")
		for i, el := range e.Elements {
			if i > 0 {
				sb.WriteString(",")
			}
			render(sb, el)
		}
		sb.WriteString("]")
	}
}

// renderOperand parenthesizes operand when it binds looser than the
// surrounding operator, or equally on the associative side given by strict.
func renderOperand(sb *strings.Builder, operand Expr, outer int, strict bool) {
	p := precedence(operand)
	if p < outer || (strict && p == outer) {
		sb.WriteString("(")
		render(sb, operand)
		sb.WriteString(")")
		return
	}
	render(sb, operand)
}

func isWordOperator(op string) bool {
	return op == "typeof" || op == "void" || op == "delete"
}
