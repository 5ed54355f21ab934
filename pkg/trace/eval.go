// Package trace reconstructs the source a CFG builder has walked so far and
// decides, by running that reconstruction, whether a condition holds.
package trace

import (
	"fmt"
	"math"
	"strings"

	"github.com/amitmag/flowtrace/pkg/ast"
)

// DefaultStepLimit bounds the statements and loop iterations one fragment
// may execute.
const DefaultStepLimit = 100000

// Evaluator runs fragments with a fresh environment per call. It holds no
// mutable state and is safe for concurrent use.
type Evaluator struct {
	stepLimit int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithStepLimit overrides DefaultStepLimit. Non-positive values are ignored.
func WithStepLimit(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.stepLimit = n
		}
	}
}

func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{stepLimit: DefaultStepLimit}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsReachable reports whether cond holds at the current point of log.
// Conditions nested deeper than the function body are only evaluated when
// the enclosing condition held; otherwise the answer is false.
func (e *Evaluator) IsReachable(log *Log, cond ast.Expr, depth int, parentWasTrue bool) (bool, error) {
	if depth > 1 && !parentWasTrue {
		return false, nil
	}
	v, err := e.Eval(log.Fragment(depth, cond))
	if err != nil {
		return false, err
	}
	return v.Truthy(), nil
}

// Eval runs f and returns the value of its trailing condition the last time
// control reached it, or Undefined when it never did.
func (e *Evaluator) Eval(f *Fragment) (Value, error) {
	body, err := parseEntries(f.entries)
	if err != nil {
		return Undefined, fmt.Errorf("%w: %s: %w", ErrEvaluation, f, err)
	}

	in := &interp{scope: newScope(nil), limit: e.stepLimit}
	for _, s := range body {
		if err := in.exec(s); err != nil {
			return Undefined, fmt.Errorf("%w: %s: %w", ErrEvaluation, f, err)
		}
	}
	return in.result, nil
}

// scope is one lexical block. Declarations bind in the innermost scope;
// lookups and assignments resolve outward.
type scope struct {
	vars   map[string]Value
	parent *scope
}

func newScope(parent *scope) *scope {
	return &scope{vars: make(map[string]Value), parent: parent}
}

func (s *scope) resolve(name string) *scope {
	for ; s != nil; s = s.parent {
		if _, ok := s.vars[name]; ok {
			return s
		}
	}
	return nil
}

func (s *scope) lookup(name string) (Value, bool) {
	if owner := s.resolve(name); owner != nil {
		return owner.vars[name], true
	}
	return Undefined, false
}

// assign updates the nearest binding of name. An undeclared name becomes
// a binding of the outermost scope, as a sloppy-mode global would.
func (s *scope) assign(name string, v Value) {
	owner := s.resolve(name)
	if owner == nil {
		for owner = s; owner.parent != nil; owner = owner.parent {
		}
	}
	owner.vars[name] = v
}

type interp struct {
	scope  *scope
	steps  int
	limit  int
	result Value
}

func (in *interp) tick() error {
	in.steps++
	if in.steps > in.limit {
		return fmt.Errorf("%w (%d)", ErrStepLimit, in.limit)
	}
	return nil
}

func (in *interp) eval(e ast.Expr) (Value, error) {
	return ast.VisitExpr[Value](e, in)
}

func (in *interp) exec(s stmt) error {
	if err := in.tick(); err != nil {
		return err
	}

	switch s := s.(type) {
	case *paramStmt:
		// Each run gets its own copy; writes must not reach the next run.
		in.scope.vars[s.name] = s.value.Clone()
	case *declStmt:
		for _, d := range s.decls {
			v := Undefined
			if d.Init != nil {
				var err error
				if v, err = in.eval(d.Init); err != nil {
					return err
				}
			}
			in.scope.vars[d.ID.Name] = v
		}
	case *exprStmt:
		_, err := in.eval(s.expr)
		return err
	case *condStmt:
		v, err := in.eval(s.expr)
		if err != nil {
			return err
		}
		in.result = v
	case *blockStmt:
		in.scope = newScope(in.scope)
		defer func() { in.scope = in.scope.parent }()
		for _, child := range s.body {
			if err := in.exec(child); err != nil {
				return err
			}
		}
	case *ifStmt:
		t, err := in.eval(s.test)
		if err != nil {
			return err
		}
		if t.Truthy() {
			return in.exec(s.cons)
		}
		if s.alt != nil {
			return in.exec(s.alt)
		}
	case *whileStmt:
		for {
			if err := in.tick(); err != nil {
				return err
			}
			t, err := in.eval(s.test)
			if err != nil {
				return err
			}
			if !t.Truthy() {
				return nil
			}
			if err := in.exec(s.body); err != nil {
				return err
			}
		}
	}
	return nil
}

func (in *interp) VisitIdentifier(e *ast.Identifier) (Value, error) {
	if v, ok := in.scope.lookup(e.Name); ok {
		return v, nil
	}
	switch e.Name {
	case "undefined":
		return Undefined, nil
	case "NaN":
		return Number(math.NaN()), nil
	case "Infinity":
		return Number(math.Inf(1)), nil
	}
	return Undefined, fmt.Errorf("%w: %s", ErrUndefinedIdentifier, e.Name)
}

func (in *interp) VisitLiteral(e *ast.Literal) (Value, error) {
	return ParseLiteral(e.Raw)
}

func (in *interp) VisitArrayExpression(e *ast.ArrayExpression) (Value, error) {
	elems := make([]Value, len(e.Elements))
	for i, el := range e.Elements {
		v, err := in.eval(el)
		if err != nil {
			return Undefined, err
		}
		elems[i] = v
	}
	return NewArray(elems...), nil
}

func (in *interp) propertyKey(e *ast.MemberExpression) (Value, error) {
	if !e.Computed {
		if id, ok := e.Property.(*ast.Identifier); ok {
			return String(id.Name), nil
		}
	}
	return in.eval(e.Property)
}

func (in *interp) VisitMemberExpression(e *ast.MemberExpression) (Value, error) {
	obj, err := in.eval(e.Object)
	if err != nil {
		return Undefined, err
	}
	key, err := in.propertyKey(e)
	if err != nil {
		return Undefined, err
	}
	return getMember(obj, key)
}

func getMember(obj, key Value) (Value, error) {
	switch obj.kind {
	case KindUndefined, KindNull:
		return Undefined, fmt.Errorf("%w: cannot read property %q of %s", ErrTypeError, key.String(), obj.kind)
	case KindArray:
		if key.kind == KindString && key.s == "length" {
			return Number(float64(len(obj.arr.Elems))), nil
		}
		if i, ok := arrayIndex(key); ok && i < len(obj.arr.Elems) {
			return obj.arr.Elems[i], nil
		}
	case KindString:
		if key.kind == KindString && key.s == "length" {
			return Number(float64(len(obj.s))), nil
		}
		if i, ok := arrayIndex(key); ok && i < len(obj.s) {
			return String(obj.s[i : i+1]), nil
		}
	}
	return Undefined, nil
}

func arrayIndex(key Value) (int, bool) {
	n := key.ToNumber()
	if math.IsNaN(n) || n < 0 || n != math.Trunc(n) || n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}

func (in *interp) store(target ast.Expr, v Value) error {
	switch t := target.(type) {
	case *ast.Identifier:
		in.scope.assign(t.Name, v)
		return nil
	case *ast.MemberExpression:
		obj, err := in.eval(t.Object)
		if err != nil {
			return err
		}
		key, err := in.propertyKey(t)
		if err != nil {
			return err
		}
		switch obj.kind {
		case KindUndefined, KindNull:
			return fmt.Errorf("%w: cannot set property %q of %s", ErrTypeError, key.String(), obj.kind)
		case KindArray:
			if key.kind == KindString && key.s == "length" {
				if n, ok := arrayIndex(v); ok {
					obj.arr.resize(n)
					return nil
				}
				return fmt.Errorf("%w: invalid array length %s", ErrTypeError, v.String())
			}
			i, ok := arrayIndex(key)
			if !ok {
				return fmt.Errorf("%w: unsupported array key %q", ErrTypeError, key.String())
			}
			if i >= len(obj.arr.Elems) {
				obj.arr.resize(i + 1)
			}
			obj.arr.Elems[i] = v
		}
		// Writes to primitives are silently dropped.
		return nil
	default:
		return fmt.Errorf("%w: invalid assignment target %s", ErrTypeError, ast.Render(target))
	}
}

func (a *Array) resize(n int) {
	for len(a.Elems) < n {
		a.Elems = append(a.Elems, Undefined)
	}
	a.Elems = a.Elems[:n]
}

func (in *interp) VisitAssignmentExpression(e *ast.AssignmentExpression) (Value, error) {
	var v Value
	if e.Operator == "=" {
		var err error
		if v, err = in.eval(e.Right); err != nil {
			return Undefined, err
		}
	} else {
		op, ok := strings.CutSuffix(e.Operator, "=")
		if !ok {
			return Undefined, fmt.Errorf("%w: unsupported assignment operator %s", ErrTypeError, e.Operator)
		}
		var err error
		if v, err = in.binary(op, e.Left, e.Right); err != nil {
			return Undefined, err
		}
	}
	if err := in.store(e.Left, v); err != nil {
		return Undefined, err
	}
	return v, nil
}

func (in *interp) VisitUpdateExpression(e *ast.UpdateExpression) (Value, error) {
	cur, err := in.eval(e.Argument)
	if err != nil {
		return Undefined, err
	}
	old := cur.ToNumber()
	next := old + 1
	if e.Operator == "--" {
		next = old - 1
	}
	if err := in.store(e.Argument, Number(next)); err != nil {
		return Undefined, err
	}
	if e.Prefix {
		return Number(next), nil
	}
	return Number(old), nil
}

func (in *interp) VisitUnaryExpression(e *ast.UnaryExpression) (Value, error) {
	if e.Operator == "typeof" {
		if id, ok := e.Argument.(*ast.Identifier); ok {
			if in.scope.resolve(id.Name) == nil {
				return String("undefined"), nil
			}
		}
	}
	arg, err := in.eval(e.Argument)
	if err != nil {
		return Undefined, err
	}

	switch e.Operator {
	case "!":
		return Bool(!arg.Truthy()), nil
	case "-":
		return Number(-arg.ToNumber()), nil
	case "+":
		return Number(arg.ToNumber()), nil
	case "~":
		return Number(float64(^toInt32(arg.ToNumber()))), nil
	case "void":
		return Undefined, nil
	case "typeof":
		return String(typeOf(arg)), nil
	default:
		return Undefined, fmt.Errorf("%w: unsupported unary operator %s", ErrTypeError, e.Operator)
	}
}

func typeOf(v Value) string {
	switch v.kind {
	case KindNull, KindArray:
		return "object"
	default:
		return v.kind.String()
	}
}

func (in *interp) VisitBinaryExpression(e *ast.BinaryExpression) (Value, error) {
	return in.binary(e.Operator, e.Left, e.Right)
}

func (in *interp) binary(op string, left, right ast.Expr) (Value, error) {
	l, err := in.eval(left)
	if err != nil {
		return Undefined, err
	}

	switch op {
	case "&&":
		if !l.Truthy() {
			return l, nil
		}
		return in.eval(right)
	case "||":
		if l.Truthy() {
			return l, nil
		}
		return in.eval(right)
	case "??":
		if l.kind != KindUndefined && l.kind != KindNull {
			return l, nil
		}
		return in.eval(right)
	}

	r, err := in.eval(right)
	if err != nil {
		return Undefined, err
	}
	return binaryOp(op, l, r)
}

func binaryOp(op string, l, r Value) (Value, error) {
	switch op {
	case "+":
		lp, rp := l.toPrimitive(), r.toPrimitive()
		if lp.kind == KindString || rp.kind == KindString {
			return String(lp.String() + rp.String()), nil
		}
		return Number(lp.ToNumber() + rp.ToNumber()), nil
	case "-":
		return Number(l.ToNumber() - r.ToNumber()), nil
	case "*":
		return Number(l.ToNumber() * r.ToNumber()), nil
	case "/":
		return Number(l.ToNumber() / r.ToNumber()), nil
	case "%":
		return Number(math.Mod(l.ToNumber(), r.ToNumber())), nil
	case "**":
		return Number(math.Pow(l.ToNumber(), r.ToNumber())), nil
	case "==":
		return Bool(LooseEquals(l, r)), nil
	case "!=":
		return Bool(!LooseEquals(l, r)), nil
	case "===":
		return Bool(StrictEquals(l, r)), nil
	case "!==":
		return Bool(!StrictEquals(l, r)), nil
	case "<", ">", "<=", ">=":
		return Bool(compare(op, l, r)), nil
	case "&":
		return Number(float64(toInt32(l.ToNumber()) & toInt32(r.ToNumber()))), nil
	case "|":
		return Number(float64(toInt32(l.ToNumber()) | toInt32(r.ToNumber()))), nil
	case "^":
		return Number(float64(toInt32(l.ToNumber()) ^ toInt32(r.ToNumber()))), nil
	case "<<":
		return Number(float64(toInt32(l.ToNumber()) << (toUint32(r.ToNumber()) & 31))), nil
	case ">>":
		return Number(float64(toInt32(l.ToNumber()) >> (toUint32(r.ToNumber()) & 31))), nil
	case ">>>":
		return Number(float64(toUint32(l.ToNumber()) >> (toUint32(r.ToNumber()) & 31))), nil
	default:
		return Undefined, fmt.Errorf("%w: unsupported operator %s", ErrTypeError, op)
	}
}

func compare(op string, l, r Value) bool {
	lp, rp := l.toPrimitive(), r.toPrimitive()
	if lp.kind == KindString && rp.kind == KindString {
		switch op {
		case "<":
			return lp.s < rp.s
		case ">":
			return lp.s > rp.s
		case "<=":
			return lp.s <= rp.s
		default:
			return lp.s >= rp.s
		}
	}

	a, b := lp.ToNumber(), rp.ToNumber()
	switch op {
	case "<":
		return a < b
	case ">":
		return a > b
	case "<=":
		return a <= b
	default:
		return a >= b
	}
}

func toUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return uint32(int64(math.Mod(math.Trunc(f), 1<<32)))
}

func toInt32(f float64) int32 { return int32(toUint32(f)) }
