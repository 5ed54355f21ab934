package trace

import (
	"fmt"

	"github.com/amitmag/flowtrace/pkg/ast"
)

// The log is a flat token stream; these are the statements it spells.
type (
	stmt interface{ isStmt() }

	paramStmt struct {
		name  string
		value Value
	}
	declStmt  struct{ decls []*ast.VariableDeclarator }
	exprStmt  struct{ expr ast.Expr }
	condStmt  struct{ expr ast.Expr }
	blockStmt struct{ body []stmt }
	ifStmt    struct {
		test ast.Expr
		cons stmt
		alt  stmt
	}
	whileStmt struct {
		test ast.Expr
		body stmt
	}
)

func (*paramStmt) isStmt() {}
func (*declStmt) isStmt()  {}
func (*exprStmt) isStmt()  {}
func (*condStmt) isStmt()  {}
func (*blockStmt) isStmt() {}
func (*ifStmt) isStmt()    {}
func (*whileStmt) isStmt() {}

type entryParser struct {
	entries []Entry
	pos     int
}

func parseEntries(entries []Entry) ([]stmt, error) {
	p := &entryParser{entries: entries}
	var body []stmt
	for p.pos < len(p.entries) {
		if p.entries[p.pos].Kind == EntryClose {
			return nil, fmt.Errorf("%w: unexpected '}' at token %d", ErrUnbalancedFragment, p.pos)
		}
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		body = append(body, s)
	}
	return body, nil
}

func (p *entryParser) parseStmt() (stmt, error) {
	if p.pos >= len(p.entries) {
		return nil, fmt.Errorf("%w: unexpected end of fragment", ErrUnbalancedFragment)
	}
	e := p.entries[p.pos]
	p.pos++

	switch e.Kind {
	case EntryParam:
		return &paramStmt{name: e.Name, value: e.Value}, nil
	case EntryDecl:
		return &declStmt{decls: e.Decls}, nil
	case EntryExpr:
		return &exprStmt{expr: e.Expr}, nil
	case EntryCond:
		return &condStmt{expr: e.Expr}, nil
	case EntryOpen:
		block := &blockStmt{}
		for {
			if p.pos >= len(p.entries) {
				return nil, fmt.Errorf("%w: unclosed '{'", ErrUnbalancedFragment)
			}
			if p.entries[p.pos].Kind == EntryClose {
				p.pos++
				return block, nil
			}
			s, err := p.parseStmt()
			if err != nil {
				return nil, err
			}
			block.body = append(block.body, s)
		}
	case EntryIf:
		return p.parseIf(e.Expr)
	case EntryWhile:
		body, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		return &whileStmt{test: e.Expr, body: body}, nil
	case EntryElseIf, EntryElse:
		return nil, fmt.Errorf("%w: %q without if", ErrUnbalancedFragment, e.Text)
	default:
		return nil, fmt.Errorf("%w: unexpected %q at token %d", ErrUnbalancedFragment, e.Text, p.pos-1)
	}
}

func (p *entryParser) parseIf(test ast.Expr) (stmt, error) {
	cons, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	s := &ifStmt{test: test, cons: cons}
	if p.pos >= len(p.entries) {
		return s, nil
	}

	switch next := p.entries[p.pos]; next.Kind {
	case EntryElseIf:
		p.pos++
		s.alt, err = p.parseIf(next.Expr)
	case EntryElse:
		p.pos++
		s.alt, err = p.parseStmt()
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
