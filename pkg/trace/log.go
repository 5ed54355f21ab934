package trace

import (
	"slices"
	"strings"

	"github.com/amitmag/flowtrace/pkg/ast"
)

// EntryKind identifies one piece of the reconstructed statement log.
type EntryKind int

const (
	EntryParam EntryKind = iota
	EntryDecl
	EntryExpr
	EntryIf
	EntryElseIf
	EntryElse
	EntryWhile
	EntryOpen
	EntryClose
	EntryCond
)

// Entry is one reconstructed statement or control token.
type Entry struct {
	Kind  EntryKind
	Name  string                    // EntryParam
	Value Value                     // EntryParam
	Decls []*ast.VariableDeclarator // EntryDecl
	Expr  ast.Expr                  // EntryExpr, EntryIf, EntryElseIf, EntryWhile, EntryCond
	Text  string
}

// Param is a function parameter with its bound value.
type Param struct {
	Name  string
	Value Value
}

// Log is the append-only source reconstruction of everything the builder
// has visited so far, minus return statements. The zero value is empty
// and ready to use.
type Log struct {
	entries []Entry
}

// Param records a parameter declaration: `let name=value; `.
func (l *Log) Param(p Param) {
	l.entries = append(l.entries, Entry{
		Kind:  EntryParam,
		Name:  p.Name,
		Value: p.Value,
		Text:  "let " + p.Name + "=" + p.Value.Literal() + "; ",
	})
}

// Declare records a declaration. const and var are recorded as let.
func (l *Log) Declare(decls []*ast.VariableDeclarator) {
	l.entries = append(l.entries, Entry{
		Kind:  EntryDecl,
		Decls: decls,
		Text:  "let " + ast.RenderDeclarators(decls) + ";",
	})
}

// Exec records an expression statement.
func (l *Log) Exec(e ast.Expr) {
	l.entries = append(l.entries, Entry{Kind: EntryExpr, Expr: e, Text: ast.Render(e) + ";"})
}

func (l *Log) If(test ast.Expr) {
	l.entries = append(l.entries, Entry{Kind: EntryIf, Expr: test, Text: "if(" + ast.Render(test) + ")"})
}

func (l *Log) ElseIf(test ast.Expr) {
	l.entries = append(l.entries, Entry{Kind: EntryElseIf, Expr: test, Text: "else if(" + ast.Render(test) + ")"})
}

func (l *Log) Else() {
	l.entries = append(l.entries, Entry{Kind: EntryElse, Text: "else"})
}

func (l *Log) While(test ast.Expr) {
	l.entries = append(l.entries, Entry{Kind: EntryWhile, Expr: test, Text: "while(" + ast.Render(test) + ")"})
}

func (l *Log) Open() {
	l.entries = append(l.entries, Entry{Kind: EntryOpen, Text: "{"})
}

func (l *Log) Close() {
	l.entries = append(l.entries, Entry{Kind: EntryClose, Text: "}"})
}

// Len returns the number of entries.
func (l *Log) Len() int { return len(l.entries) }

// Entries returns a copy of the entries.
func (l *Log) Entries() []Entry { return slices.Clone(l.entries) }

func (l *Log) String() string { return joinText(l.entries) }

// Fragment closes the log at the given block depth and appends cond as
// the trailing statement: the log, depth-1 closing braces, the condition
// and one final brace. The log itself is not modified.
func (l *Log) Fragment(depth int, cond ast.Expr) *Fragment {
	entries := make([]Entry, 0, len(l.entries)+depth+1)
	entries = append(entries, l.entries...)
	for i := 1; i < depth; i++ {
		entries = append(entries, Entry{Kind: EntryClose, Text: "}"})
	}
	entries = append(entries,
		Entry{Kind: EntryCond, Expr: cond, Text: ast.Render(cond)},
		Entry{Kind: EntryClose, Text: "}"},
	)
	return &Fragment{entries: entries}
}

// Fragment is a self-contained program ending in a condition.
type Fragment struct {
	entries []Entry
}

func (f *Fragment) String() string { return joinText(f.entries) }

func joinText(entries []Entry) string {
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.Text)
	}
	return sb.String()
}
