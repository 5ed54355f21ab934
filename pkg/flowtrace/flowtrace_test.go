package flowtrace

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amitmag/flowtrace/pkg/args"
	"github.com/amitmag/flowtrace/pkg/ast"
	"github.com/amitmag/flowtrace/pkg/cache"
	"github.com/amitmag/flowtrace/pkg/cfg"
	"github.com/amitmag/flowtrace/pkg/parser"
)

var renderCases = []struct {
	name string
	src  string
	want string
}{
	{
		name: "arrays",
		src:  "function func(){\nlet arr=[1, 2, 3];\nlet a = 0, b;\narr[2]=4;\nif(arr[1]>arr[a])\nreturn arr[2]+1;\n}",
		want: "op1=>operation: ** 1 **\narr = [1,2,3]\na = 0, b\narr[2] = 4\n | approved\ncond1=>condition: ** 2 **\narr[1] > arr[a] | approved\nst1=>start: ** 3 **\n | approved\nop2=>operation: ** 4 **\nreturn arr[2] + 1 | approved\nst2=>start: ** 5 **\n | approved\nop1->cond1\ncond1(yes)->st1\nst1->op2\nst1->st2\ncond1(no)->op2\nst1->op2\nst1->st2\n",
	},
	{
		name: "local array write",
		src:  "function func(){\nlet arr=[1, 2, 3];\narr[2]=4;\nif(arr[1]>arr[2])\nreturn arr[2]+1;}\n",
		want: "op1=>operation: ** 1 **\narr = [1,2,3]\narr[2] = 4\n | approved\ncond1=>condition: ** 2 **\narr[1] > arr[2] | approved\nst1=>start: ** 3 **\n| else\nop2=>operation: ** 4 **\nreturn arr[2] + 1 | approved\nst2=>start: ** 5 **\n | approved\nop1->cond1\ncond1(yes)->st1\nst1->op2\nst1->st2\ncond1(no)->op2\nst1->op2\nst1->st2\n",
	},
	{
		name: "if else-if else",
		src:  "function func(){\nlet x=1;\nconst y=2;\nvar a = x;\nif(a>y){\nx = 2}\nelse if(a<y){\nx=x+1;}\nelse\nx = 3;\nreturn x;\n}",
		want: "op1=>operation: ** 1 **\nx = 1\ny = 2\na = x\n | approved\ncond1=>condition: ** 2 **\na > y | approved\nop2=>operation: ** 3 **\nx = 2\n| else\ncond2=>condition: ** 4 **\na < y | approved\nop3=>operation: ** 5 **\nx = x + 1\n | approved\nop4=>operation: ** 6 **\nx = 3\n| else\nst1=>start: ** 7 **\n | approved\nop5=>operation: ** 8 **\nreturn x | approved\nop1->cond1\ncond1(yes)->op2\nop2->st1\ncond1(no)->cond2\nop2->st1\ncond2(yes)->op3\nop3->st1\ncond2(no)->op4\nop3->st1\nop4->st1\nst1->op5\n",
	},
	{
		name: "if else-if without else",
		src:  "function func(){\nlet x=1;\nconst y=2;\nvar a = x;\nif(a>y){\nx = 2}\nelse if(a<y){\nx=x+1;}\nreturn x;\n}",
		want: "op1=>operation: ** 1 **\nx = 1\ny = 2\na = x\n | approved\ncond1=>condition: ** 2 **\na > y | approved\nop2=>operation: ** 3 **\nx = 2\n| else\ncond2=>condition: ** 4 **\na < y | approved\nop3=>operation: ** 5 **\nx = x + 1\n | approved\nst1=>start: ** 6 **\n | approved\nop4=>operation: ** 7 **\nreturn x | approved\nop1->cond1\ncond1(yes)->op2\nop2->st1\ncond1(no)->cond2\nop2->st1\ncond2(yes)->op3\nop3->st1\ncond2(no)->st1\nop3->st1\nst1->op4\n",
	},
	{
		name: "sequential ifs",
		src:  "function func(){\nlet x=1;\nconst y=2;\nvar a = x;\nif(a>y)\nx = 2;\nif(a<y)\nx = 3;\nreturn a+1;}",
		want: "op1=>operation: ** 1 **\nx = 1\ny = 2\na = x\n | approved\ncond1=>condition: ** 2 **\na > y | approved\nop2=>operation: ** 3 **\nx = 2\n| else\ncond2=>condition: ** 4 **\na < y | approved\nop3=>operation: ** 5 **\nx = 3\n | approved\nst1=>start: ** 6 **\n | approved\nop4=>operation: ** 7 **\nreturn a + 1 | approved\nop1->cond1\ncond1(yes)->op2\nop2->cond2\ncond1(no)->cond2\nop2->cond2\ncond2(yes)->op3\nop3->st1\ncond2(no)->st1\nop3->st1\nst1->op4\n",
	},
	{
		name: "nested ifs",
		src:  "function func(){\nlet y;\nlet x=2;\nif(x>1){\nif(x>2){\nx=x+1;}}\nreturn x+1;}\n",
		want: "op1=>operation: ** 1 **\ny\nx = 2\n | approved\ncond1=>condition: ** 2 **\nx > 1 | approved\ncond2=>condition: ** 3 **\nx > 2 | approved\nop2=>operation: ** 4 **\nx = x + 1\n| else\nst1=>start: ** 5 **\n | approved\nop3=>operation: ** 6 **\nreturn x + 1 | approved\nop1->cond1\ncond1(yes)->cond2\ncond2(yes)->op2\nop2->st1\ncond2(no)->st1\ncond1(no)->st1\ncond2(yes)->op2\nop2->st1\ncond2(no)->st1\nop2->st1\nst1->op3\n",
	},
	{
		name: "while",
		src:  "function func(){\nlet x=1, y=2;\nx++;\nlet a = x;\nwhile(a>y)\ny = a + 1;\nreturn a+1;}",
		want: "op1=>operation: ** 1 **\nx = 1, y = 2\nx++\na = x\n | approved\ncond1=>condition: ** 2 **\na > y | approved\nop2=>operation: ** 3 **\ny = a + 1\n| else\nop3=>operation: ** 4 **\nreturn a + 1 | approved\nop1->cond1\ncond1(yes)->op2\nop2->cond1\ncond1(no)->op3\nop2->cond1\n",
	},
	{
		name: "while nested in if",
		src:  "function func(){\nlet y;\nlet x=2;\nif(x>1){\nwhile(x==2){\nx=x+1;}}\nreturn x+1;}\n",
		want: "op1=>operation: ** 1 **\ny\nx = 2\n | approved\ncond1=>condition: ** 2 **\nx > 1 | approved\ncond2=>condition: ** 3 **\nx == 2 | approved\nop2=>operation: ** 4 **\nx = x + 1\n | approved\nst1=>start: ** 5 **\n | approved\nop3=>operation: ** 6 **\nreturn x + 1 | approved\nop1->cond1\ncond1(yes)->cond2\ncond2(yes)->op2\nop2->cond2\ncond2(no)->st1\ncond1(no)->st1\ncond2(yes)->op2\nop2->cond2\ncond2(no)->st1\nop2->cond2\nst1->op3\n",
	},
	{
		name: "unary condition",
		src:  "function func(){\nlet x=true;\nif(!x)\nreturn x;}",
		want: "op1=>operation: ** 1 **\nx = true\n | approved\ncond1=>condition: ** 2 **\n!x | approved\nst1=>start: ** 3 **\n| else\nop2=>operation: ** 4 **\nreturn x | approved\nst2=>start: ** 5 **\n | approved\nop1->cond1\ncond1(yes)->st1\nst1->op2\nst1->st2\ncond1(no)->op2\nst1->op2\nst1->st2\n",
	},
}

func TestRender_ReferenceDiagrams(t *testing.T) {
	r := New()
	for _, tt := range renderCases {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Render(context.Background(), Request{Source: []byte(tt.src)})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Diagram)
		})
	}
}

func TestRender_Bindings(t *testing.T) {
	src := "function func(x, arr){\nif(arr[0] > x){\nreturn 1;}\nreturn 0;\n}"

	tests := []struct {
		name     string
		x        string
		feasible bool
	}{
		{"then arm taken", "0", true},
		{"then arm skipped", "5", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := args.ParsePairs([]string{"x=" + tt.x, "arr=[1, 2]"})
			require.NoError(t, err)

			res, err := New().Render(context.Background(), Request{Source: []byte(src), Bindings: b})
			require.NoError(t, err)

			then := res.Graph.Node(2)
			assert.Equal(t, cfg.ArmTrue, then.TruePath)
			assert.Equal(t, tt.feasible, then.IsFeasible)
			assert.Contains(t, res.Graph.Source, "let x="+tt.x+"; let arr=[1,2]; ")
		})
	}
}

func TestRender_FunctionSelection(t *testing.T) {
	src := "function a(){ let x = 1; }\nfunction b(n){ let y = n; }"
	b := args.New()
	b.Set("n", args.Scalar("3"))

	res, err := New().Render(context.Background(), Request{Source: []byte(src), Function: "a", Bindings: b})
	require.NoError(t, err)
	assert.Equal(t, "op1=>operation: ** 1 **\nx = 1\n | approved\n", res.Diagram)

	_, err = New().Render(context.Background(), Request{Source: []byte(src), Function: "zzz"})
	assert.True(t, errors.Is(err, ErrFunctionNotFound))
}

func TestRender_ESTree(t *testing.T) {
	doc := `{"type": "Program", "body": [{
	  "type": "FunctionDeclaration", "id": {"type": "Identifier", "name": "func"}, "params": [],
	  "body": {"type": "BlockStatement", "body": [
	    {"type": "VariableDeclaration", "kind": "let", "declarations": [
	      {"type": "VariableDeclarator", "id": {"type": "Identifier", "name": "x"},
	       "init": {"type": "Literal", "value": true, "raw": "true"}}]},
	    {"type": "IfStatement",
	     "test": {"type": "UnaryExpression", "operator": "!", "prefix": true, "argument": {"type": "Identifier", "name": "x"}},
	     "consequent": {"type": "ReturnStatement", "argument": {"type": "Identifier", "name": "x"}},
	     "alternate": null}]}}]}`

	res, err := New().Render(context.Background(), Request{Source: []byte(doc), Format: FormatESTree})
	require.NoError(t, err)
	assert.Equal(t, renderCases[len(renderCases)-1].want, res.Diagram)
}

func TestRender_Dedupe(t *testing.T) {
	src := []byte(renderCases[0].src)
	plain, err := New().Render(context.Background(), Request{Source: src})
	require.NoError(t, err)
	deduped, err := New(WithDedupe()).Render(context.Background(), Request{Source: src})
	require.NoError(t, err)

	assert.Less(t, len(deduped.Diagram), len(plain.Diagram))
	assert.Contains(t, deduped.Diagram, "cond1(no)->op2\n")
}

func TestRender_Errors(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"syntax", Request{Source: []byte("function func( {")}, parser.ErrSyntax},
		{"unsupported construct", Request{Source: []byte("function func(){ for(;;){} }")}, parser.ErrUnsupportedSyntax},
		{"top-level statement", Request{Source: []byte("let x = 1;")}, cfg.ErrUnsupportedNode},
		{"unbound parameter", Request{Source: []byte("function func(x){ return x; }")}, cfg.ErrInvalidBindings},
		{"undeclared identifier", Request{Source: []byte("function func(){ if(q > 1) return 1; }")}, cfg.ErrEvaluation},
		{"bad estree", Request{Source: []byte("{"), Format: FormatESTree}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New().Render(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, res)
			if tt.want != nil {
				assert.True(t, errors.Is(err, tt.want), "got %v", err)
			}
		})
	}
}

func TestRender_Cache(t *testing.T) {
	c := cache.New(cache.Options[Result]{MaxSize: 8})
	r := New(WithCache(c))
	req := Request{Source: []byte(renderCases[6].src)}

	first, err := r.Render(context.Background(), req)
	require.NoError(t, err)
	second, err := r.Render(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Diagram, second.Diagram)
	assert.Equal(t, cache.Stats{Length: 1, HitCount: 1, MissCount: 1}, c.Stats())

	// Different bindings or options are different entries.
	b := args.New()
	b.Set("unused", args.Scalar("1"))
	_, err = r.Render(context.Background(), Request{Source: req.Source, Bindings: b})
	require.NoError(t, err)
	_, err = r.Render(context.Background(), Request{Source: req.Source, Dedupe: true})
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())
}

func TestRender_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Render(ctx, Request{Source: []byte(renderCases[0].src)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRender_Concurrent(t *testing.T) {
	r := New(WithCache(cache.New(cache.Options[Result]{MaxSize: 4})))
	var wg sync.WaitGroup
	errs := make(chan error, len(renderCases)*4)
	for i := 0; i < 4; i++ {
		for _, tt := range renderCases {
			wg.Add(1)
			go func(src, want string) {
				defer wg.Done()
				res, err := r.Render(context.Background(), Request{Source: []byte(src)})
				if err != nil {
					errs <- err
					return
				}
				if res.Diagram != want {
					errs <- errors.New("diagram mismatch for " + src)
				}
			}(tt.src, tt.want)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatESTree, FormatFromPath("tree.JSON"))
	assert.Equal(t, FormatJS, FormatFromPath("f.js"))
	assert.Equal(t, FormatJS, FormatFromPath("noext"))
}

func TestParse_NarrowsToFunction(t *testing.T) {
	prog, err := Parse(context.Background(), []byte("function a(){}\nfunction b(){}"), FormatJS, "b")
	require.NoError(t, err)
	require.Len(t, prog.Body, 1)
	assert.Equal(t, "b", prog.Body[0].(*ast.FunctionDeclaration).ID.Name)
}
