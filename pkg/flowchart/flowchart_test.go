package flowchart

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amitmag/flowtrace/pkg/cfg"
)

// whileGraph is the table built for
//
//	x++; while (a > y) y = a + 1; return a + 1;
//
// with the loop never entered.
func whileGraph() *cfg.Graph {
	return &cfg.Graph{Nodes: []*cfg.Node{
		{ID: 1, Content: []string{"x++\n"}, Children: []int{2}, IsFeasible: true},
		{ID: 2, Content: []string{"a > y"}, Children: []int{3, 4}, IsCondition: true, IsFeasible: true, TruePath: cfg.ArmTrue},
		{ID: 3, Content: []string{"y = a + 1\n"}, Children: []int{2}, TruePath: cfg.ArmTrue},
		{ID: 4, Content: []string{"return a + 1"}, Children: []int{}, IsFeasible: true, TruePath: cfg.ArmFalse},
	}}
}

func TestMarshal_While(t *testing.T) {
	out, err := Marshal(whileGraph())
	require.NoError(t, err)

	want := "op1=>operation: ** 1 **\nx++\n | approved\n" +
		"cond1=>condition: ** 2 **\na > y | approved\n" +
		"op2=>operation: ** 3 **\ny = a + 1\n| else\n" +
		"op3=>operation: ** 4 **\nreturn a + 1 | approved\n" +
		"op1->cond1\ncond1(yes)->op2\nop2->cond1\ncond1(no)->op3\nop2->cond1\n"
	assert.Equal(t, want, string(out))
}

// nestedGraph is two nested ifs without else, joined on node 5.
func nestedGraph() *cfg.Graph {
	return &cfg.Graph{Nodes: []*cfg.Node{
		{ID: 1, Content: []string{"x = 2\n"}, Children: []int{2}, IsFeasible: true},
		{ID: 2, Content: []string{"x > 1"}, Children: []int{3, 5}, IsCondition: true, IsFeasible: true},
		{ID: 3, Content: []string{"x > 2"}, Children: []int{4, 5, 5}, IsCondition: true, IsFeasible: true, TruePath: cfg.ArmTrue},
		{ID: 4, Content: []string{"x = x + 1\n"}, Children: []int{5}, TruePath: cfg.ArmTrue},
		{ID: 5, Children: []int{6}, IsFeasible: true, TruePath: cfg.ArmFalse},
		{ID: 6, Content: []string{"return x + 1"}, Children: []int{}, IsFeasible: true},
	}}
}

func TestMarshal_NestedConditions(t *testing.T) {
	out, err := Marshal(nestedGraph())
	require.NoError(t, err)

	want := "op1=>operation: ** 1 **\nx = 2\n | approved\n" +
		"cond1=>condition: ** 2 **\nx > 1 | approved\n" +
		"cond2=>condition: ** 3 **\nx > 2 | approved\n" +
		"op2=>operation: ** 4 **\nx = x + 1\n| else\n" +
		"st1=>start: ** 5 **\n | approved\n" +
		"op3=>operation: ** 6 **\nreturn x + 1 | approved\n" +
		"op1->cond1\n" +
		"cond1(yes)->cond2\ncond2(yes)->op2\nop2->st1\ncond2(no)->st1\ncond1(no)->st1\n" +
		"cond2(yes)->op2\nop2->st1\ncond2(no)->st1\n" +
		"op2->st1\n" +
		"st1->op3\n"
	assert.Equal(t, want, string(out))
}

func TestMarshal_Dedupe(t *testing.T) {
	out, err := Marshal(nestedGraph(), WithDedupe())
	require.NoError(t, err)

	edges := "op1->cond1\n" +
		"cond1(yes)->cond2\ncond2(yes)->op2\nop2->st1\ncond2(no)->st1\ncond1(no)->st1\n" +
		"st1->op3\n"
	assert.Contains(t, string(out), "op3=>operation: ** 6 **\nreturn x + 1 | approved\n"+edges)
	assert.Equal(t, 1, bytes.Count(out, []byte("op2->st1\n")))
}

func TestEncode_MatchesMarshal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, whileGraph()))
	out, err := Marshal(whileGraph())
	require.NoError(t, err)
	assert.Equal(t, out, buf.Bytes())
}

func TestMarshal_Empty(t *testing.T) {
	out, err := Marshal(&cfg.Graph{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMarshal_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		graph *cfg.Graph
	}{
		{"nil graph", nil},
		{
			name: "condition at end of table",
			graph: &cfg.Graph{Nodes: []*cfg.Node{
				{ID: 1, Content: []string{"x"}, IsCondition: true, IsFeasible: true},
			}},
		},
		{
			name: "no branch past end",
			graph: &cfg.Graph{Nodes: []*cfg.Node{
				{ID: 1, Content: []string{"x"}, IsCondition: true, Children: []int{2}},
				{ID: 2, TruePath: cfg.ArmTrue},
			}},
		},
		{
			name: "dangling child",
			graph: &cfg.Graph{Nodes: []*cfg.Node{
				{ID: 1, Content: []string{"a\n"}, Children: []int{7}},
			}},
		},
		{
			name: "ids out of order",
			graph: &cfg.Graph{Nodes: []*cfg.Node{
				{ID: 2}, {ID: 1},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Marshal(tt.graph)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedGraph))
		})
	}
}
