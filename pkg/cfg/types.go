// Package cfg defines the node table of a feasibility-annotated control flow
// graph and the builder that produces it from a function body.
package cfg

// Arm marks whether a node is the "then" or "else" arm of the condition
// that precedes it.
type Arm string

const (
	ArmNone  Arm = ""      // Not a direct arm of a condition
	ArmTrue  Arm = "true"  // Then arm, or a loop body
	ArmFalse Arm = "false" // Else arm, join node, or loop exit
)

// Role is decided when a node is allocated and updated as content lands in
// it. It drives node reuse: fresh nodes are reused as conditions and join
// points, and an empty loop exit absorbs a following return.
type Role string

const (
	RoleFresh     Role = "fresh"     // Allocated, no content yet
	RolePopulated Role = "populated" // Holds at least one statement or condition
	RoleLoopExit  Role = "loop_exit" // Empty continuation after a while loop
)

// NodeKind is how a node is drawn.
type NodeKind string

const (
	KindCondition NodeKind = "condition"
	KindOperation NodeKind = "operation"
	KindStart     NodeKind = "start"
)

// Node is one entry of the graph table.
type Node struct {
	ID          int      `json:"id" msgpack:"id"`                                   // 1-based, in allocation order
	Content     []string `json:"content" msgpack:"content"`                         // Rendered statements or the condition
	Children    []int    `json:"children" msgpack:"children"`                       // Successor ids; duplicates are kept
	IsCondition bool     `json:"is_condition" msgpack:"is_condition"`               // Branch test
	IsFeasible  bool     `json:"is_feasible" msgpack:"is_feasible"`                 // Reached under the bindings
	TruePath    Arm      `json:"true_path,omitempty" msgpack:"true_path,omitempty"` // Arm of the preceding condition
	Role        Role     `json:"role" msgpack:"role"`
}

// Kind reports whether n is drawn as a condition, an operation or a start.
func (n *Node) Kind() NodeKind {
	switch {
	case n.IsCondition:
		return KindCondition
	case len(n.Content) > 0:
		return KindOperation
	default:
		return KindStart
	}
}

func (n *Node) addContent(s string) {
	n.Content = append(n.Content, s)
	n.Role = RolePopulated
}

func (n *Node) link(id int) {
	n.Children = append(n.Children, id)
}

// Graph is the complete node table of one function plus the reconstructed
// source that drove its feasibility decisions.
type Graph struct {
	Nodes  []*Node `json:"nodes" msgpack:"nodes"`
	Source string  `json:"source" msgpack:"source"`
}

// Node returns the node with the given id, or nil when id is out of range.
func (g *Graph) Node(id int) *Node {
	if id < 1 || id > len(g.Nodes) {
		return nil
	}
	return g.Nodes[id-1]
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.Nodes) }
