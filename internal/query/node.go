// Package query turns parsed GraphQL operations into selection trees.
package query

import "sort"

const (
	OperationQuery    = "query"
	OperationMutation = "mutation"
)

// Node is one field of a client selection. The root node carries the
// operation type in Name and has no alias or arguments.
type Node struct {
	Name      string
	Alias     string
	Arguments map[string]any
	Children  []*Node
}

// Root returns a query root selecting children.
func Root(children ...*Node) *Node {
	return &Node{Name: OperationQuery, Children: children}
}

// MutationRoot returns a mutation root selecting children.
func MutationRoot(children ...*Node) *Node {
	return &Node{Name: OperationMutation, Children: children}
}

// F is shorthand for a field node without arguments.
func F(name string, children ...*Node) *Node {
	return &Node{Name: name, Children: children}
}

// WithArgs sets arguments on n and returns it.
func (n *Node) WithArgs(args map[string]any) *Node {
	n.Arguments = args
	return n
}

// As sets the alias of n and returns it.
func (n *Node) As(alias string) *Node {
	n.Alias = alias
	return n
}

// ResponseKey is the key under which the field appears in the response.
func (n *Node) ResponseKey() string {
	if n.Alias != "" {
		return n.Alias
	}
	return n.Name
}

// ArgumentNames returns argument names in lexicographic order.
func (n *Node) ArgumentNames() []string {
	names := make([]string, 0, len(n.Arguments))
	for name := range n.Arguments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
