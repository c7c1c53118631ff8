package lifecycle

import (
	"fmt"
	"weak"
)

// Node is a graph vertex that can own its neighbours or merely observe them.
type Node struct {
	Name      string
	Neighbors []*Node
	Weak      []weak.Pointer[Node]

	payload [256]byte
}

// NewRing builds n tracked nodes where node i links to node i+1 (mod n).
// With weakLinks the links are weak pointers and own nothing.
func NewRing(t *Tracker, n int, weakLinks bool) []*Node {
	nodes := make([]*Node, n)
	for i := range nodes {
		nodes[i] = &Node{Name: fmt.Sprintf("Node-%d", i)}
		Track(t, nodes[i], nodes[i].Name)
	}
	for i, node := range nodes {
		next := nodes[(i+1)%n]
		if weakLinks {
			node.Weak = append(node.Weak, weak.Make(next))
		} else {
			node.Neighbors = append(node.Neighbors, next)
		}
	}
	return nodes
}

// Probe returns weak pointers to nodes so a caller can watch them disappear
// without keeping them alive.
func Probe(nodes []*Node) []weak.Pointer[Node] {
	out := make([]weak.Pointer[Node], len(nodes))
	for i, n := range nodes {
		out[i] = weak.Make(n)
	}
	return out
}

// Survivors counts probes whose target is still reachable.
func Survivors(probes []weak.Pointer[Node]) int {
	n := 0
	for _, p := range probes {
		if p.Value() != nil {
			n++
		}
	}
	return n
}

// Next follows the first link of n, strong or weak. It returns nil when the
// weak target has been reclaimed.
func (n *Node) Next() *Node {
	if len(n.Neighbors) > 0 {
		return n.Neighbors[0]
	}
	if len(n.Weak) > 0 {
		return n.Weak[0].Value()
	}
	return nil
}
