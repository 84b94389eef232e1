package cmn

import (
	"bytes"
)

var errorGraphCircular = ErrOf(
	ErrConfig,
	"graph.circulardep",
	"Circular dependency between two nodes was identified", "A: '%s'", "B: '%s'", "PathA: '%s'", "PathB: '%s'",
)

// GNode a node of a dependency graph (component factories and their dependencies)
type GNode interface {
	GetKey() string
	GetDependencies() []GNode
}

// dependency graph (DAG)
type graph struct {
	nodeList []GNode                     // ALL nodes in this graph, including dependencies, dependencies first
	visiting map[GNode]bool              // nodes on the current walk path
	done     map[GNode]bool              // nodes already placed in nodeList
	path     map[GNode]map[GNode][]GNode // [FROM][TO] => PATH
	errA     []GNode                     // Circular dependency path
	errB     []GNode                     // Inverse path of circular dependency
}

// adds a node (after its dependencies) and checks if there is a circular dependency
func (g *graph) add(node GNode, parentPath []GNode) bool {
	if g.done[node] {
		return false
	}

	for i := 0; i < len(parentPath); i++ {
		// records the path between each parent and the current node
		g.set(parentPath[i], node, append(append([]GNode{}, parentPath[i:]...), node))
	}

	g.visiting[node] = true
	nodePath := append(append([]GNode{}, parentPath...), node)
	for _, dependency := range node.GetDependencies() {
		if g.visiting[dependency] {
			// circular dependency
			g.errA = []GNode{node, dependency}
			g.errB = g.get(dependency, node)
			if g.errB == nil {
				g.errB = []GNode{dependency, node}
			}
			return true
		}
		if g.add(dependency, nodePath) {
			return true
		}
	}
	g.visiting[node] = false

	g.done[node] = true
	g.nodeList = append(g.nodeList, node)
	return false
}

func (g *graph) get(from, to GNode) []GNode {
	if pFrom, existsFrom := g.path[from]; existsFrom {
		if pTo, existsTo := pFrom[to]; existsTo {
			return pTo
		}
	}
	return nil
}

func (g *graph) set(from, to GNode, path []GNode) {
	if g.path[from] == nil {
		g.path[from] = map[GNode][]GNode{}
	}
	current := g.path[from][to]
	if current != nil && len(current) < len(path) {
		// already has a shortest path between the two nodes
		return
	}
	g.path[from][to] = path
}

// debugNodes debug a path
func debugNodes(nodes []GNode, separator string) string {
	buf := &bytes.Buffer{}
	for i, node := range nodes {
		if i > 0 {
			buf.WriteString(separator)
		}
		buf.WriteString(node.GetKey())
	}
	return buf.String()
}

// GraphResolveDependencies Topological ordering of a directed acyclic graph (DAG). Dependencies come before their
// dependents, independent nodes keep the order in which they were informed.
//
// https://en.wikipedia.org/wiki/Topological_sorting
func GraphResolveDependencies(nodes []GNode) ([]GNode, error) {
	g := &graph{
		path:     map[GNode]map[GNode][]GNode{},
		visiting: map[GNode]bool{},
		done:     map[GNode]bool{},
	}
	for _, node := range nodes {
		if g.add(node, nil) {
			return nil, errorGraphCircular(
				g.errA[0].GetKey(),
				g.errB[0].GetKey(),
				debugNodes(g.errA, " -> "),
				debugNodes(g.errB, " -> "),
			)
		}
	}
	return g.nodeList, nil
}
