package deadcode

import (
	"slices"
	"strings"

	"pmat/internal/dag"
)

// dispatch holds the tables that resolve calls made through traits and
// interfaces, which the call graph only records against the abstract
// declaration.
type dispatch struct {
	// implementors maps an interface or trait id to its implementing types.
	implementors map[string][]string
	// interfaces maps a type id to the interfaces and traits it implements.
	interfaces map[string][]string
	// vtable maps a type name and method name to the method node ids.
	vtable map[string]map[string][]string
	// owner maps a method id to the id of its enclosing type, if declared.
	owner map[string]string
	out   map[string][]string
}

func newDispatch(g *dag.Graph) *dispatch {
	d := &dispatch{
		implementors: make(map[string][]string),
		interfaces:   make(map[string][]string),
		vtable:       make(map[string]map[string][]string),
		owner:        make(map[string]string),
		out:          make(map[string][]string),
	}
	for _, e := range g.SortedEdges() {
		if e.EdgeType != dag.Imports {
			d.out[e.From] = append(d.out[e.From], e.To)
		}
		if e.EdgeType != dag.Implements && e.EdgeType != dag.Inherits {
			continue
		}
		if t := g.Nodes[e.To].NodeType; t == dag.Trait || t == dag.Interface {
			d.implementors[e.To] = append(d.implementors[e.To], e.From)
			d.interfaces[e.From] = append(d.interfaces[e.From], e.To)
		}
	}
	for _, id := range g.NodeIDs() {
		n := g.Nodes[id]
		if n.NodeType != dag.Function {
			continue
		}
		i := strings.LastIndex(id, "::")
		if i < 0 {
			continue
		}
		parentID := id[:i]
		typeName := parentID[strings.LastIndex(parentID, "::")+2:]
		if p := g.Nodes[parentID]; p != nil && p.NodeType != dag.Module && p.NodeType != dag.Function {
			d.owner[id] = parentID
		} else if p != nil {
			// Nested function or free function of a module.
			continue
		}
		m := d.vtable[typeName]
		if m == nil {
			m = make(map[string][]string)
			d.vtable[typeName] = m
		}
		m[n.Label] = append(m[n.Label], id)
	}
	return d
}

// methods returns the ids of the methods named method declared for the
// type called typeName, wherever its implementation blocks live.
func (d *dispatch) methods(typeName, method string) []string {
	return d.vtable[typeName][method]
}

// methodNames returns the method names declared directly on a type or
// interface.
func (d *dispatch) methodNames(typeName string) []string {
	names := make([]string, 0, len(d.vtable[typeName]))
	for name := range d.vtable[typeName] {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// reach marks every node reachable from roots. Besides graph edges it
// applies dispatch: a reachable interface method makes the same method of
// every implementor reachable and the reverse, a reachable type makes its
// implementations of its interfaces' methods reachable, and a reachable
// method makes its type reachable.
func (d *dispatch) reach(g *dag.Graph, roots []string) map[string]bool {
	live := make(map[string]bool, len(roots))
	queue := make([]string, 0, len(roots))
	visit := func(id string) {
		if id != "" && !live[id] && g.Nodes[id] != nil {
			live[id] = true
			queue = append(queue, id)
		}
	}
	for _, r := range roots {
		visit(r)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n := g.Nodes[id]
		for _, to := range d.out[id] {
			visit(to)
		}
		switch n.NodeType {
		case dag.Function:
			owner, ok := d.owner[id]
			if !ok {
				continue
			}
			visit(owner)
			if t := g.Nodes[owner].NodeType; t == dag.Trait || t == dag.Interface {
				for _, impl := range d.implementors[owner] {
					for _, m := range d.methods(g.Nodes[impl].Label, n.Label) {
						visit(m)
					}
				}
				continue
			}
			for _, iface := range d.interfaces[owner] {
				for _, m := range d.methods(g.Nodes[iface].Label, n.Label) {
					visit(m)
				}
			}
		case dag.Class:
			for _, iface := range d.interfaces[id] {
				for _, name := range d.methodNames(g.Nodes[iface].Label) {
					for _, m := range d.methods(n.Label, name) {
						visit(m)
					}
				}
			}
		}
	}
	return live
}
