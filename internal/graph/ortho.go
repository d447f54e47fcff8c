package graph

// ---------------------------------------------------------------------------
// Orthogonal list
// ---------------------------------------------------------------------------
//
// The dependency graph is stored as an orthogonal (cross) list encoded with
// array indices instead of pointers: one flat vertex arena and one flat edge
// arena. Every edge is threaded through two singly linked lists at once —
// the out-list of its tail vertex and the in-list of its head vertex — so
// both forward ("what does X depend on") and reverse ("who depends on X")
// adjacency come from the same physical edge records.
//
// Head-insertion means per-vertex edge lists are in reverse-of-insertion
// order; consumers only need completeness, not ordering.

// None is the sentinel index meaning "no edge" / "end of list".
const None = -1

// Vertex is one entry in the vertex arena. FirstIn/FirstOut are indices into
// the edge arena, or None.
type Vertex[V any] struct {
	Data      V   `json:"data"`
	FirstIn   int `json:"firstIn"`
	FirstOut  int `json:"firstOut"`
	InDegree  int `json:"inDegree"`
	OutDegree int `json:"outDegree"`
}

// Edge is one entry in the edge arena. TailVertex/HeadVertex index the vertex
// arena; HeadNext/TailNext continue the head's in-list and the tail's
// out-list respectively.
type Edge[E any] struct {
	Data       E   `json:"data"`
	TailVertex int `json:"tailvertex"`
	HeadVertex int `json:"headvertex"`
	HeadNext   int `json:"headnext"`
	TailNext   int `json:"tailnext"`
}

// Orthogonal is an index-based directed graph over arbitrary vertex and edge
// payloads. It is built once and then read-only; concurrent reads are safe.
type Orthogonal[V, E any] struct {
	Vertices []Vertex[V] `json:"vertices"`
	Edges    []Edge[E]   `json:"edges"`

	index map[string]int // vertex key → vertex index
}

// NewOrthogonal returns an empty graph sized for the given vertex count hint.
func NewOrthogonal[V, E any](hint int) *Orthogonal[V, E] {
	return &Orthogonal[V, E]{
		Vertices: make([]Vertex[V], 0, hint),
		Edges:    nil,
		index:    make(map[string]int, hint),
	}
}

// AddVertex appends a vertex keyed by id and returns its index. Adding the
// same id twice returns the existing index without modifying the graph.
func (g *Orthogonal[V, E]) AddVertex(id string, data V) int {
	if i, ok := g.index[id]; ok {
		return i
	}
	i := len(g.Vertices)
	g.Vertices = append(g.Vertices, Vertex[V]{
		Data:     data,
		FirstIn:  None,
		FirstOut: None,
	})
	g.index[id] = i
	return i
}

// AddEdge appends a directed edge from the vertex keyed fromID to the vertex
// keyed toID. If either endpoint is unknown the edge is a dangling reference
// and is silently skipped (ok == false) — an expected consequence of partial
// or filtered inputs.
func (g *Orthogonal[V, E]) AddEdge(fromID, toID string, data E) (int, bool) {
	tail, ok := g.index[fromID]
	if !ok {
		return None, false
	}
	head, ok := g.index[toID]
	if !ok {
		return None, false
	}

	j := len(g.Edges)
	g.Edges = append(g.Edges, Edge[E]{
		Data:       data,
		TailVertex: tail,
		HeadVertex: head,
		TailNext:   g.Vertices[tail].FirstOut,
		HeadNext:   g.Vertices[head].FirstIn,
	})

	g.Vertices[tail].FirstOut = j
	g.Vertices[tail].OutDegree++
	g.Vertices[head].FirstIn = j
	g.Vertices[head].InDegree++
	return j, true
}

// VertexIndex resolves a vertex key to its arena index.
func (g *Orthogonal[V, E]) VertexIndex(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// inRange reports whether v is a valid vertex index.
func (g *Orthogonal[V, E]) inRange(v int) bool {
	return v >= 0 && v < len(g.Vertices)
}

// ---------------------------------------------------------------------------
// Edge enumeration
// ---------------------------------------------------------------------------

// OutgoingEdges walks the out-list of vertex v and returns the edge payloads.
// Returns nil when v is out of range or has no outgoing edges.
func (g *Orthogonal[V, E]) OutgoingEdges(v int) []E {
	if !g.inRange(v) {
		return nil
	}
	var out []E
	for j := g.Vertices[v].FirstOut; j != None; j = g.Edges[j].TailNext {
		out = append(out, g.Edges[j].Data)
	}
	return out
}

// IncomingEdges walks the in-list of vertex v and returns the edge payloads.
func (g *Orthogonal[V, E]) IncomingEdges(v int) []E {
	if !g.inRange(v) {
		return nil
	}
	var in []E
	for j := g.Vertices[v].FirstIn; j != None; j = g.Edges[j].HeadNext {
		in = append(in, g.Edges[j].Data)
	}
	return in
}

// Successors returns the vertex indices reachable from v over one outgoing
// edge. Duplicates are possible when parallel edges exist.
func (g *Orthogonal[V, E]) Successors(v int) []int {
	if !g.inRange(v) {
		return nil
	}
	var succ []int
	for j := g.Vertices[v].FirstOut; j != None; j = g.Edges[j].TailNext {
		succ = append(succ, g.Edges[j].HeadVertex)
	}
	return succ
}

// Predecessors returns the vertex indices with an edge into v.
func (g *Orthogonal[V, E]) Predecessors(v int) []int {
	if !g.inRange(v) {
		return nil
	}
	var pred []int
	for j := g.Vertices[v].FirstIn; j != None; j = g.Edges[j].HeadNext {
		pred = append(pred, g.Edges[j].TailVertex)
	}
	return pred
}

// ---------------------------------------------------------------------------
// Traversal
// ---------------------------------------------------------------------------

// DFS performs a pre-order depth-first walk over outgoing edges starting at
// start, invoking visit once per reachable vertex on first visit. The visited
// set guarantees termination on cyclic inputs. Out-of-range starts visit
// nothing.
func (g *Orthogonal[V, E]) DFS(start int, visit func(v int)) {
	if !g.inRange(start) {
		return
	}
	visited := make(map[int]bool, len(g.Vertices))
	g.dfs(start, visit, visited)
}

func (g *Orthogonal[V, E]) dfs(v int, visit func(v int), visited map[int]bool) {
	if visited[v] {
		return
	}
	visited[v] = true
	visit(v)
	for j := g.Vertices[v].FirstOut; j != None; j = g.Edges[j].TailNext {
		g.dfs(g.Edges[j].HeadVertex, visit, visited)
	}
}

// BFS performs a level-order forward traversal starting at start, invoking
// visit exactly once per reachable vertex (including start). Out-of-range
// starts visit nothing.
func (g *Orthogonal[V, E]) BFS(start int, visit func(v int)) {
	if !g.inRange(start) {
		return
	}
	visited := map[int]bool{start: true}
	queue := []int{start}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		visit(v)
		for j := g.Vertices[v].FirstOut; j != None; j = g.Edges[j].TailNext {
			h := g.Edges[j].HeadVertex
			if !visited[h] {
				visited[h] = true
				queue = append(queue, h)
			}
		}
	}
}

// Neighborhood collects the vertex indices within depth hops of start,
// following edges in both directions (out and in). Depth 0 yields only start.
// Used to bound dependency queries to a local neighborhood.
func (g *Orthogonal[V, E]) Neighborhood(start, depth int) []int {
	if !g.inRange(start) {
		return nil
	}
	type entry struct {
		v     int
		depth int
	}
	visited := map[int]bool{start: true}
	queue := []entry{{start, 0}}
	result := []int{start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= depth {
			continue
		}
		for _, n := range append(g.Successors(cur.v), g.Predecessors(cur.v)...) {
			if !visited[n] {
				visited[n] = true
				result = append(result, n)
				queue = append(queue, entry{n, cur.depth + 1})
			}
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Node-level build helper
// ---------------------------------------------------------------------------

// NodeGraph is the orthogonal graph over analysis nodes and their
// connections — the representation behind every dependency query.
type NodeGraph = Orthogonal[*Node, *Connection]

// BuildNodeGraph indexes a flat node/connection set. Vertices are created in
// input order; connections referencing node ids outside the set are skipped.
func BuildNodeGraph(nodes []*Node, conns []*Connection) *NodeGraph {
	g := NewOrthogonal[*Node, *Connection](len(nodes))
	for _, n := range nodes {
		g.AddVertex(n.ID, n)
	}
	for _, c := range conns {
		g.AddEdge(c.FromID, c.ToID, c)
	}
	return g
}
