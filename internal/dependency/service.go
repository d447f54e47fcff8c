// Package dependency answers graph queries over persisted nodes and
// connections: node-level dependency graphs, project-level graphs with cycle
// detection, and reverse-traversal impact reports.
package dependency

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/crosslink/crosslink/internal/cache"
	"github.com/crosslink/crosslink/internal/graph"
	"github.com/crosslink/crosslink/internal/storage"
)

// DefaultDepth bounds graph queries when the caller does not give a depth.
// Effectively "all" for any graph we expect to see.
const DefaultDepth = 100

// Wildcard selects every project in project-level queries.
const Wildcard = "*"

// Store is the slice of the storage layer the service reads. Queries are
// read-only; the service never mutates persisted data.
type Store interface {
	ListNodes(ctx context.Context, f storage.NodeFilter) ([]*graph.Node, error)
	ListConnections(ctx context.Context, f storage.ConnectionFilter) ([]*graph.Connection, error)
	ListProjects(ctx context.Context) ([]*graph.Project, error)
}

// Service builds dependency graphs on demand. Each query reads a fresh
// snapshot and builds its own private graph, so concurrent calls are safe.
type Service struct {
	store  Store
	cache  cache.Cache
	logger *slog.Logger
}

// New creates a Service. cache may be nil to disable memoization.
func New(store Store, c cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: c, logger: logger}
}

// ============================ NODE GRAPHS =================================

// NodeGraph returns the dependency graph around nodeID, bounded to depth hops
// in either direction. An unknown nodeID yields an empty graph, not an error;
// only storage failures propagate.
func (s *Service) NodeGraph(ctx context.Context, nodeID string, depth int) (*graph.NodeGraph, error) {
	if depth <= 0 {
		depth = DefaultDepth
	}

	nodes, conns, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	full := graph.BuildNodeGraph(nodes, conns)
	start, ok := full.VertexIndex(nodeID)
	if !ok {
		return graph.BuildNodeGraph(nil, nil), nil
	}

	keep := make(map[int]bool)
	for _, v := range full.Neighborhood(start, depth) {
		keep[v] = true
	}

	// Rebuild over the neighborhood, preserving input order.
	var subNodes []*graph.Node
	for i, v := range full.Vertices {
		if keep[i] {
			subNodes = append(subNodes, v.Data)
		}
	}
	var subConns []*graph.Connection
	for _, e := range full.Edges {
		if keep[e.TailVertex] && keep[e.HeadVertex] {
			subConns = append(subConns, e.Data)
		}
	}
	return graph.BuildNodeGraph(subNodes, subConns), nil
}

func (s *Service) loadAll(ctx context.Context) ([]*graph.Node, []*graph.Connection, error) {
	nodes, err := s.store.ListNodes(ctx, storage.NodeFilter{})
	if err != nil {
		return nil, nil, fmt.Errorf("dependency: load nodes: %w", err)
	}
	conns, err := s.store.ListConnections(ctx, storage.ConnectionFilter{})
	if err != nil {
		return nil, nil, fmt.Errorf("dependency: load connections: %w", err)
	}
	return nodes, conns, nil
}

// ========================== PROJECT GRAPHS ================================

// ProjectEdge is the payload of a project-level edge: a directed dependency
// aggregated from one or more node-level connections.
type ProjectEdge struct {
	FromProjectID   string `json:"from_project_id"`
	ToProjectID     string `json:"to_project_id"`
	ConnectionCount int    `json:"connection_count"`
}

// CycleMember identifies one project on a reported cycle path.
type CycleMember struct {
	ID   string            `json:"id"`
	Name string            `json:"name"`
	Type graph.ProjectType `json:"type"`
}

// ProjectGraph is the project-level query result: the collapsed graph plus
// every simple cycle found in it. Each cycle is a closed path, first and last
// member sharing the same project id.
type ProjectGraph struct {
	*graph.Orthogonal[*graph.Project, *ProjectEdge]
	Cycles [][]CycleMember `json:"cycles"`
}

// ProjectGraphFor returns the project-level dependency graph around a single
// project: the project plus its weakly-connected neighborhood up to depth
// hops. An unknown projectID yields an empty graph. For the wildcard use
// AllProjectGraphs.
func (s *Service) ProjectGraphFor(ctx context.Context, projectID, branch string, depth int) (*ProjectGraph, error) {
	if depth <= 0 {
		depth = DefaultDepth
	}
	full, err := s.buildProjectGraph(ctx, branch)
	if err != nil {
		return nil, err
	}

	start, ok := full.VertexIndex(projectID)
	if !ok {
		return &ProjectGraph{
			Orthogonal: graph.NewOrthogonal[*graph.Project, *ProjectEdge](0),
			Cycles:     [][]CycleMember{},
		}, nil
	}
	return s.restrict(full, start, depth), nil
}

// AllProjectGraphs answers the wildcard query: one graph per project, each
// covering that project's neighborhood. The aggregate result is memoized per
// branch because it is expensive and frequently requested; cache failures are
// logged and degrade to recomputation.
func (s *Service) AllProjectGraphs(ctx context.Context, branch string, depth int) ([]*ProjectGraph, error) {
	if depth <= 0 {
		depth = DefaultDepth
	}
	key := fmt.Sprintf("project-graph:%s:%s:%d", Wildcard, branch, depth)

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			var result []*ProjectGraph
			if err := json.Unmarshal([]byte(cached), &result); err == nil {
				return result, nil
			}
			s.logger.Warn("discarding unreadable cached project graph", "key", key)
		}
	}

	full, err := s.buildProjectGraph(ctx, branch)
	if err != nil {
		return nil, err
	}

	result := make([]*ProjectGraph, 0, len(full.Vertices))
	for i := range full.Vertices {
		result = append(result, s.restrict(full, i, depth))
	}

	if s.cache != nil {
		data, err := json.Marshal(result)
		if err == nil {
			err = s.cache.Set(ctx, key, string(data))
		}
		if err != nil {
			s.logger.Warn("caching project graph failed", "key", key, "error", err)
		}
	}
	return result, nil
}

// InvalidateProjectGraphs drops memoized wildcard results for a branch.
// Called after uploads and match scans change the underlying data.
func (s *Service) InvalidateProjectGraphs(ctx context.Context, branch string) {
	if s.cache == nil {
		return
	}
	for _, depth := range []int{DefaultDepth} {
		s.cache.Invalidate(ctx, fmt.Sprintf("project-graph:%s:%s:%d", Wildcard, branch, depth))
	}
}

// buildProjectGraph collapses node-level connections to their owning projects.
// Every known project becomes a vertex even when isolated; an edge P1→P2
// exists iff at least one node connection crosses from P1 to P2, deduplicated
// per directed pair with a connection count.
func (s *Service) buildProjectGraph(ctx context.Context, branch string) (*graph.Orthogonal[*graph.Project, *ProjectEdge], error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("dependency: load projects: %w", err)
	}
	nodes, err := s.store.ListNodes(ctx, storage.NodeFilter{Branch: branch})
	if err != nil {
		return nil, fmt.Errorf("dependency: load nodes: %w", err)
	}
	conns, err := s.store.ListConnections(ctx, storage.ConnectionFilter{Branch: branch})
	if err != nil {
		return nil, fmt.Errorf("dependency: load connections: %w", err)
	}

	g := graph.NewOrthogonal[*graph.Project, *ProjectEdge](len(projects))
	for _, p := range projects {
		g.AddVertex(p.ID, p)
	}

	nodeProject := make(map[string]string, len(nodes))
	for _, n := range nodes {
		nodeProject[n.ID] = n.ProjectID
	}

	type pair struct{ from, to string }
	counts := make(map[pair]int)
	var order []pair
	for _, c := range conns {
		from, okF := nodeProject[c.FromID]
		to, okT := nodeProject[c.ToID]
		if !okF || !okT || from == to {
			continue
		}
		p := pair{from, to}
		if counts[p] == 0 {
			order = append(order, p)
		}
		counts[p]++
	}

	for _, p := range order {
		g.AddEdge(p.from, p.to, &ProjectEdge{
			FromProjectID:   p.from,
			ToProjectID:     p.to,
			ConnectionCount: counts[p],
		})
	}
	return g, nil
}

// restrict rebuilds the neighborhood of start as its own graph and runs cycle
// detection over it.
func (s *Service) restrict(full *graph.Orthogonal[*graph.Project, *ProjectEdge], start, depth int) *ProjectGraph {
	keep := make(map[int]bool)
	for _, v := range full.Neighborhood(start, depth) {
		keep[v] = true
	}

	sub := graph.NewOrthogonal[*graph.Project, *ProjectEdge](len(keep))
	for i, v := range full.Vertices {
		if keep[i] {
			sub.AddVertex(v.Data.ID, v.Data)
		}
	}
	for _, e := range full.Edges {
		if keep[e.TailVertex] && keep[e.HeadVertex] {
			sub.AddEdge(e.Data.FromProjectID, e.Data.ToProjectID, e.Data)
		}
	}
	return &ProjectGraph{Orthogonal: sub, Cycles: findCycles(sub)}
}

// =========================== CYCLE DETECTION ==============================

// findCycles enumerates simple cycles in a project-level graph. The DFS keeps
// the current recursion path; an out-edge into a vertex already on the path
// closes one cycle (the sub-path from that vertex, plus the vertex again).
// A finished set keeps each vertex from rooting more than one exploration, so
// a 2-project cycle is reported exactly once. Cycles found on distinct paths
// are all reported, deduplicated only by exact path identity.
func findCycles(g *graph.Orthogonal[*graph.Project, *ProjectEdge]) [][]CycleMember {
	n := len(g.Vertices)
	finished := make([]bool, n)
	onPath := make([]bool, n)
	var path []int

	cycles := [][]CycleMember{}
	seen := make(map[string]bool)

	emit := func(closing int) {
		i := 0
		for ; i < len(path); i++ {
			if path[i] == closing {
				break
			}
		}
		members := make([]CycleMember, 0, len(path)-i+1)
		key := ""
		for _, v := range append(append([]int{}, path[i:]...), closing) {
			p := g.Vertices[v].Data
			members = append(members, CycleMember{ID: p.ID, Name: p.Name, Type: p.Type})
			key += p.ID + "→"
		}
		if !seen[key] {
			seen[key] = true
			cycles = append(cycles, members)
		}
	}

	var dfs func(v int)
	dfs = func(v int) {
		onPath[v] = true
		path = append(path, v)
		for _, succ := range g.Successors(v) {
			if onPath[succ] {
				emit(succ)
				continue
			}
			if !finished[succ] {
				dfs(succ)
			}
		}
		path = path[:len(path)-1]
		onPath[v] = false
		finished[v] = true
	}

	for v := 0; v < n; v++ {
		if !finished[v] {
			dfs(v)
		}
	}
	return cycles
}

// ============================== IMPACT ====================================

// ImpactedProject groups the nodes of one project that (transitively) depend
// on the queried node.
type ImpactedProject struct {
	ProjectName string        `json:"project_name"`
	Nodes       []*graph.Node `json:"nodes"`
}

// ImpactReport lists everything that would be affected by changing a node:
// the reverse-reachable set, grouped by owning project.
type ImpactReport struct {
	Node     *graph.Node       `json:"node"`
	Impacted []ImpactedProject `json:"impacted"`
	Total    int               `json:"total"`
}

// Impact walks incoming edges from nodeID up to depth hops and groups the
// dependents by project. An unknown nodeID yields storage.ErrNotFound via the
// zero-result contract of the graph queries: here the caller needs the node
// itself, so absence is an error.
func (s *Service) Impact(ctx context.Context, nodeID string, depth int) (*ImpactReport, error) {
	if depth <= 0 {
		depth = DefaultDepth
	}

	nodes, conns, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	g := graph.BuildNodeGraph(nodes, conns)
	start, ok := g.VertexIndex(nodeID)
	if !ok {
		return nil, fmt.Errorf("dependency: impact of node %q: %w", nodeID, storage.ErrNotFound)
	}

	// Reverse BFS, depth-bounded.
	type entry struct{ v, d int }
	visited := map[int]bool{start: true}
	queue := []entry{{start, 0}}
	byProject := make(map[string][]*graph.Node)
	total := 0

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.d >= depth {
			continue
		}
		for _, pred := range g.Predecessors(cur.v) {
			if visited[pred] {
				continue
			}
			visited[pred] = true
			n := g.Vertices[pred].Data
			byProject[n.ProjectName] = append(byProject[n.ProjectName], n)
			total++
			queue = append(queue, entry{pred, cur.d + 1})
		}
	}

	names := make([]string, 0, len(byProject))
	for name := range byProject {
		names = append(names, name)
	}
	sort.Strings(names)

	report := &ImpactReport{
		Node:     g.Vertices[start].Data,
		Impacted: make([]ImpactedProject, 0, len(names)),
		Total:    total,
	}
	for _, name := range names {
		report.Impacted = append(report.Impacted, ImpactedProject{
			ProjectName: name,
			Nodes:       byProject[name],
		})
	}
	return report, nil
}
