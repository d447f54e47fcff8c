package dependency

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosslink/crosslink/internal/cache"
	"github.com/crosslink/crosslink/internal/graph"
	"github.com/crosslink/crosslink/internal/storage"
)

// fakeStore serves static data and counts reads so the cache tests can
// observe memoization.
type fakeStore struct {
	mu       sync.Mutex
	nodes    []*graph.Node
	conns    []*graph.Connection
	projects []*graph.Project
	reads    int
}

func (f *fakeStore) ListNodes(ctx context.Context, _ storage.NodeFilter) ([]*graph.Node, error) {
	f.mu.Lock()
	f.reads++
	f.mu.Unlock()
	return f.nodes, nil
}

func (f *fakeStore) ListConnections(ctx context.Context, _ storage.ConnectionFilter) ([]*graph.Connection, error) {
	return f.conns, nil
}

func (f *fakeStore) ListProjects(ctx context.Context) ([]*graph.Project, error) {
	return f.projects, nil
}

func project(id, name string) *graph.Project {
	return graph.NewProject(id, name, "git@example.com:"+name, graph.ProjectTypeApp)
}

func nodeIn(id, projectID, projectName string) *graph.Node {
	n := graph.NewNode(id, graph.NodeTypeNamedExport, "n-"+id, projectName, "main")
	n.ProjectID = projectID
	return n
}

func conn(from, to string) *graph.Connection {
	return graph.NewConnection(from, to, graph.OriginMatcher)
}

// ---------------------------------------------------------------------------
// Node graphs
// ---------------------------------------------------------------------------

func TestNodeGraphUnknownIDYieldsEmptyGraph(t *testing.T) {
	svc := New(&fakeStore{}, nil, nil)

	g, err := svc.NodeGraph(context.Background(), "nope", 0)
	require.NoError(t, err, "no data is not an error")
	assert.Empty(t, g.Vertices)
	assert.Empty(t, g.Edges)
}

func TestNodeGraphDegrees(t *testing.T) {
	store := &fakeStore{
		nodes: []*graph.Node{
			nodeIn("n1", "p1", "P1"),
			nodeIn("n2", "p2", "P2"),
			nodeIn("n3", "p3", "P3"),
		},
		conns: []*graph.Connection{conn("n2", "n1"), conn("n2", "n3")},
	}
	svc := New(store, nil, nil)

	g, err := svc.NodeGraph(context.Background(), "n1", 0)
	require.NoError(t, err)
	require.Len(t, g.Vertices, 3)
	require.Len(t, g.Edges, 2)

	n1, ok := g.VertexIndex("n1")
	require.True(t, ok)
	n2, ok := g.VertexIndex("n2")
	require.True(t, ok)

	assert.Equal(t, 1, g.Vertices[n1].InDegree)
	assert.Equal(t, 0, g.Vertices[n1].OutDegree)
	assert.Equal(t, 2, g.Vertices[n2].OutDegree)
	assert.Equal(t, 0, g.Vertices[n2].InDegree)
}

func TestNodeGraphDepthBoundsNeighborhood(t *testing.T) {
	store := &fakeStore{
		nodes: []*graph.Node{
			nodeIn("a", "p1", "P1"),
			nodeIn("b", "p2", "P2"),
			nodeIn("c", "p3", "P3"),
		},
		conns: []*graph.Connection{conn("a", "b"), conn("b", "c")},
	}
	svc := New(store, nil, nil)

	g, err := svc.NodeGraph(context.Background(), "a", 1)
	require.NoError(t, err)
	assert.Len(t, g.Vertices, 2, "c is two hops away")
	assert.Len(t, g.Edges, 1)
}

// ---------------------------------------------------------------------------
// Project graphs and cycles
// ---------------------------------------------------------------------------

func twoProjectCycleStore() *fakeStore {
	return &fakeStore{
		projects: []*graph.Project{project("p1", "P1"), project("p2", "P2")},
		nodes: []*graph.Node{
			nodeIn("a1", "p1", "P1"), nodeIn("a2", "p1", "P1"),
			nodeIn("b1", "p2", "P2"), nodeIn("b2", "p2", "P2"),
		},
		conns: []*graph.Connection{
			conn("a1", "b1"), // P1 → P2
			conn("b2", "a2"), // P2 → P1
		},
	}
}

func TestProjectGraphTwoProjectCycle(t *testing.T) {
	svc := New(twoProjectCycleStore(), nil, nil)

	g, err := svc.ProjectGraphFor(context.Background(), "p1", "main", 0)
	require.NoError(t, err)

	assert.Len(t, g.Vertices, 2)
	assert.Len(t, g.Edges, 2)
	require.Len(t, g.Cycles, 1, "a 2-project cycle is reported exactly once")

	cycle := g.Cycles[0]
	require.Len(t, cycle, 3, "closed path [P, Q, P]")
	assert.Equal(t, cycle[0].ID, cycle[2].ID)

	members := map[string]bool{cycle[0].ID: true, cycle[1].ID: true}
	assert.Equal(t, map[string]bool{"p1": true, "p2": true}, members)
	assert.NotEmpty(t, cycle[0].Name)
	assert.NotEmpty(t, cycle[0].Type)
}

func TestProjectEdgeDeduplicated(t *testing.T) {
	store := twoProjectCycleStore()
	// A second node-level connection P1 → P2 must not add a second edge.
	store.conns = append(store.conns, conn("a2", "b2"))

	svc := New(store, nil, nil)
	g, err := svc.ProjectGraphFor(context.Background(), "p1", "main", 0)
	require.NoError(t, err)

	assert.Len(t, g.Edges, 2)
	for _, e := range g.Edges {
		if e.Data.FromProjectID == "p1" {
			assert.Equal(t, 2, e.Data.ConnectionCount)
		}
	}
}

func TestProjectGraphUnknownProject(t *testing.T) {
	svc := New(twoProjectCycleStore(), nil, nil)

	g, err := svc.ProjectGraphFor(context.Background(), "nope", "main", 0)
	require.NoError(t, err)
	assert.Empty(t, g.Vertices)
	assert.Empty(t, g.Cycles)
}

func TestWildcardReturnsOneGraphPerProject(t *testing.T) {
	store := &fakeStore{
		projects: []*graph.Project{project("p1", "P1"), project("p2", "P2"), project("p3", "P3")},
		nodes: []*graph.Node{
			nodeIn("a", "p1", "P1"),
			nodeIn("b", "p2", "P2"),
			nodeIn("c", "p3", "P3"),
		},
		conns: []*graph.Connection{conn("a", "b")}, // only P1 → P2
	}
	svc := New(store, nil, nil)

	graphs, err := svc.AllProjectGraphs(context.Background(), "main", 0)
	require.NoError(t, err)
	require.Len(t, graphs, 3)

	var isolated *ProjectGraph
	for _, g := range graphs {
		if len(g.Vertices) == 1 {
			isolated = g
		}
	}
	require.NotNil(t, isolated, "P3 yields a 1-vertex graph")
	assert.Empty(t, isolated.Edges)
	assert.Equal(t, "P3", isolated.Vertices[0].Data.Name)
}

func TestWildcardResultIsMemoized(t *testing.T) {
	store := twoProjectCycleStore()
	lru, err := cache.NewLRU(8)
	require.NoError(t, err)
	svc := New(store, lru, nil)

	ctx := context.Background()
	first, err := svc.AllProjectGraphs(ctx, "main", 0)
	require.NoError(t, err)
	readsAfterFirst := store.reads

	second, err := svc.AllProjectGraphs(ctx, "main", 0)
	require.NoError(t, err)
	assert.Equal(t, readsAfterFirst, store.reads, "second call served from cache")
	assert.Equal(t, len(first), len(second))

	svc.InvalidateProjectGraphs(ctx, "main")
	_, err = svc.AllProjectGraphs(ctx, "main", 0)
	require.NoError(t, err)
	assert.Greater(t, store.reads, readsAfterFirst, "invalidation forces recompute")
}

// ---------------------------------------------------------------------------
// Impact
// ---------------------------------------------------------------------------

func TestImpactGroupsByProject(t *testing.T) {
	store := &fakeStore{
		nodes: []*graph.Node{
			nodeIn("target", "p1", "P1"),
			nodeIn("d1", "p2", "P2"),
			nodeIn("d2", "p2", "P2"),
			nodeIn("d3", "p3", "P3"),
			nodeIn("unrelated", "p3", "P3"),
		},
		conns: []*graph.Connection{
			conn("d1", "target"),
			conn("d2", "target"),
			conn("d3", "d1"), // transitive
		},
	}
	svc := New(store, nil, nil)

	report, err := svc.Impact(context.Background(), "target", 0)
	require.NoError(t, err)

	assert.Equal(t, "target", report.Node.ID)
	assert.Equal(t, 3, report.Total)
	require.Len(t, report.Impacted, 2)
	assert.Equal(t, "P2", report.Impacted[0].ProjectName)
	assert.Len(t, report.Impacted[0].Nodes, 2)
	assert.Equal(t, "P3", report.Impacted[1].ProjectName)
	assert.Len(t, report.Impacted[1].Nodes, 1)
}

func TestImpactUnknownNodeIsNotFound(t *testing.T) {
	svc := New(&fakeStore{}, nil, nil)

	_, err := svc.Impact(context.Background(), "nope", 0)
	require.ErrorIs(t, err, storage.ErrNotFound)
}
