package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNode(id, project string) *Node {
	return NewNode(id, NodeTypeNamedExport, "n-"+id, project, "main")
}

func testConn(from, to string) *Connection {
	return NewConnection(from, to, OriginManual)
}

func TestBuildNodeGraphCounts(t *testing.T) {
	nodes := []*Node{testNode("n1", "P1"), testNode("n2", "P2"), testNode("n3", "P1")}
	conns := []*Connection{
		testConn("n2", "n1"),
		testConn("n2", "n3"),
		testConn("n2", "missing"), // dangling, must be skipped silently
		testConn("missing", "n1"),
	}

	g := BuildNodeGraph(nodes, conns)

	assert.Len(t, g.Vertices, 3)
	assert.Len(t, g.Edges, 2)
}

func TestAddVertexDedup(t *testing.T) {
	g := NewOrthogonal[*Node, *Connection](4)
	a := g.AddVertex("n1", testNode("n1", "P1"))
	b := g.AddVertex("n1", testNode("n1", "P1"))

	assert.Equal(t, a, b)
	assert.Len(t, g.Vertices, 1)
}

func TestDegreesMatchListWalks(t *testing.T) {
	nodes := []*Node{testNode("n1", "P1"), testNode("n2", "P2"), testNode("n3", "P3")}
	conns := []*Connection{
		testConn("n2", "n1"),
		testConn("n2", "n3"),
		testConn("n3", "n1"),
	}
	g := BuildNodeGraph(nodes, conns)

	for i, v := range g.Vertices {
		assert.Len(t, g.OutgoingEdges(i), v.OutDegree, "vertex %d out-degree", i)
		assert.Len(t, g.IncomingEdges(i), v.InDegree, "vertex %d in-degree", i)
	}

	n1, ok := g.VertexIndex("n1")
	require.True(t, ok)
	n2, ok := g.VertexIndex("n2")
	require.True(t, ok)

	assert.Equal(t, 2, g.Vertices[n1].InDegree)
	assert.Equal(t, 0, g.Vertices[n1].OutDegree)
	assert.Equal(t, 2, g.Vertices[n2].OutDegree)
	assert.Equal(t, 0, g.Vertices[n2].InDegree)
}

func TestSentinelOnIsolatedVertex(t *testing.T) {
	g := BuildNodeGraph([]*Node{testNode("n1", "P1")}, nil)

	assert.Equal(t, None, g.Vertices[0].FirstIn)
	assert.Equal(t, None, g.Vertices[0].FirstOut)
	assert.Nil(t, g.OutgoingEdges(0))
	assert.Nil(t, g.IncomingEdges(0))
}

func TestDFSVisitsReachableOnceDespiteCycle(t *testing.T) {
	nodes := []*Node{testNode("a", "P1"), testNode("b", "P2"), testNode("c", "P3")}
	conns := []*Connection{
		testConn("a", "b"),
		testConn("b", "c"),
		testConn("c", "a"), // cycle
	}
	g := BuildNodeGraph(nodes, conns)
	start, _ := g.VertexIndex("a")

	var visited []int
	g.DFS(start, func(v int) { visited = append(visited, v) })

	assert.Len(t, visited, 3)
	assert.Equal(t, start, visited[0], "pre-order starts at the root")

	seen := map[int]int{}
	for _, v := range visited {
		seen[v]++
	}
	for v, count := range seen {
		assert.Equal(t, 1, count, "vertex %d visited once", v)
	}
}

func TestBFSLevelOrder(t *testing.T) {
	// a → b, a → c, b → d
	nodes := []*Node{
		testNode("a", "P1"), testNode("b", "P2"),
		testNode("c", "P3"), testNode("d", "P4"),
	}
	conns := []*Connection{
		testConn("a", "b"),
		testConn("a", "c"),
		testConn("b", "d"),
	}
	g := BuildNodeGraph(nodes, conns)
	start, _ := g.VertexIndex("a")
	d, _ := g.VertexIndex("d")

	var visited []int
	g.BFS(start, func(v int) { visited = append(visited, v) })

	require.Len(t, visited, 4)
	assert.Equal(t, start, visited[0])
	assert.Equal(t, d, visited[3], "grandchild comes last in level order")
}

func TestTraversalTotalOnBadStart(t *testing.T) {
	g := BuildNodeGraph([]*Node{testNode("a", "P1")}, nil)

	g.DFS(42, func(v int) { t.Fatal("must not visit") })
	g.BFS(-1, func(v int) { t.Fatal("must not visit") })
	assert.Nil(t, g.Neighborhood(9, 3))
}

func TestNeighborhoodDepthBound(t *testing.T) {
	// Chain: a → b → c → d, plus e → a (incoming).
	var nodes []*Node
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		nodes = append(nodes, testNode(id, "P-"+id))
	}
	conns := []*Connection{
		testConn("a", "b"),
		testConn("b", "c"),
		testConn("c", "d"),
		testConn("e", "a"),
	}
	g := BuildNodeGraph(nodes, conns)
	start, _ := g.VertexIndex("a")

	assert.Len(t, g.Neighborhood(start, 0), 1)
	// Depth 1 reaches b (out) and e (in).
	assert.Len(t, g.Neighborhood(start, 1), 3)
	assert.Len(t, g.Neighborhood(start, 3), 5)
}

func TestParallelEdges(t *testing.T) {
	nodes := []*Node{testNode("a", "P1"), testNode("b", "P2")}
	conns := []*Connection{testConn("a", "b"), testConn("a", "b")}
	g := BuildNodeGraph(nodes, conns)

	a, _ := g.VertexIndex("a")
	assert.Equal(t, 2, g.Vertices[a].OutDegree)
	assert.Len(t, g.Successors(a), 2)
}

func TestLargeGraphDegreeInvariant(t *testing.T) {
	var nodes []*Node
	var conns []*Connection
	for i := 0; i < 200; i++ {
		nodes = append(nodes, testNode(fmt.Sprintf("n%d", i), fmt.Sprintf("P%d", i%7)))
	}
	for i := 0; i < 199; i++ {
		conns = append(conns, testConn(fmt.Sprintf("n%d", i), fmt.Sprintf("n%d", i+1)))
	}
	g := BuildNodeGraph(nodes, conns)

	require.Len(t, g.Edges, 199)
	totalOut, totalIn := 0, 0
	for i, v := range g.Vertices {
		assert.Len(t, g.OutgoingEdges(i), v.OutDegree)
		assert.Len(t, g.IncomingEdges(i), v.InDegree)
		totalOut += v.OutDegree
		totalIn += v.InDegree
	}
	assert.Equal(t, len(g.Edges), totalOut)
	assert.Equal(t, len(g.Edges), totalIn)
}
