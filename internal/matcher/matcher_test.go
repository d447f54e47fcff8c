package matcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosslink/crosslink/internal/graph"
	"github.com/crosslink/crosslink/internal/storage"
)

// fakeStore is an in-memory Store. It enforces pair uniqueness the way the
// SQLite layer does and can inject failures for chosen pairs.
type fakeStore struct {
	mu    sync.Mutex
	nodes []*graph.Node
	pairs map[string]bool
	fail  map[string]error
}

func newFakeStore(nodes ...*graph.Node) *fakeStore {
	return &fakeStore{
		nodes: nodes,
		pairs: make(map[string]bool),
		fail:  make(map[string]error),
	}
}

func pairKey(from, to string) string { return from + "→" + to }

func (f *fakeStore) ListUnconnectedNodes(ctx context.Context) ([]*graph.Node, error) {
	return f.nodes, nil
}

func (f *fakeStore) CreateConnection(ctx context.Context, c *graph.Connection) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := pairKey(c.FromID, c.ToID)
	if err, ok := f.fail[key]; ok {
		return err
	}
	if f.pairs[key] {
		return storage.ErrConnectionExists
	}
	f.pairs[key] = true
	return nil
}

func node(id string, typ graph.NodeType, project, name string) *graph.Node {
	n := graph.NewNode(id, typ, name, project, "main")
	return n
}

// ---------------------------------------------------------------------------
// Rule coverage
// ---------------------------------------------------------------------------

func TestNamedImportMatchesExport(t *testing.T) {
	store := newFakeStore(
		node("n1", graph.NodeTypeNamedExport, "P1", "foo"),
		node("n2", graph.NodeTypeNamedImport, "P2", "P1.foo"),
	)

	summary, err := New(store, nil).Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.CreatedConnections)
	assert.Equal(t, 0, summary.SkippedConnections)
	assert.Empty(t, summary.Errors)
	assert.True(t, store.pairs[pairKey("n2", "n1")], "edge goes import → export")
}

func TestRuntimeDynamicImportMatchesEntryExport(t *testing.T) {
	export := node("n1", graph.NodeTypeNamedExport, "P1", "widget")
	export.Meta.EntryName = "remote"
	store := newFakeStore(
		export,
		node("n2", graph.NodeTypeRuntimeDynamicImport, "P2", "P1.remote.widget"),
	)

	summary, err := New(store, nil).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CreatedConnections)
	assert.True(t, store.pairs[pairKey("n2", "n1")])
}

func TestModuleFederationReference(t *testing.T) {
	export := node("n1", graph.NodeTypeNamedExport, "shell", "anything")
	export.Meta.EntryName = "Header"
	store := newFakeStore(
		export,
		node("n2", graph.NodeTypeDynamicMFReference, "checkout", "shell.Header"),
	)

	summary, err := New(store, nil).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CreatedConnections)
}

func TestGlobalVarReadWrite(t *testing.T) {
	store := newFakeStore(
		node("w", graph.NodeTypeGlobalVarWrite, "P1", "window.appState"),
		node("r", graph.NodeTypeGlobalVarRead, "P2", "window.appState"),
	)

	summary, err := New(store, nil).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CreatedConnections)
	assert.True(t, store.pairs[pairKey("r", "w")])
}

func TestWebStorageKeyMatch(t *testing.T) {
	write := node("w", graph.NodeTypeWebStorageWrite, "P1", "setItem")
	write.Meta.StorageKey = "session-token"
	read := node("r", graph.NodeTypeWebStorageRead, "P2", "getItem")
	read.Meta.StorageKey = "session-token"
	other := node("o", graph.NodeTypeWebStorageRead, "P3", "getItem")
	other.Meta.StorageKey = "different-key"

	store := newFakeStore(write, read, other)
	summary, err := New(store, nil).Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.CreatedConnections)
	assert.True(t, store.pairs[pairKey("r", "w")])
	assert.False(t, store.pairs[pairKey("o", "w")])
}

func TestEventOnEmit(t *testing.T) {
	emit := node("e", graph.NodeTypeEventEmit, "P1", "emit")
	emit.Meta.EventName = "cart:updated"
	on := node("o", graph.NodeTypeEventOn, "P2", "on")
	on.Meta.EventName = "cart:updated"

	store := newFakeStore(emit, on)
	summary, err := New(store, nil).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CreatedConnections)
	assert.True(t, store.pairs[pairKey("o", "e")])
}

func TestUrlParamValueSuffixStripped(t *testing.T) {
	store := newFakeStore(
		node("w", graph.NodeTypeUrlParamWrite, "P1", "userId=42"),
		node("r", graph.NodeTypeUrlParamRead, "P2", "userId"),
	)

	summary, err := New(store, nil).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CreatedConnections)
	assert.True(t, store.pairs[pairKey("r", "w")])
}

// ---------------------------------------------------------------------------
// Invariants
// ---------------------------------------------------------------------------

func TestSameProjectNeverConnects(t *testing.T) {
	store := newFakeStore(
		node("w", graph.NodeTypeUrlParamWrite, "P1", "userId"),
		node("r", graph.NodeTypeUrlParamRead, "P1", "userId"),
		node("x", graph.NodeTypeNamedExport, "P2", "foo"),
		node("i", graph.NodeTypeNamedImport, "P2", "P2.foo"),
	)

	summary, err := New(store, nil).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.CreatedConnections)
	assert.Empty(t, store.pairs)
}

func TestScanIsIdempotent(t *testing.T) {
	store := newFakeStore(
		node("n1", graph.NodeTypeNamedExport, "P1", "foo"),
		node("n2", graph.NodeTypeNamedImport, "P2", "P1.foo"),
		node("w", graph.NodeTypeGlobalVarWrite, "P1", "g"),
		node("r", graph.NodeTypeGlobalVarRead, "P3", "g"),
	)
	m := New(store, nil)

	first, err := m.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.CreatedConnections)
	assert.Equal(t, 0, first.SkippedConnections)

	second, err := m.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.CreatedConnections)
	assert.Equal(t, first.CreatedConnections, second.SkippedConnections)
	assert.Empty(t, second.Errors)
}

func TestPairFailureDoesNotAbortScan(t *testing.T) {
	store := newFakeStore(
		node("n1", graph.NodeTypeNamedExport, "P1", "foo"),
		node("n2", graph.NodeTypeNamedImport, "P2", "P1.foo"),
		node("w", graph.NodeTypeGlobalVarWrite, "P1", "g"),
		node("r", graph.NodeTypeGlobalVarRead, "P3", "g"),
	)
	store.fail[pairKey("n2", "n1")] = errors.New("disk full")

	summary, err := New(store, nil).Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.CreatedConnections, "the healthy pair still lands")
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "from=n2")
	assert.Contains(t, summary.Errors[0], "to=n1")
	assert.Contains(t, summary.Errors[0], "disk full")
}

func TestOneImportManyExportsOnlyMatchingProject(t *testing.T) {
	store := newFakeStore(
		node("e1", graph.NodeTypeNamedExport, "P1", "foo"),
		node("e2", graph.NodeTypeNamedExport, "P3", "foo"),
		node("i", graph.NodeTypeNamedImport, "P2", "P1.foo"),
	)

	summary, err := New(store, nil).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CreatedConnections)
	assert.True(t, store.pairs[pairKey("i", "e1")])
	assert.False(t, store.pairs[pairKey("i", "e2")])
}

func TestCancellationKeepsPartialWork(t *testing.T) {
	var nodes []*graph.Node
	for i := 0; i < 50; i++ {
		nodes = append(nodes,
			node(fmt.Sprintf("w%d", i), graph.NodeTypeGlobalVarWrite, "P1", fmt.Sprintf("g%d", i)),
			node(fmt.Sprintf("r%d", i), graph.NodeTypeGlobalVarRead, "P2", fmt.Sprintf("g%d", i)),
		)
	}
	store := newFakeStore(nodes...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := New(store, nil).Scan(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Equal(t, len(store.pairs), summary.CreatedConnections,
		"summary reflects exactly what was persisted")
}
