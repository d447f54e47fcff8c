// Package matcher infers cross-project connections between analysis nodes.
// A rule table pairs complementary node types; matches become directed
// connections, created idempotently against the storage layer.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/crosslink/crosslink/internal/graph"
	"github.com/crosslink/crosslink/internal/storage"
)

// Store is the slice of the storage layer a scan needs. The uniqueness of
// (fromID, toID) pairs is enforced there, so concurrent scans stay safe even
// when both pass the candidate filter.
type Store interface {
	ListUnconnectedNodes(ctx context.Context) ([]*graph.Node, error)
	CreateConnection(ctx context.Context, c *graph.Connection) error
}

// Summary is the result of one scan. Errors holds one entry per failed pair;
// a failed pair never aborts the rest of the scan.
type Summary struct {
	CreatedConnections int      `json:"createdConnections"`
	SkippedConnections int      `json:"skippedConnections"`
	Errors             []string `json:"errors"`
}

// Matcher scans unconnected nodes and creates the connections its rules
// propose.
type Matcher struct {
	store  Store
	logger *slog.Logger
}

// New creates a Matcher.
func New(store Store, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{store: store, logger: logger}
}

// Scan runs every rule over the currently-unconnected nodes and idempotently
// creates the proposed connections. Duplicates count as skipped, individual
// failures land in Summary.Errors, and cancellation via ctx returns the
// partial summary together with the context error — already-created
// connections are kept.
func (m *Matcher) Scan(ctx context.Context) (*Summary, error) {
	summary := &Summary{Errors: []string{}}

	nodes, err := m.store.ListUnconnectedNodes(ctx)
	if err != nil {
		return summary, fmt.Errorf("matcher: list candidates: %w", err)
	}

	buckets := make(map[graph.NodeType][]*graph.Node)
	for _, n := range nodes {
		buckets[n.Type] = append(buckets[n.Type], n)
	}

	for _, rule := range Rules {
		fromBucket := buckets[rule.From]
		toBucket := buckets[rule.To]
		if len(fromBucket) == 0 || len(toBucket) == 0 {
			continue
		}

		// Index the to-bucket by key for O(1) candidate lookup per from-node.
		toIndex := make(map[string][]*graph.Node, len(toBucket))
		for _, to := range toBucket {
			if key, ok := rule.ToKey(to); ok {
				toIndex[key] = append(toIndex[key], to)
			}
		}

		for _, from := range fromBucket {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			key, ok := rule.FromKey(from)
			if !ok {
				continue
			}
			for _, to := range toIndex[key] {
				if from.ProjectName == to.ProjectName {
					continue
				}
				m.create(ctx, from, to, summary)
			}
		}
	}

	m.logger.Info("match scan finished",
		"created", summary.CreatedConnections,
		"skipped", summary.SkippedConnections,
		"errors", len(summary.Errors))
	return summary, nil
}

// create attempts one idempotent connection. A duplicate pair is counted as
// skipped; any other failure is recorded with both endpoints for diagnosis.
func (m *Matcher) create(ctx context.Context, from, to *graph.Node, summary *Summary) {
	conn := graph.NewConnection(from.ID, to.ID, graph.OriginMatcher)
	err := m.store.CreateConnection(ctx, conn)
	switch {
	case err == nil:
		summary.CreatedConnections++
	case errors.Is(err, storage.ErrConnectionExists):
		summary.SkippedConnections++
	default:
		summary.Errors = append(summary.Errors,
			fmt.Sprintf("from=%s to=%s: %v", from.ID, to.ID, err))
	}
}
