// Package cli implements the crosslink client commands: uploading extracted
// nodes, triggering match scans and querying graphs against a running server.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/crosslink/crosslink/internal/dependency"
	"github.com/crosslink/crosslink/internal/graph"
	"github.com/crosslink/crosslink/internal/matcher"
	"github.com/crosslink/crosslink/internal/storage"
	"github.com/crosslink/crosslink/internal/worker"
)

// ServerURL is the target server, settable via the root --server flag.
var ServerURL = "http://localhost:8080"

// Client is a thin HTTP client for the server API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client against the configured server.
func NewClient() *Client {
	return &Client{
		baseURL: ServerURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("cli: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("cli: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cli: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("cli: %s %s: %s (%s)", method, path, apiErr.Error, apiErr.Code)
		}
		return fmt.Errorf("cli: %s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("cli: decode response: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

// EnsureProject returns the project with the given name, creating it first
// when the server does not know it yet.
func (c *Client) EnsureProject(ctx context.Context, name, addr string, typ graph.ProjectType) (*graph.Project, error) {
	var projects []*graph.Project
	if err := c.do(ctx, http.MethodGet, "/api/projects", nil, &projects); err != nil {
		return nil, err
	}
	for _, p := range projects {
		if p.Name == name {
			return p, nil
		}
	}

	var created *graph.Project
	err := c.do(ctx, http.MethodPost, "/api/projects", map[string]any{
		"name": name,
		"addr": addr,
		"type": typ,
	}, &created)
	return created, err
}

// ---------------------------------------------------------------------------
// Nodes
// ---------------------------------------------------------------------------

// UploadNodes stages one batch of nodes for a project+branch.
func (c *Client) UploadNodes(ctx context.Context, projectID, branch string, nodes []*graph.Node) error {
	return c.do(ctx, http.MethodPost, "/api/nodes", map[string]any{
		"project_id": projectID,
		"branch":     branch,
		"nodes":      nodes,
	}, nil)
}

// CommitBranch promotes a staged upload.
func (c *Client) CommitBranch(ctx context.Context, projectID, branch string) error {
	return c.do(ctx, http.MethodPost, "/api/nodes/commit", map[string]string{
		"project_id": projectID,
		"branch":     branch,
	}, nil)
}

// RollbackBranch discards a staged upload.
func (c *Client) RollbackBranch(ctx context.Context, projectID, branch string) error {
	return c.do(ctx, http.MethodPost, "/api/nodes/rollback", map[string]string{
		"project_id": projectID,
		"branch":     branch,
	}, nil)
}

// ---------------------------------------------------------------------------
// Match scans
// ---------------------------------------------------------------------------

// StartMatch enqueues a scan and returns the job id.
func (c *Client) StartMatch(ctx context.Context) (string, error) {
	var resp struct {
		JobID string `json:"job_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/match", nil, &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

// WaitForMatch polls a scan job until it leaves the pending/running states.
func (c *Client) WaitForMatch(ctx context.Context, jobID string) (*worker.ScanJob, error) {
	for {
		var job worker.ScanJob
		if err := c.do(ctx, http.MethodGet, "/api/match/jobs/"+jobID, nil, &job); err != nil {
			return nil, err
		}
		if job.Status != worker.JobStatusPending && job.Status != worker.JobStatusRunning {
			return &job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// MatchSummary is re-exported for command output.
type MatchSummary = matcher.Summary

// ---------------------------------------------------------------------------
// Graph queries
// ---------------------------------------------------------------------------

// NodeGraph fetches the dependency graph around one node.
func (c *Client) NodeGraph(ctx context.Context, nodeID string, depth int) (*graph.NodeGraph, error) {
	var g graph.NodeGraph
	path := fmt.Sprintf("/api/graph/node/%s?depth=%d", nodeID, depth)
	if err := c.do(ctx, http.MethodGet, path, nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// ProjectGraph fetches one project's graph with cycles.
func (c *Client) ProjectGraph(ctx context.Context, projectID, branch string, depth int) (*dependency.ProjectGraph, error) {
	var g dependency.ProjectGraph
	path := fmt.Sprintf("/api/graph/project/%s?branch=%s&depth=%d", projectID, branch, depth)
	if err := c.do(ctx, http.MethodGet, path, nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// AllProjectGraphs fetches the wildcard query result.
func (c *Client) AllProjectGraphs(ctx context.Context, branch string, depth int) ([]*dependency.ProjectGraph, error) {
	var graphs []*dependency.ProjectGraph
	path := fmt.Sprintf("/api/graph/projects?branch=%s&depth=%d", branch, depth)
	if err := c.do(ctx, http.MethodGet, path, nil, &graphs); err != nil {
		return nil, err
	}
	return graphs, nil
}

// Stats fetches aggregate graph counts.
func (c *Client) Stats(ctx context.Context) (*storage.Stats, error) {
	var stats storage.Stats
	if err := c.do(ctx, http.MethodGet, "/api/graph/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
