package graph

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Node types
// ---------------------------------------------------------------------------

// NodeType classifies a static-analysis finding. The enumeration is closed:
// the matcher's rule table covers every pairing it cares about, and unknown
// types simply never match.
type NodeType string

const (
	NodeTypeNamedExport          NodeType = "named_export"
	NodeTypeNamedImport          NodeType = "named_import"
	NodeTypeRuntimeDynamicImport NodeType = "runtime_dynamic_import"
	NodeTypeGlobalVarRead        NodeType = "global_var_read"
	NodeTypeGlobalVarWrite       NodeType = "global_var_write"
	NodeTypeWebStorageRead       NodeType = "web_storage_read"
	NodeTypeWebStorageWrite      NodeType = "web_storage_write"
	NodeTypeEventOn              NodeType = "event_on"
	NodeTypeEventEmit            NodeType = "event_emit"
	NodeTypeDynamicMFReference   NodeType = "dynamic_mf_reference"
	NodeTypeUrlParamRead         NodeType = "url_param_read"
	NodeTypeUrlParamWrite        NodeType = "url_param_write"
)

// AllNodeTypes lists every valid NodeType, in declaration order.
var AllNodeTypes = []NodeType{
	NodeTypeNamedExport,
	NodeTypeNamedImport,
	NodeTypeRuntimeDynamicImport,
	NodeTypeGlobalVarRead,
	NodeTypeGlobalVarWrite,
	NodeTypeWebStorageRead,
	NodeTypeWebStorageWrite,
	NodeTypeEventOn,
	NodeTypeEventEmit,
	NodeTypeDynamicMFReference,
	NodeTypeUrlParamRead,
	NodeTypeUrlParamWrite,
}

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	for _, k := range AllNodeTypes {
		if t == k {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// NodeMeta — flat struct covering every node type
// ---------------------------------------------------------------------------

// NodeMeta carries optional, type-specific matching keys for a Node.
// Fields that do not apply to a given NodeType remain at their zero value.
// The matcher only inspects the documented field per rule; everything else
// is opaque provenance.
type NodeMeta struct {
	// -- Export / module-federation metadata --
	EntryName string `json:"entry_name,omitempty"`

	// -- Web storage metadata --
	StorageKey string `json:"storage_key,omitempty"`

	// -- Event metadata --
	EventName string `json:"event_name,omitempty"`

	// -- Generic classification --
	Kind string `json:"kind,omitempty"` // e.g. "localStorage"|"sessionStorage"
}

// ---------------------------------------------------------------------------
// Node
// ---------------------------------------------------------------------------

// Node is a single static-analysis finding extracted from a project — an
// export, an import, a global variable access, a storage access, an event
// registration, a URL parameter, or a module-federation reference.
type Node struct {
	ID          string   `json:"id"`
	Type        NodeType `json:"type"`
	Name        string   `json:"name"`
	ProjectName string   `json:"project_name"`
	ProjectID   string   `json:"project_id"`
	Branch      string   `json:"branch"`

	// Source span — immutable once created.
	RelativePath string `json:"relative_path,omitempty"`
	StartLine    int    `json:"start_line,omitempty"`
	StartColumn  int    `json:"start_column,omitempty"`
	EndLine      int    `json:"end_line,omitempty"`
	EndColumn    int    `json:"end_column,omitempty"`

	// Provenance of the analysis run that produced the node.
	Version    string `json:"version,omitempty"`
	QLSVersion string `json:"qls_version,omitempty"`

	Meta NodeMeta `json:"meta"`
}

// NewNode creates a Node with the given type, name and owner.
// If id is empty a new UUID v4 is generated.
func NewNode(id string, nodeType NodeType, name, projectName, branch string) *Node {
	if id == "" {
		id = uuid.New().String()
	}
	return &Node{
		ID:          id,
		Type:        nodeType,
		Name:        name,
		ProjectName: projectName,
		Branch:      branch,
		Meta:        NodeMeta{},
	}
}

// Location returns a human-readable source position, e.g. "src/app.ts:12:4".
func (n *Node) Location() string {
	if n.RelativePath == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d:%d", n.RelativePath, n.StartLine, n.StartColumn)
}

// ---------------------------------------------------------------------------
// Connection
// ---------------------------------------------------------------------------

// ConnectionOrigin records which actor created a connection.
type ConnectionOrigin string

const (
	OriginMatcher ConnectionOrigin = "matcher"
	OriginCLI     ConnectionOrigin = "cli"
	OriginManual  ConnectionOrigin = "manual"
)

// Connection is a directed edge between two Nodes, usually crossing project
// boundaries. A given (FromID, ToID) pair exists at most once; the storage
// layer enforces the uniqueness.
type Connection struct {
	ID        string           `json:"id"`
	FromID    string           `json:"from_id"`
	ToID      string           `json:"to_id"`
	Origin    ConnectionOrigin `json:"origin,omitempty"`
	CreatedAt time.Time        `json:"created_at,omitempty"`
}

// NewConnection creates a Connection from fromID to toID with a fresh UUID.
func NewConnection(fromID, toID string, origin ConnectionOrigin) *Connection {
	return &Connection{
		ID:        uuid.New().String(),
		FromID:    fromID,
		ToID:      toID,
		Origin:    origin,
		CreatedAt: time.Now().UTC(),
	}
}

// ---------------------------------------------------------------------------
// Project
// ---------------------------------------------------------------------------

// ProjectType distinguishes applications from shared libraries.
type ProjectType string

const (
	ProjectTypeApp ProjectType = "app"
	ProjectTypeLib ProjectType = "lib"
)

// Project groups nodes by globally-unique name and repository address.
type Project struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Addr string      `json:"addr,omitempty"`
	Type ProjectType `json:"type"`
}

// NewProject creates a Project with a fresh UUID when id is empty.
func NewProject(id, name, addr string, typ ProjectType) *Project {
	if id == "" {
		id = uuid.New().String()
	}
	return &Project{ID: id, Name: name, Addr: addr, Type: typ}
}
