package matcher

import (
	"strings"

	"github.com/crosslink/crosslink/internal/graph"
)

// Rule pairs one "from" node type with one "to" node type and defines how a
// match key is derived on each side. Two nodes match when their keys are
// equal and non-empty; every rule additionally requires the nodes to live in
// different projects.
//
// Keys are composed from the to-node's fields rather than parsed out of the
// from-node's name: project and entry names may themselves contain dots, so
// splitting "<pkg>.<importName>" is ambiguous, while composing
// "<toProject>.<toName>" and comparing whole keys is not.
type Rule struct {
	From graph.NodeType
	To   graph.NodeType

	// FromKey and ToKey derive the match key for each side. ok == false
	// excludes the node from the rule (missing metadata, empty name).
	FromKey func(n *graph.Node) (key string, ok bool)
	ToKey   func(n *graph.Node) (key string, ok bool)
}

func nameKey(n *graph.Node) (string, bool) {
	return n.Name, n.Name != ""
}

func storageKey(n *graph.Node) (string, bool) {
	return n.Meta.StorageKey, n.Meta.StorageKey != ""
}

func eventKey(n *graph.Node) (string, bool) {
	return n.Meta.EventName, n.Meta.EventName != ""
}

// urlParamKey strips a "=value" suffix from raw captured parameter text, so
// "userId=42" and "userId" compare equal.
func urlParamKey(n *graph.Node) (string, bool) {
	name, _, _ := strings.Cut(n.Name, "=")
	return name, name != ""
}

// Rules is the closed matching table. Each entry scans the From bucket
// against an index over the To bucket.
var Rules = []Rule{
	{
		// Import "P1.foo" matches export "foo" owned by project "P1".
		From:    graph.NodeTypeNamedImport,
		To:      graph.NodeTypeNamedExport,
		FromKey: nameKey,
		ToKey: func(n *graph.Node) (string, bool) {
			if n.ProjectName == "" || n.Name == "" {
				return "", false
			}
			return n.ProjectName + "." + n.Name, true
		},
	},
	{
		// Dynamic import "P1.entry.foo" matches export "foo" exposed under
		// entry "entry" of project "P1".
		From:    graph.NodeTypeRuntimeDynamicImport,
		To:      graph.NodeTypeNamedExport,
		FromKey: nameKey,
		ToKey: func(n *graph.Node) (string, bool) {
			if n.ProjectName == "" || n.Meta.EntryName == "" || n.Name == "" {
				return "", false
			}
			return n.ProjectName + "." + n.Meta.EntryName + "." + n.Name, true
		},
	},
	{
		// Module-federation reference "app.module" matches the exposed
		// entry "module" of application "app".
		From:    graph.NodeTypeDynamicMFReference,
		To:      graph.NodeTypeNamedExport,
		FromKey: nameKey,
		ToKey: func(n *graph.Node) (string, bool) {
			if n.ProjectName == "" || n.Meta.EntryName == "" {
				return "", false
			}
			return n.ProjectName + "." + n.Meta.EntryName, true
		},
	},
	{
		From:    graph.NodeTypeGlobalVarRead,
		To:      graph.NodeTypeGlobalVarWrite,
		FromKey: nameKey,
		ToKey:   nameKey,
	},
	{
		From:    graph.NodeTypeWebStorageRead,
		To:      graph.NodeTypeWebStorageWrite,
		FromKey: storageKey,
		ToKey:   storageKey,
	},
	{
		From:    graph.NodeTypeEventOn,
		To:      graph.NodeTypeEventEmit,
		FromKey: eventKey,
		ToKey:   eventKey,
	},
	{
		From:    graph.NodeTypeUrlParamRead,
		To:      graph.NodeTypeUrlParamWrite,
		FromKey: urlParamKey,
		ToKey:   urlParamKey,
	},
}
