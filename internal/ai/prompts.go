package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/crosslink/crosslink/internal/dependency"
)

// ---------------------------------------------------------------------------
// Impact narrative
// ---------------------------------------------------------------------------

const impactSystemPrompt = `You are a senior engineer reviewing a change-impact
report for a multi-project JavaScript/TypeScript codebase. Nodes are static
analysis findings (exports, imports, global variables, storage keys, events,
URL parameters); connections are inferred cross-project dependencies.

Given the report, write a short plain-language assessment: which projects are
affected, how directly, and what a reviewer should double-check before the
change ships. Be concrete and keep it under 200 words. Do not restate the raw
data.`

// buildImpactPrompt renders an ImpactReport as a conversation for the LLM.
func buildImpactPrompt(report *dependency.ImpactReport) []Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Changed node: %s (%s) in project %q",
		report.Node.Name, report.Node.Type, report.Node.ProjectName)
	if loc := report.Node.Location(); loc != "" {
		fmt.Fprintf(&b, " at %s", loc)
	}
	fmt.Fprintf(&b, "\nTotal dependents: %d\n", report.Total)

	for _, p := range report.Impacted {
		fmt.Fprintf(&b, "\nProject %q (%d dependents):\n", p.ProjectName, len(p.Nodes))
		for _, n := range p.Nodes {
			fmt.Fprintf(&b, "  - %s %s", n.Type, n.Name)
			if loc := n.Location(); loc != "" {
				fmt.Fprintf(&b, " (%s)", loc)
			}
			b.WriteString("\n")
		}
	}

	return BuildConversation(impactSystemPrompt, Message{
		Role:    RoleUser,
		Content: b.String(),
	})
}

// ImpactNarrative asks the provider for a prose assessment of an impact
// report. Returns an empty string without error when no provider is
// configured — the narrative is strictly optional.
func ImpactNarrative(ctx context.Context, provider Provider, report *dependency.ImpactReport) (string, error) {
	if provider == nil {
		return "", nil
	}

	msg, err := provider.Generate(ctx, buildImpactPrompt(report), DefaultGenerateOptions())
	if err != nil {
		return "", fmt.Errorf("ai: impact narrative: %w", err)
	}
	return strings.TrimSpace(msg.Content), nil
}
