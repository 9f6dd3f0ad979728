package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/pipetree/pkg/domain"
)

// GenerateMermaid produces a Mermaid flowchart of a pipeline snapshot.
// Pipelines become subgraphs, steps become nodes linked in execution order.
// Shapes:
// - Static step: [Rectangle]
// - Dynamic step: [[Subroutine]]
// - Readonly step: [/Parallelogram/]
// Steps are styled after their consistency and run state.
func GenerateMermaid(p domain.Projections) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	if p.State == nil {
		return sb.String()
	}

	var chain []string
	var write func(n *domain.PipelineState, indent string)
	write = func(n *domain.PipelineState, indent string) {
		id := sanitizeMermaidID(n.UUID)
		label := strings.ReplaceAll(displayName(n), "\"", "'")
		if n.Type != domain.ItemTypeStep {
			fmt.Fprintf(&sb, "%ssubgraph %s[\"%s\"]\n", indent, id, label)
			for _, child := range n.Children {
				write(child, indent+"    ")
			}
			fmt.Fprintf(&sb, "%send\n", indent)
			return
		}

		opener, closer := "[", "]"
		switch {
		case n.Readonly:
			opener, closer = "[/", "/]"
		case n.Kind == domain.KindDynamic:
			opener, closer = "[[", "]]"
		}
		fmt.Fprintf(&sb, "%s%s%s\"%s\"%s\n", indent, id, opener, label, closer)
		chain = append(chain, id)
	}
	write(p.State, "    ")

	for i := 1; i < len(chain); i++ {
		fmt.Fprintf(&sb, "    %s --> %s\n", chain[i-1], chain[i])
	}

	sb.WriteString("\n    %% Consistency Styles\n")
	sb.WriteString("    classDef consistent fill:#c8e6c9,stroke:#2e7d32,color:#000;\n")
	sb.WriteString("    classDef inconsistent fill:#ffe0b2,stroke:#ef6c00,color:#000;\n")
	sb.WriteString("    classDef pending fill:#e1f5fe,stroke:#01579b,color:#000;\n")
	sb.WriteString("    classDef disabled fill:#eeeeee,stroke:#9e9e9e,color:#757575;\n")
	sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#c62828,stroke-width:3px,color:#000;\n")

	p.State.Walk(func(n *domain.PipelineState, _ int) bool {
		if n.Type != domain.ItemTypeStep {
			return true
		}
		fmt.Fprintf(&sb, "    class %s %s;\n", sanitizeMermaidID(n.UUID), styleOf(p, n.UUID))
		return true
	})
	return sb.String()
}

func styleOf(p domain.Projections, uuid string) string {
	if call, ok := p.CallStates[uuid]; ok && call.Status == domain.RunFailed {
		return "failed"
	}
	info, ok := p.Consistency[uuid]
	switch {
	case !ok:
		return "pending"
	case info.State == domain.StateConsistent:
		return "consistent"
	case !info.Enabled:
		return "disabled"
	case info.State == domain.StateInconsistent:
		return "inconsistent"
	}
	return "pending"
}

func displayName(n *domain.PipelineState) string {
	if n.FriendlyName != "" {
		return n.FriendlyName
	}
	return n.ItemID
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return "n_" + s
}
