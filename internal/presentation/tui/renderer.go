package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown using glamour.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// Markdown describes a projection record as a markdown document: one table
// row per step, in execution order, under a heading for the pipeline.
func Markdown(p domain.Projections) string {
	if p.State == nil {
		return "_No pipeline loaded._\n"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", displayName(p.State))
	if p.State.Provider != "" {
		fmt.Fprintf(&sb, "Provider `%s`", p.State.Provider)
		if p.State.Version != nil {
			fmt.Fprintf(&sb, " v%d", *p.State.Version)
		}
		if p.State.DBID != "" {
			fmt.Fprintf(&sb, ", saved as `%s`", p.State.DBID)
		}
		sb.WriteString("\n\n")
	}

	sb.WriteString("| Step | Kind | State | Run | Outputs |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	p.State.Walk(func(n *domain.PipelineState, depth int) bool {
		if n.Type != domain.ItemTypeStep {
			if depth > 0 {
				fmt.Fprintf(&sb, "| %s**%s** | %s | | | |\n", indent(depth-1), displayName(n), n.Kind)
			}
			return true
		}
		fmt.Fprintf(&sb, "| %s%s | %s | %s | %s | %s |\n",
			indent(depth-1), displayName(n), n.Kind, stateCell(p, n), runCell(p, n.UUID), outputsCell(n.Outputs))
		return true
	})

	var problems []string
	p.State.Walk(func(n *domain.PipelineState, _ int) bool {
		for param, res := range p.Validations[n.UUID] {
			for _, e := range res.Errors {
				problems = append(problems, fmt.Sprintf("- **%s** `%s`: %s", displayName(n), param, e.Description))
			}
		}
		return true
	})
	if len(problems) > 0 {
		sb.WriteString("\n## Validation\n\n")
		sb.WriteString(strings.Join(problems, "\n"))
		sb.WriteString("\n")
	}
	return sb.String()
}

func stateCell(p domain.Projections, n *domain.PipelineState) string {
	info, ok := p.Consistency[n.UUID]
	if !ok {
		return ""
	}
	cell := string(info.State)
	if !info.Enabled && info.State != domain.StateConsistent {
		cell += " (disabled)"
	}
	if info.Readonly {
		cell += " (readonly)"
	}
	return cell
}

func runCell(p domain.Projections, uuid string) string {
	call, ok := p.CallStates[uuid]
	if !ok {
		return ""
	}
	if call.Error != "" {
		return fmt.Sprintf("%s: %s", call.Status, escapeCell(call.Error))
	}
	return string(call.Status)
}

func outputsCell(outputs map[string]any) string {
	if len(outputs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, outputs[k]))
	}
	return escapeCell(strings.Join(parts, ", "))
}

func displayName(n *domain.PipelineState) string {
	if n.FriendlyName != "" {
		return n.FriendlyName
	}
	return n.ItemID
}

func indent(depth int) string {
	return strings.Repeat("&nbsp;&nbsp;", max(depth, 0))
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
