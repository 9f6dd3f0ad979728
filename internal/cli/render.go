package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/aretw0/pipetree/internal/presentation/graph"
	"github.com/aretw0/pipetree/internal/presentation/tui"
	"github.com/aretw0/pipetree/pkg/domain"
)

// Output formats of a projection snapshot.
const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatMermaid = "mermaid"
)

// RenderProjections writes p to w in the given format.
// The text format is markdown rendered for the terminal.
func RenderProjections(w io.Writer, p domain.Projections, format string) error {
	switch format {
	case "", FormatText:
		out, err := tui.NewRenderer()(tui.Markdown(p))
		if err != nil {
			return fmt.Errorf("failed to render projections: %w", err)
		}
		_, err = io.WriteString(w, out)
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	case FormatMermaid:
		_, err := io.WriteString(w, graph.GenerateMermaid(p))
		return err
	}
	return fmt.Errorf("%w: unknown format %q (text, json, mermaid)", domain.ErrConfiguration, format)
}
