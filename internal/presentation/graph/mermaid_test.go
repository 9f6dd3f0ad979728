package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/pipetree/internal/presentation/graph"
	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func sample() domain.Projections {
	p := domain.EmptyProjections()
	p.State = &domain.PipelineState{
		UUID: "root-1", ItemID: "report", Type: domain.ItemTypeStatic, Kind: domain.KindStatic,
		Children: []*domain.PipelineState{
			{UUID: "a-1", ItemID: "collect", FriendlyName: "Collect \"data\"", Type: domain.ItemTypeStep, Kind: domain.KindStatic},
			{UUID: "s-1", ItemID: "sections", Type: domain.ItemTypeSequential, Kind: domain.KindStatic, Children: []*domain.PipelineState{
				{UUID: "d-1", ItemID: "note", Type: domain.ItemTypeStep, Kind: domain.KindDynamic},
				{UUID: "d-2", ItemID: "note", Type: domain.ItemTypeStep, Kind: domain.KindDynamic, Readonly: true},
			}},
		},
	}
	p.Consistency["a-1"] = domain.ConsistencyInfo{State: domain.StateConsistent, Enabled: true}
	p.Consistency["d-1"] = domain.ConsistencyInfo{State: domain.StatePending, Enabled: true}
	p.Consistency["d-2"] = domain.ConsistencyInfo{State: domain.StatePending}
	p.CallStates["d-1"] = domain.CallState{Status: domain.RunFailed}
	return p
}

func TestGenerateMermaid(t *testing.T) {
	out := graph.GenerateMermaid(sample())

	tests := []struct {
		name     string
		contains []string
	}{
		{"Subgraphs", []string{`subgraph n_root_1["report"]`, `subgraph n_s_1["sections"]`, "end"}},
		{"Shapes", []string{`n_a_1["Collect 'data'"]`, `n_d_1[["note"]]`, `n_d_2[/"note"/]`}},
		{"Execution Order", []string{"n_a_1 --> n_d_1", "n_d_1 --> n_d_2"}},
		{"Styles", []string{"class n_a_1 consistent;", "class n_d_1 failed;", "class n_d_2 disabled;"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
		})
	}
	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
}

func TestGenerateMermaid_NoTree(t *testing.T) {
	assert.Equal(t, "graph TD\n", graph.GenerateMermaid(domain.EmptyProjections()))
}
