package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/pipetree"
	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/aretw0/pipetree/pkg/provider"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*Server, *pipetree.Engine) {
	t.Helper()
	providers := provider.NewRegistry()
	require.NoError(t, providers.RegisterConfig(&domain.PipelineConfiguration{
		Provider: "Demo:Echo",
		ItemConfig: domain.ItemConfig{
			ID: "echo",
			Steps: []domain.ItemConfig{
				{ID: "first", NqName: "Core:Echo", Inputs: map[string]any{"x": 1.0}},
			},
		},
	}))
	eng, err := pipetree.New(pipetree.WithProviders(providers))
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	return NewServer(eng), eng
}

func TestSendCommand(t *testing.T) {
	s, eng := newServer(t)
	ctx := context.Background()

	resp, err := s.handleSendCommand(ctx, mcp.CallToolRequest{}, map[string]interface{}{
		"event":   domain.EventInitPipeline,
		"payload": `{"provider":"Demo:Echo"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.EventInitPipeline, resp.Event)
	assert.Equal(t, eng.Projections().State.UUID, resp.UUID)
	assert.False(t, resp.Locked)

	first := eng.Projections().State.Children[0].UUID
	_, err = s.handleSendCommand(ctx, mcp.CallToolRequest{}, map[string]interface{}{
		"event":   domain.EventRunStep,
		"payload": map[string]interface{}{"uuid": first},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1.0}, eng.Projections().State.Children[0].Outputs)
}

func TestSendCommand_Errors(t *testing.T) {
	s, _ := newServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]interface{}
		want error
	}{
		{"Missing Event", map[string]interface{}{}, domain.ErrProtocol},
		{"Bad Payload", map[string]interface{}{"event": domain.EventRunStep, "payload": "{"}, domain.ErrProtocol},
		{"Unknown Command", map[string]interface{}{"event": "reboot"}, domain.ErrUnknownCommand},
		{"No Tree", map[string]interface{}{"event": domain.EventRunStep, "payload": `{"uuid":"x"}`}, domain.ErrNoTree},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleSendCommand(ctx, mcp.CallToolRequest{}, tt.args)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestProjectionsJSON(t *testing.T) {
	s, eng := newServer(t)
	_, err := eng.Do(context.Background(), domain.InitPipeline{Provider: "Demo:Echo"})
	require.NoError(t, err)

	text, err := s.projectionsJSON()
	require.NoError(t, err)

	var p domain.Projections
	require.NoError(t, json.Unmarshal([]byte(text), &p))
	require.NotNil(t, p.State)
	assert.Equal(t, "echo", p.State.ItemID)
	assert.Len(t, p.Consistency, 1)
}
