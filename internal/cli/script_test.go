package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/pipetree/internal/logging"
	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const providerYAML = `
provider: Demo:Report
id: report
steps:
  - id: collect
    nqName: Core:Echo
    inputs:
      a: 1
      b: 2
  - id: total
    nqName: Core:Sum
  - id: sections
    type: sequential
    items:
      - id: note
        nqName: Core:Echo
        inputs:
          text: hello
links:
  - from: collect/a
    to: total/a
  - from: collect/b
    to: total/b
`

const reportScript = `
commands:
  - event: initPipeline
    provider: Demo:Report
  - event: runStep
    uuid: ${collect}
  - event: runStep
    uuid: ${total}
  - event: addDynamicItem
    parentUuid: ${sections}
    itemId: note
    position: 0
    as: first
  - event: runStep
    uuid: ${first}
  - event: savePipeline
    as: saved
`

func writeProviders(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.yaml"), []byte(providerYAML), 0644))
	return dir
}

func TestParseScript(t *testing.T) {
	t.Run("Document", func(t *testing.T) {
		s, err := ParseScript([]byte(reportScript))
		require.NoError(t, err)
		assert.Len(t, s.Commands, 6)
		assert.Equal(t, "initPipeline", s.Commands[0]["event"])
	})

	t.Run("Bare List", func(t *testing.T) {
		s, err := ParseScript([]byte("- event: savePipeline\n"))
		require.NoError(t, err)
		assert.Len(t, s.Commands, 1)
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := ParseScript([]byte("commands: 3"))
		assert.ErrorIs(t, err, domain.ErrProtocol)
	})
}

func TestRunScript(t *testing.T) {
	engine, cleanup, err := CreateEngine(EngineOptions{Providers: writeProviders(t)}, logging.NewNop())
	require.NoError(t, err)
	defer cleanup()

	s, err := ParseScript([]byte(reportScript))
	require.NoError(t, err)

	results, err := RunScript(context.Background(), engine, s, false, logging.NewNop())
	require.NoError(t, err)
	require.Len(t, results, 6)
	assert.NotEmpty(t, results[5].Result.DBID)

	p := engine.Projections()
	for uuid, info := range p.Consistency {
		assert.Equal(t, domain.StateConsistent, info.State, uuid)
	}

	var total *domain.PipelineState
	p.State.Walk(func(n *domain.PipelineState, _ int) bool {
		if n.ItemID == "total" {
			total = n
		}
		return true
	})
	require.NotNil(t, total)
	assert.EqualValues(t, 3, total.Outputs["sum"])
}

func TestRunScript_Failures(t *testing.T) {
	engine, cleanup, err := CreateEngine(EngineOptions{Providers: writeProviders(t)}, logging.NewNop())
	require.NoError(t, err)
	defer cleanup()

	s := &Script{Commands: []map[string]any{
		{"event": "runStep", "uuid": "${collect}"},
		{"event": "initPipeline", "provider": "Demo:Report"},
		{"event": "runStep", "uuid": "${total}"},
	}}

	results, err := RunScript(context.Background(), engine, s, false, logging.NewNop())
	assert.ErrorIs(t, err, domain.ErrProtocol)
	assert.Len(t, results, 1)

	results, err = RunScript(context.Background(), engine, s, true, logging.NewNop())
	require.Error(t, err)
	assert.Len(t, results, 3)
	assert.NoError(t, results[1].Err)
	assert.ErrorIs(t, results[2].Err, domain.ErrStepDisabled)
}

func TestRenderProjections(t *testing.T) {
	engine, cleanup, err := CreateEngine(EngineOptions{Providers: writeProviders(t)}, logging.NewNop())
	require.NoError(t, err)
	defer cleanup()
	_, err = engine.DoRaw(context.Background(), map[string]any{"event": "initPipeline", "provider": "Demo:Report"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderProjections(&buf, engine.Projections(), FormatJSON))
	var p domain.Projections
	require.NoError(t, json.Unmarshal(buf.Bytes(), &p))
	assert.Equal(t, "report", p.State.ItemID)

	buf.Reset()
	require.NoError(t, RenderProjections(&buf, engine.Projections(), FormatMermaid))
	assert.Contains(t, buf.String(), "graph TD")

	assert.ErrorIs(t, RenderProjections(&buf, engine.Projections(), "xml"), domain.ErrConfiguration)
}
