package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aretw0/pipetree/pkg/domain"
	"gopkg.in/yaml.v3"
)

// aliasKey names the result of a script command so later commands can refer to it.
const aliasKey = "as"

// Script is an ordered list of protocol commands read from a YAML or JSON file.
// Either a bare list or a document with a "commands" key is accepted.
//
//	commands:
//	  - event: initPipeline
//	    provider: Demo:Report
//	  - event: runStep
//	    uuid: ${collect}
//
// A string value of the form ${name} is replaced, when the command is sent,
// by the uuid of the command aliased "name" or else of the first node whose
// itemId is "name". ${name.dbId} yields the saved id instead.
type Script struct {
	Commands []map[string]any `yaml:"commands"`
}

// ScriptEngine is what a script is played against.
type ScriptEngine interface {
	DoRaw(ctx context.Context, raw map[string]any) (domain.CommandResult, error)
	Projections() domain.Projections
}

// LoadScript reads a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes a script document.
func ParseScript(data []byte) (*Script, error) {
	var list []map[string]any
	if err := yaml.Unmarshal(data, &list); err == nil {
		return &Script{Commands: list}, nil
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: invalid script: %v", domain.ErrProtocol, err)
	}
	return &s, nil
}

// ScriptResult is the outcome of one script command.
type ScriptResult struct {
	Index  int
	Result domain.CommandResult
	Err    error
}

// RunScript sends the commands one by one, waiting for each.
// It stops at the first failure unless keepGoing is set; the failures are returned joined.
func RunScript(ctx context.Context, engine ScriptEngine, s *Script, keepGoing bool, logger *slog.Logger) ([]ScriptResult, error) {
	aliases := map[string]domain.CommandResult{}
	results := make([]ScriptResult, 0, len(s.Commands))
	var failures []error

	for i, raw := range s.Commands {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		alias, _ := raw[aliasKey].(string)
		cmd, err := expand(raw, aliases, engine.Projections())
		var res domain.CommandResult
		if err == nil {
			res, err = engine.DoRaw(ctx, cmd)
		}
		results = append(results, ScriptResult{Index: i, Result: res, Err: err})

		if err != nil {
			logger.Warn("Script command failed", "index", i, "event", raw["event"], "error", err)
			failures = append(failures, fmt.Errorf("command %d (%v): %w", i+1, raw["event"], err))
			if !keepGoing {
				break
			}
			continue
		}
		logger.Debug("Script command done", "index", i, "event", res.Event, "uuid", res.UUID)
		if alias != "" {
			aliases[alias] = res
		}
	}
	return results, errors.Join(failures...)
}

// expand copies a command, resolving ${...} references and dropping the alias key.
func expand(raw map[string]any, aliases map[string]domain.CommandResult, p domain.Projections) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == aliasKey {
			continue
		}
		resolved, err := expandValue(v, aliases, p)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

func expandValue(v any, aliases map[string]domain.CommandResult, p domain.Projections) (any, error) {
	switch t := v.(type) {
	case string:
		if !strings.HasPrefix(t, "${") || !strings.HasSuffix(t, "}") {
			return t, nil
		}
		return resolveRef(t[2:len(t)-1], aliases, p)
	case map[string]any:
		return expand(t, aliases, p)
	}
	return v, nil
}

func resolveRef(ref string, aliases map[string]domain.CommandResult, p domain.Projections) (string, error) {
	name, field, _ := strings.Cut(ref, ".")

	if res, ok := aliases[name]; ok {
		if field == "dbId" {
			return res.DBID, nil
		}
		return res.UUID, nil
	}

	var found *domain.PipelineState
	if p.State != nil {
		p.State.Walk(func(n *domain.PipelineState, _ int) bool {
			if found == nil && n.ItemID == name {
				found = n
			}
			return found == nil
		})
	}
	if found == nil {
		return "", fmt.Errorf("%w: unresolved reference ${%s}", domain.ErrProtocol, ref)
	}
	if field == "dbId" {
		return found.DBID, nil
	}
	return found.UUID, nil
}
