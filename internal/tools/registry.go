// Package tools holds the fixed catalog of functions the model may call
// during a generation step.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prettygood-work/benefits-chat-demo/internal/api"
	"github.com/prettygood-work/benefits-chat-demo/internal/llm"
)

// Tool is one callable entry in the registry. Execute receives the raw
// argument JSON produced by the model and returns a JSON-encodable result.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Execute     func(ctx context.Context, args json.RawMessage) (any, error)
}

// Registry is a fixed, ordered tool catalog. The set never changes after
// construction.
type Registry struct {
	order []string
	tools map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, exists := r.tools[t.Name]; exists {
			continue
		}
		r.order = append(r.order, t.Name)
		r.tools[t.Name] = t
	}
	return r
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Names() []string {
	return append([]string{}, r.order...)
}

// Definitions returns the model-facing declarations for the allowed subset,
// preserving registry order. A nil allowed set means everything.
func (r *Registry) Definitions(allowed []string) []llm.Tool {
	allowedSet := map[string]bool{}
	for _, name := range allowed {
		allowedSet[name] = true
	}
	var defs []llm.Tool
	for _, name := range r.order {
		if allowed != nil && !allowedSet[name] {
			continue
		}
		t := r.tools[name]
		defs = append(defs, llm.Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return defs
}

// Execute validates and runs a tool call. Unknown names and malformed
// argument JSON are rejected before the tool runs.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, api.E(api.KindBadRequest, fmt.Sprintf("unknown tool %q", name))
	}
	if len(args) > 0 && !json.Valid(args) {
		return nil, api.E(api.KindBadRequest, fmt.Sprintf("malformed arguments for tool %q", name))
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return t.Execute(ctx, args)
}

// decodeArgs unmarshals tool arguments into a typed struct, mapping decode
// failures onto bad_request.
func decodeArgs(args json.RawMessage, into any) error {
	if err := json.Unmarshal(args, into); err != nil {
		return api.Wrap(api.KindBadRequest, "invalid tool arguments", err)
	}
	return nil
}
