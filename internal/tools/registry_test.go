package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prettygood-work/benefits-chat-demo/internal/api"
)

func staticTool(name string) Tool {
	return Tool{
		Name:       name,
		Parameters: map[string]any{"type": "object"},
		Execute: func(_ context.Context, _ json.RawMessage) (any, error) {
			return name, nil
		},
	}
}

func TestRegistryRejectsUnknownTool(t *testing.T) {
	r := NewRegistry(staticTool("get_weather"))
	_, err := r.Execute(context.Background(), "drop_tables", nil)
	if api.KindOf(err) != api.KindBadRequest {
		t.Fatalf("expected bad_request, got %v", err)
	}
}

func TestRegistryRejectsMalformedArguments(t *testing.T) {
	r := NewRegistry(staticTool("get_weather"))
	_, err := r.Execute(context.Background(), "get_weather", json.RawMessage(`{"lat":`))
	if api.KindOf(err) != api.KindBadRequest {
		t.Fatalf("expected bad_request, got %v", err)
	}
}

func TestRegistryEmptyArgumentsAreAllowed(t *testing.T) {
	r := NewRegistry(staticTool("compare_plans"))
	result, err := r.Execute(context.Background(), "compare_plans", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "compare_plans" {
		t.Fatalf("unexpected result %v", result)
	}
}

func TestDefinitionsFilterPreservesOrder(t *testing.T) {
	r := NewRegistry(staticTool("get_weather"), staticTool("calculate_plan_costs"), staticTool("create_document"))

	defs := r.Definitions([]string{"create_document", "get_weather"})
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	if defs[0].Name != "get_weather" || defs[1].Name != "create_document" {
		t.Fatalf("order not preserved: %v, %v", defs[0].Name, defs[1].Name)
	}

	all := r.Definitions(nil)
	if len(all) != 3 {
		t.Fatalf("nil filter should return everything, got %d", len(all))
	}
}
