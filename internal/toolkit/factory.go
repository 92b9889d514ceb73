package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/assistant-core/internal/coreerr"
	"github.com/haasonsaas/assistant-core/internal/statestore"
	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

// MemorySearcher is the memory-retrieval collaborator the memory-search
// tool and the graph's retrieve_memories node both depend on.
type MemorySearcher interface {
	Search(ctx context.Context, userID int64, query string, limit int, threshold float64) ([]coremodels.ScoredMemory, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SubAssistantInvoker delegates a single user turn to another assistant's
// conversation graph without exposing the parent's GraphState.
type SubAssistantInvoker interface {
	InvokeTurn(ctx context.Context, assistantID string, userID int64, message string) (string, error)
}

// Deps bundles every collaborator a concrete tool kind may need. Not every
// tool uses every field.
type Deps struct {
	Store          *statestore.Client
	Memory         MemorySearcher
	SubAssistant   SubAssistantInvoker
	Logger         *slog.Logger
	WebSearchAPIKey string
}

// Factory builds Tools from ToolDefinitions.
type Factory struct {
	deps Deps
}

// NewFactory returns a Factory sharing deps across every tool it builds.
func NewFactory(deps Deps) *Factory {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Factory{deps: deps}
}

// SetSubAssistantInvoker wires the sub-assistant delegate late, for the
// common construction order where the invoker (the orchestrator) itself
// depends on an already-built Factory to materialize its own tool set.
func (f *Factory) SetSubAssistantInvoker(invoker SubAssistantInvoker) {
	f.deps.SubAssistant = invoker
}

// Build materializes one Registry per invocation. A definition that fails
// to build (invalid name, schema, or kind-specific misconfiguration) is
// skipped with a logged error rather than failing the whole batch — spec
// §4.D's isolation requirement.
func (f *Factory) Build(ctx context.Context, defs []coremodels.ToolDefinition, inv InvocationContext) *Registry {
	reg := NewRegistry()
	for _, def := range defs {
		if !def.Active {
			continue
		}
		t, err := f.build(def, inv)
		if err != nil {
			f.deps.Logger.Error("toolkit: skipping tool definition",
				"tool_name", def.Name, "kind", def.Kind, "error", err)
			continue
		}
		reg.Register(t)
	}
	return reg
}

func (f *Factory) build(def coremodels.ToolDefinition, inv InvocationContext) (Tool, error) {
	if !NamePattern.MatchString(def.Name) {
		return nil, fmt.Errorf("invalid tool name %q", def.Name)
	}
	schema, err := compileSchema(def.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", def.Name, err)
	}
	base := baseTool{def: def, schema: schema}

	switch def.Kind {
	case coremodels.ToolKindTime:
		return &timeTool{baseTool: base}, nil
	case coremodels.ToolKindCalendarCreate:
		return &calendarCreateTool{baseTool: base, store: f.deps.Store, userID: inv.UserID}, nil
	case coremodels.ToolKindCalendarList:
		return &calendarListTool{baseTool: base, store: f.deps.Store, userID: inv.UserID}, nil
	case coremodels.ToolKindReminderCreate:
		return &reminderCreateTool{baseTool: base, store: f.deps.Store, userID: inv.UserID, assistantID: inv.AssistantID}, nil
	case coremodels.ToolKindReminderList:
		return &reminderListTool{baseTool: base, store: f.deps.Store, userID: inv.UserID}, nil
	case coremodels.ToolKindReminderDelete:
		return &reminderDeleteTool{baseTool: base, store: f.deps.Store}, nil
	case coremodels.ToolKindMemorySave:
		if f.deps.Memory == nil {
			return nil, fmt.Errorf("memory collaborator not configured")
		}
		return &memorySaveTool{baseTool: base, store: f.deps.Store, memory: f.deps.Memory, userID: inv.UserID}, nil
	case coremodels.ToolKindMemorySearch:
		if f.deps.Memory == nil {
			return nil, fmt.Errorf("memory collaborator not configured")
		}
		return &memorySearchTool{baseTool: base, memory: f.deps.Memory, userID: inv.UserID}, nil
	case coremodels.ToolKindWebSearch:
		return &webSearchTool{baseTool: base, apiKey: f.deps.WebSearchAPIKey}, nil
	case coremodels.ToolKindSubAssistant:
		if def.DelegateAssistantID == "" {
			return nil, fmt.Errorf("sub-assistant tool missing delegate_assistant_id")
		}
		if f.deps.SubAssistant == nil {
			return nil, fmt.Errorf("sub-assistant invoker not configured")
		}
		return &subAssistantTool{baseTool: base, invoker: f.deps.SubAssistant, delegateID: def.DelegateAssistantID, userID: inv.UserID}, nil
	default:
		return nil, fmt.Errorf("unknown tool kind %q", def.Kind)
	}
}

// baseTool supplies the Name/Description/Schema/validation machinery every
// concrete tool embeds.
type baseTool struct {
	def    coremodels.ToolDefinition
	schema *jsonschema.Schema
}

func (b baseTool) Name() string               { return b.def.Name }
func (b baseTool) Description() string        { return b.def.Description }
func (b baseTool) Schema() json.RawMessage     { return json.RawMessage(b.def.InputSchema) }

// validate decodes and schema-checks args, returning an INVALID_INPUT
// ToolError on mismatch — bad tool input never retries.
func (b baseTool) validate(args json.RawMessage, out any) error {
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return &coreerr.ToolError{ToolName: b.def.Name, Code: coreerr.ToolCodeInvalidInput, Message: "invalid JSON: " + err.Error()}
	}
	if err := b.schema.Validate(decoded); err != nil {
		return &coreerr.ToolError{ToolName: b.def.Name, Code: coreerr.ToolCodeInvalidInput, Message: "schema validation failed: " + err.Error()}
	}
	if out != nil {
		if err := json.Unmarshal(args, out); err != nil {
			return &coreerr.ToolError{ToolName: b.def.Name, Code: coreerr.ToolCodeInvalidInput, Message: "decode failed: " + err.Error()}
		}
	}
	return nil
}

func compileSchema(schemaText string) (*jsonschema.Schema, error) {
	if schemaText == "" {
		schemaText = `{"type":"object"}`
	}
	return jsonschema.CompileString("tool.schema.json", schemaText)
}
