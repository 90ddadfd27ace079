package builtintools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/emmett08/unified-agent-sdk/internal/bus"
	"github.com/emmett08/unified-agent-sdk/internal/toolexec"
	"github.com/emmett08/unified-agent-sdk/pkg/events"
)

// memoryGet implements memory_get, emitting memory_read at read time.
type memoryGet struct{ bus *bus.Bus }

// NewMemoryGet builds the memory_get tool bound to eventBus.
func NewMemoryGet(eventBus *bus.Bus) toolexec.Definition { return memoryGet{bus: eventBus} }

func (memoryGet) Name() string           { return "memory_get" }
func (memoryGet) Capabilities() []string { return []string{"memory:read"} }

type memoryGetInput struct {
	Key string `json:"key" jsonschema:"required"`
}

func (memoryGet) InputSchema() json.RawMessage { return structSchema[memoryGetInput]() }

func (t memoryGet) Execute(_ context.Context, args json.RawMessage, execCtx toolexec.ExecutionContext) (json.RawMessage, error) {
	var in memoryGetInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("memory_get: %w", err)
	}
	value, ok := execCtx.Memory.GetKV(in.Key)
	t.bus.Emit(events.AgentEvent{Kind: events.KindMemoryRead, At: time.Now(), MemoryKey: in.Key, MemoryValue: value})
	if !ok {
		return json.Marshal(nil)
	}
	return json.RawMessage(value), nil
}

// memorySet implements memory_set, emitting memory_write at write time.
type memorySet struct{ bus *bus.Bus }

// NewMemorySet builds the memory_set tool bound to eventBus.
func NewMemorySet(eventBus *bus.Bus) toolexec.Definition { return memorySet{bus: eventBus} }

func (memorySet) Name() string           { return "memory_set" }
func (memorySet) Capabilities() []string { return []string{"memory:write"} }

// memorySetInput reflects Value as `any` rather than json.RawMessage so the
// derived schema leaves it unconstrained (any JSON value), matching the
// loose shape spec §6's memory_set{key, value} describes. Execute itself
// decodes into a separate json.RawMessage-typed struct so the stored bytes
// are exactly what the caller sent, with no decode/re-encode round trip.
type memorySetInput struct {
	Key   string `json:"key" jsonschema:"required"`
	Value any    `json:"value" jsonschema:"required"`
}

func (memorySet) InputSchema() json.RawMessage { return structSchema[memorySetInput]() }

func (t memorySet) Execute(_ context.Context, args json.RawMessage, execCtx toolexec.ExecutionContext) (json.RawMessage, error) {
	var in struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("memory_set: %w", err)
	}
	execCtx.Memory.SetKV(in.Key, in.Value)
	t.bus.Emit(events.AgentEvent{Kind: events.KindMemoryWrite, At: time.Now(), MemoryKey: in.Key, MemoryValue: in.Value})
	return okResult, nil
}
