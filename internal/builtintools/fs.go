// Package builtintools implements the built-in tool set of spec §6:
// fs_*, memory_*, and retrieve_context. Each tool is bound to the run's
// Event Bus (and, for the filesystem tools, the attempt's preview flag)
// at construction time by the Run Supervisor; Execute receives the
// attempt's workspace/memory through toolexec.ExecutionContext, never a
// back-pointer to the supervisor, per spec §9.
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

// okResult is the canonical "{ok:true}" payload several tools return.
var okResult = json.RawMessage(`{"ok":true}`)

// fsReadFile implements fs_read_file.
type fsReadFile struct{}

// NewFSReadFile builds the fs_read_file tool.
func NewFSReadFile() toolexec.Definition { return fsReadFile{} }

func (fsReadFile) Name() string           { return "fs_read_file" }
func (fsReadFile) Capabilities() []string { return []string{"fs:read"} }

// fsReadFileInput is reflected into fs_read_file's InputSchema via
// invopop/jsonschema (the same reflect-a-struct approach the teacher uses
// for its own Config schema) and doubles as the Execute unmarshal target.
type fsReadFileInput struct {
	Path     string `json:"path" jsonschema:"required"`
	MaxBytes int    `json:"maxBytes,omitempty" jsonschema:"minimum=0"`
}

func (fsReadFile) InputSchema() json.RawMessage { return structSchema[fsReadFileInput]() }

func (fsReadFile) Execute(_ context.Context, args json.RawMessage, execCtx toolexec.ExecutionContext) (json.RawMessage, error) {
	var in fsReadFileInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("fs_read_file: %w", err)
	}
	data, err := execCtx.Workspace.ReadFile(in.Path)
	if err != nil {
		return nil, fmt.Errorf("fs_read_file: %w", err)
	}
	if in.MaxBytes > 0 && len(data) > in.MaxBytes {
		data = data[:in.MaxBytes]
	}
	return json.Marshal(string(data))
}

// fsWriteFile implements fs_write_file, emitting a file_change event on
// the bound bus at mutation time.
type fsWriteFile struct {
	bus     *bus.Bus
	preview bool
}

// NewFSWriteFile builds the fs_write_file tool bound to eventBus, with
// preview indicating whether this attempt's workspace is a Preview
// overlay (carried onto the emitted file_change.Preview flag).
func NewFSWriteFile(eventBus *bus.Bus, preview bool) toolexec.Definition {
	return fsWriteFile{bus: eventBus, preview: preview}
}

func (fsWriteFile) Name() string           { return "fs_write_file" }
func (fsWriteFile) Capabilities() []string { return []string{"fs:write"} }

type fsWriteFileInput struct {
	Path    string `json:"path" jsonschema:"required"`
	Content string `json:"content" jsonschema:"required"`
}

func (fsWriteFile) InputSchema() json.RawMessage { return structSchema[fsWriteFileInput]() }

func (t fsWriteFile) Execute(_ context.Context, args json.RawMessage, execCtx toolexec.ExecutionContext) (json.RawMessage, error) {
	var in fsWriteFileInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("fs_write_file: %w", err)
	}
	kind := events.FileChangeCreate
	if st, err := execCtx.Workspace.Stat(in.Path); err == nil && st != nil {
		kind = events.FileChangeUpdate
	}
	if err := execCtx.Workspace.WriteFile(in.Path, []byte(in.Content)); err != nil {
		return nil, fmt.Errorf("fs_write_file: %w", err)
	}
	t.bus.Emit(events.AgentEvent{
		Kind:   events.KindFileChange,
		At:     time.Now(),
		Change: &events.FileChange{Kind: kind, Path: in.Path, Preview: t.preview},
	})
	return okResult, nil
}

// fsDeletePath implements fs_delete_path.
type fsDeletePath struct {
	bus     *bus.Bus
	preview bool
}

// NewFSDeletePath builds the fs_delete_path tool bound to eventBus.
func NewFSDeletePath(eventBus *bus.Bus, preview bool) toolexec.Definition {
	return fsDeletePath{bus: eventBus, preview: preview}
}

func (fsDeletePath) Name() string           { return "fs_delete_path" }
func (fsDeletePath) Capabilities() []string { return []string{"fs:delete"} }

type fsDeletePathInput struct {
	Path string `json:"path" jsonschema:"required"`
}

func (fsDeletePath) InputSchema() json.RawMessage { return structSchema[fsDeletePathInput]() }

func (t fsDeletePath) Execute(_ context.Context, args json.RawMessage, execCtx toolexec.ExecutionContext) (json.RawMessage, error) {
	var in fsDeletePathInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("fs_delete_path: %w", err)
	}
	if err := execCtx.Workspace.DeletePath(in.Path); err != nil {
		return nil, fmt.Errorf("fs_delete_path: %w", err)
	}
	t.bus.Emit(events.AgentEvent{
		Kind:   events.KindFileChange,
		At:     time.Now(),
		Change: &events.FileChange{Kind: events.FileChangeDelete, Path: in.Path, Preview: t.preview},
	})
	return okResult, nil
}

// fsRenamePath implements fs_rename_path.
type fsRenamePath struct {
	bus     *bus.Bus
	preview bool
}

// NewFSRenamePath builds the fs_rename_path tool bound to eventBus.
func NewFSRenamePath(eventBus *bus.Bus, preview bool) toolexec.Definition {
	return fsRenamePath{bus: eventBus, preview: preview}
}

func (fsRenamePath) Name() string           { return "fs_rename_path" }
func (fsRenamePath) Capabilities() []string { return []string{"fs:rename"} }

type fsRenamePathInput struct {
	FromPath string `json:"fromPath" jsonschema:"required"`
	ToPath   string `json:"toPath" jsonschema:"required"`
}

func (fsRenamePath) InputSchema() json.RawMessage { return structSchema[fsRenamePathInput]() }

func (t fsRenamePath) Execute(_ context.Context, args json.RawMessage, execCtx toolexec.ExecutionContext) (json.RawMessage, error) {
	var in fsRenamePathInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("fs_rename_path: %w", err)
	}
	if err := execCtx.Workspace.RenamePath(in.FromPath, in.ToPath); err != nil {
		return nil, fmt.Errorf("fs_rename_path: %w", err)
	}
	t.bus.Emit(events.AgentEvent{
		Kind:   events.KindFileChange,
		At:     time.Now(),
		Change: &events.FileChange{Kind: events.FileChangeRename, Path: in.FromPath, ToPath: in.ToPath, Preview: t.preview},
	})
	return okResult, nil
}
