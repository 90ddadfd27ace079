package builtintools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/emmett08/unified-agent-sdk/internal/bus"
	"github.com/emmett08/unified-agent-sdk/internal/toolexec"
	"github.com/emmett08/unified-agent-sdk/internal/workspace"
	"github.com/emmett08/unified-agent-sdk/pkg/events"
)

// fsApplyPatch implements fs_apply_patch: unified-diff application with
// drift-tolerant re-anchoring (internal/workspace.ApplyFilePatch), either
// one write per file (default) or one write per hunk plus a patch_hunk
// event per hunk (incremental=true), per spec §6.
type fsApplyPatch struct {
	bus     *bus.Bus
	preview bool
}

// NewFSApplyPatch builds the fs_apply_patch tool bound to eventBus.
func NewFSApplyPatch(eventBus *bus.Bus, preview bool) toolexec.Definition {
	return fsApplyPatch{bus: eventBus, preview: preview}
}

func (fsApplyPatch) Name() string           { return "fs_apply_patch" }
func (fsApplyPatch) Capabilities() []string { return []string{"fs:write"} }

type fsApplyPatchInput struct {
	Patch       string `json:"patch" jsonschema:"required"`
	Incremental bool   `json:"incremental,omitempty"`
}

func (fsApplyPatch) InputSchema() json.RawMessage { return structSchema[fsApplyPatchInput]() }

type patchFileResult struct {
	Path         string `json:"path"`
	HunksApplied int    `json:"hunksApplied"`
}

type patchOutput struct {
	OK      bool              `json:"ok"`
	Results []patchFileResult `json:"results"`
}

func (t fsApplyPatch) Execute(_ context.Context, args json.RawMessage, execCtx toolexec.ExecutionContext) (json.RawMessage, error) {
	var in fsApplyPatchInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("fs_apply_patch: %w", err)
	}

	files, err := workspace.ParseUnifiedDiff(in.Patch)
	if err != nil {
		return nil, fmt.Errorf("fs_apply_patch: %w", err)
	}

	out := patchOutput{OK: true}
	for _, fp := range files {
		var applied int
		if in.Incremental {
			applied, err = t.applyIncremental(execCtx, fp)
		} else {
			applied, err = t.applyWhole(execCtx, fp)
		}
		if err != nil {
			return nil, fmt.Errorf("fs_apply_patch: %s: %w", fp.Path, err)
		}
		out.Results = append(out.Results, patchFileResult{Path: fp.Path, HunksApplied: applied})
	}
	return json.Marshal(out)
}

// applyWhole applies every hunk of fp in one pass and writes once, per
// spec's non-incremental behavior ("writes once per file with
// create/update").
func (t fsApplyPatch) applyWhole(execCtx toolexec.ExecutionContext, fp workspace.FilePatch) (int, error) {
	content, existed := t.readExisting(execCtx, fp.Path)
	result, err := workspace.ApplyFilePatch(content, fp)
	if err != nil {
		return 0, err
	}
	if err := t.write(execCtx, fp.Path, result.Content, existed); err != nil {
		return 0, err
	}
	return len(fp.Hunks), nil
}

// applyIncremental applies and writes one hunk at a time, emitting a
// patch_hunk file_change after each write, per spec's incremental
// behavior.
func (t fsApplyPatch) applyIncremental(execCtx toolexec.ExecutionContext, fp workspace.FilePatch) (int, error) {
	content, existed := t.readExisting(execCtx, fp.Path)
	hunkCount := len(fp.Hunks)
	for i, h := range fp.Hunks {
		result, err := workspace.ApplyFilePatch(content, workspace.FilePatch{Path: fp.Path, Hunks: []workspace.Hunk{h}})
		if err != nil {
			return i, fmt.Errorf("hunk %d: %w", i, err)
		}
		content = result.Content
		if err := execCtx.Workspace.WriteFile(fp.Path, []byte(content)); err != nil {
			return i, err
		}
		existed = true
		t.bus.Emit(events.AgentEvent{
			Kind: events.KindFileChange,
			At:   time.Now(),
			Change: &events.FileChange{
				Kind:    events.FileChangePatchHunk,
				Path:    fp.Path,
				Preview: t.preview,
				HunkIdx: i,
				HunkCnt: hunkCount,
			},
		})
	}
	return hunkCount, nil
}

func (t fsApplyPatch) readExisting(execCtx toolexec.ExecutionContext, path string) (string, bool) {
	data, err := execCtx.Workspace.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (t fsApplyPatch) write(execCtx toolexec.ExecutionContext, path, content string, existed bool) error {
	kind := events.FileChangeCreate
	if existed {
		kind = events.FileChangeUpdate
	}
	if err := execCtx.Workspace.WriteFile(path, []byte(content)); err != nil {
		return err
	}
	t.bus.Emit(events.AgentEvent{
		Kind:   events.KindFileChange,
		At:     time.Now(),
		Change: &events.FileChange{Kind: kind, Path: path, Preview: t.preview},
	})
	return nil
}
