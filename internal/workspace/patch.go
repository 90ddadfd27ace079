package workspace

import (
	"fmt"
	"regexp"
	"strings"
)

// FilePatch is one file's unified-diff hunks, targeting a Port-relative path.
type FilePatch struct {
	Path  string
	Hunks []Hunk
}

// Hunk is a single unified-diff hunk: a run of context/add/remove lines
// anchored at OldStart in the original file.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []string // each prefixed " ", "+", or "-"
}

// PatchResult summarises one applied FilePatch.
type PatchResult struct {
	Content      string
	Added        int
	Removed      int
	Reanchored   bool // true if any hunk matched at an offset from its declared OldStart
	ReanchorDist int  // lines of drift absorbed, summed across hunks
}

var hunkHeader = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// ParseUnifiedDiff parses a multi-file unified diff, adapted from the
// teacher's files.parseUnifiedDiff.
func ParseUnifiedDiff(patch string) ([]FilePatch, error) {
	lines := strings.Split(patch, "\n")
	var patches []FilePatch
	var current *FilePatch
	var currentHunk *Hunk

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "diff ") || strings.HasPrefix(line, "index "):
			continue
		case strings.HasPrefix(line, "--- "):
			if i+1 >= len(lines) || !strings.HasPrefix(lines[i+1], "+++ ") {
				return nil, fmt.Errorf("invalid patch: missing +++ header")
			}
			newPath := strings.TrimSpace(strings.TrimPrefix(lines[i+1], "+++ "))
			newPath = strings.TrimPrefix(strings.TrimPrefix(newPath, "b/"), "a/")
			patches = append(patches, FilePatch{Path: newPath})
			current = &patches[len(patches)-1]
			currentHunk = nil
			i++
		case strings.HasPrefix(line, "@@ "):
			if current == nil {
				return nil, fmt.Errorf("invalid patch: hunk without file header")
			}
			match := hunkHeader.FindStringSubmatch(line)
			if match == nil {
				return nil, fmt.Errorf("invalid patch: malformed hunk header")
			}
			h := Hunk{
				OldStart: atoi(match[1]),
				OldLines: atoiDefault(match[2], 1),
				NewStart: atoi(match[3]),
				NewLines: atoiDefault(match[4], 1),
			}
			current.Hunks = append(current.Hunks, h)
			currentHunk = &current.Hunks[len(current.Hunks)-1]
		default:
			if currentHunk == nil {
				continue
			}
			if line == "\\ No newline at end of file" || line == "" {
				continue
			}
			prefix := line[:1]
			if prefix != " " && prefix != "+" && prefix != "-" {
				return nil, fmt.Errorf("invalid patch line: %s", line)
			}
			currentHunk.Lines = append(currentHunk.Lines, line)
		}
	}
	if len(patches) == 0 {
		return nil, fmt.Errorf("invalid patch: no file headers found")
	}
	return patches, nil
}

// maxReanchorSearch bounds how far ApplyFilePatch will scan away from a
// hunk's declared OldStart looking for a matching anchor before giving up.
const maxReanchorSearch = 200

// ApplyFilePatch applies patch's hunks to content. Unlike a hard
// line-offset match, each hunk first tries its declared OldStart and,
// on mismatch, searches outward for a window whose context and removed
// lines agree with content — tolerating drift introduced by edits made
// since the patch was generated (spec testable property 11 / scenario S7).
func ApplyFilePatch(content string, patch FilePatch) (PatchResult, error) {
	hadTrailing := strings.HasSuffix(content, "\n")
	trimmed := strings.TrimSuffix(content, "\n")
	var lines []string
	if trimmed != "" {
		lines = strings.Split(trimmed, "\n")
	}

	added, removed, reanchored, reanchorDist := 0, 0, false, 0

	for _, h := range patch.Hunks {
		anchor, drift, err := findAnchor(lines, h)
		if err != nil {
			return PatchResult{}, err
		}
		if drift != 0 {
			reanchored = true
			reanchorDist += abs(drift)
		}

		idx := anchor
		for _, line := range h.Lines {
			if line == "" {
				continue
			}
			prefix := line[:1]
			text := ""
			if len(line) > 1 {
				text = line[1:]
			}
			switch prefix {
			case " ":
				idx++
			case "-":
				lines = append(lines[:idx], lines[idx+1:]...)
				removed++
			case "+":
				lines = append(lines[:idx], append([]string{text}, lines[idx:]...)...)
				idx++
				added++
			}
		}
	}

	result := strings.Join(lines, "\n")
	if hadTrailing {
		result += "\n"
	}
	return PatchResult{Content: result, Added: added, Removed: removed, Reanchored: reanchored, ReanchorDist: reanchorDist}, nil
}

// findAnchor locates the line index in lines where h's context/removed
// lines first match exactly, starting at h.OldStart-1 and expanding
// outward one line at a time up to maxReanchorSearch before failing.
func findAnchor(lines []string, h Hunk) (idx int, drift int, err error) {
	declared := h.OldStart - 1
	if declared < 0 {
		declared = 0
	}
	if matchesAt(lines, h, declared) {
		return declared, 0, nil
	}
	for offset := 1; offset <= maxReanchorSearch; offset++ {
		if c := declared + offset; c <= len(lines) && matchesAt(lines, h, c) {
			return c, offset, nil
		}
		if c := declared - offset; c >= 0 && matchesAt(lines, h, c) {
			return c, -offset, nil
		}
	}
	return 0, 0, fmt.Errorf("context mismatch: no anchor found for hunk at line %d within %d lines", h.OldStart, maxReanchorSearch)
}

// matchesAt reports whether h's " " and "-" lines agree verbatim with
// lines starting at start.
func matchesAt(lines []string, h Hunk, start int) bool {
	idx := start
	for _, line := range h.Lines {
		if line == "" {
			continue
		}
		prefix := line[:1]
		if prefix == "+" {
			continue
		}
		text := ""
		if len(line) > 1 {
			text = line[1:]
		}
		if idx >= len(lines) || lines[idx] != text {
			return false
		}
		idx++
	}
	return true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func atoi(value string) int {
	if value == "" {
		return 0
	}
	var out int
	for _, r := range value {
		if r < '0' || r > '9' {
			return 0
		}
		out = out*10 + int(r-'0')
	}
	return out
}

func atoiDefault(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed := atoi(value)
	if parsed == 0 {
		return fallback
	}
	return parsed
}
