package workspace

import "fmt"

type overlayKind int

const (
	overlayWrite overlayKind = iota
	overlayDelete
	overlayRename
)

// overlayEntry is one buffered mutation, keyed by path (rename uses a
// composite from/to key so both endpoints resolve through the overlay).
type overlayEntry struct {
	kind overlayKind
	data []byte
	to   string // overlayRename only
}

// Preview is a Port decorator that buffers every mutation in an
// in-memory overlay until Commit or Discard, per spec §4.F.
type Preview struct {
	base    Port
	overlay map[string]overlayEntry
	order   []string // commit order: renames, then writes, then deletes need stable replay per-kind
}

// NewPreview wraps base in a Preview overlay.
func NewPreview(base Port) *Preview {
	return &Preview{base: base, overlay: map[string]overlayEntry{}}
}

// ReadFile consults the overlay first; a pending delete fails the read.
func (p *Preview) ReadFile(path string) ([]byte, error) {
	if e, ok := p.overlay[path]; ok {
		switch e.kind {
		case overlayDelete:
			return nil, fmt.Errorf("path deleted in preview: %s", path)
		case overlayWrite:
			return e.data, nil
		case overlayRename:
			return nil, fmt.Errorf("path renamed away in preview: %s", path)
		}
	}
	return p.base.ReadFile(path)
}

// WriteFile buffers data at path in the overlay.
func (p *Preview) WriteFile(path string, data []byte) error {
	p.put(path, overlayEntry{kind: overlayWrite, data: append([]byte(nil), data...)})
	return nil
}

// DeletePath buffers a pending delete at path in the overlay.
func (p *Preview) DeletePath(path string) error {
	p.put(path, overlayEntry{kind: overlayDelete})
	return nil
}

// RenamePath buffers a pending rename: from resolves as deleted in the
// overlay, to resolves to from's effective content.
func (p *Preview) RenamePath(from, to string) error {
	data, err := p.ReadFile(from)
	if err != nil {
		return err
	}
	p.put(from, overlayEntry{kind: overlayRename, to: to})
	p.put(to, overlayEntry{kind: overlayWrite, data: data})
	return nil
}

// Stat returns a synthetic stat for a pending write, nil for a pending
// delete, and otherwise falls through to the base port.
func (p *Preview) Stat(path string) (*Stat, error) {
	if e, ok := p.overlay[path]; ok {
		switch e.kind {
		case overlayDelete, overlayRename:
			return nil, nil
		case overlayWrite:
			return &Stat{IsFile: true, Size: int64(len(e.data))}, nil
		}
	}
	return p.base.Stat(path)
}

// ListFiles falls through to the base port; overlay entries are not
// reflected in listings until commit.
func (p *Preview) ListFiles(glob string) ([]string, error) {
	return p.base.ListFiles(glob)
}

func (p *Preview) put(path string, e overlayEntry) {
	if _, exists := p.overlay[path]; !exists {
		p.order = append(p.order, path)
	}
	p.overlay[path] = e
}

// Commit applies renames, then writes, then deletes to the base port, in
// that order, per spec §4.F.
func (p *Preview) Commit() error {
	for _, path := range p.order {
		e := p.overlay[path]
		if e.kind != overlayRename {
			continue
		}
		if err := p.base.RenamePath(path, e.to); err != nil {
			return fmt.Errorf("commit rename %s -> %s: %w", path, e.to, err)
		}
	}
	for _, path := range p.order {
		e := p.overlay[path]
		if e.kind != overlayWrite {
			continue
		}
		if err := p.base.WriteFile(path, e.data); err != nil {
			return fmt.Errorf("commit write %s: %w", path, err)
		}
	}
	for _, path := range p.order {
		e := p.overlay[path]
		if e.kind != overlayDelete {
			continue
		}
		if err := p.base.DeletePath(path); err != nil {
			return fmt.Errorf("commit delete %s: %w", path, err)
		}
	}
	p.Discard()
	return nil
}

// Discard drops the overlay without touching the base port.
func (p *Preview) Discard() {
	p.overlay = map[string]overlayEntry{}
	p.order = nil
}
