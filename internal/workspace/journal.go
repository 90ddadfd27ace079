package workspace

// opKind distinguishes the mutating operations a Journal records.
type opKind int

const (
	opWrite opKind = iota
	opDelete
	opRename
)

// journalEntry captures enough state to invert one mutation.
type journalEntry struct {
	kind opKind

	// write/delete: the single affected path and its prior bytes.
	path       string
	priorBytes []byte
	priorExist bool

	// rename: both endpoints and their prior bytes.
	from           string
	to             string
	fromPriorBytes []byte
	fromPriorExist bool
	toPriorBytes   []byte
	toPriorExist   bool
}

// Journal wraps a base Port; before each mutation it records the inverse
// so a failed attempt can be unwound via rollback, per spec §4.E.
type Journal struct {
	base    Port
	entries []journalEntry
}

// NewJournal wraps base in a Journal.
func NewJournal(base Port) *Journal {
	return &Journal{base: base}
}

// ReadFile passes through to the base port unmodified.
func (j *Journal) ReadFile(path string) ([]byte, error) {
	return j.base.ReadFile(path)
}

// Stat passes through to the base port unmodified.
func (j *Journal) Stat(path string) (*Stat, error) {
	return j.base.Stat(path)
}

// ListFiles passes through to the base port unmodified.
func (j *Journal) ListFiles(glob string) ([]string, error) {
	return j.base.ListFiles(glob)
}

// WriteFile records the prior bytes at path, then forwards the write.
func (j *Journal) WriteFile(path string, data []byte) error {
	prior, existed := j.snapshot(path)
	if err := j.base.WriteFile(path, data); err != nil {
		return err
	}
	j.entries = append(j.entries, journalEntry{kind: opWrite, path: path, priorBytes: prior, priorExist: existed})
	return nil
}

// DeletePath records the prior bytes at path, then forwards the delete.
func (j *Journal) DeletePath(path string) error {
	prior, existed := j.snapshot(path)
	if err := j.base.DeletePath(path); err != nil {
		return err
	}
	j.entries = append(j.entries, journalEntry{kind: opDelete, path: path, priorBytes: prior, priorExist: existed})
	return nil
}

// RenamePath records the prior bytes at both endpoints, then forwards
// the rename.
func (j *Journal) RenamePath(from, to string) error {
	fromPrior, fromExisted := j.snapshot(from)
	toPrior, toExisted := j.snapshot(to)
	if err := j.base.RenamePath(from, to); err != nil {
		return err
	}
	j.entries = append(j.entries, journalEntry{
		kind:           opRename,
		from:           from,
		to:             to,
		fromPriorBytes: fromPrior,
		fromPriorExist: fromExisted,
		toPriorBytes:   toPrior,
		toPriorExist:   toExisted,
	})
	return nil
}

func (j *Journal) snapshot(path string) ([]byte, bool) {
	data, err := j.base.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Commit discards the journal; the attempt's effects stand.
func (j *Journal) Commit() {
	j.entries = nil
}

// Rollback replays recorded entries in reverse, restoring bytes and
// undoing deletes/renames. Errors during rollback are swallowed so the
// best-effort unwind always completes, per spec §4.E.
func (j *Journal) Rollback() {
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := j.entries[i]
		switch e.kind {
		case opWrite:
			j.restore(e.path, e.priorBytes, e.priorExist)
		case opDelete:
			j.restore(e.path, e.priorBytes, e.priorExist)
		case opRename:
			j.restore(e.from, e.fromPriorBytes, e.fromPriorExist)
			j.restore(e.to, e.toPriorBytes, e.toPriorExist)
		}
	}
	j.entries = nil
}

func (j *Journal) restore(path string, bytes []byte, existed bool) {
	if existed {
		_ = j.base.WriteFile(path, bytes)
		return
	}
	_ = j.base.DeletePath(path)
}
