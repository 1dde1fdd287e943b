// Package library implements the on-disk media tree: a directory/file
// hierarchy cached as a tab-separated index for fast reload, with an
// is_enqueued flag propagated up to ancestors as files are queued.
package library

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// noParent marks the root entry's ParentID in the cache format.
const noParent = -1

// LibraryEntry is one node of the media tree. Nodes are addressed by their
// index into Library.entries (an arena), never by pointer, so the tree has
// no cycle-prone parent/child pointers to reason about.
type LibraryEntry struct {
	ID          int32
	Name        string
	IsDirectory bool
	IsEnqueued  bool

	ParentID    int32 // noParent for the root
	ChildIDs    []int32
}

// Library is an arena of LibraryEntry, indexed by ID. ID 0 is always the
// root.
type Library struct {
	entries []LibraryEntry
}

// New returns a library containing only a root directory entry.
func New(rootName string) *Library {
	return &Library{entries: []LibraryEntry{
		{ID: 0, Name: rootName, IsDirectory: true, ParentID: noParent},
	}}
}

func (l *Library) Entry(id int32) (*LibraryEntry, bool) {
	if id < 0 || int(id) >= len(l.entries) {
		return nil, false
	}
	return &l.entries[id], true
}

func (l *Library) Root() *LibraryEntry {
	return &l.entries[0]
}

// AddChild appends a new entry under parentID and returns its id.
func (l *Library) AddChild(parentID int32, name string, isDirectory bool) (int32, error) {
	parent, ok := l.Entry(parentID)
	if !ok || !parent.IsDirectory {
		return 0, fmt.Errorf("library: parent %d is not a directory", parentID)
	}
	id := int32(len(l.entries))
	l.entries = append(l.entries, LibraryEntry{
		ID: id, Name: name, IsDirectory: isDirectory, ParentID: parentID,
	})
	// Re-fetch: append may have reallocated the backing array, invalidating
	// the parent pointer obtained above.
	parent = &l.entries[parentID]
	parent.ChildIDs = append(parent.ChildIDs, id)
	return id, nil
}

// FullPath concatenates ancestor names with "/", root excluded from the
// leading separator.
func (l *Library) FullPath(id int32) string {
	var parts []string
	for cur, ok := l.Entry(id); ok; cur, ok = l.Entry(cur.ParentID) {
		if cur.ParentID == noParent {
			break
		}
		parts = append([]string{cur.Name}, parts...)
	}
	return strings.Join(parts, "/")
}

// SetEnqueued marks a file entry's IsEnqueued flag and propagates the
// invariant up the ancestor chain: a directory's IsEnqueued is true iff any
// descendant file is enqueued. Unsetting a file re-derives every ancestor's
// flag from its remaining children, since another descendant might still
// justify it.
func (l *Library) SetEnqueued(id int32, enqueued bool) error {
	entry, ok := l.Entry(id)
	if !ok {
		return fmt.Errorf("library: unknown entry %d", id)
	}
	if entry.IsDirectory {
		return fmt.Errorf("library: SetEnqueued only applies to files")
	}
	entry.IsEnqueued = enqueued

	for parentID := entry.ParentID; parentID != noParent; {
		parent, ok := l.Entry(parentID)
		if !ok {
			break
		}
		parent.IsEnqueued = l.anyDescendantEnqueued(parent.ID)
		parentID = parent.ParentID
	}
	return nil
}

func (l *Library) anyDescendantEnqueued(id int32) bool {
	entry, ok := l.Entry(id)
	if !ok {
		return false
	}
	if !entry.IsDirectory {
		return entry.IsEnqueued
	}
	for _, childID := range entry.ChildIDs {
		if l.anyDescendantEnqueued(childID) {
			return true
		}
	}
	return false
}

// Serialize writes the tab-separated cache format: id\tname\tis_directory(0|1)\tparent_id,
// one record per line. Order is irrelevant since parent links resolve by id.
func Serialize(l *Library, w *bufio.Writer) error {
	for _, e := range l.entries {
		dirFlag := 0
		if e.IsDirectory {
			dirFlag = 1
		}
		if strings.ContainsAny(e.Name, "\t\n") {
			return fmt.Errorf("library: entry name %q contains a tab or newline", e.Name)
		}
		if _, err := fmt.Fprintf(w, "%d\t%s\t%d\t%d\n", e.ID, e.Name, dirFlag, e.ParentID); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Deserialize rebuilds a Library from the tab-separated cache format written
// by Serialize. Entries may appear in any order; children are linked to
// parents by id once every record has been read.
func Deserialize(r *bufio.Reader) (*Library, error) {
	type rawEntry struct {
		id, parentID int32
		name         string
		isDirectory  bool
	}
	var raw []rawEntry

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			return nil, fmt.Errorf("library: malformed record %q", line)
		}
		id, err := strconv.ParseInt(fields[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("library: bad id in %q: %w", line, err)
		}
		dirFlag, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("library: bad is_directory in %q: %w", line, err)
		}
		parentID, err := strconv.ParseInt(fields[3], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("library: bad parent_id in %q: %w", line, err)
		}
		raw = append(raw, rawEntry{id: int32(id), name: fields[1], isDirectory: dirFlag != 0, parentID: int32(parentID)})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	maxID := int32(-1)
	for _, e := range raw {
		if e.id > maxID {
			maxID = e.id
		}
	}
	l := &Library{entries: make([]LibraryEntry, maxID+1)}
	for _, e := range raw {
		l.entries[e.id] = LibraryEntry{ID: e.id, Name: e.name, IsDirectory: e.isDirectory, ParentID: e.parentID}
	}
	for _, e := range raw {
		if e.parentID == noParent {
			continue
		}
		parent := &l.entries[e.parentID]
		parent.ChildIDs = append(parent.ChildIDs, e.id)
	}

	// is_enqueued is left false everywhere: the cache format does not
	// persist it, so a reload starts with nothing enqueued, as a fresh
	// scan does.
	return l, nil
}
