package library

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/climp-core/climp/internal/media"
)

// Scan walks root from disk and builds a fresh Library. Only directories
// and files with a supported media extension are included; the tree is
// built once and then mutated only by explicit update operations.
func Scan(root string) (*Library, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	l := New(filepath.Base(root))
	if !info.IsDir() {
		return l, nil
	}
	if err := scanDir(l, 0, root); err != nil {
		return nil, err
	}
	return l, nil
}

func scanDir(l *Library, parentID int32, path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, de := range entries {
		name := de.Name()
		if de.IsDir() {
			childID, err := l.AddChild(parentID, name, true)
			if err != nil {
				return err
			}
			if err := scanDir(l, childID, filepath.Join(path, name)); err != nil {
				return err
			}
			continue
		}
		if !media.IsSupportedExt(filepath.Ext(name)) {
			continue
		}
		if _, err := l.AddChild(parentID, name, false); err != nil {
			return err
		}
	}
	return nil
}
