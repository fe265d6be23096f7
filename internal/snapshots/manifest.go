package snapshots

import (
	"io/fs"
	"path/filepath"
	"sort"
)

// FileRecord is one regular file or symlink of a tree.
type FileRecord struct {
	RelPath string // slash-separated, relative to the tree root
	Size    int64
}

// BuildManifest lists the regular files and symlinks under root, sorted by
// RelPath. Other entry types, such as FIFOs and sockets, are left out as
// CopyTree does not copy them. Any entry that cannot be read fails the
// whole manifest.
func BuildManifest(root string) ([]FileRecord, error) {
	var records []FileRecord
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !copied(d.Type()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		records = append(records, FileRecord{RelPath: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].RelPath < records[j].RelPath
	})
	return records, nil
}

// ManifestsEqual reports whether a and b hold the same paths with the same
// sizes. Both must be sorted.
func ManifestsEqual(a, b []FileRecord) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CompareTrees builds manifests for both trees and compares them.
func CompareTrees(a, b string) (bool, error) {
	ma, err := BuildManifest(a)
	if err != nil {
		return false, err
	}
	mb, err := BuildManifest(b)
	if err != nil {
		return false, err
	}
	return ManifestsEqual(ma, mb), nil
}
