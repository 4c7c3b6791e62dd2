package pathplan

import (
	"sort"

	"pixelgardenlabs.io/janus/pkg/pathhash"
	"pixelgardenlabs.io/janus/pkg/pathscan"
)

// ContentIndex maps a content digest to the destination paths currently
// holding that content. It is a view over Inventory_D, consumed and amended
// by the planner as it relocates content.
type ContentIndex map[pathhash.Digest][]string

// BuildContentIndex indexes every hashed regular entry of the destination
// inventory. Path lists are kept sorted so donor selection is deterministic.
func BuildContentIndex(dst *pathscan.Inventory) ContentIndex {
	idx := make(ContentIndex)
	// Inventory entries are sorted by path, so appends preserve order.
	for i := range dst.Entries {
		e := &dst.Entries[i]
		if e.Kind != pathscan.KindRegular || !e.HashValid {
			continue
		}
		idx[e.Hash] = append(idx[e.Hash], e.RelPath)
	}
	return idx
}

// Lookup returns the donor candidates for a digest.
func (idx ContentIndex) Lookup(h pathhash.Digest) []string {
	return idx[h]
}

// Remove drops one path from a digest's donor list.
func (idx ContentIndex) Remove(h pathhash.Digest, relPath string) {
	paths := idx[h]
	for i, p := range paths {
		if p == relPath {
			paths = append(paths[:i], paths[i+1:]...)
			break
		}
	}
	if len(paths) == 0 {
		delete(idx, h)
	} else {
		idx[h] = paths
	}
}

// Add inserts a path into a digest's donor list, keeping it sorted.
func (idx ContentIndex) Add(h pathhash.Digest, relPath string) {
	paths := idx[h]
	i := sort.SearchStrings(paths, relPath)
	if i < len(paths) && paths[i] == relPath {
		return
	}
	paths = append(paths, "")
	copy(paths[i+1:], paths[i:])
	paths[i] = relPath
	idx[h] = paths
}
