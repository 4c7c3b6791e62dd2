package pathscan

import (
	"io/fs"
	"sort"
	"time"

	"pixelgardenlabs.io/janus/pkg/pathhash"
)

// Kind classifies an inventory entry. Only regular files carry a content
// digest; symlinks carry their target string; directories carry no payload.
type Kind uint8

const (
	KindRegular Kind = iota
	KindSymlink
	KindDir
)

func (k Kind) String() string {
	switch k {
	case KindRegular:
		return "file"
	case KindSymlink:
		return "symlink"
	case KindDir:
		return "dir"
	}
	return "unknown"
}

// FileMeta is the inventory entry for one filesystem object.
type FileMeta struct {
	// RelPath is the canonical forward-slash key relative to the tree root.
	// It never contains "." or ".." components and is compared byte-wise.
	RelPath string
	Size    uint64
	Mtime   time.Time
	Mode    fs.FileMode
	Kind    Kind

	// LinkTarget is set for KindSymlink entries only.
	LinkTarget string

	// Hash is set for KindRegular entries once hashing completes.
	Hash      pathhash.Digest
	HashValid bool
}

// Inventory is the frozen, sorted file set of one tree. Entries are ordered
// ascending by RelPath under byte-wise comparison. After Scan returns, an
// Inventory is immutable and safe to read from many goroutines.
type Inventory struct {
	Root    string
	Entries []FileMeta
}

// Lookup finds the entry at relPath via binary search.
func (inv *Inventory) Lookup(relPath string) (*FileMeta, bool) {
	i := sort.Search(len(inv.Entries), func(i int) bool {
		return inv.Entries[i].RelPath >= relPath
	})
	if i < len(inv.Entries) && inv.Entries[i].RelPath == relPath {
		return &inv.Entries[i], true
	}
	return nil, false
}

// TotalBytes sums the sizes of all regular entries.
func (inv *Inventory) TotalBytes() uint64 {
	var total uint64
	for i := range inv.Entries {
		if inv.Entries[i].Kind == KindRegular {
			total += inv.Entries[i].Size
		}
	}
	return total
}

// Len returns the number of entries.
func (inv *Inventory) Len() int {
	return len(inv.Entries)
}
