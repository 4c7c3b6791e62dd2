// Package pathplan turns two frozen inventories into an ordered mutation
// plan. Build is pure: it performs no I/O and, given identical inventories
// and options, returns identical output.
package pathplan

import (
	"fmt"
	"sort"

	"pixelgardenlabs.io/janus/pkg/pathhash"
	"pixelgardenlabs.io/janus/pkg/pathscan"
)

// donor classes, in selection preference order. A lower class wins; ties are
// broken by the lexicographically smallest path.
const (
	donorVacant  = iota // dest path with no regular source counterpart: free to rename away
	donorDoomed         // dest path whose own content is being replaced: also free to rename away
	donorSettled        // dest path that keeps its content: may only be duplicated
	donorBlocked        // dest path cleared before renames run: not usable
)

// Build computes the action sequence that brings the destination tree in
// line with the source tree under the given options.
//
// The emitted plan is phase-ordered: directory creations, then renames
// (dependency-ordered, with cycle-breaking temp copies inline), then local
// copies, then copies/overwrites, then metadata fixes, then symlinks, then
// deletes (files before directories, children before parents).
func Build(src, dst *pathscan.Inventory, opts Options) *Plan {
	assertSorted(src)
	assertSorted(dst)

	srcByPath := indexByPath(src)
	dstByPath := indexByPath(dst)
	idx := BuildContentIndex(dst)

	// landed records destination paths that receive their final content via
	// a rename or local copy planned earlier in this run, mapped to that
	// content's digest. For that digest they are settled donors; any older
	// index entry they carry is only usable by a rename, which the
	// dependency graph orders before the new content arrives.
	landed := make(map[string]pathhash.Digest)
	// consumed marks destination paths whose file has been renamed away.
	consumed := make(map[string]bool)

	var createDirs, renames, localCopies, copies, metaFixes, symlinks []Action

	classify := func(p string, want pathhash.Digest) int {
		if lh, ok := landed[p]; ok {
			if lh == want {
				return donorSettled
			}
			return donorDoomed
		}
		d := dstByPath[p]
		s, ok := srcByPath[p]
		if !ok {
			return donorVacant
		}
		if s.Kind == pathscan.KindDir {
			// The path becomes a directory; the executor clears the file
			// during directory creation, before any rename could read it.
			return donorBlocked
		}
		if s.Kind != pathscan.KindRegular {
			return donorVacant
		}
		if s.HashValid && d.HashValid && s.Hash == d.Hash {
			return donorSettled
		}
		return donorDoomed
	}

	// selectDonor picks the best remaining holder of e's content, preferring
	// donors that can be renamed away without duplication. Consumed donors
	// are already gone from the index.
	selectDonor := func(e *pathscan.FileMeta) (string, int) {
		best := ""
		bestClass := donorBlocked // sentinel: no usable donor
		for _, p := range idx.Lookup(e.Hash) {
			if p == e.RelPath {
				continue
			}
			c := classify(p, e.Hash)
			if c < bestClass || (c == bestClass && c < donorBlocked && p < best) {
				best, bestClass = p, c
			}
		}
		return best, bestClass
	}

	appendMetaFixes := func(e *pathscan.FileMeta, current *pathscan.FileMeta) {
		if opts.PreserveMode && current.Mode.Perm() != e.Mode.Perm() {
			metaFixes = append(metaFixes, Action{Op: OpUpdateMode, Rel: e.RelPath, Mode: e.Mode.Perm()})
		}
		if opts.PreserveMtime && !current.Mtime.Equal(e.Mtime) {
			metaFixes = append(metaFixes, Action{Op: OpUpdateMtime, Rel: e.RelPath, Mtime: e.Mtime})
		}
	}

	for i := range src.Entries {
		e := &src.Entries[i]
		d, inDst := dstByPath[e.RelPath]

		switch e.Kind {
		case pathscan.KindDir:
			if !inDst || d.Kind != pathscan.KindDir {
				createDirs = append(createDirs, Action{Op: OpCreateDir, Rel: e.RelPath, Mode: e.Mode.Perm()})
			} else if opts.PreserveMode && d.Mode.Perm() != e.Mode.Perm() {
				metaFixes = append(metaFixes, Action{Op: OpUpdateMode, Rel: e.RelPath, Mode: e.Mode.Perm()})
			}

		case pathscan.KindSymlink:
			if !inDst || d.Kind != pathscan.KindSymlink || d.LinkTarget != e.LinkTarget {
				symlinks = append(symlinks, Action{Op: OpCreateSymlink, Rel: e.RelPath, Target: e.LinkTarget})
			}

		case pathscan.KindRegular:
			if !e.HashValid {
				// The scanner omits entries it failed to hash; an unhashed
				// entry reaching the planner has nothing actionable.
				continue
			}
			if inDst && d.Kind == pathscan.KindRegular && d.HashValid && d.Hash == e.Hash {
				appendMetaFixes(e, d)
				continue
			}

			// Content is needed at e.RelPath. Prefer relocating existing
			// destination content over transferring from the source.
			donor, class := selectDonor(e)
			switch {
			case donor == "":
				op := OpCopy
				if inDst && d.Kind == pathscan.KindRegular {
					op = OpOverwrite
				}
				copies = append(copies, Action{
					Op: op, Rel: e.RelPath, From: e.RelPath,
					Size: e.Size, Hash: e.Hash, Mode: e.Mode, Mtime: e.Mtime,
				})

			case class == donorSettled:
				localCopies = append(localCopies, Action{
					Op: OpLocalCopy, Rel: e.RelPath, From: donor,
					Size: e.Size, Hash: e.Hash, Mode: e.Mode, Mtime: e.Mtime,
				})
				idx.Add(e.Hash, e.RelPath)
				landed[e.RelPath] = e.Hash

			default: // donorVacant or donorDoomed: rename, consuming the donor
				renames = append(renames, Action{
					Op: OpLocalRename, Rel: e.RelPath, From: donor,
					Size: e.Size, Hash: e.Hash,
				})
				consumed[donor] = true
				idx.Remove(e.Hash, donor)
				idx.Add(e.Hash, e.RelPath)
				landed[e.RelPath] = e.Hash
				appendMetaFixes(e, dstByPath[donor])
			}
		}
	}

	// Deletions: everything in the destination with no source counterpart,
	// except files already renamed away. Files go before directories and
	// both are reverse-sorted so children precede parents.
	var fileDeletes, dirDeletes []Action
	if opts.Delete {
		for i := range dst.Entries {
			d := &dst.Entries[i]
			if consumed[d.RelPath] {
				continue
			}
			if _, inSrc := srcByPath[d.RelPath]; inSrc {
				// Kind conflicts at a shared path are resolved by the
				// executor when it materializes the source-side entry.
				continue
			}
			if d.Kind == pathscan.KindDir {
				dirDeletes = append(dirDeletes, Action{Op: OpDelete, Rel: d.RelPath, Kind: d.Kind})
			} else {
				fileDeletes = append(fileDeletes, Action{Op: OpDelete, Rel: d.RelPath, Kind: d.Kind})
			}
		}
		sortReverseByRel(fileDeletes)
		sortReverseByRel(dirDeletes)
	}

	orderedRenames := orderRenames(renames)

	actions := make([]Action, 0,
		len(createDirs)+len(orderedRenames)+len(localCopies)+len(copies)+
			len(metaFixes)+len(symlinks)+len(fileDeletes)+len(dirDeletes))
	actions = append(actions, createDirs...)
	actions = append(actions, orderedRenames...)
	actions = append(actions, localCopies...)
	actions = append(actions, copies...)
	actions = append(actions, metaFixes...)
	actions = append(actions, symlinks...)
	actions = append(actions, fileDeletes...)
	actions = append(actions, dirDeletes...)

	return &Plan{
		Actions: actions,
		Summary: summarize(actions),
		Opts:    opts,
	}
}

func summarize(actions []Action) Summary {
	var s Summary
	for _, a := range actions {
		switch a.Op {
		case OpCreateDir:
			s.CreateDirs++
		case OpLocalRename:
			s.Renames++
			s.BytesSaved += a.Size
		case OpLocalCopy:
			s.LocalCopies++
			if !isCycleTemp(a.Rel) {
				s.BytesSaved += a.Size
			}
		case OpCopy:
			s.Copies++
			s.BytesToCopy += a.Size
		case OpOverwrite:
			s.Overwrites++
			s.BytesToCopy += a.Size
		case OpUpdateMode, OpUpdateMtime:
			s.MetaUpdates++
		case OpCreateSymlink:
			s.Symlinks++
		case OpDelete:
			s.Deletes++
		}
	}
	return s
}

func indexByPath(inv *pathscan.Inventory) map[string]*pathscan.FileMeta {
	m := make(map[string]*pathscan.FileMeta, len(inv.Entries))
	for i := range inv.Entries {
		m[inv.Entries[i].RelPath] = &inv.Entries[i]
	}
	return m
}

func sortReverseByRel(actions []Action) {
	sort.Slice(actions, func(i, j int) bool {
		return actions[i].Rel > actions[j].Rel
	})
}

// assertSorted enforces the frozen-inventory contract. A violation is a
// programmer error, not a user-facing condition.
func assertSorted(inv *pathscan.Inventory) {
	for i := 1; i < len(inv.Entries); i++ {
		if inv.Entries[i-1].RelPath >= inv.Entries[i].RelPath {
			panic(fmt.Sprintf("inventory for %s is not sorted: %q >= %q",
				inv.Root, inv.Entries[i-1].RelPath, inv.Entries[i].RelPath))
		}
	}
}
