package pathplan

import (
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"pixelgardenlabs.io/janus/pkg/pathhash"
	"pixelgardenlabs.io/janus/pkg/pathscan"
)

// Op is the tag of the Action sum type. Consumers switch over it
// exhaustively; there is no per-variant polymorphism.
type Op uint8

const (
	OpCreateDir Op = iota
	OpLocalRename
	OpLocalCopy
	OpCopy
	OpOverwrite
	OpUpdateMode
	OpUpdateMtime
	OpCreateSymlink
	OpDelete
)

func (op Op) String() string {
	switch op {
	case OpCreateDir:
		return "MKDIR"
	case OpLocalRename:
		return "RENAME"
	case OpLocalCopy:
		return "DUP"
	case OpCopy:
		return "COPY"
	case OpOverwrite:
		return "OVERWRITE"
	case OpUpdateMode:
		return "CHMOD"
	case OpUpdateMtime:
		return "CHTIMES"
	case OpCreateSymlink:
		return "SYMLINK"
	case OpDelete:
		return "DELETE"
	}
	return "UNKNOWN"
}

// Action is one step of a plan. Which fields are meaningful depends on Op:
//
//	CreateDir      Rel, Mode
//	LocalRename    From (dest path), Rel, Size, Hash
//	LocalCopy      From (dest path), Rel, Size, Hash, Mode, Mtime
//	Copy/Overwrite From (source path, always == Rel), Rel, Size, Hash, Mode, Mtime
//	UpdateMode     Rel, Mode
//	UpdateMtime    Rel, Mtime
//	CreateSymlink  Rel, Target
//	Delete         Rel, Kind
type Action struct {
	Op     Op
	Rel    string
	From   string
	Size   uint64
	Hash   pathhash.Digest
	Mode   fs.FileMode
	Mtime  time.Time
	Target string
	Kind   pathscan.Kind
}

func (a Action) String() string {
	switch a.Op {
	case OpLocalRename, OpLocalCopy:
		return fmt.Sprintf("%s %s -> %s", a.Op, a.From, a.Rel)
	case OpCreateSymlink:
		return fmt.Sprintf("%s %s -> %s", a.Op, a.Rel, a.Target)
	case OpDelete:
		return fmt.Sprintf("%s %s (%s)", a.Op, a.Rel, a.Kind)
	default:
		return fmt.Sprintf("%s %s", a.Op, a.Rel)
	}
}

// TransfersContent reports whether the action moves bytes from the source
// tree into the destination.
func (a Action) TransfersContent() bool {
	return a.Op == OpCopy || a.Op == OpOverwrite
}

// Options are the policy switches of the planner.
type Options struct {
	// Delete removes destination entries that have no source counterpart.
	Delete bool
	// PreserveMode emits metadata fixes for permission drift on files whose
	// content is already in place.
	PreserveMode bool
	// PreserveMtime emits metadata fixes for timestamp drift on files whose
	// content is already in place.
	PreserveMtime bool
}

// Summary aggregates plan counters for display and progress events.
type Summary struct {
	CreateDirs  uint64
	Renames     uint64
	LocalCopies uint64
	Copies      uint64
	Overwrites  uint64
	MetaUpdates uint64
	Symlinks    uint64
	Deletes     uint64

	// BytesToCopy is the transfer volume of all Copy/Overwrite actions.
	BytesToCopy uint64
	// BytesSaved is the volume satisfied from content already present in
	// the destination via renames and local copies.
	BytesSaved uint64
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d to copy (%s), %d renames, %d local copies (%s saved), %d overwrites, %d dirs, %d symlinks, %d meta fixes, %d deletes",
		s.Copies, humanize.IBytes(s.BytesToCopy),
		s.Renames, s.LocalCopies, humanize.IBytes(s.BytesSaved),
		s.Overwrites, s.CreateDirs, s.Symlinks, s.MetaUpdates, s.Deletes)
	return b.String()
}

// Empty reports whether the plan contains no actions at all.
func (s Summary) Empty() bool {
	return s.CreateDirs+s.Renames+s.LocalCopies+s.Copies+s.Overwrites+
		s.MetaUpdates+s.Symlinks+s.Deletes == 0
}

// Plan is the frozen, ordered action sequence produced by Build. It is never
// mutated after emission and is safe to share across goroutines.
type Plan struct {
	Actions []Action
	Summary Summary
	Opts    Options
}
