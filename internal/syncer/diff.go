// Package syncer reconciles two filesystems: it diffs their sorted
// file listings with a two-pointer merge and applies the resulting
// actions to the target, sequentially or on a worker pool.
package syncer

import (
	"github.com/strata-fs/strata/internal/vfs"
)

// ActionOp is the kind of a sync action.
type ActionOp string

const (
	// OpUpload copies a file from origin to target.
	OpUpload ActionOp = "upload"
	// OpDelete removes a target-only file.
	OpDelete ActionOp = "delete"
	// OpSkip leaves a file untouched.
	OpSkip ActionOp = "skip"
)

// Action is one unit of sync work.
type Action struct {
	Op   ActionOp
	Path string
}

// Diff streams the actions that make target's file set match origin's.
// Both walkers must yield file nodes in strictly increasing path order;
// the merge is undefined otherwise. Each path yields at most one
// action, so actions for different paths are safe to execute
// concurrently.
type Diff struct {
	origin *vfs.FileWalker
	target *vfs.FileWalker

	onode vfs.WalkNode
	tnode vfs.WalkNode
	ook   bool
	took  bool

	started bool
	err     error
}

// NewDiff creates a diff over two sorted file streams.
func NewDiff(origin, target *vfs.FileWalker) *Diff {
	return &Diff{origin: origin, target: target}
}

func (d *Diff) advanceOrigin() {
	d.onode, d.ook = d.origin.Next()
	if !d.ook && d.origin.Err() != nil {
		d.err = d.origin.Err()
	}
}

func (d *Diff) advanceTarget() {
	d.tnode, d.took = d.target.Next()
	if !d.took && d.target.Err() != nil {
		d.err = d.target.Err()
	}
}

// Next returns the next action. It returns false when both streams are
// exhausted or a walk failed; check Err afterwards.
func (d *Diff) Next() (Action, bool) {
	if !d.started {
		d.started = true
		d.advanceOrigin()
		d.advanceTarget()
	}
	if d.err != nil {
		return Action{}, false
	}

	switch {
	case !d.ook && !d.took:
		return Action{}, false

	case !d.ook:
		// Origin exhausted: every remaining target file has no origin
		// counterpart.
		action := Action{Op: OpDelete, Path: d.tnode.Path}
		d.advanceTarget()
		return action, true

	case !d.took:
		// Target exhausted: every remaining origin file is missing on
		// the target.
		action := Action{Op: OpUpload, Path: d.onode.Path}
		d.advanceOrigin()
		return action, true

	case d.onode.Path == d.tnode.Path:
		// Same path on both sides. Equal sizes are assumed to mean
		// equal content; differing sizes force a replacement.
		op := OpSkip
		if d.onode.Size != d.tnode.Size {
			op = OpUpload
		}
		action := Action{Op: op, Path: d.onode.Path}
		d.advanceOrigin()
		d.advanceTarget()
		return action, true

	case d.onode.Path > d.tnode.Path:
		// The target file does not exist on the origin.
		action := Action{Op: OpDelete, Path: d.tnode.Path}
		d.advanceTarget()
		return action, true

	default:
		// The origin file does not exist on the target.
		action := Action{Op: OpUpload, Path: d.onode.Path}
		d.advanceOrigin()
		return action, true
	}
}

// Err returns the first walk error encountered while diffing.
func (d *Diff) Err() error {
	return d.err
}
