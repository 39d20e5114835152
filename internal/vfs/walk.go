package vfs

import (
	"context"
	"sort"
)

// WalkNode is the unit produced by a recursive traversal: a normalized
// '/'-separated path, its kind, and its size.
type WalkNode struct {
	Path  string
	IsDir bool
	Size  int64
}

// FileWalker lazily walks a filesystem depth-first, yielding file nodes
// in strictly increasing path order. Each directory's entries are
// sorted before descent, so the stream as a whole is ordered, which the
// sync diff requires.
type FileWalker struct {
	ctx   context.Context
	fs    Filesystem
	stack []*walkFrame
	err   error
}

type walkFrame struct {
	nodes []WalkNode
	idx   int
}

// NewFileWalker returns a walker over fs rooted at root ("" for the
// filesystem root). No I/O happens until the first Next call.
func NewFileWalker(ctx context.Context, fs Filesystem, root string) *FileWalker {
	w := &FileWalker{ctx: ctx, fs: fs}
	w.stack = []*walkFrame{{nodes: []WalkNode{{Path: NormalizePath(root), IsDir: true}}}}
	return w
}

// Next returns the next file node. It returns false when the walk is
// exhausted or an error occurred; check Err afterwards.
func (w *FileWalker) Next() (WalkNode, bool) {
	if w.err != nil {
		return WalkNode{}, false
	}
	for len(w.stack) > 0 {
		frame := w.stack[len(w.stack)-1]
		if frame.idx >= len(frame.nodes) {
			w.stack = w.stack[:len(w.stack)-1]
			continue
		}
		node := frame.nodes[frame.idx]
		frame.idx++
		if !node.IsDir {
			return node, true
		}
		child, err := w.listFrame(node.Path)
		if err != nil {
			w.err = err
			return WalkNode{}, false
		}
		w.stack = append(w.stack, child)
	}
	return WalkNode{}, false
}

// Err returns the first error encountered during the walk.
func (w *FileWalker) Err() error {
	return w.err
}

func (w *FileWalker) listFrame(dir string) (*walkFrame, error) {
	entries, err := w.fs.List(w.ctx, dir)
	if err != nil {
		return nil, err
	}
	nodes := make([]WalkNode, 0, len(entries))
	for _, e := range entries {
		nodes = append(nodes, WalkNode{
			Path:  JoinPath(dir, e.Name),
			IsDir: e.IsDir,
			Size:  e.Size,
		})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Path < nodes[j].Path })
	return &walkFrame{nodes: nodes}, nil
}

// Walk traverses fs depth-first from root, calling fn once per
// directory with its sorted entries. fn returning an error stops the
// walk and propagates the error.
func Walk(ctx context.Context, fs Filesystem, root string, fn func(dir string, entries []Entry) error) error {
	root = NormalizePath(root)
	entries, err := fs.List(ctx, root)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	if err := fn(root, entries); err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir {
			continue
		}
		if err := Walk(ctx, fs, JoinPath(root, e.Name), fn); err != nil {
			return err
		}
	}
	return nil
}
