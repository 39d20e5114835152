package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/strata-fs/strata/internal/backend/local"
	"github.com/strata-fs/strata/internal/backend/memfs"
	"github.com/strata-fs/strata/internal/vfs"
)

// mutationCounter counts writes and removes reaching the wrapped
// filesystem.
type mutationCounter struct {
	vfs.Filesystem
	writes  atomic.Int64
	removes atomic.Int64
}

func (m *mutationCounter) OpenWrite(ctx context.Context, path string, mode vfs.WriteMode) (io.WriteCloser, error) {
	m.writes.Add(1)
	return m.Filesystem.OpenWrite(ctx, path, mode)
}

func (m *mutationCounter) Remove(ctx context.Context, path string) error {
	m.removes.Add(1)
	return m.Filesystem.Remove(ctx, path)
}

// failOpenFS breaks Open for one path.
type failOpenFS struct {
	vfs.Filesystem
	badPath string
}

func (f *failOpenFS) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if path == f.badPath {
		return nil, fmt.Errorf("open %s: %w", path, vfs.ErrInvalid)
	}
	return f.Filesystem.Open(ctx, path)
}

// filesOn walks fs and returns path -> content for every file.
func filesOn(t *testing.T, fs vfs.Filesystem) map[string]string {
	t.Helper()
	ctx := context.Background()
	out := map[string]string{}
	w := vfs.NewFileWalker(ctx, fs, "")
	for {
		node, ok := w.Next()
		if !ok {
			break
		}
		data, err := vfs.ReadFile(ctx, fs, node.Path)
		if err != nil {
			t.Fatalf("read %s: %v", node.Path, err)
		}
		out[node.Path] = string(data)
	}
	if err := w.Err(); err != nil {
		t.Fatalf("walk: %v", err)
	}
	return out
}

func TestSequentialSync(t *testing.T) {
	ctx := context.Background()
	origin := memfs.New()
	target := memfs.New()
	seed(t, origin, map[string]int{
		"a.txt":          3,
		"docs/guide.txt": 8,
		"docs/sub/x.txt": 1,
	})
	seed(t, target, map[string]int{
		"a.txt":     9, // differing size forces a replacement
		"stale.txt": 4,
	})

	s := &Syncer{Origin: origin, Target: target, DeleteMissing: true}
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := filesOn(t, target)
	want := filesOn(t, origin)
	if len(got) != len(want) {
		t.Fatalf("target has %d files %v, want %d", len(got), got, len(want))
	}
	for path, content := range want {
		if got[path] != content {
			t.Errorf("%s = %q, want %q", path, got[path], content)
		}
	}
}

func TestSecondRunIsAllSkips(t *testing.T) {
	ctx := context.Background()
	origin := memfs.New()
	target := &mutationCounter{Filesystem: memfs.New()}
	seed(t, origin, map[string]int{"a.txt": 3, "b/c.txt": 5})

	s := &Syncer{Origin: origin, Target: target, DeleteMissing: true}
	if err := s.Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	target.writes.Store(0)
	target.removes.Store(0)
	if err := s.Run(ctx); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if w := target.writes.Load(); w != 0 {
		t.Errorf("second run wrote %d files, want 0", w)
	}
	if r := target.removes.Load(); r != 0 {
		t.Errorf("second run removed %d files, want 0", r)
	}
}

func TestDeletesAreOptIn(t *testing.T) {
	ctx := context.Background()
	origin := memfs.New()
	target := memfs.New()
	seed(t, origin, map[string]int{"keep.txt": 1})
	seed(t, target, map[string]int{"keep.txt": 1, "extra.txt": 2})

	s := &Syncer{Origin: origin, Target: target}
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ok, _ := target.Exists(ctx, "extra.txt"); !ok {
		t.Error("extra.txt deleted without DeleteMissing")
	}
}

func TestParallelAppliesEachActionOnce(t *testing.T) {
	ctx := context.Background()
	origin := memfs.New()
	sizes := map[string]int{}
	for i := 0; i < 1000; i++ {
		sizes[fmt.Sprintf("bulk/file-%04d.txt", i)] = i%17 + 1
	}
	seed(t, origin, sizes)
	target := &mutationCounter{Filesystem: memfs.New()}

	s := &Syncer{Origin: origin, Target: target, Workers: 4, QueueSize: 16}
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if w := target.writes.Load(); w != 1000 {
		t.Errorf("target saw %d writes, want 1000", w)
	}
	got := filesOn(t, target)
	if len(got) != 1000 {
		t.Errorf("target has %d files, want 1000", len(got))
	}
}

func TestParallelReportsIncompleteAndKeepsGoing(t *testing.T) {
	ctx := context.Background()
	origin := memfs.New()
	sizes := map[string]int{}
	for i := 0; i < 50; i++ {
		sizes[fmt.Sprintf("f-%02d.txt", i)] = 4
	}
	seed(t, origin, sizes)
	badPath := "f-25.txt"
	target := memfs.New()

	s := &Syncer{
		Origin:  &failOpenFS{Filesystem: origin, badPath: badPath},
		Target:  target,
		Workers: 4,
	}
	err := s.Run(ctx)
	if !errors.Is(err, ErrSyncIncomplete) {
		t.Fatalf("Run err = %v, want ErrSyncIncomplete", err)
	}

	got := filesOn(t, target)
	if len(got) != 49 {
		t.Errorf("target has %d files, want 49", len(got))
	}
	if _, present := got[badPath]; present {
		t.Errorf("%s was uploaded despite the failing open", badPath)
	}
}

func TestSequentialStopsOnError(t *testing.T) {
	ctx := context.Background()
	origin := memfs.New()
	seed(t, origin, map[string]int{"bad.txt": 1, "good.txt": 1})

	s := &Syncer{
		Origin: &failOpenFS{Filesystem: origin, badPath: "bad.txt"},
		Target: memfs.New(),
	}
	if err := s.Run(ctx); !errors.Is(err, vfs.ErrInvalid) {
		t.Errorf("Run err = %v, want the per-file error", err)
	}
}

func TestUploadCreatesTargetDirectories(t *testing.T) {
	ctx := context.Background()
	origin := memfs.New()
	seed(t, origin, map[string]int{"a/b/c/deep.txt": 6})

	target, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}

	s := &Syncer{Origin: origin, Target: target}
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, err := vfs.ReadFile(ctx, target, "a/b/c/deep.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) != 6 {
		t.Errorf("size = %d", len(data))
	}
}

func TestDanglingSymlinkIsSkipped(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	origin, err := local.New(root)
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	seed(t, origin, map[string]int{"real.txt": 3})
	if err := os.Symlink(filepath.Join(root, "missing"), filepath.Join(root, "dangling.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	target := memfs.New()
	s := &Syncer{Origin: origin, Target: target}
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if ok, _ := target.Exists(ctx, "real.txt"); !ok {
		t.Error("real.txt not synced")
	}
	if ok, _ := target.Exists(ctx, "dangling.txt"); ok {
		t.Error("dangling symlink was uploaded")
	}
}

func TestDeleteOfAlreadyMissingFileSucceeds(t *testing.T) {
	s := &Syncer{Origin: memfs.New(), Target: memfs.New()}
	if err := s.apply(context.Background(), Action{Op: OpDelete, Path: "gone.txt"}); err != nil {
		t.Errorf("apply delete of missing file: %v", err)
	}
}
