package local

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/strata-fs/strata/internal/vfs"
)

func newBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func write(t *testing.T, b *Backend, path, content string) {
	t.Helper()
	ctx := context.Background()
	if err := b.MakeDir(ctx, vfs.ParentDir(path), true, true); err != nil {
		t.Fatalf("MakeDir: %v", err)
	}
	w, err := b.OpenWrite(ctx, path, vfs.WriteTruncate)
	if err != nil {
		t.Fatalf("OpenWrite %s: %v", path, err)
	}
	if _, err := io.WriteString(w, content); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
}

func TestRoundtrip(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	write(t, b, "dir/file.txt", "content")

	r, err := b.Open(ctx, "dir/file.txt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "content" {
		t.Errorf("content = %q", data)
	}

	info, err := b.Info(ctx, "dir/file.txt")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Size != int64(len("content")) {
		t.Errorf("size = %d", info.Size)
	}
	if info.ModTime.IsZero() {
		t.Error("zero modified time")
	}
}

func TestOpenNotFound(t *testing.T) {
	b := newBackend(t)
	_, err := b.Open(context.Background(), "missing.txt")
	if !vfs.IsNotFound(err) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestOpenDirectoryIsInvalid(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	if err := b.MakeDir(ctx, "somedir", false, false); err != nil {
		t.Fatalf("MakeDir: %v", err)
	}
	_, err := b.Open(ctx, "somedir")
	if !errors.Is(err, vfs.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestOpenWriteMissingParent(t *testing.T) {
	b := newBackend(t)
	_, err := b.OpenWrite(context.Background(), "no/such/dir/file.txt", vfs.WriteTruncate)
	if !errors.Is(err, vfs.ErrParentDirMissing) {
		t.Errorf("err = %v, want ErrParentDirMissing", err)
	}
}

func TestTruncateWriteIsAtomic(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	write(t, b, "file.txt", "old")

	w, err := b.OpenWrite(ctx, "file.txt", vfs.WriteTruncate)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	io.WriteString(w, "new content")

	// Until Close, readers still see the old version.
	data, err := vfs.ReadFile(ctx, b, "file.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "old" {
		t.Errorf("mid-write content = %q, want old", data)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, _ = vfs.ReadFile(ctx, b, "file.txt")
	if string(data) != "new content" {
		t.Errorf("post-close content = %q", data)
	}
}

func TestAppend(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	write(t, b, "log.txt", "one")

	w, err := b.OpenWrite(ctx, "log.txt", vfs.WriteAppend)
	if err != nil {
		t.Fatalf("OpenWrite append: %v", err)
	}
	io.WriteString(w, "+two")
	w.Close()

	data, _ := vfs.ReadFile(ctx, b, "log.txt")
	if string(data) != "one+two" {
		t.Errorf("content = %q", data)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	write(t, b, "file.txt", "x")

	if err := b.Remove(ctx, "file.txt"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := b.Remove(ctx, "file.txt"); !vfs.IsNotFound(err) {
		t.Errorf("second Remove err = %v, want ErrNotFound", err)
	}
}

func TestExistsIsDirIsFile(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	write(t, b, "d/f.txt", "x")

	checks := []struct {
		fn   func(context.Context, string) (bool, error)
		path string
		want bool
	}{
		{b.Exists, "d", true},
		{b.Exists, "d/f.txt", true},
		{b.Exists, "nope", false},
		{b.IsDir, "d", true},
		{b.IsDir, "d/f.txt", false},
		{b.IsFile, "d/f.txt", true},
		{b.IsFile, "d", false},
	}
	for i, c := range checks {
		got, err := c.fn(ctx, c.path)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if got != c.want {
			t.Errorf("check %d (%s): got %v, want %v", i, c.path, got, c.want)
		}
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	write(t, b, "dir/a.txt", "aa")
	if err := b.MakeDir(ctx, "dir/sub", false, false); err != nil {
		t.Fatalf("MakeDir: %v", err)
	}

	entries, err := b.List(ctx, "dir")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	_, err = b.List(ctx, "missing")
	if !vfs.IsNotFound(err) {
		t.Errorf("List missing dir err = %v, want ErrNotFound", err)
	}
}

func TestMakeDirSemantics(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)

	if err := b.MakeDir(ctx, "a", false, false); err != nil {
		t.Fatalf("MakeDir: %v", err)
	}
	if err := b.MakeDir(ctx, "a", false, false); err == nil {
		t.Error("recreate without allowRecreate should fail")
	}
	if err := b.MakeDir(ctx, "a", false, true); err != nil {
		t.Errorf("recreate with allowRecreate: %v", err)
	}
	if err := b.MakeDir(ctx, "x/y/z", true, true); err != nil {
		t.Errorf("recursive MakeDir: %v", err)
	}
}

func TestSysPath(t *testing.T) {
	root := t.TempDir()
	b, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sys, ok := b.SysPath("a/b.txt")
	if !ok {
		t.Fatal("SysPath not supported")
	}
	want := filepath.Join(root, "a", "b.txt")
	if sys != want {
		t.Errorf("SysPath = %q, want %q", sys, want)
	}
}

func TestNewRejectsFileRoot(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "afile")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(file); err == nil {
		t.Error("New on a regular file should fail")
	}
}
