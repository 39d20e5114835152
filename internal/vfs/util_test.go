package vfs_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/strata-fs/strata/internal/backend/local"
	"github.com/strata-fs/strata/internal/backend/memfs"
	"github.com/strata-fs/strata/internal/vfs"
)

func TestWriteAndReadFile(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()

	if err := vfs.WriteFile(ctx, fs, "docs/readme.txt", strings.NewReader("hello")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := vfs.ReadFile(ctx, fs, "docs/readme.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q, want hello", data)
	}
}

func TestReadFileNotFound(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()

	_, err := vfs.ReadFile(ctx, fs, "missing.txt")
	if !vfs.IsNotFound(err) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCopyFileRepairsParentDir(t *testing.T) {
	ctx := context.Background()
	src := memfs.New()
	writeFile(t, src, "nested/dir/file.txt", "payload")

	dst, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}

	// The local backend refuses writes into missing directories, so
	// this exercises the create-and-retry path.
	if err := vfs.CopyFile(ctx, src, "nested/dir/file.txt", dst, "nested/dir/file.txt"); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}

	data, err := vfs.ReadFile(ctx, dst, "nested/dir/file.txt")
	if err != nil {
		t.Fatalf("ReadFile after copy: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("content = %q, want payload", data)
	}
}

func TestCopyFileSourceMissing(t *testing.T) {
	ctx := context.Background()
	src := memfs.New()
	dst := memfs.New()

	err := vfs.CopyFile(ctx, src, "gone.txt", dst, "gone.txt")
	if !vfs.IsNotFound(err) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMoveFile(t *testing.T) {
	ctx := context.Background()
	fs, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	writeFile(t, fs, "inbox/item.txt", "payload")

	// The target directory does not exist yet; the move creates it.
	if err := vfs.MoveFile(ctx, fs, "inbox/item.txt", "archive/2026/item.txt"); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}

	data, err := vfs.ReadFile(ctx, fs, "archive/2026/item.txt")
	if err != nil {
		t.Fatalf("ReadFile after move: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("content = %q", data)
	}
	if ok, _ := fs.Exists(ctx, "inbox/item.txt"); ok {
		t.Error("source still exists after move")
	}
}

func TestMoveFileSourceMissing(t *testing.T) {
	fs := memfs.New()
	err := vfs.MoveFile(context.Background(), fs, "gone.txt", "elsewhere.txt")
	if !vfs.IsNotFound(err) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCleanupOldFiles(t *testing.T) {
	ctx := context.Background()
	fs, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}

	writeFile(t, fs, "keep/young.txt", "x")
	writeFile(t, fs, "trash/old.txt", "x")

	// Everything was written just now, so a generous cutoff removes
	// nothing and a negative one removes everything under trash.
	removed, err := vfs.CleanupOldFiles(ctx, fs, time.Hour, "trash")
	if err != nil {
		t.Fatalf("CleanupOldFiles: %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("removed %v, want none", removed)
	}

	removed, err = vfs.CleanupOldFiles(ctx, fs, -time.Hour, "trash", "nonexistent")
	if err != nil {
		t.Fatalf("CleanupOldFiles: %v", err)
	}
	if len(removed) != 1 || removed[0] != "trash/old.txt" {
		t.Errorf("removed = %v, want [trash/old.txt]", removed)
	}
	if ok, _ := fs.Exists(ctx, "trash/old.txt"); ok {
		t.Error("old file still exists after cleanup")
	}
	if ok, _ := fs.Exists(ctx, "keep/young.txt"); !ok {
		t.Error("young file was removed")
	}
}
