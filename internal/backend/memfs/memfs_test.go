package memfs

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/strata-fs/strata/internal/vfs"
)

func TestRoundtrip(t *testing.T) {
	ctx := context.Background()
	b := New()

	if err := vfs.WriteFile(ctx, b, "a/b/c.txt", strings.NewReader("hello")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r, err := b.Open(ctx, "a/b/c.txt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(r)
	r.Close()
	if string(data) != "hello" {
		t.Errorf("content = %q", data)
	}

	info, err := b.Info(ctx, "a/b/c.txt")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Size != 5 {
		t.Errorf("size = %d, want 5", info.Size)
	}
}

func TestInstancesAreIsolated(t *testing.T) {
	ctx := context.Background()
	b1 := New()
	b2 := New()

	if err := vfs.WriteFile(ctx, b1, "only-in-b1.txt", strings.NewReader("x")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if ok, _ := b2.Exists(ctx, "only-in-b1.txt"); ok {
		t.Error("instances share state")
	}
}

func TestAppend(t *testing.T) {
	ctx := context.Background()
	b := New()
	if err := vfs.WriteFile(ctx, b, "log.txt", strings.NewReader("one")); err != nil {
		t.Fatal(err)
	}
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

func TestRemoveNotFound(t *testing.T) {
	b := New()
	if err := b.Remove(context.Background(), "missing"); !vfs.IsNotFound(err) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListAndKinds(t *testing.T) {
	ctx := context.Background()
	b := New()
	if err := vfs.WriteFile(ctx, b, "dir/a.txt", strings.NewReader("abc")); err != nil {
		t.Fatal(err)
	}
	if err := b.MakeDir(ctx, "dir/sub", true, true); err != nil {
		t.Fatalf("MakeDir: %v", err)
	}

	entries, err := b.List(ctx, "dir")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	byName := map[string]vfs.Entry{}
	for _, e := range entries {
		byName[e.Name] = e
	}
	if e, ok := byName["a.txt"]; !ok || e.IsDir || e.Size != 3 {
		t.Errorf("a.txt entry = %+v", e)
	}
	if e, ok := byName["sub"]; !ok || !e.IsDir {
		t.Errorf("sub entry = %+v", e)
	}
}
