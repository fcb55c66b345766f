package stackfs

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"
)

// TestAferoBranchLookup tests resolution over afero memory filesystems
func TestAferoBranchLookup(t *testing.T) {
	upper := afero.NewMemMapFs()
	lower := afero.NewMemMapFs()

	if err := afero.WriteFile(lower, "/srv/index.html", []byte("lower"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := afero.WriteFile(upper, "/srv/index.html", []byte("upper!"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := afero.WriteFile(lower, "/srv/style.css", []byte("body{}"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fs := newTestFS(t, []Branch{NewAferoBranch(upper), NewAferoBranch(lower)})
	ctx := context.Background()

	srv := mustLookup(t, fs, fs.Root(), "srv", IntentNone)
	defer srv.Release()

	index := mustLookup(t, fs, srv, "index.html", IntentNone)
	if index == nil {
		t.Fatal("expected index.html")
	}
	defer index.Release()
	if index.Inode().Attr().Size != int64(len("upper!")) {
		t.Errorf("size = %d, want the upper copy", index.Inode().Attr().Size)
	}

	// srv was found on the upper branch, which hides the lower srv
	style, err := fs.Lookup(ctx, srv, "style.css", IntentNone)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if style != nil {
		style.Release()
		t.Error("lower entries under an upper directory are not merged")
	}
}

// TestAferoBranchRefreshesDirAtime tests that a lookup reads the searched
// directory's current access time, not the one seen when it was looked up
func TestAferoBranchRefreshesDirAtime(t *testing.T) {
	mfs := afero.NewMemMapFs()
	for _, name := range []string{"/var/a", "/var/b"} {
		if err := afero.WriteFile(mfs, name, []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	fs := newTestFS(t, []Branch{NewAferoBranch(mfs)})

	dir := mustLookup(t, fs, fs.Root(), "var", IntentNone)
	defer dir.Release()

	later := time.Unix(1767225600, 0)
	if err := mfs.Chtimes("/var", later, later); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	a := mustLookup(t, fs, dir, "a", IntentNone)
	if a == nil {
		t.Fatal("expected a")
	}
	defer a.Release()

	if got := dir.Inode().Attr().Atime; !got.Equal(later) {
		t.Errorf("parent atime = %v, want %v", got, later)
	}
	p, _ := dir.LowerPath(0)
	if got := p.Dentry.Inode().Attr().Atime; !got.Equal(later) {
		t.Errorf("lower directory atime = %v, want %v", got, later)
	}
}

// TestAferoBranchReadOnlyLower tests a read-only afero branch
func TestAferoBranchReadOnlyLower(t *testing.T) {
	base := afero.NewMemMapFs()
	if err := afero.WriteFile(base, "/bin/sh", []byte("#!"), 0755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fs := newTestFS(t, []Branch{
		NewAferoBranch(afero.NewMemMapFs()),
		NewAferoBranch(afero.NewReadOnlyFs(base)),
	})

	d, err := fs.Resolve(context.Background(), "/bin/sh", IntentNone)
	if err != nil || d == nil {
		t.Fatalf("Resolve = %v, %v", d, err)
	}
	defer d.Release()
	if d.Inode().Attr().Mode.Perm() != 0755 {
		t.Errorf("mode = %v", d.Inode().Attr().Mode)
	}
}

// TestAferoBranchForeignObject tests lookups with another branch's object
func TestAferoBranchForeignObject(t *testing.T) {
	b := NewAferoBranch(afero.NewMemMapFs())
	_, err := b.Lookup(context.Background(), &fakeNode{}, "x")
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("Lookup = %v, want ErrInvalidState", err)
	}
}

// TestAferoBranchCancelled tests that a cancelled context aborts the lookup
func TestAferoBranchCancelled(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := fsys.MkdirAll("/d", os.ModePerm); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	fs := newTestFS(t, []Branch{NewAferoBranch(fsys)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fs.Lookup(ctx, fs.Root(), "d", IntentNone)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Lookup = %v, want context.Canceled", err)
	}
}
