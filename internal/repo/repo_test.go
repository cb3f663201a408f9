package repo

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rsahwe/evs/internal/evserr"
)

func TestCreateInitializesNullAndEmptyTree(t *testing.T) {
	dir := t.TempDir()
	r, err := Create(dir, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer r.Close()

	entries, err := os.ReadDir(filepath.Join(r.RepoDir(), storeName))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("store has %d entries after create, want 2 (Null, empty Tree)", len(entries))
	}

	info := r.Info()
	if info.Head.IsZero() || info.Stage.IsZero() {
		t.Fatal("Create left Head or Stage as the zero hash")
	}
}

func TestCreateTwiceFails(t *testing.T) {
	dir := t.TempDir()
	r, err := Create(dir, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer r.Close()

	if _, err := Create(dir, nil); err == nil {
		t.Fatal("Create on an already-initialized workspace should fail")
	}
}

func TestOpenMissingRepository(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir, nil)
	var missing *evserr.MissingRepository
	if !errors.As(err, &missing) {
		t.Fatalf("Open(empty dir) = %v, want MissingRepository", err)
	}
}

func TestOpenLocksAgainstSecondOpener(t *testing.T) {
	dir := t.TempDir()
	r1, err := Create(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r1.Close()

	_, err = Open(dir, nil)
	var locked *evserr.RepositoryLocked
	if !errors.As(err, &locked) {
		t.Fatalf("second Open = %v, want RepositoryLocked", err)
	}
}

func TestOpenAfterCloseSucceeds(t *testing.T) {
	dir := t.TempDir()
	r1, err := Create(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := r1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r2, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open after Close: %v", err)
	}
	defer r2.Close()

	if r2.Info() != r1.Info() {
		t.Errorf("reopened Info = %+v, want %+v", r2.Info(), r1.Info())
	}
}

func TestFindWalksUpward(t *testing.T) {
	root := t.TempDir()
	r, err := Create(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	found, err := Find(nested, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	defer found.Close()

	if found.WorkspaceDir() != mustCanonical(t, root) {
		t.Errorf("Find located workspace %s, want %s", found.WorkspaceDir(), root)
	}
}

func TestFindExhaustsAncestorsWithoutRepository(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "x", "y")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := Find(nested, nil)
	if !errors.Is(err, evserr.ErrRepositoryNotFound) {
		t.Fatalf("Find(no repo anywhere above) = %v, want ErrRepositoryNotFound", err)
	}
}

func TestPersistOnCloseRoundTrips(t *testing.T) {
	dir := t.TempDir()
	r, err := Create(dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	newHead := r.Info().Stage // any distinct, store-resolvable hash works for this test
	r.SetHead(newHead)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	if reopened.Info().Head != newHead {
		t.Errorf("reopened Head = %s, want %s", reopened.Info().Head, newHead)
	}
}

func mustCanonical(t *testing.T, path string) string {
	t.Helper()
	c, err := canonicalize(path)
	if err != nil {
		t.Fatal(err)
	}
	return c
}
