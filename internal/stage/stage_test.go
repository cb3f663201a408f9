package stage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rsahwe/evs/internal/evserr"
	"github.com/rsahwe/evs/internal/objects"
	"github.com/rsahwe/evs/internal/store"
)

func newWorkspace(t *testing.T) (workspaceDir, repoDir string, st *store.Store) {
	t.Helper()
	workspaceDir = t.TempDir()
	repoDir = filepath.Join(workspaceDir, ".evs")
	if err := os.MkdirAll(filepath.Join(repoDir, "store"), 0o755); err != nil {
		t.Fatal(err)
	}
	st = store.New(filepath.Join(repoDir, "store"))
	return
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestAddSingleFile(t *testing.T) {
	ws, repoDir, st := newWorkspace(t)
	writeFile(t, filepath.Join(ws, "hello.txt"), "hi\n")

	emptyStage, err := emptyTreeHash(st)
	if err != nil {
		t.Fatal(err)
	}

	staged, err := Add(st, ws, repoDir, emptyStage, filepath.Join(ws, "hello.txt"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	_, obj, err := st.Lookup(staged.String())
	if err != nil {
		t.Fatal(err)
	}
	if obj.Kind != objects.KindTree || len(obj.Tree) != 1 || string(obj.Tree[0].Name) != "hello.txt" {
		t.Fatalf("stage = %+v, want single entry hello.txt", obj)
	}

	blobHash, err := st.Insert(objects.NewBlob([]byte("hi\n")))
	if err != nil {
		t.Fatal(err)
	}
	if obj.Tree[0].Content != blobHash {
		t.Errorf("hello.txt content = %s, want %s", obj.Tree[0].Content, blobHash)
	}

	// re-adding the same file leaves the stage hash unchanged
	staged2, err := Add(st, ws, repoDir, staged, filepath.Join(ws, "hello.txt"))
	if err != nil {
		t.Fatalf("Add (2nd): %v", err)
	}
	if staged2 != staged {
		t.Errorf("re-adding unchanged file changed stage hash: %s != %s", staged2, staged)
	}
}

func TestAddThenSubNested(t *testing.T) {
	ws, repoDir, st := newWorkspace(t)
	writeFile(t, filepath.Join(ws, "a", "b", "c.txt"), "x")

	emptyStage, err := emptyTreeHash(st)
	if err != nil {
		t.Fatal(err)
	}

	staged, err := Add(st, ws, repoDir, emptyStage, filepath.Join(ws, "a", "b", "c.txt"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if staged == emptyStage {
		t.Fatal("Add did not change the stage hash")
	}

	unstaged, err := Sub(st, ws, repoDir, staged, filepath.Join(ws, "a", "b", "c.txt"))
	if err != nil {
		t.Fatalf("Sub: %v", err)
	}
	if unstaged != emptyStage {
		t.Errorf("Sub of the only staged file did not prune back to the empty tree: got %s, want %s", unstaged, emptyStage)
	}
}

func TestSubOfMissingPathFails(t *testing.T) {
	ws, repoDir, st := newWorkspace(t)
	emptyStage, err := emptyTreeHash(st)
	if err != nil {
		t.Fatal(err)
	}

	_, err = Sub(st, ws, repoDir, emptyStage, filepath.Join(ws, "never-added.txt"))
	var notInStage *evserr.PathNotInStage
	if !errors.As(err, &notInStage) {
		t.Fatalf("Sub(never-staged path) = %v, want PathNotInStage", err)
	}
}

func TestSubTwiceFailsSecondTime(t *testing.T) {
	ws, repoDir, st := newWorkspace(t)
	writeFile(t, filepath.Join(ws, "f.txt"), "content")

	emptyStage, err := emptyTreeHash(st)
	if err != nil {
		t.Fatal(err)
	}
	staged, err := Add(st, ws, repoDir, emptyStage, filepath.Join(ws, "f.txt"))
	if err != nil {
		t.Fatal(err)
	}
	unstaged, err := Sub(st, ws, repoDir, staged, filepath.Join(ws, "f.txt"))
	if err != nil {
		t.Fatalf("Sub (1st): %v", err)
	}
	if _, err := Sub(st, ws, repoDir, unstaged, filepath.Join(ws, "f.txt")); err == nil {
		t.Fatal("second Sub of the same path should fail")
	}
}

func TestAddWorkspaceRoot(t *testing.T) {
	ws, repoDir, st := newWorkspace(t)
	emptyStage, err := emptyTreeHash(st)
	if err != nil {
		t.Fatal(err)
	}

	staged, err := Add(st, ws, repoDir, emptyStage, ws)
	if err != nil {
		t.Fatalf("Add(empty workspace): %v", err)
	}
	if staged != emptyStage {
		t.Errorf("Add of an empty workspace should yield the empty tree, got %s want %s", staged, emptyStage)
	}

	writeFile(t, filepath.Join(ws, "one.txt"), "1")
	writeFile(t, filepath.Join(ws, "sub", "two.txt"), "2")

	staged, err = Add(st, ws, repoDir, staged, ws)
	if err != nil {
		t.Fatalf("Add(workspace with files): %v", err)
	}
	_, obj, err := st.Lookup(staged.String())
	if err != nil {
		t.Fatal(err)
	}
	if len(obj.Tree) != 2 {
		t.Fatalf("root tree has %d entries, want 2", len(obj.Tree))
	}
}

func TestSubWorkspaceRootResetsToEmptyTree(t *testing.T) {
	ws, repoDir, st := newWorkspace(t)
	writeFile(t, filepath.Join(ws, "one.txt"), "1")

	emptyStage, err := emptyTreeHash(st)
	if err != nil {
		t.Fatal(err)
	}
	staged, err := Add(st, ws, repoDir, emptyStage, ws)
	if err != nil {
		t.Fatal(err)
	}

	reset, err := Sub(st, ws, repoDir, staged, ws)
	if err != nil {
		t.Fatalf("Sub(workspace root): %v", err)
	}
	if reset != emptyStage {
		t.Errorf("Sub of workspace root = %s, want empty tree %s", reset, emptyStage)
	}
}

func TestReplacingFileWithDirectory(t *testing.T) {
	ws, repoDir, st := newWorkspace(t)
	writeFile(t, filepath.Join(ws, "a", "b"), "was a file")

	emptyStage, err := emptyTreeHash(st)
	if err != nil {
		t.Fatal(err)
	}
	staged, err := Add(st, ws, repoDir, emptyStage, filepath.Join(ws, "a", "b"))
	if err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(ws, "a", "b")); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(ws, "a", "b", "c.txt"), "now a directory")

	staged, err = Add(st, ws, repoDir, staged, filepath.Join(ws, "a", "b"))
	if err != nil {
		t.Fatalf("Add(path whose kind changed): %v", err)
	}

	_, rootTree, err := st.Lookup(staged.String())
	if err != nil {
		t.Fatal(err)
	}
	_, aTree, err := st.Lookup(rootTree.Tree[0].Content.String())
	if err != nil {
		t.Fatal(err)
	}
	_, bObj, err := st.Lookup(aTree.Tree[0].Content.String())
	if err != nil {
		t.Fatal(err)
	}
	if bObj.Kind != objects.KindTree {
		t.Fatalf("a/b is %s, want tree after being replaced by a directory", bObj.Kind)
	}
}

func TestAddOutsideWorkspaceFails(t *testing.T) {
	ws, repoDir, st := newWorkspace(t)
	emptyStage, err := emptyTreeHash(st)
	if err != nil {
		t.Fatal(err)
	}

	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "f.txt"), "x")

	_, err = Add(st, ws, repoDir, emptyStage, filepath.Join(outside, "f.txt"))
	var outsideErr *evserr.PathOutsideOfRepo
	if !errors.As(err, &outsideErr) {
		t.Fatalf("Add(outside workspace) = %v, want PathOutsideOfRepo", err)
	}
}

func TestAddInsideRepoDirFails(t *testing.T) {
	ws, repoDir, st := newWorkspace(t)
	emptyStage, err := emptyTreeHash(st)
	if err != nil {
		t.Fatal(err)
	}

	_, err = Add(st, ws, repoDir, emptyStage, filepath.Join(repoDir, "store"))
	var outsideErr *evserr.PathOutsideOfRepo
	if !errors.As(err, &outsideErr) {
		t.Fatalf("Add(.evs/store) = %v, want PathOutsideOfRepo", err)
	}
}

func BenchmarkAddNestedPath(b *testing.B) {
	workspaceDir := b.TempDir()
	repoDir := filepath.Join(workspaceDir, ".evs")
	if err := os.MkdirAll(filepath.Join(repoDir, "store"), 0o755); err != nil {
		b.Fatal(err)
	}
	st := store.New(filepath.Join(repoDir, "store"))

	target := filepath.Join(workspaceDir, "a", "b", "c", "d.txt")
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		b.Fatal(err)
	}

	current, err := emptyTreeHash(st)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// vary the content so every iteration rewrites the whole chain
		if err := os.WriteFile(target, []byte{byte(i), byte(i >> 8), byte(i >> 16)}, 0o644); err != nil {
			b.Fatal(err)
		}
		current, err = Add(st, workspaceDir, repoDir, current, target)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func TestHashDirSkipsRepoDir(t *testing.T) {
	ws, repoDir, st := newWorkspace(t)
	writeFile(t, filepath.Join(ws, "kept.txt"), "keep me")

	h, err := HashDir(st, repoDir, ws)
	if err != nil {
		t.Fatal(err)
	}
	_, obj, err := st.Lookup(h.String())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range obj.Tree {
		if string(e.Name) == ".evs" {
			t.Fatal("HashDir must skip the repository directory")
		}
	}
}
