// Package stage implements the recursive immutable tree-rewrite engine:
// add/sub of a single path produces a new stage root hash, sharing every
// unchanged subtree with the previous root by hash identity (a subtree
// whose hash hasn't changed is never re-inserted).
package stage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/rsahwe/evs/internal/evserr"
	"github.com/rsahwe/evs/internal/hash"
	"github.com/rsahwe/evs/internal/objects"
	"github.com/rsahwe/evs/internal/store"
)

// Add stages target: a directory is hashed recursively (HashDir), a file
// is inserted as a Blob, and the result is spliced into stage at target's
// path via updateStage. Staging the workspace root itself (target ==
// workspaceDir) replaces the whole stage tree.
func Add(st *store.Store, workspaceDir, repoDir string, stage hash.Hash, target string) (hash.Hash, error) {
	components, canonPath, err := normalizePath(workspaceDir, repoDir, target)
	if err != nil {
		return hash.Hash{}, err
	}

	if len(components) == 0 {
		return HashDir(st, repoDir, workspaceDir)
	}

	fi, err := os.Stat(canonPath)
	if err != nil {
		return hash.Hash{}, &evserr.PathError{Op: "stat", Path: canonPath, Err: err}
	}

	var h hash.Hash
	if fi.IsDir() {
		h, err = HashDir(st, repoDir, canonPath)
	} else {
		var data []byte
		data, err = os.ReadFile(canonPath)
		if err == nil {
			h, err = st.Insert(objects.NewBlob(data))
		} else {
			err = &evserr.PathError{Op: "read", Path: canonPath, Err: err}
		}
	}
	if err != nil {
		return hash.Hash{}, err
	}

	result, err := updateStage(st, target, components, &h, stage)
	if err != nil {
		return hash.Hash{}, err
	}
	if result == nil {
		return emptyTreeHash(st)
	}
	return *result, nil
}

// Sub unstages target, pruning any intermediate tree left empty by the
// removal. Unstaging the workspace root resets the whole stage to the
// empty Tree.
func Sub(st *store.Store, workspaceDir, repoDir string, stage hash.Hash, target string) (hash.Hash, error) {
	components, _, err := normalizePath(workspaceDir, repoDir, target)
	if err != nil {
		return hash.Hash{}, err
	}

	if len(components) == 0 {
		return emptyTreeHash(st)
	}

	result, err := updateStage(st, target, components, nil, stage)
	if err != nil {
		return hash.Hash{}, err
	}
	if result == nil {
		return emptyTreeHash(st)
	}
	return *result, nil
}

// HashDir hashes dir (a file or a directory) into the store, recursing
// into subdirectories and skipping repoDir entirely if it is encountered
// as a child.
func HashDir(st *store.Store, repoDir, dir string) (hash.Hash, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return hash.Hash{}, &evserr.PathError{Op: "stat", Path: dir, Err: err}
	}
	if !fi.IsDir() {
		data, err := os.ReadFile(dir)
		if err != nil {
			return hash.Hash{}, &evserr.PathError{Op: "read", Path: dir, Err: err}
		}
		return st.Insert(objects.NewBlob(data))
	}

	children, err := os.ReadDir(dir)
	if err != nil {
		return hash.Hash{}, &evserr.PathError{Op: "readdir", Path: dir, Err: err}
	}

	var entries []objects.TreeEntry
	for _, child := range children {
		childPath := filepath.Join(dir, child.Name())
		if childPath == repoDir {
			continue
		}
		childHash, err := HashDir(st, repoDir, childPath)
		if err != nil {
			return hash.Hash{}, err
		}
		entries = append(entries, objects.TreeEntry{Name: []byte(child.Name()), Content: childHash})
	}
	return st.Insert(objects.NewTree(entries))
}

func emptyTreeHash(st *store.Store) (hash.Hash, error) {
	return st.Insert(objects.NewTree(nil))
}

// updateStage is the recursive core. objOpt is the value to splice at
// the leaf (components[len-1]): non-nil for add, nil for a removal. It
// returns the new hash of the tree at currentTreeHash's level, or nil if
// the removal emptied that level entirely (signaling the caller to prune
// it from its own parent).
func updateStage(st *store.Store, fullPath string, components []string, objOpt *hash.Hash, currentTreeHash hash.Hash) (*hash.Hash, error) {
	entries, err := treeEntries(st, currentTreeHash)
	if err != nil {
		return nil, err
	}

	nextName := components[0]
	rest := components[1:]
	idx := findEntry(entries, nextName)

	var childHash *hash.Hash
	switch {
	case len(rest) == 0:
		childHash = objOpt
	case idx >= 0:
		childHash, err = updateStage(st, fullPath, rest, objOpt, entries[idx].Content)
		if err != nil {
			return nil, err
		}
	case objOpt != nil:
		fresh, err := emptyTreeHash(st)
		if err != nil {
			return nil, err
		}
		childHash, err = updateStage(st, fullPath, rest, objOpt, fresh)
		if err != nil {
			return nil, err
		}
	default:
		return nil, &evserr.PathNotInStage{Path: fullPath}
	}

	if childHash != nil {
		if idx >= 0 && entries[idx].Content == *childHash {
			return &currentTreeHash, nil
		}
		updated := append([]objects.TreeEntry(nil), entries...)
		if idx >= 0 {
			updated[idx].Content = *childHash
		} else {
			updated = append(updated, objects.TreeEntry{Name: []byte(nextName), Content: *childHash})
		}
		newHash, err := st.Insert(objects.NewTree(updated))
		if err != nil {
			return nil, err
		}
		return &newHash, nil
	}

	// childHash == nil: a removal reached this level.
	if idx < 0 {
		return nil, &evserr.PathNotInStage{Path: fullPath}
	}
	remaining := make([]objects.TreeEntry, 0, len(entries)-1)
	remaining = append(remaining, entries[:idx]...)
	remaining = append(remaining, entries[idx+1:]...)
	if len(remaining) == 0 {
		return nil, nil
	}
	newHash, err := st.Insert(objects.NewTree(remaining))
	if err != nil {
		return nil, err
	}
	return &newHash, nil
}

// treeEntries looks up h; a Tree yields its entries, any other kind is
// treated as a fresh, empty entry list, so a Blob at a path is
// transparently replaced by a directory staged over it. A hash missing
// from the store is an error.
func treeEntries(st *store.Store, h hash.Hash) ([]objects.TreeEntry, error) {
	_, obj, err := st.Lookup(h.String())
	if err != nil {
		return nil, err
	}
	if obj.Kind != objects.KindTree {
		return nil, nil
	}
	return obj.Tree, nil
}

func findEntry(entries []objects.TreeEntry, name string) int {
	nameBytes := []byte(name)
	for i, e := range entries {
		if bytes.Equal(e.Name, nameBytes) {
			return i
		}
	}
	return -1
}

// normalizePath canonicalizes target, rejects it if outside workspaceDir
// or inside repoDir, and returns its path components relative to
// workspaceDir (nil for the workspace root itself) plus the canonical
// absolute path.
func normalizePath(workspaceDir, repoDir, target string) ([]string, string, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, "", &evserr.PathError{Op: "abspath", Path: target, Err: err}
	}
	canon := filepath.Clean(abs)

	if canon == repoDir || strings.HasPrefix(canon, repoDir+string(filepath.Separator)) {
		return nil, "", &evserr.PathOutsideOfRepo{Path: target, Reason: "lies inside the repository directory"}
	}

	rel, err := filepath.Rel(workspaceDir, canon)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, "", &evserr.PathOutsideOfRepo{Path: target, Reason: "lies outside the workspace"}
	}

	if rel == "." {
		return nil, canon, nil
	}
	return strings.Split(rel, string(filepath.Separator)), canon, nil
}
