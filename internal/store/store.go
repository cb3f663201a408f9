// Package store implements the filesystem-backed content-addressed
// object store: insertion, lookup (full hash or unique prefix),
// enumeration, removal, and integrity check.
package store

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	kpgzip "github.com/klauspost/compress/gzip"

	"github.com/rsahwe/evs/internal/evserr"
	"github.com/rsahwe/evs/internal/hash"
	"github.com/rsahwe/evs/internal/objects"
)

// Store is a filesystem-backed CAS rooted at a single flat directory
// (".evs/store"): one file per object, named by its full 64-hex hash,
// directly under the store directory.
type Store struct {
	dir string
}

// New wraps an existing store directory. It does not create it; the
// Repository is responsible for that at create-time.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// Insert canonicalizes (for Tree objects, sorts entries by name), hashes
// the canonical encoding, and writes the gzip-compressed bytes under the
// hash's hex name. An object already present is detected and left
// untouched (content-addressed deduplication). The write itself is
// create-exclusive, so a process that loses a creation race fails with
// the offending path instead of clobbering the winner's file.
func (s *Store) Insert(obj *objects.Object) (hash.Hash, error) {
	if obj.Kind == objects.KindTree {
		objects.SortTreeEntries(obj.Tree)
		if dup := objects.DuplicateName(obj.Tree); dup != nil {
			return hash.Hash{}, fmt.Errorf("store: insert tree: duplicate entry name %q", dup)
		}
	}

	encoded, err := objects.Encode(obj)
	if err != nil {
		return hash.Hash{}, fmt.Errorf("store: insert: %w", err)
	}
	h := hash.Sum(encoded)
	target := s.path(h.String())

	if _, statErr := os.Stat(target); statErr == nil {
		return h, nil
	} else if !os.IsNotExist(statErr) {
		return hash.Hash{}, &evserr.PathError{Op: "stat", Path: target, Err: statErr}
	}

	compressed, err := compress(encoded)
	if err != nil {
		return hash.Hash{}, fmt.Errorf("store: compress object %s: %w", h, err)
	}

	// create-exclusive: a racer that loses the creation fails here with
	// the OS error rather than trusting the winner's bytes.
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return hash.Hash{}, &evserr.PathError{Op: "create", Path: target, Err: err}
	}
	defer f.Close()

	if _, err := f.Write(compressed); err != nil {
		return hash.Hash{}, &evserr.PathError{Op: "write", Path: target, Err: err}
	}
	return h, nil
}

// Lookup resolves a hex prefix (1 to 64 characters) to its full hash and
// decoded object.
func (s *Store) Lookup(id string) (hash.Hash, *objects.Object, error) {
	name, err := s.Resolve(id)
	if err != nil {
		return hash.Hash{}, nil, err
	}
	return s.readAndVerify(name)
}

// Resolve turns a hex prefix (1 to 64 characters) into the full 64-hex
// name of the single matching store entry, without reading it. Lookup
// and the reference resolver share this to get identical ambiguity
// behavior.
func (s *Store) Resolve(id string) (string, error) {
	if len(id) == hash.Size*2 {
		if _, err := hash.Parse(id); err != nil {
			// A 64-character ref that isn't a valid filename shape is
			// reported the same as "not found", not as corruption: we
			// never actually located a candidate file, so there's
			// nothing to call corrupt. This also keeps an arbitrary
			// user-supplied string from ever being joined onto the
			// store path as a raw filename.
			return "", &evserr.ObjectNotInStore{Ref: id}
		}
		if _, err := os.Stat(s.path(id)); err != nil {
			if os.IsNotExist(err) {
				return "", &evserr.ObjectNotInStore{Ref: id}
			}
			return "", &evserr.PathError{Op: "stat", Path: s.path(id), Err: err}
		}
		return id, nil
	}

	if !hash.IsValidPrefix(id) {
		return "", &evserr.ObjectNotInStore{Ref: id}
	}
	matches, err := s.matchPrefix(id)
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", &evserr.ObjectNotInStore{Ref: id}
	case 1:
		return matches[0], nil
	default:
		return "", &evserr.AmbiguousObject{Prefix: id, Example: matches[0]}
	}
}

func (s *Store) matchPrefix(prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &evserr.PathError{Op: "readdir", Path: s.dir, Err: err}
	}
	var matches []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			matches = append(matches, e.Name())
		}
	}
	sort.Strings(matches)
	return matches, nil
}

// readAndVerify opens the file named exactly name, decompresses it,
// recomputes its hash, and decodes it, surfacing the specific
// CorruptState kind for whichever step fails first.
func (s *Store) readAndVerify(name string) (hash.Hash, *objects.Object, error) {
	if !hash.IsLowerHex(name) || len(name) != hash.Size*2 {
		return hash.Hash{}, nil, &evserr.InvalidObjectName{Name: name}
	}

	raw, err := os.ReadFile(s.path(name))
	if err != nil {
		return hash.Hash{}, nil, &evserr.PathError{Op: "read", Path: s.path(name), Err: err}
	}

	decoded, err := decompress(raw)
	if err != nil {
		return hash.Hash{}, nil, &evserr.InvalidCompression{Name: name, Err: err}
	}

	h := hash.Sum(decoded)
	if h.String() != name {
		return hash.Hash{}, nil, &evserr.HashMismatch{Name: name, Computed: h.String()}
	}

	obj, err := objects.Decode(decoded)
	if err != nil {
		return hash.Hash{}, nil, &evserr.InvalidObjectContent{Name: name, Err: err}
	}

	return h, obj, nil
}

// Remove unlinks the object file named by h.
func (s *Store) Remove(h hash.Hash) error {
	target := s.path(h.String())
	if err := os.Remove(target); err != nil {
		return &evserr.PathError{Op: "remove", Path: target, Err: err}
	}
	return nil
}

// CheckResult is the outcome of Check: the set of hashes actually found
// on disk, and (for gc's benefit) a dependency count per hash — 0 means
// unreachable from the seeds.
type CheckResult struct {
	Found    map[hash.Hash]bool
	DepCount map[hash.Hash]int
}

// Check walks every file in the store directory, verifies each one (the
// same verification Lookup performs), and accumulates the transitive
// closure of references reachable from seeds. If any hash reachable from
// seeds is missing from disk, Check fails with MissingObjects.
func (s *Store) Check(seeds []hash.Hash) (*CheckResult, error) {
	required := make(map[hash.Hash]bool, len(seeds))
	depcount := make(map[hash.Hash]int, len(seeds))
	for _, h := range seeds {
		required[h] = true
		depcount[h] = 1
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &evserr.PathError{Op: "readdir", Path: s.dir, Err: err}
	}

	found := make(map[hash.Hash]bool, len(entries))
	refsOf := make(map[hash.Hash][]hash.Hash, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !hash.IsLowerHex(name) || len(name) != hash.Size*2 {
			return nil, &evserr.InvalidObjectName{Name: name}
		}
		h, obj, err := s.readAndVerify(name)
		if err != nil {
			return nil, err
		}
		found[h] = true
		refsOf[h] = references(obj)
	}

	// Walk outward from the seeds: only objects reached this way become
	// required, so an unreachable object's own references do not count.
	queue := append([]hash.Hash(nil), seeds...)
	for i := 0; i < len(queue); i++ {
		for _, ref := range refsOf[queue[i]] {
			if !required[ref] {
				required[ref] = true
				queue = append(queue, ref)
			}
			depcount[ref]++
		}
	}

	for h := range found {
		if !required[h] {
			depcount[h] = 0
		}
	}

	var missing []hash.Hash
	for h := range required {
		if !found[h] {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool { return missing[i].String() < missing[j].String() })
		return nil, &evserr.MissingObjects{First: missing[0].String(), Rest: len(missing) - 1}
	}

	return &CheckResult{Found: found, DepCount: depcount}, nil
}

func references(obj *objects.Object) []hash.Hash {
	switch obj.Kind {
	case objects.KindTree:
		refs := make([]hash.Hash, len(obj.Tree))
		for i, e := range obj.Tree {
			refs[i] = e.Content
		}
		return refs
	case objects.KindCommit:
		return []hash.Hash{obj.Commit.Parent, obj.Commit.Tree}
	default:
		return nil
	}
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := kpgzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := kpgzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
