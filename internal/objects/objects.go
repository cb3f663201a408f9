// Package objects implements the evs object model: the tagged
// Null/Blob/Tree/Commit variant and its canonical, deterministic
// encoding. The encoding is what gets hashed and stored — see
// Encode/Decode.
package objects

import (
	"bytes"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/rsahwe/evs/internal/hash"
)

// Kind discriminates the four Object variants.
type Kind uint8

const (
	KindNull Kind = iota
	KindBlob
	KindTree
	KindCommit
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBlob:
		return "blob"
	case KindTree:
		return "tree"
	case KindCommit:
		return "commit"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// TreeEntry is one named child of a Tree. Name is a raw byte sequence
// (OS-native, not necessarily UTF-8).
type TreeEntry struct {
	Name    []byte
	Content hash.Hash
}

// Commit records one snapshot in the linear history.
type Commit struct {
	Parent      hash.Hash
	Tree        hash.Hash
	AuthorName  string
	AuthorEmail string
	Message     string
	Timestamp   time.Time
}

// Object is the tagged Null/Blob/Tree/Commit variant. Exactly one of
// Blob, Tree, Commit is meaningful, selected by Kind; the others are the
// zero value.
type Object struct {
	Kind   Kind
	Blob   []byte
	Tree   []TreeEntry
	Commit *Commit
}

// NewNull constructs the root-of-history sentinel.
func NewNull() *Object {
	return &Object{Kind: KindNull}
}

// NewBlob wraps opaque file content.
func NewBlob(content []byte) *Object {
	return &Object{Kind: KindBlob, Blob: content}
}

// NewTree wraps a set of entries as given; the caller (ordinarily
// Store.Insert) is responsible for sorting ascending by Name and
// rejecting duplicate names before this reaches Encode, since canonical
// encoding preserves whatever order it is handed.
func NewTree(entries []TreeEntry) *Object {
	return &Object{Kind: KindTree, Tree: entries}
}

// NewCommit wraps one commit snapshot.
func NewCommit(parent, tree hash.Hash, authorName, authorEmail, message string, timestamp time.Time) *Object {
	return &Object{
		Kind: KindCommit,
		Commit: &Commit{
			Parent:      parent,
			Tree:        tree,
			AuthorName:  authorName,
			AuthorEmail: authorEmail,
			Message:     message,
			Timestamp:   timestamp,
		},
	}
}

// SortTreeEntries sorts entries ascending by Name in place.
func SortTreeEntries(entries []TreeEntry) {
	// insertion sort would be fine too, but entries lists are small
	// (one directory level) so a stable library sort is plenty.
	sortEntries(entries)
}

// DuplicateName returns the first duplicated name found in an
// already-sorted entries slice, or nil if all names are unique.
func DuplicateName(sortedEntries []TreeEntry) []byte {
	for i := 1; i < len(sortedEntries); i++ {
		if bytes.Equal(sortedEntries[i-1].Name, sortedEntries[i].Name) {
			return sortedEntries[i].Name
		}
	}
	return nil
}

// wire types mirror Object but use []byte for every hash field (CBOR
// byte strings) and a fixed array-shaped layout ("toarray") so that the
// on-disk encoding never depends on map-key ordering: a struct's array
// position is determined purely by its Go declaration, which never
// changes. The same Kind's Object always produces a wireObject with the
// same field population (nil slices normalized to empty), so identical
// Objects always produce identical bytes.

type wireTreeEntry struct {
	_       struct{} `cbor:",toarray"`
	Name    []byte
	Content []byte
}

type wireCommit struct {
	_                 struct{} `cbor:",toarray"`
	Parent            []byte
	Tree              []byte
	AuthorName        string
	AuthorEmail       string
	Message           string
	TimestampUnixNano int64
}

type wireObject struct {
	_      struct{} `cbor:",toarray"`
	Kind   uint8
	Blob   []byte
	Tree   []wireTreeEntry
	Commit *wireCommit
}

var canonicalMode cbor.EncMode

func init() {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("objects: building canonical cbor encoder: %v", err))
	}
	canonicalMode = mode
}

// Encode produces the canonical byte encoding of o: the bytes that get
// hashed (pre-compression) and, gzip-compressed, stored on disk.
func Encode(o *Object) ([]byte, error) {
	w, err := toWire(o)
	if err != nil {
		return nil, fmt.Errorf("encode %s object: %w", o.Kind, err)
	}
	data, err := canonicalMode.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode %s object: %w", o.Kind, err)
	}
	return data, nil
}

// Decode parses the canonical byte encoding back into an Object.
func Decode(data []byte) (*Object, error) {
	var w wireObject
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	return fromWire(&w)
}

func toWire(o *Object) (*wireObject, error) {
	w := &wireObject{Kind: uint8(o.Kind)}
	switch o.Kind {
	case KindNull:
		// no payload
	case KindBlob:
		w.Blob = o.Blob
		if w.Blob == nil {
			w.Blob = []byte{}
		}
	case KindTree:
		entries := o.Tree
		we := make([]wireTreeEntry, len(entries))
		for i, e := range entries {
			name := e.Name
			if name == nil {
				name = []byte{}
			}
			content := make([]byte, hash.Size)
			copy(content, e.Content[:])
			we[i] = wireTreeEntry{Name: name, Content: content}
		}
		w.Tree = we
	case KindCommit:
		if o.Commit == nil {
			return nil, fmt.Errorf("commit object missing Commit payload")
		}
		c := o.Commit
		parent := make([]byte, hash.Size)
		copy(parent, c.Parent[:])
		tree := make([]byte, hash.Size)
		copy(tree, c.Tree[:])
		w.Commit = &wireCommit{
			Parent:            parent,
			Tree:              tree,
			AuthorName:        c.AuthorName,
			AuthorEmail:       c.AuthorEmail,
			Message:           c.Message,
			TimestampUnixNano: c.Timestamp.UnixNano(),
		}
	default:
		return nil, fmt.Errorf("unknown object kind %d", o.Kind)
	}
	return w, nil
}

func fromWire(w *wireObject) (*Object, error) {
	kind := Kind(w.Kind)
	switch kind {
	case KindNull:
		return &Object{Kind: KindNull}, nil
	case KindBlob:
		return &Object{Kind: KindBlob, Blob: w.Blob}, nil
	case KindTree:
		entries := make([]TreeEntry, len(w.Tree))
		for i, we := range w.Tree {
			if len(we.Content) != hash.Size {
				return nil, fmt.Errorf("tree entry %q: content is %d bytes, want %d", we.Name, len(we.Content), hash.Size)
			}
			var h hash.Hash
			copy(h[:], we.Content)
			entries[i] = TreeEntry{Name: we.Name, Content: h}
		}
		return &Object{Kind: KindTree, Tree: entries}, nil
	case KindCommit:
		if w.Commit == nil {
			return nil, fmt.Errorf("commit object missing payload")
		}
		if len(w.Commit.Parent) != hash.Size || len(w.Commit.Tree) != hash.Size {
			return nil, fmt.Errorf("commit object: malformed hash field")
		}
		var parent, tree hash.Hash
		copy(parent[:], w.Commit.Parent)
		copy(tree[:], w.Commit.Tree)
		return &Object{
			Kind: KindCommit,
			Commit: &Commit{
				Parent:      parent,
				Tree:        tree,
				AuthorName:  w.Commit.AuthorName,
				AuthorEmail: w.Commit.AuthorEmail,
				Message:     w.Commit.Message,
				Timestamp:   time.Unix(0, w.Commit.TimestampUnixNano).UTC(),
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown object kind %d", w.Kind)
	}
}
