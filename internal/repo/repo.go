// Package repo implements the repository state machine: workspace
// discovery by upward walk, the exclusive advisory lock on .evs/lock,
// and crash-safe writeback of RepositoryInfo on scope exit.
package repo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/rsahwe/evs/internal/evserr"
	"github.com/rsahwe/evs/internal/hash"
	"github.com/rsahwe/evs/internal/objects"
	"github.com/rsahwe/evs/internal/store"
	"github.com/rsahwe/evs/internal/verbosity"
)

const (
	dirName   = ".evs"
	storeName = "store"
	lockName  = "lock"
)

// Repository is an opened, locked .evs directory together with its
// in-memory RepositoryInfo. The zero value is not usable; construct via
// Create, Open, or Find.
type Repository struct {
	workspaceDir string
	repoDir      string
	lockPath     string

	lock *flock.Flock
	file *os.File

	store *store.Store
	info  Info

	modified bool
	log      *verbosity.Logger
}

// WorkspaceDir returns the canonicalized workspace root (the directory
// containing .evs).
func (r *Repository) WorkspaceDir() string { return r.workspaceDir }

// RepoDir returns the canonicalized .evs directory.
func (r *Repository) RepoDir() string { return r.repoDir }

// Store returns the repository's object store.
func (r *Repository) Store() *store.Store { return r.store }

// Info returns the current in-memory RepositoryInfo.
func (r *Repository) Info() Info { return r.info }

// SetHead updates head and marks the repository modified if it changed.
func (r *Repository) SetHead(h hash.Hash) {
	if r.info.Head != h {
		r.info.Head = h
		r.modified = true
	}
}

// SetStage updates stage and marks the repository modified if it changed.
func (r *Repository) SetStage(h hash.Hash) {
	if r.info.Stage != h {
		r.info.Stage = h
		r.modified = true
	}
}

func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &evserr.PathError{Op: "abspath", Path: path, Err: err}
	}
	return filepath.Clean(abs), nil
}

// Create creates a new repository rooted at path, which must already
// exist as a directory. It inserts Null and the empty Tree, writes the
// initial RepositoryInfo (head=hash(Null), stage=hash(empty Tree)), and
// returns the open, locked repository.
func Create(path string, log *verbosity.Logger) (*Repository, error) {
	workspaceDir, err := canonicalize(path)
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(workspaceDir)
	if err != nil {
		return nil, &evserr.PathError{Op: "stat", Path: workspaceDir, Err: err}
	}
	if !fi.IsDir() {
		return nil, &evserr.DirectoryIsFile{Path: workspaceDir}
	}

	repoDir := filepath.Join(workspaceDir, dirName)
	log.Logf(verbosity.Trace, "create: repository directory %s", repoDir)
	if err := os.Mkdir(repoDir, 0o755); err != nil {
		return nil, &evserr.PathError{Op: "mkdir", Path: repoDir, Err: err}
	}

	storeDir := filepath.Join(repoDir, storeName)
	if err := os.Mkdir(storeDir, 0o755); err != nil {
		return nil, &evserr.PathError{Op: "mkdir", Path: storeDir, Err: err}
	}

	st := store.New(storeDir)
	nullHash, err := st.Insert(objects.NewNull())
	if err != nil {
		return nil, fmt.Errorf("create: insert Null: %w", err)
	}
	emptyTreeHash, err := st.Insert(objects.NewTree(nil))
	if err != nil {
		return nil, fmt.Errorf("create: insert empty Tree: %w", err)
	}
	log.Logf(verbosity.Trace, "create: inserted Null %s and empty Tree %s", nullHash, emptyTreeHash)

	lockPath := filepath.Join(repoDir, lockName)
	f, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, &evserr.PathError{Op: "create", Path: lockPath, Err: err}
	}

	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create: acquire lock on %s: %w", lockPath, err)
	}
	if !locked {
		f.Close()
		return nil, &evserr.RepositoryLocked{Path: repoDir}
	}

	info := Info{Head: nullHash, Stage: emptyTreeHash}
	data, err := encodeInfo(info)
	if err != nil {
		fl.Unlock()
		f.Close()
		return nil, fmt.Errorf("create: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		fl.Unlock()
		f.Close()
		return nil, &evserr.PathError{Op: "write", Path: lockPath, Err: err}
	}

	return &Repository{
		workspaceDir: workspaceDir,
		repoDir:      repoDir,
		lockPath:     lockPath,
		lock:         fl,
		file:         f,
		store:        st,
		info:         info,
		log:          log,
	}, nil
}

// Open opens an existing repository rooted at path, acquiring the
// exclusive advisory lock (non-blocking) and reading RepositoryInfo.
func Open(path string, log *verbosity.Logger) (*Repository, error) {
	workspaceDir, err := canonicalize(path)
	if err != nil {
		return nil, err
	}

	repoDir := filepath.Join(workspaceDir, dirName)
	switch fi, statErr := os.Stat(repoDir); {
	case os.IsNotExist(statErr):
		return nil, &evserr.MissingRepository{Path: path}
	case statErr != nil:
		return nil, &evserr.PathError{Op: "stat", Path: repoDir, Err: statErr}
	case !fi.IsDir():
		return nil, &evserr.DirectoryIsFile{Path: repoDir}
	}

	storeDir := filepath.Join(repoDir, storeName)
	switch fi, statErr := os.Stat(storeDir); {
	case os.IsNotExist(statErr):
		return nil, &evserr.MissingPath{Path: storeDir}
	case statErr != nil:
		return nil, &evserr.PathError{Op: "stat", Path: storeDir, Err: statErr}
	case !fi.IsDir():
		return nil, &evserr.DirectoryIsFile{Path: storeDir}
	}

	lockPath := filepath.Join(repoDir, lockName)
	switch fi, statErr := os.Stat(lockPath); {
	case os.IsNotExist(statErr):
		return nil, &evserr.MissingPath{Path: lockPath}
	case statErr != nil:
		return nil, &evserr.PathError{Op: "stat", Path: lockPath, Err: statErr}
	case fi.IsDir():
		return nil, &evserr.FileIsDirectory{Path: lockPath}
	}

	f, err := os.OpenFile(lockPath, os.O_RDWR, 0o644)
	if err != nil {
		return nil, &evserr.PathError{Op: "open", Path: lockPath, Err: err}
	}

	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open: acquire lock on %s: %w", lockPath, err)
	}
	if !locked {
		f.Close()
		return nil, &evserr.RepositoryLocked{Path: repoDir}
	}
	log.Logf(verbosity.Trace, "open: locked %s", lockPath)

	raw, err := io.ReadAll(f)
	if err != nil {
		fl.Unlock()
		f.Close()
		return nil, &evserr.PathError{Op: "read", Path: lockPath, Err: err}
	}
	info, err := decodeInfo(raw)
	if err != nil {
		fl.Unlock()
		f.Close()
		return nil, fmt.Errorf("%w: %v", evserr.ErrRepositoryInfoCorrupt, err)
	}

	return &Repository{
		workspaceDir: workspaceDir,
		repoDir:      repoDir,
		lockPath:     lockPath,
		lock:         fl,
		file:         f,
		store:        store.New(storeDir),
		info:         info,
		log:          log,
	}, nil
}

// Find canonicalizes startPath and walks upward through its ancestors,
// attempting Open at each level, until a repository is found or the
// ancestor chain is exhausted.
func Find(startPath string, log *verbosity.Logger) (*Repository, error) {
	current, err := canonicalize(startPath)
	if err != nil {
		return nil, err
	}

	for {
		r, err := Open(current, log)
		if err == nil {
			return r, nil
		}
		var missing *evserr.MissingRepository
		if !errors.As(err, &missing) {
			return nil, err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return nil, evserr.ErrRepositoryNotFound
		}
		current = parent
	}
}

// Close persists RepositoryInfo (iff modified) and releases the lock.
// Persist failure is reported but the lock is released regardless, since
// the caller is exiting either way.
func (r *Repository) Close() error {
	var persistErr error
	if r.modified {
		persistErr = r.persist()
	}

	unlockErr := r.lock.Unlock()
	closeErr := r.file.Close()

	switch {
	case persistErr != nil:
		return persistErr
	case unlockErr != nil:
		return fmt.Errorf("repo: unlock %s: %w", r.lockPath, unlockErr)
	case closeErr != nil:
		return &evserr.PathError{Op: "close", Path: r.lockPath, Err: closeErr}
	}
	return nil
}

func (r *Repository) persist() error {
	data, err := encodeInfo(r.info)
	if err != nil {
		return fmt.Errorf("repo: persist: %w", err)
	}
	if err := r.file.Truncate(0); err != nil {
		return &evserr.PathError{Op: "truncate", Path: r.lockPath, Err: err}
	}
	if _, err := r.file.Seek(0, io.SeekStart); err != nil {
		return &evserr.PathError{Op: "seek", Path: r.lockPath, Err: err}
	}
	if _, err := r.file.Write(data); err != nil {
		return &evserr.PathError{Op: "write", Path: r.lockPath, Err: err}
	}
	r.log.Logf(verbosity.Trace, "persist: wrote RepositoryInfo to %s", r.lockPath)
	return nil
}
