package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// Store manages bundle IO rooted at the output directory.
type Store struct {
	fs   afero.Fs
	root string
	now  func() time.Time
}

// StoreOption customizes a Store during construction.
type StoreOption func(*Store)

// WithClock overrides the clock used for metadata timestamps.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = clock
	}
}

// NewStore builds a store writing below root on fsys.
func NewStore(fsys afero.Fs, root string, opts ...StoreOption) *Store {
	store := &Store{
		fs:   fsys,
		root: filepath.Clean(root),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Root returns the output directory.
func (s *Store) Root() string {
	return s.root
}

// Path returns the absolute bundle path for ref.
func (s *Store) Path(ref Ref) string {
	return filepath.Join(s.root, filepath.FromSlash(ref.Path()))
}

func (s *Store) metaPath(ref Ref) string {
	return filepath.Join(s.root, filepath.FromSlash(ref.MetaPath()))
}

// Check inspects the bundle on disk. A bundle is ready when its sidecar
// parses, its checksum matches, and, when digest is not empty, it was built
// from the same inputs.
func (s *Store) Check(ref Ref, digest string) (CheckResult, error) {
	if err := ref.Validate(); err != nil {
		return CheckResult{Ref: ref, State: StateError, Err: err}, err
	}
	path := s.Path(ref)
	body, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return CheckResult{Ref: ref, Path: path, State: StateMissing}, nil
		}
		return CheckResult{Ref: ref, Path: path, State: StateError, Err: err}, err
	}
	raw, err := afero.ReadFile(s.fs, s.metaPath(ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return invalidResult(ref, path, fmt.Errorf("artifact: %s has no metadata", ref))
		}
		return CheckResult{Ref: ref, Path: path, State: StateError, Err: err}, err
	}
	meta, err := decodeMetadata(raw)
	if err != nil {
		return invalidResult(ref, path, err)
	}
	if err := meta.ValidateFor(ref); err != nil {
		return invalidResult(ref, path, err)
	}
	if meta.Checksum != Checksum(body) {
		return CheckResult{Ref: ref, Path: path, State: StateStale, Metadata: &meta}, nil
	}
	if digest != "" && meta.InputDigest != digest {
		return CheckResult{Ref: ref, Path: path, State: StateStale, Metadata: &meta}, nil
	}
	return CheckResult{Ref: ref, Path: path, State: StateReady, Metadata: &meta}, nil
}

// Write persists body and its metadata and returns the bundle path. The
// checksum and size are computed here.
func (s *Store) Write(ref Ref, body []byte, meta Metadata) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	prepared := meta.WithDefaults(ref, s.now())
	prepared.Checksum = Checksum(body)
	prepared.Size = len([]rune(string(body)))
	if err := prepared.ValidateFor(ref); err != nil {
		return "", err
	}
	encoded, err := encodeMetadata(prepared)
	if err != nil {
		return "", err
	}
	path := s.Path(ref)
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("artifact: ensure dir for %s: %w", ref, err)
	}
	if err := afero.WriteFile(s.fs, path, body, 0o644); err != nil {
		return "", fmt.Errorf("artifact: write %s: %w", ref, err)
	}
	if err := afero.WriteFile(s.fs, s.metaPath(ref), encoded, 0o644); err != nil {
		return "", fmt.Errorf("artifact: write metadata for %s: %w", ref, err)
	}
	return path, nil
}

// Read returns a stored bundle and its metadata.
func (s *Store) Read(ref Ref) ([]byte, Metadata, error) {
	result, err := s.Check(ref, "")
	if err != nil {
		return nil, Metadata{}, err
	}
	if result.State == StateMissing {
		return nil, Metadata{}, fmt.Errorf("artifact: %s: %w", ref, fs.ErrNotExist)
	}
	body, err := afero.ReadFile(s.fs, result.Path)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("artifact: read %s: %w", ref, err)
	}
	return body, *result.Metadata, nil
}

// Remove deletes a bundle and its sidecar. Missing files are ignored.
func (s *Store) Remove(ref Ref) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	for _, p := range []string{s.Path(ref), s.metaPath(ref)} {
		if err := s.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("artifact: remove %s: %w", p, err)
		}
	}
	return nil
}

func invalidResult(ref Ref, path string, err error) (CheckResult, error) {
	return CheckResult{Ref: ref, Path: path, State: StateInvalid, Err: err}, err
}
