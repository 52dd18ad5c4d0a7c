package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const stateDirPerm = 0o750

// Store keeps one state value of type T in <dir>/<basename><ext>.
type Store[T any] struct {
	dir      string
	basename string
	codec    Codec
}

// NewStore creates a store. The directory is created on first Save.
func NewStore[T any](dir, basename string, codec Codec) *Store[T] {
	return &Store[T]{
		dir:      dir,
		basename: basename,
		codec:    codec,
	}
}

// Path returns the state file path.
func (s *Store[T]) Path() string {
	return filepath.Join(s.dir, s.basename+s.codec.Extension())
}

// Exists reports whether a state file is present.
func (s *Store[T]) Exists() bool {
	_, err := os.Stat(s.Path())

	return err == nil
}

// Save writes state to a temporary file and renames it over the state file,
// so a crash never leaves a truncated state behind.
func (s *Store[T]) Save(state *T) (err error) {
	err = os.MkdirAll(s.dir, stateDirPerm)
	if err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, s.basename+".*.tmp")
	if err != nil {
		return fmt.Errorf("create state file: %w", err)
	}

	defer func() {
		if err != nil {
			err = errors.Join(err, os.Remove(tmp.Name()))
		}
	}()

	err = s.codec.Encode(tmp, state)
	if err != nil {
		return errors.Join(fmt.Errorf("encode state: %w", err), tmp.Close())
	}

	err = tmp.Sync()
	if err != nil {
		return errors.Join(fmt.Errorf("sync state file: %w", err), tmp.Close())
	}

	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("close state file: %w", err)
	}

	err = os.Rename(tmp.Name(), s.Path())
	if err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}

	return nil
}

// Load reads the state file. A missing file yields an error matching
// [os.ErrNotExist].
func (s *Store[T]) Load() (*T, error) {
	file, err := os.Open(s.Path())
	if err != nil {
		return nil, fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	var state T

	err = s.codec.Decode(file, &state)
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}

	return &state, nil
}
