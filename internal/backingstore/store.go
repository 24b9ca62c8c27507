// Package backingstore implements Component B: a fixed-size, unlinked
// swap file with one slot per page. It is grounded on the teacher's
// file.FileManager (open, size, positional read/write) but drops the
// teacher's own memory-mapping of the swap file — in this module the
// only memory-mapped range is the live page range managed by
// internal/protection, so the swap file is accessed with ordinary
// positional I/O.
package backingstore

import (
	"fmt"
	"os"

	"github.com/kelvinreiter/uvm/internal/uvmutil"
)

// Store is the per-process swap file backing every managed page.
type Store struct {
	file     *os.File
	pageSize int
}

// Open creates a private file at path sized numPages*pageSize, unlinks it
// immediately so the kernel reclaims it on process exit (spec.md §3,
// "Backing store"), and returns a Store wrapping the retained descriptor.
func Open(path string, numPages, pageSize int) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("backingstore: create %s: %w", path, err)
	}

	size := int64(numPages) * int64(pageSize)
	if err := f.Truncate(size); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("backingstore: size %s to %d: %w", path, size, err)
	}

	// Unlink now: the descriptor keeps the file's storage alive for as
	// long as this process holds it open, and the kernel frees it the
	// moment the process exits, with no persistence beyond that.
	if err := os.Remove(path); err != nil {
		f.Close()
		return nil, fmt.Errorf("backingstore: unlink %s: %w", path, err)
	}

	return &Store{file: f, pageSize: pageSize}, nil
}

// ReadInto copies exactly pageSize bytes from slot p into dst. dst must
// be at least pageSize bytes; a short read is fatal (spec.md §7.4), so
// this returns uvmutil.ErrShortIO rather than a partial result.
func (s *Store) ReadInto(p uvmutil.PageID, dst []byte) error {
	n, err := s.file.ReadAt(dst[:s.pageSize], s.offset(p))
	if n != s.pageSize {
		return uvmutil.ErrShortIO
	}
	if err != nil {
		return fmt.Errorf("backingstore: read slot %d: %w", p, err)
	}
	return nil
}

// WriteFrom copies exactly pageSize bytes from src into slot p.
func (s *Store) WriteFrom(p uvmutil.PageID, src []byte) error {
	n, err := s.file.WriteAt(src[:s.pageSize], s.offset(p))
	if err != nil {
		return fmt.Errorf("backingstore: write slot %d: %w", p, err)
	}
	if n != s.pageSize {
		return uvmutil.ErrShortIO
	}
	return nil
}

// Close releases the underlying descriptor. The file has no name left to
// unlink twice; this simply drops the last reference.
func (s *Store) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *Store) offset(p uvmutil.PageID) int64 {
	return int64(p) * int64(s.pageSize)
}
