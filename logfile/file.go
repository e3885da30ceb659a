// Package logfile implements the shared append-only log that every
// connection and the timestamp emitter write into.
//
// A File has two operations, Append and ReadAll. Both run under the same
// mutex for their whole duration, so a reader never observes a partially
// written record and every ReadAll reflects all appends that completed
// before it.
package logfile

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// ErrRemoved is returned by operations on a File after Remove.
var ErrRemoved = errors.New("log file has been removed")

// File is a mutex-guarded append-only file.
type File struct {
	mu   sync.Mutex
	path string
	fp   *os.File
	size int64
}

// Open creates the file at path, truncating any previous contents.
func Open(path string) (*File, error) {
	fp, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open log file %s", path)
	}
	return &File{path: path, fp: fp}, nil
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

// Append writes p to the end of the log as one unit.
func (f *File) Append(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fp == nil {
		return ErrRemoved
	}
	n, err := f.fp.Write(p)
	f.size += int64(n)
	if err != nil {
		return errors.Wrapf(err, "failed to append %d bytes to %s", len(p), f.path)
	}
	return nil
}

// ReadAll streams the whole log from the start into w. The lock is held
// until the last byte has been handed to w.
func (f *File) ReadAll(w io.Writer) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fp == nil {
		return 0, ErrRemoved
	}
	n, err := io.Copy(w, io.NewSectionReader(f.fp, 0, f.size))
	if err != nil {
		return n, errors.Wrapf(err, "failed to read %s", f.path)
	}
	return n, nil
}

// Size returns the number of bytes appended so far.
func (f *File) Size() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

// Remove closes and deletes the backing file. Later calls are no-ops.
func (f *File) Remove() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fp == nil {
		return nil
	}
	closeErr := f.fp.Close()
	f.fp = nil
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove %s", f.path)
	}
	return errors.Wrap(closeErr, "failed to close log file")
}
