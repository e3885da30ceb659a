// Package packet splits a connection's byte stream into newline
// terminated packets.
package packet

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// TransferSize is the size of a single read from the source.
const TransferSize = 1000

const delimiter = '\n'

// ErrTooLarge is returned when the packet buffer can no longer grow.
// Callers treat it as fatal to the process.
var ErrTooLarge = errors.New("packet buffer exhausted memory")

// TruncatedError reports a partial packet that was thrown away because the
// source ended or failed before its delimiter arrived.
type TruncatedError struct {
	Discarded int
	Err       error
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("discarded %d bytes of unterminated packet: %v", e.Discarded, e.Err)
}

func (e *TruncatedError) Unwrap() error { return e.Err }

// Assembler yields complete packets from a reader, one per Next call.
// Bytes that follow a delimiter within the same read start the next packet.
type Assembler struct {
	r       io.Reader
	chunk   []byte
	pending bytes.Buffer
	// scanned is how much of pending is known to hold no delimiter.
	scanned int
	err     error
	// write appends to pending; it panics with bytes.ErrTooLarge when
	// pending cannot grow.
	write func(p []byte) (int, error)
}

// NewAssembler returns an Assembler reading from r.
func NewAssembler(r io.Reader) *Assembler {
	a := &Assembler{
		r:     r,
		chunk: make([]byte, TransferSize),
	}
	a.write = a.pending.Write
	return a
}

// Next blocks until a full packet, including its trailing newline, is
// available. When the source is exhausted it returns io.EOF if nothing was
// buffered, or a *TruncatedError if a partial packet had to be dropped.
// Other read errors are returned as-is once buffered packets are drained.
func (a *Assembler) Next() ([]byte, error) {
	for {
		if p := a.cut(); p != nil {
			return p, nil
		}

		if a.err != nil {
			if n := a.pending.Len(); n > 0 {
				a.pending.Reset()
				a.scanned = 0
				return nil, &TruncatedError{Discarded: n, Err: a.err}
			}
			return nil, a.err
		}

		n, err := a.r.Read(a.chunk)
		if n > 0 {
			if werr := a.grow(a.chunk[:n]); werr != nil {
				return nil, werr
			}
		}
		a.err = err
	}
}

// Buffered returns the size of the packet currently being assembled.
func (a *Assembler) Buffered() int {
	return a.pending.Len()
}

func (a *Assembler) cut() []byte {
	i := bytes.IndexByte(a.pending.Bytes()[a.scanned:], delimiter)
	if i < 0 {
		a.scanned = a.pending.Len()
		return nil
	}
	end := a.scanned + i + 1
	p := make([]byte, end)
	copy(p, a.pending.Next(end))
	a.scanned = 0
	return p
}

func (a *Assembler) grow(p []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if r == bytes.ErrTooLarge {
				err = errors.Wrapf(ErrTooLarge, "packet of %d bytes", a.pending.Len())
				return
			}
			panic(r)
		}
	}()
	_, err = a.write(p)
	return err
}
