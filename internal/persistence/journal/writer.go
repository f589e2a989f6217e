package journal

import (
	"io"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const defaultPreallocateBlocks = 16

// Sink is the storage a Writer appends blocks to.
type Sink interface {
	io.WriterAt
}

type syncer interface {
	Sync() error
}

type WriterOptions struct {
	// BlockSize must match the block size readers use. Defaults to DefaultBlockSize.
	BlockSize int
	// PreallocateBlocks is how many zero blocks are written past the open block
	// whenever it runs out of spare space, so that readers find a checksum
	// mismatch rather than the end of the file at the tail. Defaults to 16.
	PreallocateBlocks int
	// SyncOnFlush syncs the sink after every Flush when it supports Sync.
	SyncOnFlush bool
}

func (o *WriterOptions) setDefaults() error {
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.PreallocateBlocks <= 0 {
		o.PreallocateBlocks = defaultPreallocateBlocks
	}
	return validateBlockSize(o.BlockSize)
}

// Writer packs appended bytes into chained, checksummed blocks.
//
// Full blocks are sealed and written as soon as they fill up. The open block
// is only written by Flush; later appends rewrite it in place, so its zero
// padding never becomes part of the record stream while the writer lives.
type Writer struct {
	mu   sync.Mutex
	dst  Sink
	opts WriterOptions

	block       []byte
	fill        int
	blockOffset uint64
	// seed validates the open block, already in reset form when the writer
	// restarted the chain.
	seed      uint64
	allocated uint64
	dirty     bool
	closed    bool
}

// NewWriter starts a fresh journal at offset zero.
func NewWriter(dst Sink, opts WriterOptions) (*Writer, error) {
	return newWriter(dst, opts, 0, 0)
}

// ResumeWriter continues a journal after the verified tail found by
// ScanBlocks. Whatever follows the last record in the last verified block is
// abandoned: the first new block is sealed in reset form, which readers report
// as KindReset.
func ResumeWriter(dst Sink, opts WriterOptions, tail Tail) (*Writer, error) {
	seed := tail.Checksum
	if tail.Blocks > 0 {
		seed ^= ResetXor
	}
	w, err := newWriter(dst, opts, tail.Offset, seed)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"offset": tail.Offset,
		"reset":  tail.Blocks > 0,
	}).Info("journal writer resumed")
	return w, nil
}

func newWriter(dst Sink, opts WriterOptions, offset, seed uint64) (*Writer, error) {
	if err := opts.setDefaults(); err != nil {
		return nil, err
	}
	if offset%uint64(opts.BlockSize) != 0 {
		return nil, errors.Wrapf(ErrMisaligned, "writer offset %d", offset)
	}
	return &Writer{
		dst:         dst,
		opts:        opts,
		block:       make([]byte, opts.BlockSize),
		blockOffset: offset,
		seed:        seed,
		allocated:   offset,
	}, nil
}

// Append adds p to the record stream. Records may span blocks.
func (w *Writer) Append(p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}

	payload := w.opts.BlockSize - trailerSize
	for len(p) > 0 {
		n := copy(w.block[w.fill:payload], p)
		p = p[n:]
		w.fill += n
		w.dirty = true
		if w.fill == payload {
			if err := w.seal(); err != nil {
				return err
			}
		}
	}
	return nil
}

// seal writes the full open block and opens the next one.
func (w *Writer) seal() error {
	sum := sealBlock(w.block, w.seed)
	if err := w.writeAt(w.block, w.blockOffset); err != nil {
		return err
	}
	w.seed = sum
	w.blockOffset += uint64(w.opts.BlockSize)
	w.fill = 0
	w.dirty = false
	clear(w.block)
	return w.preallocate()
}

// Flush writes the open block, zero padded, so readers can see every byte
// appended so far.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	return w.flush()
}

func (w *Writer) flush() error {
	if w.dirty {
		sealBlock(w.block, w.seed)
		if err := w.writeAt(w.block, w.blockOffset); err != nil {
			return err
		}
		w.dirty = false
	}
	if err := w.preallocate(); err != nil {
		return err
	}
	if s, ok := w.dst.(syncer); ok && w.opts.SyncOnFlush {
		return errors.Wrap(s.Sync(), "sync journal")
	}
	return nil
}

// preallocate keeps at least one zero block after the open block.
func (w *Writer) preallocate() error {
	bs := uint64(w.opts.BlockSize)
	if w.allocated >= w.blockOffset+2*bs {
		return nil
	}
	from := w.blockOffset + bs
	if w.allocated > from {
		from = w.allocated
	}
	to := w.blockOffset + bs*uint64(1+w.opts.PreallocateBlocks)
	if err := w.writeAt(make([]byte, to-from), from); err != nil {
		return err
	}
	return nil
}

func (w *Writer) writeAt(p []byte, off uint64) error {
	if _, err := w.dst.WriteAt(p, int64(off)); err != nil {
		return errors.Wrapf(err, "write journal at offset %d", off)
	}
	if end := off + uint64(len(p)); end > w.allocated {
		w.allocated = end
	}
	return nil
}

// Checkpoint returns the position a reader needs to read the next appended
// byte. It is only meaningful for readers once everything before it was flushed.
func (w *Writer) Checkpoint() Checkpoint {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Checkpoint{FileOffset: w.blockOffset + uint64(w.fill), Checksum: w.seed}
}

// Close flushes the open block. The sink is left open.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	err := w.flush()
	w.closed = true
	return err
}
