package journal

import (
	"context"
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Handle is random access, read-only storage holding a journal file.
type Handle interface {
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
}

// Kind tells what a call to Deserialize produced.
type Kind int

const (
	// KindRecord means Result.Value holds the next record.
	KindRecord Kind = iota
	// KindReset means a crash recovery discontinuity was crossed. Records from
	// the abandoned segment were dropped; decoding continues right after it.
	KindReset
	// KindChecksumMismatch means no more valid data is available. This is how
	// a reader normally reaches the writable tail of a journal.
	KindChecksumMismatch
)

func (k Kind) String() string {
	switch k {
	case KindRecord:
		return "record"
	case KindReset:
		return "reset"
	case KindChecksumMismatch:
		return "checksum-mismatch"
	default:
		return "unknown"
	}
}

// Result is the outcome of one Deserialize call.
type Result[T any] struct {
	Kind  Kind
	Value T
}

// Reader reads typed records from a journal, one at a time and in file order.
// A Reader must not be used concurrently.
type Reader struct {
	buf *streamBuffer
}

// NewReader creates a reader positioned at ckpt. Nothing is read until the
// first call that needs data.
func NewReader(h Handle, opts Options, ckpt Checkpoint) (*Reader, error) {
	if err := opts.setDefaults(); err != nil {
		return nil, err
	}
	if err := validCheckpoint(ckpt, opts.BlockSize); err != nil {
		return nil, err
	}
	return &Reader{buf: newStreamBuffer(h, opts.BlockSize, ckpt)}, nil
}

// Deserialize decodes the next record with dec.
//
// A decode failure is resolved in this order: a pending reset discards the
// abandoned tail and reports KindReset; running out of bytes after a bad block
// reports KindChecksumMismatch; anything else is returned as an error.
// Cancelling ctx while a block read is in flight leaves r as if the call was
// never made.
func Deserialize[T any](ctx context.Context, r *Reader, dec Decoder[T]) (Result[T], error) {
	b := r.buf
	if err := b.ensureFilled(ctx); err != nil {
		return Result[T]{}, err
	}
	value, n, err := dec.Decode(b.window())
	if err == nil {
		if avail := b.end - b.start; n <= 0 || n > avail {
			return Result[T]{}, errors.Wrapf(ErrInvalidEncoding, "decoder consumed %d of %d bytes", n, avail)
		}
		b.consume(n)
		return Result[T]{Kind: KindRecord, Value: value}, nil
	}

	switch {
	case b.state == statePendingReset:
		log.WithFields(log.Fields{
			"offset":    b.fileOffset,
			"discarded": b.end - b.start,
		}).Debug("journal reset boundary crossed")
		b.resumeAfterReset()
		return Result[T]{Kind: KindReset}, nil
	case b.state == stateTerminal && IsInsufficientData(err):
		log.WithField("offset", b.fileOffset).Debug("journal tail reached")
		return Result[T]{Kind: KindChecksumMismatch}, nil
	}
	return Result[T]{}, errors.Wrapf(err, "decode record at offset %d", b.fileOffset)
}

// SkipToEndOfBlock moves the reader to the first payload byte of the next
// block. It does nothing when the reader is already at a block start. The
// current block must verify, since its checksum seeds the next one.
func (r *Reader) SkipToEndOfBlock(ctx context.Context) error {
	b := r.buf
	offset := int(b.fileOffset % uint64(b.blockSize))
	if offset == 0 {
		return nil
	}
	if err := b.ensureFilled(ctx); err != nil {
		return err
	}
	skip := b.payloadSize() - offset
	if b.end-b.start < skip {
		return errors.Wrapf(ErrChecksumMismatch, "skip from offset %d", b.fileOffset)
	}
	b.consume(skip)
	return nil
}

// LastReadChecksum returns the checksum of the most recently verified block,
// or the checkpoint seed if no block was verified yet.
func (r *Reader) LastReadChecksum() uint64 {
	return r.buf.lastChecksum()
}

// Checkpoint returns the position of the next record. A new reader created
// from it yields the same records this reader would.
func (r *Reader) Checkpoint() Checkpoint {
	return Checkpoint{FileOffset: r.buf.fileOffset, Checksum: r.buf.checksums[0]}
}

// ReadOffset returns the offset of the first block the reader has not verified.
func (r *Reader) ReadOffset() uint64 {
	return r.buf.readOffset
}

// State describes the reader for diagnostics: normal, pending-reset or terminal.
func (r *Reader) State() string {
	return r.buf.state.String()
}

// BlockSize returns the block size the reader was created with.
func (r *Reader) BlockSize() int {
	return r.buf.blockSize
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
