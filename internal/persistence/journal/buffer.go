package journal

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// readerState replaces independent flags so that a pending reset and a
// terminal checksum failure can never be set together.
type readerState int

const (
	stateNormal readerState = iota
	// statePendingReset means a reset block was verified but the decoder has not
	// yet been moved past the abandoned tail in front of it.
	statePendingReset
	// stateTerminal means a block failed verification; no more data will be read.
	stateTerminal
)

func (s readerState) String() string {
	switch s {
	case statePendingReset:
		return "pending-reset"
	case stateTerminal:
		return "terminal"
	default:
		return "normal"
	}
}

// streamBuffer presents the payloads of consecutive verified blocks as one
// contiguous window and keeps the checksum chain needed to checkpoint it.
type streamBuffer struct {
	handle    Handle
	blockSize int

	// arena[start:end] holds verified, unconsumed payload bytes.
	arena      []byte
	start, end int

	// checksums[0] is the seed of the block containing fileOffset; the last
	// entry is the checksum of the most recently verified block.
	checksums  []uint64
	fileOffset uint64
	readOffset uint64

	state      readerState
	firstBlock bool
}

func newStreamBuffer(h Handle, blockSize int, ckpt Checkpoint) *streamBuffer {
	return &streamBuffer{
		handle:     h,
		blockSize:  blockSize,
		arena:      make([]byte, 0, 2*blockSize),
		checksums:  []uint64{ckpt.Checksum},
		fileOffset: ckpt.FileOffset,
		readOffset: ckpt.blockStart(blockSize),
		firstBlock: true,
	}
}

func (b *streamBuffer) payloadSize() int {
	return b.blockSize - trailerSize
}

func (b *streamBuffer) window() []byte {
	return b.arena[b.start:b.end]
}

func (b *streamBuffer) lastChecksum() uint64 {
	return b.checksums[len(b.checksums)-1]
}

// ensureFilled reads and verifies blocks until the window holds at least one
// block payload worth of bytes, or until a reset or a bad block stops it.
func (b *streamBuffer) ensureFilled(ctx context.Context) error {
	for b.end-b.start < b.payloadSize() && b.state == stateNormal {
		if err := b.readBlock(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (b *streamBuffer) readBlock(ctx context.Context) error {
	if b.readOffset%uint64(b.blockSize) != 0 {
		return errors.Wrapf(ErrMisaligned, "offset %d", b.readOffset)
	}
	b.compact()
	at := b.end
	b.grow(at + b.blockSize)
	block := b.arena[at : at+b.blockSize]

	n, err := b.handle.ReadAt(ctx, block, int64(b.readOffset))
	if n < b.blockSize {
		if err != nil && !isEOF(err) {
			return errors.Wrapf(err, "read block at offset %d", b.readOffset)
		}
		return errors.Wrapf(ErrUnexpectedEndOfFile, "read %d of %d bytes at offset %d", n, b.blockSize, b.readOffset)
	}

	payload, stored := splitBlock(block)
	v, sum := verifyBlock(payload, stored, b.lastChecksum(), !b.firstBlock)
	if v != verdictNormal {
		log.WithFields(log.Fields{
			"offset":  b.readOffset,
			"verdict": v,
		}).Debug("journal block not in normal form")
	}
	switch v {
	case verdictNormal:
		if b.firstBlock {
			// A resumed checkpoint may begin in the middle of its block.
			b.start = at + int(b.fileOffset%uint64(b.blockSize))
			b.firstBlock = false
		}
		b.end = at + len(payload)
		b.checksums = append(b.checksums, sum)
		b.readOffset += uint64(b.blockSize)
	case verdictReset:
		// The block that closed the abandoned segment now seeds the reset
		// block in its reset form, so a checkpoint taken inside the new
		// segment verifies on a fresh reader without reset detection.
		b.checksums[len(b.checksums)-1] ^= ResetXor
		b.checksums = append(b.checksums, sum)
		b.readOffset += uint64(b.blockSize)
		b.state = statePendingReset
	default:
		b.state = stateTerminal
	}
	return nil
}

// consume retires n window bytes, skipping trailers and retiring the checksum
// of every block the offset moves past.
func (b *streamBuffer) consume(n int) {
	b.start += n
	for n > 0 {
		inBlock := b.payloadSize() - int(b.fileOffset%uint64(b.blockSize))
		step := min(n, inBlock)
		b.fileOffset += uint64(step)
		n -= step
		if step == inBlock {
			b.fileOffset += trailerSize
			b.checksums = b.checksums[1:]
		}
	}
}

// resumeAfterReset drops the abandoned tail and moves the window onto the
// payload of the reset block, which was read right behind it.
func (b *streamBuffer) resumeAfterReset() {
	b.consume(b.end - b.start)
	b.end += b.payloadSize()
	b.state = stateNormal
}

// compact moves the window to the front of the arena.
func (b *streamBuffer) compact() {
	if b.start == 0 {
		return
	}
	n := copy(b.arena[:cap(b.arena)], b.arena[b.start:b.end])
	b.start, b.end = 0, n
}

func (b *streamBuffer) grow(size int) {
	if size <= len(b.arena) {
		return
	}
	if size <= cap(b.arena) {
		b.arena = b.arena[:size]
		return
	}
	arena := make([]byte, size, 2*size)
	copy(arena, b.arena[:b.end])
	b.arena = arena
}
