package journal

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	DefaultBlockSize = 4096
	minBlockSize     = 2 * trailerSize
)

// Checkpoint identifies a resumable position in a journal.
//
// FileOffset is the physical offset of the next record byte and never points
// into a block trailer. Checksum is the chain seed that validates the block
// containing FileOffset. The zero Checkpoint is the start of a fresh journal.
type Checkpoint struct {
	FileOffset uint64
	Checksum   uint64
}

func (c Checkpoint) String() string {
	return fmt.Sprintf("%d@%016x", c.FileOffset, c.Checksum)
}

// blockStart returns the offset of the block containing the checkpoint.
func (c Checkpoint) blockStart(blockSize int) uint64 {
	return c.FileOffset - c.FileOffset%uint64(blockSize)
}

// Options configures a Reader.
type Options struct {
	// BlockSize is the fixed size of every journal block, trailer included.
	// Defaults to DefaultBlockSize.
	BlockSize int
}

func (o *Options) setDefaults() error {
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	}
	return validateBlockSize(o.BlockSize)
}

func validateBlockSize(blockSize int) error {
	if blockSize < minBlockSize || blockSize%trailerSize != 0 {
		return ErrInvalidBlockSize
	}
	return nil
}

// validCheckpoint rejects checkpoints that point into a block trailer.
func validCheckpoint(c Checkpoint, blockSize int) error {
	if c.FileOffset%uint64(blockSize) >= uint64(blockSize-trailerSize) {
		return errors.Errorf("checkpoint %s points into a block trailer", c)
	}
	return nil
}
