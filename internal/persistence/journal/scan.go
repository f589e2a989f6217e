package journal

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Tail describes where the verified part of a journal ends.
type Tail struct {
	// Offset is the first block that did not verify, or the end of the file.
	Offset uint64
	// Checksum is the stored checksum of the last verified block, or the
	// starting seed when no block verified.
	Checksum uint64
	// Blocks is the number of blocks verified.
	Blocks int
	// Resets lists the offsets of verified reset blocks.
	Resets []uint64
}

// ScanBlocks walks the checksum chain from the block containing from without
// decoding records. Unlike a Reader it treats a short read as the end of the
// journal, since finding that end is its purpose.
func ScanBlocks(ctx context.Context, h Handle, blockSize int, from Checkpoint) (Tail, error) {
	if err := validateBlockSize(blockSize); err != nil {
		return Tail{}, err
	}
	tail := Tail{
		Offset:   from.blockStart(blockSize),
		Checksum: from.Checksum,
	}
	block := make([]byte, blockSize)
	for {
		if err := ctx.Err(); err != nil {
			return tail, err
		}
		n, err := h.ReadAt(ctx, block, int64(tail.Offset))
		if n < blockSize {
			if err != nil && !isEOF(err) {
				return tail, errors.Wrapf(err, "scan block at offset %d", tail.Offset)
			}
			break
		}
		payload, stored := splitBlock(block)
		v, sum := verifyBlock(payload, stored, tail.Checksum, tail.Blocks > 0)
		if v != verdictNormal {
			log.WithFields(log.Fields{
				"offset":  tail.Offset,
				"verdict": v,
			}).Debug("journal scan found a chain break")
		}
		if v == verdictMismatch {
			break
		}
		if v == verdictReset {
			tail.Resets = append(tail.Resets, tail.Offset)
		}
		tail.Checksum = sum
		tail.Offset += uint64(blockSize)
		tail.Blocks++
	}
	log.WithFields(log.Fields{
		"offset": tail.Offset,
		"blocks": tail.Blocks,
		"resets": len(tail.Resets),
	}).Debug("journal scan finished")
	return tail, nil
}
