package journal

import "github.com/pkg/errors"

var (
	ErrInvalidBlockSize    = errors.New("block size must be a multiple of 8 and at least 16 bytes")
	ErrUnexpectedEndOfFile = errors.New("unexpected end of journal file: short block read")
	ErrMisaligned          = errors.New("offset is not aligned to the block size")
	ErrInsufficientData    = errors.New("insufficient data to decode record")
	ErrInvalidEncoding     = errors.New("invalid record encoding")
	// ErrChecksumMismatch is returned by operations that need a verified block
	// and could not get one. Deserialize never returns it; it reports a tail
	// through Result instead.
	ErrChecksumMismatch = errors.New("journal block checksum mismatch")
	ErrWriterClosed     = errors.New("journal writer is closed")
)

// IsInsufficientData reports whether a decode failure only means more bytes are needed.
func IsInsufficientData(err error) bool {
	return errors.Is(err, ErrInsufficientData)
}
