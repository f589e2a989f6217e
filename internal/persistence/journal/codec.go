package journal

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Decoder decodes one record of type T from the front of b and reports how many
// bytes it used. A failure wrapping ErrInsufficientData means b ended before the
// record did; any other failure means the bytes are not a valid T.
type Decoder[T any] interface {
	Decode(b []byte) (T, int, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc[T any] func(b []byte) (T, int, error)

func (f DecoderFunc[T]) Decode(b []byte) (T, int, error) {
	return f(b)
}

// Uint32Codec reads fixed width little-endian uint32 records.
type Uint32Codec struct{}

func (Uint32Codec) Decode(b []byte) (uint32, int, error) {
	if len(b) < 4 {
		return 0, 0, ErrInsufficientData
	}
	return binary.LittleEndian.Uint32(b), 4, nil
}

// AppendUint32 appends the encoding of v read by Uint32Codec.
func AppendUint32(dst []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, v)
}

// maxFrameSize bounds a single frame so that a corrupt length prefix is
// reported as an invalid encoding instead of waiting for bytes forever.
const maxFrameSize = 64 << 20

// FrameCodec reads length prefixed byte records. The prefix is the uvarint of
// len+1 so that a zero byte, which is what unwritten and padded space holds,
// never starts a frame and reads as insufficient data.
type FrameCodec struct{}

func (FrameCodec) Decode(b []byte) ([]byte, int, error) {
	if len(b) == 0 || b[0] == 0 {
		return nil, 0, ErrInsufficientData
	}
	size, n := binary.Uvarint(b)
	switch {
	case n == 0:
		return nil, 0, ErrInsufficientData
	case n < 0:
		return nil, 0, errors.Wrap(ErrInvalidEncoding, "frame length overflows")
	case size-1 > maxFrameSize:
		return nil, 0, errors.Wrapf(ErrInvalidEncoding, "frame length %d exceeds limit", size-1)
	}
	end := n + int(size-1)
	if end > len(b) {
		return nil, 0, ErrInsufficientData
	}
	return append([]byte(nil), b[n:end]...), end, nil
}

// AppendFrame appends the encoding of p read by FrameCodec.
func AppendFrame(dst, p []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(p))+1)
	return append(dst, p...)
}
