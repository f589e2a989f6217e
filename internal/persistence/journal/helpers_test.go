package journal

import (
	"context"
	"fmt"
	"testing"

	"github.com/snowflk/kleiojournal/internal/persistence/journal/blockfile"
	"github.com/stretchr/testify/require"
)

const testBlockSize = 64

// blockBuilder lays out blocks by hand, for journals no Writer would produce.
type blockBuilder struct {
	blockSize int
	seed      uint64
	data      []byte
}

func newBlockBuilder(blockSize int, seed uint64) *blockBuilder {
	return &blockBuilder{blockSize: blockSize, seed: seed}
}

// add appends a block holding payload, zero padded, sealed in normal or reset form.
func (b *blockBuilder) add(payload []byte, reset bool) *blockBuilder {
	block := make([]byte, b.blockSize)
	copy(block, payload)
	seed := b.seed
	if reset {
		seed ^= ResetXor
	}
	b.seed = sealBlock(block, seed)
	b.data = append(b.data, block...)
	return b
}

// garbage appends a block that verifies under no seed.
func (b *blockBuilder) garbage() *blockBuilder {
	b.data = append(b.data, make([]byte, b.blockSize)...)
	return b
}

func (b *blockBuilder) bytes() []byte {
	return b.data
}

func newMemReader(t *testing.T, data []byte, ckpt Checkpoint) *Reader {
	t.Helper()
	r, err := NewReader(blockfile.NewMemory(data), Options{BlockSize: testBlockSize}, ckpt)
	require.NoError(t, err)
	return r
}

// outcome flattens a Result so sequences can be compared directly.
type outcome struct {
	Kind  Kind
	Value string
}

func (o outcome) String() string {
	return fmt.Sprintf("%s:%s", o.Kind, o.Value)
}

// readFrames reads until the tail and returns every outcome, tail included.
func readFrames(t *testing.T, r *Reader) []outcome {
	t.Helper()
	var out []outcome
	for i := 0; i < 10000; i++ {
		res, err := Deserialize[[]byte](context.Background(), r, FrameCodec{})
		require.NoError(t, err)
		out = append(out, outcome{Kind: res.Kind, Value: string(res.Value)})
		if res.Kind == KindChecksumMismatch {
			return out
		}
	}
	t.Fatal("journal never reached its tail")
	return nil
}

func records(prefix string, n int) []outcome {
	out := make([]outcome, n)
	for i := range out {
		out[i] = outcome{Kind: KindRecord, Value: fmt.Sprintf("%s-%d", prefix, i)}
	}
	return out
}

var (
	resetOutcome = outcome{Kind: KindReset}
	tailOutcome  = outcome{Kind: KindChecksumMismatch}
)

func appendFrames(t *testing.T, w *Writer, prefix string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, w.Append(AppendFrame(nil, []byte(fmt.Sprintf("%s-%d", prefix, i)))))
	}
}

// failingHandle fails every read with err.
type failingHandle struct {
	err   error
	reads int
}

func (h *failingHandle) ReadAt(context.Context, []byte, int64) (int, error) {
	h.reads++
	return 0, h.err
}
