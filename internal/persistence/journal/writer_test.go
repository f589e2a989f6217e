package journal

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/snowflk/kleiojournal/internal/persistence/journal/blockfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncCounter struct {
	*blockfile.Memory
	syncs int
}

func (s *syncCounter) Sync() error {
	s.syncs++
	return nil
}

type brokenSink struct{}

func (brokenSink) WriteAt([]byte, int64) (int, error) {
	return 0, errors.New("read-only filesystem")
}

func TestWriter_PreallocatesZeroBlocks(t *testing.T) {
	mem := blockfile.NewMemory(nil)
	w, err := NewWriter(mem, WriterOptions{BlockSize: testBlockSize, PreallocateBlocks: 4})
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	assert.Equal(t, int64(5*testBlockSize), mem.Size())
	tail, err := ScanBlocks(context.Background(), mem, testBlockSize, Checkpoint{})
	require.NoError(t, err)
	assert.Zero(t, tail.Blocks)
	assert.Equal(t, uint64(0), tail.Offset)
}

func TestWriter_SealsFullBlocks(t *testing.T) {
	mem := blockfile.NewMemory(nil)
	w, err := NewWriter(mem, WriterOptions{BlockSize: testBlockSize, PreallocateBlocks: 1})
	require.NoError(t, err)

	payloadSize := testBlockSize - trailerSize
	require.NoError(t, w.Append(make([]byte, 2*payloadSize+3)))
	// Two full blocks reach the sink without a flush.
	tail, err := ScanBlocks(context.Background(), mem, testBlockSize, Checkpoint{})
	require.NoError(t, err)
	assert.Equal(t, 2, tail.Blocks)
	assert.Equal(t, Checkpoint{FileOffset: 2*testBlockSize + 3, Checksum: tail.Checksum}, w.Checkpoint())
}

func TestWriter_FlushedTailCanBeFollowed(t *testing.T) {
	mem := blockfile.NewMemory(nil)
	w, err := NewWriter(mem, WriterOptions{BlockSize: testBlockSize})
	require.NoError(t, err)
	appendFrames(t, w, "first", 3)
	require.NoError(t, w.Flush())

	r := newMemReader(t, mem.Bytes(), Checkpoint{})
	assert.Equal(t, append(records("first", 3), tailOutcome), readFrames(t, r))
	assert.Equal(t, w.Checkpoint(), r.Checkpoint())

	// The open block is rewritten in place; the reader's checkpoint stays valid.
	appendFrames(t, w, "second", 8)
	require.NoError(t, w.Flush())

	resumed := newMemReader(t, mem.Bytes(), r.Checkpoint())
	assert.Equal(t, append(records("second", 8), tailOutcome), readFrames(t, resumed))
}

func TestWriter_SyncOnFlush(t *testing.T) {
	sink := &syncCounter{Memory: blockfile.NewMemory(nil)}
	w, err := NewWriter(sink, WriterOptions{BlockSize: testBlockSize, SyncOnFlush: true})
	require.NoError(t, err)
	require.NoError(t, w.Append([]byte{1}))
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())
	assert.Equal(t, 2, sink.syncs)
}

func TestWriter_Closed(t *testing.T) {
	w, err := NewWriter(blockfile.NewMemory(nil), WriterOptions{BlockSize: testBlockSize})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	assert.ErrorIs(t, w.Append([]byte{1}), ErrWriterClosed)
	assert.ErrorIs(t, w.Flush(), ErrWriterClosed)
}

func TestWriter_SinkErrorIsWrapped(t *testing.T) {
	w, err := NewWriter(brokenSink{}, WriterOptions{BlockSize: testBlockSize})
	require.NoError(t, err)
	err = w.Flush()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only filesystem")
}

func TestResumeWriter(t *testing.T) {
	t.Run("empty journal starts a plain chain", func(t *testing.T) {
		mem := blockfile.NewMemory(nil)
		w, err := ResumeWriter(mem, WriterOptions{BlockSize: testBlockSize}, Tail{})
		require.NoError(t, err)
		appendFrames(t, w, "fresh", 2)
		require.NoError(t, w.Close())

		r := newMemReader(t, mem.Bytes(), Checkpoint{})
		assert.Equal(t, append(records("fresh", 2), tailOutcome), readFrames(t, r))
	})

	t.Run("misaligned tail", func(t *testing.T) {
		_, err := ResumeWriter(blockfile.NewMemory(nil), WriterOptions{BlockSize: testBlockSize}, Tail{Offset: 3, Blocks: 1})
		assert.ErrorIs(t, err, ErrMisaligned)
	})

	t.Run("invalid block size", func(t *testing.T) {
		_, err := NewWriter(blockfile.NewMemory(nil), WriterOptions{BlockSize: 100})
		assert.ErrorIs(t, err, ErrInvalidBlockSize)
	})
}
