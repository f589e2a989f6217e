package journal

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/snowflk/kleiojournal/internal/persistence/journal/blockfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanBlocks(t *testing.T) {
	b := newBlockBuilder(testBlockSize, 0)
	b.add([]byte("one"), false)
	afterFirst := b.seed
	b.add([]byte("two"), true)
	b.add([]byte("three"), false)
	last := b.seed
	data := b.garbage().bytes()

	t.Run("from start", func(t *testing.T) {
		tail, err := ScanBlocks(context.Background(), blockfile.NewMemory(data), testBlockSize, Checkpoint{})
		require.NoError(t, err)
		assert.Equal(t, Tail{
			Offset:   3 * testBlockSize,
			Checksum: last,
			Blocks:   3,
			Resets:   []uint64{testBlockSize},
		}, tail)
	})

	t.Run("from checkpoint", func(t *testing.T) {
		ckpt := Checkpoint{FileOffset: testBlockSize + 2, Checksum: afterFirst ^ ResetXor}
		tail, err := ScanBlocks(context.Background(), blockfile.NewMemory(data), testBlockSize, ckpt)
		require.NoError(t, err)
		assert.Equal(t, 2, tail.Blocks)
		assert.Empty(t, tail.Resets)
		assert.Equal(t, uint64(3*testBlockSize), tail.Offset)
	})

	t.Run("end of file is the tail", func(t *testing.T) {
		tail, err := ScanBlocks(context.Background(), blockfile.NewMemory(data[:2*testBlockSize+5]), testBlockSize, Checkpoint{})
		require.NoError(t, err)
		assert.Equal(t, 2, tail.Blocks)
		assert.Equal(t, uint64(2*testBlockSize), tail.Offset)
	})

	t.Run("reset on first block is not accepted", func(t *testing.T) {
		only := newBlockBuilder(testBlockSize, 0).add([]byte("x"), true).bytes()
		tail, err := ScanBlocks(context.Background(), blockfile.NewMemory(only), testBlockSize, Checkpoint{})
		require.NoError(t, err)
		assert.Zero(t, tail.Blocks)
	})
}

func TestScanBlocks_Errors(t *testing.T) {
	_, err := ScanBlocks(context.Background(), blockfile.NewMemory(nil), 10, Checkpoint{})
	assert.ErrorIs(t, err, ErrInvalidBlockSize)

	ioErr := errors.New("bad sector")
	_, err = ScanBlocks(context.Background(), &failingHandle{err: ioErr}, testBlockSize, Checkpoint{})
	assert.ErrorIs(t, err, ioErr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ScanBlocks(ctx, blockfile.NewMemory(nil), testBlockSize, Checkpoint{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanBlocks_LogsChainBreaks(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()
	level := log.GetLevel()
	log.SetLevel(log.DebugLevel)
	defer log.SetLevel(level)

	data := newBlockBuilder(testBlockSize, 0).
		add([]byte("one"), false).
		add([]byte("two"), true).
		garbage().
		bytes()
	_, err := ScanBlocks(context.Background(), blockfile.NewMemory(data), testBlockSize, Checkpoint{})
	require.NoError(t, err)

	var verdicts []string
	for _, e := range hook.AllEntries() {
		if v, ok := e.Data["verdict"]; ok {
			verdicts = append(verdicts, fmt.Sprint(v))
		}
	}
	assert.Equal(t, []string{"reset", "mismatch"}, verdicts)
}
