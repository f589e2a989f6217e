package testsuite

import (
	"context"
	"io"
	"testing"

	"github.com/snowflk/kleiojournal/internal/persistence/journal"
	"github.com/snowflk/kleiojournal/internal/persistence/journal/blockfile"
	"github.com/stretchr/testify/suite"
)

const blockSize = 64

type handleTestSuite struct {
	suite.Suite
	provider HandleProvider
}

// HandleProvider returns a handle whose file holds exactly contents.
// Implementations register their own cleanup on t.
type HandleProvider func(t *testing.T, contents []byte) journal.Handle

// NewHandleTestSuite returns the suite every journal handle implementation
// must pass.
func NewHandleTestSuite(provider HandleProvider) *handleTestSuite {
	return &handleTestSuite{
		provider: provider,
	}
}

func (s *handleTestSuite) TestReadAt_WholeBlock() {
	contents := pattern(3 * blockSize)
	h := s.provider(s.T(), contents)

	buf := make([]byte, blockSize)
	n, err := h.ReadAt(context.Background(), buf, blockSize)
	if err != nil && err != io.EOF {
		s.T().Fatal(err)
	}
	s.Equal(blockSize, n)
	s.Equal(contents[blockSize:2*blockSize], buf)
}

func (s *handleTestSuite) TestReadAt_ShortAtEnd() {
	contents := pattern(blockSize + blockSize/2)
	h := s.provider(s.T(), contents)

	buf := make([]byte, blockSize)
	n, _ := h.ReadAt(context.Background(), buf, blockSize)
	s.Equal(blockSize/2, n, "a read crossing the end must come back short")

	n, _ = h.ReadAt(context.Background(), buf, 4*blockSize)
	s.Equal(0, n)
}

func (s *handleTestSuite) TestReadAt_CancelledContext() {
	h := s.provider(s.T(), pattern(blockSize))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.ReadAt(ctx, make([]byte, blockSize), 0)
	s.ErrorIs(err, context.Canceled)
}

func (s *handleTestSuite) TestJournal_ReadUntilTail() {
	mem := blockfile.NewMemory(nil)
	w, err := journal.NewWriter(mem, journal.WriterOptions{BlockSize: blockSize, PreallocateBlocks: 1})
	s.Require().NoError(err)
	for i := uint32(0); i < 100; i++ {
		s.Require().NoError(w.Append(journal.AppendUint32(nil, i)))
	}
	s.Require().NoError(w.Close())

	h := s.provider(s.T(), mem.Bytes())
	r, err := journal.NewReader(h, journal.Options{BlockSize: blockSize}, journal.Checkpoint{})
	s.Require().NoError(err)
	for i := uint32(0); i < 100; i++ {
		res, err := journal.Deserialize[uint32](context.Background(), r, journal.Uint32Codec{})
		s.Require().NoError(err)
		s.Require().Equal(journal.KindRecord, res.Kind)
		s.Require().Equal(i, res.Value)
	}
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}
