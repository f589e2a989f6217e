package blockfile

import (
	"context"
	"io"
)

// ReaderAt adapts an io.ReaderAt, such as a section of an archive, to a
// journal handle.
type ReaderAt struct {
	R io.ReaderAt
}

func (r ReaderAt) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return r.R.ReadAt(p, off)
}
