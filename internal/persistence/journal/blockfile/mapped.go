package blockfile

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tysontate/gommap"
)

// Mapped is a read-only, memory mapped view of a journal file. The mapping
// covers the file as it was at open or at the last Refresh.
type Mapped struct {
	mu   sync.RWMutex
	f    *os.File
	data gommap.MMap
}

func OpenMapped(path string) (*Mapped, error) {
	if path == "" {
		return nil, ErrPathEmpty
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}
	m := &Mapped{f: f}
	if err := m.mmap(); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "failed to mmap")
	}
	return m, nil
}

func (m *Mapped) mmap() error {
	info, err := m.f.Stat()
	if err != nil {
		return err
	}
	// An empty file cannot be mapped; reads see the end of file instead.
	if info.Size() == 0 {
		return nil
	}
	data, err := gommap.Map(m.f.Fd(), gommap.PROT_READ, gommap.MAP_SHARED)
	if err != nil {
		return err
	}
	// Journals are read front to back.
	if err := data.Advise(gommap.MADV_SEQUENTIAL); err != nil {
		log.WithError(err).Debug("madvise failed")
	}
	m.data = data
	return nil
}

func (m *Mapped) munmap() error {
	// Ignore the unmap if we have no mapped data.
	if m.data == nil {
		return nil
	}
	err := m.data.UnsafeUnmap()
	m.data = nil
	return err
}

// Refresh remaps the file so that bytes appended since the last mapping
// become readable.
func (m *Mapped) Refresh() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.munmap(); err != nil {
		return errors.Wrap(err, "failed to munmap")
	}
	return errors.Wrap(m.mmap(), "failed to mmap")
}

func (m *Mapped) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if off < 0 {
		return 0, errors.Errorf("negative offset %d", off)
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *Mapped) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.data))
}

func (m *Mapped) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.f.Close()
	return m.munmap()
}
