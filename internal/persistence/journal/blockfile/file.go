package blockfile

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type SyncPolicy int

const (
	NoSync SyncPolicy = iota
	// AlwaysSync opens the file with O_SYNC.
	AlwaysSync
	// SyncEverySecond syncs from a background worker once per second.
	SyncEverySecond
)

var ErrPathEmpty = errors.New("journal file path cannot be empty")

type Config struct {
	// Path locates the journal file. It is created when missing unless ReadOnly is set.
	Path string
	// ReadOnly opens the file without the writer lock, for readers that follow
	// a journal another process is writing.
	ReadOnly bool
	// OpenTimeout bounds how long Open waits for the writer lock. Zero waits forever.
	OpenTimeout time.Duration
	// SyncPolicy denotes when to perform fsync.
	SyncPolicy SyncPolicy
}

// File is a journal file on disk. Writers hold an exclusive flock on it.
type File struct {
	f      *os.File
	opts   Config
	locked bool

	closeOnce sync.Once
	stopChan  chan struct{}
	done      chan struct{}
}

func Open(cfg Config) (*File, error) {
	if cfg.Path == "" {
		return nil, ErrPathEmpty
	}
	flags := os.O_RDWR | os.O_CREATE
	if cfg.ReadOnly {
		flags = os.O_RDONLY
	} else if cfg.SyncPolicy == AlwaysSync {
		flags |= os.O_SYNC
	}
	f, err := os.OpenFile(cfg.Path, flags, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}

	file := &File{f: f, opts: cfg}
	if !cfg.ReadOnly {
		if err := flock(f.Fd(), cfg.OpenTimeout); err != nil {
			_ = f.Close()
			return nil, errors.Wrapf(err, "lock %s", cfg.Path)
		}
		file.locked = true
	}
	if !cfg.ReadOnly && cfg.SyncPolicy == SyncEverySecond {
		file.startSyncWorker()
	}
	log.WithFields(log.Fields{
		"path":     cfg.Path,
		"readOnly": cfg.ReadOnly,
	}).Info("journal file opened")
	return file, nil
}

// ReadAt reads len(p) bytes at off unless ctx is already done.
func (f *File) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return f.f.ReadAt(p, off)
}

func (f *File) WriteAt(p []byte, off int64) (int, error) {
	return f.f.WriteAt(p, off)
}

func (f *File) Sync() error {
	return f.f.Sync()
}

func (f *File) Size() (int64, error) {
	info, err := f.f.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "failed to stat file")
	}
	return info.Size(), nil
}

func (f *File) Name() string {
	return f.f.Name()
}

func (f *File) Close() error {
	var err error
	f.closeOnce.Do(func() {
		if f.stopChan != nil {
			close(f.stopChan)
			<-f.done
		}
		if f.locked {
			_ = funlock(f.f.Fd())
		}
		err = f.f.Close()
	})
	return err
}

func (f *File) startSyncWorker() {
	f.stopChan = make(chan struct{})
	f.done = make(chan struct{})
	go func() {
		defer close(f.done)
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := f.f.Sync(); err != nil {
					log.WithError(err).Warn("periodic journal sync failed")
				}
			case <-f.stopChan:
				return
			}
		}
	}()
}
