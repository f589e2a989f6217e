package checkpoint

import (
	"encoding/binary"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/snowflk/kleiojournal/internal/persistence/journal"
	"go.etcd.io/bbolt"
)

const (
	defaultFlushAfter = 5 * time.Second
	encodedSize       = 16
)

var (
	checkpointBucketKey = []byte("checkpoints")
	ByteOrdering        = binary.LittleEndian
)

type Config struct {
	// Path of the bbolt file holding the checkpoints.
	Path string
	// FlushAfter is how long a commit stays in memory before it is written to
	// disk. Defaults to 5s.
	FlushAfter time.Duration
	// OpenTimeout bounds how long Open waits for the bbolt file lock.
	OpenTimeout time.Duration
}

// Store keeps the latest journal checkpoint of every consumer.
//
// Commits land in memory and are written to disk when they expire, on Flush
// and on Close, so a consumer can commit after every record cheaply. Commits
// never move a consumer backwards.
type Store struct {
	mu  sync.Mutex
	db  *bbolt.DB
	mem *cache.Cache

	// dbMu orders evictions against Close. Evictions also fire from inside
	// Commit and Load, which hold mu, so they cannot take mu themselves.
	dbMu   sync.Mutex
	closed bool
}

func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, ErrPathEmpty
	}
	if cfg.FlushAfter <= 0 {
		cfg.FlushAfter = defaultFlushAfter
	}
	db, err := bbolt.Open(cfg.Path, 0600, &bbolt.Options{Timeout: cfg.OpenTimeout})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open checkpoint store")
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(checkpointBucketKey)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to create checkpoint bucket")
	}

	s := &Store{
		db:  db,
		mem: cache.New(cfg.FlushAfter, cfg.FlushAfter),
	}
	// The strategy is to flush a commit to disk once it expires from memory.
	s.mem.OnEvicted(s.evicted)
	log.WithField("path", cfg.Path).Info("checkpoint store opened")
	return s, nil
}

// Commit records ckpt as the position of consumer. A checkpoint that is not
// ahead of the stored one is ignored.
func (s *Store) Commit(consumer string, ckpt journal.Checkpoint) error {
	if err := ValidateConsumer(consumer); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok, err := s.load(consumer)
	if err != nil {
		return err
	}
	if ok && ckpt.FileOffset <= cur.FileOffset {
		return nil
	}
	// Keep the deadline of an unflushed commit so that a busy consumer still
	// reaches disk every FlushAfter.
	expiration := cache.DefaultExpiration
	if _, deadline, pending := s.mem.GetWithExpiration(consumer); pending {
		if d := time.Until(deadline); d > 0 {
			expiration = d
		}
	}
	s.mem.Set(consumer, ckpt, expiration)
	return nil
}

// Load returns the checkpoint of consumer and whether one was committed.
func (s *Store) Load(consumer string) (journal.Checkpoint, bool, error) {
	if err := ValidateConsumer(consumer); err != nil {
		return journal.Checkpoint{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(consumer)
}

func (s *Store) load(consumer string) (journal.Checkpoint, bool, error) {
	if v, ok := s.mem.Get(consumer); ok {
		return v.(journal.Checkpoint), true, nil
	}
	// Expired commits may still wait for the janitor; push them to disk first.
	s.mem.DeleteExpired()
	return s.loadFromDisk(consumer)
}

func (s *Store) loadFromDisk(consumer string) (journal.Checkpoint, bool, error) {
	var (
		ckpt  journal.Checkpoint
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(checkpointBucketKey).Get([]byte(consumer))
		if b == nil {
			return nil
		}
		var err error
		ckpt, err = decode(b)
		found = err == nil
		return err
	})
	if err != nil {
		return journal.Checkpoint{}, false, errors.Wrapf(err, "load checkpoint of %s", consumer)
	}
	return ckpt, found, nil
}

func (s *Store) isClosed() bool {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	return s.closed
}

func (s *Store) evicted(consumer string, v interface{}) {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	// Close already flushed everything still in memory.
	if s.closed {
		return
	}
	if err := s.persist(consumer, v.(journal.Checkpoint)); err != nil {
		log.WithError(err).WithField("consumer", consumer).Error("failed to flush checkpoint")
	}
}

// persist writes ckpt to disk unless disk already holds a later one.
func (s *Store) persist(consumer string, ckpt journal.Checkpoint) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(checkpointBucketKey)
		key := []byte(consumer)
		if b := bkt.Get(key); b != nil {
			if cur, err := decode(b); err == nil && cur.FileOffset > ckpt.FileOffset {
				return nil
			}
		}
		return bkt.Put(key, encode(ckpt))
	})
}

// Consumers lists every consumer with a checkpoint, in memory or on disk.
func (s *Store) Consumers() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mem.DeleteExpired()
	seen := make(map[string]struct{})
	for consumer := range s.mem.Items() {
		seen[consumer] = struct{}{}
	}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(checkpointBucketKey).ForEach(func(k, _ []byte) error {
			seen[string(k)] = struct{}{}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	consumers := make([]string, 0, len(seen))
	for consumer := range seen {
		consumers = append(consumers, consumer)
	}
	sort.Strings(consumers)
	return consumers, nil
}

// ConsumersMatching lists the consumers whose names match pattern.
func (s *Store) ConsumersMatching(pattern ConsumerPattern) ([]string, error) {
	if !pattern.Valid() {
		return nil, ErrPatternInvalid
	}
	all, err := s.Consumers()
	if err != nil {
		return nil, err
	}
	matched := all[:0]
	for _, consumer := range all {
		if pattern.Match(consumer) {
			matched = append(matched, consumer)
		}
	}
	return matched, nil
}

// Flush writes every checkpoint held in memory to disk.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

func (s *Store) flush() error {
	s.mem.DeleteExpired()
	for consumer, item := range s.mem.Items() {
		if err := s.persist(consumer, item.Object.(journal.Checkpoint)); err != nil {
			return errors.Wrapf(err, "flush checkpoint of %s", consumer)
		}
	}
	return nil
}

// Close flushes and closes the bbolt file. Locks are taken mu first, then
// dbMu, the same order as an eviction fired from inside Commit.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed() {
		return nil
	}
	if err := s.flush(); err != nil {
		return err
	}

	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	s.closed = true
	s.mem.OnEvicted(nil)
	return s.db.Close()
}

func encode(ckpt journal.Checkpoint) []byte {
	b := make([]byte, encodedSize)
	ByteOrdering.PutUint64(b[0:8], ckpt.FileOffset)
	ByteOrdering.PutUint64(b[8:16], ckpt.Checksum)
	return b
}

func decode(b []byte) (journal.Checkpoint, error) {
	if len(b) != encodedSize {
		return journal.Checkpoint{}, errors.Errorf("stored checkpoint has %d bytes, expected %d", len(b), encodedSize)
	}
	return journal.Checkpoint{
		FileOffset: ByteOrdering.Uint64(b[0:8]),
		Checksum:   ByteOrdering.Uint64(b[8:16]),
	}, nil
}
