package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/snowflk/kleiojournal/internal/persistence/checkpoint"
	"github.com/snowflk/kleiojournal/internal/persistence/journal"
	"github.com/snowflk/kleiojournal/internal/persistence/journal/blockfile"
	"github.com/urfave/cli/v2"
)

const (
	codecFrame = "frame"
	codecU32   = "u32"
)

func scanAction(c *cli.Context) error {
	m, err := blockfile.OpenMapped(c.String("file"))
	if err != nil {
		return err
	}
	defer m.Close()

	tail, err := journal.ScanBlocks(c.Context, m, c.Int("block-size"), journal.Checkpoint{})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "blocks=%d tail=%d checksum=%016x resets=%v\n",
		tail.Blocks, tail.Offset, tail.Checksum, tail.Resets)
	return nil
}

func dumpAction(c *cli.Context) error {
	if c.Bool("commit") && c.String("checkpoint-db") == "" {
		return errors.New("--commit needs --checkpoint-db")
	}
	m, err := blockfile.OpenMapped(c.String("file"))
	if err != nil {
		return err
	}
	defer m.Close()

	var (
		store    *checkpoint.Store
		consumer = c.String("consumer")
		from     journal.Checkpoint
	)
	if path := c.String("checkpoint-db"); path != "" {
		if store, err = checkpoint.Open(checkpoint.Config{Path: path}); err != nil {
			return err
		}
		defer store.Close()
		if consumer == "" {
			consumer = uuid.New().String()
			log.WithField("consumer", consumer).Warn("no consumer given, using a generated name")
		}
		if ckpt, ok, err := store.Load(consumer); err != nil {
			return err
		} else if ok {
			from = ckpt
		}
	}

	r, err := journal.NewReader(m, journal.Options{BlockSize: c.Int("block-size")}, from)
	if err != nil {
		return err
	}
	w, limit := c.App.Writer, c.Int("limit")
	var end journal.Checkpoint
	switch codec := c.String("codec"); codec {
	case codecFrame:
		end, err = dump[[]byte](c.Context, w, r, journal.FrameCodec{}, limit, func(v []byte) string {
			return strconv.Quote(string(v))
		})
	case codecU32:
		end, err = dump[uint32](c.Context, w, r, journal.Uint32Codec{}, limit, func(v uint32) string {
			return strconv.FormatUint(uint64(v), 10)
		})
	default:
		return errors.Errorf("unknown codec %q", codec)
	}
	if err != nil {
		return err
	}

	if c.Bool("commit") {
		if err := store.Commit(consumer, end); err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"consumer":   consumer,
			"checkpoint": end,
		}).Info("checkpoint committed")
	}
	return nil
}

// dump prints one line per record and per reset boundary, and returns the
// checkpoint after the last record printed.
func dump[T any](ctx context.Context, w io.Writer, r *journal.Reader, dec journal.Decoder[T], limit int, format func(T) string) (journal.Checkpoint, error) {
	it := journal.NewIterator(r, dec)
	var at journal.Checkpoint
	it.OnReset = func(resumed journal.Checkpoint) {
		fmt.Fprintf(w, "-- reset, resuming at %s\n", resumed)
		at = resumed
	}
	for n := 0; limit <= 0 || n < limit; n++ {
		at = it.Checkpoint()
		if !it.Next(ctx) {
			if err := it.Err(); err != nil {
				return it.Checkpoint(), err
			}
			fmt.Fprintf(w, "-- tail at %s\n", it.Checkpoint())
			break
		}
		fmt.Fprintf(w, "%d\t%s\n", at.FileOffset, format(it.Value()))
	}
	return it.Checkpoint(), nil
}

func consumersAction(c *cli.Context) error {
	store, err := checkpoint.Open(checkpoint.Config{Path: c.String("checkpoint-db")})
	if err != nil {
		return err
	}
	defer store.Close()

	consumers, err := store.ConsumersMatching(checkpoint.Pattern(c.String("match")))
	if err != nil {
		return err
	}
	for _, consumer := range consumers {
		ckpt, _, err := store.Load(consumer)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s\t%s\n", consumer, ckpt)
	}
	return nil
}

func appendAction(c *cli.Context) error {
	records := c.Args().Slice()
	if len(records) == 0 {
		return errors.New("nothing to append")
	}
	policy := blockfile.NoSync
	if c.Bool("sync") {
		policy = blockfile.AlwaysSync
	}
	f, err := blockfile.Open(blockfile.Config{Path: c.String("file"), SyncPolicy: policy})
	if err != nil {
		return err
	}
	defer f.Close()

	opts := journal.WriterOptions{BlockSize: c.Int("block-size"), SyncOnFlush: c.Bool("sync")}
	tail, err := journal.ScanBlocks(c.Context, f, opts.BlockSize, journal.Checkpoint{})
	if err != nil {
		return err
	}
	w, err := journal.ResumeWriter(f, opts, tail)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := w.Append(journal.AppendFrame(nil, []byte(rec))); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "appended %d records, next checkpoint %s\n", len(records), w.Checkpoint())
	return nil
}
