package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/snowflk/kleiojournal/internal/persistence/journal"
	"github.com/urfave/cli/v2"
)

const envPrefix = "KLEIOJOURNAL_"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	fileFlag := &cli.StringFlag{
		Name:     "file",
		Aliases:  []string{"f"},
		Usage:    "journal file",
		EnvVars:  []string{envPrefix + "FILE"},
		Required: true,
	}
	blockSizeFlag := &cli.IntFlag{
		Name:    "block-size",
		Value:   journal.DefaultBlockSize,
		Usage:   "journal block size in bytes, trailer included",
		EnvVars: []string{envPrefix + "BLOCK_SIZE"},
	}

	return &cli.App{
		Name:  "kleiojournal",
		Usage: "inspect and append to checksummed block journals",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "logrus level: debug, info, warn, error",
				EnvVars: []string{envPrefix + "LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			lvl, err := log.ParseLevel(c.String("log-level"))
			if err != nil {
				return err
			}
			log.SetLevel(lvl)
			log.SetOutput(c.App.ErrWriter)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "scan",
				Usage:  "walk the checksum chain and report the verified tail",
				Flags:  []cli.Flag{fileFlag, blockSizeFlag},
				Action: scanAction,
			},
			{
				Name:  "dump",
				Usage: "print records from a checkpoint up to the tail",
				Flags: []cli.Flag{
					fileFlag,
					blockSizeFlag,
					&cli.StringFlag{
						Name:  "codec",
						Value: codecFrame,
						Usage: "record encoding: frame or u32",
					},
					&cli.StringFlag{
						Name:    "checkpoint-db",
						Usage:   "bbolt file holding consumer checkpoints",
						EnvVars: []string{envPrefix + "CHECKPOINT_DB"},
					},
					&cli.StringFlag{
						Name:    "consumer",
						Usage:   "consumer name in the checkpoint db; a random one is generated when empty",
						EnvVars: []string{envPrefix + "CONSUMER"},
					},
					&cli.BoolFlag{
						Name:  "commit",
						Usage: "store the final checkpoint for the consumer",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "stop after this many records, 0 for no limit",
					},
				},
				Action: dumpAction,
			},
			{
				Name:  "consumers",
				Usage: "list consumers and their checkpoints",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "checkpoint-db",
						Usage:    "bbolt file holding consumer checkpoints",
						EnvVars:  []string{envPrefix + "CHECKPOINT_DB"},
						Required: true,
					},
					&cli.StringFlag{
						Name:  "match",
						Value: "*",
						Usage: "glob on consumer names",
					},
				},
				Action: consumersAction,
			},
			{
				Name:      "append",
				Usage:     "append each argument as a frame, recovering the tail first",
				ArgsUsage: "RECORD...",
				Flags: []cli.Flag{
					fileFlag,
					blockSizeFlag,
					&cli.BoolFlag{
						Name:  "sync",
						Usage: "fsync the journal before returning",
					},
				},
				Action: appendAction,
			},
		},
	}
}
