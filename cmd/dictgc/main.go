package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-dictgc/decay"
	"github.com/forestrie/go-dictgc/dictfile"
	"github.com/forestrie/go-dictgc/gc"
	"github.com/forestrie/go-dictgc/ptbuf"
	"github.com/forestrie/go-dictgc/ptnode"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "dictgc: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "dictgc",
		Usage: "Build, compact and inspect patricia-trie dictionaries",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "TOML policy file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (overrides config)",
			},
			&cli.Int64Flag{
				Name:  "now",
				Usage: "Clock reading in unix seconds, for replays (default: current time)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "build",
				Usage: "Build a dictionary from a TOML word list",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "words", Aliases: []string{"w"}, Usage: "Word list", Required: true},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Dictionary file to write", Required: true},
					&cli.BoolFlag{Name: "decaying", Usage: "Build a decaying dictionary (overrides config)"},
					&cli.IntFlag{Name: "capacity", Usage: "Trie capacity in bytes (overrides config)"},
				},
				Action: buildAction,
			},
			{
				Name:      "compact",
				Usage:     "Compact a dictionary, decaying it if it is a decaying dictionary",
				ArgsUsage: "<dictionary>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file (default: rewrite in place)"},
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Compact even when not due"},
					&cli.IntFlag{Name: "capacity", Usage: "Size budget in bytes used to decide if compaction is due"},
				},
				Action: compactAction,
			},
			{
				Name:      "dump",
				Usage:     "Print the header and live words of a dictionary",
				ArgsUsage: "<dictionary>",
				Action:    dumpAction,
			},
		},
	}
}

func newLogger(cfg Config) logger.Logger {
	logger.New(cfg.LogLevel)
	return logger.Sugar.WithServiceName("dictgc")
}

func clock(c *cli.Context) func() time.Time {
	if now := c.Int64("now"); now != 0 {
		t := time.Unix(now, 0)
		return func() time.Time { return t }
	}
	return time.Now
}

func dictionaryArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("%s: expected one dictionary path", c.Command.Name)
	}
	return c.Args().First(), nil
}

func buildAction(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	defer logger.OnExit()

	words, err := loadWordList(c.String("words"))
	if err != nil {
		return err
	}
	buf, err := ptbuf.New(cfg.CapacityBytes)
	if err != nil {
		return err
	}
	root, err := ptnode.Build(buf, words)
	if err != nil {
		return err
	}

	header := decay.NewHeaderPolicy(cfg.Decaying, cfg.Policy, clock(c)())
	header.UnigramCount = len(words)
	for _, w := range words {
		header.BigramCount += len(w.Bigrams)
	}

	out := c.String("out")
	if err := dictfile.Save(out, &dictfile.Dictionary{Header: header, Root: root, Trie: buf}); err != nil {
		return err
	}
	log.Infof("%s: %d words, %d bigrams, %d bytes", out, header.UnigramCount, header.BigramCount, buf.Tail())
	return nil
}

func compactAction(c *cli.Context) error {
	in, err := dictionaryArg(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	defer logger.OnExit()

	d, err := dictfile.Load(in)
	if err != nil {
		return err
	}
	now := clock(c)
	used := int(d.Trie.Tail())
	if !c.Bool("force") &&
		!gc.NeedsCompaction(used, cfg.CapacityBytes, cfg.CompactionThreshold) &&
		!decay.NeedsToDecay(&d.Header, now()) {
		log.Infof("%s: compaction not due, %d of %d bytes used", in, used, cfg.CapacityBytes)
		return nil
	}

	// the dictionary's own header carries the policy it was built with
	policy, err := decay.NewForgettingCurve(d.Header.Config, decay.WithClock(now))
	if err != nil {
		return err
	}
	res, err := gc.NewCompactor(log, policy, gc.WithClock(now)).Run(d.Trie, d.Root, d.Header)
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}

	out := c.String("out")
	if out == "" {
		out = in
	}
	err = dictfile.Save(out, &dictfile.Dictionary{Header: res.Header, Root: res.RootPos, Trie: res.Buffer})
	if err != nil {
		return err
	}
	log.Infof("%s: run %s reclaimed %d bytes, %d unigrams, %d bigrams, fingerprint %016x",
		out, res.RunID, res.BytesReclaimed, res.UnigramCount, res.BigramCount, res.Fingerprint)
	return nil
}

func dumpAction(c *cli.Context) error {
	in, err := dictionaryArg(c)
	if err != nil {
		return err
	}
	d, err := dictfile.Load(in)
	if err != nil {
		return err
	}
	words, err := ptnode.ReadWords(ptnode.NewReader(d.Trie), d.Root)
	if err != nil {
		return err
	}

	w := c.App.Writer
	h := d.Header
	fmt.Fprintf(w, "# decaying=%v last_decayed=%s unigrams=%d bigrams=%d bytes=%d\n",
		h.DecayingDict, h.LastDecayed().UTC().Format(time.RFC3339), h.UnigramCount, h.BigramCount, d.Trie.Tail())
	for _, e := range words {
		bigrams := make([]string, 0, len(e.Bigrams))
		for _, b := range e.Bigrams {
			bigrams = append(bigrams, fmt.Sprintf("%s=%d", b.Word, b.Probability))
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", e.Word, e.Probability, strings.Join(bigrams, ","))
	}
	return nil
}
