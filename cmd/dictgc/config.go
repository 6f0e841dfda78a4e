package main

import (
	"fmt"
	"os"

	"github.com/forestrie/go-dictgc/decay"
	"github.com/forestrie/go-dictgc/ptnode"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v2"
)

const (
	defaultCapacityBytes       = 1 << 20
	defaultCompactionThreshold = 0.9
)

// Config is the TOML policy file.
type Config struct {
	LogLevel string `toml:"log_level"`
	Decaying bool   `toml:"decaying"`

	// CapacityBytes is the size budget of a dictionary. Compaction is due
	// when the trie fills CompactionThreshold of it.
	CapacityBytes       int     `toml:"capacity_bytes"`
	CompactionThreshold float64 `toml:"compaction_threshold"`

	Policy decay.Config `toml:"policy"`
}

func defaultConfig() Config {
	return Config{
		LogLevel:            "INFO",
		CapacityBytes:       defaultCapacityBytes,
		CompactionThreshold: defaultCompactionThreshold,
		Policy:              decay.DefaultConfig(),
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// loadConfigWithOverrides loads the policy file and applies CLI flag overrides
func loadConfigWithOverrides(c *cli.Context) (Config, error) {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return cfg, err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("decaying") {
		cfg.Decaying = c.Bool("decaying")
	}
	if c.IsSet("capacity") {
		cfg.CapacityBytes = c.Int("capacity")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// WordList is the TOML word list accepted by the build command.
//
//	[[word]]
//	text = "hello"
//	probability = 120
//	bigrams = [{ word = "world", probability = 40 }]
type WordList struct {
	Words []struct {
		Text        string `toml:"text"`
		Probability int    `toml:"probability"`
		Bigrams     []struct {
			Word        string `toml:"word"`
			Probability int    `toml:"probability"`
		} `toml:"bigrams"`
	} `toml:"word"`
}

func loadWordList(path string) ([]ptnode.WordEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var list WordList
	if err := toml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	words := make([]ptnode.WordEntry, 0, len(list.Words))
	for _, w := range list.Words {
		e := ptnode.WordEntry{Word: w.Text, Probability: w.Probability}
		for _, b := range w.Bigrams {
			e.Bigrams = append(e.Bigrams, ptnode.BigramSpec{Word: b.Word, Probability: b.Probability})
		}
		words = append(words, e)
	}
	return words, nil
}
