// Package config loads the options that parameterize an analysis run:
// symbol rename rules, the commit-grouping timestamp threshold,
// trunk-only mode, the committer identity to fall back to, and the
// character-set transcoder applied to comment and log text.
//
// Options are read from a YAML file in the teacher's style (the same
// gopkg.in/yaml.v2 release the teacher vendors for its own map files)
// and are meant to be overridden by pflag-bound CLI flags layered on
// top by the command that owns the flag set.
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package config

import (
	"fmt"
	"io/ioutil"
	"regexp"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"gopkg.in/yaml.v2"

	"gitlab.com/esr/fqme"

	"gitlab.com/esr/cvsanalyze/internal/symbols"
)

// SymbolTransform is one YAML-friendly (regex, replacement) rename
// rule, applied in order against every raw tag or branch name a symbol
// table defines. It is compiled into a symbols.Rule by Rules.
type SymbolTransform struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// Config is the full set of options the analysis pass reads before it
// starts walking archives.
type Config struct {
	SymbolTransforms []SymbolTransform `yaml:"symbol_transforms"`
	CommitThreshold  time.Duration     `yaml:"commit_threshold"`
	TrunkOnly        bool              `yaml:"trunk_only"`
	Username         string            `yaml:"username"`
	Encoding         string            `yaml:"encoding"`
	Concurrency      int               `yaml:"concurrency"`
}

// Default returns the zero-configuration options: a 3-minute commit
// threshold (reposurgeon's own default fuzz window), full-tree
// analysis, no symbol renaming, and serial (one archive at a time)
// processing — the deterministic default the regression tests assume.
func Default() *Config {
	return &Config{
		CommitThreshold: 3 * time.Minute,
		Concurrency:     1,
	}
}

// Load reads a YAML configuration file. A missing Username or Encoding
// is left blank; callers needing a concrete value should call
// ResolveUsername / Transcoder, which supply the same fallbacks the
// teacher's own identity and transcoding commands use.
func Load(path string) (*Config, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Rules compiles the configured symbol transforms into the ordered
// rule list the symbols collector applies to every raw tag and branch
// name.
func (c *Config) Rules() ([]symbols.Rule, error) {
	rules := make([]symbols.Rule, 0, len(c.SymbolTransforms))
	for _, t := range c.SymbolTransforms {
		re, err := regexp.Compile(t.Pattern)
		if err != nil {
			return nil, fmt.Errorf("symbol transform %q: %w", t.Pattern, err)
		}
		rules = append(rules, symbols.Rule{Pattern: re, Replacement: t.Replacement})
	}
	return rules, nil
}

// ResolveUsername returns the configured username, or — mirroring the
// teacher's whoami(), minus its fatal exit — asks the local system who
// is running the batch.
func (c *Config) ResolveUsername() (string, error) {
	if c.Username != "" {
		return c.Username, nil
	}
	name, _, err := fqme.WhoAmI()
	if err != nil {
		return "", fmt.Errorf("can't deduce user identity: %w", err)
	}
	return name, nil
}

// Transcoder returns the decoder for the configured character
// encoding, the same ianaindex lookup the teacher's transcode command
// performs, or nil if no encoding was configured (comments and logs
// are then assumed to already be UTF-8).
func (c *Config) Transcoder() (*encoding.Decoder, error) {
	if c.Encoding == "" {
		return nil, nil
	}
	enc, err := ianaindex.IANA.Encoding(c.Encoding)
	if err != nil {
		return nil, fmt.Errorf("can't set up codec %s: %w", c.Encoding, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unknown encoding %s", c.Encoding)
	}
	return enc.NewDecoder(), nil
}
