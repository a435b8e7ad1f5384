package config

import (
	"io/ioutil"
	"os"
	"testing"
	"time"
)

func assertEqual(t *testing.T, a, b interface{}) {
	t.Helper()
	if a != b {
		t.Fatalf("assertEqual: expected %v == %v", a, b)
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	f, err := ioutil.TempFile("", "cvsanalyze-config-*.yml")
	if err != nil {
		t.Fatalf("TempFile: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	f.Close()
	return f.Name()
}

func TestDefaultHasThreeMinuteThresholdAndSerialConcurrency(t *testing.T) {
	cfg := Default()
	assertEqual(t, cfg.CommitThreshold, 3*time.Minute)
	assertEqual(t, cfg.TrunkOnly, false)
	assertEqual(t, cfg.Concurrency, 1)
}

func TestLoadParsesYAML(t *testing.T) {
	path := writeTemp(t, `
commit_threshold: 5m
trunk_only: true
username: fred
concurrency: 4
symbol_transforms:
  - pattern: '^rel-'
    replacement: 'REL_'
`)
	defer os.Remove(path)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertEqual(t, cfg.CommitThreshold, 5*time.Minute)
	assertEqual(t, cfg.TrunkOnly, true)
	assertEqual(t, cfg.Username, "fred")
	assertEqual(t, cfg.Concurrency, 4)
	assertEqual(t, len(cfg.SymbolTransforms), 1)
	assertEqual(t, cfg.SymbolTransforms[0].Pattern, "^rel-")
}

func TestLoadOmittedConcurrencyStaysSerial(t *testing.T) {
	path := writeTemp(t, "trunk_only: true\n")
	defer os.Remove(path)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertEqual(t, cfg.Concurrency, 1)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.yml")
	assertEqual(t, err != nil, true)
}

func TestRulesCompilesPatterns(t *testing.T) {
	cfg := &Config{SymbolTransforms: []SymbolTransform{
		{Pattern: `^rel-(.*)`, Replacement: "REL_$1"},
	}}
	rules, err := cfg.Rules()
	if err != nil {
		t.Fatalf("Rules: %v", err)
	}
	assertEqual(t, len(rules), 1)
	assertEqual(t, rules[0].Pattern.MatchString("rel-1_0"), true)
}

func TestRulesRejectsBadPattern(t *testing.T) {
	cfg := &Config{SymbolTransforms: []SymbolTransform{
		{Pattern: `(unclosed`, Replacement: "x"},
	}}
	_, err := cfg.Rules()
	assertEqual(t, err != nil, true)
}

func TestResolveUsernamePrefersConfigured(t *testing.T) {
	cfg := &Config{Username: "alice"}
	name, err := cfg.ResolveUsername()
	if err != nil {
		t.Fatalf("ResolveUsername: %v", err)
	}
	assertEqual(t, name, "alice")
}

func TestTranscoderEmptyIsNil(t *testing.T) {
	cfg := &Config{}
	dec, err := cfg.Transcoder()
	if err != nil {
		t.Fatalf("Transcoder: %v", err)
	}
	if dec != nil {
		t.Fatalf("expected nil decoder for unset encoding")
	}
}

func TestTranscoderKnownEncoding(t *testing.T) {
	cfg := &Config{Encoding: "ISO-8859-1"}
	dec, err := cfg.Transcoder()
	if err != nil {
		t.Fatalf("Transcoder: %v", err)
	}
	if dec == nil {
		t.Fatalf("expected a decoder for ISO-8859-1")
	}
}

func TestTranscoderUnknownEncoding(t *testing.T) {
	cfg := &Config{Encoding: "not-a-real-encoding"}
	_, err := cfg.Transcoder()
	assertEqual(t, err != nil, true)
}
