package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zmlAEQ/zkbrownian/internal/keys"
)

const sample = `
[Params]
MaxHops = 4
NumNodes = 3
MaxOutDegree = 2
WeightSum = 4294967296

[Node]
Index = 2
KeyStore = "node-2.key"
PublicKeys = "public_keys.json"
Topology = "topology.json"

[Board]
Backend = "journal"
Path = "board.jsonl"
Serve = true

[Relay]
Workers = 2
PollInterval = "250ms"

[P2P]
Enable = true
Bootnodes = ["/ip4/127.0.0.1/tcp/31000"]
`

func TestLoad_SampleAndDefaults(t *testing.T) {
	cfg, err := Load([]byte(sample))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Params.MaxHops != 4 || cfg.Params.NumNodes != 3 || cfg.Node.Index != 2 {
		t.Fatalf("unexpected values: %+v", cfg)
	}
	if cfg.Relay.CacheSize != 4096 || cfg.Monitoring.Listen == "" {
		t.Fatalf("defaults not kept: %+v", cfg.Relay)
	}
	if d, _ := cfg.Poll(); d != 250*time.Millisecond {
		t.Fatalf("poll=%v", d)
	}
	if !cfg.P2P.Enable || len(cfg.P2P.Bootnodes) != 1 {
		t.Fatalf("p2p section: %+v", cfg.P2P)
	}
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"undecoded":  sample + "\nBogus = 1\n",
		"index":      strings.Replace(sample, "Index = 2", "Index = 3", 1),
		"backend":    strings.Replace(sample, `Backend = "journal"`, `Backend = "s3"`, 1),
		"no path":    strings.Replace(sample, `Path = "board.jsonl"`, ``, 1),
		"bad poll":   strings.Replace(sample, `"250ms"`, `"soon"`, 1),
		"bad params": strings.Replace(sample, "MaxHops = 4", "MaxHops = 0", 1),
	}
	for name, body := range cases {
		if _, err := Load([]byte(body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadFile_ResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.toml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Node.KeyStore != filepath.Join(dir, "node-2.key") || cfg.Board.Path != filepath.Join(dir, "board.jsonl") {
		t.Fatalf("paths not resolved: %+v %+v", cfg.Node, cfg.Board)
	}
}

func TestWriteFile_Reloads(t *testing.T) {
	cfg, err := Load([]byte(sample))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	path := filepath.Join(t.TempDir(), "out.toml")
	if err := WriteFile(path, cfg); err != nil {
		t.Fatalf("write: %v", err)
	}
	back, err := LoadFile(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if back.Params != cfg.Params || back.Board.Backend != cfg.Board.Backend || back.Relay.Workers != 2 {
		t.Fatalf("roundtrip mismatch: %+v", back)
	}
}

func TestKeySet_Roundtrip(t *testing.T) {
	set := make([]keys.PublicKey, 3)
	for i := range set {
		_, pk, err := keys.KeyGen(nil)
		if err != nil {
			t.Fatalf("keygen: %v", err)
		}
		set[i] = pk
	}
	path := filepath.Join(t.TempDir(), "public_keys.json")
	if err := WriteKeySet(path, set); err != nil {
		t.Fatalf("write: %v", err)
	}
	back, err := LoadKeySet(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for i := range set {
		if !back[i].Equal(set[i]) {
			t.Fatalf("key %d differs", i)
		}
	}
	if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadKeySet(path); err == nil {
		t.Fatalf("empty set accepted")
	}
}
