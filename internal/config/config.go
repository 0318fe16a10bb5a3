// Package config loads the brownian-node TOML configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/zmlAEQ/zkbrownian/internal/keys"
	"github.com/zmlAEQ/zkbrownian/internal/p2p"
	"github.com/zmlAEQ/zkbrownian/internal/params"
)

// Board backends.
const (
	BackendMemory  = "memory"
	BackendJournal = "journal"
	BackendBolt    = "bolt"
	BackendHTTP    = "http"
)

type Node struct {
	Index int
	// KeyStore is the path of this node's key seed file.
	KeyStore string
	// PublicKeys is a JSON array of hex encoded G2 keys, in node order.
	PublicKeys string
	// Topology is the JSON weight matrix for the current epoch.
	Topology string
	// API is the listen address of the node API.
	API string
}

type Board struct {
	Backend string
	// Path is the journal or bolt file.
	Path string
	// URL is the remote board for the http backend.
	URL string
	// Serve exposes the local board on the node API.
	Serve bool
}

type Relay struct {
	Workers      int
	PollInterval string
	CacheSize    int
	MaxInflight  int64
}

type Monitoring struct {
	Listen string
}

type Log struct {
	Level  string
	Format string
}

// Config is the top-level node configuration.
type Config struct {
	Params     params.Params
	Node       Node
	Board      Board
	Relay      Relay
	Monitoring Monitoring
	P2P        p2p.NetConfig
	Log        Log
}

// Default returns a config for node 0 with an in-memory board.
func Default() *Config {
	return &Config{
		Params:     params.Default(),
		Node:       Node{API: "127.0.0.1:4700"},
		Board:      Board{Backend: BackendMemory},
		Relay:      Relay{Workers: 4, PollInterval: "1s", CacheSize: 4096, MaxInflight: 64},
		Monitoring: Monitoring{Listen: "127.0.0.1:4720"},
		Log:        Log{Level: "info", Format: "json"},
	}
}

// Poll returns the parsed relay poll interval.
func (c *Config) Poll() (time.Duration, error) {
	if c.Relay.PollInterval == "" {
		return time.Second, nil
	}
	d, err := time.ParseDuration(c.Relay.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("config: Relay.PollInterval: %w", err)
	}
	if d <= 0 {
		return 0, errors.New("config: Relay.PollInterval must be positive")
	}
	return d, nil
}

// Validate returns nil if the config is usable.
func (c *Config) Validate() error {
	if err := c.Params.Validate(); err != nil {
		return fmt.Errorf("config: Params: %w", err)
	}
	if c.Node.Index < 0 || c.Node.Index >= c.Params.NumNodes {
		return fmt.Errorf("config: Node.Index %d out of range [0,%d)", c.Node.Index, c.Params.NumNodes)
	}
	if c.Node.KeyStore == "" {
		return errors.New("config: Node.KeyStore is not set")
	}
	if c.Node.PublicKeys == "" {
		return errors.New("config: Node.PublicKeys is not set")
	}
	if c.Node.Topology == "" {
		return errors.New("config: Node.Topology is not set")
	}
	switch c.Board.Backend {
	case BackendMemory:
	case BackendJournal, BackendBolt:
		if c.Board.Path == "" {
			return fmt.Errorf("config: Board.Path is required for the %s backend", c.Board.Backend)
		}
	case BackendHTTP:
		if c.Board.URL == "" {
			return errors.New("config: Board.URL is required for the http backend")
		}
		if c.Board.Serve {
			return errors.New("config: Board.Serve cannot be combined with the http backend")
		}
	default:
		return fmt.Errorf("config: unknown Board.Backend %q", c.Board.Backend)
	}
	if _, err := c.Poll(); err != nil {
		return err
	}
	return nil
}

// Load parses and validates b as a config file body. Fields missing from
// b keep their Default values.
func Load(b []byte) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads a config and resolves its relative paths against the
// directory of f.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	cfg, err := Load(b)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(f)
	for _, p := range []*string{&cfg.Node.KeyStore, &cfg.Node.PublicKeys, &cfg.Node.Topology, &cfg.Board.Path} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	return cfg, nil
}

// WriteFile encodes cfg as TOML.
func WriteFile(path string, cfg *Config) error {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

// LoadKeySet reads a JSON array of public keys.
func LoadKeySet(path string) ([]keys.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var set []keys.PublicKey
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("config: %s: empty key set", path)
	}
	return set, nil
}

// WriteKeySet stores set as an indented JSON array.
func WriteKeySet(path string, set []keys.PublicKey) error {
	raw, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
