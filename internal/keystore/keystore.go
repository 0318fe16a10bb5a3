// Package keystore persists a node's secret-key seed on local disk.
//
// Writes are atomic (tmp, fsync, rename) and keep the previous file as
// .bak so a torn or corrupted primary can be recovered on load. The body
// may optionally be sealed with AES-256-GCM.
package keystore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tchajed/marshal"
	"golang.org/x/crypto/argon2"
	"lukechampine.com/blake3"

	"github.com/zmlAEQ/zkbrownian/internal/keys"
	"github.com/zmlAEQ/zkbrownian/pkg/logger"
	"github.com/zmlAEQ/zkbrownian/pkg/metrics"
)

var (
	ErrNotFound = errors.New("keystore: not found")
	ErrCorrupt  = errors.New("keystore: corrupt file")
	ErrNoKey    = errors.New("keystore: encrypted file but no key")
)

const (
	magic       uint64 = 0x5a4b42534545440a // "ZKBSEED\n"
	version     uint64 = 1
	flagEncrypt uint64 = 1 << 0

	headerSize = 4*8 + 32
	nonceSize  = 12
	maxBody    = 1 << 20
)

// Record is what a keystore file holds.
type Record struct {
	Index     int            `json:"index"`
	Seed      []byte         `json:"seed"`
	PublicKey keys.PublicKey `json:"public_key"`
}

// Keys rebuilds the key pair from the stored seed and checks it against
// the stored public key.
func (r Record) Keys() (keys.SecretKey, keys.PublicKey, error) {
	sk, pk, err := keys.FromSeed(r.Seed)
	if err != nil {
		return keys.SecretKey{}, keys.PublicKey{}, err
	}
	if !r.PublicKey.P.IsIdentity() && !pk.Equal(r.PublicKey) {
		return keys.SecretKey{}, keys.PublicKey{}, fmt.Errorf("%w: public key does not match seed", ErrCorrupt)
	}
	return sk, pk, nil
}

type Store struct {
	mu      sync.Mutex
	path    string
	aead    cipher.AEAD
	zeroize bool
}

func New(path string) *Store { return &Store{path: path} }

// NewEncrypted seals records with a 32-byte AES key. key is wiped before
// returning. An invalid key length is an error.
func NewEncrypted(path string, key []byte, zeroize bool) (*Store, error) {
	defer zero(key)
	if len(key) != 32 {
		return nil, fmt.Errorf("keystore: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	a, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, aead: a, zeroize: zeroize}, nil
}

// FromEnv builds a Store from the environment:
//
//	ZKB_KEYSTORE_ENCRYPT=1    enable sealing
//	ZKB_KEYSTORE_KEY          hex key (64 chars)
//	ZKB_KEYSTORE_KEY_FILE     raw 32-byte key file, used when KEY is unset
//	ZKB_KEYSTORE_PASSPHRASE   argon2 passphrase, used when neither is set
//	ZKB_ZEROIZE=1             wipe plaintext buffers after use
func FromEnv(path string) (*Store, error) {
	if os.Getenv("ZKB_KEYSTORE_ENCRYPT") != "1" {
		return New(path), nil
	}
	var key []byte
	if h := os.Getenv("ZKB_KEYSTORE_KEY"); h != "" {
		b, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("keystore: ZKB_KEYSTORE_KEY: %w", err)
		}
		key = b
	} else if f := os.Getenv("ZKB_KEYSTORE_KEY_FILE"); f != "" {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("keystore: ZKB_KEYSTORE_KEY_FILE: %w", err)
		}
		key = b
	} else if pass := os.Getenv("ZKB_KEYSTORE_PASSPHRASE"); pass != "" {
		key = KeyFromPassphrase([]byte(pass))
	}
	return NewEncrypted(path, key, os.Getenv("ZKB_ZEROIZE") == "1")
}

// KeyFromPassphrase stretches a passphrase into a 32-byte sealing key.
func KeyFromPassphrase(pass []byte) []byte {
	return argon2.Key(pass, []byte("zkbrownian/keystore/v1"), 3, 32*1024, 4, 32)
}

func (s *Store) Path() string { return s.path }

// On disk:
//
//	[magic u64][version u64][flags u64][length u64][blake3-256 of body][body]
//
// body is the JSON record, or nonce||ciphertext when sealed. Integers use
// the little-endian layout of the marshal package.
func (s *Store) encode(r Record) ([]byte, error) {
	plain, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	flags := uint64(0)
	body := plain
	if s.aead != nil {
		nonce := make([]byte, nonceSize)
		if _, err := rand.Read(nonce); err != nil {
			zero(plain)
			return nil, err
		}
		body = s.aead.Seal(nonce, nonce, plain, nil)
		flags |= flagEncrypt
		zero(plain)
	}
	sum := blake3.Sum256(body)
	out := make([]byte, 0, headerSize+len(body))
	out = marshal.WriteInt(out, magic)
	out = marshal.WriteInt(out, version)
	out = marshal.WriteInt(out, flags)
	out = marshal.WriteInt(out, uint64(len(body)))
	out = marshal.WriteBytes(out, sum[:])
	out = marshal.WriteBytes(out, body)
	return out, nil
}

func (s *Store) decode(raw []byte) (Record, error) {
	if len(raw) < headerSize {
		return Record{}, fmt.Errorf("%w: short header", ErrCorrupt)
	}
	mg, b := marshal.ReadInt(raw)
	ver, b := marshal.ReadInt(b)
	flags, b := marshal.ReadInt(b)
	length, b := marshal.ReadInt(b)
	want, b := marshal.ReadBytes(b, 32)
	if mg != magic {
		return Record{}, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if ver != version {
		return Record{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, ver)
	}
	if length == 0 || length > maxBody || uint64(len(b)) != length {
		return Record{}, fmt.Errorf("%w: bad length", ErrCorrupt)
	}
	if sum := blake3.Sum256(b); string(sum[:]) != string(want) {
		return Record{}, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	plain := b
	if flags&flagEncrypt != 0 {
		if s.aead == nil {
			return Record{}, ErrNoKey
		}
		if len(b) < nonceSize {
			return Record{}, fmt.Errorf("%w: bad nonce", ErrCorrupt)
		}
		p, err := s.aead.Open(nil, b[:nonceSize], b[nonceSize:], nil)
		if err != nil {
			return Record{}, err
		}
		plain = p
	}
	var r Record
	err := json.Unmarshal(plain, &r)
	if s.zeroize {
		zero(plain)
	}
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return r, nil
}

func syncDir(dir string) {
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
}

func (s *Store) writeAtomic(r Record) error {
	raw, err := s.encode(r)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err = f.Write(raw); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	if _, err := os.Stat(s.path); err == nil {
		_ = os.Rename(s.path, s.path+".bak")
	}
	if err = os.Rename(tmp, s.path); err != nil {
		return err
	}
	syncDir(dir)
	return nil
}

func (s *Store) read(path string) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Record{}, err
	}
	defer f.Close()
	raw, err := io.ReadAll(io.LimitReader(f, headerSize+maxBody+1))
	if err != nil {
		return Record{}, err
	}
	return s.decode(raw)
}

func (s *Store) Save(_ context.Context, r Record) error {
	begin := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(r.Seed) < 32 {
		return fmt.Errorf("keystore: seed must be at least 32 bytes")
	}
	if err := s.writeAtomic(r); err != nil {
		metrics.Inc("keystore_persist_errors_total", nil)
		logger.ErrorJ("keystore", map[string]any{"op": "persist", "result": "error", "path": s.path, "err": err.Error()})
		return err
	}
	ms := float64(time.Since(begin).Microseconds()) / 1000
	metrics.ObserveSummary("keystore_persist_ms", nil, ms)
	logger.InfoJ("keystore", map[string]any{"op": "persist", "result": "ok", "path": s.path, "latency_ms": ms})
	return nil
}

// Load reads the primary file and falls back to .bak when it is missing
// or damaged.
func (s *Store) Load(_ context.Context) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.read(s.path)
	if err == nil {
		metrics.Inc("keystore_recovery_total", map[string]string{"result": "ok"})
		return r, nil
	}
	if errors.Is(err, ErrNoKey) {
		metrics.Inc("keystore_recovery_total", map[string]string{"result": "fail"})
		return Record{}, err
	}
	if r, berr := s.read(s.path + ".bak"); berr == nil {
		metrics.Inc("keystore_recovery_total", map[string]string{"result": "fallback"})
		logger.WarnJ("keystore", map[string]any{"op": "recovery", "result": "fallback", "path": s.path, "err": err.Error()})
		return r, nil
	}
	metrics.Inc("keystore_recovery_total", map[string]string{"result": "fail"})
	logger.InfoJ("keystore", map[string]any{"op": "recovery", "result": "miss", "path": s.path})
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, ErrNotFound
	}
	return Record{}, err
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
