package media

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// Algorithm names a digest algorithm. The name is part of every pool file name.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// ParseAlgorithm parses an algorithm name. An empty name selects SHA256.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case SHA256, "":
		return SHA256, nil
	case BLAKE3:
		return BLAKE3, nil
	default:
		return "", fmt.Errorf("unknown hash algorithm: %q", name)
	}
}

// New returns a streaming hasher for the algorithm.
func (a Algorithm) New() hash.Hash {
	if a == BLAKE3 {
		return blake3.New()
	}
	return sha256.New()
}

// Sum hashes data in one call.
func (a Algorithm) Sum(data []byte) HashDigest {
	d := HashDigest{Algo: a}
	if a == BLAKE3 {
		d.Sum = blake3.Sum256(data)
	} else {
		d.Algo = SHA256
		d.Sum = sha256.Sum256(data)
	}
	return d
}

// HashDigest identifies a blob by algorithm and 32-byte digest. It is the only key of
// the media pool; file names and extensions never take part in identity.
type HashDigest struct {
	Algo Algorithm `json:"algo"`
	Sum  [32]byte  `json:"hash"`
}

// digestFromHasher finishes h into a digest tagged with a.
func digestFromHasher(a Algorithm, h hash.Hash) HashDigest {
	d := HashDigest{Algo: a}
	copy(d.Sum[:], h.Sum(nil))
	return d
}

// Hex returns the lowercase hex form of the digest bytes.
func (d HashDigest) Hex() string {
	return hex.EncodeToString(d.Sum[:])
}

// Name returns the pool file name: <algo>-<hex>.
func (d HashDigest) Name() string {
	return string(d.Algo) + "-" + d.Hex()
}

func (d HashDigest) String() string { return d.Name() }

// PoolPath returns the extensionless pool file for d under dir.
func (d HashDigest) PoolPath(dir string) string {
	return filepath.Join(dir, d.Name())
}

// StorePath returns the extension alias of the pool file under dir.
func (d HashDigest) StorePath(dir, ext string) string {
	if ext == "" {
		return d.PoolPath(dir)
	}
	return filepath.Join(dir, d.Name()+"."+ext)
}

// Compare orders digests by algorithm name, then by digest bytes.
func (d HashDigest) Compare(o HashDigest) int {
	if c := strings.Compare(string(d.Algo), string(o.Algo)); c != 0 {
		return c
	}
	return bytes.Compare(d.Sum[:], o.Sum[:])
}

// ParseName parses a pool file name (with or without an extension).
// It returns the digest and the extension, if any.
func ParseName(name string) (HashDigest, string, error) {
	algo, rest, ok := strings.Cut(name, "-")
	if !ok {
		return HashDigest{}, "", fmt.Errorf("not a pool file name: %q", name)
	}
	a, err := ParseAlgorithm(algo)
	if err != nil || algo == "" {
		return HashDigest{}, "", fmt.Errorf("not a pool file name: %q", name)
	}
	hexPart, ext, _ := strings.Cut(rest, ".")
	d, err := parseDigest(a, hexPart)
	if err != nil {
		return HashDigest{}, "", fmt.Errorf("not a pool file name: %q: %w", name, err)
	}
	return d, ext, nil
}

func parseDigest(a Algorithm, s string) (HashDigest, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return HashDigest{}, err
	}
	if len(b) != 32 {
		return HashDigest{}, fmt.Errorf("digest has %d bytes, want 32", len(b))
	}
	d := HashDigest{Algo: a}
	copy(d.Sum[:], b)
	return d, nil
}

type digestYAML struct {
	Algo string `yaml:"algo"`
	Hash string `yaml:"hash"`
}

// MarshalYAML writes the digest as {algo, hash} with a hex hash.
func (d HashDigest) MarshalYAML() (interface{}, error) {
	return digestYAML{Algo: string(d.Algo), Hash: d.Hex()}, nil
}

// UnmarshalYAML reads the {algo, hash} form.
func (d *HashDigest) UnmarshalYAML(value *yaml.Node) error {
	var raw digestYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	a, err := ParseAlgorithm(raw.Algo)
	if err != nil {
		return err
	}
	parsed, err := parseDigest(a, raw.Hash)
	if err != nil {
		return fmt.Errorf("parsing %s digest: %w", a, err)
	}
	*d = parsed
	return nil
}
