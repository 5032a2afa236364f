package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/arklim/auth-service/internal/core/domain"
)

// Encoded hashes look like argon2id$v=19$m=<memory>,t=<iterations>,p=<parallelism>$<salt>$<key>.
const (
	argon2Variant   = "argon2id"
	argon2Version   = "v=19"
	argon2ParamsFmt = "m=%d,t=%d,p=%d"
)

var (
	errInvalidHashFormat = errors.New("argon2: invalid encoded hash format")
	b64                  = base64.RawStdEncoding
)

type Argon2Config struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (c Argon2Config) validate() error {
	switch {
	case c.Memory < 8*1024:
		return fmt.Errorf("%w: argon2 memory must be at least 8192 KiB", domain.ErrConfiguration)
	case c.Iterations == 0:
		return fmt.Errorf("%w: argon2 iterations must be positive", domain.ErrConfiguration)
	case c.Parallelism == 0:
		return fmt.Errorf("%w: argon2 parallelism must be positive", domain.ErrConfiguration)
	case c.SaltLength < 8:
		return fmt.Errorf("%w: argon2 salt must be at least 8 bytes", domain.ErrConfiguration)
	case c.KeyLength < 16:
		return fmt.Errorf("%w: argon2 key must be at least 16 bytes", domain.ErrConfiguration)
	}
	return nil
}

func (c Argon2Config) key(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, c.Iterations, c.Memory, c.Parallelism, c.KeyLength)
}

// Argon2Hasher produces Argon2id hashes with a fixed cost and verifies
// hashes produced under any cost, reading parameters back from the hash.
type Argon2Hasher struct {
	cfg Argon2Config
}

func NewArgon2Hasher(cfg Argon2Config) (*Argon2Hasher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2Hasher{cfg: cfg}, nil
}

func (h *Argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2: generate salt: %w", err)
	}

	params := fmt.Sprintf(argon2ParamsFmt, h.cfg.Memory, h.cfg.Iterations, h.cfg.Parallelism)
	return strings.Join([]string{
		argon2Variant,
		argon2Version,
		params,
		b64.EncodeToString(salt),
		b64.EncodeToString(h.cfg.key(password, salt)),
	}, "$"), nil
}

// Verify reports whether password matches encoded. Empty inputs never match.
func (h *Argon2Hasher) Verify(password, encoded string) (bool, error) {
	if password == "" || encoded == "" {
		return false, nil
	}

	cfg, salt, want, err := parseArgon2Hash(encoded)
	if err != nil {
		return false, err
	}

	got := cfg.key(password, salt)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func parseArgon2Hash(encoded string) (Argon2Config, []byte, []byte, error) {
	var cfg Argon2Config

	parts := strings.Split(encoded, "$")
	if len(parts) != 5 {
		return cfg, nil, nil, errInvalidHashFormat
	}
	if parts[0] != argon2Variant {
		return cfg, nil, nil, fmt.Errorf("%w: variant %q", errInvalidHashFormat, parts[0])
	}
	if parts[1] != argon2Version {
		return cfg, nil, nil, fmt.Errorf("%w: version %q", errInvalidHashFormat, parts[1])
	}

	if _, err := fmt.Sscanf(parts[2], argon2ParamsFmt, &cfg.Memory, &cfg.Iterations, &cfg.Parallelism); err != nil {
		return cfg, nil, nil, fmt.Errorf("%w: params: %v", errInvalidHashFormat, err)
	}
	// Sscanf ignores trailing input; re-rendering catches it.
	if fmt.Sprintf(argon2ParamsFmt, cfg.Memory, cfg.Iterations, cfg.Parallelism) != parts[2] {
		return cfg, nil, nil, fmt.Errorf("%w: params %q", errInvalidHashFormat, parts[2])
	}

	salt, err := b64.DecodeString(parts[3])
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("%w: salt: %v", errInvalidHashFormat, err)
	}
	key, err := b64.DecodeString(parts[4])
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("%w: key: %v", errInvalidHashFormat, err)
	}

	cfg.SaltLength = uint32(len(salt))
	cfg.KeyLength = uint32(len(key))
	if err := cfg.validate(); err != nil {
		return cfg, nil, nil, fmt.Errorf("%w: %v", errInvalidHashFormat, err)
	}
	return cfg, salt, key, nil
}
