package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/takemehome/accounts/config"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher turns plaintext passwords into salted one-way hashes and
// checks candidates against them.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) (bool, error)
}

var (
	_ PasswordHasher = (*Bcrypt)(nil)
	_ PasswordHasher = (*Argon2)(nil)
)

var ErrInvalidHash = errors.New("invalid password hash")

// NewPasswordHasher selects the hasher configured for the process.
func NewPasswordHasher(cfg config.AuthConfig) (PasswordHasher, error) {
	switch cfg.HashAlgorithm {
	case "", "bcrypt":
		return NewBcrypt(cfg.HashCost), nil
	case "argon2id":
		return NewArgon2(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", cfg.HashAlgorithm)
	}
}

const bcryptMaxInput = 72

type Bcrypt struct {
	Cost int
}

// NewBcrypt clamps cost into the range accepted by bcrypt.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Bcrypt{Cost: cost}
}

func (b *Bcrypt) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword(bcryptInput(password), b.Cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(hashed), nil
}

func (b *Bcrypt) Verify(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
}

// bcrypt reads at most 72 bytes, longer passwords are pre-hashed with SHA-256.
func bcryptInput(password string) []byte {
	if len(password) <= bcryptMaxInput {
		return []byte(password)
	}
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

// Limits on parameters read back from stored argon2id hashes. Memory is in KiB.
const (
	argon2MaxMemory     = 1024 * 1024
	argon2MaxIterations = 64
)

// Argon2 hashes with argon2id and stores parameters alongside the digest as
// $argon2id$v=19$m=<KiB>,t=<iterations>,p=<threads>$<salt>$<hash>.
type Argon2 struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func NewArgon2() *Argon2 {
	return &Argon2{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (a *Argon2) Hash(password string) (string, error) {
	salt := make([]byte, a.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, a.Iterations, a.Memory, a.Parallelism, a.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		a.Memory,
		a.Iterations,
		a.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (a *Argon2) Verify(password, encoded string) (bool, error) {
	params, salt, key, err := decodeArgon2(encoded)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	return subtle.ConstantTimeCompare(key, candidate) == 1, nil
}

func decodeArgon2(encoded string) (*Argon2, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, nil, nil, fmt.Errorf("%w: version %q", ErrInvalidHash, parts[2])
	}

	var memory, iterations, parallelism int
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: parameters: %v", ErrInvalidHash, err)
	}
	if parallelism < 1 || parallelism > 255 ||
		iterations < 1 || iterations > argon2MaxIterations ||
		memory < 8*parallelism || memory > argon2MaxMemory {
		return nil, nil, nil, fmt.Errorf("%w: parameters out of range %q", ErrInvalidHash, parts[3])
	}
	params := &Argon2{
		Memory:      uint32(memory),
		Iterations:  uint32(iterations),
		Parallelism: uint8(parallelism),
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: salt: %v", ErrInvalidHash, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: key: %v", ErrInvalidHash, err)
	}
	if len(salt) == 0 || len(key) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: empty salt or key", ErrInvalidHash)
	}
	params.KeyLength = uint32(len(key))

	return params, salt, key, nil
}
