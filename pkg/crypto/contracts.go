package crypto

import "errors"

var (
	ErrInvalidHash   = errors.New("password: invalid hash")
	ErrInvalidConfig = errors.New("password: invalid config")
	ErrUnknownScheme = errors.New("password: unknown hash scheme")
)

type Scheme string

const (
	SchemeBcrypt Scheme = "bcrypt"
	SchemePBKDF2 Scheme = "pbkdf2"
)

// Hasher produces salted password hashes and verifies candidates against them.
// Verify must compare in constant time.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password string, encodedHash string) (bool, error)
}

// SchemeHasher is a Hasher that can tell whether it produced a given encoding.
type SchemeHasher interface {
	Hasher
	Scheme() Scheme
	Recognizes(encodedHash string) bool
}
