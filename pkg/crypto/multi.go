package crypto

// MultiHasher hashes with its primary scheme and verifies any encoding produced by
// one of its registered schemes, so stored hashes survive a change of password.scheme.
type MultiHasher struct {
	primary SchemeHasher
	schemes []SchemeHasher
}

var _ Hasher = (*MultiHasher)(nil)

func NewMultiHasher(primary SchemeHasher, others ...SchemeHasher) *MultiHasher {
	schemes := make([]SchemeHasher, 0, len(others)+1)
	schemes = append(schemes, primary)
	for _, other := range others {
		if other != nil && other.Scheme() != primary.Scheme() {
			schemes = append(schemes, other)
		}
	}
	return &MultiHasher{primary: primary, schemes: schemes}
}

// NewHasher builds a MultiHasher whose primary is the named scheme.
func NewHasher(scheme Scheme, bcryptCost int, pbkdf2Iterations int) (*MultiHasher, error) {
	bc := NewBcryptHasher(bcryptCost)
	pb := NewPBKDF2Hasher(PBKDF2Options{Iterations: pbkdf2Iterations})

	switch scheme {
	case "", SchemeBcrypt:
		return NewMultiHasher(bc, pb), nil
	case SchemePBKDF2:
		return NewMultiHasher(pb, bc), nil
	default:
		return nil, ErrUnknownScheme
	}
}

func (m *MultiHasher) Scheme() Scheme {
	return m.primary.Scheme()
}

func (m *MultiHasher) Hash(password string) (string, error) {
	return m.primary.Hash(password)
}

func (m *MultiHasher) Verify(password string, encodedHash string) (bool, error) {
	for _, scheme := range m.schemes {
		if scheme.Recognizes(encodedHash) {
			return scheme.Verify(password, encodedHash)
		}
	}
	return false, ErrInvalidHash
}
