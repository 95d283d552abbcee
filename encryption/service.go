package encryption

import (
	"crypto/rand"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

// AdminRole is the registry role allowed to manage elections.
const AdminRole = "ELECTION_ADMIN"

// BlindingValueSize is the length of the per-vote random secret.
const BlindingValueSize = 32

// CryptoService produces the hashes and random values the contracts expect.
type CryptoService struct {
	random io.Reader
}

func NewCryptoService() *CryptoService {
	return &CryptoService{random: rand.Reader}
}

// NewCryptoServiceWithReader is used by tests that need a controlled source.
func NewCryptoServiceWithReader(r io.Reader) *CryptoService {
	return &CryptoService{random: r}
}

// NewBlindingValue returns a fresh 32 byte value. Callers must request one per vote.
func (cs *CryptoService) NewBlindingValue() ([32]byte, error) {
	var v [32]byte
	if _, err := io.ReadFull(cs.random, v[:]); err != nil {
		return v, errors.Wrap(err, "failed to generate blinding value")
	}
	return v, nil
}

// IdentityHash turns the voter's identity text into the registration leaf.
func (cs *CryptoService) IdentityHash(input string) common.Hash {
	return common.BytesToHash(cs.Keccak256([]byte(input)))
}

// RoleHash is keccak256 of the role label, as computed by the access-control contract.
func (cs *CryptoService) RoleHash(label string) common.Hash {
	return common.BytesToHash(cs.Keccak256([]byte(label)))
}

// Keccak256 computes Keccak-256 hash
func (cs *CryptoService) Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}
