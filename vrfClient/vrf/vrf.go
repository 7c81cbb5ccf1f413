// Package vrf wraps ECVRF-SECP256K1-SHA256-TAI proving and verification.
package vrf

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"
	"github.com/vechain/go-ecvrf"
)

const (
	// ProofSize is the encoded proof length: gamma (33) || c (16) || s (32).
	ProofSize = 81
	// HashSize is the proof-to-hash output length.
	HashSize = 32
)

// Prover produces VRF proofs with a fixed secret key. The suite is stateless,
// so a Prover may be used from many goroutines.
type Prover struct {
	key   *ecdsa.PrivateKey
	suite ecvrf.VRF
}

// NewProver returns a prover for a secp256k1 secret key.
func NewProver(key *ecdsa.PrivateKey) (*Prover, error) {
	if key == nil || key.D == nil || key.D.Sign() == 0 {
		return nil, fmt.Errorf("vrf secret key is required")
	}
	return &Prover{key: key, suite: ecvrf.Secp256k1Sha256Tai}, nil
}

// NewProverFromBytes parses a 32-byte secret scalar.
func NewProverFromBytes(secret []byte) (*Prover, error) {
	if len(secret) != 32 {
		return nil, fmt.Errorf("vrf secret key must be 32 bytes, got %d", len(secret))
	}
	return NewProver(secp256k1.PrivKeyFromBytes(secret).ToECDSA())
}

// Prove returns the proof for seed and its hash output.
func (p *Prover) Prove(seed []byte) (proof, hash []byte, err error) {
	hash, proof, err = p.suite.Prove(p.key, seed)
	if err != nil {
		return nil, nil, errors.Wrap(err, "vrf prove")
	}
	return proof, hash, nil
}

// PublicKey returns the ecdsa public key that verifies this prover's proofs.
func (p *Prover) PublicKey() *ecdsa.PublicKey {
	return &p.key.PublicKey
}

// CompressedPublicKey returns the 33-byte SEC1 compressed public key.
func (p *Prover) CompressedPublicKey() []byte {
	return secp256k1.PrivKeyFromBytes(p.key.D.FillBytes(make([]byte, 32))).PubKey().SerializeCompressed()
}

// Verify checks proof against seed and returns the hash output.
func Verify(pub *ecdsa.PublicKey, seed, proof []byte) ([]byte, error) {
	hash, err := ecvrf.Secp256k1Sha256Tai.Verify(pub, seed, proof)
	if err != nil {
		return nil, errors.Wrap(err, "vrf verify")
	}
	return hash, nil
}
