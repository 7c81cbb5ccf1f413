package responder

import (
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

const (
	// RandomByteLen is the width of the random value written back on-chain.
	RandomByteLen = 16
	// SignatureByteLen is the width of a raw transaction signature.
	SignatureByteLen = 64
	// ResultByteLen is the Borsh size of VrfResult.
	ResultByteLen = RandomByteLen + SignatureByteLen

	// RequestVrfEvent is the Anchor event name of a randomness request.
	RequestVrfEvent = "RequestVrf"
)

// RequestAccount is an account the response instruction must reference.
type RequestAccount struct {
	Pubkey     solana.PublicKey
	IsWritable bool
}

// RequestVrf is the Borsh body of the RequestVrf event. IxData is the
// instruction payload to send back; it starts with a zeroed placeholder that
// is overwritten by the VrfResult.
type RequestVrf struct {
	IxSighash [8]byte
	IxData    []byte
	Accounts  []RequestAccount
}

// VrfResult is the Borsh prefix written over the placeholder of IxData.
type VrfResult struct {
	Random             [RandomByteLen]byte
	RequestTransaction [SignatureByteLen]byte
}

// DecodeRequestVrf decodes an event body (the bytes after the discriminator).
func DecodeRequestVrf(body []byte) (*RequestVrf, error) {
	var req RequestVrf
	if err := bin.NewBorshDecoder(body).Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Encode returns the Borsh encoding of the request.
func (r *RequestVrf) Encode() ([]byte, error) {
	return bin.MarshalBorsh(r)
}

// Encode returns the Borsh encoding of the result.
func (r *VrfResult) Encode() ([]byte, error) {
	out, err := bin.MarshalBorsh(r)
	if err != nil {
		return nil, errors.Wrap(err, "encode VrfResult")
	}
	return out, nil
}

// Response is a submitted VRF answer.
type Response struct {
	ResponseTransaction string
	Seeds               []byte
	Proof               []byte
	Random              []byte
}
