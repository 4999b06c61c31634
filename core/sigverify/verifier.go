// Package sigverify recovers the secp256k1 signer of a priority batch's
// signed data. Mirrors the shape of crypto/secp256r1's standalone Verify
// helper in the teacher repo: a small, pure, panic-free function over raw
// hash/signature bytes, built directly on the curve library rather than a
// higher-level wrapper.
package sigverify

import (
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrBadSignature is returned for any malformed or unrecoverable signature:
// wrong length, invalid recovery id, or a curve point that does not
// recover.
var ErrBadSignature = errors.New("sigverify: bad signature")

// SignatureSize is the length of an r||s||v signature.
const SignatureSize = 65

// uncompressedRecoveryIDBase is decred's compact-signature first-byte base
// for an uncompressed-public-key recovery (27 + recovery id).
const uncompressedRecoveryIDBase = 27

// Recover recovers the 20-byte address that produced sig over msgHash.
// msgHash must be the 32-byte keccak256 digest of the signed preimage. sig
// is r||s||v: v is normalized to accept both {0,1} and {27,28}; any other
// value is rejected. Never panics on malformed input.
func Recover(msgHash [32]byte, sig []byte) (common.Address, error) {
	if len(sig) != SignatureSize {
		return common.Address{}, ErrBadSignature
	}

	recoveryID, err := normalizeV(sig[64])
	if err != nil {
		return common.Address{}, err
	}

	compact := make([]byte, SignatureSize)
	compact[0] = uncompressedRecoveryIDBase + recoveryID
	copy(compact[1:33], sig[0:32])  // r
	copy(compact[33:65], sig[32:64]) // s

	pubKey, _, err := ecdsa.RecoverCompact(compact, msgHash[:])
	if err != nil {
		return common.Address{}, ErrBadSignature
	}

	// Ethereum addresses are the low 20 bytes of keccak256 of the
	// uncompressed public key, sans the 0x04 prefix byte.
	uncompressed := pubKey.SerializeUncompressed()
	digest := crypto.Keccak256(uncompressed[1:])

	var addr common.Address
	copy(addr[:], digest[12:])
	return addr, nil
}

func normalizeV(v byte) (byte, error) {
	switch v {
	case 0, 1:
		return v, nil
	case 27, 28:
		return v - 27, nil
	default:
		return 0, ErrBadSignature
	}
}
