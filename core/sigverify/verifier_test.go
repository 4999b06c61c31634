package sigverify

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, hash [32]byte) ([]byte, []byte) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	sig, err := crypto.Sign(hash[:], key)
	require.NoError(t, err)

	addr := crypto.PubkeyToAddress(key.PublicKey)
	return sig, addr[:]
}

func TestRecoverAcceptsZeroOneAndTwentySevenTwentyEight(t *testing.T) {
	var hash [32]byte
	copy(hash[:], crypto.Keccak256([]byte("signed data")))

	sig, wantAddr := sign(t, hash)

	// crypto.Sign already returns v in {0,1}.
	got, err := Recover(hash, sig)
	require.NoError(t, err)
	require.Equal(t, string(wantAddr), string(got[:]))

	// Shift to the {27,28} convention and confirm it still recovers.
	shifted := append([]byte{}, sig...)
	shifted[64] += 27
	got, err = Recover(hash, shifted)
	require.NoError(t, err)
	require.Equal(t, string(wantAddr), string(got[:]))
}

func TestRecoverRejectsOtherVValues(t *testing.T) {
	var hash [32]byte
	copy(hash[:], crypto.Keccak256([]byte("signed data")))
	sig, _ := sign(t, hash)

	for _, v := range []byte{2, 26, 29, 35, 255} {
		bad := append([]byte{}, sig...)
		bad[64] = v
		_, err := Recover(hash, bad)
		require.ErrorIs(t, err, ErrBadSignature)
	}
}

func TestRecoverRejectsWrongLength(t *testing.T) {
	var hash [32]byte
	_, err := Recover(hash, make([]byte, 64))
	require.ErrorIs(t, err, ErrBadSignature)
}
