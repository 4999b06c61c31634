package exitcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/facet-protocol/facet-node/proposer"
)

func TestForSuccess(t *testing.T) {
	require.Equal(t, Success, For(nil))
}

func TestForSystemTxFailed(t *testing.T) {
	err := proposer.Fatal(fmt.Errorf("proposer: required system tx 0xabc failed in block 100"))
	require.Equal(t, SystemTxFailed, For(err))
}

func TestForEngineRejected(t *testing.T) {
	err := proposer.Fatal(fmt.Errorf("proposer: newPayload rejected block 5: status=INVALID"))
	require.Equal(t, EngineRejected, For(err))
}

func TestForL1Unrecoverable(t *testing.T) {
	err := fmt.Errorf("pipeline: fetching l1 block 9: %w", ErrL1Unrecoverable)
	require.Equal(t, L1Unrecoverable, For(err))
}

func TestForUnknown(t *testing.T) {
	require.Equal(t, Unknown, For(errors.New("something else went wrong")))
}
