// Package exitcode maps the pipeline's fatal-error taxonomy (spec §7) to
// process exit codes for cmd/facet-node. 0 is success; every fatal path
// gets its own nonzero code so an operator can distinguish "system tx
// failed" from "engine NACK" from "L1 RPC unrecoverable" in a process
// supervisor without parsing log lines.
package exitcode

import (
	"errors"
	"strings"

	"github.com/facet-protocol/facet-node/proposer"
)

const (
	Success = 0

	// SystemTxFailed: a required system transaction (spec §4.7 step 4,
	// the V1->V2 migration block) did not succeed post-block.
	SystemTxFailed = 10

	// EngineRejected: the execution engine returned INVALID or an
	// unexpected forkchoice/payload mismatch, or a non-fatal engine error
	// outlasted the pipeline's per-block retry budget.
	EngineRejected = 11

	// L1Unrecoverable: an L1 RPC call exhausted its retry budget.
	L1Unrecoverable = 12

	// Unknown covers any other fatal error this package doesn't
	// recognize by taxonomy; still nonzero, so it's never mistaken for
	// success.
	Unknown = 1
)

// ErrL1Unrecoverable is returned by pipeline code wrapping an L1 RPC
// error that exhausted its retry budget (spec §7 "Transport" category).
var ErrL1Unrecoverable = errors.New("exitcode: L1 RPC retry budget exhausted")

// For classifies err into one of the exit codes above. A nil err maps to
// Success; every other error is nonzero.
func For(err error) int {
	if err == nil {
		return Success
	}

	if proposer.IsFatal(err) {
		return classifyFatal(err)
	}
	if errors.Is(err, ErrL1Unrecoverable) {
		return L1Unrecoverable
	}

	return Unknown
}

// classifyFatal further distinguishes a proposer.Fatal error by the
// proposer-internal condition that produced it: a failed required system
// transaction vs. an engine handshake rejection. The proposer wraps both
// as fatalErr, so classification falls back to matching the message
// shape the proposer always uses for each case (see proposer.go's
// checkRequiredSystemTxs and the NewPayload/ForkchoiceUpdated fatal
// paths).
func classifyFatal(err error) int {
	msg := err.Error()
	if strings.Contains(msg, "required system tx") {
		return SystemTxFailed
	}
	if strings.Contains(msg, "forkchoiceUpdated") || strings.Contains(msg, "newPayload") || strings.Contains(msg, "payload status") {
		return EngineRejected
	}
	return Unknown
}
