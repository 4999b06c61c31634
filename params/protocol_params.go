// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// This pipeline has no embedded EVM, so go-ethereum's full gas-constant
// table (SSTORE/SLOAD/CREATE/LOG/precompile costs, etc.) has no caller
// here. Only the two constants pipeline/gas.go actually prices L1 calldata
// with survive the trim from the teacher's protocol_params.go.
package params

const (
	// TxDataZeroGas is charged per zero byte of transaction data.
	TxDataZeroGas uint64 = 4
	// TxDataNonZeroGasEIP2028 is charged per non-zero byte of transaction
	// data after EIP-2028 (part of Istanbul) — the pricing pipeline/gas.go
	// uses for L1 data gas (spec §4.6), since that measure prices an L1
	// transaction's calldata, not an L2 execution fee.
	TxDataNonZeroGasEIP2028 uint64 = 16
)
