// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import "encoding/binary"

// TrampolineSize is the number of text bytes InstallRedirect
// overwrites at a patched symbol.
const TrampolineSize = 14

// trampoline encodes an absolute jump to target:
//
//	ff 25 00 00 00 00    jmp [rip+0]
//	<target>             8-byte little-endian literal
//
// The indirect form reads its destination from the literal that
// follows the instruction and clobbers no register, so the
// replacement receives the original call's arguments untouched under
// any calling convention the module uses.
func trampoline(target uint64) []byte {
	code := make([]byte, TrampolineSize)
	code[0] = 0xff
	code[1] = 0x25
	// Displacement bytes 2..5 stay zero: the literal sits immediately
	// after the instruction.
	binary.LittleEndian.PutUint64(code[6:], target)
	return code
}
