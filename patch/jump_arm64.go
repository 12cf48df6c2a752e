// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import "encoding/binary"

// TrampolineSize is the number of text bytes InstallRedirect
// overwrites at a patched symbol.
const TrampolineSize = 16

// trampoline encodes an absolute jump to target:
//
//	58000050    ldr x16, 8      ; load the literal below
//	d61f0200    br x16
//	<target>    8-byte little-endian literal
//
// X16 is IP0, the intra-procedure-call scratch register the ABI
// reserves for exactly this kind of veneer, so no argument register
// is disturbed on the way into the replacement.
func trampoline(target uint64) []byte {
	code := make([]byte, TrampolineSize)
	binary.LittleEndian.PutUint32(code[0:], 0x58000050)
	binary.LittleEndian.PutUint32(code[4:], 0xd61f0200)
	binary.LittleEndian.PutUint64(code[8:], target)
	return code
}
