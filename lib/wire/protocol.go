// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "fmt"

// Header framing constants.
const (
	// Magic opens every message. A connection that sends anything else
	// is not speaking this protocol and is terminated.
	Magic uint32 = 0x53575231 // "SWR1"

	// FormatVersion is the single supported format version.
	FormatVersion byte = 1

	// TagRequest and TagReply are the direction tags. They are
	// disjoint by construction; a message tagged neither way fails to
	// decode, and the dispatcher stamps TagReply on every reply at one
	// choke point.
	TagRequest uint32 = 0x00524551 // "REQ"
	TagReply   uint32 = 0x0052504C // "RPL"

	// MaxMessageSize bounds one serialized message. List replies for a
	// full namespace fit with a wide margin; anything bigger is a
	// protocol violation, not a real workload.
	MaxMessageSize = 256 * 1024
)

// Routine numbers. 402-409 are the classic bootstrap subsystem
// numbers; 410-411 are Switchyard extensions; the 700 block is the
// legacy shim protocol kept for old clients.
const (
	RoutineCheckIn        uint32 = 402
	RoutineRegister       uint32 = 403
	RoutineLookUp         uint32 = 404
	RoutineParent         uint32 = 406
	RoutineSubset         uint32 = 409
	RoutineListServices   uint32 = 410
	RoutineEndpointLookUp uint32 = 411
	RoutineLegacyRegister uint32 = 700
	RoutineLegacyLookUp   uint32 = 701
	RoutineSpawnApp       uint32 = 702

	// ReplyOffset is added to a request's routine to form the reply's
	// routine, so a reply never aliases a request even before the
	// direction tag is checked.
	ReplyOffset uint32 = 100
)

// RoutineName returns a human-readable routine name for logs.
func RoutineName(routine uint32) string {
	if routine > ReplyOffset {
		if name := routineNames[routine-ReplyOffset]; name != "" {
			return name + "-reply"
		}
	}
	if name := routineNames[routine]; name != "" {
		return name
	}
	return fmt.Sprintf("routine-%d", routine)
}

var routineNames = map[uint32]string{
	RoutineCheckIn:        "check-in",
	RoutineRegister:       "register",
	RoutineLookUp:         "look-up",
	RoutineParent:         "parent",
	RoutineSubset:         "subset",
	RoutineListServices:   "list-services",
	RoutineEndpointLookUp: "endpoint-look-up",
	RoutineLegacyRegister: "legacy-register",
	RoutineLegacyLookUp:   "legacy-look-up",
	RoutineSpawnApp:       "spawn-app",
}

// Payload dictionary keys shared by the dispatcher and client library.
const (
	KeyName     = "name"
	KeyEndpoint = "endpoint"
	KeyStatus   = "status"
	KeyServices = "services"
	KeyState    = "state"
	KeyOwner    = "owner"
	KeyReply    = "reply"
	KeyPayload  = "payload"
)

// Status is the reply status code carried under KeyStatus. The 1100
// block is the classic bootstrap error space; 1106-1108 are Switchyard
// additions.
type Status int64

const (
	StatusSuccess        Status = 0
	StatusNotPrivileged  Status = 1100
	StatusNameInUse      Status = 1101
	StatusUnknownService Status = 1102
	StatusServiceActive  Status = 1103
	StatusBadCount       Status = 1104
	StatusNoMemory       Status = 1105
	StatusPending        Status = 1106
	StatusNotSupported   Status = 1107
	StatusBadRoutine     Status = 1108
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNotPrivileged:
		return "not-privileged"
	case StatusNameInUse:
		return "name-in-use"
	case StatusUnknownService:
		return "unknown-service"
	case StatusServiceActive:
		return "service-active"
	case StatusBadCount:
		return "bad-count"
	case StatusNoMemory:
		return "no-memory"
	case StatusPending:
		return "pending"
	case StatusNotSupported:
		return "not-supported"
	case StatusBadRoutine:
		return "bad-routine"
	}
	return fmt.Sprintf("status-%d", int64(s))
}
