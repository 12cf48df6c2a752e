// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"

	"github.com/switchyard-systems/switchyard/lib/capability"
)

// Message is one protocol message: a direction tag, a routine number,
// and a payload dictionary.
type Message struct {
	// Direction is TagRequest or TagReply. Nothing else decodes.
	Direction uint32

	// Routine identifies the operation (requests) or the operation
	// answered (replies, where it is request routine + ReplyOffset).
	Routine uint32

	// Payload carries the message body.
	Payload Dictionary
}

// IsReply reports whether the message carries the reply direction tag.
// Clients check this before touching any capability a message carries:
// unpacking descriptors out of a misdirected message would hand
// authority to the wrong code path.
func (m Message) IsReply() bool { return m.Direction == TagReply }

// Dictionary is a string-keyed payload map. Serialization order is
// sorted by key, so the same dictionary always produces the same
// bytes and the same capability slot order.
type Dictionary map[string]Value

// ValueKind discriminates the payload value union.
type ValueKind int

const (
	KindDictionary ValueKind = iota + 1
	KindString
	KindInt64
	KindBool
	KindCapability
)

func (k ValueKind) String() string {
	switch k {
	case KindDictionary:
		return "dictionary"
	case KindString:
		return "string"
	case KindInt64:
		return "int64"
	case KindBool:
		return "bool"
	case KindCapability:
		return "capability"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value is one payload value: a nested dictionary, a string, an int64,
// a bool, or a capability reference.
type Value struct {
	kind  ValueKind
	str   string
	num   int64
	truth bool
	dict  Dictionary
	cap   *capability.Capability
}

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int64 returns an integer value.
func Int64(n int64) Value { return Value{kind: KindInt64, num: n} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, truth: b} }

// Dict returns a nested dictionary value.
func Dict(d Dictionary) Value { return Value{kind: KindDictionary, dict: d} }

// Cap returns a capability value. Send and send-once capabilities
// serialize under the send tag; receive capabilities under the receive
// tag.
func Cap(c *capability.Capability) Value { return Value{kind: KindCapability, cap: c} }

// Kind returns the value's discriminator.
func (v Value) Kind() ValueKind { return v.kind }

// Str returns the string value, if this is one.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Int returns the integer value, if this is one.
func (v Value) Int() (int64, bool) { return v.num, v.kind == KindInt64 }

// Bool returns the boolean value, if this is one.
func (v Value) Bool() (bool, bool) { return v.truth, v.kind == KindBool }

// Dict returns the nested dictionary, if this is one.
func (v Value) Dict() (Dictionary, bool) { return v.dict, v.kind == KindDictionary }

// Capability returns the capability, if this is one. A capability
// freshly decoded from the wire is unbound until Bind attaches its
// transferred descriptor.
func (v Value) Capability() (*capability.Capability, bool) {
	return v.cap, v.kind == KindCapability
}

// Str returns the string under key, if present with that type.
func (d Dictionary) Str(key string) (string, bool) {
	v, ok := d[key]
	if !ok {
		return "", false
	}
	return v.Str()
}

// Int returns the integer under key, if present with that type.
func (d Dictionary) Int(key string) (int64, bool) {
	v, ok := d[key]
	if !ok {
		return 0, false
	}
	return v.Int()
}

// Bool returns the boolean under key, if present with that type.
func (d Dictionary) Bool(key string) (bool, bool) {
	v, ok := d[key]
	if !ok {
		return false, false
	}
	return v.Bool()
}

// SubDict returns the nested dictionary under key, if present.
func (d Dictionary) SubDict(key string) (Dictionary, bool) {
	v, ok := d[key]
	if !ok {
		return nil, false
	}
	return v.Dict()
}

// Capability returns the capability under key, if present.
func (d Dictionary) Capability(key string) (*capability.Capability, bool) {
	v, ok := d[key]
	if !ok {
		return nil, false
	}
	return v.Capability()
}

// Status extracts the reply status under KeyStatus. Replies without a
// status are malformed; the second return is false for those.
func (d Dictionary) Status() (Status, bool) {
	n, ok := d.Int(KeyStatus)
	if !ok {
		return 0, false
	}
	return Status(n), true
}

// CloseCapabilities closes every capability the payload still holds,
// recursing through nested dictionaries. A handler that takes
// ownership of a capability deletes its entry first; whatever remains
// afterward is authority nobody claimed, and dropping it on the floor
// would leak descriptors.
func (m Message) CloseCapabilities() {
	m.Payload.closeCapabilities()
}

func (d Dictionary) closeCapabilities() {
	for _, v := range d {
		switch v.kind {
		case KindCapability:
			if v.cap != nil {
				v.cap.Close()
			}
		case KindDictionary:
			v.dict.closeCapabilities()
		}
	}
}
