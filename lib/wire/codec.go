// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/switchyard-systems/switchyard/lib/capability"
)

// CodecError reports a malformed message. A CodecError from Decode
// poisons the whole message: no partial payload is ever returned, and
// the dispatcher terminates the connection that produced it.
type CodecError struct {
	Offset int
	Reason string
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("wire: invalid message at byte %d: %s", e.Offset, e.Reason)
}

func codecErrorf(offset int, format string, args ...any) error {
	return &CodecError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// TLV type tags. The set is closed: an unknown tag fails the whole
// decode rather than being skipped, because a skipped entry could
// silently desynchronize capability slots from their descriptors.
const (
	tagDictionary uint32 = 1
	tagString     uint32 = 2
	tagInt64      uint32 = 3
	tagBool       uint32 = 4
	tagSendCap    uint32 = 5
	tagReceiveCap uint32 = 6
)

const (
	headerSize = 4 + 1 + 4 + 4 // magic, version, direction, routine

	// entryOverhead is the fixed part of one TLV entry: the length
	// field itself plus the key length field. The type tag is NOT part
	// of the declared length; the length field IS. An implementation
	// that forgets the length field counts itself desynchronizes on
	// the first message with more than one entry.
	entryOverhead = 4 + 2

	// maxNestingDepth bounds dictionary recursion on both paths.
	maxNestingDepth = 8
)

// Encode serializes a message, returning the bytes and the capability
// slots in serialization order. The caller sends the slots' descriptors
// in the transport envelope in exactly this order; Decode on the far
// side rebinds them by the same walk.
//
// Dictionary entries serialize in sorted key order, so equal payloads
// produce equal bytes and a deterministic slot order. Capabilities must
// be bound (they have a descriptor to transfer) or Encode fails.
func Encode(m Message) ([]byte, []*capability.Capability, error) {
	if m.Direction != TagRequest && m.Direction != TagReply {
		return nil, nil, fmt.Errorf("wire: message direction %#x is neither request nor reply", m.Direction)
	}

	buf := make([]byte, 0, 256)
	buf = binary.LittleEndian.AppendUint32(buf, Magic)
	buf = append(buf, FormatVersion)
	buf = binary.LittleEndian.AppendUint32(buf, m.Direction)
	buf = binary.LittleEndian.AppendUint32(buf, m.Routine)

	var slots []*capability.Capability
	buf, slots, err := appendDictionary(buf, m.Payload, slots, 0)
	if err != nil {
		return nil, nil, err
	}
	if len(buf) > MaxMessageSize {
		return nil, nil, fmt.Errorf("wire: message is %d bytes, limit %d", len(buf), MaxMessageSize)
	}
	return buf, slots, nil
}

func appendDictionary(buf []byte, d Dictionary, slots []*capability.Capability, depth int) ([]byte, []*capability.Capability, error) {
	if depth > maxNestingDepth {
		return nil, nil, fmt.Errorf("wire: dictionary nested deeper than %d", maxNestingDepth)
	}

	keys := make([]string, 0, len(d))
	for key := range d {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if key == "" {
			return nil, nil, fmt.Errorf("wire: empty dictionary key")
		}
		if len(key) > 0xFFFF {
			return nil, nil, fmt.Errorf("wire: key %q is %d bytes, limit %d", key[:32], len(key), 0xFFFF)
		}
		if !utf8.ValidString(key) {
			return nil, nil, fmt.Errorf("wire: key %q is not valid UTF-8", key)
		}

		value := d[key]
		var tag uint32
		var body []byte
		switch value.kind {
		case KindDictionary:
			tag = tagDictionary
			var err error
			body, slots, err = appendDictionary(nil, value.dict, slots, depth+1)
			if err != nil {
				return nil, nil, err
			}
		case KindString:
			if !utf8.ValidString(value.str) {
				return nil, nil, fmt.Errorf("wire: string value for %q is not valid UTF-8", key)
			}
			tag = tagString
			body = []byte(value.str)
		case KindInt64:
			tag = tagInt64
			body = binary.LittleEndian.AppendUint64(nil, uint64(value.num))
		case KindBool:
			tag = tagBool
			if value.truth {
				body = []byte{1}
			} else {
				body = []byte{0}
			}
		case KindCapability:
			c := value.cap
			if c == nil {
				return nil, nil, fmt.Errorf("wire: nil capability for %q", key)
			}
			if !c.Bound() {
				return nil, nil, fmt.Errorf("wire: capability for %q has no descriptor to transfer", key)
			}
			switch c.Kind() {
			case capability.Receive:
				tag = tagReceiveCap
			case capability.Send, capability.SendOnce:
				// Send-once travels as a send descriptor; single-use
				// is the sender's discipline, enforced by the endpoint
				// dying after the requester takes its one reply.
				tag = tagSendCap
			default:
				return nil, nil, fmt.Errorf("wire: capability for %q has unknown kind %v", key, c.Kind())
			}
			body = binary.LittleEndian.AppendUint64(nil, c.Handle())
			slots = append(slots, c)
		default:
			return nil, nil, fmt.Errorf("wire: value for %q has unknown kind %v", key, value.kind)
		}

		// length counts itself, the key length field, the key, and the
		// value body.
		length := uint32(entryOverhead + len(key) + len(body))
		buf = binary.LittleEndian.AppendUint32(buf, tag)
		buf = binary.LittleEndian.AppendUint32(buf, length)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(key)))
		buf = append(buf, key...)
		buf = append(buf, body...)
	}
	return buf, slots, nil
}

// Decode parses a serialized message, returning it together with the
// capability slots in wire order, unbound. Bind attaches the envelope
// descriptors afterward. Any structural defect fails the whole decode
// with a CodecError.
func Decode(data []byte) (Message, []*capability.Capability, error) {
	if len(data) < headerSize {
		return Message{}, nil, codecErrorf(0, "message is %d bytes, header alone needs %d", len(data), headerSize)
	}
	if len(data) > MaxMessageSize {
		return Message{}, nil, codecErrorf(0, "message is %d bytes, limit %d", len(data), MaxMessageSize)
	}

	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != Magic {
		return Message{}, nil, codecErrorf(0, "bad magic %#x", magic)
	}
	if version := data[4]; version != FormatVersion {
		return Message{}, nil, codecErrorf(4, "unsupported format version %d", version)
	}
	direction := binary.LittleEndian.Uint32(data[5:9])
	if direction != TagRequest && direction != TagReply {
		return Message{}, nil, codecErrorf(5, "direction %#x is neither request nor reply", direction)
	}
	routine := binary.LittleEndian.Uint32(data[9:13])

	payload, slots, next, err := parseDictionary(data, headerSize, len(data), nil, 0)
	if err != nil {
		return Message{}, nil, err
	}
	if next != len(data) {
		return Message{}, nil, codecErrorf(next, "trailing bytes after payload")
	}

	return Message{Direction: direction, Routine: routine, Payload: payload}, slots, nil
}

// parseDictionary parses TLV entries from data[offset:end]. It returns
// the dictionary, the accumulated capability slots in encounter order,
// and the offset one past the region.
func parseDictionary(data []byte, offset, end int, slots []*capability.Capability, depth int) (Dictionary, []*capability.Capability, int, error) {
	if depth > maxNestingDepth {
		return nil, nil, 0, codecErrorf(offset, "dictionary nested deeper than %d", maxNestingDepth)
	}

	dict := make(Dictionary)
	for offset < end {
		entryStart := offset
		if end-offset < 4+entryOverhead {
			return nil, nil, 0, codecErrorf(entryStart, "truncated entry: %d bytes remain", end-offset)
		}

		tag := binary.LittleEndian.Uint32(data[offset : offset+4])
		length := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		offset += 4

		// The declared length includes the length field itself.
		if length < entryOverhead {
			return nil, nil, 0, codecErrorf(entryStart, "entry length %d below minimum %d", length, entryOverhead)
		}
		if int(length) > end-offset {
			return nil, nil, 0, codecErrorf(entryStart, "entry length %d overruns remaining %d bytes", length, end-offset)
		}
		entryEnd := offset + int(length)
		offset += 4

		keyLength := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
		offset += 2
		if keyLength == 0 {
			return nil, nil, 0, codecErrorf(entryStart, "empty key")
		}
		if keyLength > entryEnd-offset {
			return nil, nil, 0, codecErrorf(entryStart, "key length %d overruns entry", keyLength)
		}
		key := string(data[offset : offset+keyLength])
		offset += keyLength
		if !utf8.ValidString(key) {
			return nil, nil, 0, codecErrorf(entryStart, "key is not valid UTF-8")
		}
		if _, exists := dict[key]; exists {
			return nil, nil, 0, codecErrorf(entryStart, "duplicate key %q", key)
		}

		body := data[offset:entryEnd]
		var value Value
		switch tag {
		case tagDictionary:
			nested, nestedSlots, next, err := parseDictionary(data, offset, entryEnd, slots, depth+1)
			if err != nil {
				return nil, nil, 0, err
			}
			if next != entryEnd {
				return nil, nil, 0, codecErrorf(next, "nested dictionary underruns its entry")
			}
			slots = nestedSlots
			value = Dict(nested)
		case tagString:
			if !utf8.ValidString(string(body)) {
				return nil, nil, 0, codecErrorf(entryStart, "string value for %q is not valid UTF-8", key)
			}
			value = String(string(body))
		case tagInt64:
			if len(body) != 8 {
				return nil, nil, 0, codecErrorf(entryStart, "int64 value for %q is %d bytes, want 8", key, len(body))
			}
			value = Int64(int64(binary.LittleEndian.Uint64(body)))
		case tagBool:
			if len(body) != 1 || body[0] > 1 {
				return nil, nil, 0, codecErrorf(entryStart, "malformed bool value for %q", key)
			}
			value = Bool(body[0] == 1)
		case tagSendCap, tagReceiveCap:
			if len(body) != 8 {
				return nil, nil, 0, codecErrorf(entryStart, "capability descriptor for %q is %d bytes, want 8", key, len(body))
			}
			kind := capability.Send
			if tag == tagReceiveCap {
				kind = capability.Receive
			}
			descriptor := capability.NewDescriptor(kind, binary.LittleEndian.Uint64(body))
			slots = append(slots, descriptor)
			value = Cap(descriptor)
		default:
			return nil, nil, 0, codecErrorf(entryStart, "unknown type tag %d", tag)
		}

		dict[key] = value
		offset = entryEnd
	}
	return dict, slots, offset, nil
}

// Bind attaches envelope descriptors to decoded capability slots, in
// order. A count mismatch means the payload promised a different
// number of capabilities than the envelope carried; the caller closes
// the descriptors and drops the message.
func Bind(slots []*capability.Capability, fds []int) error {
	if len(slots) != len(fds) {
		return codecErrorf(0, "capability count mismatch: %d slots, %d descriptors", len(slots), len(fds))
	}
	for i, slot := range slots {
		if err := slot.Bind(fds[i]); err != nil {
			return fmt.Errorf("wire: binding slot %d: %w", i, err)
		}
	}
	return nil
}
