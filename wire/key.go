// Package wire encodes domain events into the flat key space of the
// replicated mesh and decodes inbound keys and values back into typed
// records. The mesh itself only understands opaque key/value pairs; every
// piece of compound identity lives in the key.
package wire

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags the event class a flat key addresses.
type Kind string

const (
	KindAttendance Kind = "att"
	KindLocation   Kind = "loc"
	KindHeartbeat  Kind = "hb"
	KindMessage    Kind = "msg"
	KindWorkLog    Kind = "work"
	KindEquipment  Kind = "equip"
)

// delimiter separates key segments. It matches the segment separator of
// the underlying KV substrate, which is also why identifiers must never
// contain it.
const delimiter = "."

// ErrMalformedKey is returned when a key cannot be decoded. Malformed keys
// are dropped by the engine, never fatal.
var ErrMalformedKey = errors.New("malformed key")

// Key is a decoded flat key.
type Key struct {
	Kind Kind

	// UserID is set for attendance, location and heartbeat keys.
	UserID string

	// Session is set for attendance keys.
	Session string

	// ID is set for message, work-log and equipment keys.
	ID string
}

// ValidIdentifier reports whether s is delimiter-safe: non-empty and
// restricted to [A-Za-z0-9_-]. Identifiers are validated at creation time
// so that encoding stays injective by construction.
func ValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

func encode(kind Kind, segments ...string) (string, error) {
	for _, s := range segments {
		if !ValidIdentifier(s) {
			return "", fmt.Errorf("%w: identifier %q is not delimiter-safe", ErrMalformedKey, s)
		}
	}
	return string(kind) + delimiter + strings.Join(segments, delimiter), nil
}

// EncodeAttendanceKey builds the key marking (userID, session) present.
// Distinct pairs yield distinct keys, which lets independent peers write
// attendance without read-modify-write races.
func EncodeAttendanceKey(userID, session string) (string, error) {
	return encode(KindAttendance, userID, session)
}

// EncodeLocationKey builds the key carrying the latest location of a user.
func EncodeLocationKey(userID string) (string, error) {
	return encode(KindLocation, userID)
}

// EncodeHeartbeatKey builds the key carrying the latest heartbeat of a user.
func EncodeHeartbeatKey(userID string) (string, error) {
	return encode(KindHeartbeat, userID)
}

// EncodeMessageKey builds the key for an immutable chat message.
func EncodeMessageKey(id string) (string, error) {
	return encode(KindMessage, id)
}

// EncodeWorkLogKey builds the key for an immutable work-log entry.
func EncodeWorkLogKey(id string) (string, error) {
	return encode(KindWorkLog, id)
}

// EncodeEquipmentKey builds the key for an equipment record.
func EncodeEquipmentKey(id string) (string, error) {
	return encode(KindEquipment, id)
}

// DecodeKey parses a flat key into its typed form. Unknown prefixes and
// wrong segment counts return ErrMalformedKey.
func DecodeKey(raw string) (Key, error) {
	parts := strings.Split(raw, delimiter)
	if len(parts) < 2 {
		return Key{}, fmt.Errorf("%w: %q", ErrMalformedKey, raw)
	}

	kind := Kind(parts[0])
	switch kind {
	case KindAttendance:
		if len(parts) != 3 {
			return Key{}, fmt.Errorf("%w: attendance key %q wants 3 segments, has %d", ErrMalformedKey, raw, len(parts))
		}
		return Key{Kind: kind, UserID: parts[1], Session: parts[2]}, nil
	case KindLocation, KindHeartbeat:
		if len(parts) != 2 {
			return Key{}, fmt.Errorf("%w: %s key %q wants 2 segments, has %d", ErrMalformedKey, kind, raw, len(parts))
		}
		return Key{Kind: kind, UserID: parts[1]}, nil
	case KindMessage, KindWorkLog, KindEquipment:
		if len(parts) != 2 {
			return Key{}, fmt.Errorf("%w: %s key %q wants 2 segments, has %d", ErrMalformedKey, kind, raw, len(parts))
		}
		return Key{Kind: kind, ID: parts[1]}, nil
	default:
		return Key{}, fmt.Errorf("%w: unknown prefix %q", ErrMalformedKey, parts[0])
	}
}
