package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedValue is returned when a value body cannot be decoded into
// the payload type its key promises.
var ErrMalformedValue = errors.New("malformed value")

// LocationSignal is the wire body under a location key. Timestamps are
// milliseconds since the Unix epoch as stamped by the producing device.
type LocationSignal struct {
	UserID    string  `json:"user_id"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	EventTime int64   `json:"event_time"`
}

// HeartbeatSignal is the wire body under a heartbeat key.
type HeartbeatSignal struct {
	UserID string `json:"user_id"`
	SentAt int64  `json:"sent_at"`
}

// AttendanceMark is the wire body under an attendance key. The key alone
// carries the full identity; the body exists only for observability and
// peers may write anything here.
type AttendanceMark struct {
	UserID   string `json:"user_id"`
	Session  string `json:"session"`
	MarkedAt int64  `json:"marked_at"`
}

// MessagePayload is the wire body under a message key.
type MessagePayload struct {
	ID         string `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Text       string `json:"text"`
	CreatedAt  int64  `json:"created_at"`
}

// WorkLogPayload is the wire body under a work-log key.
type WorkLogPayload struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Task      string `json:"task"`
	CreatedAt int64  `json:"created_at"`
}

// EquipmentPayload is the wire body under an equipment key.
type EquipmentPayload struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	SerialNumber string `json:"serial_number"`
	AssignedToID string `json:"assigned_to_id"`
	Condition    string `json:"condition"`
	UpdatedAt    int64  `json:"updated_at"`
}

// EncodeValue serializes a wire payload.
func EncodeValue(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return data, nil
}

// DecodeValue parses a value body according to the kind of its key.
// Attendance bodies are not decoded here; the key is authoritative.
func DecodeValue(kind Kind, data []byte) (any, error) {
	var (
		v   any
		err error
	)
	switch kind {
	case KindLocation:
		sig := &LocationSignal{}
		err = json.Unmarshal(data, sig)
		v = sig
	case KindHeartbeat:
		sig := &HeartbeatSignal{}
		err = json.Unmarshal(data, sig)
		v = sig
	case KindMessage:
		p := &MessagePayload{}
		err = json.Unmarshal(data, p)
		v = p
	case KindWorkLog:
		p := &WorkLogPayload{}
		err = json.Unmarshal(data, p)
		v = p
	case KindEquipment:
		p := &EquipmentPayload{}
		err = json.Unmarshal(data, p)
		v = p
	default:
		return nil, fmt.Errorf("%w: no value codec for kind %q", ErrMalformedValue, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s body: %v", ErrMalformedValue, kind, err)
	}
	return v, nil
}
