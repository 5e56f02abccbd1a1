package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// Record change operations carried in RecordChangedMessage.Op.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// RecordChangedMessage announces that a record was written. It carries only
// the ID; consumers re-read the shared store for the data.
type RecordChangedMessage struct {
	Op        string    `json:"op"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

var errInvalidMessage = errors.New("invalid record change message")

// NewRecordChangedMessage stamps a change message with the current time.
func NewRecordChangedMessage(op, id string) *RecordChangedMessage {
	return &RecordChangedMessage{
		Op:        op,
		ID:        id,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecordChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordChangedMessageFromJSON decodes and checks a change message.
func RecordChangedMessageFromJSON(data []byte) (*RecordChangedMessage, error) {
	var msg RecordChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Op {
	case OpCreate, OpUpdate, OpDelete:
	default:
		return nil, errInvalidMessage
	}
	if msg.ID == "" {
		return nil, errInvalidMessage
	}
	return &msg, nil
}
