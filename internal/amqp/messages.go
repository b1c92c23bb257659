package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"tally/internal/core"
)

// LedgerChangedMessage tells the sync worker that a book changed.
// It carries no ledger data; the worker reloads the book from the primary store.
type LedgerChangedMessage struct {
	Book      core.Book `json:"book"`
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerChangedMessage creates a message stamped with the current time
func NewLedgerChangedMessage(book core.Book, operation string) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		Book:      book,
		Operation: operation,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangedMessageFromJSON decodes a message and rejects unknown books.
func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.Book.IsValid() {
		return nil, fmt.Errorf("unknown book %q", msg.Book)
	}
	return &msg, nil
}
