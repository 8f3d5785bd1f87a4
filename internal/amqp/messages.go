package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// ExpenseChangedMessage announces that one user's record set changed.
// Consumers reload what they need from the store; the message carries no
// record data.
type ExpenseChangedMessage struct {
	UserID    string    `json:"user_id"`
	ExpenseID string    `json:"expense_id"`
	Op        string    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseChangedMessage(userID, expenseID, op string) *ExpenseChangedMessage {
	return &ExpenseChangedMessage{
		UserID:    userID,
		ExpenseID: expenseID,
		Op:        op,
		Timestamp: time.Now().UTC(),
	}
}

func (m *ExpenseChangedMessage) Validate() error {
	if m.UserID == "" {
		return errors.New("missing user_id")
	}
	switch m.Op {
	case OpCreate, OpUpdate, OpDelete:
		return nil
	}
	return fmt.Errorf("unknown op %q", m.Op)
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseChangedMessageFromJSON decodes and validates a message.
func ExpenseChangedMessageFromJSON(data []byte) (*ExpenseChangedMessage, error) {
	var msg ExpenseChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
