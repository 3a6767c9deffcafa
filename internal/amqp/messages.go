package amqp

import (
	"encoding/json"
	"time"
)

// ExpenseAddedMessage is the lightweight event published when an expense is
// recorded. It carries only identifiers; the worker fetches the full row
// from the database before mirroring it.
type ExpenseAddedMessage struct {
	ExpenseID int64     `json:"expense_id"`
	UserID    int64     `json:"user_id"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// Sources for expense-added events.
const (
	SourceChat = "chat"
	SourceAPI  = "api"
)

func NewExpenseAddedMessage(expenseID, userID int64, source string) *ExpenseAddedMessage {
	return &ExpenseAddedMessage{
		ExpenseID: expenseID,
		UserID:    userID,
		Source:    source,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseAddedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseAddedMessageFromJSON creates a message from JSON bytes
func ExpenseAddedMessageFromJSON(data []byte) (*ExpenseAddedMessage, error) {
	var msg ExpenseAddedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
