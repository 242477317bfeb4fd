package audit

import (
	"encoding/json"
	"log"
	"time"
)

// Event is a single structured audit record emitted by the ledger.
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	TransactionID string    `json:"transaction_id"`
	AccountID     string    `json:"account_id,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	Status        string    `json:"status"`
	Details       any       `json:"details,omitempty"`
}

// Logger writes ledger audit events as JSON lines through the standard
// logger.
type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogDeposit(transactionID, accountNumber string, amount int64, status string) {
	a.log(Event{
		Timestamp:     time.Now(),
		EventType:     "DEPOSIT",
		TransactionID: transactionID,
		Amount:        amount,
		Status:        status,
		Details:       map[string]string{"account_number": accountNumber},
	})
}

func (a *Logger) LogTransfer(transactionID, fromAccount, toAccount string, amount int64, status string) {
	a.log(Event{
		Timestamp:     time.Now(),
		EventType:     "TRANSFER",
		TransactionID: transactionID,
		Amount:        amount,
		Status:        status,
		Details: map[string]string{
			"from_account": fromAccount,
			"to_account":   toAccount,
		},
	})
}

func (a *Logger) LogCancel(transactionID, txType string, amount int64, status string) {
	a.log(Event{
		Timestamp:     time.Now(),
		EventType:     "CANCEL",
		TransactionID: transactionID,
		Amount:        amount,
		Status:        status,
		Details:       map[string]string{"type": txType},
	})
}

func (a *Logger) LogError(transactionID, accountID string, err error) {
	a.log(Event{
		Timestamp:     time.Now(),
		EventType:     "ERROR",
		TransactionID: transactionID,
		AccountID:     accountID,
		Status:        "FAILED",
		Details:       map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
