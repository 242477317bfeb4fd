package models

import "time"

// Transaction types. Fixed at creation.
const (
	TransactionDeposit  = "deposit"
	TransactionTransfer = "transfer"
)

// Transaction status. completed -> cancelled is the only permitted
// transition; cancelled is terminal.
const (
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Party kinds for the from side of a transaction. Deposits originate
// from an admin, transfers from a user. The to side is always a user.
const (
	PartyUser  = "user"
	PartyAdmin = "admin"
)

// Ledger entry types.
const (
	EntryDebit  = "DEBIT"
	EntryCredit = "CREDIT"
)

// Transaction is the immutable record created together with the balance
// mutation it represents. TransactionID is the caller-visible unique
// identifier, independent of the storage id.
type Transaction struct {
	ID            int       `json:"-" db:"id"`
	TransactionID string    `json:"transactionId" db:"transaction_id"`
	Type          string    `json:"type" db:"type"`
	FromID        int       `json:"-" db:"from_id"`
	FromKind      string    `json:"-" db:"from_kind"`
	ToID          int       `json:"-" db:"to_id"`
	Amount        int64     `json:"amount" db:"amount"`
	Status        string    `json:"status" db:"status"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// TransactionParty is the enriched projection of a transaction
// counterparty used by the admin listing.
type TransactionParty struct {
	ID            int    `json:"id"`
	Fullname      string `json:"fullname"`
	Email         string `json:"email"`
	AccountNumber string `json:"accountNumber,omitempty"`
}

// EnrichedTransaction is a transaction with its from/to references
// resolved against the account pools.
type EnrichedTransaction struct {
	Transaction
	From *TransactionParty `json:"from"`
	To   *TransactionParty `json:"to"`
}

// LedgerEntry is one leg of the double-entry journal. Every balance
// move writes a DEBIT and a CREDIT row with the resulting running
// balance; cancellations append compensating rows, the journal itself
// is append-only.
type LedgerEntry struct {
	ID            int       `json:"id" db:"id"`
	TransactionID string    `json:"transaction_id" db:"transaction_id"`
	AccountID     int       `json:"account_id" db:"account_id"`
	AccountKind   string    `json:"account_kind" db:"account_kind"`
	Amount        int64     `json:"amount" db:"amount"`
	EntryType     string    `json:"entry_type" db:"entry_type"`
	Balance       int64     `json:"balance" db:"balance"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
