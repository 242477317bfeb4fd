package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/digipay/backend/internal/audit"
	"github.com/digipay/backend/internal/middleware"
	"github.com/digipay/backend/internal/models"
)

// maxConflictRetries bounds in-engine retries when a versioned balance
// update loses a race. Exhaustion surfaces as ErrConflict.
const maxConflictRetries = 3

// LedgerService is the transaction engine: deposits, transfers and
// compensating cancellations, each applied as one atomic database
// transaction over the accounts involved.
type LedgerService struct {
	db        *sql.DB
	audit     *audit.Logger
	validator *ValidationHelper
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{
		db:        db,
		audit:     audit.NewLogger(),
		validator: NewValidationHelper(),
	}
}

// DepositRequest represents the deposit request payload
type DepositRequest struct {
	AccountNumber string `json:"accountNumber" validate:"required"`
	Amount        int64  `json:"amount" validate:"required,gt=0"`
}

// TransferRequest represents the transfer request payload
type TransferRequest struct {
	ToAccountNumber string `json:"toAccountNumber" validate:"required"`
	Amount          int64  `json:"amount" validate:"required,gt=0"`
}

// CancelRequest represents the cancellation request payload
type CancelRequest struct {
	TransactionID string `json:"transactionId" validate:"required,uuid4"`
}

// DepositResult carries the post-deposit balances and the new
// transaction's caller-visible id.
type DepositResult struct {
	TransactionID string `json:"transactionId"`
	UserBalance   int64  `json:"userBalance"`
	AdminBalance  int64  `json:"adminBalance"`
}

// TransferResult carries the post-transfer balances and transaction id.
type TransferResult struct {
	TransactionID string `json:"transactionId"`
	FromBalance   int64  `json:"fromBalance"`
	ToBalance     int64  `json:"toBalance"`
}

// lockedAccount is an account row read under FOR UPDATE.
type lockedAccount struct {
	ID            int
	Fullname      string
	AccountNumber string
	Balance       int64
	Version       int
}

// Deposit handles POST /transactions/deposit (admin only): moves funds
// from the acting admin's float to a user account.
func (s *LedgerService) Deposit(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthenticated", http.StatusUnauthorized, nil)
		return
	}
	if !principal.IsAdmin() {
		SendErrorResponse(w, "Access denied (admin only)", http.StatusForbidden, nil)
		return
	}

	var req DepositRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	result, err := s.deposit(r.Context(), principal.ID(), req.AccountNumber, req.Amount)
	if err != nil {
		log.Printf("[LEDGER] Deposit failed (admin %d, account %s): %v", principal.ID(), req.AccountNumber, err)
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":       fmt.Sprintf("Deposit of %d to account %s completed", req.Amount, req.AccountNumber),
		"transactionId": result.TransactionID,
		"userBalance":   result.UserBalance,
		"adminBalance":  result.AdminBalance,
	})
}

// Transfer handles POST /transactions/transfer: moves funds from the
// authenticated user's own account to another user account.
func (s *LedgerService) Transfer(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthenticated", http.StatusUnauthorized, nil)
		return
	}
	if principal.User == nil {
		SendErrorResponse(w, "Access denied", http.StatusForbidden, nil)
		return
	}

	var req TransferRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	result, err := s.transfer(r.Context(), principal.ID(), req.ToAccountNumber, req.Amount)
	if err != nil {
		log.Printf("[LEDGER] Transfer failed (user %d -> %s): %v", principal.ID(), req.ToAccountNumber, err)
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":       fmt.Sprintf("Transfer of %d to account %s completed", req.Amount, req.ToAccountNumber),
		"transactionId": result.TransactionID,
		"fromBalance":   result.FromBalance,
		"toBalance":     result.ToBalance,
	})
}

// Cancel handles POST /transactions/cancel (admin only): reverses a
// completed transaction and flips its status.
func (s *LedgerService) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	txn, err := s.cancel(r.Context(), req.TransactionID)
	if err != nil {
		log.Printf("[LEDGER] Cancel failed (%s): %v", req.TransactionID, err)
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":     "Transaction cancelled",
		"transaction": txn,
	})
}

// ListTransactions handles GET /transactions (admin only): all
// transactions newest first, counterparties resolved against both
// account pools.
func (s *LedgerService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	page := 1
	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}

	transactions, err := s.listTransactions(r.Context(), page, limit)
	if err != nil {
		log.Printf("[LEDGER] Listing failed: %v", err)
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

func (s *LedgerService) decodeRequest(w http.ResponseWriter, r *http.Request, req any) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := s.validator.ValidateStruct(req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}

	return true
}

// deposit applies the admin-to-user deposit, retrying a bounded number
// of times when the optimistic balance update loses a race.
func (s *LedgerService) deposit(ctx context.Context, adminID int, accountNumber string, amount int64) (*DepositResult, error) {
	var result *DepositResult
	err := s.withConflictRetry(func() error {
		var err error
		result, err = s.depositOnce(ctx, adminID, accountNumber, amount)
		return err
	})
	return result, err
}

func (s *LedgerService) depositOnce(ctx context.Context, adminID int, accountNumber string, amount int64) (*DepositResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Fixed cross-table lock order: admin rows before user rows.
	admin, err := s.lockAdmin(ctx, tx, adminID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("admin account: %w", ErrNotFound)
		}
		return nil, err
	}

	user, err := s.lockUserByNumber(ctx, tx, accountNumber)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("account %s: %w", accountNumber, ErrNotFound)
		}
		return nil, err
	}

	if admin.Balance < amount {
		return nil, fmt.Errorf("admin balance: %w", ErrInsufficientFunds)
	}

	newAdminBalance := admin.Balance - amount
	newUserBalance := user.Balance + amount
	transactionID := uuid.New().String()

	if err := s.createTransaction(ctx, tx, transactionID, models.TransactionDeposit,
		admin.ID, models.PartyAdmin, user.ID, amount); err != nil {
		return nil, err
	}

	if err := s.createLedgerEntry(ctx, tx, transactionID, admin.ID, models.PartyAdmin, -amount, models.EntryDebit, newAdminBalance); err != nil {
		return nil, err
	}
	if err := s.createLedgerEntry(ctx, tx, transactionID, user.ID, models.PartyUser, amount, models.EntryCredit, newUserBalance); err != nil {
		return nil, err
	}

	if err := s.updateAdminBalance(ctx, tx, admin.ID, newAdminBalance, admin.Version); err != nil {
		return nil, err
	}
	if err := s.updateUserBalance(ctx, tx, user.ID, newUserBalance, user.Version); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit deposit: %w", err)
	}

	s.audit.LogDeposit(transactionID, accountNumber, amount, "SUCCESS")
	return &DepositResult{
		TransactionID: transactionID,
		UserBalance:   newUserBalance,
		AdminBalance:  newAdminBalance,
	}, nil
}

// transfer applies a user-to-user transfer with the caller as source.
func (s *LedgerService) transfer(ctx context.Context, fromUserID int, toAccountNumber string, amount int64) (*TransferResult, error) {
	var result *TransferResult
	err := s.withConflictRetry(func() error {
		var err error
		result, err = s.transferOnce(ctx, fromUserID, toAccountNumber, amount)
		return err
	})
	return result, err
}

func (s *LedgerService) transferOnce(ctx context.Context, fromUserID int, toAccountNumber string, amount int64) (*TransferResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Resolve the destination id up front so both rows can be locked
	// in consistent id order.
	var toUserID int
	err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE account_number = $1`, toAccountNumber).Scan(&toUserID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("account %s: %w", toAccountNumber, ErrNotFound)
		}
		return nil, err
	}

	if toUserID == fromUserID {
		return nil, fmt.Errorf("%w: cannot transfer to own account", ErrInvalidArgument)
	}

	firstID, secondID := fromUserID, toUserID
	if firstID > secondID {
		firstID, secondID = secondID, firstID
	}

	first, err := s.lockUserByID(ctx, tx, firstID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user account %d: %w", firstID, ErrNotFound)
		}
		return nil, err
	}
	second, err := s.lockUserByID(ctx, tx, secondID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user account %d: %w", secondID, ErrNotFound)
		}
		return nil, err
	}

	source, dest := first, second
	if first.ID != fromUserID {
		source, dest = second, first
	}

	if source.Balance < amount {
		return nil, fmt.Errorf("source balance: %w", ErrInsufficientFunds)
	}

	newSourceBalance := source.Balance - amount
	newDestBalance := dest.Balance + amount
	transactionID := uuid.New().String()

	if err := s.createTransaction(ctx, tx, transactionID, models.TransactionTransfer,
		source.ID, models.PartyUser, dest.ID, amount); err != nil {
		return nil, err
	}

	if err := s.createLedgerEntry(ctx, tx, transactionID, source.ID, models.PartyUser, -amount, models.EntryDebit, newSourceBalance); err != nil {
		return nil, err
	}
	if err := s.createLedgerEntry(ctx, tx, transactionID, dest.ID, models.PartyUser, amount, models.EntryCredit, newDestBalance); err != nil {
		return nil, err
	}

	if err := s.updateUserBalance(ctx, tx, source.ID, newSourceBalance, source.Version); err != nil {
		return nil, err
	}
	if err := s.updateUserBalance(ctx, tx, dest.ID, newDestBalance, dest.Version); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transfer: %w", err)
	}

	s.audit.LogTransfer(transactionID, source.AccountNumber, dest.AccountNumber, amount, "SUCCESS")
	return &TransferResult{
		TransactionID: transactionID,
		FromBalance:   newSourceBalance,
		ToBalance:     newDestBalance,
	}, nil
}

// cancel reverses a completed transaction. The original record is
// retained with its status flipped; the compensating balance moves are
// appended to the ledger journal inside the same database transaction.
func (s *LedgerService) cancel(ctx context.Context, transactionID string) (*models.Transaction, error) {
	var result *models.Transaction
	err := s.withConflictRetry(func() error {
		var err error
		result, err = s.cancelOnce(ctx, transactionID)
		return err
	})
	return result, err
}

func (s *LedgerService) cancelOnce(ctx context.Context, transactionID string) (*models.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Lock the transaction row so concurrent cancels serialize on the
	// status check.
	var txn models.Transaction
	err = tx.QueryRowContext(ctx, `
		SELECT id, transaction_id, type, from_id, from_kind, to_id, amount, status, created_at
		FROM transactions WHERE transaction_id = $1 FOR UPDATE`,
		transactionID).Scan(&txn.ID, &txn.TransactionID, &txn.Type, &txn.FromID,
		&txn.FromKind, &txn.ToID, &txn.Amount, &txn.Status, &txn.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("transaction %s: %w", transactionID, ErrNotFound)
		}
		return nil, err
	}

	if txn.Status == models.StatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	switch txn.Type {
	case models.TransactionDeposit:
		// Claw the deposit back: user pays, admin float is restored.
		admin, err := s.lockAdmin(ctx, tx, txn.FromID)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, fmt.Errorf("admin account %d: %w", txn.FromID, ErrNotFound)
			}
			return nil, err
		}
		user, err := s.lockUserByID(ctx, tx, txn.ToID)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, fmt.Errorf("user account %d: %w", txn.ToID, ErrNotFound)
			}
			return nil, err
		}

		if user.Balance < txn.Amount {
			return nil, fmt.Errorf("user balance: %w", ErrInsufficientFunds)
		}

		newUserBalance := user.Balance - txn.Amount
		newAdminBalance := admin.Balance + txn.Amount

		if err := s.createLedgerEntry(ctx, tx, txn.TransactionID, user.ID, models.PartyUser, -txn.Amount, models.EntryDebit, newUserBalance); err != nil {
			return nil, err
		}
		if err := s.createLedgerEntry(ctx, tx, txn.TransactionID, admin.ID, models.PartyAdmin, txn.Amount, models.EntryCredit, newAdminBalance); err != nil {
			return nil, err
		}

		if err := s.updateAdminBalance(ctx, tx, admin.ID, newAdminBalance, admin.Version); err != nil {
			return nil, err
		}
		if err := s.updateUserBalance(ctx, tx, user.ID, newUserBalance, user.Version); err != nil {
			return nil, err
		}

	case models.TransactionTransfer:
		firstID, secondID := txn.FromID, txn.ToID
		if firstID > secondID {
			firstID, secondID = secondID, firstID
		}

		first, err := s.lockUserByID(ctx, tx, firstID)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, fmt.Errorf("user account %d: %w", firstID, ErrNotFound)
			}
			return nil, err
		}
		second, err := s.lockUserByID(ctx, tx, secondID)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, fmt.Errorf("user account %d: %w", secondID, ErrNotFound)
			}
			return nil, err
		}

		source, dest := first, second
		if first.ID != txn.FromID {
			source, dest = second, first
		}

		if dest.Balance < txn.Amount {
			return nil, fmt.Errorf("destination balance: %w", ErrInsufficientFunds)
		}

		newDestBalance := dest.Balance - txn.Amount
		newSourceBalance := source.Balance + txn.Amount

		if err := s.createLedgerEntry(ctx, tx, txn.TransactionID, dest.ID, models.PartyUser, -txn.Amount, models.EntryDebit, newDestBalance); err != nil {
			return nil, err
		}
		if err := s.createLedgerEntry(ctx, tx, txn.TransactionID, source.ID, models.PartyUser, txn.Amount, models.EntryCredit, newSourceBalance); err != nil {
			return nil, err
		}

		if err := s.updateUserBalance(ctx, tx, dest.ID, newDestBalance, dest.Version); err != nil {
			return nil, err
		}
		if err := s.updateUserBalance(ctx, tx, source.ID, newSourceBalance, source.Version); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown transaction type %q", txn.Type)
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE transactions SET status = $1, updated_at = $2 WHERE id = $3`,
		models.StatusCancelled, now, txn.ID); err != nil {
		return nil, fmt.Errorf("update transaction status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cancel: %w", err)
	}

	txn.Status = models.StatusCancelled
	txn.UpdatedAt = now
	s.audit.LogCancel(txn.TransactionID, txn.Type, txn.Amount, "SUCCESS")
	return &txn, nil
}

func (s *LedgerService) listTransactions(ctx context.Context, page, limit int) ([]models.EnrichedTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, type, from_id, from_kind, to_id, amount, status, created_at, updated_at
		FROM transactions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.EnrichedTransaction{}
	for rows.Next() {
		var txn models.Transaction
		if err := rows.Scan(&txn.ID, &txn.TransactionID, &txn.Type, &txn.FromID,
			&txn.FromKind, &txn.ToID, &txn.Amount, &txn.Status,
			&txn.CreatedAt, &txn.UpdatedAt); err != nil {
			return nil, err
		}
		transactions = append(transactions, models.EnrichedTransaction{Transaction: txn})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Resolve counterparties. A from side may live in either pool;
	// the to side is always a user. Missing parties stay nil.
	userCache := map[int]*models.TransactionParty{}
	adminCache := map[int]*models.TransactionParty{}
	for i := range transactions {
		txn := &transactions[i]
		if txn.FromKind == models.PartyAdmin {
			txn.From, err = s.resolveAdminParty(ctx, adminCache, txn.FromID)
		} else {
			txn.From, err = s.resolveUserParty(ctx, userCache, txn.FromID)
		}
		if err != nil {
			return nil, err
		}
		txn.To, err = s.resolveUserParty(ctx, userCache, txn.ToID)
		if err != nil {
			return nil, err
		}
	}

	return transactions, nil
}

func (s *LedgerService) resolveUserParty(ctx context.Context, cache map[int]*models.TransactionParty, id int) (*models.TransactionParty, error) {
	if party, ok := cache[id]; ok {
		return party, nil
	}
	var party models.TransactionParty
	err := s.db.QueryRowContext(ctx,
		`SELECT id, fullname, email, COALESCE(account_number, '') FROM users WHERE id = $1`,
		id).Scan(&party.ID, &party.Fullname, &party.Email, &party.AccountNumber)
	if err == sql.ErrNoRows {
		cache[id] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cache[id] = &party
	return &party, nil
}

func (s *LedgerService) resolveAdminParty(ctx context.Context, cache map[int]*models.TransactionParty, id int) (*models.TransactionParty, error) {
	if party, ok := cache[id]; ok {
		return party, nil
	}
	var party models.TransactionParty
	err := s.db.QueryRowContext(ctx,
		`SELECT id, fullname, email FROM admins WHERE id = $1`,
		id).Scan(&party.ID, &party.Fullname, &party.Email)
	if err == sql.ErrNoRows {
		cache[id] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cache[id] = &party
	return &party, nil
}

func (s *LedgerService) withConflictRetry(op func() error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = op()
		if !errors.Is(err, ErrConflict) {
			return err
		}
		log.Printf("[LEDGER] Optimistic conflict, retrying (attempt %d)", attempt+1)
	}
	return err
}

func (s *LedgerService) lockAdmin(ctx context.Context, tx *sql.Tx, id int) (*lockedAccount, error) {
	var account lockedAccount
	err := tx.QueryRowContext(ctx, `
		SELECT id, fullname, balance, version
		FROM admins
		WHERE id = $1
		FOR UPDATE`, id).Scan(&account.ID, &account.Fullname, &account.Balance, &account.Version)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *LedgerService) lockUserByID(ctx context.Context, tx *sql.Tx, id int) (*lockedAccount, error) {
	var account lockedAccount
	err := tx.QueryRowContext(ctx, `
		SELECT id, fullname, COALESCE(account_number, ''), balance, version
		FROM users
		WHERE id = $1
		FOR UPDATE`, id).Scan(&account.ID, &account.Fullname, &account.AccountNumber,
		&account.Balance, &account.Version)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *LedgerService) lockUserByNumber(ctx context.Context, tx *sql.Tx, accountNumber string) (*lockedAccount, error) {
	var account lockedAccount
	err := tx.QueryRowContext(ctx, `
		SELECT id, fullname, COALESCE(account_number, ''), balance, version
		FROM users
		WHERE account_number = $1
		FOR UPDATE`, accountNumber).Scan(&account.ID, &account.Fullname,
		&account.AccountNumber, &account.Balance, &account.Version)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *LedgerService) createTransaction(ctx context.Context, tx *sql.Tx, transactionID, txType string, fromID int, fromKind string, toID int, amount int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (transaction_id, type, from_id, from_kind, to_id, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		transactionID, txType, fromID, fromKind, toID, amount, models.StatusCompleted, time.Now())
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (s *LedgerService) createLedgerEntry(ctx context.Context, tx *sql.Tx, transactionID string, accountID int, accountKind string, amount int64, entryType string, balance int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (transaction_id, account_id, account_kind, amount, entry_type, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		transactionID, accountID, accountKind, amount, entryType, balance, time.Now())
	if err != nil {
		return fmt.Errorf("create ledger entry: %w", err)
	}
	return nil
}

func (s *LedgerService) updateUserBalance(ctx context.Context, tx *sql.Tx, userID int, newBalance int64, version int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE users
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		newBalance, time.Now(), userID, version)
	if err != nil {
		return err
	}
	return checkOptimisticUpdate(result, models.PartyUser, userID)
}

func (s *LedgerService) updateAdminBalance(ctx context.Context, tx *sql.Tx, adminID int, newBalance int64, version int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE admins
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		newBalance, time.Now(), adminID, version)
	if err != nil {
		return err
	}
	return checkOptimisticUpdate(result, models.PartyAdmin, adminID)
}

func checkOptimisticUpdate(result sql.Result, kind string, id int) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("optimistic lock failed for %s %d: %w", kind, id, ErrConflict)
	}
	return nil
}
