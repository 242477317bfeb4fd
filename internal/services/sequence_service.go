package services

import (
	"context"
	"database/sql"
	"fmt"
)

// CounterAccountNumber is the counter backing account number minting.
const CounterAccountNumber = "accountNumber"

const accountNumberPrefix = "DIGI"

// SequenceService issues strictly increasing integers per named
// counter. All state lives in the sequence_counters table; a single
// upsert makes concurrent allocations collision-free.
type SequenceService struct {
	db *sql.DB
}

func NewSequenceService(db *sql.DB) *SequenceService {
	return &SequenceService{db: db}
}

// NextValue atomically increments the named counter and returns its new
// value, creating the counter at 1 on first use.
func (s *SequenceService) NextValue(ctx context.Context, name string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sequence_counters (name, seq)
		VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET seq = sequence_counters.seq + 1
		RETURNING seq`, name).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("sequence %q: %w", name, err)
	}
	return seq, nil
}

// FormatAccountNumber renders a sequence value as a human-readable
// account number: DIGI + the value zero-padded to at least 5 digits.
func FormatAccountNumber(seq int64) string {
	return fmt.Sprintf("%s%05d", accountNumberPrefix, seq)
}

// GenerateAccountNumber allocates and formats a fresh account number.
// On allocation failure the error propagates; no number is handed out.
func (s *SequenceService) GenerateAccountNumber(ctx context.Context) (string, error) {
	seq, err := s.NextValue(ctx, CounterAccountNumber)
	if err != nil {
		return "", err
	}
	return FormatAccountNumber(seq), nil
}
