package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestSequenceService_NextValue(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewSequenceService(db)

	t.Run("first allocation creates counter at 1", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO sequence_counters").
			WithArgs("accountNumber").
			WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(1))

		seq, err := service.NextValue(context.Background(), "accountNumber")
		assert.NoError(t, err)
		assert.Equal(t, int64(1), seq)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("subsequent allocation increments", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO sequence_counters").
			WithArgs("accountNumber").
			WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(42))

		seq, err := service.NextValue(context.Background(), "accountNumber")
		assert.NoError(t, err)
		assert.Equal(t, int64(42), seq)
	})

	t.Run("store error propagates", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO sequence_counters").
			WithArgs("accountNumber").
			WillReturnError(fmt.Errorf("connection refused"))

		_, err := service.NextValue(context.Background(), "accountNumber")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestFormatAccountNumber(t *testing.T) {
	t.Run("pads to five digits", func(t *testing.T) {
		assert.Equal(t, "DIGI00001", FormatAccountNumber(1))
		assert.Equal(t, "DIGI00042", FormatAccountNumber(42))
		assert.Equal(t, "DIGI99999", FormatAccountNumber(99999))
	})

	t.Run("grows past the padding", func(t *testing.T) {
		assert.Equal(t, "DIGI100000", FormatAccountNumber(100000))
	})

	t.Run("collision-free over consecutive values", func(t *testing.T) {
		seen := make(map[string]struct{}, 100000)
		for seq := int64(1); seq <= 100000; seq++ {
			number := FormatAccountNumber(seq)
			_, dup := seen[number]
			assert.False(t, dup, "duplicate account number %s at seq %d", number, seq)
			seen[number] = struct{}{}
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, FormatAccountNumber(12345), FormatAccountNumber(12345))
	})
}

func TestSequenceService_GenerateAccountNumber(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewSequenceService(db)

	t.Run("formats the allocated value", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO sequence_counters").
			WithArgs("accountNumber").
			WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(7))

		number, err := service.GenerateAccountNumber(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, "DIGI00007", number)
	})

	t.Run("no number without a committed increment", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO sequence_counters").
			WithArgs("accountNumber").
			WillReturnError(fmt.Errorf("store unavailable"))

		number, err := service.GenerateAccountNumber(context.Background())
		assert.Error(t, err)
		assert.Empty(t, number)
	})
}
