package services

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid deposit request", func(t *testing.T) {
		err := vh.ValidateStruct(&DepositRequest{AccountNumber: "DIGI00001", Amount: 500})
		assert.NoError(t, err)
	})

	t.Run("missing account number", func(t *testing.T) {
		err := vh.ValidateStruct(&DepositRequest{Amount: 500})
		assert.Error(t, err)
	})

	t.Run("zero amount", func(t *testing.T) {
		err := vh.ValidateStruct(&DepositRequest{AccountNumber: "DIGI00001"})
		assert.Error(t, err)
	})

	t.Run("negative amount", func(t *testing.T) {
		err := vh.ValidateStruct(&DepositRequest{AccountNumber: "DIGI00001", Amount: -1})
		assert.Error(t, err)
	})

	t.Run("cancel requires a v4 uuid", func(t *testing.T) {
		err := vh.ValidateStruct(&CancelRequest{TransactionID: "c6e4f1de-69e2-4c35-9d37-2c1a6a1f0a01"})
		assert.NoError(t, err)

		err = vh.ValidateStruct(&CancelRequest{TransactionID: "12345"})
		assert.Error(t, err)
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("plain error", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), "Invalid request")
	})

	t.Run("validation details included", func(t *testing.T) {
		vh := NewValidationHelper()
		err := vh.ValidateStruct(&DepositRequest{})
		assert.Error(t, err)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)

		assert.Contains(t, w.Body.String(), "details")
		assert.Contains(t, w.Body.String(), "AccountNumber")
	})
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid argument", ErrInvalidArgument, http.StatusBadRequest},
		{"insufficient funds", ErrInsufficientFunds, http.StatusBadRequest},
		{"already cancelled", ErrAlreadyCancelled, http.StatusBadRequest},
		{"not found", ErrNotFound, http.StatusNotFound},
		{"conflict", ErrConflict, http.StatusConflict},
		{"wrapped not found", fmt.Errorf("account DIGI00001: %w", ErrNotFound), http.StatusNotFound},
		{"infrastructure", fmt.Errorf("connection refused"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StatusForError(tc.err))
		})
	}
}

func TestSendServiceError(t *testing.T) {
	t.Run("domain errors surface verbatim", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendServiceError(w, fmt.Errorf("source balance: %w", ErrInsufficientFunds))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "source balance")
	})

	t.Run("infrastructure errors are masked", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendServiceError(w, fmt.Errorf("dial tcp 10.0.0.3:5432: connection refused"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "10.0.0.3")
		assert.Contains(t, w.Body.String(), "An internal error occurred")
	})
}
