// Package service implements the business logic layer.
package service

import (
	"context"
	"fmt"

	"insureconnect/internal/models"
	"insureconnect/internal/observability"
	"insureconnect/internal/repository"

	"github.com/google/uuid"
)

// LedgerService owns all token balance movements. Balances are never written
// directly; every change flows through a debit or credit that appends a
// ledger row in the same transaction.
type LedgerService struct {
	ledgerRepo repository.LedgerRepository
}

// MoveInput describes a single ledger movement. Amount is always positive;
// the direction comes from calling Debit or Credit.
type MoveInput struct {
	UserID      uint
	Amount      int
	Type        models.TransactionType
	Description string
	PostID      *uint
	// RequestID deduplicates retries. Callers that may retry after an
	// ambiguous failure should pass a stable key; empty means no dedup.
	RequestID string
}

func NewLedgerService(ledgerRepo repository.LedgerRepository) *LedgerService {
	return &LedgerService{ledgerRepo: ledgerRepo}
}

func (s *LedgerService) entryFor(in MoveInput) (*models.TokenTransaction, error) {
	if in.Amount <= 0 {
		return nil, models.NewValidationError("Amount must be positive")
	}
	entry := &models.TokenTransaction{
		Type:        in.Type,
		Description: in.Description,
		UserID:      in.UserID,
		PostID:      in.PostID,
	}
	if in.RequestID != "" {
		if len(in.RequestID) > 36 {
			return nil, models.NewValidationError("Request ID too long")
		}
		rid := in.RequestID
		entry.RequestID = &rid
	}
	return entry, nil
}

// Debit removes tokens from the user's balance. Fails with
// INSUFFICIENT_BALANCE when the balance cannot cover the amount; the balance
// never goes negative.
func (s *LedgerService) Debit(ctx context.Context, in MoveInput) (*models.TokenTransaction, error) {
	entry, err := s.entryFor(in)
	if err != nil {
		return nil, err
	}
	if err := s.ledgerRepo.Debit(ctx, in.UserID, in.Amount, entry); err != nil {
		observability.RecordLedgerOperation("debit", string(in.Type), "error", 0)
		return nil, err
	}
	observability.RecordLedgerOperation("debit", string(in.Type), "ok", in.Amount)
	return entry, nil
}

// Credit adds tokens to the user's balance.
func (s *LedgerService) Credit(ctx context.Context, in MoveInput) (*models.TokenTransaction, error) {
	entry, err := s.entryFor(in)
	if err != nil {
		return nil, err
	}
	if err := s.ledgerRepo.Credit(ctx, in.UserID, in.Amount, entry); err != nil {
		observability.RecordLedgerOperation("credit", string(in.Type), "error", 0)
		return nil, err
	}
	observability.RecordLedgerOperation("credit", string(in.Type), "ok", in.Amount)
	return entry, nil
}

// ChargeUpload debits the cost of a file upload: one token per started KiB,
// minimum one.
func (s *LedgerService) ChargeUpload(ctx context.Context, userID uint, sizeBytes int64, requestID string) (*models.TokenTransaction, error) {
	if sizeBytes < 0 {
		return nil, models.NewValidationError("File size cannot be negative")
	}
	cost := int((sizeBytes + 1023) / 1024)
	if cost < 1 {
		cost = 1
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return s.Debit(ctx, MoveInput{
		UserID:      userID,
		Amount:      cost,
		Type:        models.TransactionFileUpload,
		Description: fmt.Sprintf("File upload (%d bytes)", sizeBytes),
		RequestID:   requestID,
	})
}

// GrantSignupBonus credits the initial token grant for a new account. Keyed
// on the user id so a re-run cannot double-grant.
func (s *LedgerService) GrantSignupBonus(ctx context.Context, userID uint, amount int) error {
	if amount <= 0 {
		return nil
	}
	_, err := s.Credit(ctx, MoveInput{
		UserID:      userID,
		Amount:      amount,
		Type:        models.TransactionPurchase,
		Description: "Welcome bonus",
		RequestID:   fmt.Sprintf("signup:%d", userID),
	})
	return err
}

// Balance returns the user's current token balance.
func (s *LedgerService) Balance(ctx context.Context, userID uint) (int, error) {
	return s.ledgerRepo.Balance(ctx, userID)
}

// Transactions lists the user's ledger entries, newest first.
func (s *LedgerService) Transactions(ctx context.Context, userID uint, limit, offset int) ([]models.TokenTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.ledgerRepo.ListTransactions(ctx, userID, limit, offset)
}

// VerifyBalance recomputes the ledger sum and compares it to the stored
// balance. Used by tests and the admin reconciliation endpoint.
func (s *LedgerService) VerifyBalance(ctx context.Context, userID uint) (bool, error) {
	balance, err := s.ledgerRepo.Balance(ctx, userID)
	if err != nil {
		return false, err
	}
	sum, err := s.ledgerRepo.SumTransactions(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance == sum, nil
}
