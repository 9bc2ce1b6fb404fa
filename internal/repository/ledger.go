package repository

import (
	"context"
	"errors"

	"insureconnect/internal/models"

	"gorm.io/gorm"
)

// LedgerRepository is the single write path for token balances. Every balance
// change goes through a conditional UPDATE plus a ledger row in one database
// transaction, so user.token_balance always equals the sum of the user's
// transactions.
type LedgerRepository interface {
	Debit(ctx context.Context, userID uint, amount int, entry *models.TokenTransaction) error
	Credit(ctx context.Context, userID uint, amount int, entry *models.TokenTransaction) error
	// DebitTx and CreditTx run inside a caller-owned transaction so moves can
	// be composed with other state changes (e.g. a moderation refund).
	DebitTx(tx *gorm.DB, userID uint, amount int, entry *models.TokenTransaction) error
	CreditTx(tx *gorm.DB, userID uint, amount int, entry *models.TokenTransaction) error
	Balance(ctx context.Context, userID uint) (int, error)
	SumTransactions(ctx context.Context, userID uint) (int, error)
	ListTransactions(ctx context.Context, userID uint, limit, offset int) ([]models.TokenTransaction, error)
}

// ErrLedgerDuplicate aborts a ledger transaction that lost an idempotency
// race. The caller rolls back its balance change and treats the move as
// already applied.
var ErrLedgerDuplicate = errors.New("ledger: duplicate request id")

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository returns a new LedgerRepository implementation.
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) Debit(ctx context.Context, userID uint, amount int, entry *models.TokenTransaction) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.DebitTx(tx, userID, amount, entry)
	})
	if errors.Is(err, ErrLedgerDuplicate) {
		return nil
	}
	return err
}

func (r *ledgerRepository) Credit(ctx context.Context, userID uint, amount int, entry *models.TokenTransaction) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.CreditTx(tx, userID, amount, entry)
	})
	if errors.Is(err, ErrLedgerDuplicate) {
		return nil
	}
	return err
}

// alreadyApplied checks the idempotency key and loads the original row into
// entry when the move already committed.
func alreadyApplied(tx *gorm.DB, entry *models.TokenTransaction) (bool, error) {
	if entry.RequestID == nil || *entry.RequestID == "" {
		return false, nil
	}
	var existing models.TokenTransaction
	err := tx.Where("request_id = ?", *entry.RequestID).First(&existing).Error
	if err == nil {
		*entry = existing
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, models.NewTransientStorageError(err)
}

func (r *ledgerRepository) DebitTx(tx *gorm.DB, userID uint, amount int, entry *models.TokenTransaction) error {
	if amount <= 0 {
		return models.NewValidationError("Debit amount must be positive")
	}

	applied, err := alreadyApplied(tx, entry)
	if err != nil {
		return err
	}
	if applied {
		// Abort so anything composed with this move rolls back too; the
		// non-Tx wrappers translate the abort into idempotent success.
		return ErrLedgerDuplicate
	}

	// The balance guard lives in the WHERE clause so two concurrent debits
	// can never both succeed against one covering balance.
	res := tx.Model(&models.User{}).
		Where("id = ? AND token_balance >= ?", userID, amount).
		UpdateColumn("token_balance", gorm.Expr("token_balance - ?", amount))
	if res.Error != nil {
		return models.NewTransientStorageError(res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return models.NewTransientStorageError(err)
		}
		if count == 0 {
			return models.NewNotFoundError("User", userID)
		}
		return models.NewInsufficientBalanceError(amount)
	}

	entry.UserID = userID
	entry.Amount = -amount
	if err := tx.Create(entry).Error; err != nil {
		if isUniqueConstraintError(err) {
			// Lost an idempotency race; abort so the balance change rolls back.
			return ErrLedgerDuplicate
		}
		return models.NewTransientStorageError(err)
	}
	return nil
}

func (r *ledgerRepository) CreditTx(tx *gorm.DB, userID uint, amount int, entry *models.TokenTransaction) error {
	if amount <= 0 {
		return models.NewValidationError("Credit amount must be positive")
	}

	applied, err := alreadyApplied(tx, entry)
	if err != nil {
		return err
	}
	if applied {
		return ErrLedgerDuplicate
	}

	res := tx.Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("token_balance", gorm.Expr("token_balance + ?", amount))
	if res.Error != nil {
		return models.NewTransientStorageError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", userID)
	}

	entry.UserID = userID
	entry.Amount = amount
	if err := tx.Create(entry).Error; err != nil {
		if isUniqueConstraintError(err) {
			return ErrLedgerDuplicate
		}
		return models.NewTransientStorageError(err)
	}
	return nil
}

func (r *ledgerRepository) Balance(ctx context.Context, userID uint) (int, error) {
	var balance int
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Pluck("token_balance", &balance).Error
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return balance, nil
}

func (r *ledgerRepository) SumTransactions(ctx context.Context, userID uint) (int, error) {
	var sum int
	err := r.db.WithContext(ctx).Model(&models.TokenTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return sum, nil
}

func (r *ledgerRepository) ListTransactions(ctx context.Context, userID uint, limit, offset int) ([]models.TokenTransaction, error) {
	var txs []models.TokenTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&txs).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return txs, nil
}
