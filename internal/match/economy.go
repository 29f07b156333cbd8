package match

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Economy moves currency. It runs inside the caller's repository
// transaction so a payout commits or rolls back with the match result.
type Economy interface {
	AdjustCurrency(ctx context.Context, tx Tx, userID string, delta int64, txType, description string, metadata map[string]any) (int64, error)
}

// LedgerEconomy records every adjustment in the repository's ledger.
type LedgerEconomy struct {
	Now func() time.Time
}

func (e LedgerEconomy) AdjustCurrency(ctx context.Context, tx Tx, userID string, delta int64, txType, description string, metadata map[string]any) (int64, error) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	balance, err := tx.AppendLedger(ctx, LedgerEntry{
		ID:              uuid.NewString(),
		UserID:          userID,
		Delta:           delta,
		TransactionType: txType,
		Description:     description,
		Metadata:        metadata,
		CreatedAt:       now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("adjust currency for %s: %w", userID, err)
	}
	return balance, nil
}
