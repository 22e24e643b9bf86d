package ledger

import (
	"fmt"
	"slices"
	"strings"

	"kicho/internal/core"
)

// Line is one posting in an account's general ledger.
type Line struct {
	TransactionID string
	Date          core.Date
	Type          core.TransactionType
	Description   string
	ClientName    string
	Debit         core.Money
	Credit        core.Money
	Balance       core.Money // running debit - credit
}

// AccountLedger lists the postings of a single account ordered by date and
// transaction id, with a running balance. Every transaction must belong to
// account.
func AccountLedger(account core.Account, txs []core.Transaction) ([]Line, error) {
	sorted := slices.Clone(txs)
	slices.SortFunc(sorted, func(x, y core.Transaction) int {
		if c := x.Date.Compare(y.Date.Time); c != 0 {
			return c
		}
		return strings.Compare(x.ID, y.ID)
	})

	lines := make([]Line, 0, len(sorted))
	balance := core.Zero
	for _, tx := range sorted {
		if tx.AccountID != account.ID {
			return nil, fmt.Errorf("transaction %s: %w %d", tx.ID, ErrUnknownAccount, tx.AccountID)
		}
		if !tx.Type.Valid() {
			return nil, fmt.Errorf("transaction %s: %w %q", tx.ID, ErrInvalidType, tx.Type)
		}
		if err := core.CheckAmount(tx.Amount); err != nil {
			return nil, fmt.Errorf("transaction %s: %w %s", tx.ID, ErrInvalidAmount, tx.Amount)
		}
		l := Line{
			TransactionID: tx.ID,
			Date:          tx.Date,
			Type:          tx.Type,
			Description:   tx.Description,
			ClientName:    tx.ClientName,
		}
		if tx.Type == core.Expense {
			l.Debit = tx.Amount
			balance = balance.Add(tx.Amount)
		} else {
			l.Credit = tx.Amount
			balance = balance.Sub(tx.Amount)
		}
		l.Balance = balance
		lines = append(lines, l)
	}
	return lines, nil
}
