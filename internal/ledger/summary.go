// Package ledger aggregates transactions into per-account ledger views.
//
// Every transaction posts to exactly one account: EXPENSE to the debit side
// and INCOME to the credit side. Account category never changes the sign of
// a balance; callers interpret it.
package ledger

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"kicho/internal/core"
)

var (
	ErrUnknownAccount = errors.New("unknown account")
	ErrInvalidAmount  = core.ErrInvalidAmount
	ErrInvalidType    = core.ErrInvalidType
)

// Entry is the summary of one account over a set of transactions.
type Entry struct {
	AccountID   int64
	AccountCode string
	AccountName string
	Category    core.AccountCategory
	DebitTotal  core.Money
	CreditTotal core.Money
	TotalAmount core.Money // DebitTotal + CreditTotal
	Balance     core.Money // DebitTotal - CreditTotal
}

// Totals is the grand total row over a list of entries.
type Totals struct {
	DebitTotal  core.Money
	CreditTotal core.Money
	TotalAmount core.Money
	Balance     core.Money
}

type accumulator struct {
	account core.Account
	debit   core.Money
	credit  core.Money
}

// Summarize folds txs into one Entry per referenced account, sorted by
// account code. The result is never nil. On any malformed transaction it
// returns a nil slice and an error wrapping ErrUnknownAccount,
// ErrInvalidAmount or ErrInvalidType.
func Summarize(txs []core.Transaction, accountsByID map[int64]core.Account) ([]Entry, error) {
	acc := make(map[int64]*accumulator)
	for _, tx := range txs {
		a, err := post(acc, tx, accountsByID)
		if err != nil {
			return nil, err
		}
		switch tx.Type {
		case core.Expense:
			a.debit = a.debit.Add(tx.Amount)
		case core.Income:
			a.credit = a.credit.Add(tx.Amount)
		}
	}

	entries := make([]Entry, 0, len(acc))
	for _, a := range acc {
		entries = append(entries, Entry{
			AccountID:   a.account.ID,
			AccountCode: a.account.Code,
			AccountName: a.account.Name,
			Category:    a.account.Category,
			DebitTotal:  a.debit,
			CreditTotal: a.credit,
			TotalAmount: a.debit.Add(a.credit),
			Balance:     a.debit.Sub(a.credit),
		})
	}
	slices.SortFunc(entries, func(x, y Entry) int {
		if c := strings.Compare(x.AccountCode, y.AccountCode); c != 0 {
			return c
		}
		return compareID(x.AccountID, y.AccountID)
	})
	return entries, nil
}

// post checks tx and returns the accumulator of its account.
func post(acc map[int64]*accumulator, tx core.Transaction, accounts map[int64]core.Account) (*accumulator, error) {
	if !tx.Type.Valid() {
		return nil, fmt.Errorf("transaction %s: %w %q", tx.ID, ErrInvalidType, tx.Type)
	}
	if err := core.CheckAmount(tx.Amount); err != nil {
		return nil, fmt.Errorf("transaction %s: %w %s", tx.ID, ErrInvalidAmount, tx.Amount)
	}
	if a, ok := acc[tx.AccountID]; ok {
		return a, nil
	}
	account, ok := accounts[tx.AccountID]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w %d", tx.ID, ErrUnknownAccount, tx.AccountID)
	}
	a := &accumulator{account: account}
	acc[tx.AccountID] = a
	return a, nil
}

// Total sums a list of entries into a grand total row.
func Total(entries []Entry) Totals {
	var t Totals
	for _, e := range entries {
		t.DebitTotal = t.DebitTotal.Add(e.DebitTotal)
		t.CreditTotal = t.CreditTotal.Add(e.CreditTotal)
	}
	t.TotalAmount = t.DebitTotal.Add(t.CreditTotal)
	t.Balance = t.DebitTotal.Sub(t.CreditTotal)
	return t
}

func compareID(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
