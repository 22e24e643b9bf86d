// Package sheets defines the ledger export port and the tabular layout shared
// by its implementations.
package sheets

import (
	"context"

	"kicho/internal/core"
	"kicho/internal/ledger"
)

// LedgerWriter replaces the exported ledger of one owner and fiscal year.
type LedgerWriter interface {
	WriteLedger(ctx context.Context, ownerID string, fiscalYear int, entries []ledger.Entry, total ledger.Totals) (ref string, err error)
}

// Header is the first row of an exported ledger.
var Header = []string{"コード", "勘定科目", "区分", "借方", "貸方", "合計", "残高"}

// TotalLabel names the grand total row.
const TotalLabel = "合計"

// Rows renders entries and their grand total as display strings: the header,
// one row per entry in the given order, then the total row.
func Rows(entries []ledger.Entry, total ledger.Totals) [][]string {
	rows := make([][]string, 0, len(entries)+2)
	rows = append(rows, append([]string(nil), Header...))
	for _, e := range entries {
		rows = append(rows, []string{
			e.AccountCode,
			e.AccountName,
			string(e.Category),
			core.FormatAmount(e.DebitTotal),
			core.FormatAmount(e.CreditTotal),
			core.FormatAmount(e.TotalAmount),
			core.FormatBalance(e.Balance),
		})
	}
	rows = append(rows, []string{
		"",
		TotalLabel,
		"",
		core.FormatAmount(total.DebitTotal),
		core.FormatAmount(total.CreditTotal),
		core.FormatAmount(total.TotalAmount),
		core.FormatBalance(total.Balance),
	})
	return rows
}
