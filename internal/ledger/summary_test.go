package ledger

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"kicho/internal/core"
)

var (
	supplies = core.Account{ID: 1, Code: "716", Name: "消耗品費", Category: core.ExpenseCategory}
	sales    = core.Account{ID: 2, Code: "601", Name: "売上高", Category: core.Revenue}
	cash     = core.Account{ID: 3, Code: "101", Name: "現金", Category: core.Asset}
	rent     = core.Account{ID: 4, Code: "711", Name: "地代家賃", Category: core.ExpenseCategory}

	accounts = map[int64]core.Account{
		supplies.ID: supplies,
		sales.ID:    sales,
		cash.ID:     cash,
		rent.ID:     rent,
	}
)

func tx(id string, typ core.TransactionType, account int64, amount string) core.Transaction {
	return core.Transaction{
		ID:        id,
		Type:      typ,
		Date:      core.NewDate(2025, 4, 1),
		AccountID: account,
		Amount:    core.MustParseMoney(amount),
	}
}

func TestSummarizeScenario(t *testing.T) {
	txs := []core.Transaction{
		tx("t1", core.Expense, supplies.ID, "8800"),
		tx("t2", core.Income, sales.ID, "110000"),
		tx("t3", core.Expense, supplies.ID, "3300"),
	}
	got, err := Summarize(txs, accounts)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	want := []struct {
		code, name                    string
		debit, credit, total, balance string
	}{
		{"601", "売上高", "0", "110000", "110000", "-110000"},
		{"716", "消耗品費", "12100", "0", "12100", "12100"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for i, w := range want {
		e := got[i]
		if e.AccountCode != w.code || e.AccountName != w.name {
			t.Errorf("entry %d account = %s %s, want %s %s", i, e.AccountCode, e.AccountName, w.code, w.name)
		}
		checkMoney(t, fmt.Sprintf("entry %d debit", i), e.DebitTotal, w.debit)
		checkMoney(t, fmt.Sprintf("entry %d credit", i), e.CreditTotal, w.credit)
		checkMoney(t, fmt.Sprintf("entry %d total", i), e.TotalAmount, w.total)
		checkMoney(t, fmt.Sprintf("entry %d balance", i), e.Balance, w.balance)
	}
	if got[0].Category != core.Revenue || got[1].Category != core.ExpenseCategory {
		t.Errorf("categories not carried through: %s, %s", got[0].Category, got[1].Category)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	got, err := Summarize(nil, accounts)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestSummarizeIncomeAndExpenseSameAccount(t *testing.T) {
	got, err := Summarize([]core.Transaction{
		tx("a", core.Income, cash.ID, "500"),
		tx("b", core.Expense, cash.ID, "500"),
	}, accounts)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1", len(got))
	}
	checkMoney(t, "debit", got[0].DebitTotal, "500")
	checkMoney(t, "credit", got[0].CreditTotal, "500")
	checkMoney(t, "total", got[0].TotalAmount, "1000")
	checkMoney(t, "balance", got[0].Balance, "0")
}

func TestSummarizeCategoryDoesNotFlipSign(t *testing.T) {
	// Revenue is credit-normal but the balance stays debit - credit.
	got, err := Summarize([]core.Transaction{tx("a", core.Income, sales.ID, "1000")}, accounts)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	checkMoney(t, "balance", got[0].Balance, "-1000")
}

func TestSummarizeErrors(t *testing.T) {
	cases := []struct {
		name string
		txs  []core.Transaction
		want error
	}{
		{"unknown account", []core.Transaction{tx("ok", core.Expense, rent.ID, "1"), tx("bad", core.Expense, 99, "1")}, ErrUnknownAccount},
		{"negative amount", []core.Transaction{tx("neg", core.Expense, rent.ID, "-1")}, ErrInvalidAmount},
		{"too many decimals", []core.Transaction{tx("frac", core.Income, sales.ID, "0.001")}, ErrInvalidAmount},
		{"above maximum", []core.Transaction{tx("big", core.Income, sales.ID, "100000000")}, ErrInvalidAmount},
		{"unknown type", []core.Transaction{tx("typ", "TRANSFER", sales.ID, "1")}, ErrInvalidType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Summarize(tc.txs, accounts)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if got != nil {
				t.Fatalf("expected no partial result, got %#v", got)
			}
		})
	}
}

func TestSummarizeErrorNamesTransaction(t *testing.T) {
	_, err := Summarize([]core.Transaction{tx("tx-42", core.Expense, 99, "1")}, accounts)
	if err == nil || err.Error() != "transaction tx-42: unknown account 99" {
		t.Fatalf("err = %v", err)
	}
}

func TestSummarizeConservationAndOrder(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	ids := []int64{supplies.ID, sales.ID, cash.ID, rent.ID}

	for round := 0; round < 50; round++ {
		n := r.Intn(40)
		txs := make([]core.Transaction, 0, n)
		wantDebit, wantCredit := core.Zero, core.Zero
		for i := 0; i < n; i++ {
			amount := core.MustParseMoney(fmt.Sprintf("%d.%02d", r.Intn(1000000), r.Intn(100)))
			typ := core.Expense
			if r.Intn(2) == 0 {
				typ = core.Income
				wantCredit = wantCredit.Add(amount)
			} else {
				wantDebit = wantDebit.Add(amount)
			}
			txs = append(txs, core.Transaction{
				ID:        fmt.Sprintf("r%d-%d", round, i),
				Type:      typ,
				AccountID: ids[r.Intn(len(ids))],
				Amount:    amount,
			})
		}

		got, err := Summarize(txs, accounts)
		if err != nil {
			t.Fatalf("round %d: %v", round, err)
		}

		debit, credit := core.Zero, core.Zero
		for i, e := range got {
			if !e.TotalAmount.Equal(e.DebitTotal.Add(e.CreditTotal)) {
				t.Fatalf("round %d: total identity broken for %s", round, e.AccountCode)
			}
			if !e.Balance.Equal(e.DebitTotal.Sub(e.CreditTotal)) {
				t.Fatalf("round %d: balance identity broken for %s", round, e.AccountCode)
			}
			if i > 0 && got[i-1].AccountCode >= e.AccountCode {
				t.Fatalf("round %d: not sorted: %s before %s", round, got[i-1].AccountCode, e.AccountCode)
			}
			debit = debit.Add(e.DebitTotal)
			credit = credit.Add(e.CreditTotal)
		}
		if !debit.Equal(wantDebit) || !credit.Equal(wantCredit) {
			t.Fatalf("round %d: sums debit=%s credit=%s, want %s %s", round, debit, credit, wantDebit, wantCredit)
		}

		shuffled := append([]core.Transaction(nil), txs...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		again, err := Summarize(shuffled, accounts)
		if err != nil {
			t.Fatalf("round %d shuffled: %v", round, err)
		}
		if len(again) != len(got) {
			t.Fatalf("round %d: permutation changed entry count", round)
		}
		for i := range got {
			if got[i].AccountCode != again[i].AccountCode ||
				!got[i].DebitTotal.Equal(again[i].DebitTotal) ||
				!got[i].CreditTotal.Equal(again[i].CreditTotal) {
				t.Fatalf("round %d: permutation changed entry %d", round, i)
			}
		}
	}
}

func TestSummarizeKeepsFractionalPrecision(t *testing.T) {
	var txs []core.Transaction
	for i := 0; i < 10; i++ {
		txs = append(txs, tx(fmt.Sprint(i), core.Expense, rent.ID, "0.10"))
	}
	got, err := Summarize(txs, accounts)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	checkMoney(t, "debit", got[0].DebitTotal, "1")
}

func TestTotal(t *testing.T) {
	entries, err := Summarize([]core.Transaction{
		tx("1", core.Expense, supplies.ID, "8800"),
		tx("2", core.Income, sales.ID, "110000"),
		tx("3", core.Expense, rent.ID, "50000"),
	}, accounts)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	tot := Total(entries)
	checkMoney(t, "debit", tot.DebitTotal, "58800")
	checkMoney(t, "credit", tot.CreditTotal, "110000")
	checkMoney(t, "total", tot.TotalAmount, "168800")
	checkMoney(t, "balance", tot.Balance, "-51200")

	if z := Total(nil); !z.TotalAmount.IsZero() || !z.Balance.IsZero() {
		t.Fatalf("empty total = %+v", z)
	}
}

func checkMoney(t *testing.T, what string, got core.Money, want string) {
	t.Helper()
	if !got.Equal(core.MustParseMoney(want)) {
		t.Errorf("%s = %s, want %s", what, got, want)
	}
}
