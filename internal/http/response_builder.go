package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"kicho/internal/core"
	"kicho/internal/ledger"
	"kicho/internal/log"
	"kicho/internal/services"
	"kicho/internal/storage"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, ErrorResponse{Error: code, ErrorDescription: description})
}

// writeServiceError maps err to a status code. Unexpected errors are logged
// and their text is not sent to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, errBadParameter):
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", err.Error())
	case core.IsValidationError(err):
		writeJSONError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	default:
		log.FromContext(r.Context()).LogAttrs(r.Context(), slog.LevelError, "Request failed",
			log.NewFields().WithOperation(op).WithError(err))
		writeJSONError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

type accountResponse struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

func newAccountResponse(a core.Account) accountResponse {
	return accountResponse{ID: a.ID, Code: a.Code, Name: a.Name, Category: string(a.Category)}
}

type transactionResponse struct {
	ID              string     `json:"id"`
	Type            string     `json:"type"`
	Date            string     `json:"date"`
	AccountID       int64      `json:"account_id"`
	Amount          core.Money `json:"amount"`
	AmountFormatted string     `json:"amount_formatted"`
	PaymentMethod   string     `json:"payment_method"`
	TaxCategory     string     `json:"tax_category"`
	ClientName      string     `json:"client_name,omitempty"`
	Description     string     `json:"description"`
	Memo            string     `json:"memo,omitempty"`
	FiscalYear      int        `json:"fiscal_year"`
	FiscalPeriod    int        `json:"fiscal_period"`
}

func newTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:              t.ID,
		Type:            string(t.Type),
		Date:            t.Date.String(),
		AccountID:       t.AccountID,
		Amount:          t.Amount,
		AmountFormatted: core.FormatAmount(t.Amount),
		PaymentMethod:   string(t.PaymentMethod),
		TaxCategory:     string(t.TaxCategory),
		ClientName:      t.ClientName,
		Description:     t.Description,
		Memo:            t.Memo,
		FiscalYear:      t.FiscalYear,
		FiscalPeriod:    t.FiscalPeriod,
	}
}

// amounts carries raw decimal strings next to their display forms.
type amounts struct {
	Debit            core.Money `json:"debit_total"`
	Credit           core.Money `json:"credit_total"`
	Total            core.Money `json:"total_amount"`
	Balance          core.Money `json:"balance"`
	DebitFormatted   string     `json:"debit_total_formatted"`
	CreditFormatted  string     `json:"credit_total_formatted"`
	TotalFormatted   string     `json:"total_amount_formatted"`
	BalanceFormatted string     `json:"balance_formatted"`
}

func newAmounts(debit, credit, total, balance core.Money) amounts {
	return amounts{
		Debit:            debit,
		Credit:           credit,
		Total:            total,
		Balance:          balance,
		DebitFormatted:   core.FormatAmount(debit),
		CreditFormatted:  core.FormatAmount(credit),
		TotalFormatted:   core.FormatAmount(total),
		BalanceFormatted: core.FormatBalance(balance),
	}
}

type ledgerEntryResponse struct {
	AccountID   int64  `json:"account_id"`
	AccountCode string `json:"account_code"`
	AccountName string `json:"account_name"`
	Category    string `json:"category"`
	amounts
}

type ledgerResponse struct {
	FiscalYear int                   `json:"fiscal_year"`
	Entries    []ledgerEntryResponse `json:"entries"`
	Totals     amounts               `json:"totals"`
}

func newLedgerResponse(s services.Summary) ledgerResponse {
	out := ledgerResponse{
		FiscalYear: s.FiscalYear,
		Entries:    make([]ledgerEntryResponse, 0, len(s.Entries)),
		Totals:     newAmounts(s.Totals.DebitTotal, s.Totals.CreditTotal, s.Totals.TotalAmount, s.Totals.Balance),
	}
	for _, e := range s.Entries {
		out.Entries = append(out.Entries, ledgerEntryResponse{
			AccountID:   e.AccountID,
			AccountCode: e.AccountCode,
			AccountName: e.AccountName,
			Category:    string(e.Category),
			amounts:     newAmounts(e.DebitTotal, e.CreditTotal, e.TotalAmount, e.Balance),
		})
	}
	return out
}

type ledgerLineResponse struct {
	TransactionID    string     `json:"transaction_id"`
	Date             string     `json:"date"`
	Type             string     `json:"type"`
	Description      string     `json:"description"`
	ClientName       string     `json:"client_name,omitempty"`
	Debit            core.Money `json:"debit"`
	Credit           core.Money `json:"credit"`
	Balance          core.Money `json:"balance"`
	BalanceFormatted string     `json:"balance_formatted"`
}

type accountLedgerResponse struct {
	FiscalYear int                  `json:"fiscal_year"`
	Account    accountResponse      `json:"account"`
	Lines      []ledgerLineResponse `json:"lines"`
}

func newAccountLedgerResponse(fy int, a core.Account, lines []ledger.Line) accountLedgerResponse {
	out := accountLedgerResponse{
		FiscalYear: fy,
		Account:    newAccountResponse(a),
		Lines:      make([]ledgerLineResponse, 0, len(lines)),
	}
	for _, l := range lines {
		out.Lines = append(out.Lines, ledgerLineResponse{
			TransactionID:    l.TransactionID,
			Date:             l.Date.String(),
			Type:             string(l.Type),
			Description:      l.Description,
			ClientName:       l.ClientName,
			Debit:            l.Debit,
			Credit:           l.Credit,
			Balance:          l.Balance,
			BalanceFormatted: core.FormatBalance(l.Balance),
		})
	}
	return out
}

// ledgerPageRow is a ledger row with display strings for the HTML page.
type ledgerPageRow struct {
	Code, Name, Category          string
	Debit, Credit, Total, Balance string
	Negative                      bool
}

type ledgerPage struct {
	FiscalYear  int
	FiscalYears []int
	Rows        []ledgerPageRow
	Totals      ledgerPageRow
}

func newLedgerPage(s services.Summary, years []int) ledgerPage {
	page := ledgerPage{
		FiscalYear:  s.FiscalYear,
		FiscalYears: years,
		Rows:        make([]ledgerPageRow, 0, len(s.Entries)),
		Totals:      pageRow(s.Totals.DebitTotal, s.Totals.CreditTotal, s.Totals.TotalAmount, s.Totals.Balance),
	}
	for _, e := range s.Entries {
		row := pageRow(e.DebitTotal, e.CreditTotal, e.TotalAmount, e.Balance)
		row.Code, row.Name, row.Category = e.AccountCode, e.AccountName, string(e.Category)
		page.Rows = append(page.Rows, row)
	}
	return page
}

func pageRow(debit, credit, total, balance core.Money) ledgerPageRow {
	return ledgerPageRow{
		Debit:    core.FormatAmount(debit),
		Credit:   core.FormatAmount(credit),
		Total:    core.FormatAmount(total),
		Balance:  core.FormatBalance(balance),
		Negative: balance.IsNegative(),
	}
}
