package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"kicho/internal/log"
)

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accounts.ListAccounts(r.Context())
	if err != nil {
		writeServiceError(w, r, "list_accounts", err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, newAccountResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := parseTransactionFilter(r.URL.Query())
	if err != nil {
		writeServiceError(w, r, "list_transactions", err)
		return
	}
	txs, err := s.transactions.List(r.Context(), OwnerFromContext(r.Context()), f)
	if err != nil {
		writeServiceError(w, r, "list_transactions", err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, newTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Request body must be JSON or form encoded")
		return
	}
	in, err := parseTransaction(p)
	if err != nil {
		writeServiceError(w, r, "create_transaction", err)
		return
	}

	created, err := s.transactions.Create(r.Context(), OwnerFromContext(r.Context()), in)
	if err != nil {
		writeServiceError(w, r, "create_transaction", err)
		return
	}
	w.Header().Set("Location", "/api/transactions/"+created.ID)
	writeJSON(w, http.StatusCreated, newTransactionResponse(created))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := s.transactions.Get(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, "get_transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, newTransactionResponse(t))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Request body must be JSON or form encoded")
		return
	}
	in, err := parseTransaction(p)
	if err != nil {
		writeServiceError(w, r, "update_transaction", err)
		return
	}

	updated, err := s.transactions.Update(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, r, "update_transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, newTransactionResponse(updated))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.transactions.Delete(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, "delete_transaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	fy, err := parseFiscalYear(r.URL.Query(), s.calendar, s.now())
	if err != nil {
		writeServiceError(w, r, "ledger_summary", err)
		return
	}
	sum, err := s.ledger.Summary(r.Context(), OwnerFromContext(r.Context()), fy)
	if err != nil {
		writeServiceError(w, r, "ledger_summary", err)
		return
	}
	writeJSON(w, http.StatusOK, newLedgerResponse(sum))
}

func (s *Server) handleAccountLedger(w http.ResponseWriter, r *http.Request) {
	accountID, err := parseAccountIDParam(r)
	if err != nil {
		writeServiceError(w, r, "account_ledger", err)
		return
	}
	fy, err := parseFiscalYear(r.URL.Query(), s.calendar, s.now())
	if err != nil {
		writeServiceError(w, r, "account_ledger", err)
		return
	}
	account, lines, err := s.ledger.AccountLedger(r.Context(), OwnerFromContext(r.Context()), accountID, fy)
	if err != nil {
		writeServiceError(w, r, "account_ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountLedgerResponse(fy, account, lines))
}

func (s *Server) handleLedgerPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := OwnerFromContext(ctx)

	fy, err := parseFiscalYear(r.URL.Query(), s.calendar, s.now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sum, err := s.ledger.Summary(ctx, owner, fy)
	if err != nil {
		writeServiceError(w, r, "ledger_page", err)
		return
	}
	years, err := s.ledger.FiscalYears(ctx, owner)
	if err != nil {
		writeServiceError(w, r, "ledger_page", err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "ledger.html", newLedgerPage(sum, years)); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Ledger template execution failed",
			log.FieldError, err.Error(), "template", "ledger.html")
	}
}
