package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"kicho/internal/cache"
	"kicho/internal/core"
	"kicho/internal/log"
	"kicho/internal/services"
	"kicho/internal/storage"
)

type testEnv struct {
	srv      *Server
	repo     *storage.SQLiteRepository
	accounts map[string]core.Account
}

func newTestEnv(t *testing.T, rpm int) *testEnv {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "kicho.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	ledgers := services.NewLedgerService(repo, cache.NewLRUCache[services.Summary](16, time.Minute))
	txs := services.NewTransactionService(repo, core.CalendarYear, ledgers, nil)

	srv, err := NewServer(":0", Options{
		Transactions:   txs,
		Ledger:         ledgers,
		Accounts:       repo,
		Ready:          repo.Ping,
		Tokens:         map[string]string{"tok-alice": "alice", "tok-bob": "bob"},
		Calendar:       core.CalendarYear,
		RateLimitRPM:   rpm,
		MetricsEnabled: true,
		Logger:         log.Discard(),
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(srv.rateLimiter.Stop)

	all, err := repo.ListAccounts(context.Background())
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	byCode := make(map[string]core.Account, len(all))
	for _, a := range all {
		byCode[a.Code] = a
	}
	return &testEnv{srv: srv, repo: repo, accounts: byCode}
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createJSON(code, typ, date, amount string) string {
	return `{"type":"` + typ + `","date":"` + date + `","account_id":` +
		strconv.FormatInt(e.accounts[code].ID, 10) + `,"amount":"` + amount +
		`","payment_method":"bank_transfer","tax_category":"taxable_10","description":"entry"}`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, 100)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := env.do(t, http.MethodGet, path, "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
	}

	env.srv.ready = func(context.Context) error { return errors.New("database is locked") }
	if rec := env.do(t, http.MethodGet, "/readyz", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing check = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, 100)
	env.do(t, http.MethodGet, "/healthz", "", "")
	rec := env.do(t, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "kicho_http_requests_total") {
		t.Fatalf("metrics status = %d", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, 100)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic dG9rLWFsaWNl", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer tok-alice", http.StatusOK},
		{"scheme is case insensitive", "bearer tok-bob", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			env.srv.Handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			if tc.want == http.StatusUnauthorized {
				body := decode[ErrorResponse](t, rec)
				if body.Error != "unauthorized" {
					t.Errorf("error = %q", body.Error)
				}
			}
		})
	}
}

func TestListAccounts(t *testing.T) {
	env := newTestEnv(t, 100)
	rec := env.do(t, http.MethodGet, "/api/accounts", "tok-alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[struct {
		Accounts []accountResponse `json:"accounts"`
	}](t, rec)
	if len(body.Accounts) != 20 || body.Accounts[0].Code != "101" {
		t.Fatalf("accounts = %+v", body.Accounts)
	}
}

func TestTransactionCRUD(t *testing.T) {
	env := newTestEnv(t, 100)

	rec := env.do(t, http.MethodPost, "/api/transactions", "tok-alice", env.createJSON("716", "EXPENSE", "2025-04-10", "8800"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body)
	}
	created := decode[transactionResponse](t, rec)
	if created.ID == "" || created.AmountFormatted != "¥8,800" || created.FiscalYear != 2025 || created.FiscalPeriod != 4 {
		t.Fatalf("created = %+v", created)
	}
	if rec.Header().Get("Location") != "/api/transactions/"+created.ID {
		t.Errorf("Location = %q", rec.Header().Get("Location"))
	}

	path := "/api/transactions/" + created.ID
	if rec := env.do(t, http.MethodGet, path, "tok-alice", ""); rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, path, "tok-bob", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get by other owner = %d, want 404", rec.Code)
	}

	rec = env.do(t, http.MethodPut, path, "tok-alice", env.createJSON("716", "EXPENSE", "2025-04-10", "1234.5"))
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d body=%s", rec.Code, rec.Body)
	}
	if updated := decode[transactionResponse](t, rec); updated.AmountFormatted != "¥1,234.50" {
		t.Errorf("updated amount = %s", updated.AmountFormatted)
	}

	rec = env.do(t, http.MethodGet, "/api/transactions?fiscal_year=2025", "tok-alice", "")
	list := decode[struct {
		Transactions []transactionResponse `json:"transactions"`
	}](t, rec)
	if len(list.Transactions) != 1 {
		t.Fatalf("list = %+v", list.Transactions)
	}

	if rec := env.do(t, http.MethodDelete, path, "tok-bob", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("delete by other owner = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, path, "tok-alice", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, path, "tok-alice", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d", rec.Code)
	}
}

func TestCreateTransactionFormEncoded(t *testing.T) {
	env := newTestEnv(t, 100)
	form := url.Values{
		"type":           {"income"},
		"date":           {"2025-05-01"},
		"account_id":     {strconv.FormatInt(env.accounts["601"].ID, 10)},
		"amount":         {"¥50,000"},
		"payment_method": {"bank_transfer"},
		"tax_category":   {"taxable_10"},
		"description":    {"consulting"},
		"client_name":    {"株式会社サンプル"},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer tok-alice")
	rec := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	created := decode[transactionResponse](t, rec)
	if created.Type != "INCOME" || created.AmountFormatted != "¥50,000" || created.ClientName != "株式会社サンプル" {
		t.Fatalf("created = %+v", created)
	}
}

func TestCreateTransactionErrors(t *testing.T) {
	env := newTestEnv(t, 100)
	cases := []struct {
		name string
		body string
		want int
		code string
	}{
		{"malformed json", `{"type":`, http.StatusBadRequest, "invalid_request"},
		{"bad date", env.createJSON("716", "EXPENSE", "2025-13-01", "1"), http.StatusUnprocessableEntity, "validation_error"},
		{"bad amount", env.createJSON("716", "EXPENSE", "2025-01-01", "abc"), http.StatusUnprocessableEntity, "validation_error"},
		{"zero amount", env.createJSON("716", "EXPENSE", "2025-01-01", "0"), http.StatusUnprocessableEntity, "validation_error"},
		{"over max", env.createJSON("716", "EXPENSE", "2025-01-01", "100000000"), http.StatusUnprocessableEntity, "validation_error"},
		{"unknown type", env.createJSON("716", "TRANSFER", "2025-01-01", "1"), http.StatusUnprocessableEntity, "validation_error"},
		{"unknown account", strings.Replace(env.createJSON("716", "EXPENSE", "2025-01-01", "1"),
			`"account_id":`+strconv.FormatInt(env.accounts["716"].ID, 10), `"account_id":424242`, 1),
			http.StatusUnprocessableEntity, "validation_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/transactions", "tok-alice", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (body=%s)", rec.Code, tc.want, rec.Body)
			}
			if body := decode[ErrorResponse](t, rec); body.Error != tc.code {
				t.Errorf("error = %q, want %q", body.Error, tc.code)
			}
		})
	}
}

func TestLedgerEndpoints(t *testing.T) {
	env := newTestEnv(t, 100)
	for _, body := range []string{
		env.createJSON("716", "EXPENSE", "2025-04-10", "8800"),
		env.createJSON("601", "INCOME", "2025-05-01", "50000"),
		env.createJSON("716", "EXPENSE", "2024-12-31", "1"),
	} {
		if rec := env.do(t, http.MethodPost, "/api/transactions", "tok-alice", body); rec.Code != http.StatusCreated {
			t.Fatalf("create status = %d body=%s", rec.Code, rec.Body)
		}
	}

	// No fiscal_year means the current one (2025 with the test clock).
	rec := env.do(t, http.MethodGet, "/api/ledger", "tok-alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ledger status = %d", rec.Code)
	}
	ledger := decode[ledgerResponse](t, rec)
	if ledger.FiscalYear != 2025 || len(ledger.Entries) != 2 {
		t.Fatalf("ledger = %+v", ledger)
	}
	if e := ledger.Entries[0]; e.AccountCode != "601" || e.BalanceFormatted != "(¥50,000)" || e.CreditFormatted != "¥50,000" {
		t.Errorf("601 entry = %+v", e)
	}
	if e := ledger.Entries[1]; e.AccountCode != "716" || e.BalanceFormatted != "¥8,800" {
		t.Errorf("716 entry = %+v", e)
	}
	if ledger.Totals.BalanceFormatted != "(¥41,200)" || ledger.Totals.TotalFormatted != "¥58,800" {
		t.Errorf("totals = %+v", ledger.Totals)
	}

	rec = env.do(t, http.MethodGet, "/api/ledger?fiscal_year=2025", "tok-bob", "")
	if empty := decode[ledgerResponse](t, rec); len(empty.Entries) != 0 || empty.Entries == nil {
		t.Errorf("other owner ledger = %+v", empty)
	}

	if rec := env.do(t, http.MethodGet, "/api/ledger?fiscal_year=abc", "tok-alice", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad fiscal year status = %d", rec.Code)
	}

	path := "/api/ledger/accounts/" + strconv.FormatInt(env.accounts["716"].ID, 10) + "?fiscal_year=2025"
	rec = env.do(t, http.MethodGet, path, "tok-alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("account ledger status = %d", rec.Code)
	}
	detail := decode[accountLedgerResponse](t, rec)
	if detail.Account.Code != "716" || len(detail.Lines) != 1 || detail.Lines[0].BalanceFormatted != "¥8,800" {
		t.Errorf("detail = %+v", detail)
	}

	if rec := env.do(t, http.MethodGet, "/api/ledger/accounts/999999", "tok-alice", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown account status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/ledger/accounts/x", "tok-alice", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad account id status = %d", rec.Code)
	}
}

func TestLedgerPage(t *testing.T) {
	env := newTestEnv(t, 100)
	env.do(t, http.MethodPost, "/api/transactions", "tok-alice", env.createJSON("601", "INCOME", "2025-05-01", "1234"))

	req := httptest.NewRequest(http.MethodGet, "/ledger?fiscal_year=2025", nil)
	req.AddCookie(&http.Cookie{Name: TokenCookie, Value: "tok-alice"})
	rec := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"総勘定元帳", "売上高", "(¥1,234)", `class="num neg"`} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
	}

	req = httptest.NewRequest(http.MethodGet, "/ledger?fiscal_year=2030", nil)
	req.Header.Set("Authorization", "Bearer tok-alice")
	rec = httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), "この年度の取引はありません") {
		t.Errorf("empty year page missing notice")
	}
}

func TestCookieOnlyAuthorizesLedgerPage(t *testing.T) {
	env := newTestEnv(t, 100)
	form := url.Values{
		"type":           {"expense"},
		"date":           {"2025-05-01"},
		"account_id":     {strconv.FormatInt(env.accounts["716"].ID, 10)},
		"amount":         {"8800"},
		"payment_method": {"cash"},
		"tax_category":   {"taxable_10"},
		"description":    {"forged"},
	}

	cases := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"form create", http.MethodPost, "/api/transactions", form.Encode()},
		{"delete", http.MethodDelete, "/api/transactions/any", ""},
		{"read api", http.MethodGet, "/api/accounts", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.AddCookie(&http.Cookie{Name: TokenCookie, Value: "tok-alice"})
			rec := httptest.NewRecorder()
			env.srv.Handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}

	rec := env.do(t, http.MethodGet, "/api/transactions", "tok-alice", "")
	list := decode[map[string][]transactionResponse](t, rec)
	if n := len(list["transactions"]); n != 0 {
		t.Fatalf("cookie request stored %d transactions", n)
	}
}

func TestWritesAreRateLimited(t *testing.T) {
	env := newTestEnv(t, 1)

	if rec := env.do(t, http.MethodPost, "/api/transactions", "tok-alice", env.createJSON("716", "EXPENSE", "2025-04-10", "1")); rec.Code != http.StatusCreated {
		t.Fatalf("first write = %d", rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/api/transactions", "tok-alice", env.createJSON("716", "EXPENSE", "2025-04-10", "1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second write = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	// Reads are not limited.
	if rec := env.do(t, http.MethodGet, "/api/transactions", "tok-alice", ""); rec.Code != http.StatusOK {
		t.Fatalf("read after limit = %d", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, 100)
	rec := env.do(t, http.MethodGet, "/nope", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decode[ErrorResponse](t, rec); body.Error != "not_found" {
		t.Errorf("error = %q", body.Error)
	}
}
