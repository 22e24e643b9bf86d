// Package storage persists accounts and transactions in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"kicho/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist or belongs to another owner.
var ErrNotFound = errors.New("not found")

// TransactionFilter narrows ListTransactions. Zero values mean "any".
type TransactionFilter struct {
	FiscalYear int
	AccountID  int64
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const accountColumns = `id, code, name, category`

func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []core.Account{}
	for rows.Next() {
		var a core.Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Category); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	var a core.Account
	err := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.Code, &a.Name, &a.Category)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account %d: %w", id, err)
	}
	return a, nil
}

// UpsertAccount inserts a or, when its code already exists, updates name and
// category. The stored account is returned with its id.
func (r *SQLiteRepository) UpsertAccount(ctx context.Context, a core.Account) (core.Account, error) {
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	a.Code = strings.TrimSpace(a.Code)
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO accounts (code, name, category)
		VALUES (?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id`,
		a.Code, a.Name, string(a.Category),
	).Scan(&a.ID)
	if err != nil {
		return core.Account{}, fmt.Errorf("upsert account %s: %w", a.Code, err)
	}

	slog.InfoContext(ctx, "Account saved", "id", a.ID, "code", a.Code, "category", a.Category)
	return a, nil
}

const transactionColumns = `id, owner_id, type, date, account_id, amount, payment_method, tax_category,
	client_name, description, memo, fiscal_year, fiscal_period`

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, string(t.Type), t.Date.String(), t.AccountID, t.Amount.StringFixed(),
		string(t.PaymentMethod), string(t.TaxCategory), t.ClientName, t.Description, t.Memo,
		t.FiscalYear, t.FiscalPeriod,
	)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"owner", t.OwnerID,
		"type", t.Type,
		"account_id", t.AccountID,
		"amount", t.Amount.String(),
		"date", t.Date.String())
	return nil
}

// UpdateTransaction replaces every field of the owner's transaction t.ID.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET
			type = ?, date = ?, account_id = ?, amount = ?, payment_method = ?, tax_category = ?,
			client_name = ?, description = ?, memo = ?, fiscal_year = ?, fiscal_period = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND owner_id = ?`,
		string(t.Type), t.Date.String(), t.AccountID, t.Amount.StringFixed(),
		string(t.PaymentMethod), string(t.TaxCategory), t.ClientName, t.Description, t.Memo,
		t.FiscalYear, t.FiscalPeriod, t.ID, t.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", t.ID, err)
	}
	return expectOneRow(res, "transaction "+t.ID)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if err := expectOneRow(res, "transaction "+id); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Transaction deleted", "id", id, "owner", ownerID)
	return nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND owner_id = ?`, id, ownerID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return t, nil
}

// ListTransactions returns every transaction of ownerID matching f, ordered
// by date and id. The result is complete; there is no pagination.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, ownerID string, f TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE owner_id = ?`
	args := []any{ownerID}
	if f.FiscalYear != 0 {
		query += ` AND fiscal_year = ?`
		args = append(args, f.FiscalYear)
	}
	if f.AccountID != 0 {
		query += ` AND account_id = ?`
		args = append(args, f.AccountID)
	}
	query += ` ORDER BY date, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// FiscalYears returns the distinct fiscal years with at least one
// transaction of ownerID, newest first.
func (r *SQLiteRepository) FiscalYears(ctx context.Context, ownerID string) ([]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT fiscal_year FROM transactions WHERE owner_id = ? ORDER BY fiscal_year DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list fiscal years: %w", err)
	}
	defer rows.Close()

	years := []int{}
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, fmt.Errorf("scan fiscal year: %w", err)
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t      core.Transaction
		date   string
		amount string
	)
	err := s.Scan(&t.ID, &t.OwnerID, &t.Type, &date, &t.AccountID, &amount,
		&t.PaymentMethod, &t.TaxCategory, &t.ClientName, &t.Description, &t.Memo,
		&t.FiscalYear, &t.FiscalPeriod)
	if err != nil {
		return core.Transaction{}, err
	}
	if t.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: stored date %q: %w", t.ID, date, err)
	}
	if t.Amount, err = core.ParseMoney(amount); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: stored amount %q: %w", t.ID, amount, err)
	}
	return t, nil
}

func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
