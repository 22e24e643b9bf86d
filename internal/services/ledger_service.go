package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"kicho/internal/cache"
	"kicho/internal/core"
	"kicho/internal/ledger"
	"kicho/internal/metrics"
	"kicho/internal/storage"
)

// LedgerStore is the read side used by LedgerService.
type LedgerStore interface {
	ListAccounts(ctx context.Context) ([]core.Account, error)
	GetAccount(ctx context.Context, id int64) (core.Account, error)
	ListTransactions(ctx context.Context, ownerID string, f storage.TransactionFilter) ([]core.Transaction, error)
	FiscalYears(ctx context.Context, ownerID string) ([]int, error)
}

// Summary is the per-account ledger of one owner and fiscal year.
type Summary struct {
	OwnerID    string
	FiscalYear int
	Entries    []ledger.Entry
	Totals     ledger.Totals
}

// LedgerService computes ledger summaries and memoizes them per owner and
// fiscal year until the owner's transactions change.
type LedgerService struct {
	store LedgerStore
	cache cache.Cache[Summary]

	// generations counts invalidations per owner. A summary computed from
	// an older generation is returned but never cached.
	mu          sync.Mutex
	generations map[string]uint64
}

// NewLedgerService creates the service. A nil cache disables memoization.
func NewLedgerService(store LedgerStore, c cache.Cache[Summary]) *LedgerService {
	return &LedgerService{store: store, cache: c, generations: make(map[string]uint64)}
}

func (s *LedgerService) generation(ownerID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[ownerID]
}

// fill caches sum unless ownerID was invalidated after gen was read.
func (s *LedgerService) fill(key, ownerID string, gen uint64, sum Summary) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[ownerID] != gen {
		return false
	}
	s.cache.Set(key, sum.clone())
	return true
}

func ownerPrefix(ownerID string) string {
	return url.PathEscape(ownerID) + "/"
}

func summaryKey(ownerID string, fiscalYear int) string {
	return ownerPrefix(ownerID) + strconv.Itoa(fiscalYear)
}

// Summary returns the ledger of ownerID for fiscalYear.
func (s *LedgerService) Summary(ctx context.Context, ownerID string, fiscalYear int) (Summary, error) {
	key := summaryKey(ownerID, fiscalYear)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			metrics.LedgerCache.WithLabelValues(metrics.ResultHit).Inc()
			metrics.LedgerSummaries.WithLabelValues(metrics.ResultCached).Inc()
			return cached.clone(), nil
		}
		metrics.LedgerCache.WithLabelValues(metrics.ResultMiss).Inc()
	}

	gen := s.generation(ownerID)
	start := time.Now()
	sum, err := s.compute(ctx, ownerID, fiscalYear)
	metrics.LedgerSummaryDuration.Observe(time.Since(start).Seconds())
	metrics.LedgerSummaries.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return Summary{}, err
	}

	if s.cache != nil && !s.fill(key, ownerID, gen, sum) {
		slog.DebugContext(ctx, "Ledger changed while computing, summary not cached",
			"owner_id", ownerID,
			"fiscal_year", fiscalYear)
	}
	slog.DebugContext(ctx, "Ledger summary computed",
		"owner_id", ownerID,
		"fiscal_year", fiscalYear,
		"accounts", len(sum.Entries),
		"duration_ms", time.Since(start).Milliseconds())
	return sum, nil
}

// compute reads a full snapshot before aggregating so the summary never
// reflects a partially read transaction list.
func (s *LedgerService) compute(ctx context.Context, ownerID string, fiscalYear int) (Summary, error) {
	accounts, err := s.accountsByID(ctx)
	if err != nil {
		return Summary{}, err
	}
	txs, err := s.store.ListTransactions(ctx, ownerID, storage.TransactionFilter{FiscalYear: fiscalYear})
	if err != nil {
		return Summary{}, fmt.Errorf("list transactions: %w", err)
	}

	entries, err := ledger.Summarize(txs, accounts)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize fiscal year %d: %w", fiscalYear, err)
	}
	return Summary{
		OwnerID:    ownerID,
		FiscalYear: fiscalYear,
		Entries:    entries,
		Totals:     ledger.Total(entries),
	}, nil
}

func (s *LedgerService) accountsByID(ctx context.Context) (map[int64]core.Account, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	byID := make(map[int64]core.Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}
	return byID, nil
}

// AccountLedger returns the dated lines of one account for fiscalYear.
func (s *LedgerService) AccountLedger(ctx context.Context, ownerID string, accountID int64, fiscalYear int) (core.Account, []ledger.Line, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return core.Account{}, nil, fmt.Errorf("get account %d: %w", accountID, err)
	}
	txs, err := s.store.ListTransactions(ctx, ownerID, storage.TransactionFilter{
		FiscalYear: fiscalYear,
		AccountID:  accountID,
	})
	if err != nil {
		return core.Account{}, nil, fmt.Errorf("list transactions: %w", err)
	}
	lines, err := ledger.AccountLedger(account, txs)
	if err != nil {
		return core.Account{}, nil, err
	}
	return account, lines, nil
}

// FiscalYears lists the fiscal years ownerID has transactions in, newest first.
func (s *LedgerService) FiscalYears(ctx context.Context, ownerID string) ([]int, error) {
	return s.store.FiscalYears(ctx, ownerID)
}

// Invalidate drops every memoized summary of ownerID.
func (s *LedgerService) Invalidate(ownerID string) int {
	if s.cache == nil {
		return 0
	}
	s.mu.Lock()
	s.generations[ownerID]++
	n := s.cache.DeletePrefix(ownerPrefix(ownerID))
	s.mu.Unlock()

	metrics.LedgerCacheInvalidations.Add(float64(n))
	return n
}

func (s Summary) clone() Summary {
	s.Entries = append([]ledger.Entry(nil), s.Entries...)
	if s.Entries == nil {
		s.Entries = []ledger.Entry{}
	}
	return s
}
