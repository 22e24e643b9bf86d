package memory

import (
	"context"
	"fmt"
	"sync"

	"kicho/internal/ledger"
	ports "kicho/internal/sheets"
)

// Export is one ledger written to the store.
type Export struct {
	OwnerID    string
	FiscalYear int
	Rows       [][]string
	Writes     int
}

// Store keeps the latest exported ledger per owner and fiscal year. It is
// used when no spreadsheet is configured and in tests.
type Store struct {
	mu      sync.Mutex
	exports map[string]*Export
}

var _ ports.LedgerWriter = (*Store)(nil)

func New() *Store {
	return &Store{exports: make(map[string]*Export)}
}

func key(ownerID string, fiscalYear int) string {
	return fmt.Sprintf("%s/%d", ownerID, fiscalYear)
}

// WriteLedger replaces the stored rows and returns a synthetic reference.
func (s *Store) WriteLedger(_ context.Context, ownerID string, fiscalYear int, entries []ledger.Entry, total ledger.Totals) (string, error) {
	rows := ports.Rows(entries, total)

	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(ownerID, fiscalYear)
	e, ok := s.exports[k]
	if !ok {
		e = &Export{OwnerID: ownerID, FiscalYear: fiscalYear}
		s.exports[k] = e
	}
	e.Rows = rows
	e.Writes++
	return "mem:" + k, nil
}

// Get returns a copy of the export for ownerID and fiscalYear.
func (s *Store) Get(ownerID string, fiscalYear int) (Export, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exports[key(ownerID, fiscalYear)]
	if !ok {
		return Export{}, false
	}
	out := *e
	out.Rows = make([][]string, len(e.Rows))
	for i, r := range e.Rows {
		out.Rows[i] = append([]string(nil), r...)
	}
	return out, true
}
