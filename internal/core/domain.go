package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"
)

const (
	Asset           AccountCategory = "ASSET"
	Liability       AccountCategory = "LIABILITY"
	Equity          AccountCategory = "EQUITY"
	Revenue         AccountCategory = "REVENUE"
	ExpenseCategory AccountCategory = "EXPENSE"
)

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCreditCard   PaymentMethod = "credit_card"
	PaymentEMoney       PaymentMethod = "e_money"
	PaymentOther        PaymentMethod = "other"
)

const (
	TaxStandard   TaxCategory = "taxable_10"
	TaxReduced    TaxCategory = "taxable_8"
	TaxExempt     TaxCategory = "tax_exempt"
	TaxNonTaxable TaxCategory = "non_taxable"
	TaxOutOfScope TaxCategory = "out_of_scope"
)

// Field limits enforced at the input boundary.
const (
	MaxDescriptionLen = 200
	MaxClientNameLen  = 100
	MaxMemoLen        = 500
	MaxAccountNameLen = 100
	MaxAccountCodeLen = 10
)

type (
	TransactionType string
	AccountCategory string
	PaymentMethod   string
	TaxCategory     string

	Date struct {
		time.Time
	}

	Account struct {
		ID       int64
		Code     string
		Name     string
		Category AccountCategory
	}

	Transaction struct {
		ID            string
		OwnerID       string
		Type          TransactionType
		Date          Date
		AccountID     int64
		Amount        Money
		PaymentMethod PaymentMethod
		TaxCategory   TaxCategory
		ClientName    string
		Description   string
		Memo          string
		FiscalYear    int
		FiscalPeriod  int
	}
)

var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidType        = errors.New("invalid transaction type")
	ErrInvalidCategory    = errors.New("invalid account category")
	ErrInvalidPayment     = errors.New("invalid payment method")
	ErrInvalidTaxCategory = errors.New("invalid tax category")
	ErrInvalidAccount     = errors.New("invalid account")
	ErrInvalidAccountCode = errors.New("invalid account code")
	ErrEmptyDescription   = errors.New("empty description")
	ErrEmptyAccountName   = errors.New("empty account name")
	ErrFieldTooLong       = errors.New("field too long")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a date in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(time.DateOnly)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (c AccountCategory) Valid() bool {
	switch c {
	case Asset, Liability, Equity, Revenue, ExpenseCategory:
		return true
	}
	return false
}

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCash, PaymentBankTransfer, PaymentCreditCard, PaymentEMoney, PaymentOther:
		return true
	}
	return false
}

func (c TaxCategory) Valid() bool {
	switch c {
	case TaxStandard, TaxReduced, TaxExempt, TaxNonTaxable, TaxOutOfScope:
		return true
	}
	return false
}

func (a Account) Validate() error {
	code := strings.TrimSpace(a.Code)
	if code == "" || len(code) > MaxAccountCodeLen {
		return ErrInvalidAccountCode
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return ErrInvalidAccountCode
		}
	}
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyAccountName
	}
	if utf8.RuneCountInString(a.Name) > MaxAccountNameLen {
		return fmt.Errorf("account name: %w (max %d characters)", ErrFieldTooLong, MaxAccountNameLen)
	}
	if !a.Category.Valid() {
		return ErrInvalidCategory
	}
	return nil
}

// Validate checks a transaction submitted by a user. It does not check that
// the account exists; storage enforces that.
func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if t.AccountID <= 0 {
		return ErrInvalidAccount
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.PaymentMethod.Valid() {
		return ErrInvalidPayment
	}
	if !t.TaxCategory.Valid() {
		return ErrInvalidTaxCategory
	}
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(t.Description) > MaxDescriptionLen {
		return fmt.Errorf("description: %w (max %d characters)", ErrFieldTooLong, MaxDescriptionLen)
	}
	if utf8.RuneCountInString(t.ClientName) > MaxClientNameLen {
		return fmt.Errorf("client name: %w (max %d characters)", ErrFieldTooLong, MaxClientNameLen)
	}
	if utf8.RuneCountInString(t.Memo) > MaxMemoLen {
		return fmt.Errorf("memo: %w (max %d characters)", ErrFieldTooLong, MaxMemoLen)
	}
	return nil
}

// IsValidationError reports whether err comes from input validation.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidDate, ErrInvalidAmount, ErrInvalidType, ErrInvalidCategory,
		ErrInvalidPayment, ErrInvalidTaxCategory, ErrInvalidAccount,
		ErrInvalidAccountCode, ErrEmptyDescription, ErrEmptyAccountName, ErrFieldTooLong,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
