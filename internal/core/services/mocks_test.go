package services_test

import (
	"context"
	"errors"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/adapters/memory"
	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	"github.com/SscSPs/recurring_journal_engine/internal/core/ports/gateways"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// --- Mock PostingService ---
type MockPostingService struct {
	mock.Mock
}

var _ gateways.PostingService = (*MockPostingService)(nil)

func (m *MockPostingService) Post(ctx context.Context, draft domain.JournalEntryDraft) (gateways.PostingReceipt, error) {
	args := m.Called(ctx, draft)
	return args.Get(0).(gateways.PostingReceipt), args.Error(1)
}

// --- Mock AccountLookup ---
type MockAccountLookup struct {
	mock.Mock
}

var _ gateways.AccountLookup = (*MockAccountLookup)(nil)

func (m *MockAccountLookup) FindAccountsByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error) {
	args := m.Called(ctx, accountIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.Account), args.Error(1)
}

// --- Mock RunNotifier ---
type MockRunNotifier struct {
	mock.Mock
}

var _ gateways.RunNotifier = (*MockRunNotifier)(nil)

func (m *MockRunNotifier) NotifyRunCompleted(ctx context.Context, def domain.RecurringJournalDefinition, result domain.RunResult) error {
	args := m.Called(ctx, def, result)
	return args.Error(0)
}

// --- Mock TaxEngine ---
type MockTaxEngine struct {
	mock.Mock
}

var _ gateways.TaxEngine = (*MockTaxEngine)(nil)

func (m *MockTaxEngine) ComputeTax(ctx context.Context, taxCode string, base decimal.Decimal, on time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, taxCode, base, on)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// --- Mock ExchangeRateProvider ---
type MockExchangeRateProvider struct {
	mock.Mock
}

var _ gateways.ExchangeRateProvider = (*MockExchangeRateProvider)(nil)

func (m *MockExchangeRateProvider) RateOn(ctx context.Context, from, to string, on time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, from, to, on)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// --- Mock HolidayCalendar ---
type MockHolidayCalendar struct {
	mock.Mock
}

var _ gateways.HolidayCalendar = (*MockHolidayCalendar)(nil)

func (m *MockHolidayCalendar) IsHoliday(ctx context.Context, date time.Time) (bool, error) {
	args := m.Called(ctx, date)
	return args.Bool(0), args.Error(1)
}

// --- Store whose outcome writes fail ---
// flakyOutcomeStore fails the next failures RecordOutcome calls.
type flakyOutcomeStore struct {
	*memory.Store
	failures int
	calls    int
}

func (f *flakyOutcomeStore) RecordOutcome(ctx context.Context, occ domain.Occurrence, state domain.ScheduleState) error {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset by peer")
	}
	return f.Store.RecordOutcome(ctx, occ, state)
}

func day(s string) time.Time {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func datePtr(s string) *time.Time {
	d := day(s)
	return &d
}

func intPtr(n int) *int {
	return &n
}

func fixedClock(t time.Time) gateways.Clock {
	return gateways.ClockFunc(func() time.Time { return t })
}

// balancedTemplate debits rent expense and credits cash by the same amount.
func balancedTemplate(debit, credit string) domain.EntryTemplate {
	return domain.EntryTemplate{
		Description:  "Office rent",
		CurrencyCode: "USD",
		Lines: []domain.TemplateLine{
			{LineNo: 1, AccountID: "acc-rent", Debit: decimal.RequireFromString(debit), Credit: decimal.Zero},
			{LineNo: 2, AccountID: "acc-cash", Debit: decimal.Zero, Credit: decimal.RequireFromString(credit)},
		},
	}
}

func monthlyDefinition(id, start string) domain.RecurringJournalDefinition {
	startDate := day(start)
	return domain.RecurringJournalDefinition{
		DefinitionID: id,
		WorkplaceID:  "wp-1",
		Name:         "Monthly rent",
		Frequency:    domain.Monthly,
		Interval:     1,
		StartDate:    startDate,
		EndType:      domain.EndNever,
		Status:       domain.StatusActive,
		NextRunDate:  &startDate,
		Template:     balancedTemplate("100.00", "100.00"),
	}
}

func workplaceAccounts(workplaceID string) map[string]domain.Account {
	return map[string]domain.Account{
		"acc-rent": {AccountID: "acc-rent", WorkplaceID: workplaceID, AccountType: domain.Expense, IsActive: true},
		"acc-cash": {AccountID: "acc-cash", WorkplaceID: workplaceID, AccountType: domain.Asset, IsActive: true},
	}
}
