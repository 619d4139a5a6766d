package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayoffQuoteFreshLoan(t *testing.T) {
	f := newFakeStore()
	firstDue := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	loan := seedActiveLoan(f, 100000, 4000, 2, firstDue)
	svc := newTestService(f)

	quote, err := svc.GetPayoffQuote(context.Background(), loan.ID, firstDue)
	require.NoError(t, err)
	assert.EqualValues(t, 104000, quote.TotalDue)
	assert.EqualValues(t, 0, quote.TotalPaid)
	assert.EqualValues(t, 104000, quote.RemainingBalance)
}

func TestPayoffQuoteTracksPayments(t *testing.T) {
	f := newFakeStore()
	firstDue := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	loan := seedActiveLoan(f, 100000, 4000, 2, firstDue)
	svc := newTestService(f)
	ctx := context.Background()

	_, err := svc.RecordPayment(ctx, asLender, loan.ID, 52000, "bank_transfer", firstDue)
	require.NoError(t, err)

	quote, err := svc.GetPayoffQuote(ctx, loan.ID, firstDue)
	require.NoError(t, err)
	assert.EqualValues(t, 52000, quote.TotalPaid)
	assert.EqualValues(t, 52000, quote.RemainingBalance)
}

func TestPayoffQuoteThenPaySettlesExactly(t *testing.T) {
	f := newFakeStore()
	firstDue := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	loan := seedActiveLoan(f, 100000, 4000, 2, firstDue)
	svc := newTestService(f)
	ctx := context.Background()

	asOf := firstDue.AddDate(0, 0, 10)
	_, err := svc.CalculateLateFees(ctx, asLender, loan.ID, asOf)
	require.NoError(t, err)

	quote, err := svc.GetPayoffQuote(ctx, loan.ID, asOf)
	require.NoError(t, err)

	// Paying the quoted figure settles schedules and fee with nothing left.
	res, err := svc.RecordPayment(ctx, asLender, loan.ID, quote.RemainingBalance, "bank_transfer", asOf)
	require.NoError(t, err)
	assert.True(t, res.LoanCompleted)
	assert.EqualValues(t, 0, res.OverpaymentMinor)

	after, err := svc.GetPayoffQuote(ctx, loan.ID, asOf)
	require.NoError(t, err)
	assert.EqualValues(t, 0, after.RemainingBalance)
}

func TestPayoffQuoteUnknownLoan(t *testing.T) {
	svc := newTestService(newFakeStore())
	_, err := svc.GetPayoffQuote(context.Background(), 404, time.Now())
	assert.Error(t, err)
}
