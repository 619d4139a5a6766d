package service

import (
	"context"
	"testing"

	"github.com/paylend/loan-service/internal/apperr"
	"github.com/paylend/loan-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLoan(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)
	ctx := context.Background()

	loan, err := svc.CreateLoan(ctx, asLender, borrowerID, 100000, 400, 2, models.PaymentInstallments, "USD")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingOffer, loan.Status)
	assert.EqualValues(t, 4000, loan.InterestAmount)

	_, err = svc.CreateLoan(ctx, asBorrower, borrowerID, 100000, 400, 2, models.PaymentInstallments, "USD")
	assert.Equal(t, apperr.ErrForbidden, apperr.KindOf(err))
}

func TestOfferAcceptDecline(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)
	ctx := context.Background()

	loan := seedLoan(f, models.StatusPendingOffer, 100000, 4000, 2)
	require.NoError(t, svc.AcceptOffer(ctx, asBorrower, loan.ID))
	got, _ := svc.GetLoan(ctx, loan.ID)
	assert.Equal(t, models.StatusPendingSignatures, got.Status)

	declined := seedLoan(f, models.StatusPendingOffer, 50000, 0, 1)
	require.NoError(t, svc.DeclineOffer(ctx, asBorrower, declined.ID))
	got, _ = svc.GetLoan(ctx, declined.ID)
	assert.Equal(t, models.StatusDeclined, got.Status)

	// Only the borrower decides on an offer.
	third := seedLoan(f, models.StatusPendingOffer, 50000, 0, 1)
	err := svc.AcceptOffer(ctx, asLender, third.ID)
	assert.Equal(t, apperr.ErrForbidden, apperr.KindOf(err))
}

func TestSignAgreementAdvancesWhenBothSign(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)
	ctx := context.Background()
	loan := seedLoan(f, models.StatusPendingSignatures, 100000, 4000, 2)

	require.NoError(t, svc.SignAgreement(ctx, asLender, loan.ID))
	got, _ := svc.GetLoan(ctx, loan.ID)
	assert.Equal(t, models.StatusPendingSignatures, got.Status, "one signature is not enough")

	require.NoError(t, svc.SignAgreement(ctx, asBorrower, loan.ID))
	got, _ = svc.GetLoan(ctx, loan.ID)
	assert.Equal(t, models.StatusPendingDisbursement, got.Status)

	err := svc.SignAgreement(ctx, asStranger, loan.ID)
	assert.Equal(t, apperr.ErrForbidden, apperr.KindOf(err))
}

func TestCancelBeforeBorrowerSigns(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)
	ctx := context.Background()
	loan := seedLoan(f, models.StatusPendingSignatures, 100000, 4000, 2)

	// The lender having signed does not block the borrower's cancel.
	require.NoError(t, svc.SignAgreement(ctx, asLender, loan.ID))
	require.NoError(t, svc.CancelLoan(ctx, asBorrower, loan.ID))

	got, _ := svc.GetLoan(ctx, loan.ID)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func TestCancelBlockedOnceBorrowerSigned(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)
	ctx := context.Background()
	loan := seedLoan(f, models.StatusPendingSignatures, 100000, 4000, 2)

	require.NoError(t, svc.SignAgreement(ctx, asBorrower, loan.ID))
	err := svc.CancelLoan(ctx, asBorrower, loan.ID)
	assert.Equal(t, apperr.ErrForbidden, apperr.KindOf(err))

	got, _ := svc.GetLoan(ctx, loan.ID)
	assert.Equal(t, models.StatusPendingSignatures, got.Status)
}

func TestCancelPendingOffer(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)
	ctx := context.Background()
	loan := seedLoan(f, models.StatusPendingOffer, 100000, 4000, 2)

	require.NoError(t, svc.CancelLoan(ctx, asBorrower, loan.ID))
	got, _ := svc.GetLoan(ctx, loan.ID)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func TestCancelForbiddenForLender(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)
	loan := seedLoan(f, models.StatusPendingOffer, 100000, 4000, 2)

	err := svc.CancelLoan(context.Background(), asLender, loan.ID)
	assert.Equal(t, apperr.ErrForbidden, apperr.KindOf(err))
}

func TestWriteOff(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)
	ctx := context.Background()
	loan := seedLoan(f, models.StatusActive, 100000, 4000, 2)

	err := svc.WriteOffLoan(ctx, asBorrower, loan.ID)
	assert.Equal(t, apperr.ErrForbidden, apperr.KindOf(err))

	require.NoError(t, svc.WriteOffLoan(ctx, asLender, loan.ID))
	got, _ := svc.GetLoan(ctx, loan.ID)
	assert.Equal(t, models.StatusWrittenOff, got.Status)

	// Terminal; nothing moves it again.
	err = svc.WriteOffLoan(ctx, asLender, loan.ID)
	assert.Equal(t, apperr.ErrInvalidStateTransition, apperr.KindOf(err))
}

func TestIllegalTransitionsRejected(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)
	ctx := context.Background()

	// A declined loan cannot be accepted afterwards.
	loan := seedLoan(f, models.StatusDeclined, 100000, 4000, 2)
	err := svc.AcceptOffer(ctx, asBorrower, loan.ID)
	assert.Equal(t, apperr.ErrInvalidStateTransition, apperr.KindOf(err))

	// An active loan cannot be cancelled.
	active := seedLoan(f, models.StatusActive, 100000, 4000, 2)
	err = svc.CancelLoan(ctx, asBorrower, active.ID)
	assert.Equal(t, apperr.ErrInvalidStateTransition, apperr.KindOf(err))
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, transitionAllowed(models.StatusPendingOffer, models.StatusPendingSignatures))
	assert.True(t, transitionAllowed(models.StatusActive, models.StatusDefaulted))
	assert.False(t, transitionAllowed(models.StatusActive, models.StatusCancelled))
	assert.False(t, transitionAllowed(models.StatusCompleted, models.StatusActive))
	assert.False(t, transitionAllowed(models.StatusPendingDisbursement, models.StatusCompleted))
}
