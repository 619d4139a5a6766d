package service

import (
	"context"
	"testing"

	"github.com/paylend/loan-service/internal/apperr"
	"github.com/paylend/loan-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitDisbursementProof(t *testing.T) {
	f := newFakeStore()
	loan := seedLoan(f, models.StatusPendingDisbursement, 100000, 4000, 2)
	svc := newTestService(f)
	ctx := context.Background()

	err := svc.SubmitDisbursementProof(ctx, asLender, loan.ID, 100000, "bank_transfer", "TRX-001", "proof://receipt.pdf", "")
	require.NoError(t, err)

	proof, err := svc.GetDisbursementProof(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DisbursementSubmitted, proof.State)
	assert.Equal(t, "TRX-001", proof.Reference, "reference decrypted on read")

	// The stored row carries ciphertext, not the raw reference.
	stored, _ := f.GetDisbursementProof(ctx, loan.ID)
	assert.NotEqual(t, "TRX-001", stored.Reference)
}

func TestSubmitDisbursementProofValidation(t *testing.T) {
	f := newFakeStore()
	loan := seedLoan(f, models.StatusPendingDisbursement, 100000, 4000, 2)
	svc := newTestService(f)
	ctx := context.Background()

	err := svc.SubmitDisbursementProof(ctx, asLender, loan.ID, 0, "bank_transfer", "", "proof://x", "")
	assert.Equal(t, apperr.ErrInvalidAmount, apperr.KindOf(err))

	err = svc.SubmitDisbursementProof(ctx, asLender, loan.ID, 100000, "bank_transfer", "", "", "")
	assert.Equal(t, apperr.ErrValidation, apperr.KindOf(err))

	err = svc.SubmitDisbursementProof(ctx, asBorrower, loan.ID, 100000, "bank_transfer", "", "proof://x", "")
	assert.Equal(t, apperr.ErrForbidden, apperr.KindOf(err))

	active := seedLoan(f, models.StatusActive, 100000, 4000, 2)
	err = svc.SubmitDisbursementProof(ctx, asLender, active.ID, 100000, "bank_transfer", "", "proof://x", "")
	assert.Equal(t, apperr.ErrInvalidStateTransition, apperr.KindOf(err))
}

func TestConfirmReceiptRequiresProof(t *testing.T) {
	f := newFakeStore()
	loan := seedLoan(f, models.StatusPendingDisbursement, 100000, 4000, 2)
	svc := newTestService(f)

	err := svc.ConfirmReceipt(context.Background(), asBorrower, loan.ID)
	assert.Equal(t, apperr.ErrPreconditionFailed, apperr.KindOf(err))
}

func TestConfirmReceiptActivatesAndSchedules(t *testing.T) {
	f := newFakeStore()
	loan := seedLoan(f, models.StatusPendingDisbursement, 100000, 4000, 2)
	svc := newTestService(f)
	ctx := context.Background()

	require.NoError(t, svc.SubmitDisbursementProof(ctx, asLender, loan.ID, 100000, "bank_transfer", "TRX-001", "proof://x", ""))
	require.NoError(t, svc.ConfirmReceipt(ctx, asBorrower, loan.ID))

	got, _ := svc.GetLoan(ctx, loan.ID)
	assert.Equal(t, models.StatusActive, got.Status)
	require.NotNil(t, got.DisbursedAt)

	schedules, err := svc.GetSchedule(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, schedules, 2)
	var total int64
	for _, s := range schedules {
		total += int64(s.AmountDue)
	}
	assert.EqualValues(t, 104000, total)

	// Confirming twice is rejected.
	err = svc.ConfirmReceipt(ctx, asBorrower, loan.ID)
	assert.Equal(t, apperr.ErrInvalidStateTransition, apperr.KindOf(err))
}

func TestConfirmReceiptOnlyBorrower(t *testing.T) {
	f := newFakeStore()
	loan := seedLoan(f, models.StatusPendingDisbursement, 100000, 4000, 2)
	svc := newTestService(f)
	ctx := context.Background()

	require.NoError(t, svc.SubmitDisbursementProof(ctx, asLender, loan.ID, 100000, "bank_transfer", "", "proof://x", ""))
	err := svc.ConfirmReceipt(ctx, asLender, loan.ID)
	assert.Equal(t, apperr.ErrForbidden, apperr.KindOf(err))
}

func TestDisputeBlocksConfirmUntilResubmission(t *testing.T) {
	f := newFakeStore()
	loan := seedLoan(f, models.StatusPendingDisbursement, 100000, 4000, 2)
	svc := newTestService(f)
	ctx := context.Background()

	require.NoError(t, svc.SubmitDisbursementProof(ctx, asLender, loan.ID, 100000, "bank_transfer", "", "proof://x", ""))

	err := svc.DisputeDisbursement(ctx, asBorrower, loan.ID, "")
	assert.Equal(t, apperr.ErrValidation, apperr.KindOf(err))

	require.NoError(t, svc.DisputeDisbursement(ctx, asBorrower, loan.ID, "nothing arrived"))
	proof, _ := svc.GetDisbursementProof(ctx, loan.ID)
	assert.Equal(t, models.DisbursementDisputed, proof.State)
	assert.Equal(t, "nothing arrived", proof.DisputeReason)

	// Confirmation is blocked while disputed; the loan stays put.
	err = svc.ConfirmReceipt(ctx, asBorrower, loan.ID)
	assert.Equal(t, apperr.ErrPreconditionFailed, apperr.KindOf(err))
	got, _ := svc.GetLoan(ctx, loan.ID)
	assert.Equal(t, models.StatusPendingDisbursement, got.Status)

	// Resubmission clears the dispute and reopens the path to active.
	require.NoError(t, svc.SubmitDisbursementProof(ctx, asLender, loan.ID, 100000, "bank_transfer", "TRX-002", "proof://y", "resent"))
	proof, _ = svc.GetDisbursementProof(ctx, loan.ID)
	assert.Equal(t, models.DisbursementSubmitted, proof.State)
	assert.Empty(t, proof.DisputeReason)

	require.NoError(t, svc.ConfirmReceipt(ctx, asBorrower, loan.ID))
	got, _ = svc.GetLoan(ctx, loan.ID)
	assert.Equal(t, models.StatusActive, got.Status)
}

func TestDisputeWithoutProof(t *testing.T) {
	f := newFakeStore()
	loan := seedLoan(f, models.StatusPendingDisbursement, 100000, 4000, 2)
	svc := newTestService(f)

	err := svc.DisputeDisbursement(context.Background(), asBorrower, loan.ID, "no funds")
	assert.Equal(t, apperr.ErrPreconditionFailed, apperr.KindOf(err))
}

func TestDisputeAfterConfirmation(t *testing.T) {
	f := newFakeStore()
	loan := seedLoan(f, models.StatusPendingDisbursement, 100000, 4000, 2)
	svc := newTestService(f)
	ctx := context.Background()

	require.NoError(t, svc.SubmitDisbursementProof(ctx, asLender, loan.ID, 100000, "bank_transfer", "", "proof://x", ""))
	require.NoError(t, svc.ConfirmReceipt(ctx, asBorrower, loan.ID))

	err := svc.DisputeDisbursement(ctx, asBorrower, loan.ID, "changed my mind")
	assert.Equal(t, apperr.ErrInvalidStateTransition, apperr.KindOf(err))
}

func TestGetDisbursementProofDefaultsToNoProof(t *testing.T) {
	f := newFakeStore()
	loan := seedLoan(f, models.StatusPendingDisbursement, 100000, 4000, 2)
	svc := newTestService(f)

	proof, err := svc.GetDisbursementProof(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DisbursementNoProof, proof.State)
}
