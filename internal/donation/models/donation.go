package models

import (
	"strings"
	"time"

	id "fundly/pkg/domain"
	dErrors "fundly/pkg/domain-errors"
)

// Donation is one pledge committed by the wizard. It is never deleted.
//
// Invariants:
//   - Amount is positive
//   - DonorID is set exactly when the donation is not anonymous
//   - bank transfers carry a Reference from creation on
//   - a bank transfer needs a ReceiptAttachment before it can be verified
//   - Status only moves pending -> verified or pending -> failed
type Donation struct {
	ID                id.DonationID
	ProjectID         id.ProjectID
	DonorID           *id.DonorID
	Amount            int64
	Method            PaymentMethod
	Status            DonationStatus
	Reference         string
	ReceiptAttachment string
	IsAnonymous       bool
	FailureReason     string
	Date              time.Time
	UpdatedAt         time.Time
}

// NewDonationParams is the committed content of a finalized draft.
type NewDonationParams struct {
	ProjectID         id.ProjectID
	DonorID           *id.DonorID
	Amount            int64
	Method            PaymentMethod
	Reference         string
	ReceiptAttachment string
	IsAnonymous       bool
}

// NewDonation creates a pending donation.
func NewDonation(donationID id.DonationID, p NewDonationParams, now time.Time) (*Donation, error) {
	if p.ProjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "donation requires a project")
	}
	if p.Amount <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "donation amount must be positive")
	}
	if !p.Method.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown payment method")
	}
	if p.IsAnonymous && p.DonorID != nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "anonymous donation cannot reference a donor")
	}
	if !p.IsAnonymous && (p.DonorID == nil || p.DonorID.IsNil()) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "donation requires a donor unless anonymous")
	}
	reference := strings.TrimSpace(p.Reference)
	if p.Method == MethodBankTransfer && reference == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "bank transfer requires a reference")
	}
	return &Donation{
		ID:                donationID,
		ProjectID:         p.ProjectID,
		DonorID:           p.DonorID,
		Amount:            p.Amount,
		Method:            p.Method,
		Status:            DonationStatusPending,
		Reference:         reference,
		ReceiptAttachment: p.ReceiptAttachment,
		IsAnonymous:       p.IsAnonymous,
		Date:              now,
		UpdatedAt:         now,
	}, nil
}

func (d *Donation) IsPending() bool  { return d.Status == DonationStatusPending }
func (d *Donation) IsVerified() bool { return d.Status == DonationStatusVerified }

// CanVerify checks the pending -> verified transition.
func (d *Donation) CanVerify() error {
	if !d.Status.CanTransitionTo(DonationStatusVerified) {
		return dErrors.New(dErrors.CodeInvariantViolation, "only pending donations can be verified")
	}
	if d.Method == MethodBankTransfer {
		if d.Reference == "" {
			return dErrors.New(dErrors.CodeInvariantViolation, "bank transfer reference missing")
		}
		if d.ReceiptAttachment == "" {
			return dErrors.New(dErrors.CodeInvariantViolation, "bank transfer receipt missing")
		}
	}
	return nil
}

func (d *Donation) Verify(now time.Time) error {
	if err := d.CanVerify(); err != nil {
		return err
	}
	d.Status = DonationStatusVerified
	d.FailureReason = ""
	d.UpdatedAt = now
	return nil
}

// CanFail checks the pending -> failed transition.
func (d *Donation) CanFail() error {
	if !d.Status.CanTransitionTo(DonationStatusFailed) {
		return dErrors.New(dErrors.CodeInvariantViolation, "only pending donations can fail")
	}
	return nil
}

func (d *Donation) Fail(reason string, now time.Time) error {
	if err := d.CanFail(); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unspecified"
	}
	d.Status = DonationStatusFailed
	d.FailureReason = reason
	d.UpdatedAt = now
	return nil
}

// CountsTowardFunding reports whether the amount is part of raisedAmount.
func (d *Donation) CountsTowardFunding() bool {
	return d.Status == DonationStatusVerified
}
