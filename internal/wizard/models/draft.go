package models

import (
	"fmt"
	"time"

	donorModels "fundly/internal/donor/models"
	id "fundly/pkg/domain"
	dErrors "fundly/pkg/domain-errors"
)

// StepName identifies a wizard step. Order follows declaration.
type StepName string

const (
	StepAmount       StepName = "amount"
	StepIdentity     StepName = "identity"
	StepVerification StepName = "verification"
	StepMethod       StepName = "method"
	StepReceipt      StepName = "receipt"
)

var stepOrder = map[StepName]int{
	StepAmount:       1,
	StepIdentity:     2,
	StepVerification: 3,
	StepMethod:       4,
	StepReceipt:      5,
}

func ParseStepName(s string) (StepName, bool) {
	name := StepName(s)
	_, ok := stepOrder[name]
	return name, ok
}

func (n StepName) Before(other StepName) bool {
	return stepOrder[n] < stepOrder[other]
}

func (n StepName) String() string { return string(n) }

// Step is the state of a draft. Each variant carries only the fields that
// are valid at that point, so for example a verified draft without donor
// details cannot be built.
type Step interface {
	Name() StepName
	step()
}

// Pledge is the validated output of the amount step.
type Pledge struct {
	Amount    int64
	Anonymous bool
}

// AmountStep is the entry step. Prefill carries an earlier pledge after the
// donor went back.
type AmountStep struct {
	Prefill *Pledge
}

// IdentityStep collects contact details. Prefill comes from the signed-in
// user or from details entered before going back.
type IdentityStep struct {
	Pledge  Pledge
	Prefill *donorModels.ContactInfo
}

// VerificationStep waits for the code sent to the donor.
type VerificationStep struct {
	Pledge Pledge
	Donor  donorModels.ContactInfo
}

// MethodStep is reached only once verification passed.
type MethodStep struct {
	Pledge Pledge
	Donor  donorModels.ContactInfo
}

// ReceiptStep is the bank transfer branch; Reference is assigned on entry.
type ReceiptStep struct {
	Pledge    Pledge
	Donor     donorModels.ContactInfo
	Reference string
}

func (AmountStep) Name() StepName       { return StepAmount }
func (IdentityStep) Name() StepName     { return StepIdentity }
func (VerificationStep) Name() StepName { return StepVerification }
func (MethodStep) Name() StepName       { return StepMethod }
func (ReceiptStep) Name() StepName      { return StepReceipt }

func (AmountStep) step()       {}
func (IdentityStep) step()     {}
func (VerificationStep) step() {}
func (MethodStep) step()       {}
func (ReceiptStep) step()      {}

// Owner is who may act on a draft: the signed-in user, the browser session
// that started it, or both once the visitor signed in mid-wizard.
type Owner struct {
	UserID  string
	Session string
}

func (o Owner) IsZero() bool { return o.UserID == "" && o.Session == "" }

// Allows reports whether a caller with the given identity owns the draft.
func (o Owner) Allows(userID, session string) bool {
	if o.UserID != "" && userID == o.UserID {
		return true
	}
	return o.Session != "" && session == o.Session
}

// Draft is one in-flight donation attempt.
type Draft struct {
	ID        id.DraftID
	ProjectID id.ProjectID
	Owner     Owner
	Step      Step
	// ResendAvailableAt is when another verification code may be sent. It
	// belongs to the draft, not the step, so going back keeps it.
	ResendAvailableAt time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func NewDraft(draftID id.DraftID, projectID id.ProjectID, owner Owner, now time.Time) (*Draft, error) {
	if projectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "draft requires a project")
	}
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "draft requires an owner")
	}
	return &Draft{
		ID:        draftID,
		ProjectID: projectID,
		Owner:     owner,
		Step:      AmountStep{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Clone returns a copy the caller can mutate without touching d.
func (d *Draft) Clone() *Draft {
	c := *d
	return &c
}

func (d *Draft) StepName() StepName { return d.Step.Name() }

// Pledge returns the committed pledge once the amount step has passed.
func (d *Draft) Pledge() (Pledge, bool) {
	switch s := d.Step.(type) {
	case IdentityStep:
		return s.Pledge, true
	case VerificationStep:
		return s.Pledge, true
	case MethodStep:
		return s.Pledge, true
	case ReceiptStep:
		return s.Pledge, true
	}
	return Pledge{}, false
}

// Donor returns the contact details once the identity step has passed.
func (d *Draft) Donor() (donorModels.ContactInfo, bool) {
	switch s := d.Step.(type) {
	case VerificationStep:
		return s.Donor, true
	case MethodStep:
		return s.Donor, true
	case ReceiptStep:
		return s.Donor, true
	}
	return donorModels.ContactInfo{}, false
}

// VerificationPassed is true from the method step on.
func (d *Draft) VerificationPassed() bool {
	switch d.Step.(type) {
	case MethodStep, ReceiptStep:
		return true
	}
	return false
}

func stateError(d *Draft, want StepName) error {
	return dErrors.New(dErrors.CodeInvalidState,
		fmt.Sprintf("draft %s is at step %s, not %s", d.ID, d.Step.Name(), want))
}

// Expect fails with an invalid state error unless the draft is at step.
func (d *Draft) Expect(step StepName) error {
	if d.Step.Name() != step {
		return stateError(d, step)
	}
	return nil
}

// SubmitAmount moves amount -> identity.
func (d *Draft) SubmitAmount(p Pledge, prefill *donorModels.ContactInfo, now time.Time) error {
	if _, ok := d.Step.(AmountStep); !ok {
		return stateError(d, StepAmount)
	}
	if p.Amount <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "pledge amount must be positive")
	}
	d.Step = IdentityStep{Pledge: p, Prefill: prefill}
	d.UpdatedAt = now
	return nil
}

// SubmitIdentity moves identity -> verification. resendAt is when the donor
// may ask for another code; a zero or earlier value keeps the running window.
func (d *Draft) SubmitIdentity(info donorModels.ContactInfo, resendAt, now time.Time) error {
	s, ok := d.Step.(IdentityStep)
	if !ok {
		return stateError(d, StepIdentity)
	}
	d.Step = VerificationStep{Pledge: s.Pledge, Donor: info}
	if resendAt.After(d.ResendAvailableAt) {
		d.ResendAvailableAt = resendAt
	}
	d.UpdatedAt = now
	return nil
}

// CodeCooldown is the time left before any new code may be sent, whatever
// the current step.
func (d *Draft) CodeCooldown(now time.Time) time.Duration {
	if remaining := d.ResendAvailableAt.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// ResendCooldown is CodeCooldown for an explicit resend, which only the
// verification step offers.
func (d *Draft) ResendCooldown(now time.Time) (time.Duration, error) {
	if _, ok := d.Step.(VerificationStep); !ok {
		return 0, stateError(d, StepVerification)
	}
	return d.CodeCooldown(now), nil
}

// RestartResendWindow records a newly issued code.
func (d *Draft) RestartResendWindow(resendAt, now time.Time) error {
	if _, ok := d.Step.(VerificationStep); !ok {
		return stateError(d, StepVerification)
	}
	d.ResendAvailableAt = resendAt
	d.UpdatedAt = now
	return nil
}

// PassVerification moves verification -> method.
func (d *Draft) PassVerification(now time.Time) error {
	s, ok := d.Step.(VerificationStep)
	if !ok {
		return stateError(d, StepVerification)
	}
	d.Step = MethodStep{Pledge: s.Pledge, Donor: s.Donor}
	d.UpdatedAt = now
	return nil
}

// RequireMethodStep checks the draft can take a payment method choice. The
// card branch leaves the draft untouched until finalization.
func (d *Draft) RequireMethodStep() (MethodStep, error) {
	s, ok := d.Step.(MethodStep)
	if !ok {
		return MethodStep{}, stateError(d, StepMethod)
	}
	return s, nil
}

// ChooseBankTransfer moves method -> receipt with a fresh reference.
func (d *Draft) ChooseBankTransfer(reference string, now time.Time) error {
	s, ok := d.Step.(MethodStep)
	if !ok {
		return stateError(d, StepMethod)
	}
	if reference == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "bank transfer reference cannot be empty")
	}
	d.Step = ReceiptStep{Pledge: s.Pledge, Donor: s.Donor, Reference: reference}
	d.UpdatedAt = now
	return nil
}

// RequireReceiptStep returns the bank transfer state awaiting a receipt.
func (d *Draft) RequireReceiptStep() (ReceiptStep, error) {
	s, ok := d.Step.(ReceiptStep)
	if !ok {
		return ReceiptStep{}, stateError(d, StepReceipt)
	}
	return s, nil
}

// GoBack returns to an earlier step. Fields of the target step survive as
// prefill; everything produced by later steps is dropped.
func (d *Draft) GoBack(target StepName, now time.Time) error {
	current := d.Step.Name()
	if _, ok := stepOrder[target]; !ok || !target.Before(current) {
		return dErrors.New(dErrors.CodeInvalidState,
			fmt.Sprintf("cannot go back from %s to %s", current, target))
	}
	pledge, _ := d.Pledge()
	donor, hasDonor := d.Donor()

	switch target {
	case StepAmount:
		d.Step = AmountStep{Prefill: &pledge}
	case StepIdentity:
		var prefill *donorModels.ContactInfo
		if hasDonor {
			prefill = &donor
		}
		d.Step = IdentityStep{Pledge: pledge, Prefill: prefill}
	case StepVerification:
		d.Step = VerificationStep{Pledge: pledge, Donor: donor}
	case StepMethod:
		d.Step = MethodStep{Pledge: pledge, Donor: donor}
	default:
		return dErrors.New(dErrors.CodeInvalidState, "cannot go back to "+target.String())
	}
	d.UpdatedAt = now
	return nil
}
