package models

// DonationStatus is the verification state of a donation.
type DonationStatus string

const (
	DonationStatusPending  DonationStatus = "pending"
	DonationStatusVerified DonationStatus = "verified"
	DonationStatusFailed   DonationStatus = "failed"
)

func ParseDonationStatus(s string) (DonationStatus, bool) {
	status := DonationStatus(s)
	return status, status.IsValid()
}

func (s DonationStatus) IsValid() bool {
	switch s {
	case DonationStatusPending, DonationStatusVerified, DonationStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s DonationStatus) IsTerminal() bool {
	return s == DonationStatusVerified || s == DonationStatusFailed
}

// CanTransitionTo allows pending -> verified and pending -> failed only.
func (s DonationStatus) CanTransitionTo(to DonationStatus) bool {
	return s == DonationStatusPending && to.IsTerminal()
}

func (s DonationStatus) String() string { return string(s) }

// PaymentMethod is how a donation was paid. Only card and bank_transfer are
// produced by the wizard; the rest are administrative categories.
type PaymentMethod string

const (
	MethodCard         PaymentMethod = "card"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodPayPal       PaymentMethod = "paypal"
	MethodCash         PaymentMethod = "cash"
	MethodOther        PaymentMethod = "other"
)

func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	m := PaymentMethod(s)
	return m, m.IsValid()
}

func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodCard, MethodBankTransfer, MethodPayPal, MethodCash, MethodOther:
		return true
	}
	return false
}

// IsWizardMethod reports whether a donor can pick this method in the wizard.
func (m PaymentMethod) IsWizardMethod() bool {
	return m == MethodCard || m == MethodBankTransfer
}

func (m PaymentMethod) String() string { return string(m) }

// CardOutcome is the payment gateway's answer for a card payment. Pending
// means the gateway accepted the request and settles through a callback.
type CardOutcome string

const (
	CardOutcomeSuccess   CardOutcome = "success"
	CardOutcomeFailure   CardOutcome = "failure"
	CardOutcomeCancelled CardOutcome = "cancelled"
	CardOutcomePending   CardOutcome = "pending"
)

func ParseCardOutcome(s string) (CardOutcome, bool) {
	o := CardOutcome(s)
	switch o {
	case CardOutcomeSuccess, CardOutcomeFailure, CardOutcomeCancelled, CardOutcomePending:
		return o, true
	}
	return o, false
}

// IsSettled reports whether the outcome is final.
func (o CardOutcome) IsSettled() bool {
	return o != CardOutcomePending
}

// ReviewDecision is an administrator's verdict on a bank transfer receipt.
type ReviewDecision string

const (
	DecisionVerified ReviewDecision = "verified"
	DecisionFailed   ReviewDecision = "failed"
)

func ParseReviewDecision(s string) (ReviewDecision, bool) {
	d := ReviewDecision(s)
	return d, d == DecisionVerified || d == DecisionFailed
}
