package models

import (
	donationModels "fundly/internal/donation/models"
	id "fundly/pkg/domain"
)

// AmountInput is the amount step submission. Raw is free text; when empty,
// Preset carries the value of a preset button.
type AmountInput struct {
	Raw       string
	Preset    int64
	Anonymous bool
}

// Attachment is an uploaded bank transfer receipt.
type Attachment struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ThankYou is the terminal, informational result of a finalized draft.
type ThankYou struct {
	DonationID id.DonationID
	ProjectID  id.ProjectID
	Status     donationModels.DonationStatus
	Method     donationModels.PaymentMethod
	Amount     int64
	Reference  string
}

// MethodResult is the outcome of choosing a payment method: either the
// draft moved on to the receipt step, or a card payment finalized it.
type MethodResult struct {
	Draft    *Draft
	ThankYou *ThankYou
}
