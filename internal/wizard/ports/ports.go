// Package ports declares the collaborators the donation wizard calls out to.
package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks PaymentGateway,Verifier,Notifier,ReceiptStore

import (
	"context"
	"time"

	campaignModels "fundly/internal/campaign/models"
	donationModels "fundly/internal/donation/models"
	donorModels "fundly/internal/donor/models"
	"fundly/internal/notify"
	"fundly/internal/wizard/models"
	id "fundly/pkg/domain"
)

// CardResult is the gateway's answer to a card payment attempt.
// TransactionID identifies the attempt for a later callback.
type CardResult struct {
	Outcome       donationModels.CardOutcome
	Reason        string
	TransactionID string
}

// PaymentGateway is the external card processor.
type PaymentGateway interface {
	InitiateCardPayment(ctx context.Context, amount int64, draftRef string) (CardResult, error)
}

// Verifier sends one-time codes to a donor and checks them.
type Verifier interface {
	IssueCode(ctx context.Context, draftRef string, recipient donorModels.ContactInfo) error
	CheckCode(ctx context.Context, draftRef string, code string) (bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, event notify.Event) error
}

// ReceiptStore keeps bank transfer receipts and returns a reference to the
// stored object.
type ReceiptStore interface {
	Put(ctx context.Context, key string, contentType string, body []byte) (string, error)
}

type ProjectLedger interface {
	EnsureAcceptsPledges(ctx context.Context, projectID id.ProjectID) (*campaignModels.Project, error)
}

type DonorDirectory interface {
	Resolve(ctx context.Context, info donorModels.ContactInfo) (*donorModels.Donor, error)
}

type Donations interface {
	Create(ctx context.Context, params donationModels.NewDonationParams) (*donationModels.Donation, error)
	CreateCard(ctx context.Context, params donationModels.NewDonationParams, outcome donationModels.CardOutcome, reason string) (*donationModels.Donation, error)
}

// DraftStore holds in-flight drafts. Get returns sentinel.ErrNotFound for
// missing or expired drafts.
type DraftStore interface {
	Save(ctx context.Context, draft *models.Draft, ttl time.Duration) error
	Get(ctx context.Context, draftID id.DraftID) (*models.Draft, error)
	Delete(ctx context.Context, draftID id.DraftID) error
}
