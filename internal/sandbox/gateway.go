// Package sandbox provides development stand-ins for the card processor and
// the verification code provider. They behave deterministically so the
// wizard can be driven end to end without external accounts.
package sandbox

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"

	donationModels "fundly/internal/donation/models"
	"fundly/internal/wizard/ports"
)

// Amounts whose last two digits match these trigger the non-success paths.
const (
	DeclinedSuffix  = 13
	CancelledSuffix = 66
	PendingSuffix   = 99
)

// Gateway answers card payments by amount: ...13 declines, ...66 cancels,
// ...99 is accepted for asynchronous settlement, everything else succeeds.
type Gateway struct {
	logger *slog.Logger
}

func NewGateway(logger *slog.Logger) *Gateway {
	return &Gateway{logger: logger}
}

func (g *Gateway) InitiateCardPayment(ctx context.Context, amount int64, draftRef string) (ports.CardResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.CardResult{}, err
	}
	result := ports.CardResult{TransactionID: "txn_" + ulid.Make().String()}
	switch amount % 100 {
	case DeclinedSuffix:
		result.Outcome = donationModels.CardOutcomeFailure
		result.Reason = "card declined"
	case CancelledSuffix:
		result.Outcome = donationModels.CardOutcomeCancelled
		result.Reason = "payment window closed by donor"
	case PendingSuffix:
		result.Outcome = donationModels.CardOutcomePending
	default:
		result.Outcome = donationModels.CardOutcomeSuccess
	}
	if g.logger != nil {
		g.logger.InfoContext(ctx, "sandbox card payment",
			"draft_ref", draftRef,
			"amount", amount,
			"outcome", string(result.Outcome),
			"transaction_id", result.TransactionID,
		)
	}
	return result, nil
}
