package httptransport

import (
	"time"

	campaignModels "fundly/internal/campaign/models"
	donationModels "fundly/internal/donation/models"
	donorModels "fundly/internal/donor/models"
	wizardModels "fundly/internal/wizard/models"
)

type projectResponse struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	GoalAmount    int64     `json:"goal_amount"`
	RaisedAmount  int64     `json:"raised_amount"`
	DonorsCount   int       `json:"donors_count"`
	PercentFunded int       `json:"percent_funded"`
	DaysLeft      int       `json:"days_left"`
	Status        string    `json:"status"`
	EndDate       time.Time `json:"end_date"`
	CreatedAt     time.Time `json:"created_at"`
}

func toProjectResponse(p *campaignModels.Project, now time.Time) projectResponse {
	return projectResponse{
		ID:            p.ID.String(),
		Title:         p.Title,
		GoalAmount:    p.GoalAmount,
		RaisedAmount:  p.RaisedAmount(),
		DonorsCount:   p.DonorsCount(),
		PercentFunded: p.PercentFunded(),
		DaysLeft:      p.DaysLeft(now),
		Status:        p.Status.String(),
		EndDate:       p.EndDate,
		CreatedAt:     p.CreatedAt,
	}
}

type donationResponse struct {
	ID                string    `json:"id"`
	ProjectID         string    `json:"project_id"`
	DonorID           string    `json:"donor_id,omitempty"`
	Amount            int64     `json:"amount"`
	Method            string    `json:"method"`
	Status            string    `json:"status"`
	Reference         string    `json:"reference,omitempty"`
	ReceiptAttachment string    `json:"receipt_attachment,omitempty"`
	IsAnonymous       bool      `json:"is_anonymous"`
	FailureReason     string    `json:"failure_reason,omitempty"`
	Date              time.Time `json:"date"`
}

func toDonationResponse(d *donationModels.Donation) donationResponse {
	resp := donationResponse{
		ID:                d.ID.String(),
		ProjectID:         d.ProjectID.String(),
		Amount:            d.Amount,
		Method:            d.Method.String(),
		Status:            d.Status.String(),
		Reference:         d.Reference,
		ReceiptAttachment: d.ReceiptAttachment,
		IsAnonymous:       d.IsAnonymous,
		FailureReason:     d.FailureReason,
		Date:              d.Date,
	}
	if d.DonorID != nil {
		resp.DonorID = d.DonorID.String()
	}
	return resp
}

func toDonationList(donations []*donationModels.Donation) []donationResponse {
	out := make([]donationResponse, 0, len(donations))
	for _, d := range donations {
		out = append(out, toDonationResponse(d))
	}
	return out
}

// draftResponse is what a UI needs to render or resume the current step.
type draftResponse struct {
	ID                string                   `json:"id"`
	ProjectID         string                   `json:"project_id"`
	Step              string                   `json:"step"`
	Amount            int64                    `json:"amount,omitempty"`
	Anonymous         bool                     `json:"anonymous,omitempty"`
	Donor             *donorModels.ContactInfo `json:"donor,omitempty"`
	ResendAvailableAt *time.Time               `json:"resend_available_at,omitempty"`
	Reference         string                   `json:"reference,omitempty"`
	UpdatedAt         time.Time                `json:"updated_at"`
}

func toDraftResponse(d *wizardModels.Draft) draftResponse {
	rec := wizardModels.ToRecord(d)
	return draftResponse{
		ID:                rec.ID,
		ProjectID:         rec.ProjectID,
		Step:              rec.Step.String(),
		Amount:            rec.Amount,
		Anonymous:         rec.Anonymous,
		Donor:             rec.Donor,
		ResendAvailableAt: rec.ResendAvailableAt,
		Reference:         rec.Reference,
		UpdatedAt:         rec.UpdatedAt,
	}
}

type thankYouResponse struct {
	DonationID string `json:"donation_id"`
	ProjectID  string `json:"project_id"`
	Status     string `json:"status"`
	Method     string `json:"method"`
	Amount     int64  `json:"amount"`
	Reference  string `json:"reference,omitempty"`
}

func toThankYouResponse(t *wizardModels.ThankYou) thankYouResponse {
	return thankYouResponse{
		DonationID: t.DonationID.String(),
		ProjectID:  t.ProjectID.String(),
		Status:     t.Status.String(),
		Method:     t.Method.String(),
		Amount:     t.Amount,
		Reference:  t.Reference,
	}
}

type monthlyReportResponse struct {
	Months []donationModels.MonthlyTotal `json:"months"`
}
