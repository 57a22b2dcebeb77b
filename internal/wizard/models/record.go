package models

import (
	"time"

	donorModels "fundly/internal/donor/models"
	id "fundly/pkg/domain"
	dErrors "fundly/pkg/domain-errors"
)

// Record is the flat storage form of a draft, discriminated by Step.
type Record struct {
	ID                string                   `json:"id"`
	ProjectID         string                   `json:"project_id"`
	OwnerUserID       string                   `json:"owner_user_id,omitempty"`
	OwnerSession      string                   `json:"owner_session,omitempty"`
	Step              StepName                 `json:"step"`
	Amount            int64                    `json:"amount,omitempty"`
	Anonymous         bool                     `json:"anonymous,omitempty"`
	Donor             *donorModels.ContactInfo `json:"donor,omitempty"`
	ResendAvailableAt *time.Time               `json:"resend_available_at,omitempty"`
	Reference         string                   `json:"reference,omitempty"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
}

func ToRecord(d *Draft) Record {
	r := Record{
		ID:           d.ID.String(),
		ProjectID:    d.ProjectID.String(),
		OwnerUserID:  d.Owner.UserID,
		OwnerSession: d.Owner.Session,
		Step:         d.Step.Name(),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if !d.ResendAvailableAt.IsZero() {
		at := d.ResendAvailableAt
		r.ResendAvailableAt = &at
	}
	setPledge := func(p Pledge) {
		r.Amount = p.Amount
		r.Anonymous = p.Anonymous
	}
	setDonor := func(info donorModels.ContactInfo) {
		c := info
		r.Donor = &c
	}
	switch s := d.Step.(type) {
	case AmountStep:
		if s.Prefill != nil {
			setPledge(*s.Prefill)
		}
	case IdentityStep:
		setPledge(s.Pledge)
		if s.Prefill != nil {
			setDonor(*s.Prefill)
		}
	case VerificationStep:
		setPledge(s.Pledge)
		setDonor(s.Donor)
	case MethodStep:
		setPledge(s.Pledge)
		setDonor(s.Donor)
	case ReceiptStep:
		setPledge(s.Pledge)
		setDonor(s.Donor)
		r.Reference = s.Reference
	}
	return r
}

// FromRecord rebuilds a draft and rejects field combinations that no
// sequence of transitions can produce.
func FromRecord(r Record) (*Draft, error) {
	draftID, err := id.ParseDraftID(r.ID)
	if err != nil {
		return nil, err
	}
	projectID, err := id.ParseProjectID(r.ProjectID)
	if err != nil {
		return nil, err
	}
	d := &Draft{
		ID:        draftID,
		ProjectID: projectID,
		Owner:     Owner{UserID: r.OwnerUserID, Session: r.OwnerSession},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.ResendAvailableAt != nil {
		d.ResendAvailableAt = *r.ResendAvailableAt
	}
	pledge := Pledge{Amount: r.Amount, Anonymous: r.Anonymous}
	hasPledge := r.Amount > 0
	corrupt := func(reason string) error {
		return dErrors.New(dErrors.CodeInvalidState, "stored draft "+r.ID+" is inconsistent: "+reason)
	}

	switch r.Step {
	case StepAmount:
		step := AmountStep{}
		if hasPledge {
			step.Prefill = &pledge
		}
		d.Step = step
	case StepIdentity:
		if !hasPledge {
			return nil, corrupt("identity step without amount")
		}
		d.Step = IdentityStep{Pledge: pledge, Prefill: r.Donor}
	case StepVerification:
		if !hasPledge || r.Donor == nil {
			return nil, corrupt("verification step without amount or donor")
		}
		d.Step = VerificationStep{Pledge: pledge, Donor: *r.Donor}
	case StepMethod:
		if !hasPledge || r.Donor == nil {
			return nil, corrupt("method step without amount or donor")
		}
		d.Step = MethodStep{Pledge: pledge, Donor: *r.Donor}
	case StepReceipt:
		if !hasPledge || r.Donor == nil || r.Reference == "" {
			return nil, corrupt("receipt step without amount, donor or reference")
		}
		d.Step = ReceiptStep{Pledge: pledge, Donor: *r.Donor, Reference: r.Reference}
	default:
		return nil, corrupt("unknown step " + string(r.Step))
	}
	return d, nil
}
