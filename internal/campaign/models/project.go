package models

import (
	"math"
	"strings"
	"time"

	id "fundly/pkg/domain"
	dErrors "fundly/pkg/domain-errors"
)

// Funding is the aggregate derived from a project's verified donations.
type Funding struct {
	RaisedAmount int64
	DonorsCount  int
}

// Project is the aggregate root for a fundraising campaign.
//
// Invariants:
//   - GoalAmount is positive
//   - raisedAmount equals the sum of verified donation amounts; it is only
//     ever written through ApplyFunding
//   - donorsCount counts distinct non-anonymous donors with a verified donation
//   - Status follows the transitions declared on ProjectStatus
//   - automatic transitions (funded, expired) only leave the active state
type Project struct {
	ID         id.ProjectID
	Title      string
	GoalAmount int64
	EndDate    time.Time
	Status     ProjectStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time

	raisedAmount int64
	donorsCount  int
}

// CreateProjectRequest carries admin authoring input.
type CreateProjectRequest struct {
	Title      string    `json:"title"`
	GoalAmount int64     `json:"goal_amount"`
	EndDate    time.Time `json:"end_date"`
}

func (r *CreateProjectRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
}

func (r *CreateProjectRequest) Validate() error {
	fields := map[string]string{}
	if r.Title == "" {
		fields["title"] = "title is required"
	} else if len(r.Title) > 200 {
		fields["title"] = "title must be 200 characters or less"
	}
	if r.GoalAmount <= 0 {
		fields["goal_amount"] = "goal amount must be greater than zero"
	}
	if r.EndDate.IsZero() {
		fields["end_date"] = "end date is required"
	}
	if len(fields) > 0 {
		return dErrors.NewValidation("invalid project", fields)
	}
	return nil
}

func NewProject(projectID id.ProjectID, title string, goal int64, endDate, now time.Time) (*Project, error) {
	if strings.TrimSpace(title) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "project title cannot be empty")
	}
	if goal <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "goal amount must be positive")
	}
	if endDate.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "end date is required")
	}
	return &Project{
		ID:         projectID,
		Title:      title,
		GoalAmount: goal,
		EndDate:    endDate,
		Status:     ProjectStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// RestoreProject rehydrates a stored project including its derived funding.
// Only stores should call it.
func RestoreProject(p Project, funding Funding) *Project {
	p.raisedAmount = funding.RaisedAmount
	p.donorsCount = funding.DonorsCount
	return &p
}

func (p *Project) RaisedAmount() int64 { return p.raisedAmount }
func (p *Project) DonorsCount() int    { return p.donorsCount }

func (p *Project) Funding() Funding {
	return Funding{RaisedAmount: p.raisedAmount, DonorsCount: p.donorsCount}
}

// PercentFunded is raised/goal as a whole percentage, rounded down. It may
// exceed 100 for overfunded campaigns.
func (p *Project) PercentFunded() int {
	if p.GoalAmount <= 0 {
		return 0
	}
	return int(p.raisedAmount * 100 / p.GoalAmount)
}

// DaysLeft is the number of started days until EndDate, floored at 0.
func (p *Project) DaysLeft(now time.Time) int {
	remaining := p.EndDate.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}

func (p *Project) AcceptsPledges() bool {
	return p.Status.AcceptsPledges()
}

// ApplyFunding stores a recomputed aggregate and then applies the automatic
// status rules. It returns the previous status and whether it changed.
func (p *Project) ApplyFunding(f Funding, now time.Time) (ProjectStatus, bool) {
	p.raisedAmount = f.RaisedAmount
	p.donorsCount = f.DonorsCount
	p.UpdatedAt = now
	return p.Evaluate(now)
}

// Evaluate applies the automatic transitions: an active project becomes
// funded once raised >= goal, or expired once no days are left while short
// of goal. It returns the previous status and whether it changed.
func (p *Project) Evaluate(now time.Time) (ProjectStatus, bool) {
	from := p.Status
	if from != ProjectStatusActive {
		return from, false
	}
	switch {
	case p.raisedAmount >= p.GoalAmount:
		p.Status = ProjectStatusFunded
	case p.DaysLeft(now) == 0:
		p.Status = ProjectStatusExpired
	default:
		return from, false
	}
	p.UpdatedAt = now
	return from, true
}

// CanStop checks the administrator stop transition.
func (p *Project) CanStop() error {
	if !p.Status.CanTransitionTo(ProjectStatusStopped) {
		return dErrors.New(dErrors.CodeInvariantViolation, "only active projects can be stopped")
	}
	return nil
}

func (p *Project) Stop(now time.Time) error {
	if err := p.CanStop(); err != nil {
		return err
	}
	p.Status = ProjectStatusStopped
	p.UpdatedAt = now
	return nil
}

// CanResume checks the administrator resume transition.
func (p *Project) CanResume() error {
	if !p.Status.CanTransitionTo(ProjectStatusActive) {
		return dErrors.New(dErrors.CodeInvariantViolation, "only stopped projects can be resumed")
	}
	return nil
}

// Resume reactivates a stopped project and re-applies the automatic rules,
// so a project that reached its goal or end date while stopped settles
// immediately.
func (p *Project) Resume(now time.Time) error {
	if err := p.CanResume(); err != nil {
		return err
	}
	p.Status = ProjectStatusActive
	p.UpdatedAt = now
	p.Evaluate(now)
	return nil
}

// CanFinish checks the administrator finish transition.
func (p *Project) CanFinish() error {
	if !p.Status.CanTransitionTo(ProjectStatusFinished) {
		return dErrors.New(dErrors.CodeInvariantViolation, "only active or funded projects can be finished")
	}
	return nil
}

func (p *Project) Finish(now time.Time) error {
	if err := p.CanFinish(); err != nil {
		return err
	}
	p.Status = ProjectStatusFinished
	p.UpdatedAt = now
	return nil
}
