package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"fundly/internal/campaign/models"
	"fundly/internal/platform/metrics"
	id "fundly/pkg/domain"
	dErrors "fundly/pkg/domain-errors"
	"fundly/pkg/platform/keylock"
	"fundly/pkg/platform/sentinel"
	"fundly/pkg/requestcontext"
)

var tracer = otel.Tracer("fundly/internal/campaign")

// Store persists projects. FindByID and List never return deleted projects.
type Store interface {
	Create(ctx context.Context, project *models.Project) error
	FindByID(ctx context.Context, projectID id.ProjectID) (*models.Project, error)
	List(ctx context.Context) ([]*models.Project, error)
	Update(ctx context.Context, project *models.Project) error
	Delete(ctx context.Context, projectID id.ProjectID, deletedAt time.Time) error
	// Exclusive runs fn while no other writer, in this process or another
	// one sharing the store, can change the project.
	Exclusive(ctx context.Context, projectID id.ProjectID, fn func(ctx context.Context) error) error
}

// FundingSource derives a project's funding from its verified donations.
type FundingSource interface {
	ProjectFunding(ctx context.Context, projectID id.ProjectID) (models.Funding, error)
}

// Service is the campaign ledger. All writes to a project, including the
// lazy expiry evaluated on reads, run under that project's lock.
type Service struct {
	store   Store
	funding FundingSource
	locks   *keylock.Locker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLocker(l *keylock.Locker) Option {
	return func(s *Service) {
		s.locks = l
	}
}

func New(store Store, funding FundingSource, opts ...Option) *Service {
	s := &Service{store: store, funding: funding}
	for _, opt := range opts {
		opt(s)
	}
	if s.locks == nil {
		s.locks = keylock.New()
	}
	return s
}

// CreateProject authors a new active project.
func (s *Service) CreateProject(ctx context.Context, req *models.CreateProjectRequest) (*models.Project, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	if !req.EndDate.After(now) {
		return nil, dErrors.NewValidation("invalid project", map[string]string{
			"end_date": "end date must be in the future",
		})
	}

	project, err := models.NewProject(id.NewProjectID(), req.Title, req.GoalAmount, req.EndDate, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	if err := s.store.Create(ctx, project); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create project")
	}
	s.logAudit(ctx, "project_created",
		"project_id", project.ID.String(),
		"goal_amount", project.GoalAmount,
	)
	s.metrics.IncrementProjectsCreated()
	return project, nil
}

// GetProject returns a project after applying any due automatic transition.
func (s *Service) GetProject(ctx context.Context, projectID id.ProjectID) (*models.Project, error) {
	var project *models.Project
	err := s.exclusive(ctx, projectID, func(ctx context.Context) error {
		p, err := s.load(ctx, projectID)
		if err != nil {
			return err
		}
		if err := s.settle(ctx, p); err != nil {
			return err
		}
		project = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// ListProjects returns every project with lazy expiry applied.
func (s *Service) ListProjects(ctx context.Context) ([]*models.Project, error) {
	projects, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list projects")
	}
	out := make([]*models.Project, 0, len(projects))
	for _, p := range projects {
		if p.Status != models.ProjectStatusActive {
			out = append(out, p)
			continue
		}
		fresh, err := s.GetProject(ctx, p.ID)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, fresh)
	}
	return out, nil
}

// EnsureAcceptsPledges returns the project when it can be a pledge target.
func (s *Service) EnsureAcceptsPledges(ctx context.Context, projectID id.ProjectID) (*models.Project, error) {
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !project.AcceptsPledges() {
		return nil, dErrors.New(dErrors.CodeConflict, "project is "+project.Status.String()+" and does not accept pledges")
	}
	return project, nil
}

// Recompute re-derives the project's funding from its verified donations and
// applies the automatic status rules. A missing project is a no-op so that
// donations of a deleted project can still settle.
func (s *Service) Recompute(ctx context.Context, projectID id.ProjectID) error {
	ctx, span := tracer.Start(ctx, "campaign.Recompute")
	defer span.End()
	span.SetAttributes(attribute.String("project_id", projectID.String()))

	start := time.Now()
	defer s.metrics.ObserveRecompute(start)

	return s.exclusive(ctx, projectID, func(ctx context.Context) error {
		project, err := s.store.FindByID(ctx, projectID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				if s.logger != nil {
					s.logger.DebugContext(ctx, "recompute skipped for missing project", "project_id", projectID.String())
				}
				return nil
			}
			span.RecordError(err)
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load project")
		}
		funding, err := s.funding.ProjectFunding(ctx, projectID)
		if err != nil {
			span.RecordError(err)
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to aggregate project funding")
		}

		from, changed := project.ApplyFunding(funding, requestcontext.Now(ctx))
		if err := s.store.Update(ctx, project); err != nil {
			span.RecordError(err)
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save project funding")
		}
		if changed {
			s.recordTransition(ctx, project, from)
		}
		return nil
	})
}

func (s *Service) Stop(ctx context.Context, projectID id.ProjectID) (*models.Project, error) {
	return s.transition(ctx, projectID, (*models.Project).Stop)
}

func (s *Service) Resume(ctx context.Context, projectID id.ProjectID) (*models.Project, error) {
	return s.transition(ctx, projectID, (*models.Project).Resume)
}

func (s *Service) Finish(ctx context.Context, projectID id.ProjectID) (*models.Project, error) {
	return s.transition(ctx, projectID, (*models.Project).Finish)
}

// DeleteProject detaches a project from the catalogue. Its donations stay
// queryable and later recomputes against it are no-ops.
func (s *Service) DeleteProject(ctx context.Context, projectID id.ProjectID) error {
	return s.exclusive(ctx, projectID, func(ctx context.Context) error {
		err := s.store.Delete(ctx, projectID, requestcontext.Now(ctx))
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "project not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete project")
		}
		s.logAudit(ctx, "project_deleted", "project_id", projectID.String())
		return nil
	})
}

func (s *Service) transition(ctx context.Context, projectID id.ProjectID, apply func(*models.Project, time.Time) error) (*models.Project, error) {
	var project *models.Project
	err := s.exclusive(ctx, projectID, func(ctx context.Context) error {
		p, err := s.load(ctx, projectID)
		if err != nil {
			return err
		}
		if err := s.settle(ctx, p); err != nil {
			return err
		}
		from := p.Status
		if err := apply(p, requestcontext.Now(ctx)); err != nil {
			return dErrors.New(dErrors.CodeConflict, err.Error())
		}
		if err := s.store.Update(ctx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save project")
		}
		s.recordTransition(ctx, p, from)
		project = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// exclusive serializes fn with every other write to the project: the key
// lock orders writers in this process and the store orders them across
// processes.
func (s *Service) exclusive(ctx context.Context, projectID id.ProjectID, fn func(ctx context.Context) error) error {
	return s.locks.Do(ctx, projectID.String(), func(ctx context.Context) error {
		return s.store.Exclusive(ctx, projectID, fn)
	})
}

func (s *Service) load(ctx context.Context, projectID id.ProjectID) (*models.Project, error) {
	p, err := s.store.FindByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "project not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load project")
	}
	return p, nil
}

// settle persists an automatic transition that became due since the last write.
func (s *Service) settle(ctx context.Context, p *models.Project) error {
	from, changed := p.Evaluate(requestcontext.Now(ctx))
	if !changed {
		return nil
	}
	if err := s.store.Update(ctx, p); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save project status")
	}
	s.recordTransition(ctx, p, from)
	return nil
}

func (s *Service) recordTransition(ctx context.Context, p *models.Project, from models.ProjectStatus) {
	s.logAudit(ctx, "project_status_changed",
		"project_id", p.ID.String(),
		"from", from.String(),
		"to", p.Status.String(),
		"raised_amount", p.RaisedAmount(),
	)
	s.metrics.IncrementProjectTransition(from.String(), p.Status.String())
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if s.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}
