package httptransport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	campaignModels "fundly/internal/campaign/models"
	id "fundly/pkg/domain"
	dErrors "fundly/pkg/domain-errors"
	"fundly/pkg/testutil"
)

// stubProjects answers reads from a fixed set and records transitions.
type stubProjects struct {
	ProjectService
	projects map[id.ProjectID]*campaignModels.Project
	stopped  []id.ProjectID
}

func (s *stubProjects) GetProject(_ context.Context, projectID id.ProjectID) (*campaignModels.Project, error) {
	p, ok := s.projects[projectID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "project not found")
	}
	return p, nil
}

func (s *stubProjects) ListProjects(context.Context) ([]*campaignModels.Project, error) {
	out := make([]*campaignModels.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	return out, nil
}

func (s *stubProjects) Stop(_ context.Context, projectID id.ProjectID) (*campaignModels.Project, error) {
	p, ok := s.projects[projectID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "project not found")
	}
	if p.Status != campaignModels.ProjectStatusActive {
		return nil, dErrors.New(dErrors.CodeConflict, "project is not active")
	}
	s.stopped = append(s.stopped, projectID)
	p.Status = campaignModels.ProjectStatusStopped
	return p, nil
}

type ProjectHandlerSuite struct {
	suite.Suite
	projects *stubProjects
	router   chi.Router
	project  *campaignModels.Project
	now      time.Time
}

func TestProjectHandlerSuite(t *testing.T) {
	suite.Run(t, new(ProjectHandlerSuite))
}

func (s *ProjectHandlerSuite) SetupTest() {
	s.now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s.project = &campaignModels.Project{
		ID:         id.ProjectID(uuid.New()),
		Title:      "School roof",
		GoalAmount: 5000,
		EndDate:    s.now.Add(36 * time.Hour),
		Status:     campaignModels.ProjectStatusActive,
		CreatedAt:  s.now.Add(-48 * time.Hour),
	}
	s.projects = &stubProjects{projects: map[id.ProjectID]*campaignModels.Project{s.project.ID: s.project}}

	h := NewProjectHandler(s.projects, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.router = chi.NewRouter()
	h.Register(s.router)
	h.RegisterAdmin(s.router)
}

func (s *ProjectHandlerSuite) TestGetUsesRequestClock() {
	req := testutil.WithTime(testutil.NewRequest(s.T(), http.MethodGet, "/projects/"+s.project.ID.String()), s.now)
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	got := testutil.UnmarshalResponse[projectResponse](s.T(), rr)
	s.Equal(s.project.ID.String(), got.ID)
	s.Equal(2, got.DaysLeft)
	s.Equal("active", got.Status)
	s.Equal(int64(0), got.RaisedAmount)
}

func (s *ProjectHandlerSuite) TestGetErrors() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/projects/not-a-uuid"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/projects/"+uuid.NewString()))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
}

func (s *ProjectHandlerSuite) TestList() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/projects"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	got := testutil.UnmarshalResponse[struct {
		Projects []projectResponse `json:"projects"`
	}](s.T(), rr)
	s.Require().Len(got.Projects, 1)
	s.Equal("School roof", got.Projects[0].Title)
}

func (s *ProjectHandlerSuite) TestStopTransition() {
	path := "/admin/projects/" + s.project.ID.String() + "/stop"

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, path))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.Equal("stopped", testutil.UnmarshalResponse[projectResponse](s.T(), rr).Status)
	s.Equal([]id.ProjectID{s.project.ID}, s.projects.stopped)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, path))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, string(dErrors.CodeConflict))
}

func (s *ProjectHandlerSuite) TestCreateRejectsUnknownFields() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/projects", map[string]any{"title": "x", "colour": "red"})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
}
