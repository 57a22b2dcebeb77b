package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	campaignModels "fundly/internal/campaign/models"
	id "fundly/pkg/domain"
	"fundly/pkg/platform/httputil"
	"fundly/pkg/requestcontext"
)

// ProjectService is the campaign ledger surface used over HTTP.
type ProjectService interface {
	CreateProject(ctx context.Context, req *campaignModels.CreateProjectRequest) (*campaignModels.Project, error)
	GetProject(ctx context.Context, projectID id.ProjectID) (*campaignModels.Project, error)
	ListProjects(ctx context.Context) ([]*campaignModels.Project, error)
	Stop(ctx context.Context, projectID id.ProjectID) (*campaignModels.Project, error)
	Resume(ctx context.Context, projectID id.ProjectID) (*campaignModels.Project, error)
	Finish(ctx context.Context, projectID id.ProjectID) (*campaignModels.Project, error)
	DeleteProject(ctx context.Context, projectID id.ProjectID) error
}

type ProjectHandler struct {
	projects ProjectService
	logger   *slog.Logger
}

func NewProjectHandler(projects ProjectService, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, logger: logger}
}

// Register mounts the public project reads.
func (h *ProjectHandler) Register(r chi.Router) {
	r.Get("/projects", h.HandleList)
	r.Get("/projects/{projectID}", h.HandleGet)
}

// RegisterAdmin mounts project authoring and lifecycle endpoints. The caller
// applies the admin guard.
func (h *ProjectHandler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/projects", h.HandleCreate)
	r.Post("/admin/projects/{projectID}/stop", h.transition(h.projects.Stop, "stop"))
	r.Post("/admin/projects/{projectID}/resume", h.transition(h.projects.Resume, "resume"))
	r.Post("/admin/projects/{projectID}/finish", h.transition(h.projects.Finish, "finish"))
	r.Delete("/admin/projects/{projectID}", h.HandleDelete)
}

func (h *ProjectHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projects, err := h.projects.ListProjects(ctx)
	if err != nil {
		h.fail(ctx, w, "list projects failed", err)
		return
	}
	now := requestcontext.Now(ctx)
	out := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, toProjectResponse(p, now))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"projects": out})
}

func (h *ProjectHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID, err := id.ParseProjectID(chi.URLParam(r, "projectID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.projects.GetProject(ctx, projectID)
	if err != nil {
		h.fail(ctx, w, "get project failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toProjectResponse(p, requestcontext.Now(ctx)))
}

func (h *ProjectHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req campaignModels.CreateProjectRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.projects.CreateProject(ctx, &req)
	if err != nil {
		h.fail(ctx, w, "create project failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toProjectResponse(p, requestcontext.Now(ctx)))
}

func (h *ProjectHandler) transition(apply func(context.Context, id.ProjectID) (*campaignModels.Project, error), action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		projectID, err := id.ParseProjectID(chi.URLParam(r, "projectID"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		p, err := apply(ctx, projectID)
		if err != nil {
			h.fail(ctx, w, "project "+action+" failed", err, "project_id", projectID.String())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, toProjectResponse(p, requestcontext.Now(ctx)))
	}
}

func (h *ProjectHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID, err := id.ParseProjectID(chi.URLParam(r, "projectID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.projects.DeleteProject(ctx, projectID); err != nil {
		h.fail(ctx, w, "delete project failed", err, "project_id", projectID.String())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectHandler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	logFailure(ctx, h.logger, msg, err, attrs...)
	httputil.WriteError(w, err)
}
