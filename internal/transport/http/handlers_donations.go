package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	donationModels "fundly/internal/donation/models"
	id "fundly/pkg/domain"
	dErrors "fundly/pkg/domain-errors"
	"fundly/pkg/platform/httputil"
)

// DonationService is the donation record store surface used over HTTP.
type DonationService interface {
	Review(ctx context.Context, donationID id.DonationID, decision donationModels.ReviewDecision, reason string) (*donationModels.Donation, error)
	ApplyCardOutcome(ctx context.Context, donationID id.DonationID, outcome donationModels.CardOutcome, reason string) (*donationModels.Donation, error)
	GetByReference(ctx context.Context, reference string) (*donationModels.Donation, error)
	ListByProject(ctx context.Context, projectID id.ProjectID) ([]*donationModels.Donation, error)
	ListByDonor(ctx context.Context, donorID id.DonorID) ([]*donationModels.Donation, error)
	MonthlyVerifiedTotals(ctx context.Context) ([]donationModels.MonthlyTotal, error)
	Distribution(ctx context.Context, projectID *id.ProjectID) (donationModels.Distribution, error)
}

type DonationHandler struct {
	donations DonationService
	logger    *slog.Logger
}

func NewDonationHandler(donations DonationService, logger *slog.Logger) *DonationHandler {
	return &DonationHandler{donations: donations, logger: logger}
}

// Register mounts the payment gateway callback.
func (h *DonationHandler) Register(r chi.Router) {
	r.Post("/payments/card/callback", h.HandleCardCallback)
}

// RegisterAdmin mounts receipt review and reporting endpoints.
func (h *DonationHandler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/donations/{donationID}/review", h.HandleReview)
	r.Get("/admin/projects/{projectID}/donations", h.HandleListByProject)
	r.Get("/admin/donors/{donorID}/donations", h.HandleListByDonor)
	r.Get("/admin/reports/monthly", h.HandleMonthlyReport)
	r.Get("/admin/reports/distribution", h.HandleDistributionReport)
}

type reviewRequest struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

func (h *DonationHandler) HandleReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	donationID, err := id.ParseDonationID(chi.URLParam(r, "donationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req reviewRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	decision, ok := donationModels.ParseReviewDecision(strings.TrimSpace(req.Decision))
	if !ok {
		httputil.WriteError(w, dErrors.NewValidation("invalid review", map[string]string{
			"decision": "decision must be verified or failed",
		}))
		return
	}
	d, err := h.donations.Review(ctx, donationID, decision, req.Reason)
	if err != nil {
		h.fail(ctx, w, "donation review failed", err, "donation_id", donationID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDonationResponse(d))
}

type cardCallbackRequest struct {
	Reference string `json:"reference"`
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason"`
}

// HandleCardCallback settles a pending card donation identified by the
// gateway's transaction reference.
func (h *DonationHandler) HandleCardCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req cardCallbackRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	fields := map[string]string{}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		fields["reference"] = "reference is required"
	}
	outcome, ok := donationModels.ParseCardOutcome(req.Outcome)
	if !ok || !outcome.IsSettled() {
		fields["outcome"] = "outcome must be success, failure or cancelled"
	}
	if len(fields) > 0 {
		httputil.WriteError(w, dErrors.NewValidation("invalid callback", fields))
		return
	}
	d, err := h.donations.GetByReference(ctx, reference)
	if err != nil {
		h.fail(ctx, w, "card callback lookup failed", err, "reference", reference)
		return
	}
	d, err = h.donations.ApplyCardOutcome(ctx, d.ID, outcome, req.Reason)
	if err != nil {
		h.fail(ctx, w, "card callback failed", err, "reference", reference)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDonationResponse(d))
}

func (h *DonationHandler) HandleListByProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID, err := id.ParseProjectID(chi.URLParam(r, "projectID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	donations, err := h.donations.ListByProject(ctx, projectID)
	if err != nil {
		h.fail(ctx, w, "list project donations failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"donations": toDonationList(donations)})
}

func (h *DonationHandler) HandleListByDonor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	donorID, err := id.ParseDonorID(chi.URLParam(r, "donorID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	donations, err := h.donations.ListByDonor(ctx, donorID)
	if err != nil {
		h.fail(ctx, w, "list donor donations failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"donations": toDonationList(donations)})
}

func (h *DonationHandler) HandleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	months, err := h.donations.MonthlyVerifiedTotals(ctx)
	if err != nil {
		h.fail(ctx, w, "monthly report failed", err)
		return
	}
	if months == nil {
		months = []donationModels.MonthlyTotal{}
	}
	httputil.WriteJSON(w, http.StatusOK, monthlyReportResponse{Months: months})
}

// HandleDistributionReport accepts an optional project_id query parameter.
func (h *DonationHandler) HandleDistributionReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var projectID *id.ProjectID
	if raw := r.URL.Query().Get("project_id"); raw != "" {
		parsed, err := id.ParseProjectID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		projectID = &parsed
	}
	dist, err := h.donations.Distribution(ctx, projectID)
	if err != nil {
		h.fail(ctx, w, "distribution report failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, dist)
}

func (h *DonationHandler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	logFailure(ctx, h.logger, msg, err, attrs...)
	httputil.WriteError(w, err)
}
