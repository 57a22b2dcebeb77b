package httptransport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	donorModels "fundly/internal/donor/models"
	wizardModels "fundly/internal/wizard/models"
	id "fundly/pkg/domain"
	dErrors "fundly/pkg/domain-errors"
	"fundly/pkg/platform/httputil"
)

// DefaultMaxReceiptBytes bounds receipt uploads, multipart or base64 JSON,
// when no limit is configured.
const DefaultMaxReceiptBytes = 10 << 20

// WizardService drives a donation draft through its steps.
type WizardService interface {
	Begin(ctx context.Context, projectID id.ProjectID) (*wizardModels.Draft, error)
	Get(ctx context.Context, draftID id.DraftID) (*wizardModels.Draft, error)
	SubmitAmount(ctx context.Context, draftID id.DraftID, in wizardModels.AmountInput) (*wizardModels.Draft, error)
	SubmitIdentity(ctx context.Context, draftID id.DraftID, info donorModels.ContactInfo) (*wizardModels.Draft, error)
	SubmitCode(ctx context.Context, draftID id.DraftID, code string) (*wizardModels.Draft, error)
	ResendCode(ctx context.Context, draftID id.DraftID) (time.Duration, error)
	GoBack(ctx context.Context, draftID id.DraftID, target string) (*wizardModels.Draft, error)
	SelectMethod(ctx context.Context, draftID id.DraftID, method string) (*wizardModels.MethodResult, error)
	SubmitReceipt(ctx context.Context, draftID id.DraftID, att wizardModels.Attachment) (*wizardModels.ThankYou, error)
	Abandon(ctx context.Context, draftID id.DraftID) error
}

type WizardHandler struct {
	wizard          WizardService
	logger          *slog.Logger
	maxReceiptBytes int64
}

func NewWizardHandler(wizard WizardService, logger *slog.Logger, maxReceiptBytes int64) *WizardHandler {
	if maxReceiptBytes <= 0 {
		maxReceiptBytes = DefaultMaxReceiptBytes
	}
	return &WizardHandler{wizard: wizard, logger: logger, maxReceiptBytes: maxReceiptBytes}
}

func (h *WizardHandler) Register(r chi.Router) {
	r.Post("/pledges", h.HandleBegin)
	r.Route("/pledges/{draftID}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Delete("/", h.HandleAbandon)
		r.Post("/amount", h.HandleAmount)
		r.Post("/identity", h.HandleIdentity)
		r.Post("/verification", h.HandleVerification)
		r.Post("/verification/resend", h.HandleResend)
		r.Post("/back", h.HandleBack)
		r.Post("/method", h.HandleMethod)
		r.Post("/receipt", h.HandleReceipt)
	})
}

type beginRequest struct {
	ProjectID string `json:"project_id"`
}

type amountRequest struct {
	Amount    string `json:"amount"`
	Preset    int64  `json:"preset"`
	Anonymous bool   `json:"anonymous"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type backRequest struct {
	Step string `json:"step"`
}

type methodRequest struct {
	Method string `json:"method"`
}

type receiptRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

type resendResponse struct {
	RetryAfterSeconds int `json:"retry_after_seconds"`
}

// methodResponse carries either the next draft state or the thank-you.
type methodResponse struct {
	Draft    *draftResponse    `json:"draft,omitempty"`
	ThankYou *thankYouResponse `json:"thank_you,omitempty"`
}

func (h *WizardHandler) HandleBegin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req beginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	projectID, err := id.ParseProjectID(req.ProjectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := h.wizard.Begin(ctx, projectID)
	if err != nil {
		h.fail(ctx, w, "begin pledge failed", err, "project_id", req.ProjectID)
		return
	}
	w.Header().Set("Location", "/pledges/"+d.ID.String())
	httputil.WriteJSON(w, http.StatusCreated, toDraftResponse(d))
}

func (h *WizardHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	h.withDraftID(w, r, func(ctx context.Context, draftID id.DraftID) (any, error) {
		d, err := h.wizard.Get(ctx, draftID)
		if err != nil {
			return nil, err
		}
		return toDraftResponse(d), nil
	})
}

func (h *WizardHandler) HandleAbandon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	draftID, err := id.ParseDraftID(chi.URLParam(r, "draftID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.wizard.Abandon(ctx, draftID); err != nil {
		h.fail(ctx, w, "abandon pledge failed", err, "draft_id", draftID.String())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WizardHandler) HandleAmount(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.withDraftID(w, r, func(ctx context.Context, draftID id.DraftID) (any, error) {
		d, err := h.wizard.SubmitAmount(ctx, draftID, wizardModels.AmountInput{
			Raw:       req.Amount,
			Preset:    req.Preset,
			Anonymous: req.Anonymous,
		})
		if err != nil {
			return nil, err
		}
		return toDraftResponse(d), nil
	})
}

func (h *WizardHandler) HandleIdentity(w http.ResponseWriter, r *http.Request) {
	var req donorModels.ContactInfo
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.withDraftID(w, r, func(ctx context.Context, draftID id.DraftID) (any, error) {
		d, err := h.wizard.SubmitIdentity(ctx, draftID, req)
		if err != nil {
			return nil, err
		}
		return toDraftResponse(d), nil
	})
}

func (h *WizardHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.withDraftID(w, r, func(ctx context.Context, draftID id.DraftID) (any, error) {
		d, err := h.wizard.SubmitCode(ctx, draftID, req.Code)
		if err != nil {
			return nil, err
		}
		return toDraftResponse(d), nil
	})
}

func (h *WizardHandler) HandleResend(w http.ResponseWriter, r *http.Request) {
	h.withDraftID(w, r, func(ctx context.Context, draftID id.DraftID) (any, error) {
		cooldown, err := h.wizard.ResendCode(ctx, draftID)
		if err != nil {
			return nil, err
		}
		return resendResponse{RetryAfterSeconds: int(cooldown / time.Second)}, nil
	})
}

func (h *WizardHandler) HandleBack(w http.ResponseWriter, r *http.Request) {
	var req backRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.withDraftID(w, r, func(ctx context.Context, draftID id.DraftID) (any, error) {
		d, err := h.wizard.GoBack(ctx, draftID, req.Step)
		if err != nil {
			return nil, err
		}
		return toDraftResponse(d), nil
	})
}

func (h *WizardHandler) HandleMethod(w http.ResponseWriter, r *http.Request) {
	var req methodRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.withDraftID(w, r, func(ctx context.Context, draftID id.DraftID) (any, error) {
		result, err := h.wizard.SelectMethod(ctx, draftID, req.Method)
		if err != nil {
			return nil, err
		}
		var resp methodResponse
		if result.ThankYou != nil {
			ty := toThankYouResponse(result.ThankYou)
			resp.ThankYou = &ty
		}
		if result.Draft != nil {
			d := toDraftResponse(result.Draft)
			resp.Draft = &d
		}
		return resp, nil
	})
}

// HandleReceipt accepts the receipt either as a multipart "receipt" file or
// as JSON with base64 data.
func (h *WizardHandler) HandleReceipt(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxReceiptBytes {
		httputil.WriteError(w, h.receiptTooLarge())
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxReceiptBytes)
	att, err := readAttachment(r)
	if err != nil {
		if bodyTooLarge(err) {
			err = h.receiptTooLarge()
		}
		httputil.WriteError(w, err)
		return
	}
	h.withDraftID(w, r, func(ctx context.Context, draftID id.DraftID) (any, error) {
		ty, err := h.wizard.SubmitReceipt(ctx, draftID, att)
		if err != nil {
			return nil, err
		}
		return toThankYouResponse(ty), nil
	})
}

func (h *WizardHandler) receiptTooLarge() error {
	return dErrors.NewValidation("invalid receipt", map[string]string{
		"receipt": fmt.Sprintf("receipt must be at most %d bytes", h.maxReceiptBytes),
	})
}

// bodyTooLarge reports whether err came from an exhausted MaxBytesReader.
// The multipart reader does not always wrap it, hence the message check.
func bodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "http: request body too large")
}

func readAttachment(r *http.Request) (wizardModels.Attachment, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req receiptRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			return wizardModels.Attachment{}, err
		}
		return wizardModels.Attachment{Filename: req.Filename, ContentType: req.ContentType, Body: req.Data}, nil
	}
	file, header, err := r.FormFile("receipt")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return wizardModels.Attachment{}, dErrors.NewValidation("invalid receipt", map[string]string{
				"receipt": "receipt file is required",
			})
		}
		return wizardModels.Attachment{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid multipart body")
	}
	defer file.Close()
	body, err := io.ReadAll(file)
	if err != nil {
		return wizardModels.Attachment{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read receipt")
	}
	return wizardModels.Attachment{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (h *WizardHandler) withDraftID(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, draftID id.DraftID) (any, error)) {
	ctx := r.Context()
	draftID, err := id.ParseDraftID(chi.URLParam(r, "draftID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp, err := fn(ctx, draftID)
	if err != nil {
		op := strings.TrimPrefix(r.URL.Path, "/pledges/"+draftID.String())
		h.fail(ctx, w, "pledge step failed", err, "draft_id", draftID.String(), "op", op)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *WizardHandler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	logFailure(ctx, h.logger, msg, err, attrs...)
	if retry := dErrors.MetaOf(err)["retry_after"]; retry != "" {
		w.Header().Set("Retry-After", retry)
	}
	httputil.WriteError(w, err)
}
