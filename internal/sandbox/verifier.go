package sandbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	donorModels "fundly/internal/donor/models"
)

const DefaultDevCode = "123456"

var ErrNoCodeIssued = errors.New("no verification code issued for this draft")

// Verifier accepts one fixed development code for any draft that has been
// issued a code.
type Verifier struct {
	code   string
	logger *slog.Logger

	mu     sync.Mutex
	issued map[string]int
}

func NewVerifier(code string, logger *slog.Logger) *Verifier {
	if code == "" {
		code = DefaultDevCode
	}
	return &Verifier{code: code, logger: logger, issued: make(map[string]int)}
}

func (v *Verifier) IssueCode(ctx context.Context, draftRef string, recipient donorModels.ContactInfo) error {
	v.mu.Lock()
	v.issued[draftRef]++
	count := v.issued[draftRef]
	v.mu.Unlock()

	if v.logger != nil {
		v.logger.InfoContext(ctx, "sandbox verification code issued",
			"draft_ref", draftRef,
			"recipient", recipient.NormalizedEmail(),
			"code", v.code,
			"issued", count,
		)
	}
	return nil
}

func (v *Verifier) CheckCode(_ context.Context, draftRef, code string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.issued[draftRef] == 0 {
		return false, ErrNoCodeIssued
	}
	return code == v.code, nil
}

// Issued reports how many codes were sent for a draft.
func (v *Verifier) Issued(draftRef string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.issued[draftRef]
}
