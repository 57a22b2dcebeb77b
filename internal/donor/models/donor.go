package models

import (
	"strings"
	"time"

	id "fundly/pkg/domain"
	dErrors "fundly/pkg/domain-errors"
)

// ContactInfo is the identity collected by the donation wizard.
type ContactInfo struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	CountryCode string `json:"country_code"`
}

// NormalizedEmail is the resolution key form of Email.
func (c ContactInfo) NormalizedEmail() string {
	return NormalizeEmail(c.Email)
}

// NormalizedPhone is the resolution key form of Phone, country code first.
func (c ContactInfo) NormalizedPhone() string {
	return NormalizePhone(c.CountryCode, c.Phone)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone keeps only digits and prepends the country code digits.
func NormalizePhone(countryCode, phone string) string {
	return digits(countryCode) + digits(phone)
}

func digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Totals is the aggregate derived from a donor's donations.
type Totals struct {
	TotalDonated  int64
	DonationCount int
}

// Donor is a person who has made at least one non-anonymous donation.
//
// Invariants:
//   - Email and Phone are stored normalized
//   - totalDonated is the sum of the donor's verified donation amounts
//   - donationCount counts the donor's donations that have not failed
//   - MemberSince is set once on creation
type Donor struct {
	ID          id.DonorID
	Name        string
	Email       string
	Phone       string
	CountryCode string
	MemberSince time.Time

	totalDonated  int64
	donationCount int
}

func NewDonor(donorID id.DonorID, info ContactInfo, now time.Time) (*Donor, error) {
	name := strings.TrimSpace(info.Name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "donor name cannot be empty")
	}
	email := info.NormalizedEmail()
	if email == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "donor email cannot be empty")
	}
	return &Donor{
		ID:          donorID,
		Name:        name,
		Email:       email,
		Phone:       info.NormalizedPhone(),
		CountryCode: strings.TrimSpace(info.CountryCode),
		MemberSince: now,
	}, nil
}

// RestoreDonor rehydrates a stored donor including its derived totals.
// Only stores should call it.
func RestoreDonor(d Donor, totals Totals) *Donor {
	d.totalDonated = totals.TotalDonated
	d.donationCount = totals.DonationCount
	return &d
}

func (d *Donor) TotalDonated() int64 { return d.totalDonated }
func (d *Donor) DonationCount() int  { return d.donationCount }

func (d *Donor) Totals() Totals {
	return Totals{TotalDonated: d.totalDonated, DonationCount: d.donationCount}
}

// ApplyTotals stores a recomputed aggregate.
func (d *Donor) ApplyTotals(t Totals) {
	d.totalDonated = t.TotalDonated
	d.donationCount = t.DonationCount
}

// Matches reports whether the contact details resolve to this donor.
func (d *Donor) Matches(info ContactInfo) bool {
	if email := info.NormalizedEmail(); email != "" && email == d.Email {
		return true
	}
	phone := info.NormalizedPhone()
	return phone != "" && phone == d.Phone
}
