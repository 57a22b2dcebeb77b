package models

import id "fundly/pkg/domain"

// MonthlyTotal is the verified amount received in one calendar month.
type MonthlyTotal struct {
	Month  string `json:"month"`
	Amount int64  `json:"amount"`
	Count  int    `json:"count"`
}

// Distribution counts donations per status and per method.
type Distribution struct {
	ByStatus map[DonationStatus]int `json:"by_status"`
	ByMethod map[PaymentMethod]int  `json:"by_method"`
}

// Filter narrows a donation listing. Zero fields match everything.
type Filter struct {
	ProjectID *id.ProjectID
	DonorID   *id.DonorID
	Status    DonationStatus
}

func (f Filter) Match(d *Donation) bool {
	if f.ProjectID != nil && d.ProjectID != *f.ProjectID {
		return false
	}
	if f.DonorID != nil && (d.DonorID == nil || *d.DonorID != *f.DonorID) {
		return false
	}
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	return true
}
