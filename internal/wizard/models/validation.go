package models

import (
	"regexp"
	"strings"

	donorModels "fundly/internal/donor/models"
	dErrors "fundly/pkg/domain-errors"
)

const (
	CodeLength     = 6
	MinPhoneDigits = 9

	FieldName   = "name"
	FieldEmail  = "email"
	FieldPhone  = "phone"
	FieldCode   = "code"
	FieldMethod = "method"
	FieldFile   = "receipt"
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// NormalizeIdentity trims the free-text fields.
func NormalizeIdentity(info donorModels.ContactInfo) donorModels.ContactInfo {
	return donorModels.ContactInfo{
		Name:        strings.TrimSpace(info.Name),
		Email:       strings.TrimSpace(info.Email),
		Phone:       strings.TrimSpace(info.Phone),
		CountryCode: strings.TrimSpace(info.CountryCode),
	}
}

// ValidateIdentity checks every field and reports all failures together.
func ValidateIdentity(info donorModels.ContactInfo) error {
	fields := map[string]string{}
	if info.Name == "" {
		fields[FieldName] = "name is required"
	}
	switch {
	case info.Email == "":
		fields[FieldEmail] = "email is required"
	case !emailPattern.MatchString(info.Email):
		fields[FieldEmail] = "email is invalid"
	}
	switch {
	case info.Phone == "":
		fields[FieldPhone] = "phone is required"
	case !phoneCharsOnly(info.Phone) || !phoneCharsOnly(info.CountryCode):
		fields[FieldPhone] = "phone must contain digits only"
	case len(info.NormalizedPhone()) < MinPhoneDigits:
		fields[FieldPhone] = "phone number is incomplete"
	}
	if len(fields) > 0 {
		return dErrors.NewValidation("invalid donor details", fields)
	}
	return nil
}

// phoneCharsOnly allows digits plus the usual visual separators.
func phoneCharsOnly(s string) bool {
	for _, r := range s {
		switch r {
		case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', ' ', '-', '(', ')', '+', '.':
			continue
		}
		return false
	}
	return true
}

// ValidateCode checks the shape of a verification code before it is sent to
// the verifier.
func ValidateCode(code string) error {
	for _, r := range code {
		if r < '0' || r > '9' {
			return dErrors.NewValidation("invalid code", map[string]string{FieldCode: "code must contain digits only"})
		}
	}
	switch {
	case len(code) < CodeLength:
		return dErrors.NewValidation("invalid code", map[string]string{FieldCode: "incomplete code"})
	case len(code) > CodeLength:
		return dErrors.NewValidation("invalid code", map[string]string{FieldCode: "code must be 6 digits"})
	}
	return nil
}
