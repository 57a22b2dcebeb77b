package models

import (
	"testing"

	"github.com/stretchr/testify/assert"

	donorModels "fundly/internal/donor/models"
	dErrors "fundly/pkg/domain-errors"
)

func TestValidateIdentity(t *testing.T) {
	valid := donorModels.ContactInfo{Name: "Ana", Email: "ana@example.com", Phone: "600 123 456", CountryCode: "+34"}

	t.Run("accepts complete details", func(t *testing.T) {
		assert.NoError(t, ValidateIdentity(valid))
	})

	t.Run("reports every field at once", func(t *testing.T) {
		err := ValidateIdentity(donorModels.ContactInfo{Email: "nope", Phone: "12a"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		fields := dErrors.FieldsOf(err)
		assert.Equal(t, "name is required", fields[FieldName])
		assert.Equal(t, "email is invalid", fields[FieldEmail])
		assert.Equal(t, "phone must contain digits only", fields[FieldPhone])
	})

	t.Run("short phone is incomplete", func(t *testing.T) {
		info := valid
		info.Phone = "123"
		info.CountryCode = "1"
		fields := dErrors.FieldsOf(ValidateIdentity(info))
		assert.Equal(t, "phone number is incomplete", fields[FieldPhone])
	})

	t.Run("normalize trims before validating", func(t *testing.T) {
		info := NormalizeIdentity(donorModels.ContactInfo{Name: "  Ana ", Email: " ana@example.com ", Phone: " 600123456 ", CountryCode: "34"})
		assert.Equal(t, "Ana", info.Name)
		assert.NoError(t, ValidateIdentity(info))
	})
}

func TestValidateCode(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"123456", ""},
		{"12345", "incomplete code"},
		{"1234567", "code must be 6 digits"},
		{"12a456", "code must contain digits only"},
		{"", "incomplete code"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := ValidateCode(tt.code)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.want, dErrors.FieldsOf(err)[FieldCode])
		})
	}
}
