package domain

import (
	"github.com/google/uuid"

	dErrors "fundly/pkg/domain-errors"
)

// Typed identifiers keep project, donor, donation, draft and user IDs from
// being passed where another kind is expected. Construct them from external
// input only through the Parse functions.
type (
	ProjectID  uuid.UUID
	DonorID    uuid.UUID
	DonationID uuid.UUID
	DraftID    uuid.UUID
	UserID     uuid.UUID
)

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, kind+" is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, kind+" cannot be nil")
	}
	return parsed, nil
}

func ParseProjectID(s string) (ProjectID, error) {
	u, err := parseUUID("project_id", s)
	return ProjectID(u), err
}

func ParseDonorID(s string) (DonorID, error) {
	u, err := parseUUID("donor_id", s)
	return DonorID(u), err
}

func ParseDonationID(s string) (DonationID, error) {
	u, err := parseUUID("donation_id", s)
	return DonationID(u), err
}

func ParseDraftID(s string) (DraftID, error) {
	u, err := parseUUID("draft_id", s)
	return DraftID(u), err
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user_id", s)
	return UserID(u), err
}

func NewProjectID() ProjectID   { return ProjectID(uuid.New()) }
func NewDonorID() DonorID       { return DonorID(uuid.New()) }
func NewDonationID() DonationID { return DonationID(uuid.New()) }
func NewDraftID() DraftID       { return DraftID(uuid.New()) }

func (id ProjectID) String() string  { return uuid.UUID(id).String() }
func (id DonorID) String() string    { return uuid.UUID(id).String() }
func (id DonationID) String() string { return uuid.UUID(id).String() }
func (id DraftID) String() string    { return uuid.UUID(id).String() }
func (id UserID) String() string     { return uuid.UUID(id).String() }

func (id ProjectID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id DonorID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id DonationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DraftID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// MarshalText lets typed IDs render as plain UUID strings in JSON.
func (id ProjectID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id DonorID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id DonationID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id DraftID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id UserID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }

func (id *ProjectID) UnmarshalText(b []byte) error  { return unmarshalID((*uuid.UUID)(id), b) }
func (id *DonorID) UnmarshalText(b []byte) error    { return unmarshalID((*uuid.UUID)(id), b) }
func (id *DonationID) UnmarshalText(b []byte) error { return unmarshalID((*uuid.UUID)(id), b) }
func (id *DraftID) UnmarshalText(b []byte) error    { return unmarshalID((*uuid.UUID)(id), b) }
func (id *UserID) UnmarshalText(b []byte) error     { return unmarshalID((*uuid.UUID)(id), b) }

func unmarshalID(dst *uuid.UUID, b []byte) error {
	if len(b) == 0 {
		*dst = uuid.Nil
		return nil
	}
	parsed, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*dst = parsed
	return nil
}
