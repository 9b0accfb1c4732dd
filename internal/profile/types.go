package profile

import (
	"errors"
	"time"

	"github.com/contextawareid/identity-core/internal/identity"
)

// Profile field names as they appear in grants and API payloads.
const (
	FieldFullName      = "fullName"
	FieldPreferredName = "preferredName"
	FieldJerseyName    = "jerseyName"
	FieldDateOfBirth   = "dob"
	FieldPosition      = "position"
)

// Fields lists every profile attribute in canonical order.
var Fields = []string{
	FieldFullName,
	FieldPreferredName,
	FieldJerseyName,
	FieldDateOfBirth,
	FieldPosition,
}

// ValidField reports whether name is a known profile attribute.
func ValidField(name string) bool {
	for _, f := range Fields {
		if f == name {
			return true
		}
	}
	return false
}

// PlayerProfile holds a player's personal attributes. All attributes are
// optional; nil means never set. Date of birth stays free-form text.
type PlayerProfile struct {
	ID            string    `json:"id"`
	IdentityID    string    `json:"identity_id"`
	FullName      *string   `json:"fullName"`
	PreferredName *string   `json:"preferredName"`
	JerseyName    *string   `json:"jerseyName"`
	DateOfBirth   *string   `json:"dob"`
	Position      *string   `json:"position"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// VisibilityGrant exposes one profile field to one viewer role.
// Absence of a grant means the field is hidden from that role.
type VisibilityGrant struct {
	ProfileID string        `json:"-"`
	Field     string        `json:"field"`
	VisibleTo identity.Role `json:"visible_to"`
}

// Summary is the reduced listing shape for player selection.
type Summary struct {
	ID            string  `json:"id"`
	IdentityID    string  `json:"identity_id"`
	PreferredName *string `json:"preferredName"`
	JerseyName    *string `json:"jerseyName"`
}

// Sentinel errors.
var (
	// ErrNotFound is returned when the referenced profile does not exist.
	ErrNotFound = errors.New("profile not found")

	// ErrInvalidField is returned for a grant naming an unknown attribute.
	ErrInvalidField = errors.New("invalid profile field")
)
