package profile

import (
	"github.com/contextawareid/identity-core/internal/identity"
)

// View contexts a caller can request on a profile read. Each maps to the
// role whose grants should be evaluated instead of the viewer's own.
const (
	ContextClub    = "club"
	ContextMedia   = "media"
	ContextFantasy = "fantasy"
)

// contextRoles maps view contexts to the role they impersonate for
// visibility purposes only. Unknown contexts are ignored.
var contextRoles = map[string]identity.Role{
	ContextClub:    identity.RoleCoach,
	ContextMedia:   identity.RoleJournalist,
	ContextFantasy: identity.RoleDeveloper,
}

// EffectiveRole returns the role whose grants apply to a read: the context
// override when recognised, otherwise the viewer's own role.
func EffectiveRole(viewer identity.Role, viewContext string) identity.Role {
	if r, ok := contextRoles[viewContext]; ok {
		return r
	}
	return viewer
}

// Resolve computes the visible view of a profile for a viewer.
//
// It is a pure function of its inputs: no store access, no mutation.
// Rules, in order:
//   - The owner always sees every field, whatever the context says.
//   - Otherwise a field appears only if a grant exposes it to the
//     effective role. Denied fields are omitted entirely, not nulled,
//     so a response does not reveal which hidden fields exist.
//
// A granted field whose value was never set appears with a nil value.
func Resolve(viewerID string, viewerRole identity.Role, p *PlayerProfile, grants []VisibilityGrant, viewContext string) map[string]any {
	view := make(map[string]any)

	if p.IdentityID == viewerID {
		for _, f := range Fields {
			view[f] = fieldValue(p, f)
		}
		return view
	}

	effective := EffectiveRole(viewerRole, viewContext)
	for _, g := range grants {
		if g.VisibleTo != effective || !ValidField(g.Field) {
			continue
		}
		view[g.Field] = fieldValue(p, g.Field)
	}

	return view
}

// fieldValue extracts one attribute by field name. Unset attributes
// yield nil, which serialises to JSON null.
func fieldValue(p *PlayerProfile, field string) any {
	var v *string
	switch field {
	case FieldFullName:
		v = p.FullName
	case FieldPreferredName:
		v = p.PreferredName
	case FieldJerseyName:
		v = p.JerseyName
	case FieldDateOfBirth:
		v = p.DateOfBirth
	case FieldPosition:
		v = p.Position
	}
	if v == nil {
		return nil
	}
	return *v
}
