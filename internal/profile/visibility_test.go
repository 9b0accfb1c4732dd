package profile

import (
	"testing"

	"github.com/contextawareid/identity-core/internal/identity"
)

func sampleProfile() *PlayerProfile {
	full := "Jordan Example"
	jersey := "JORDY"
	return &PlayerProfile{
		ID:         "ply-aaaa0001",
		IdentityID: "usr-owner001",
		FullName:   &full,
		JerseyName: &jersey,
	}
}

func TestEffectiveRole(t *testing.T) {
	tests := []struct {
		name        string
		viewer      identity.Role
		viewContext string
		want        identity.Role
	}{
		{"no context keeps viewer role", identity.RolePlayer, "", identity.RolePlayer},
		{"club maps to Coach", identity.RolePlayer, ContextClub, identity.RoleCoach},
		{"media maps to Journalist", identity.RoleCoach, ContextMedia, identity.RoleJournalist},
		{"fantasy maps to Developer", identity.RoleCoach, ContextFantasy, identity.RoleDeveloper},
		{"unknown context ignored", identity.RoleJournalist, "scouting", identity.RoleJournalist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectiveRole(tt.viewer, tt.viewContext); got != tt.want {
				t.Errorf("EffectiveRole() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolve_OwnerSeesEverything(t *testing.T) {
	p := sampleProfile()
	// No grants at all, and a context that would otherwise restrict.
	view := Resolve("usr-owner001", identity.RolePlayer, p, nil, ContextMedia)

	if len(view) != len(Fields) {
		t.Fatalf("owner view has %d fields, want %d", len(view), len(Fields))
	}
	if view[FieldFullName] != "Jordan Example" {
		t.Errorf("fullName = %v, want Jordan Example", view[FieldFullName])
	}
	// Unset fields are present with null values for the owner.
	if v, ok := view[FieldPosition]; !ok || v != nil {
		t.Errorf("position = %v (present=%v), want present nil", v, ok)
	}
}

func TestResolve_GrantsFilterByRole(t *testing.T) {
	p := sampleProfile()
	grants := []VisibilityGrant{
		{Field: FieldJerseyName, VisibleTo: identity.RoleJournalist},
		{Field: FieldFullName, VisibleTo: identity.RoleCoach},
	}

	view := Resolve("usr-viewer01", identity.RoleJournalist, p, grants, "")

	if len(view) != 1 {
		t.Fatalf("view has %d fields, want 1", len(view))
	}
	if view[FieldJerseyName] != "JORDY" {
		t.Errorf("jerseyName = %v, want JORDY", view[FieldJerseyName])
	}
	// Denied fields are omitted, not nulled.
	if _, ok := view[FieldFullName]; ok {
		t.Error("fullName present in a Journalist view granted only to Coach")
	}
}

func TestResolve_ContextOverridesViewerRole(t *testing.T) {
	p := sampleProfile()
	grants := []VisibilityGrant{
		{Field: FieldFullName, VisibleTo: identity.RoleCoach},
	}

	// A Journalist reading in club context is evaluated as Coach.
	view := Resolve("usr-viewer01", identity.RoleJournalist, p, grants, ContextClub)
	if view[FieldFullName] != "Jordan Example" {
		t.Errorf("club-context view missing coach-granted field: %v", view)
	}

	// The same Journalist without the context sees nothing.
	view = Resolve("usr-viewer01", identity.RoleJournalist, p, grants, "")
	if len(view) != 0 {
		t.Errorf("bare Journalist view = %v, want empty", view)
	}
}

func TestResolve_NoGrantsMeansEmptyView(t *testing.T) {
	p := sampleProfile()

	view := Resolve("usr-viewer01", identity.RoleCoach, p, nil, "")
	if len(view) != 0 {
		t.Errorf("view = %v, want empty map", view)
	}
}

func TestResolve_GrantedUnsetFieldIsNull(t *testing.T) {
	p := sampleProfile()
	grants := []VisibilityGrant{
		{Field: FieldPosition, VisibleTo: identity.RoleCoach},
	}

	view := Resolve("usr-viewer01", identity.RoleCoach, p, grants, "")
	if v, ok := view[FieldPosition]; !ok || v != nil {
		t.Errorf("position = %v (present=%v), want present nil", v, ok)
	}
}

func TestResolve_IgnoresUnknownGrantField(t *testing.T) {
	p := sampleProfile()
	grants := []VisibilityGrant{
		{Field: "shoeSize", VisibleTo: identity.RoleCoach},
	}

	view := Resolve("usr-viewer01", identity.RoleCoach, p, grants, "")
	if len(view) != 0 {
		t.Errorf("view = %v, want empty map for unknown grant field", view)
	}
}
