package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/contextawareid/identity-core/internal/identity"
	"github.com/contextawareid/identity-core/internal/profile"
)

// handleListPlayers returns player summaries for selection. Players cannot
// browse each other; the listing is for the viewing roles.
// GET /api/player
func (s *Server) handleListPlayers(w http.ResponseWriter, r *http.Request) {
	if actorFrom(r).Role == identity.RolePlayer {
		writeForbidden(w, "players cannot list other players")
		return
	}

	summaries, err := s.profiles.List(r.Context())
	if err != nil {
		s.logger.Error("listing players", "error", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"players": summaries})
}

// handleGetOwnProfile returns the caller's own profile with its grants.
// GET /api/player/me
func (s *Server) handleGetOwnProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.profiles.GetByIdentity(r.Context(), actorFrom(r).ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	grants, err := s.profiles.Grants(r.Context(), p.ID)
	if err != nil {
		s.logger.Error("getting visibility grants", "error", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"profile":    p,
		"visibility": grantsByField(grants),
	})
}

type updateProfileRequest struct {
	FullName      *string             `json:"fullName"`
	PreferredName *string             `json:"preferredName"`
	JerseyName    *string             `json:"jerseyName"`
	DateOfBirth   *string             `json:"dob"`
	Position      *string             `json:"position"`
	Visibility    map[string][]string `json:"visibility"`
}

// handleUpdateOwnProfile replaces the caller's profile attributes and the
// complete visibility grant set. Omitted attributes are cleared; omitted
// fields in the visibility map become hidden from every role.
// PUT /api/player/me
func (s *Server) handleUpdateOwnProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	p, err := s.profiles.GetByIdentity(r.Context(), actorFrom(r).ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	p.FullName = req.FullName
	p.PreferredName = req.PreferredName
	p.JerseyName = req.JerseyName
	p.DateOfBirth = req.DateOfBirth
	p.Position = req.Position

	grants, err := grantsFromMap(p.ID, req.Visibility)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if err := s.profiles.Replace(r.Context(), p, grants); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"profile":    p,
		"visibility": grantsByField(grants),
	})
}

// handleGetPlayer returns the visible view of a profile for the caller.
// The optional context query parameter evaluates the read against another
// role's grants; owners always see everything.
// GET /api/player/{id}?context=club|media|fantasy
func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	p, err := s.profiles.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	grants, err := s.profiles.Grants(r.Context(), p.ID)
	if err != nil {
		s.logger.Error("getting visibility grants", "error", err)
		writeInternalError(w)
		return
	}

	viewer := actorFrom(r)
	view := profile.Resolve(viewer.ID, viewer.Role, p, grants, r.URL.Query().Get("context"))

	writeJSON(w, http.StatusOK, map[string]any{
		"id":     p.ID,
		"fields": view,
	})
}

// grantsFromMap converts the API's field-to-roles map into grant rows.
func grantsFromMap(profileID string, visibility map[string][]string) ([]profile.VisibilityGrant, error) {
	var grants []profile.VisibilityGrant
	for field, roles := range visibility {
		if !profile.ValidField(field) {
			return nil, profile.ErrInvalidField
		}
		for _, rs := range roles {
			role, err := identity.ParseRole(rs)
			if err != nil {
				return nil, err
			}
			grants = append(grants, profile.VisibilityGrant{
				ProfileID: profileID,
				Field:     field,
				VisibleTo: role,
			})
		}
	}
	return grants, nil
}

// grantsByField groups grant rows back into the field-to-roles map shape.
func grantsByField(grants []profile.VisibilityGrant) map[string][]identity.Role {
	m := make(map[string][]identity.Role)
	for _, g := range grants {
		m[g.Field] = append(m[g.Field], g.VisibleTo)
	}
	return m
}
