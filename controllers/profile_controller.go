package controllers

import (
	"net/http"

	"l3v3l_server/errs"
	"l3v3l_server/middleware"
	"l3v3l_server/services"
	"l3v3l_server/utils"

	"github.com/gorilla/mux"
)

// ProfileController serves the masked contact block of a profile
type ProfileController struct {
	ProfileService *services.ProfileService
}

func NewProfileController(profileService *services.ProfileService) *ProfileController {
	return &ProfileController{ProfileService: profileService}
}

// GetContact handles GET /api/profiles/{username}/contact?viewer=
func (pc *ProfileController) GetContact(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		utils.WriteError(w, r, errs.New(errs.Unauthorized, "not authenticated"))
		return
	}
	viewer := r.URL.Query().Get("viewer")
	if viewer == "" {
		viewer = p.Username
	}
	if err := middleware.Authorize(r.Context(), viewer); err != nil {
		utils.WriteError(w, r, err)
		return
	}

	view, err := pc.ProfileService.ViewContact(r.Context(), mux.Vars(r)["username"], viewer, p.IsAdmin())
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, view)
}
