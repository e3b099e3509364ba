package controllers

import (
	"net/http"

	"l3v3l_server/middleware"
	"l3v3l_server/models"
	"l3v3l_server/services"
	"l3v3l_server/utils"

	"github.com/gorilla/mux"
)

// ListController handles favorites, shortlist and exclusions
type ListController struct {
	ListService *services.ListService
}

func NewListController(listService *services.ListService) *ListController {
	return &ListController{ListService: listService}
}

// owner resolves {username} and {category} and checks the caller may act on them.
func owner(r *http.Request) (string, models.ListCategory, error) {
	vars := mux.Vars(r)
	username := vars["username"]
	if err := middleware.Authorize(r.Context(), username); err != nil {
		return "", "", err
	}
	return username, models.ListCategory(vars["category"]), nil
}

func (lc *ListController) List(w http.ResponseWriter, r *http.Request) {
	username, category, err := owner(r)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	entries, err := lc.ListService.List(r.Context(), username, category)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"category": category, "entries": entries})
}

type addEntryBody struct {
	Target string `json:"target"`
	Notes  string `json:"notes,omitempty"`
}

func (lc *ListController) Add(w http.ResponseWriter, r *http.Request) {
	username, category, err := owner(r)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	var body addEntryBody
	if err := decodeBody(r, &body); err != nil {
		utils.WriteError(w, r, err)
		return
	}
	entry, err := lc.ListService.Add(r.Context(), username, category, body.Target, body.Notes)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, entry)
}

func (lc *ListController) Remove(w http.ResponseWriter, r *http.Request) {
	username, category, err := owner(r)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	target := mux.Vars(r)["target"]
	if err := lc.ListService.Remove(r.Context(), username, category, target); err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"message": target + " removed from " + string(category)})
}

type reorderBody struct {
	Order []string `json:"order"`
}

func (lc *ListController) Reorder(w http.ResponseWriter, r *http.Request) {
	username, category, err := owner(r)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	var body reorderBody
	if err := decodeBody(r, &body); err != nil {
		utils.WriteError(w, r, err)
		return
	}
	entries, err := lc.ListService.Reorder(r.Context(), username, category, body.Order)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"category": category, "entries": entries})
}

func (lc *ListController) Move(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	if err := middleware.Authorize(r.Context(), username); err != nil {
		utils.WriteError(w, r, err)
		return
	}
	var body models.MoveListEntry
	if err := decodeBody(r, &body); err != nil {
		utils.WriteError(w, r, err)
		return
	}
	entry, err := lc.ListService.Move(r.Context(), username, body)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, entry)
}
