package controllers

import (
	"context"
	"net/http"

	"l3v3l_server/middleware"
	"l3v3l_server/models"
	"l3v3l_server/services"
	"l3v3l_server/utils"

	"github.com/gorilla/mux"
)

// PIIController handles contact-detail access requests and grants
type PIIController struct {
	PIIService *services.PIIService
}

func NewPIIController(piiService *services.PIIService) *PIIController {
	return &PIIController{PIIService: piiService}
}

// CreateRequest handles POST /api/pii-requests
func (pc *PIIController) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var body models.CreatePIIRequest
	if err := decodeBody(r, &body); err != nil {
		utils.WriteError(w, r, err)
		return
	}
	if err := middleware.Authorize(r.Context(), body.Requester); err != nil {
		utils.WriteError(w, r, err)
		return
	}

	req, err := pc.PIIService.CreateRequest(r.Context(), body)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "PII request created successfully",
		"request": req,
	})
}

func (pc *PIIController) ListIncoming(w http.ResponseWriter, r *http.Request) {
	pc.list(w, r, pc.PIIService.ListIncoming)
}

func (pc *PIIController) ListOutgoing(w http.ResponseWriter, r *http.Request) {
	pc.list(w, r, pc.PIIService.ListOutgoing)
}

func (pc *PIIController) list(w http.ResponseWriter, r *http.Request, fetch func(ctx context.Context, username string) ([]models.PIIRequest, error)) {
	username := mux.Vars(r)["username"]
	if err := middleware.Authorize(r.Context(), username); err != nil {
		utils.WriteError(w, r, err)
		return
	}
	requests, err := fetch(r.Context(), username)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"requests": requests})
}

// Approve handles PUT /api/pii-requests/{id}/approve?username=
func (pc *PIIController) Approve(w http.ResponseWriter, r *http.Request) {
	pc.resolve(w, r, pc.PIIService.Approve, "PII request approved")
}

// Reject handles PUT /api/pii-requests/{id}/reject?username=
func (pc *PIIController) Reject(w http.ResponseWriter, r *http.Request) {
	pc.resolve(w, r, pc.PIIService.Reject, "PII request rejected")
}

func (pc *PIIController) resolve(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id, actor string) (models.PIIRequest, error), msg string) {
	actor, err := requireParam(r, "username")
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	if err := middleware.Authorize(r.Context(), actor); err != nil {
		utils.WriteError(w, r, err)
		return
	}
	req, err := apply(r.Context(), mux.Vars(r)["id"], actor)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"message": msg, "request": req})
}

// Cancel handles DELETE /api/pii-requests/{id}?username=
func (pc *PIIController) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, err := requireParam(r, "username")
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	if err := middleware.Authorize(r.Context(), actor); err != nil {
		utils.WriteError(w, r, err)
		return
	}
	if err := pc.PIIService.Cancel(r.Context(), mux.Vars(r)["id"], actor); err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"message": "PII request cancelled"})
}

// CancelOutgoing handles DELETE /api/pii-requests/{username}/outgoing/{requestUsername}
func (pc *PIIController) CancelOutgoing(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	requester := vars["username"]
	if err := middleware.Authorize(r.Context(), requester); err != nil {
		utils.WriteError(w, r, err)
		return
	}
	types, err := queryTypes(r)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	n, err := pc.PIIService.CancelOutgoing(r.Context(), requester, vars["requestUsername"], types...)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"message": "PII requests cancelled", "cancelled": n})
}

// ListReceived handles GET /api/pii-access/{username}/received
func (pc *PIIController) ListReceived(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	if err := middleware.Authorize(r.Context(), username); err != nil {
		utils.WriteError(w, r, err)
		return
	}
	access, err := pc.PIIService.ListReceivedAccess(r.Context(), username)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"access": access})
}

// ListGranted handles GET /api/pii-access/{username}/granted
func (pc *PIIController) ListGranted(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	if err := middleware.Authorize(r.Context(), username); err != nil {
		utils.WriteError(w, r, err)
		return
	}
	access, err := pc.PIIService.ListGrantedAccess(r.Context(), username)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"access": access})
}

// Revoke handles DELETE /api/pii-access/revoke-user/{username}?granter=[&type=]
func (pc *PIIController) Revoke(w http.ResponseWriter, r *http.Request) {
	granter, err := requireParam(r, "granter")
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	if err := middleware.Authorize(r.Context(), granter); err != nil {
		utils.WriteError(w, r, err)
		return
	}
	types, err := queryTypes(r)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	grantee := mux.Vars(r)["username"]
	var revoked []models.PIIRequest
	if len(types) == 0 {
		revoked, err = pc.PIIService.RevokeAll(r.Context(), granter, grantee)
	} else {
		revoked, err = pc.PIIService.Revoke(r.Context(), granter, grantee, types...)
	}
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"message": "Access revoked", "revoked": revoked})
}
