package routes

import (
	"net/http"

	"l3v3l_server/controllers"
	"l3v3l_server/services"

	"github.com/gorilla/mux"
)

// RegisterPIIRoutes mounts /pii-requests and /pii-access on an authenticated
// router. limit, when set, guards request creation.
func RegisterPIIRoutes(r *mux.Router, piiService *services.PIIService, limit mux.MiddlewareFunc) {
	controller := controllers.NewPIIController(piiService)

	var create http.Handler = http.HandlerFunc(controller.CreateRequest)
	if limit != nil {
		create = limit(create)
	}
	r.Handle("/pii-requests", create).Methods("POST") // ✅ Ask for contact details

	requestRouter := r.PathPrefix("/pii-requests").Subrouter()
	requestRouter.HandleFunc("/{username}/incoming", controller.ListIncoming).Methods("GET") // ✅ Requests to me
	requestRouter.HandleFunc("/{username}/outgoing", controller.ListOutgoing).Methods("GET") // ✅ Requests by me
	requestRouter.HandleFunc("/{username}/outgoing/{requestUsername}", controller.CancelOutgoing).Methods("DELETE")
	requestRouter.HandleFunc("/{id}/approve", controller.Approve).Methods("PUT")
	requestRouter.HandleFunc("/{id}/reject", controller.Reject).Methods("PUT")
	requestRouter.HandleFunc("/{id}", controller.Cancel).Methods("DELETE")

	accessRouter := r.PathPrefix("/pii-access").Subrouter()
	accessRouter.HandleFunc("/{username}/received", controller.ListReceived).Methods("GET")
	accessRouter.HandleFunc("/{username}/granted", controller.ListGranted).Methods("GET")
	accessRouter.HandleFunc("/revoke-user/{username}", controller.Revoke).Methods("DELETE")
}
