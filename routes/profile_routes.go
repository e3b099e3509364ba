package routes

import (
	"l3v3l_server/controllers"
	"l3v3l_server/services"

	"github.com/gorilla/mux"
)

func RegisterProfileRoutes(r *mux.Router, profileService *services.ProfileService) {
	controller := controllers.NewProfileController(profileService)

	profileRouter := r.PathPrefix("/profiles").Subrouter()
	profileRouter.HandleFunc("/{username}/contact", controller.GetContact).Methods("GET")
}
