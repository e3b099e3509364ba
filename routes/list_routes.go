package routes

import (
	"l3v3l_server/controllers"
	"l3v3l_server/services"

	"github.com/gorilla/mux"
)

func RegisterListRoutes(r *mux.Router, listService *services.ListService) {
	controller := controllers.NewListController(listService)

	listRouter := r.PathPrefix("/lists/{username}").Subrouter()
	listRouter.HandleFunc("/move", controller.Move).Methods("POST") // ✅ Before /{category}
	listRouter.HandleFunc("/{category}", controller.List).Methods("GET")
	listRouter.HandleFunc("/{category}", controller.Add).Methods("POST")
	listRouter.HandleFunc("/{category}/reorder", controller.Reorder).Methods("PUT")
	listRouter.HandleFunc("/{category}/{target}", controller.Remove).Methods("DELETE")
}
