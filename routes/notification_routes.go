package routes

import (
	"l3v3l_server/controllers"
	"l3v3l_server/middleware"
	"l3v3l_server/services"

	"github.com/gorilla/mux"
)

func RegisterNotificationRoutes(r *mux.Router, queueService *services.QueueService, preferences *services.PreferencesService) {
	controller := controllers.NewNotificationController(queueService, preferences)

	notificationRouter := r.PathPrefix("/notifications").Subrouter()
	notificationRouter.HandleFunc("/queue", controller.ListQueue).Methods("GET")
	notificationRouter.HandleFunc("/queue/{id}", controller.GetItem).Methods("GET")
	notificationRouter.HandleFunc("/queue/{id}", controller.Delete).Methods("DELETE")
	notificationRouter.HandleFunc("/analytics", controller.Analytics).Methods("GET")
	notificationRouter.HandleFunc("/logs", controller.Logs).Methods("GET")
	if preferences != nil {
		notificationRouter.HandleFunc("/preferences", controller.GetPreferences).Methods("GET")
		notificationRouter.HandleFunc("/preferences", controller.UpdatePreferences).Methods("PUT")
		notificationRouter.HandleFunc("/preferences/reset", controller.ResetPreferences).Methods("POST")
		notificationRouter.HandleFunc("/unsubscribe", controller.Unsubscribe).Methods("POST")
		notificationRouter.HandleFunc("/unsubscribe/{trigger}", controller.Unsubscribe).Methods("POST")
	}

	// operator only
	admin := notificationRouter.NewRoute().Subrouter()
	admin.Use(middleware.RequireAdmin)
	admin.HandleFunc("/queue", controller.Enqueue).Methods("POST")
	admin.HandleFunc("/queue/bulk-delete", controller.BulkDelete).Methods("POST")
	admin.HandleFunc("/queue/{id}/retry", controller.Retry).Methods("POST")
}
