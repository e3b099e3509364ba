package routes

import (
	"l3v3l_server/controllers"
	"l3v3l_server/services"

	"github.com/gorilla/mux"
)

// RegisterS3Routes sets up presigned photo URL routes
func RegisterS3Routes(r *mux.Router, photoService *services.PhotoService) {
	controller := controllers.NewPhotoController(photoService)

	photoRouter := r.PathPrefix("/profiles/{username}/photos").Subrouter()
	photoRouter.HandleFunc("/upload-url", controller.GeneratePresignedURL).Methods("POST")
	photoRouter.HandleFunc("/read-url", controller.GetPresignedReadURL).Methods("POST")
}
