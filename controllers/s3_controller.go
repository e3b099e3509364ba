package controllers

import (
	"net/http"

	"l3v3l_server/errs"
	"l3v3l_server/logger"
	"l3v3l_server/middleware"
	"l3v3l_server/services"
	"l3v3l_server/utils"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// PhotoController hands out presigned S3 URLs for profile photos
type PhotoController struct {
	PhotoService *services.PhotoService
}

func NewPhotoController(photoService *services.PhotoService) *PhotoController {
	return &PhotoController{PhotoService: photoService}
}

// GeneratePresignedURL generates a presigned URL for uploading one of the caller's photos
func (pc *PhotoController) GeneratePresignedURL(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["username"]
	if err := middleware.Authorize(r.Context(), owner); err != nil {
		utils.WriteError(w, r, err)
		return
	}

	var payload struct {
		FileName string `json:"fileName"`
		FileType string `json:"fileType"`
	}
	if err := decodeBody(r, &payload); err != nil {
		utils.WriteError(w, r, err)
		return
	}

	url, key, err := pc.PhotoService.UploadURL(r.Context(), owner, payload.FileName, payload.FileType)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	logger.Debug("GeneratePresignedURL: issued", zap.String("key", key))
	utils.WriteJSON(w, http.StatusOK, map[string]string{"url": url, "key": key})
}

// GetPresignedReadURL generates a presigned URL for reading a photo the caller may see
func (pc *PhotoController) GetPresignedReadURL(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		utils.WriteError(w, r, errs.New(errs.Unauthorized, "not authenticated"))
		return
	}

	var payload struct {
		Key string `json:"key"`
	}
	if err := decodeBody(r, &payload); err != nil {
		utils.WriteError(w, r, err)
		return
	}
	if payload.Key == "" {
		utils.WriteError(w, r, errs.Invalidf("key is required"))
		return
	}

	url, err := pc.PhotoService.ReadURL(r.Context(), mux.Vars(r)["username"], p.Username, payload.Key, p.IsAdmin())
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"url": url})
}
