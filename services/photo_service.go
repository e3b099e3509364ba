package services

import (
	"context"
	"path"
	"strings"

	"l3v3l_server/errs"
	"l3v3l_server/logger"
	"l3v3l_server/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var photoTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

// PhotoService issues presigned URLs for profile photos. Reads are gated by
// the viewer's photos grant.
type PhotoService struct {
	Signer PhotoSigner // nil when no bucket is configured
	Access *PIIService
}

func NewPhotoService(signer PhotoSigner, access *PIIService) *PhotoService {
	return &PhotoService{Signer: signer, Access: access}
}

// PhotoKey is the object key prefix owned by username.
func PhotoKey(username string) string {
	return "photos/" + username + "/"
}

// UploadURL returns a presigned PUT URL and the object key the owner should
// store on their profile.
func (s *PhotoService) UploadURL(ctx context.Context, owner, fileName, fileType string) (url, key string, err error) {
	if s.Signer == nil {
		return "", "", errs.Statef("photo storage is not configured")
	}
	if strings.TrimSpace(fileName) == "" || fileType == "" {
		return "", "", errs.Invalidf("fileName and fileType are required")
	}
	ext, ok := photoTypes[fileType]
	if !ok {
		return "", "", errs.Invalidf("unsupported file type " + fileType)
	}
	key = PhotoKey(owner) + uuid.New().String() + ext
	url, err = s.Signer.UploadURL(ctx, key, fileType)
	if err != nil {
		return "", "", err
	}
	logger.Info("📸 photo upload url issued", zap.String("username", owner), zap.String("key", key),
		zap.String("fileName", path.Base(fileName)))
	return url, key, nil
}

// ReadURL signs one of owner's photos for viewer.
func (s *PhotoService) ReadURL(ctx context.Context, owner, viewer, key string, privileged bool) (string, error) {
	if s.Signer == nil {
		return "", errs.Statef("photo storage is not configured")
	}
	if !strings.HasPrefix(key, PhotoKey(owner)) || strings.Contains(key, "..") {
		return "", errs.Invalidf("key does not belong to " + owner)
	}
	if !privileged {
		ok, err := s.Access.HasAccess(ctx, owner, viewer, models.PIITypePhotos)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", errs.Forbiddenf("photos access has not been granted")
		}
	}
	return s.Signer.ReadURL(ctx, key)
}
