package services

import (
	"context"
	"fmt"

	"l3v3l_server/logger"
	"l3v3l_server/models"
	"l3v3l_server/utils"

	"go.uber.org/zap"
)

// ProfileService renders a profile's contact block for a viewer, masking
// every attribute the viewer has no grant for.
type ProfileService struct {
	Profiles ProfileStore
	Access   *PIIService
	Signer   URLSigner // optional, photos are omitted without it
}

func NewProfileService(profiles ProfileStore, access *PIIService, signer URLSigner) *ProfileService {
	return &ProfileService{Profiles: profiles, Access: access, Signer: signer}
}

// ViewContact returns owner's contact block as viewer sees it. Privileged
// viewers (admins) and the owner see everything.
func (s *ProfileService) ViewContact(ctx context.Context, owner, viewer string, privileged bool) (models.ContactView, error) {
	contact, err := s.Profiles.GetContact(ctx, owner)
	if err != nil {
		return models.ContactView{}, fmt.Errorf("failed to load profile: %w", err)
	}
	var types []models.PIIRequestType
	if privileged {
		types = append(types, models.PIIRequestTypes...)
	} else if types, err = s.Access.AccessTypes(ctx, owner, viewer); err != nil {
		return models.ContactView{}, err
	}
	granted := map[models.PIIRequestType]bool{}
	for _, t := range types {
		granted[t] = true
	}

	view := models.ContactView{
		Username:    contact.Username,
		AccessTypes: types,
		Masked:      map[string]bool{},
	}
	field := func(name, value string, visible bool, mask func(string) string) string {
		if visible || value == "" {
			return value
		}
		view.Masked[name] = true
		return mask(value)
	}

	view.ContactEmail = field("contactEmail", contact.ContactEmail, granted[models.PIITypeEmail], utils.MaskEmail)
	view.ContactNumber = field("contactNumber", contact.ContactNumber, granted[models.PIITypePhone], utils.MaskPhone)
	view.LinkedInURL = field("linkedinUrl", contact.LinkedInURL, granted[models.PIITypeLinkedIn], utils.MaskLinkedIn)
	view.Location = field("location", contact.Location, len(types) > 0, utils.MaskLocation)
	view.Workplace = field("workplace", contact.Workplace, len(types) > 0, utils.MaskWorkplace)

	switch {
	case len(contact.Photos) == 0:
	case granted[models.PIITypePhotos] && s.Signer != nil:
		for _, key := range contact.Photos {
			url, err := s.Signer.ReadURL(ctx, key)
			if err != nil {
				logger.Warn("⚠️ failed to sign photo url", zap.String("username", owner), zap.Error(err))
				continue
			}
			view.PhotoURLs = append(view.PhotoURLs, url)
		}
	case !granted[models.PIITypePhotos]:
		view.Masked["photos"] = true
	}
	view.PIIMasked = len(view.Masked) > 0
	return view, nil
}
