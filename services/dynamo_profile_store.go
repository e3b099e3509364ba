package services

import (
	"context"

	"l3v3l_server/config"
	"l3v3l_server/errs"
	"l3v3l_server/models"
	"l3v3l_server/utils"
)

// DynamoProfileStore reads contact fields from the shared Users table, which
// predates this service and stores some fields under older names.
type DynamoProfileStore struct {
	Dynamo *DynamoService
	Tables config.TablesConfig
}

func NewDynamoProfileStore(dynamo *DynamoService, tables config.TablesConfig) *DynamoProfileStore {
	return &DynamoProfileStore{Dynamo: dynamo, Tables: tables}
}

func (s *DynamoProfileStore) GetContact(ctx context.Context, username string) (models.ProfileContact, error) {
	item, err := s.Dynamo.GetRawItem(ctx, s.Tables.UserProfiles, utils.Key("username", username))
	if errs.Is(err, errs.NotFound) {
		return models.ProfileContact{}, errs.NotFoundf("profile not found")
	}
	if err != nil {
		return models.ProfileContact{}, err
	}
	return models.ProfileContact{
		Username:      username,
		ContactEmail:  utils.ExtractString(item, "contactEmail", "email"),
		ContactNumber: utils.ExtractString(item, "contactNumber", "phone"),
		LinkedInURL:   utils.ExtractString(item, "linkedinUrl"),
		Location:      utils.ExtractString(item, "location"),
		Workplace:     utils.ExtractString(item, "workplace", "company"),
		Photos:        utils.ExtractStringList(item, "photos"),
	}, nil
}

var _ ProfileStore = (*DynamoProfileStore)(nil)
