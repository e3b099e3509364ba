package services

import (
	"context"

	"l3v3l_server/config"
	"l3v3l_server/errs"
	"l3v3l_server/models"
	"l3v3l_server/utils"
)

// DynamoPreferencesStore keeps one preferences item per username.
type DynamoPreferencesStore struct {
	Dynamo *DynamoService
	Tables config.TablesConfig
}

func NewDynamoPreferencesStore(dynamo *DynamoService, tables config.TablesConfig) *DynamoPreferencesStore {
	return &DynamoPreferencesStore{Dynamo: dynamo, Tables: tables}
}

func (s *DynamoPreferencesStore) GetPreferences(ctx context.Context, username string) (models.NotificationPreferences, error) {
	var prefs models.NotificationPreferences
	if err := s.Dynamo.GetItem(ctx, s.Tables.NotificationPreferences, utils.Key("username", username), &prefs); err != nil {
		if errs.Is(err, errs.NotFound) {
			return models.NotificationPreferences{}, errs.NotFoundf("preferences not found")
		}
		return models.NotificationPreferences{}, err
	}
	return prefs, nil
}

func (s *DynamoPreferencesStore) PutPreferences(ctx context.Context, prefs models.NotificationPreferences) error {
	return s.Dynamo.PutItem(ctx, s.Tables.NotificationPreferences, prefs, nil)
}

func (s *DynamoPreferencesStore) DeletePreferences(ctx context.Context, username string) error {
	return s.Dynamo.DeleteItem(ctx, s.Tables.NotificationPreferences, utils.Key("username", username), nil)
}

var _ PreferencesStore = (*DynamoPreferencesStore)(nil)
