package services

import (
	"context"

	"l3v3l_server/config"
	"l3v3l_server/errs"
	"l3v3l_server/models"
	"l3v3l_server/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoListStore keeps every list in one table: PK listKey (owner#category), SK targetUsername.
type DynamoListStore struct {
	Dynamo *DynamoService
	Tables config.TablesConfig
}

func NewDynamoListStore(dynamo *DynamoService, tables config.TablesConfig) *DynamoListStore {
	return &DynamoListStore{Dynamo: dynamo, Tables: tables}
}

func entryKey(owner string, category models.ListCategory, target string) map[string]types.AttributeValue {
	return utils.Key("listKey", models.ListKey(owner, category), "targetUsername", target)
}

func (s *DynamoListStore) ListEntries(ctx context.Context, owner string, category models.ListCategory) ([]models.ListEntry, error) {
	items, err := s.Dynamo.QueryAll(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.Tables.UserLists),
		KeyConditionExpression:    aws.String("listKey = :k"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":k": utils.S(models.ListKey(owner, category))},
		ConsistentRead:            aws.Bool(true),
	}, 0)
	if err != nil {
		return nil, err
	}
	entries := []models.ListEntry{}
	if err := unmarshalAll(items, &entries); err != nil {
		return nil, err
	}
	models.SortByPosition(entries)
	return entries, nil
}

func (s *DynamoListStore) GetEntry(ctx context.Context, owner string, category models.ListCategory, target string) (models.ListEntry, error) {
	var e models.ListEntry
	if err := s.Dynamo.GetItem(ctx, s.Tables.UserLists, entryKey(owner, category, target), &e); err != nil {
		if errs.Is(err, errs.NotFound) {
			return models.ListEntry{}, errs.NotFoundf(target + " is not in " + string(category))
		}
		return models.ListEntry{}, err
	}
	return e, nil
}

func (s *DynamoListStore) AddEntry(ctx context.Context, entry models.ListEntry) error {
	entry.ListKey = models.ListKey(entry.OwnerUsername, entry.Category)
	return s.Dynamo.PutItem(ctx, s.Tables.UserLists, entry, &Condition{
		Expression: "attribute_not_exists(listKey)",
		Msg:        entry.TargetUsername + " is already in " + string(entry.Category),
	})
}

func (s *DynamoListStore) RemoveEntry(ctx context.Context, owner string, category models.ListCategory, target string) error {
	return s.Dynamo.DeleteItem(ctx, s.Tables.UserLists, entryKey(owner, category, target), &Condition{
		Expression: "attribute_exists(listKey)",
		Fail:       errs.NotFound,
		Msg:        target + " is not in " + string(category),
	})
}

// SetPositions rewrites the given entries in batches.
func (s *DynamoListStore) SetPositions(ctx context.Context, entries []models.ListEntry) error {
	requests := make([]types.WriteRequest, 0, len(entries))
	for _, e := range entries {
		e.ListKey = models.ListKey(e.OwnerUsername, e.Category)
		item, err := marshalItem(e)
		if err != nil {
			return err
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}
	return s.Dynamo.BatchWriteItems(ctx, s.Tables.UserLists, requests)
}

func (s *DynamoListStore) MoveEntry(ctx context.Context, from, to models.ListEntry) error {
	to.ListKey = models.ListKey(to.OwnerUsername, to.Category)
	item, err := marshalItem(to)
	if err != nil {
		return err
	}
	err = s.Dynamo.TransactWrite(ctx, []types.TransactWriteItem{
		{Delete: &types.Delete{
			TableName:           aws.String(s.Tables.UserLists),
			Key:                 entryKey(from.OwnerUsername, from.Category, from.TargetUsername),
			ConditionExpression: aws.String("attribute_exists(listKey)"),
		}},
		{Put: &types.Put{
			TableName:           aws.String(s.Tables.UserLists),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(listKey)"),
		}},
	})
	switch {
	case err == nil:
		return nil
	case failedAt(err, 0):
		return errs.Wrap(errs.NotFound, from.TargetUsername+" is not in "+string(from.Category), err)
	case failedAt(err, 1):
		return errs.Wrap(errs.Conflict, to.TargetUsername+" is already in "+string(to.Category), err)
	}
	return err
}

var _ ListStore = (*DynamoListStore)(nil)
