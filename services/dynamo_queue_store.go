package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"l3v3l_server/config"
	"l3v3l_server/errs"
	"l3v3l_server/models"
	"l3v3l_server/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	logDayLayout = "2006-01-02"
	// logLookbackDays bounds the all-users log listing, which walks day
	// partitions newest first.
	logLookbackDays = 31
)

// logRecord is a DeliveryLog plus the keys of the two log indexes.
// createdAtMs is numeric so range conditions order correctly.
type logRecord struct {
	models.DeliveryLog
	LogDay      string `dynamodbav:"logDay"`
	CreatedAtMs int64  `dynamodbav:"createdAtMs"`
}

func newLogRecord(l models.DeliveryLog) logRecord {
	at := l.CreatedAt.UTC()
	return logRecord{DeliveryLog: l, LogDay: at.Format(logDayLayout), CreatedAtMs: at.UnixMilli()}
}

// DynamoQueueStore keeps queue items and delivery logs in two tables keyed by
// id. Queue reads go through the status and username indexes; log reads go
// through the username and day indexes, so neither table is scanned on the
// stats path.
type DynamoQueueStore struct {
	Dynamo *DynamoService
	Tables config.TablesConfig
	Now    func() time.Time
}

func NewDynamoQueueStore(dynamo *DynamoService, tables config.TablesConfig) *DynamoQueueStore {
	return &DynamoQueueStore{Dynamo: dynamo, Tables: tables, Now: func() time.Time { return time.Now().UTC() }}
}

// statusCondition renders "#status IN (:s0, :s1, ...)".
func statusCondition(statuses []models.QueueStatus) (string, map[string]types.AttributeValue) {
	placeholders := make([]string, len(statuses))
	values := make(map[string]types.AttributeValue, len(statuses))
	for i, st := range statuses {
		ph := fmt.Sprintf(":s%d", i)
		placeholders[i] = ph
		values[ph] = utils.S(string(st))
	}
	return "#status IN (" + strings.Join(placeholders, ", ") + ")", values
}

func (s *DynamoQueueStore) PutItem(ctx context.Context, item models.NotificationQueueItem) error {
	return s.Dynamo.PutItem(ctx, s.Tables.NotificationQueue, item, &Condition{
		Expression: "attribute_not_exists(id)",
		Msg:        "queue item already exists",
	})
}

func (s *DynamoQueueStore) GetItem(ctx context.Context, id string) (models.NotificationQueueItem, error) {
	var item models.NotificationQueueItem
	if err := s.Dynamo.GetItem(ctx, s.Tables.NotificationQueue, utils.Key("id", id), &item); err != nil {
		if errs.Is(err, errs.NotFound) {
			return models.NotificationQueueItem{}, errs.NotFoundf("queue item not found")
		}
		return models.NotificationQueueItem{}, err
	}
	return item, nil
}

// statusQuery selects one raw status on the status index, optionally for one user.
func (s *DynamoQueueStore) statusQuery(status models.QueueStatus, username string) *dynamodb.QueryInput {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.Tables.NotificationQueue),
		IndexName:                 aws.String(models.QueueStatusIndex),
		KeyConditionExpression:    aws.String("#status = :s"),
		ExpressionAttributeNames:  map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":s": utils.S(string(status))},
	}
	if username != "" {
		input.FilterExpression = aws.String("#u = :u")
		input.ExpressionAttributeNames["#u"] = "username"
		input.ExpressionAttributeValues[":u"] = utils.S(username)
	}
	return input
}

// ListItems queries the status index when the filter names statuses, the
// username index when it names a user, and scans only for an unfiltered
// operator listing. The rest of the filter is applied after decoding.
func (s *DynamoQueueStore) ListItems(ctx context.Context, filter models.QueueFilter) ([]models.NotificationQueueItem, error) {
	var raw []map[string]types.AttributeValue
	switch {
	case len(filter.Statuses) > 0:
		for _, st := range models.ExpandStatuses(filter.Statuses) {
			items, err := s.Dynamo.QueryAll(ctx, s.statusQuery(st, filter.Username), 0)
			if err != nil {
				return nil, err
			}
			raw = append(raw, items...)
		}
	case filter.Username != "":
		items, err := s.Dynamo.QueryAll(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.Tables.NotificationQueue),
			IndexName:                 aws.String(models.QueueUsernameIndex),
			KeyConditionExpression:    aws.String("#u = :u"),
			ExpressionAttributeNames:  map[string]string{"#u": "username"},
			ExpressionAttributeValues: map[string]types.AttributeValue{":u": utils.S(filter.Username)},
		}, 0)
		if err != nil {
			return nil, err
		}
		raw = items
	default:
		items, err := s.Dynamo.ScanAll(ctx, &dynamodb.ScanInput{TableName: aws.String(s.Tables.NotificationQueue)})
		if err != nil {
			return nil, err
		}
		raw = items
	}

	var all []models.NotificationQueueItem
	if err := unmarshalAll(raw, &all); err != nil {
		return nil, err
	}
	out := []models.NotificationQueueItem{}
	for _, item := range all {
		if filter.Match(item) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *DynamoQueueStore) CountItems(ctx context.Context, username string, statuses ...models.QueueStatus) (int, error) {
	total := 0
	for _, st := range statuses {
		n, err := s.Dynamo.QueryCount(ctx, s.statusQuery(st, username))
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (s *DynamoQueueStore) SwapItem(ctx context.Context, item models.NotificationQueueItem, expected ...models.QueueStatus) error {
	expr, values := statusCondition(expected)
	return s.Dynamo.PutItem(ctx, s.Tables.NotificationQueue, item, &Condition{
		Expression: "attribute_exists(id) AND " + expr,
		Names:      map[string]string{"#status": "status"},
		Values:     values,
		Fail:       errs.InvalidState,
		Msg:        "queue item changed state",
	})
}

func (s *DynamoQueueStore) DeleteItem(ctx context.Context, id string, forbidden ...models.QueueStatus) error {
	cond := &Condition{Expression: "attribute_exists(id)", Msg: "queue item changed state"}
	if len(forbidden) > 0 {
		expr, values := statusCondition(forbidden)
		cond.Expression += " AND NOT (" + expr + ")"
		cond.Names = map[string]string{"#status": "status"}
		cond.Values = values
	}
	return s.Dynamo.DeleteItem(ctx, s.Tables.NotificationQueue, utils.Key("id", id), cond)
}

func (s *DynamoQueueStore) AppendLogs(ctx context.Context, logs []models.DeliveryLog) error {
	requests := make([]types.WriteRequest, 0, len(logs))
	for _, l := range logs {
		item, err := marshalItem(newLogRecord(l))
		if err != nil {
			return err
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}
	return s.Dynamo.BatchWriteItems(ctx, s.Tables.NotificationLog, requests)
}

// logQuery reads one partition of a log index newest first, from since on.
func (s *DynamoQueueStore) logQuery(index, keyAttr, keyValue string, since time.Time) *dynamodb.QueryInput {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.Tables.NotificationLog),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#k = :k"),
		ExpressionAttributeNames:  map[string]string{"#k": keyAttr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":k": utils.S(keyValue)},
		ScanIndexForward:          aws.Bool(false),
	}
	if !since.IsZero() {
		input.KeyConditionExpression = aws.String("#k = :k AND createdAtMs >= :since")
		input.ExpressionAttributeValues[":since"] = &types.AttributeValueMemberN{Value: fmt.Sprint(since.UnixMilli())}
	}
	return input
}

func (s *DynamoQueueStore) ListLogs(ctx context.Context, username string, since time.Time, limit int) ([]models.DeliveryLog, error) {
	var raw []map[string]types.AttributeValue
	if username != "" {
		items, err := s.Dynamo.QueryAll(ctx, s.logQuery(models.LogUsernameIndex, "username", username, since), limit)
		if err != nil {
			return nil, err
		}
		raw = items
	} else {
		day := s.Now().UTC().Truncate(24 * time.Hour)
		oldest := day.AddDate(0, 0, -logLookbackDays)
		if !since.IsZero() {
			oldest = since.UTC().Truncate(24 * time.Hour)
		}
		for ; !day.Before(oldest); day = day.AddDate(0, 0, -1) {
			remaining := 0
			if limit > 0 {
				remaining = limit - len(raw)
			}
			items, err := s.Dynamo.QueryAll(ctx, s.logQuery(models.LogDayIndex, "logDay", day.Format(logDayLayout), since), remaining)
			if err != nil {
				return nil, err
			}
			raw = append(raw, items...)
			if limit > 0 && len(raw) >= limit {
				break
			}
		}
	}

	var records []logRecord
	if err := unmarshalAll(raw, &records); err != nil {
		return nil, err
	}
	out := make([]models.DeliveryLog, 0, len(records))
	for _, r := range records {
		out = append(out, r.DeliveryLog)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ QueueStore = (*DynamoQueueStore)(nil)
