package services

import (
	"context"
	"testing"
	"time"

	"l3v3l_server/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDynamoQueueFixture() (*fakeDynamo, *DynamoQueueStore) {
	fake := &fakeDynamo{}
	store := NewDynamoQueueStore(&DynamoService{Client: fake}, testTables())
	store.Now = func() time.Time { return epoch }
	return fake, store
}

func TestDynamoStatsCountOnTheStatusIndex(t *testing.T) {
	fake, store := newDynamoQueueFixture()
	counts := map[string]int{"pending": 2, "scheduled": 1, "processing": 4}
	fake.query = func(in *dynamodb.QueryInput) []map[string]types.AttributeValue {
		if aws.ToString(in.TableName) != "NotificationQueue" {
			return nil
		}
		status := in.ExpressionAttributeValues[":s"].(*types.AttributeValueMemberS).Value
		return make([]map[string]types.AttributeValue, counts[status])
	}

	svc := NewQueueService(store, nil, nil)
	svc.Now = func() time.Time { return epoch }
	stats, err := svc.Stats(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Queued)
	assert.Equal(t, 4, stats.Processing)
	assert.Zero(t, fake.scans, "stats never scan")

	var counted []string
	for _, q := range fake.queries {
		if aws.ToString(q.TableName) != "NotificationQueue" {
			continue
		}
		assert.Equal(t, models.QueueStatusIndex, aws.ToString(q.IndexName))
		assert.Equal(t, types.SelectCount, q.Select)
		assert.Equal(t, "#status = :s", aws.ToString(q.KeyConditionExpression))
		assert.Nil(t, q.FilterExpression)
		counted = append(counted, q.ExpressionAttributeValues[":s"].(*types.AttributeValueMemberS).Value)
	}
	assert.ElementsMatch(t, []string{"pending", "scheduled", "processing"}, counted)

	// the 24h window reads the two day partitions it touches, nothing older
	var logQueries int
	for _, q := range fake.queries {
		if aws.ToString(q.TableName) == "NotificationLog" {
			assert.Equal(t, models.LogDayIndex, aws.ToString(q.IndexName))
			logQueries++
		}
	}
	assert.Equal(t, 2, logQueries)
}

func TestDynamoCountItemsForOneUser(t *testing.T) {
	fake, store := newDynamoQueueFixture()

	_, err := store.CountItems(context.Background(), "alice", models.QueueStatusProcessing)
	require.NoError(t, err)
	require.Len(t, fake.queries, 1)
	q := fake.queries[0]
	assert.Equal(t, "#u = :u", aws.ToString(q.FilterExpression))
	assert.Equal(t, "alice", q.ExpressionAttributeValues[":u"].(*types.AttributeValueMemberS).Value)
}

func TestDynamoListLogsForUserQueriesWindow(t *testing.T) {
	fake, store := newDynamoQueueFixture()
	since := epoch.Add(-24 * time.Hour)

	_, err := store.ListLogs(context.Background(), "alice", since, 0)
	require.NoError(t, err)
	require.Len(t, fake.queries, 1)
	q := fake.queries[0]
	assert.Equal(t, "NotificationLog", aws.ToString(q.TableName))
	assert.Equal(t, models.LogUsernameIndex, aws.ToString(q.IndexName))
	assert.Equal(t, "#k = :k AND createdAtMs >= :since", aws.ToString(q.KeyConditionExpression))
	assert.Equal(t, "username", q.ExpressionAttributeNames["#k"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1740744000000"}, q.ExpressionAttributeValues[":since"])
	assert.False(t, aws.ToBool(q.ScanIndexForward), "newest first")
	assert.Zero(t, fake.scans)
}

func TestDynamoListLogsForEveryoneWalksDayPartitions(t *testing.T) {
	fake, store := newDynamoQueueFixture()
	since := epoch.Add(-24 * time.Hour)

	recent := newLogRecord(models.DeliveryLog{ID: "l1", Username: "bob", Status: models.QueueStatusSent, CreatedAt: epoch.Add(-time.Hour)})
	item, err := attributevalue.MarshalMap(recent)
	require.NoError(t, err)
	fake.query = func(in *dynamodb.QueryInput) []map[string]types.AttributeValue {
		if in.ExpressionAttributeValues[":k"].(*types.AttributeValueMemberS).Value == "2025-03-01" {
			return []map[string]types.AttributeValue{item}
		}
		return nil
	}

	logs, err := store.ListLogs(context.Background(), "", since, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "l1", logs[0].ID)
	assert.Equal(t, epoch.Add(-time.Hour), logs[0].CreatedAt)

	var days []string
	for _, q := range fake.queries {
		assert.Equal(t, models.LogDayIndex, aws.ToString(q.IndexName))
		assert.Equal(t, "logDay", q.ExpressionAttributeNames["#k"])
		days = append(days, q.ExpressionAttributeValues[":k"].(*types.AttributeValueMemberS).Value)
	}
	assert.Equal(t, []string{"2025-03-01", "2025-02-28"}, days, "only the days the window touches")
	assert.Zero(t, fake.scans)
}

func TestDynamoAppendLogsWritesIndexKeys(t *testing.T) {
	fake, store := newDynamoQueueFixture()
	at := time.Date(2025, 3, 1, 23, 59, 0, 0, time.UTC)

	require.NoError(t, store.AppendLogs(context.Background(), []models.DeliveryLog{
		{ID: "l1", Username: "alice", Channel: models.ChannelEmail, Status: models.QueueStatusSent, CreatedAt: at},
	}))
	require.Len(t, fake.batches, 1)
	item := fake.batches[0][0].PutRequest.Item
	assert.Equal(t, "2025-03-01", item["logDay"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "1740873540000", item["createdAtMs"].(*types.AttributeValueMemberN).Value)
	assert.Equal(t, "alice", item["username"].(*types.AttributeValueMemberS).Value)
}

func TestDynamoListItemsByStatusUsesIndex(t *testing.T) {
	fake, store := newDynamoQueueFixture()

	_, err := store.ListItems(context.Background(), models.QueueFilter{Statuses: []string{"failed"}})
	require.NoError(t, err)
	var statuses []string
	for _, q := range fake.queries {
		assert.Equal(t, models.QueueStatusIndex, aws.ToString(q.IndexName))
		statuses = append(statuses, q.ExpressionAttributeValues[":s"].(*types.AttributeValueMemberS).Value)
	}
	assert.Equal(t, []string{"failed", "error", "cancelled"}, statuses)

	fake.queries = nil
	_, err = store.ListItems(context.Background(), models.QueueFilter{Username: "alice"})
	require.NoError(t, err)
	require.Len(t, fake.queries, 1)
	assert.Equal(t, models.QueueUsernameIndex, aws.ToString(fake.queries[0].IndexName))
	assert.Zero(t, fake.scans)
}
