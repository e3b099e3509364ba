package services

import (
	"context"
	"testing"

	"l3v3l_server/config"
	"l3v3l_server/errs"
	"l3v3l_server/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo records calls; methods a test does not override panic through the nil embed.
type fakeDynamo struct {
	DynamoAPI
	batches     [][]types.WriteRequest
	unprocessed int
	tx          []*dynamodb.TransactWriteItemsInput
	txErr       error
	puts        []*dynamodb.PutItemInput
	putErr      error
	items       map[string][]map[string]types.AttributeValue // by table, served to GetItem
	queries     []*dynamodb.QueryInput
	query       func(in *dynamodb.QueryInput) []map[string]types.AttributeValue
	scans       int
}

// seed stores v as an item of table.
func (f *fakeDynamo) seed(t *testing.T, table string, v interface{}) {
	t.Helper()
	item, err := attributevalue.MarshalMap(v)
	require.NoError(t, err)
	if f.items == nil {
		f.items = map[string][]map[string]types.AttributeValue{}
	}
	f.items[table] = append(f.items[table], item)
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	for _, item := range f.items[aws.ToString(in.TableName)] {
		match := true
		for k, v := range in.Key {
			got, ok := item[k].(*types.AttributeValueMemberS)
			if !ok || got.Value != v.(*types.AttributeValueMemberS).Value {
				match = false
				break
			}
		}
		if match {
			return &dynamodb.GetItemOutput{Item: item}, nil
		}
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, in)
	var items []map[string]types.AttributeValue
	if f.query != nil {
		items = f.query(in)
	}
	out := &dynamodb.QueryOutput{Count: int32(len(items))}
	if in.Select != types.SelectCount {
		out.Items = items
	}
	return out, nil
}

func (f *fakeDynamo) Scan(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scans++
	return &dynamodb.ScanOutput{}, nil
}

func (f *fakeDynamo) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	var reqs []types.WriteRequest
	for _, r := range in.RequestItems {
		reqs = append(reqs, r...)
	}
	f.batches = append(f.batches, reqs)
	out := &dynamodb.BatchWriteItemOutput{}
	if f.unprocessed > 0 {
		n := f.unprocessed
		f.unprocessed = 0
		for table, r := range in.RequestItems {
			out.UnprocessedItems = map[string][]types.WriteRequest{table: r[:n]}
		}
	}
	return out, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.tx = append(f.tx, in)
	return &dynamodb.TransactWriteItemsOutput{}, f.txErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	return &dynamodb.PutItemOutput{}, f.putErr
}

func cancelled(codes ...string) error {
	reasons := make([]types.CancellationReason, len(codes))
	for i, c := range codes {
		reasons[i] = types.CancellationReason{Code: aws.String(c)}
	}
	return &types.TransactionCanceledException{CancellationReasons: reasons}
}

func testTables() config.TablesConfig {
	return config.TablesConfig{
		PIIRequests: "PIIRequests", PIIRequestGuards: "PIIRequestGuards", PIIAccessGrants: "PIIAccessGrants",
		NotificationQueue: "NotificationQueue", NotificationLog: "NotificationLog",
		UserLists: "UserLists", UserProfiles: "Users", NotificationPreferences: "NotificationPreferences",
	}
}

func TestBatchWriteItemsChunksAndResubmits(t *testing.T) {
	fake := &fakeDynamo{unprocessed: 2}
	ds := &DynamoService{Client: fake}

	reqs := make([]types.WriteRequest, 30)
	for i := range reqs {
		reqs[i] = types.WriteRequest{PutRequest: &types.PutRequest{Item: map[string]types.AttributeValue{}}}
	}
	require.NoError(t, ds.BatchWriteItems(context.Background(), "UserLists", reqs))

	require.Len(t, fake.batches, 3)
	assert.Len(t, fake.batches[0], 25)
	assert.Len(t, fake.batches[1], 2, "unprocessed items are resubmitted")
	assert.Len(t, fake.batches[2], 5)
}

func TestDynamoMoveEntryMapsCancellationReasons(t *testing.T) {
	from := models.ListEntry{OwnerUsername: "alice", Category: models.ListFavorites, TargetUsername: "bob"}
	to := models.ListEntry{OwnerUsername: "alice", Category: models.ListShortlist, TargetUsername: "bob"}

	tests := []struct {
		name string
		err  error
		want errs.Code
	}{
		{"source missing", cancelled(conditionFailed, "None"), errs.NotFound},
		{"already in destination", cancelled("None", conditionFailed), errs.Conflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeDynamo{txErr: tt.err}
			store := NewDynamoListStore(&DynamoService{Client: fake}, testTables())

			err := store.MoveEntry(context.Background(), from, to)
			assert.Equal(t, tt.want, errs.CodeOf(err))
			require.Len(t, fake.tx, 1)
			assert.Len(t, fake.tx[0].TransactItems, 2, "delete and put travel in one transaction")
		})
	}
}

func TestDynamoCreateRequestGuardConflict(t *testing.T) {
	fake := &fakeDynamo{txErr: cancelled(conditionFailed, "None")}
	store := NewDynamoPIIStore(&DynamoService{Client: fake}, testTables())

	err := store.CreateRequest(context.Background(), models.PIIRequest{
		ID: "r1", RequesterUsername: "alice", RequesteeUsername: "bob",
		RequestType: models.PIITypePhone, Status: models.PIIStatusPending,
	})
	assert.True(t, errs.Is(err, errs.Conflict))

	guard := fake.tx[0].TransactItems[0].Put
	require.NotNil(t, guard)
	assert.Equal(t, "PIIRequestGuards", aws.ToString(guard.TableName))
	assert.Equal(t, "alice#bob#phone", guard.Item["pendingKey"].(*types.AttributeValueMemberS).Value)

	require.Len(t, fake.tx[0].TransactItems, 3)
	check := fake.tx[0].TransactItems[2].ConditionCheck
	require.NotNil(t, check, "the grant is checked inside the same transaction")
	assert.Equal(t, "PIIAccessGrants", aws.ToString(check.TableName))
	assert.Equal(t, "bob", check.Key["granterUsername"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "alice", check.Key["granteeUsername"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "attribute_not_exists(granterUsername) OR NOT contains(accessTypes, :t)", aws.ToString(check.ConditionExpression))
	assert.Equal(t, "phone", check.ExpressionAttributeValues[":t"].(*types.AttributeValueMemberS).Value)
}

func TestDynamoCreateRequestAlreadyGranted(t *testing.T) {
	fake := &fakeDynamo{txErr: cancelled("None", "None", conditionFailed)}
	store := NewDynamoPIIStore(&DynamoService{Client: fake}, testTables())

	err := store.CreateRequest(context.Background(), models.PIIRequest{
		ID: "r1", RequesterUsername: "alice", RequesteeUsername: "bob",
		RequestType: models.PIITypePhone, Status: models.PIIStatusPending,
	})
	assert.True(t, errs.Is(err, errs.Conflict))
	assert.Equal(t, "access to phone is already granted", errs.Message(err))
}

func TestDynamoSwapItemReportsInvalidState(t *testing.T) {
	fake := &fakeDynamo{putErr: &types.ConditionalCheckFailedException{}}
	store := NewDynamoQueueStore(&DynamoService{Client: fake}, testTables())

	err := store.SwapItem(context.Background(), models.NotificationQueueItem{ID: "q1", Status: models.QueueStatusPending},
		models.QueueStatusFailed, models.QueueStatusError)
	assert.True(t, errs.Is(err, errs.InvalidState))

	require.Len(t, fake.puts, 1)
	assert.Equal(t, "attribute_exists(id) AND #status IN (:s0, :s1)", aws.ToString(fake.puts[0].ConditionExpression))
}
