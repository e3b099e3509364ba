package services

import (
	"context"
	"errors"
	"fmt"

	"l3v3l_server/errs"
	"l3v3l_server/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// DynamoAPI is the subset of *dynamodb.Client the stores use.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

type DynamoService struct {
	Client DynamoAPI
}

// LoadAWSConfig loads the default credential chain for region.
func LoadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// Condition is an optional ConditionExpression with its placeholders. Fail
// overrides the error code reported when the condition does not hold.
type Condition struct {
	Expression string
	Names      map[string]string
	Values     map[string]types.AttributeValue
	Fail       errs.Code
	Msg        string
}

func (c *Condition) failure(code errs.Code, msg string, err error) error {
	if c != nil && c.Fail != "" {
		code = c.Fail
	}
	if c != nil && c.Msg != "" {
		msg = c.Msg
	}
	return errs.Wrap(code, msg, err)
}

func (c *Condition) expr() *string {
	if c == nil || c.Expression == "" {
		return nil
	}
	return aws.String(c.Expression)
}

func (c *Condition) names() map[string]string {
	if c == nil || len(c.Names) == 0 {
		return nil
	}
	return c.Names
}

func (c *Condition) values() map[string]types.AttributeValue {
	if c == nil || len(c.Values) == 0 {
		return nil
	}
	return c.Values
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// cancellationCodes returns the per-item reason codes of a cancelled
// transaction, or nil when err is something else.
func cancellationCodes(err error) []string {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return nil
	}
	codes := make([]string, len(tce.CancellationReasons))
	for i, r := range tce.CancellationReasons {
		codes[i] = aws.ToString(r.Code)
	}
	return codes
}

// PutItem marshals item and writes it, optionally conditioned. A failed
// condition is reported as errs.Conflict unless cond says otherwise.
func (ds *DynamoService) PutItem(ctx context.Context, tableName string, item interface{}, cond *Condition) error {
	marshaledItem, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}
	_, err = ds.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(tableName),
		Item:                      marshaledItem,
		ConditionExpression:       cond.expr(),
		ExpressionAttributeNames:  cond.names(),
		ExpressionAttributeValues: cond.values(),
	})
	if isConditionFailed(err) {
		return cond.failure(errs.Conflict, "item already exists", err)
	}
	if err != nil {
		logger.Error("❌ PutItem failed", zap.String("table", tableName), zap.Error(err))
		return fmt.Errorf("failed to put item in table '%s': %w", tableName, err)
	}
	return nil
}

// GetItem loads one item into out. A missing item is errs.NotFound.
func (ds *DynamoService) GetItem(ctx context.Context, tableName string, key map[string]types.AttributeValue, out interface{}) error {
	output, err := ds.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(tableName),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to get item from table '%s': %w", tableName, err)
	}
	if output.Item == nil {
		return errs.NotFoundf("item not found")
	}
	if err := attributevalue.UnmarshalMap(output.Item, out); err != nil {
		return fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return nil
}

// GetRawItem returns the attribute map as stored.
func (ds *DynamoService) GetRawItem(ctx context.Context, tableName string, key map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	output, err := ds.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(tableName),
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item from table '%s': %w", tableName, err)
	}
	if output.Item == nil {
		return nil, errs.NotFoundf("item not found")
	}
	return output.Item, nil
}

// DeleteItem removes an item, optionally conditioned. A failed condition is
// reported as errs.InvalidState unless cond says otherwise.
func (ds *DynamoService) DeleteItem(ctx context.Context, tableName string, key map[string]types.AttributeValue, cond *Condition) error {
	_, err := ds.Client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(tableName),
		Key:                       key,
		ConditionExpression:       cond.expr(),
		ExpressionAttributeNames:  cond.names(),
		ExpressionAttributeValues: cond.values(),
	})
	if isConditionFailed(err) {
		return cond.failure(errs.InvalidState, "item changed concurrently", err)
	}
	if err != nil {
		return fmt.Errorf("failed to delete item from table '%s': %w", tableName, err)
	}
	return nil
}

// QueryAll follows LastEvaluatedKey until the result set is exhausted or
// limit items were collected (limit <= 0 means no limit).
func (ds *DynamoService) QueryAll(ctx context.Context, input *dynamodb.QueryInput, limit int) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(ds.Client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query table '%s': %w", aws.ToString(input.TableName), err)
		}
		items = append(items, page.Items...)
		if limit > 0 && len(items) >= limit {
			return items[:limit], nil
		}
	}
	return items, nil
}

// QueryCount returns how many items match input without reading them.
// Count is taken after any FilterExpression.
func (ds *DynamoService) QueryCount(ctx context.Context, input *dynamodb.QueryInput) (int, error) {
	input.Select = types.SelectCount
	total := 0
	paginator := dynamodb.NewQueryPaginator(ds.Client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count in table '%s': %w", aws.ToString(input.TableName), err)
		}
		total += int(page.Count)
	}
	return total, nil
}

// ScanAll is QueryAll for full-table scans.
func (ds *DynamoService) ScanAll(ctx context.Context, input *dynamodb.ScanInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewScanPaginator(ds.Client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table '%s': %w", aws.ToString(input.TableName), err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// BatchWriteItems writes multiple items to DynamoDB in batches of 25,
// resubmitting anything returned as unprocessed.
func (ds *DynamoService) BatchWriteItems(ctx context.Context, tableName string, writeRequests []types.WriteRequest) error {
	const maxBatchSize = 25
	const maxRounds = 5

	for i := 0; i < len(writeRequests); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(writeRequests) {
			end = len(writeRequests)
		}
		pending := map[string][]types.WriteRequest{tableName: writeRequests[i:end]}
		for round := 0; len(pending[tableName]) > 0; round++ {
			if round == maxRounds {
				return fmt.Errorf("batch write to table '%s' left %d items unprocessed", tableName, len(pending[tableName]))
			}
			out, err := ds.Client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return fmt.Errorf("failed to batch write items to table '%s': %w", tableName, err)
			}
			pending = out.UnprocessedItems
		}
	}
	return nil
}

// TransactWrite applies items atomically. Callers inspect cancellationCodes
// on failure to tell which condition lost.
func (ds *DynamoService) TransactWrite(ctx context.Context, items []types.TransactWriteItem) error {
	_, err := ds.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}

// unmarshalAll decodes a page of items into out (pointer to slice).
func unmarshalAll(items []map[string]types.AttributeValue, out interface{}) error {
	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return fmt.Errorf("failed to unmarshal items: %w", err)
	}
	return nil
}

func marshalItem(v interface{}) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item: %w", err)
	}
	return item, nil
}
