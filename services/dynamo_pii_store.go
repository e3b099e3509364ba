package services

import (
	"context"
	"fmt"
	"time"

	"l3v3l_server/config"
	"l3v3l_server/errs"
	"l3v3l_server/models"
	"l3v3l_server/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	conditionFailed = "ConditionalCheckFailed"
	// maxTransactItems is DynamoDB's TransactWriteItems limit.
	maxTransactItems = 100
)

// pendingGuard reserves a PendingKey so two pending requests for the same
// triple can never coexist.
type pendingGuard struct {
	PendingKey string `dynamodbav:"pendingKey"` // PK
	RequestID  string `dynamodbav:"requestId"`
}

// DynamoPIIStore keeps requests, their pending guards and grants in three tables.
type DynamoPIIStore struct {
	Dynamo *DynamoService
	Tables config.TablesConfig
}

func NewDynamoPIIStore(dynamo *DynamoService, tables config.TablesConfig) *DynamoPIIStore {
	return &DynamoPIIStore{Dynamo: dynamo, Tables: tables}
}

func failedAt(err error, index int) bool {
	codes := cancellationCodes(err)
	return index < len(codes) && codes[index] == conditionFailed
}

func (s *DynamoPIIStore) CreateRequest(ctx context.Context, req models.PIIRequest) error {
	guard, err := attributevalue.MarshalMap(pendingGuard{PendingKey: req.PendingKey(), RequestID: req.ID})
	if err != nil {
		return fmt.Errorf("failed to marshal guard: %w", err)
	}
	item, err := attributevalue.MarshalMap(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	err = s.Dynamo.TransactWrite(ctx, []types.TransactWriteItem{
		{Put: &types.Put{
			TableName:           aws.String(s.Tables.PIIRequestGuards),
			Item:                guard,
			ConditionExpression: aws.String("attribute_not_exists(pendingKey)"),
		}},
		{Put: &types.Put{
			TableName:           aws.String(s.Tables.PIIRequests),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(id)"),
		}},
		{ConditionCheck: &types.ConditionCheck{
			TableName:                 aws.String(s.Tables.PIIAccessGrants),
			Key:                       utils.Key("granterUsername", req.RequesteeUsername, "granteeUsername", req.RequesterUsername),
			ConditionExpression:       aws.String("attribute_not_exists(granterUsername) OR NOT contains(accessTypes, :t)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":t": utils.S(string(req.RequestType))},
		}},
	})
	switch {
	case err == nil:
		return nil
	case failedAt(err, 0):
		return errs.Wrap(errs.Conflict, "a pending request already exists for this type", err)
	case failedAt(err, 1):
		return errs.Wrap(errs.Conflict, "request id already exists", err)
	case failedAt(err, 2):
		return errs.Wrap(errs.Conflict, "access to "+string(req.RequestType)+" is already granted", err)
	}
	return err
}

func (s *DynamoPIIStore) GetRequest(ctx context.Context, id string) (models.PIIRequest, error) {
	var req models.PIIRequest
	if err := s.Dynamo.GetItem(ctx, s.Tables.PIIRequests, utils.Key("id", id), &req); err != nil {
		if errs.Is(err, errs.NotFound) {
			return models.PIIRequest{}, errs.NotFoundf("pii request not found")
		}
		return models.PIIRequest{}, err
	}
	return req, nil
}

func (s *DynamoPIIStore) queryRequests(ctx context.Context, index, attr, username string) ([]models.PIIRequest, error) {
	items, err := s.Dynamo.QueryAll(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.Tables.PIIRequests),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#u = :u"),
		ExpressionAttributeNames:  map[string]string{"#u": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":u": utils.S(username)},
	}, 0)
	if err != nil {
		return nil, err
	}
	reqs := []models.PIIRequest{}
	if err := unmarshalAll(items, &reqs); err != nil {
		return nil, err
	}
	models.SortByRequestedAtDesc(reqs)
	return reqs, nil
}

func (s *DynamoPIIStore) ListByRequestee(ctx context.Context, username string) ([]models.PIIRequest, error) {
	return s.queryRequests(ctx, models.RequesteeIndex, "requesteeUsername", username)
}

func (s *DynamoPIIStore) ListByRequester(ctx context.Context, username string) ([]models.PIIRequest, error) {
	return s.queryRequests(ctx, models.RequesterIndex, "requesterUsername", username)
}

func (s *DynamoPIIStore) releaseGuard(req models.PIIRequest) types.TransactWriteItem {
	return types.TransactWriteItem{Delete: &types.Delete{
		TableName:                 aws.String(s.Tables.PIIRequestGuards),
		Key:                       utils.Key("pendingKey", req.PendingKey()),
		ConditionExpression:       aws.String("requestId = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":id": utils.S(req.ID)},
	}}
}

// putGrant writes grant only if nobody changed it since prev was read.
func (s *DynamoPIIStore) putGrant(grant models.PIIAccessGrant, prev *models.PIIAccessGrant) (types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(grant)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("failed to marshal grant: %w", err)
	}
	put := &types.Put{TableName: aws.String(s.Tables.PIIAccessGrants), Item: item}
	if prev == nil {
		put.ConditionExpression = aws.String("attribute_not_exists(granterUsername)")
	} else {
		stamp, err := attributevalue.Marshal(prev.UpdatedAt)
		if err != nil {
			return types.TransactWriteItem{}, err
		}
		put.ConditionExpression = aws.String("updatedAt = :prev")
		put.ExpressionAttributeValues = map[string]types.AttributeValue{":prev": stamp}
	}
	return types.TransactWriteItem{Put: put}, nil
}

func (s *DynamoPIIStore) deleteGrant(prev models.PIIAccessGrant) (types.TransactWriteItem, error) {
	stamp, err := attributevalue.Marshal(prev.UpdatedAt)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{Delete: &types.Delete{
		TableName:                 aws.String(s.Tables.PIIAccessGrants),
		Key:                       utils.Key("granterUsername", prev.GranterUsername, "granteeUsername", prev.GranteeUsername),
		ConditionExpression:       aws.String("updatedAt = :prev"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":prev": stamp},
	}}, nil
}

func (s *DynamoPIIStore) ResolveRequest(ctx context.Context, id string, status models.PIIRequestStatus, at time.Time) (models.PIIRequest, error) {
	req, err := s.GetRequest(ctx, id)
	if err != nil {
		return models.PIIRequest{}, err
	}
	if req.Status != models.PIIStatusPending {
		return models.PIIRequest{}, errs.Statef("request is already " + string(req.Status))
	}
	stamp, err := attributevalue.Marshal(at)
	if err != nil {
		return models.PIIRequest{}, err
	}

	tx := []types.TransactWriteItem{
		{Update: &types.Update{
			TableName:                aws.String(s.Tables.PIIRequests),
			Key:                      utils.Key("id", id),
			UpdateExpression:         aws.String("SET #status = :status, resolvedAt = :at"),
			ConditionExpression:      aws.String("#status = :pending"),
			ExpressionAttributeNames: map[string]string{"#status": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":status":  utils.S(string(status)),
				":pending": utils.S(string(models.PIIStatusPending)),
				":at":      stamp,
			},
		}},
		s.releaseGuard(req),
	}

	if status == models.PIIStatusApproved {
		var prev *models.PIIAccessGrant
		grant, err := s.GetGrant(ctx, req.RequesteeUsername, req.RequesterUsername)
		switch {
		case err == nil:
			snapshot := cloneGrant(grant)
			prev = &snapshot
		case errs.Is(err, errs.NotFound):
			grant = models.PIIAccessGrant{
				GranterUsername: req.RequesteeUsername,
				GranteeUsername: req.RequesterUsername,
				CreatedAt:       at,
			}
		default:
			return models.PIIRequest{}, err
		}
		grant.Add(req.RequestType)
		grant.UpdatedAt = at
		put, err := s.putGrant(grant, prev)
		if err != nil {
			return models.PIIRequest{}, err
		}
		tx = append(tx, put)
	}

	if err := s.Dynamo.TransactWrite(ctx, tx); err != nil {
		if failedAt(err, 0) || failedAt(err, 1) {
			return models.PIIRequest{}, errs.Wrap(errs.InvalidState, "request was resolved concurrently", err)
		}
		if failedAt(err, 2) {
			return models.PIIRequest{}, errs.Wrap(errs.Conflict, "access grant changed concurrently, retry", err)
		}
		return models.PIIRequest{}, err
	}
	req.Status = status
	req.ResolvedAt = &at
	return req, nil
}

func (s *DynamoPIIStore) DeletePendingRequest(ctx context.Context, id string) error {
	req, err := s.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	if req.Status != models.PIIStatusPending {
		return errs.Statef("only pending requests can be cancelled")
	}
	err = s.Dynamo.TransactWrite(ctx, []types.TransactWriteItem{
		{Delete: &types.Delete{
			TableName:                 aws.String(s.Tables.PIIRequests),
			Key:                       utils.Key("id", id),
			ConditionExpression:       aws.String("#status = :pending"),
			ExpressionAttributeNames:  map[string]string{"#status": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{":pending": utils.S(string(models.PIIStatusPending))},
		}},
		s.releaseGuard(req),
	})
	if err != nil && cancellationCodes(err) != nil {
		return errs.Wrap(errs.InvalidState, "request was resolved concurrently", err)
	}
	return err
}

func (s *DynamoPIIStore) GetGrant(ctx context.Context, granter, grantee string) (models.PIIAccessGrant, error) {
	var g models.PIIAccessGrant
	key := utils.Key("granterUsername", granter, "granteeUsername", grantee)
	if err := s.Dynamo.GetItem(ctx, s.Tables.PIIAccessGrants, key, &g); err != nil {
		if errs.Is(err, errs.NotFound) {
			return models.PIIAccessGrant{}, errs.NotFoundf("no access granted")
		}
		return models.PIIAccessGrant{}, err
	}
	return g, nil
}

func (s *DynamoPIIStore) queryGrants(ctx context.Context, input *dynamodb.QueryInput) ([]models.PIIAccessGrant, error) {
	items, err := s.Dynamo.QueryAll(ctx, input, 0)
	if err != nil {
		return nil, err
	}
	grants := []models.PIIAccessGrant{}
	if err := unmarshalAll(items, &grants); err != nil {
		return nil, err
	}
	return grants, nil
}

func (s *DynamoPIIStore) ListGrantsByGranter(ctx context.Context, granter string) ([]models.PIIAccessGrant, error) {
	return s.queryGrants(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.Tables.PIIAccessGrants),
		KeyConditionExpression:    aws.String("granterUsername = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":u": utils.S(granter)},
	})
}

func (s *DynamoPIIStore) ListGrantsByGrantee(ctx context.Context, grantee string) ([]models.PIIAccessGrant, error) {
	return s.queryGrants(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.Tables.PIIAccessGrants),
		IndexName:                 aws.String(models.GranteeIndex),
		KeyConditionExpression:    aws.String("granteeUsername = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":u": utils.S(grantee)},
	})
}

func (s *DynamoPIIStore) RevokeGrant(ctx context.Context, granter, grantee string, revokeList []models.PIIRequestType, at time.Time) ([]models.PIIRequest, error) {
	prev, err := s.GetGrant(ctx, granter, grantee)
	if err != nil {
		return nil, err
	}
	grant := cloneGrant(prev)
	removed := revokeTypes(&grant, revokeList)
	if len(removed) == 0 {
		return nil, errs.NotFoundf("requested access types are not granted")
	}

	var tx []types.TransactWriteItem
	if grant.Empty() {
		del, err := s.deleteGrant(prev)
		if err != nil {
			return nil, err
		}
		tx = append(tx, del)
	} else {
		grant.UpdatedAt = at
		put, err := s.putGrant(grant, &prev)
		if err != nil {
			return nil, err
		}
		tx = append(tx, put)
	}

	outgoing, err := s.ListByRequester(ctx, grantee)
	if err != nil {
		return nil, err
	}
	stamp, err := attributevalue.Marshal(at)
	if err != nil {
		return nil, err
	}
	var (
		revoked []models.PIIRequest
		updates []types.TransactWriteItem
	)
	for _, r := range outgoing {
		if r.RequesteeUsername != granter || r.Status != models.PIIStatusApproved || !containsType(removed, r.RequestType) {
			continue
		}
		updates = append(updates, types.TransactWriteItem{Update: &types.Update{
			TableName:                aws.String(s.Tables.PIIRequests),
			Key:                      utils.Key("id", r.ID),
			UpdateExpression:         aws.String("SET #status = :revoked, revokedAt = :at"),
			ConditionExpression:      aws.String("#status = :approved"),
			ExpressionAttributeNames: map[string]string{"#status": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":revoked":  utils.S(string(models.PIIStatusRevoked)),
				":approved": utils.S(string(models.PIIStatusApproved)),
				":at":       stamp,
			},
		}})
		r.Status = models.PIIStatusRevoked
		r.RevokedAt = &at
		revoked = append(revoked, r)
	}

	// The grant change and as many request updates as fit commit together.
	// Updates past the transaction limit follow in further transactions that
	// are not atomic with the grant change.
	first := maxTransactItems - len(tx)
	if first > len(updates) {
		first = len(updates)
	}
	tx = append(tx, updates[:first]...)
	if err := s.Dynamo.TransactWrite(ctx, tx); err != nil {
		if cancellationCodes(err) != nil {
			return nil, errs.Wrap(errs.Conflict, "access grant changed concurrently, retry", err)
		}
		return nil, err
	}
	for rest := updates[first:]; len(rest) > 0; {
		n := len(rest)
		if n > maxTransactItems {
			n = maxTransactItems
		}
		if err := s.Dynamo.TransactWrite(ctx, rest[:n]); err != nil {
			return nil, fmt.Errorf("access revoked but %d request(s) were not marked revoked: %w", len(rest), err)
		}
		rest = rest[n:]
	}
	return revoked, nil
}

var _ PIIStore = (*DynamoPIIStore)(nil)
