package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"l3v3l_server/errs"
	"l3v3l_server/logger"
	"l3v3l_server/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PIIService owns the PII access request state machine.
type PIIService struct {
	Store    PIIStore
	Notifier Notifier // optional
	Now      func() time.Time
}

func NewPIIService(store PIIStore, notifier Notifier) *PIIService {
	return &PIIService{Store: store, Notifier: notifier, Now: func() time.Time { return time.Now().UTC() }}
}

// ReceivedAccess groups the grants a user holds, one entry per granter.
type ReceivedAccess struct {
	GranterUsername string                  `json:"granterUsername"`
	AccessTypes     []models.PIIRequestType `json:"accessTypes"`
	GrantedAt       time.Time               `json:"grantedAt"`
}

// GrantedAccess lists one grantee of an owner.
type GrantedAccess struct {
	GranteeUsername string                  `json:"granteeUsername"`
	AccessTypes     []models.PIIRequestType `json:"accessTypes"`
	GrantedAt       time.Time               `json:"grantedAt"`
}

func (s *PIIService) notify(ctx context.Context, username string, trigger models.Trigger, data map[string]string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(ctx, username, trigger, data); err != nil {
		logger.Warn("⚠️ pii notification not enqueued",
			zap.String("username", username), zap.String("trigger", string(trigger)), zap.Error(err))
	}
}

// **Create a PII request (viewer asks an owner for one attribute)**
func (s *PIIService) CreateRequest(ctx context.Context, in models.CreatePIIRequest) (models.PIIRequest, error) {
	in.Requester = strings.TrimSpace(in.Requester)
	in.Requestee = strings.TrimSpace(in.Requestee)
	if in.Requester == "" || in.Requestee == "" {
		return models.PIIRequest{}, errs.Invalidf("requester and requestee are required")
	}
	if in.Requester == in.Requestee {
		return models.PIIRequest{}, errs.Invalidf("cannot request access to your own profile")
	}
	if !in.RequestType.Valid() {
		return models.PIIRequest{}, errs.Invalidf("unknown request type " + string(in.RequestType))
	}

	grant, err := s.Store.GetGrant(ctx, in.Requestee, in.Requester)
	if err != nil && !errs.Is(err, errs.NotFound) {
		return models.PIIRequest{}, fmt.Errorf("failed to check existing grant: %w", err)
	}
	if err == nil && grant.Has(in.RequestType) {
		return models.PIIRequest{}, errs.Conflictf("access to " + string(in.RequestType) + " is already granted")
	}

	req := models.PIIRequest{
		ID:                uuid.New().String(),
		RequesterUsername: in.Requester,
		RequesteeUsername: in.Requestee,
		RequestType:       in.RequestType,
		Status:            models.PIIStatusPending,
		Message:           in.Message,
		RequestedAt:       s.Now(),
	}
	if err := s.Store.CreateRequest(ctx, req); err != nil {
		return models.PIIRequest{}, fmt.Errorf("failed to create pii request: %w", err)
	}
	logger.Info("✅ pii request created", zap.String("id", req.ID),
		zap.String("requester", req.RequesterUsername), zap.String("requestee", req.RequesteeUsername))

	s.notify(ctx, req.RequesteeUsername, models.TriggerPIIRequest, map[string]string{
		"requester":   req.RequesterUsername,
		"requestType": string(req.RequestType),
		"message":     req.Message,
	})
	return req, nil
}

func (s *PIIService) ListIncoming(ctx context.Context, username string) ([]models.PIIRequest, error) {
	reqs, err := s.Store.ListByRequestee(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list incoming requests: %w", err)
	}
	models.SortByRequestedAtDesc(reqs)
	return reqs, nil
}

func (s *PIIService) ListOutgoing(ctx context.Context, username string) ([]models.PIIRequest, error) {
	reqs, err := s.Store.ListByRequester(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list outgoing requests: %w", err)
	}
	models.SortByRequestedAtDesc(reqs)
	return reqs, nil
}

func (s *PIIService) resolve(ctx context.Context, id, actor string, status models.PIIRequestStatus) (models.PIIRequest, error) {
	req, err := s.Store.GetRequest(ctx, id)
	if err != nil {
		return models.PIIRequest{}, err
	}
	if req.RequesteeUsername != actor {
		return models.PIIRequest{}, errs.Forbiddenf("only the profile owner can respond to this request")
	}
	if req.Status != models.PIIStatusPending {
		return models.PIIRequest{}, errs.Statef("request is already " + string(req.Status))
	}
	resolved, err := s.Store.ResolveRequest(ctx, id, status, s.Now())
	if err != nil {
		return models.PIIRequest{}, fmt.Errorf("failed to %s request: %w", verb(status), err)
	}
	logger.Info("✅ pii request resolved", zap.String("id", id), zap.String("status", string(status)))
	return resolved, nil
}

func verb(status models.PIIRequestStatus) string {
	if status == models.PIIStatusApproved {
		return "approve"
	}
	return "reject"
}

// **Approve: stamps resolvedAt and extends the grant in one write**
func (s *PIIService) Approve(ctx context.Context, id, actor string) (models.PIIRequest, error) {
	req, err := s.resolve(ctx, id, actor, models.PIIStatusApproved)
	if err != nil {
		return req, err
	}
	s.notify(ctx, req.RequesterUsername, models.TriggerPIIGranted, map[string]string{
		"owner":       req.RequesteeUsername,
		"requestType": string(req.RequestType),
	})
	return req, nil
}

func (s *PIIService) Reject(ctx context.Context, id, actor string) (models.PIIRequest, error) {
	req, err := s.resolve(ctx, id, actor, models.PIIStatusRejected)
	if err != nil {
		return req, err
	}
	s.notify(ctx, req.RequesterUsername, models.TriggerPIIDenied, map[string]string{
		"owner":       req.RequesteeUsername,
		"requestType": string(req.RequestType),
	})
	return req, nil
}

// **Cancel: requester withdraws a pending request**
func (s *PIIService) Cancel(ctx context.Context, id, actor string) error {
	req, err := s.Store.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	if req.RequesterUsername != actor {
		return errs.Forbiddenf("only the requester can cancel this request")
	}
	if req.Status != models.PIIStatusPending {
		return errs.Statef("only pending requests can be cancelled")
	}
	if err := s.Store.DeletePendingRequest(ctx, id); err != nil {
		return fmt.Errorf("failed to cancel request: %w", err)
	}
	return nil
}

// CancelOutgoing withdraws every pending request from requester to requestee,
// optionally limited to types. It returns the number cancelled.
func (s *PIIService) CancelOutgoing(ctx context.Context, requester, requestee string, types ...models.PIIRequestType) (int, error) {
	reqs, err := s.Store.ListByRequester(ctx, requester)
	if err != nil {
		return 0, fmt.Errorf("failed to list outgoing requests: %w", err)
	}
	cancelled := 0
	for _, r := range reqs {
		if r.RequesteeUsername != requestee || r.Status != models.PIIStatusPending {
			continue
		}
		if len(types) > 0 && !containsType(types, r.RequestType) {
			continue
		}
		if err := s.Store.DeletePendingRequest(ctx, r.ID); err != nil {
			if errs.Is(err, errs.InvalidState) || errs.Is(err, errs.NotFound) {
				continue // resolved concurrently
			}
			return cancelled, fmt.Errorf("failed to cancel request %s: %w", r.ID, err)
		}
		cancelled++
	}
	if cancelled == 0 {
		return 0, errs.NotFoundf("no pending requests to " + requestee)
	}
	return cancelled, nil
}

// RevokeAll removes every access type granter gave grantee.
func (s *PIIService) RevokeAll(ctx context.Context, granter, grantee string) ([]models.PIIRequest, error) {
	return s.Revoke(ctx, granter, grantee)
}

// Revoke removes the given types (all when none given). The grant is deleted
// once empty and the matching approved requests become revoked.
func (s *PIIService) Revoke(ctx context.Context, granter, grantee string, types ...models.PIIRequestType) ([]models.PIIRequest, error) {
	for _, t := range types {
		if !t.Valid() {
			return nil, errs.Invalidf("unknown access type " + string(t))
		}
	}
	revoked, err := s.Store.RevokeGrant(ctx, granter, grantee, types, s.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to revoke access: %w", err)
	}
	logger.Info("🚫 pii access revoked", zap.String("granter", granter), zap.String("grantee", grantee),
		zap.Int("requests", len(revoked)))
	return revoked, nil
}

func (s *PIIService) ListReceivedAccess(ctx context.Context, username string) ([]ReceivedAccess, error) {
	grants, err := s.Store.ListGrantsByGrantee(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list received access: %w", err)
	}
	out := make([]ReceivedAccess, 0, len(grants))
	for _, g := range grants {
		out = append(out, ReceivedAccess{GranterUsername: g.GranterUsername, AccessTypes: g.AccessTypes, GrantedAt: g.UpdatedAt})
	}
	return out, nil
}

func (s *PIIService) ListGrantedAccess(ctx context.Context, username string) ([]GrantedAccess, error) {
	grants, err := s.Store.ListGrantsByGranter(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list granted access: %w", err)
	}
	out := make([]GrantedAccess, 0, len(grants))
	for _, g := range grants {
		out = append(out, GrantedAccess{GranteeUsername: g.GranteeUsername, AccessTypes: g.AccessTypes, GrantedAt: g.UpdatedAt})
	}
	return out, nil
}

// AccessTypes returns what viewer may see of owner. Owners see everything.
func (s *PIIService) AccessTypes(ctx context.Context, owner, viewer string) ([]models.PIIRequestType, error) {
	if owner == viewer {
		return append([]models.PIIRequestType(nil), models.PIIRequestTypes...), nil
	}
	grant, err := s.Store.GetGrant(ctx, owner, viewer)
	if errs.Is(err, errs.NotFound) {
		return []models.PIIRequestType{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load grant: %w", err)
	}
	return grant.AccessTypes, nil
}

func (s *PIIService) HasAccess(ctx context.Context, owner, viewer string, t models.PIIRequestType) (bool, error) {
	types, err := s.AccessTypes(ctx, owner, viewer)
	if err != nil {
		return false, err
	}
	return containsType(types, t), nil
}
