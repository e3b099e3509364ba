package models

import (
	"sort"
	"time"
)

// PIIRequestType is a protected profile attribute a viewer can ask to see.
type PIIRequestType string

const (
	PIITypePhone    PIIRequestType = "phone"
	PIITypeEmail    PIIRequestType = "email"
	PIITypeLinkedIn PIIRequestType = "linkedin"
	PIITypePhotos   PIIRequestType = "photos"
)

// PIIRequestTypes is the closed set of requestable categories.
var PIIRequestTypes = []PIIRequestType{PIITypePhone, PIITypeEmail, PIITypeLinkedIn, PIITypePhotos}

// Valid reports whether t belongs to the closed set.
func (t PIIRequestType) Valid() bool {
	for _, known := range PIIRequestTypes {
		if t == known {
			return true
		}
	}
	return false
}

type PIIRequestStatus string

const (
	PIIStatusPending  PIIRequestStatus = "pending"
	PIIStatusApproved PIIRequestStatus = "approved"
	PIIStatusRejected PIIRequestStatus = "rejected"
	PIIStatusRevoked  PIIRequestStatus = "revoked"
)

// PIIRequest is one request by a viewer for one category from one owner.
type PIIRequest struct {
	ID                string           `dynamodbav:"id" json:"id"`                               // PK
	RequesterUsername string           `dynamodbav:"requesterUsername" json:"requesterUsername"` // GSI (outgoing)
	RequesteeUsername string           `dynamodbav:"requesteeUsername" json:"requesteeUsername"` // GSI (incoming), the owner
	RequestType       PIIRequestType   `dynamodbav:"requestType" json:"requestType"`
	Status            PIIRequestStatus `dynamodbav:"status" json:"status"`
	Message           string           `dynamodbav:"message,omitempty" json:"message,omitempty"`
	RequestedAt       time.Time        `dynamodbav:"requestedAt" json:"requestedAt"`
	ResolvedAt        *time.Time       `dynamodbav:"resolvedAt,omitempty" json:"resolvedAt"`
	RevokedAt         *time.Time       `dynamodbav:"revokedAt,omitempty" json:"revokedAt,omitempty"`
}

// PendingKey identifies the (requester, requestee, type) triple that may hold
// at most one pending request.
func (r PIIRequest) PendingKey() string {
	return PendingKey(r.RequesterUsername, r.RequesteeUsername, r.RequestType)
}

func PendingKey(requester, requestee string, requestType PIIRequestType) string {
	return requester + "#" + requestee + "#" + string(requestType)
}

// SortByRequestedAtDesc orders newest first.
func SortByRequestedAtDesc(requests []PIIRequest) {
	sort.SliceStable(requests, func(i, j int) bool {
		return requests[i].RequestedAt.After(requests[j].RequestedAt)
	})
}

// CreatePIIRequest is the body accepted when a viewer asks for access.
type CreatePIIRequest struct {
	Requester   string         `json:"requester"`
	Requestee   string         `json:"requestee"`
	RequestType PIIRequestType `json:"requestType"`
	Message     string         `json:"message,omitempty"`
}
