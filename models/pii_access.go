package models

import (
	"sort"
	"time"
)

// PIIAccessGrant is the active disclosure from a granter (owner) to a grantee.
// A grant with no access types is never stored.
type PIIAccessGrant struct {
	GranterUsername string           `dynamodbav:"granterUsername" json:"granterUsername"` // PK
	GranteeUsername string           `dynamodbav:"granteeUsername" json:"granteeUsername"` // SK, GSI
	AccessTypes     []PIIRequestType `dynamodbav:"accessTypes" json:"accessTypes"`
	CreatedAt       time.Time        `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time        `dynamodbav:"updatedAt" json:"updatedAt"`
}

func (g *PIIAccessGrant) Has(t PIIRequestType) bool {
	for _, existing := range g.AccessTypes {
		if existing == t {
			return true
		}
	}
	return false
}

// Add inserts t and reports whether the set changed.
func (g *PIIAccessGrant) Add(t PIIRequestType) bool {
	if g.Has(t) {
		return false
	}
	g.AccessTypes = append(g.AccessTypes, t)
	sort.Slice(g.AccessTypes, func(i, j int) bool { return g.AccessTypes[i] < g.AccessTypes[j] })
	return true
}

// Remove deletes t and reports whether the set changed.
func (g *PIIAccessGrant) Remove(t PIIRequestType) bool {
	for i, existing := range g.AccessTypes {
		if existing == t {
			g.AccessTypes = append(g.AccessTypes[:i], g.AccessTypes[i+1:]...)
			return true
		}
	}
	return false
}

func (g *PIIAccessGrant) Empty() bool {
	return len(g.AccessTypes) == 0
}
