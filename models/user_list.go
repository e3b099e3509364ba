package models

import (
	"sort"
	"time"
)

// ListCategory is one of the per-user curated lists.
type ListCategory string

const (
	ListFavorites  ListCategory = "favorites"
	ListShortlist  ListCategory = "shortlist"
	ListExclusions ListCategory = "exclusions"
)

func (c ListCategory) Valid() bool {
	return c == ListFavorites || c == ListShortlist || c == ListExclusions
}

// ListEntry is one profile placed in an owner's list.
type ListEntry struct {
	ListKey        string       `dynamodbav:"listKey" json:"-"`                     // PK (owner#category)
	TargetUsername string       `dynamodbav:"targetUsername" json:"targetUsername"` // SK
	OwnerUsername  string       `dynamodbav:"ownerUsername" json:"ownerUsername"`
	Category       ListCategory `dynamodbav:"category" json:"category"`
	Position       int          `dynamodbav:"position" json:"position"`
	Notes          string       `dynamodbav:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt      time.Time    `dynamodbav:"createdAt" json:"createdAt"`
}

func ListKey(owner string, category ListCategory) string {
	return owner + "#" + string(category)
}

// SortByPosition orders entries by their stored position.
func SortByPosition(entries []ListEntry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Position < entries[j].Position })
}

// MoveListEntry is the body for a cross-category move.
type MoveListEntry struct {
	Target string       `json:"target"`
	From   ListCategory `json:"from"`
	To     ListCategory `json:"to"`
}
