package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"l3v3l_server/errs"
	"l3v3l_server/models"
)

// ListService manages favorites, shortlist and exclusions.
type ListService struct {
	Store ListStore
	Now   func() time.Time
}

func NewListService(store ListStore) *ListService {
	return &ListService{Store: store, Now: func() time.Time { return time.Now().UTC() }}
}

func validCategory(c models.ListCategory) error {
	if !c.Valid() {
		return errs.Invalidf("unknown list " + string(c))
	}
	return nil
}

func (s *ListService) List(ctx context.Context, owner string, category models.ListCategory) ([]models.ListEntry, error) {
	if err := validCategory(category); err != nil {
		return nil, err
	}
	entries, err := s.Store.ListEntries(ctx, owner, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", category, err)
	}
	models.SortByPosition(entries)
	return entries, nil
}

// Add appends target at the end of the list.
func (s *ListService) Add(ctx context.Context, owner string, category models.ListCategory, target, notes string) (models.ListEntry, error) {
	if err := validCategory(category); err != nil {
		return models.ListEntry{}, err
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return models.ListEntry{}, errs.Invalidf("target username is required")
	}
	if target == owner {
		return models.ListEntry{}, errs.Invalidf("cannot add yourself to a list")
	}
	current, err := s.Store.ListEntries(ctx, owner, category)
	if err != nil {
		return models.ListEntry{}, fmt.Errorf("failed to load %s: %w", category, err)
	}
	next := 0
	for _, e := range current {
		if e.TargetUsername == target {
			return models.ListEntry{}, errs.Conflictf(target + " is already in " + string(category))
		}
		if e.Position >= next {
			next = e.Position + 1
		}
	}
	entry := models.ListEntry{
		ListKey:        models.ListKey(owner, category),
		TargetUsername: target,
		OwnerUsername:  owner,
		Category:       category,
		Position:       next,
		Notes:          notes,
		CreatedAt:      s.Now(),
	}
	if err := s.Store.AddEntry(ctx, entry); err != nil {
		return models.ListEntry{}, fmt.Errorf("failed to add to %s: %w", category, err)
	}
	return entry, nil
}

// Remove deletes target and compacts the remaining positions.
func (s *ListService) Remove(ctx context.Context, owner string, category models.ListCategory, target string) error {
	if err := validCategory(category); err != nil {
		return err
	}
	if err := s.Store.RemoveEntry(ctx, owner, category, target); err != nil {
		return fmt.Errorf("failed to remove from %s: %w", category, err)
	}
	return s.compact(ctx, owner, category)
}

func (s *ListService) compact(ctx context.Context, owner string, category models.ListCategory) error {
	entries, err := s.Store.ListEntries(ctx, owner, category)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", category, err)
	}
	models.SortByPosition(entries)
	var changed []models.ListEntry
	for i := range entries {
		if entries[i].Position != i {
			entries[i].Position = i
			changed = append(changed, entries[i])
		}
	}
	if len(changed) == 0 {
		return nil
	}
	if err := s.Store.SetPositions(ctx, changed); err != nil {
		return fmt.Errorf("failed to renumber %s: %w", category, err)
	}
	return nil
}

// Reorder persists order as explicit positions. order must be a permutation
// of the list's current targets.
func (s *ListService) Reorder(ctx context.Context, owner string, category models.ListCategory, order []string) ([]models.ListEntry, error) {
	if err := validCategory(category); err != nil {
		return nil, err
	}
	entries, err := s.Store.ListEntries(ctx, owner, category)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", category, err)
	}
	if len(order) != len(entries) {
		return nil, errs.Invalidf("order must list every entry exactly once")
	}
	byTarget := make(map[string]models.ListEntry, len(entries))
	for _, e := range entries {
		byTarget[e.TargetUsername] = e
	}
	reordered := make([]models.ListEntry, 0, len(order))
	for i, target := range order {
		e, ok := byTarget[target]
		if !ok {
			return nil, errs.Invalidf("order must list every entry exactly once").WithDetail(target)
		}
		delete(byTarget, target)
		e.Position = i
		reordered = append(reordered, e)
	}
	if err := s.Store.SetPositions(ctx, reordered); err != nil {
		return nil, fmt.Errorf("failed to reorder %s: %w", category, err)
	}
	return reordered, nil
}

// Move transfers target between two lists in one atomic store write.
func (s *ListService) Move(ctx context.Context, owner string, in models.MoveListEntry) (models.ListEntry, error) {
	if err := validCategory(in.From); err != nil {
		return models.ListEntry{}, err
	}
	if err := validCategory(in.To); err != nil {
		return models.ListEntry{}, err
	}
	if in.From == in.To {
		return models.ListEntry{}, errs.Invalidf("source and destination lists are the same")
	}
	from, err := s.Store.GetEntry(ctx, owner, in.From, in.Target)
	if err != nil {
		return models.ListEntry{}, err
	}
	dest, err := s.Store.ListEntries(ctx, owner, in.To)
	if err != nil {
		return models.ListEntry{}, fmt.Errorf("failed to load %s: %w", in.To, err)
	}
	next := 0
	for _, e := range dest {
		if e.TargetUsername == in.Target {
			return models.ListEntry{}, errs.Conflictf(in.Target + " is already in " + string(in.To))
		}
		if e.Position >= next {
			next = e.Position + 1
		}
	}
	to := models.ListEntry{
		ListKey:        models.ListKey(owner, in.To),
		TargetUsername: in.Target,
		OwnerUsername:  owner,
		Category:       in.To,
		Position:       next,
		Notes:          from.Notes,
		CreatedAt:      s.Now(),
	}
	if err := s.Store.MoveEntry(ctx, from, to); err != nil {
		return models.ListEntry{}, fmt.Errorf("failed to move %s: %w", in.Target, err)
	}
	if err := s.compact(ctx, owner, in.From); err != nil {
		return to, err
	}
	return to, nil
}
