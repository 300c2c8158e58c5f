package database

import (
	"context"
	"fmt"
	"sort"
)

// Association is a two-column link table such as product_certifications.
type Association struct {
	Table    string
	OwnerCol string
	RefCol   string
}

// Replace makes the owner's links exactly refIDs and returns what changed.
// Links are diffed rather than rewritten so unchanged rows are left alone.
func (a Association) Replace(ctx context.Context, q Querier, ownerID string, refIDs []string) (added, removed []string, err error) {
	current, err := a.List(ctx, q, ownerID)
	if err != nil {
		return nil, nil, err
	}

	want := make(map[string]bool, len(refIDs))
	for _, id := range refIDs {
		want[id] = true
	}
	have := make(map[string]bool, len(current))
	for _, id := range current {
		have[id] = true
		if !want[id] {
			removed = append(removed, id)
		}
	}
	for id := range want {
		if !have[id] {
			added = append(added, id)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)

	if len(removed) > 0 {
		db := NewDeleteBuilder()
		db.DeleteFrom(a.Table)
		ids := make([]any, len(removed))
		for i, id := range removed {
			ids[i] = id
		}
		db.Where(db.Equal(a.OwnerCol, ownerID), db.In(a.RefCol, ids...))

		query, args := db.Build()
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return nil, nil, fmt.Errorf("failed to unlink from %s: %w", a.Table, err)
		}
	}

	if len(added) > 0 {
		ib := NewInsertBuilder()
		ib.InsertInto(a.Table)
		ib.Cols(a.OwnerCol, a.RefCol)
		for _, id := range added {
			ib.Values(ownerID, id)
		}
		ib.OnConflictDoNothing()

		query, args := ib.Build()
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return nil, nil, fmt.Errorf("failed to link into %s: %w", a.Table, err)
		}
	}

	return added, removed, nil
}

func (a Association) List(ctx context.Context, q Querier, ownerID string) ([]string, error) {
	sb := NewSelectBuilder()
	sb.Select(a.RefCol)
	sb.From(a.Table)
	sb.Where(sb.Equal(a.OwnerCol, ownerID))
	sb.OrderBy(a.RefCol)

	query, args := sb.Build()
	var ids []string
	if err := q.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", a.Table, err)
	}
	return ids, nil
}
