package search

import (
	"context"
	"fmt"

	"supernova/api/internal/store"
)

// SQLSearch implements Searcher with a LIKE query over the harmonizers table.
type SQLSearch struct {
	store *store.HarmonizerStore
}

func NewSQLSearch(s *store.HarmonizerStore) *SQLSearch {
	return &SQLSearch{store: s}
}

// Healthy always returns true; the database backs the whole app.
func (s *SQLSearch) Healthy() bool {
	return true
}

func (s *SQLSearch) Search(ctx context.Context, q Query) ([]string, error) {
	var names []string
	err := s.store.WithConn(ctx, func(conn store.Querier) error {
		var err error
		names, err = s.store.SearchUsernames(ctx, conn, q.Text, q.Limit)
		return err
	})
	return names, err
}

// LoadAllRecords reads every active harmonizer for reindexing.
func (s *SQLSearch) LoadAllRecords(ctx context.Context) ([]UserRecord, error) {
	var records []UserRecord
	err := s.store.WithConn(ctx, func(conn store.Querier) error {
		rows, err := s.store.List(ctx, conn)
		if err != nil {
			return err
		}
		records = make([]UserRecord, 0, len(rows))
		for _, h := range rows {
			if !h.IsActive {
				continue
			}
			records = append(records, UserRecord{ID: h.ID, Username: h.Username, Bio: h.Bio})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load harmonizers: %w", err)
	}
	return records, nil
}
