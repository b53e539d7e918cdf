// Package search finds harmonizers by username. Meilisearch serves queries
// when it is healthy; the database LIKE query covers the rest.
package search

import "context"

// DemoUsers is what the adapter returns when the live backend is disabled.
var DemoUsers = []string{"taha_gungor", "artist_dev"}

// UserRecord is the data we index for a harmonizer.
type UserRecord struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bio      string `json:"bio"`
}

// Query describes a username search.
type Query struct {
	Text  string
	Limit int
}

// Searcher can execute a username search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]string, error)
	Healthy() bool
}
