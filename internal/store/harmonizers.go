package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"supernova/api/internal/util"

	"golang.org/x/crypto/bcrypt"
)

const (
	AdminUsername = "admin"
	AdminEmail    = "admin@supernova.dev"
)

// Harmonizer is a row of the harmonizers table.
type Harmonizer struct {
	ID             string
	Username       string
	Email          string
	HashedPassword string
	Bio            string
	IsAdmin        bool
	IsActive       bool
	CreatedAt      time.Time
}

// HarmonizerStore reads and writes the harmonizers table.
type HarmonizerStore struct {
	db *DB
}

func NewHarmonizerStore(db *DB) *HarmonizerStore {
	return &HarmonizerStore{db: db}
}

func (s *HarmonizerStore) DB() *DB {
	return s.db
}

func (s *HarmonizerStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureDatabaseExists creates the schema and seeds the administrator row
// when the table is empty. It is safe to call on every start.
func EnsureDatabaseExists(ctx context.Context, db *DB, adminPassword string) (bool, error) {
	if err := ApplyMigrations(ctx, db, Migrations()); err != nil {
		return false, err
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM harmonizers`).Scan(&count); err != nil {
		return false, fmt.Errorf("count harmonizers: %w", err)
	}
	if count > 0 {
		return true, nil
	}

	if strings.TrimSpace(adminPassword) == "" {
		buf := make([]byte, 16)
		_, _ = rand.Read(buf)
		adminPassword = hex.EncodeToString(buf)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}

	store := NewHarmonizerStore(db)
	if err := store.Create(ctx, db, Harmonizer{
		Username:       AdminUsername,
		Email:          AdminEmail,
		HashedPassword: string(hashed),
		IsAdmin:        true,
		IsActive:       true,
	}); err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	return true, nil
}

// WithConn scopes a dedicated connection to fn.
func (s *HarmonizerStore) WithConn(ctx context.Context, fn func(Querier) error) error {
	return s.db.WithConn(ctx, fn)
}

func (s *HarmonizerStore) Create(ctx context.Context, q Querier, h Harmonizer) error {
	if strings.TrimSpace(h.Username) == "" || strings.TrimSpace(h.Email) == "" {
		return errors.New("username and email are required")
	}
	if h.ID == "" {
		h.ID = util.NewID("hmz")
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, s.db.Dialect.Rebind(`
		INSERT INTO harmonizers (id, username, email, hashed_password, bio, is_admin, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), h.ID, h.Username, h.Email, h.HashedPassword, h.Bio, h.IsAdmin, h.IsActive, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert harmonizer: %w", err)
	}
	return nil
}

// GetByUsername returns sql.ErrNoRows when no harmonizer matches.
func (s *HarmonizerStore) GetByUsername(ctx context.Context, q Querier, username string) (Harmonizer, error) {
	row := q.QueryRowContext(ctx, s.db.Dialect.Rebind(`
		SELECT id, username, email, hashed_password, bio, is_admin, is_active, created_at
		FROM harmonizers WHERE username = ?
	`), strings.TrimSpace(username))
	h, err := scanHarmonizer(row)
	if err != nil {
		return Harmonizer{}, err
	}
	return h, nil
}

func (s *HarmonizerStore) List(ctx context.Context, q Querier) ([]Harmonizer, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, username, email, hashed_password, bio, is_admin, is_active, created_at
		FROM harmonizers ORDER BY username
	`)
	if err != nil {
		return nil, fmt.Errorf("list harmonizers: %w", err)
	}
	defer rows.Close()
	return collectHarmonizers(rows)
}

// SearchUsernames matches usernames containing text, case-insensitively.
func (s *HarmonizerStore) SearchUsernames(ctx context.Context, q Querier, text string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(text)) + "%"
	rows, err := q.QueryContext(ctx, s.db.Dialect.Rebind(`
		SELECT username FROM harmonizers
		WHERE LOWER(username) LIKE ? AND is_active = ?
		ORDER BY username LIMIT ?
	`), pattern, true, limit)
	if err != nil {
		return nil, fmt.Errorf("search harmonizers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan username: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHarmonizer(row rowScanner) (Harmonizer, error) {
	var h Harmonizer
	if err := row.Scan(&h.ID, &h.Username, &h.Email, &h.HashedPassword, &h.Bio, &h.IsAdmin, &h.IsActive, &h.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Harmonizer{}, err
		}
		return Harmonizer{}, fmt.Errorf("scan harmonizer: %w", err)
	}
	return h, nil
}

func collectHarmonizers(rows *sql.Rows) ([]Harmonizer, error) {
	var out []Harmonizer
	for rows.Next() {
		h, err := scanHarmonizer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
