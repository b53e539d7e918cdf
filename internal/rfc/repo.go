// Package rfc loads RFC documents from a directory, preferring the HEAD tree
// when the directory is tracked by git.
package rfc

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

var ErrNotFound = errors.New("rfc not found")

// Entry is one RFC document.
type Entry struct {
	ID        string    `json:"id"`
	Summary   string    `json:"summary"`
	Text      string    `json:"text"`
	Path      string    `json:"path"`
	Revision  string    `json:"revision,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Revision describes one commit touching an RFC.
type Revision struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

type Repo struct {
	dir string
	mu  sync.Mutex
}

func New(dir string) *Repo {
	return &Repo{dir: dir}
}

func (r *Repo) Dir() string {
	return r.dir
}

// List returns RFCs sorted by id. Committed files are read from HEAD; a
// directory without git history is read from disk.
func (r *Repo) List() ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.listFromHead()
	if err == nil {
		return entries, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) && !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, err
	}
	return r.listFromDisk()
}

func (r *Repo) Get(id string) (Entry, error) {
	entries, err := r.List()
	if err != nil {
		return Entry{}, err
	}
	for _, entry := range entries {
		if strings.EqualFold(entry.ID, id) {
			return entry, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (r *Repo) open() (*git.Repository, string, error) {
	repo, err := git.PlainOpenWithOptions(r.dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, "", err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, "", fmt.Errorf("open worktree: %w", err)
	}
	prefix, err := relativeDir(worktree.Filesystem.Root(), r.dir)
	if err != nil {
		return nil, "", err
	}
	return repo, prefix, nil
}

func (r *Repo) listFromHead() ([]Entry, error) {
	repo, prefix, err := r.open()
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if err != nil {
		return nil, err
	}
	commitObj, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("load head commit: %w", err)
	}
	tree, err := commitObj.Tree()
	if err != nil {
		return nil, fmt.Errorf("load head tree: %w", err)
	}
	if prefix != "" {
		tree, err = tree.Tree(prefix)
		if errors.Is(err, object.ErrDirectoryNotFound) {
			return []Entry{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load %s tree: %w", prefix, err)
		}
	}

	entries := []Entry{}
	for _, item := range tree.Entries {
		if !item.Mode.IsFile() || !isRFCFile(item.Name) {
			continue
		}
		file, err := tree.File(item.Name)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", item.Name, err)
		}
		text, err := file.Contents()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", item.Name, err)
		}
		entry := newEntry(item.Name, path.Join(prefix, item.Name), text)
		entry.Revision = commitObj.Hash.String()[:7]
		entry.UpdatedAt = commitObj.Author.When
		entries = append(entries, entry)
	}
	sortEntries(entries)
	return entries, nil
}

func (r *Repo) listFromDisk() ([]Entry, error) {
	items, err := os.ReadDir(r.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rfc dir: %w", err)
	}
	entries := []Entry{}
	for _, item := range items {
		if item.IsDir() || !isRFCFile(item.Name()) {
			continue
		}
		full := filepath.Join(r.dir, item.Name())
		raw, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", item.Name(), err)
		}
		entry := newEntry(item.Name(), full, string(raw))
		if info, err := item.Info(); err == nil {
			entry.UpdatedAt = info.ModTime().UTC()
		}
		entries = append(entries, entry)
	}
	sortEntries(entries)
	return entries, nil
}

// Publish writes <id>.md and commits it, initializing the repository on
// first use.
func (r *Repo) Publish(id, text, author string) (Revision, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return Revision{}, fmt.Errorf("invalid rfc id %q", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return Revision{}, fmt.Errorf("create rfc dir: %w", err)
	}
	repo, prefix, err := r.open()
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if _, err = git.PlainInit(r.dir, false); err != nil {
			return Revision{}, fmt.Errorf("init repo: %w", err)
		}
		repo, prefix, err = r.open()
	}
	if err != nil {
		return Revision{}, err
	}

	name := id + ".md"
	if err := os.WriteFile(filepath.Join(r.dir, name), []byte(strings.TrimRight(text, "\n")+"\n"), 0o644); err != nil {
		return Revision{}, fmt.Errorf("write rfc: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return Revision{}, fmt.Errorf("open worktree: %w", err)
	}
	if _, err := worktree.Add(path.Join(prefix, name)); err != nil {
		return Revision{}, fmt.Errorf("git add rfc: %w", err)
	}
	if author = strings.TrimSpace(author); author == "" {
		author = "guest"
	}
	hash, err := worktree.Commit("Publish "+id, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@supernova.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return Revision{}, fmt.Errorf("commit rfc: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Revision{}, fmt.Errorf("load commit: %w", err)
	}
	return toRevision(commitObj), nil
}

// History lists commits touching the RFC, newest first.
func (r *Repo) History(id string, limit int) ([]Revision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	repo, prefix, err := r.open()
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []Revision{}, nil
	}
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []Revision{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	fileName := path.Join(prefix, id+".md")
	iter, err := repo.Log(&git.LogOptions{From: head.Hash(), FileName: &fileName})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := []Revision{}
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toRevision(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

func newEntry(name, filePath, text string) Entry {
	return Entry{
		ID:      strings.TrimSuffix(name, path.Ext(name)),
		Summary: summarize(text),
		Text:    text,
		Path:    filePath,
	}
}

// summarize returns the first non-blank line without heading markers.
func summarize(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
		if line != "" {
			return line
		}
	}
	return ""
}

func isRFCFile(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return (ext == ".md" || ext == ".txt") && !strings.HasPrefix(name, ".")
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
}

func relativeDir(root, dir string) (string, error) {
	absRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("resolve repo root: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve rfc dir: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(absDir); err == nil {
		absDir = resolved
	}
	rel, err := filepath.Rel(absRoot, absDir)
	if err != nil {
		return "", fmt.Errorf("relate rfc dir to repo: %w", err)
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}

func toRevision(commitObj *object.Commit) Revision {
	return Revision{
		Hash:      commitObj.Hash.String()[:7],
		Message:   strings.TrimSpace(commitObj.Message),
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
